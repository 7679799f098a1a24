package station

import (
	"fmt"
	"time"
)

// rtl_433 emits timestamps in local time, second resolution.
const timeLayout = "2006-01-02 15:04:05"

// Reading is one fully typed snapshot of an accepted sensor packet.
type Reading struct {
	Temperature   float64
	Humidity      int
	WindSpeedAvg  float64
	WindSpeedMax  float64
	WindDirection int
	Rain          float64
	BatteryOK     bool
	Time          time.Time
}

// ParseReading converts one decoded packet into a Reading. Every field must
// be present and well typed; otherwise the whole packet is rejected and the
// zero Reading is returned with an error — a Reading is never partially
// filled.
func ParseReading(raw map[string]any) (Reading, error) {
	var r Reading
	var err error

	if r.Temperature, err = floatField(raw, "temperature_C"); err != nil {
		return Reading{}, err
	}
	if r.Humidity, err = intField(raw, "humidity"); err != nil {
		return Reading{}, err
	}
	if r.WindSpeedAvg, err = floatField(raw, "wind_avg_m_s"); err != nil {
		return Reading{}, err
	}
	if r.WindSpeedMax, err = floatField(raw, "wind_max_m_s"); err != nil {
		return Reading{}, err
	}
	if r.WindDirection, err = intField(raw, "wind_dir_deg"); err != nil {
		return Reading{}, err
	}
	if r.Rain, err = floatField(raw, "rain_mm"); err != nil {
		return Reading{}, err
	}
	if r.BatteryOK, err = boolField(raw, "battery_ok"); err != nil {
		return Reading{}, err
	}
	if r.Time, err = timeField(raw, "time"); err != nil {
		return Reading{}, err
	}

	return r, nil
}

func floatField(raw map[string]any, key string) (float64, error) {
	v, ok := raw[key]
	if !ok {
		return 0, fmt.Errorf("missing field %q", key)
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("field %q: expected number, got %T", key, v)
	}
	return f, nil
}

func intField(raw map[string]any, key string) (int, error) {
	f, err := floatField(raw, key)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// boolField accepts both JSON booleans and the 0/1 integers rtl_433 uses for
// flags like battery_ok.
func boolField(raw map[string]any, key string) (bool, error) {
	v, ok := raw[key]
	if !ok {
		return false, fmt.Errorf("missing field %q", key)
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case float64:
		return b != 0, nil
	default:
		return false, fmt.Errorf("field %q: expected bool or 0/1, got %T", key, v)
	}
}

func timeField(raw map[string]any, key string) (time.Time, error) {
	v, ok := raw[key]
	if !ok {
		return time.Time{}, fmt.Errorf("missing field %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("field %q: expected string, got %T", key, v)
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("field %q: %w", key, err)
	}
	return t, nil
}
