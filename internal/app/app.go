package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"rtlhass-bridge/internal/config"
	"rtlhass-bridge/internal/hass"
	"rtlhass-bridge/internal/httpapi"
	"rtlhass-bridge/internal/station"
)

// channelDef is one measurement channel of the station and the entity it
// publishes to.
type channelDef struct {
	name      string
	domain    string
	valueType hass.ValueType
	unit      string
	icon      string
}

var channels = []channelDef{
	{"temperature", "sensor", hass.Float, "°C", "mdi:thermometer"},
	{"humidity", "sensor", hass.Int, "%", "mdi:water-percent"},
	{"wind_speed_avg", "sensor", hass.Float, "m/s", "mdi:weather-windy"},
	{"wind_speed_max", "sensor", hass.Float, "m/s", "mdi:weather-windy"},
	{"wind_direction", "sensor", hass.Int, "°", "mdi:compass"},
	{"rain", "sensor", hass.Float, "mm", "mdi:weather-rainy"},
	{"battery_ok", "binary_sensor", hass.String, "", "mdi:battery-heart"},
}

// Run wires the hub client, the entity set, and the station reader, then
// drains the reading stream until the decoder exits or ctx is canceled.
func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"stationID", cfg.StationID,
		"stationModel", cfg.StationModel,
		"devicePath", cfg.DevicePath,
		"decoder", cfg.Decoder,
		"frequency", cfg.Frequency,
		"hassURL", cfg.HassURL,
		"entityPrefix", cfg.EntityPrefix,
		"httpAddr", cfg.HTTPAddr,
		"requestTimeout", cfg.RequestTimeout,
	)

	client := hass.NewClient(cfg.HassURL, cfg.HassToken, cfg.RequestTimeout, hass.DefaultRetryPolicy())

	// The bridge is useless against an unreachable hub; refuse to start.
	if !client.Online(ctx) {
		return fmt.Errorf("home assistant api is not reachable at %s", cfg.HassURL)
	}
	slog.Info("home assistant api online", "url", cfg.HassURL)

	entities := buildEntities(client, cfg)

	if cfg.HTTPAddr != "" {
		srv := httpapi.NewServer(cfg.HTTPAddr, httpapi.NewMux(func() bool {
			probeCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
			defer cancel()
			return client.Online(probeCtx)
		}))
		go func() {
			slog.Info("ops http listening", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("ops http server", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("ops http shutdown", "error", err)
			}
		}()
	}

	reader := station.NewReader(station.Options{
		Decoder:      cfg.Decoder,
		DevicePath:   cfg.DevicePath,
		Frequency:    cfg.Frequency,
		StationID:    cfg.StationID,
		StationModel: cfg.StationModel,
	})
	readings, err := reader.Readings(ctx)
	if err != nil {
		return err
	}

	packets := 0
	for reading := range readings {
		packets++
		slog.Debug("reading received", "packet", packets, "time", reading.Time)
		publish(ctx, entities, reading)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	// The decoder died on its own; surface it so an operator can alert on it.
	slog.Warn("decoder exited, reading stream ended", "packets", packets)
	return nil
}

// publish fans one reading out to its entities, one channel at a time.
// Entity updates absorb their own failures, so a bad channel never stops
// the others or the stream.
func publish(ctx context.Context, entities map[string]*hass.Entity, r station.Reading) {
	// Binary sensors expect "on"/"off" tokens, not booleans.
	battery := "off"
	if r.BatteryOK {
		battery = "on"
	}

	updates := []struct {
		name  string
		value any
	}{
		{"temperature", r.Temperature},
		{"humidity", r.Humidity},
		{"wind_speed_avg", r.WindSpeedAvg},
		{"wind_speed_max", r.WindSpeedMax},
		{"wind_direction", r.WindDirection},
		{"rain", r.Rain},
		{"battery_ok", battery},
	}
	for _, u := range updates {
		entities[u.name].Update(ctx, u.value)
	}
}

func buildEntities(client *hass.Client, cfg config.Config) map[string]*hass.Entity {
	out := make(map[string]*hass.Entity, len(channels))
	for _, ch := range channels {
		opts := []hass.EntityOption{hass.WithIcon(ch.icon)}
		if ch.unit != "" {
			opts = append(opts, hass.WithUnit(ch.unit))
		}
		if ov, ok := cfg.Entities[ch.name]; ok {
			if ov.Unit != nil {
				opts = append(opts, hass.WithUnit(*ov.Unit))
			}
			if ov.Icon != nil {
				opts = append(opts, hass.WithIcon(*ov.Icon))
			}
			if ov.Precision != nil {
				opts = append(opts, hass.WithPrecision(*ov.Precision))
			}
			if ov.Idempotent != nil {
				opts = append(opts, hass.WithIdempotent(*ov.Idempotent))
			}
		}
		id := ch.domain + "." + cfg.EntityPrefix + "_" + ch.name
		out[ch.name] = hass.NewEntity(client, id, ch.valueType, opts...)
	}
	return out
}
