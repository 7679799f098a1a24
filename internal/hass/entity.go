package hass

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
)

// ValueType selects the coercion rule applied to every raw value before it
// is cached and published. The set is closed: each entity picks one at
// construction.
type ValueType int

const (
	Float ValueType = iota
	Int
	Bool
	String
)

// Entity is one published measurement channel with a cached last state.
// Updates must be serialized by the caller; the bridge processes one packet
// at a time so no locking is needed here.
type Entity struct {
	client     *Client
	id         string
	valueType  ValueType
	unit       string
	icon       string
	precision  int
	idempotent bool

	// hasState distinguishes "never updated" from any real value, so a
	// first reading of zero or false is still published.
	state    any
	hasState bool
}

type EntityOption func(*Entity)

func WithUnit(unit string) EntityOption {
	return func(e *Entity) { e.unit = unit }
}

func WithIcon(icon string) EntityOption {
	return func(e *Entity) { e.icon = icon }
}

// WithPrecision sets the rounding precision for Float entities.
func WithPrecision(digits int) EntityOption {
	return func(e *Entity) { e.precision = digits }
}

// WithIdempotent toggles suppression of posts whose coerced value equals the
// cached state. On by default.
func WithIdempotent(idempotent bool) EntityOption {
	return func(e *Entity) { e.idempotent = idempotent }
}

func NewEntity(client *Client, id string, valueType ValueType, opts ...EntityOption) *Entity {
	e := &Entity{
		client:     client,
		id:         id,
		valueType:  valueType,
		precision:  1,
		idempotent: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ID returns the full entity id, e.g. "sensor.weatherstation_temperature".
func (e *Entity) ID() string { return e.id }

// State returns the most recently accepted value and whether one exists.
func (e *Entity) State() (any, bool) { return e.state, e.hasState }

// Update coerces raw to the entity's value type and publishes it to the hub
// when it differs from the cached state (or always, when idempotence is
// off). All failures are logged and absorbed: one channel's failure must not
// halt ingestion of the others.
func (e *Entity) Update(ctx context.Context, raw any) {
	value, err := e.coerce(raw)
	if err != nil {
		slog.Error("hass: cannot coerce value", "entity_id", e.id, "value", raw, "error", err)
		coercionFailures.Inc()
		return
	}

	if e.idempotent && e.hasState && e.state == value {
		slog.Debug("hass: unchanged state suppressed", "entity_id", e.id, "state", value)
		postsSuppressed.Inc()
		return
	}

	// The cache reflects the latest accepted value even when the post below
	// fails; the next differing reading re-attempts delivery.
	e.state = value
	e.hasState = true

	postsAttempted.Inc()
	err = e.client.PostEntityState(ctx, e.id, State{
		State: value,
		Attributes: Attributes{
			UnitOfMeasurement: e.unit,
			Icon:              e.icon,
		},
	})
	if err != nil {
		slog.Error("hass: post entity state", "entity_id", e.id, "error", err)
		postsFailed.Inc()
	}
}

func (e *Entity) coerce(raw any) (any, error) {
	switch e.valueType {
	case Float:
		f, err := toFloat(raw)
		if err != nil {
			return nil, err
		}
		return roundTo(f, e.precision), nil
	case Int:
		return toInt(raw)
	case Bool:
		return toBool(raw)
	case String:
		return toString(raw), nil
	default:
		return nil, fmt.Errorf("unknown value type %d", e.valueType)
	}
}

func toFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float", raw)
	}
}

func toInt(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	case float32:
		return int(v), nil
	case string:
		i, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("not an integer: %q", v)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to int", raw)
	}
}

func toBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("not a bool: %q", v)
		}
		return b, nil
	default:
		return false, fmt.Errorf("cannot convert %T to bool", raw)
	}
}

func toString(raw any) string {
	if s, ok := raw.(string); ok {
		return s
	}
	return fmt.Sprint(raw)
}

func roundTo(f float64, digits int) float64 {
	ratio := math.Pow(10, float64(digits))
	return math.Round(f*ratio) / ratio
}
