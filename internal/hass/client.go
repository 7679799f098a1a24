package hass

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	// ErrInvalidEntityID marks entity ids that are not "<domain>.<name>".
	ErrInvalidEntityID = errors.New("invalid entity id")
	// ErrEntityNotFound marks a 404 from the states endpoint.
	ErrEntityNotFound = errors.New("entity not found")
)

// RetryPolicy bounds the transparent retry loop around every hub request.
// MaxElapsed == 0 retries until success or context cancellation.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
	RetryableStatus map[int]bool
}

// DefaultRetryPolicy retries connection failures and transient server errors
// indefinitely with exponential backoff. The hub is a local service that may
// be down for minutes at a time; giving up is worse than waiting.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     60 * time.Second,
		MaxElapsed:      0,
		RetryableStatus: map[int]bool{
			http.StatusInternalServerError: true,
			http.StatusBadGateway:          true,
			http.StatusServiceUnavailable:  true,
			http.StatusGatewayTimeout:      true,
		},
	}
}

// Attributes are the entity attributes posted alongside every state.
type Attributes struct {
	UnitOfMeasurement string `json:"unit_of_measurement"`
	Icon              string `json:"icon"`
}

// State is the payload for POST /api/states/<entity_id>.
type State struct {
	State      any        `json:"state"`
	Attributes Attributes `json:"attributes"`
}

// EntityState is the state object returned by GET /api/states/<entity_id>.
type EntityState struct {
	EntityID    string     `json:"entity_id"`
	State       string     `json:"state"`
	Attributes  Attributes `json:"attributes"`
	LastChanged string     `json:"last_changed"`
	LastUpdated string     `json:"last_updated"`
}

// Client is a thin typed wrapper over the Home Assistant REST API. It is
// read-only after construction and may be shared by all entities.
type Client struct {
	baseURL string
	headers http.Header
	http    *http.Client
	policy  RetryPolicy
}

func NewClient(baseURL, token string, timeout time.Duration, policy RetryPolicy) *Client {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)
	headers.Set("Content-Type", "application/json")

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: headers,
		http:    &http.Client{Timeout: timeout},
		policy:  policy,
	}
}

// Online reports whether the hub answers the API root with a success status.
// The probe is a single attempt without retry: its purpose is to answer
// quickly, not to wait the hub back into existence.
func (c *Client) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/", nil)
	if err != nil {
		return false
	}
	req.Header = c.headers.Clone()

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Debug("hass: reachability probe failed", "error", err)
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// GetEntityState fetches the current state object for entityID. A 404 is
// reported as ErrEntityNotFound, any other non-success status as a plain
// error.
func (c *Client) GetEntityState(ctx context.Context, entityID string) (*EntityState, error) {
	url, err := c.entityURL(entityID)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("get entity %s: %w", entityID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("get entity %s: %w", entityID, ErrEntityNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("get entity %s: unexpected status %s", entityID, resp.Status)
	}

	var state EntityState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("get entity %s: decode response: %w", entityID, err)
	}
	return &state, nil
}

// PostEntityState publishes a state object for entityID. Posting an empty
// state value is meaningless, so it is logged and skipped without error and
// without a network call. Delivery failures are returned to the caller.
func (c *Client) PostEntityState(ctx context.Context, entityID string, state State) error {
	url, err := c.entityURL(entityID)
	if err != nil {
		return err
	}

	if emptyState(state.State) {
		slog.Info("hass: skipping post of empty state", "entity_id", entityID)
		return nil
	}

	body, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("post entity %s: marshal state: %w", entityID, err)
	}

	resp, err := c.do(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("post entity %s: %w", entityID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		slog.Debug("hass: entity updated", "entity_id", entityID)
	case http.StatusCreated:
		slog.Debug("hass: entity created", "entity_id", entityID)
	default:
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("post entity %s: unexpected status %s", entityID, resp.Status)
		}
	}
	return nil
}

// do issues one request with the client's retry policy. Connection failures
// and retryable statuses are retried with exponential backoff, transparently
// to the caller; everything else is returned as-is.
func (c *Client) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.policy.InitialInterval
	bo.MaxInterval = c.policy.MaxInterval
	bo.MaxElapsedTime = c.policy.MaxElapsed

	var resp *http.Response
	op := func() error {
		// The request is rebuilt per attempt so the body reader is fresh.
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header = c.headers.Clone()

		r, err := c.http.Do(req)
		if err != nil {
			requestRetries.Inc()
			return err
		}
		if c.policy.RetryableStatus[r.StatusCode] {
			r.Body.Close()
			requestRetries.Inc()
			return fmt.Errorf("hub returned %s", r.Status)
		}
		resp = r
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return resp, nil
}

// entityURL validates entityID ("<domain>.<name>", exactly one dot) before
// any network call and returns the states endpoint for it.
func (c *Client) entityURL(entityID string) (string, error) {
	if len(strings.Split(entityID, ".")) != 2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntityID, entityID)
	}
	return c.baseURL + "/api/states/" + entityID, nil
}

func emptyState(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
