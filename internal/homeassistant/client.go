package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mycotrack/myco/pkg/types"
)

// defaultTimeout bounds each Home Assistant API call.
const defaultTimeout = 10 * time.Second

// EntityState is one state reading from the Home Assistant states API.
type EntityState struct {
	EntityID    string            `json:"entity_id"`
	State       string            `json:"state"`
	Attributes  map[string]any    `json:"attributes,omitempty"`
	LastChanged time.Time         `json:"last_changed"`
	LastUpdated time.Time         `json:"last_updated,omitempty"`
}

// Client talks to one Home Assistant instance. Create one per gateway and
// reuse it: the circuit breaker state belongs to the instance, not to the
// individual request.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *Breaker
}

// NewClient creates a client for the given gateway.
func NewClient(gw *types.IoTGateway) *Client {
	return NewClientWithTimeout(gw, defaultTimeout)
}

// NewClientWithTimeout creates a client with a custom request timeout.
func NewClientWithTimeout(gw *types.IoTGateway, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(gw.APIURL, "/"),
		apiKey:  gw.APIKey,
		http:    &http.Client{Timeout: timeout},
		breaker: NewBreaker("gateway:" + gw.Name),
	}
}

// BreakerState exposes the circuit breaker state for status reporting.
func (c *Client) BreakerState() string {
	return c.breaker.State()
}

// Ping checks connectivity against the API root. A nil error means the
// gateway is reachable and the token is accepted.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/api/", nil)
	return err
}

// GetState fetches the current state of one entity.
func (c *Client) GetState(ctx context.Context, entityID string) (*EntityState, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/states/"+url.PathEscape(entityID), nil)
	if err != nil {
		return nil, err
	}

	var state EntityState
	if err := json.Unmarshal(body, &state); err != nil {
		return nil, fmt.Errorf("failed to decode state response: %w", err)
	}
	return &state, nil
}

// ListStates fetches the states of all entities on the instance. Used
// during entity discovery when a gateway is first configured.
func (c *Client) ListStates(ctx context.Context) ([]EntityState, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/states", nil)
	if err != nil {
		return nil, err
	}

	var states []EntityState
	if err := json.Unmarshal(body, &states); err != nil {
		return nil, fmt.Errorf("failed to decode states response: %w", err)
	}
	return states, nil
}

// GetHistory fetches state history for one entity over [start, end].
// Home Assistant returns a list per requested entity; only the first list
// is relevant here.
func (c *Client) GetHistory(ctx context.Context, entityID string, start, end time.Time) ([]EntityState, error) {
	path := fmt.Sprintf("/api/history/period/%s?filter_entity_id=%s&end_time=%s",
		url.PathEscape(start.Format(time.RFC3339)),
		url.QueryEscape(entityID),
		url.QueryEscape(end.Format(time.RFC3339)),
	)

	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var series [][]EntityState
	if err := json.Unmarshal(body, &series); err != nil {
		return nil, fmt.Errorf("failed to decode history response: %w", err)
	}
	if len(series) == 0 {
		return []EntityState{}, nil
	}
	return series[0], nil
}

// CallService invokes a Home Assistant service, e.g. switch/turn_on.
func (c *Client) CallService(ctx context.Context, domain, service, entityID string) error {
	payload, err := json.Marshal(map[string]string{"entity_id": entityID})
	if err != nil {
		return fmt.Errorf("failed to encode service payload: %w", err)
	}

	path := fmt.Sprintf("/api/services/%s/%s", url.PathEscape(domain), url.PathEscape(service))
	_, err = c.do(ctx, http.MethodPost, path, payload)
	return err
}

// SetSwitch turns a switch entity on or off through an optimistic control
// flow: the caller applies the desired state locally before issuing the
// command and uses the returned snapshot to revert if the command fails.
// The snapshot is the entity's state before the command; it is returned
// even when the command errors, as long as the read succeeded.
func (c *Client) SetSwitch(ctx context.Context, entityID string, on bool) (snapshot *EntityState, err error) {
	snapshot, err = c.GetState(ctx, entityID)
	if err != nil {
		return nil, err
	}

	service := "turn_off"
	if on {
		service = "turn_on"
	}
	if err := c.CallService(ctx, "switch", service, entityID); err != nil {
		return snapshot, err
	}

	return snapshot, nil
}

// SetNumber sets a number entity's value with the same optimistic control
// flow as SetSwitch.
func (c *Client) SetNumber(ctx context.Context, entityID string, value float64) (snapshot *EntityState, err error) {
	snapshot, err = c.GetState(ctx, entityID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]interface{}{
		"entity_id": entityID,
		"value":     value,
	})
	if err != nil {
		return snapshot, fmt.Errorf("failed to encode service payload: %w", err)
	}

	if _, err := c.do(ctx, http.MethodPost, "/api/services/number/set_value", payload); err != nil {
		return snapshot, err
	}

	return snapshot, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("gateway request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		if err != nil {
			return nil, fmt.Errorf("failed to read gateway response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
		}

		return body, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}
