package caddy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the engine's admin API. Responses are classified into
// structural rejections (4xx, never retried) and transient failures
// (transport errors and 5xx, retried by the reload coordinator).
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an admin API client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Load submits a full configuration document, replacing the running config.
func (c *Client) Load(ctx context.Context, cfg *Config) error {
	raw, err := MarshalCanonical(cfg)
	if err != nil {
		return NewValidationError("marshal config: %v", err)
	}
	return c.LoadRaw(ctx, raw)
}

// LoadRaw submits an already serialized document. Rollback uses this so the
// previous document is replayed byte for byte.
func (c *Client) LoadRaw(ctx context.Context, raw []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/load", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build load request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransientEngineError{Op: "load", Err: err}
	}
	defer resp.Body.Close()

	return classify("load", resp)
}

// GetConfig retrieves the engine's running configuration.
func (c *Client) GetConfig(ctx context.Context) (*Config, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/config/", nil)
	if err != nil {
		return nil, fmt.Errorf("build config request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientEngineError{Op: "get config", Err: err}
	}
	defer resp.Body.Close()

	if err := classify("get config", resp); err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode running config: %w", err)
	}
	return &cfg, nil
}

// Ping checks whether the engine admin API is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/config/", nil)
	if err != nil {
		return fmt.Errorf("build ping request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransientEngineError{Op: "ping", Err: err}
	}
	defer resp.Body.Close()

	return classify("ping", resp)
}

func classify(op string, resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &EngineRejectionError{Status: resp.StatusCode, Body: string(body)}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &TransientEngineError{
			Op:  op,
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
		}
	}
}
