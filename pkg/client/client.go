package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/aegisai/aegis/pkg/types"
)

const requestTimeout = 10 * time.Second

// Client is the typed HTTP client for the control plane, used by the
// CLI commands.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the given base URL, e.g. http://127.0.0.1:8420.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// SubmitMission submits a brief and returns the acknowledgement.
func (c *Client) SubmitMission(ctx context.Context, req types.SubmitMissionRequest) (*types.SubmitMissionResponse, error) {
	var resp types.SubmitMissionResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/missions", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListMissions fetches summaries of all known missions.
func (c *Client) ListMissions(ctx context.Context) (*types.ListMissionsResponse, error) {
	var resp types.ListMissionsResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/missions", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetMission fetches the full state of one mission.
func (c *Client) GetMission(ctx context.Context, missionID string) (*types.MissionView, error) {
	var resp types.MissionView
	if err := c.do(ctx, http.MethodGet, "/api/v1/missions/"+url.PathEscape(missionID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelMission cancels a mission, optionally with a reason.
func (c *Client) CancelMission(ctx context.Context, missionID, reason string) (*types.CancelMissionResponse, error) {
	var body any
	if reason != "" {
		body = types.CancelMissionRequest{Reason: reason}
	}
	var resp types.CancelMissionResponse
	if err := c.do(ctx, http.MethodDelete, "/api/v1/missions/"+url.PathEscape(missionID), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSwarm fetches the worker pool report.
func (c *Client) GetSwarm(ctx context.Context) (*types.SwarmView, error) {
	var resp types.SwarmView
	if err := c.do(ctx, http.MethodGet, "/api/v1/swarm", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health fetches the daemon health report.
func (c *Client) Health(ctx context.Context) (*types.HealthResponse, error) {
	var resp types.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError reconstructs the server's classified error so callers can
// branch on its kind.
func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var body types.ErrorResponse
	if err := json.Unmarshal(data, &body); err == nil && body.Error.Message != "" {
		return types.E(body.Error.Kind, "%s", body.Error.Message)
	}
	return fmt.Errorf("server returned %s", resp.Status)
}
