// Package client talks to the room gateway's HTTP façade.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxResponseBytes = 1 << 20

// APIError is returned for every non-2xx response from the gateway.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway status %d: %s", e.Status, e.Message)
}

type CreateRoomResult struct {
	RoomName   string `json:"roomName"`
	SessionSID string `json:"sessionSid"`
	AdminToken string `json:"adminToken"`
	AgentToken string `json:"agentToken"`
}

type TokenResult struct {
	Identity string `json:"identity"`
	Token    string `json:"token"`
}

type RoomInfo struct {
	Name            string `json:"name"`
	SID             string `json:"sid"`
	NumParticipants int    `json:"numParticipants"`
	NumPublishers   int    `json:"numPublishers"`
	MaxParticipants int    `json:"maxParticipants"`
	EmptyTimeout    int64  `json:"emptyTimeout"`
	CreationTime    int64  `json:"creationTime"`
	ActiveRecording bool   `json:"activeRecording"`
	Metadata        string `json:"metadata,omitempty"`
}

func (r RoomInfo) Created() time.Time {
	if r.CreationTime == 0 {
		return time.Time{}
	}
	return time.Unix(r.CreationTime, 0).UTC()
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New returns a client for baseURL, which may include a path prefix such as
// "http://localhost:8080/api/livekit".
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("gateway base url is required")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

func (c *Client) CreateRoom(ctx context.Context, roomName, adminIdentity string) (CreateRoomResult, error) {
	var out CreateRoomResult
	err := c.do(ctx, http.MethodPost, "/create-room", map[string]string{
		"roomName":      roomName,
		"adminIdentity": adminIdentity,
	}, &out)
	return out, err
}

func (c *Client) GenerateToken(ctx context.Context, roomName, identity string, isAdmin bool) (TokenResult, error) {
	var out TokenResult
	err := c.do(ctx, http.MethodPost, "/generate-token", map[string]any{
		"roomName":            roomName,
		"participantIdentity": identity,
		"isAdmin":             isAdmin,
	}, &out)
	return out, err
}

func (c *Client) ListRooms(ctx context.Context) ([]RoomInfo, error) {
	var out []RoomInfo
	if err := c.do(ctx, http.MethodGet, "/rooms", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []RoomInfo{}
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("content-type", "application/json")
	}
	req.Header.Set("accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call gateway: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorMessage(status int, raw []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && strings.TrimSpace(payload.Error) != "" {
		return strings.TrimSpace(payload.Error)
	}
	if message := strings.TrimSpace(string(raw)); message != "" {
		return message
	}
	return http.StatusText(status)
}
