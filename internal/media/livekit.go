package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Aaditya4007/AI-interviewer/internal/tokens"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	serviceTokenTTL    = 10 * time.Minute
	maxResponseBytes   = 4 << 20

	roomServicePrefix = "/twirp/livekit.RoomService/"
	egressPrefix      = "/twirp/livekit.Egress/"
)

type Option func(*LiveKitClient)

// LiveKitClient talks to the room and egress services over their JSON RPC endpoints.
type LiveKitClient struct {
	baseURL    string
	signer     *tokens.Signer
	httpClient *http.Client
}

var _ Provider = (*LiveKitClient)(nil)

func WithHTTPClient(client *http.Client) Option {
	return func(c *LiveKitClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewLiveKitClient(serverURL string, signer *tokens.Signer, opts ...Option) (*LiveKitClient, error) {
	if signer == nil {
		return nil, errors.New("signer is required")
	}
	baseURL, err := HTTPBaseURL(serverURL)
	if err != nil {
		return nil, err
	}
	c := &LiveKitClient{
		baseURL:    baseURL,
		signer:     signer,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// HTTPBaseURL rewrites a ws:// or wss:// server URL to its http(s) equivalent.
func HTTPBaseURL(serverURL string) (string, error) {
	raw := strings.TrimSpace(serverURL)
	if raw == "" {
		return "", errors.New("media server url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse media server url: %w", err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "wss", "https":
		parsed.Scheme = "https"
	case "ws", "http":
		parsed.Scheme = "http"
	default:
		return "", fmt.Errorf("unsupported media server url scheme %q", parsed.Scheme)
	}
	if strings.TrimSpace(parsed.Host) == "" {
		return "", fmt.Errorf("media server url %q has no host", raw)
	}
	return strings.TrimRight(parsed.String(), "/"), nil
}

func (c *LiveKitClient) EnsureRoom(ctx context.Context, name string, cfg RoomConfig) (Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Room{}, errEmptyRoomName
	}
	req := wireCreateRoomRequest{
		Name:            name,
		EmptyTimeout:    uint32(cfg.IdleTimeout / time.Second),
		MaxParticipants: uint32(cfg.MaxParticipants),
	}
	var out wireRoom
	grant := tokens.VideoGrant{RoomCreate: true}
	if err := c.call(ctx, roomServicePrefix+"CreateRoom", grant, req, &out); err != nil {
		return Room{}, fmt.Errorf("create room %q: %w", name, err)
	}
	return out.toRoom(), nil
}

func (c *LiveKitClient) GetRoom(ctx context.Context, name string) (Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Room{}, errEmptyRoomName
	}
	rooms, err := c.listRooms(ctx, []string{name})
	if err != nil {
		return Room{}, err
	}
	for _, room := range rooms {
		if room.Name == name {
			return room, nil
		}
	}
	return Room{}, fmt.Errorf("%w: %s", ErrRoomNotFound, name)
}

func (c *LiveKitClient) ListRooms(ctx context.Context) ([]Room, error) {
	return c.listRooms(ctx, nil)
}

func (c *LiveKitClient) listRooms(ctx context.Context, names []string) ([]Room, error) {
	var out wireListRoomsResponse
	grant := tokens.VideoGrant{RoomList: true}
	if err := c.call(ctx, roomServicePrefix+"ListRooms", grant, wireListRoomsRequest{Names: names}, &out); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	rooms := make([]Room, 0, len(out.Rooms))
	for _, r := range out.Rooms {
		rooms = append(rooms, r.toRoom())
	}
	return rooms, nil
}

func (c *LiveKitClient) StartCompositeRecording(ctx context.Context, req CompositeRecordingRequest) (RecordingInfo, error) {
	if strings.TrimSpace(req.RoomName) == "" {
		return RecordingInfo{}, errEmptyRoomName
	}
	output := wireFileOutput{
		FileType: req.FileType,
		Filepath: req.Filepath,
	}
	if req.Upload.Credentials != "" || req.Upload.Bucket != "" {
		output.GCP = &wireGCPUpload{Credentials: req.Upload.Credentials, Bucket: req.Upload.Bucket}
	}
	body := wireRoomCompositeRequest{
		RoomName:    req.RoomName,
		Layout:      req.Layout,
		Preset:      req.Preset,
		FileOutputs: []wireFileOutput{output},
	}
	var out wireEgressInfo
	grant := tokens.VideoGrant{RoomRecord: true}
	if err := c.call(ctx, egressPrefix+"StartRoomCompositeEgress", grant, body, &out); err != nil {
		return RecordingInfo{}, fmt.Errorf("start composite recording for %q: %w", req.RoomName, err)
	}
	return RecordingInfo{EgressID: out.EgressID, Status: out.statusString()}, nil
}

func (c *LiveKitClient) call(ctx context.Context, path string, grant tokens.VideoGrant, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	token, err := c.signer.Sign("", grant, "", serviceTokenTTL)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return decodeTwirpError(resp.StatusCode, payload)
	}
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
