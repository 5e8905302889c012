package media

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	twirpCodeAlreadyExists = "already_exists"
	twirpCodeNotFound      = "not_found"
)

// TwirpError is the error body returned by the media server's RPC endpoints.
type TwirpError struct {
	Status int    `json:"-"`
	Code   string `json:"code"`
	Msg    string `json:"msg"`
}

func (e *TwirpError) Error() string {
	return fmt.Sprintf("twirp status=%d code=%s msg=%q", e.Status, e.Code, e.Msg)
}

func (e *TwirpError) Is(target error) bool {
	switch target {
	case ErrRoomExists:
		return e.Code == twirpCodeAlreadyExists
	case ErrRoomNotFound:
		return e.Code == twirpCodeNotFound
	default:
		return false
	}
}

// flexInt64 accepts both JSON numbers and the quoted form protojson uses for 64-bit
// integers.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == "" {
		*f = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	if raw == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid int64 %q: %w", raw, err)
	}
	*f = flexInt64(v)
	return nil
}

type wireCreateRoomRequest struct {
	Name            string `json:"name"`
	EmptyTimeout    uint32 `json:"empty_timeout,omitempty"`
	MaxParticipants uint32 `json:"max_participants,omitempty"`
}

type wireListRoomsRequest struct {
	Names []string `json:"names,omitempty"`
}

type wireListRoomsResponse struct {
	Rooms []wireRoom `json:"rooms"`
}

type wireRoom struct {
	SID             string    `json:"sid"`
	Name            string    `json:"name"`
	EmptyTimeout    flexInt64 `json:"empty_timeout"`
	MaxParticipants flexInt64 `json:"max_participants"`
	CreationTime    flexInt64 `json:"creation_time"`
	NumParticipants flexInt64 `json:"num_participants"`
	NumPublishers   flexInt64 `json:"num_publishers"`
	ActiveRecording bool      `json:"active_recording"`
	Metadata        string    `json:"metadata"`
}

func (r wireRoom) toRoom() Room {
	room := Room{
		SID:             r.SID,
		Name:            r.Name,
		EmptyTimeout:    time.Duration(r.EmptyTimeout) * time.Second,
		MaxParticipants: int(r.MaxParticipants),
		NumParticipants: int(r.NumParticipants),
		NumPublishers:   int(r.NumPublishers),
		ActiveRecording: r.ActiveRecording,
		Metadata:        r.Metadata,
	}
	if r.CreationTime > 0 {
		room.CreationTime = time.Unix(int64(r.CreationTime), 0).UTC()
	}
	return room
}

type wireGCPUpload struct {
	Credentials string `json:"credentials"`
	Bucket      string `json:"bucket"`
}

type wireFileOutput struct {
	FileType string         `json:"file_type"`
	Filepath string         `json:"filepath"`
	GCP      *wireGCPUpload `json:"gcp,omitempty"`
}

type wireRoomCompositeRequest struct {
	RoomName    string           `json:"room_name"`
	Layout      string           `json:"layout,omitempty"`
	Preset      string           `json:"preset,omitempty"`
	FileOutputs []wireFileOutput `json:"file_outputs"`
}

type wireEgressInfo struct {
	EgressID string          `json:"egress_id"`
	Status   json.RawMessage `json:"status"`
}

// status may arrive as the enum name or its number depending on server settings.
func (e wireEgressInfo) statusString() string {
	raw := strings.TrimSpace(string(e.Status))
	if raw == "" || raw == "null" {
		return ""
	}
	var name string
	if err := json.Unmarshal(e.Status, &name); err == nil {
		return name
	}
	return raw
}

func decodeTwirpError(status int, body []byte) error {
	twerr := &TwirpError{Status: status}
	if err := json.Unmarshal(body, twerr); err != nil || twerr.Code == "" {
		return fmt.Errorf("media server status=%d body=%q", status, truncate(body, 512))
	}
	return twerr
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var errEmptyRoomName = errors.New("room name is required")
