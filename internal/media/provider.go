package media

import (
	"context"
	"errors"
	"time"
)

const (
	DefaultIdleTimeout     = 10 * time.Minute
	DefaultMaxParticipants = 10
)

var (
	// ErrRoomExists is the recognizable "already exists" conflict from room creation.
	ErrRoomExists   = errors.New("room already exists")
	ErrRoomNotFound = errors.New("room not found")
)

type Room struct {
	SID             string
	Name            string
	EmptyTimeout    time.Duration
	MaxParticipants int
	CreationTime    time.Time
	NumParticipants int
	NumPublishers   int
	ActiveRecording bool
	Metadata        string
}

type RoomConfig struct {
	IdleTimeout     time.Duration
	MaxParticipants int
}

func DefaultRoomConfig() RoomConfig {
	return RoomConfig{IdleTimeout: DefaultIdleTimeout, MaxParticipants: DefaultMaxParticipants}
}

type GCPUpload struct {
	Credentials string
	Bucket      string
}

type CompositeRecordingRequest struct {
	RoomName string
	Layout   string
	Preset   string
	FileType string
	Filepath string
	Upload   GCPUpload
}

type RecordingInfo struct {
	EgressID string
	Status   string
}

// Provider is the media server surface the gateway relies on. Implementations must be
// safe for concurrent use.
type Provider interface {
	EnsureRoom(ctx context.Context, name string, cfg RoomConfig) (Room, error)
	GetRoom(ctx context.Context, name string) (Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
	StartCompositeRecording(ctx context.Context, req CompositeRecordingRequest) (RecordingInfo, error)
}
