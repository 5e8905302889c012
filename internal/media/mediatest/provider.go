// Package mediatest provides an in-memory media.Provider for tests.
package mediatest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Aaditya4007/AI-interviewer/internal/ids"
	"github.com/Aaditya4007/AI-interviewer/internal/media"
)

// Provider keeps rooms in a map. Behaviour knobs must be set before concurrent use.
type Provider struct {
	// ConflictOnExisting makes EnsureRoom return media.ErrRoomExists for a known name,
	// the way a server without idempotent create does.
	ConflictOnExisting bool
	// EnsureErr, when set, fails every EnsureRoom call.
	EnsureErr error
	// RecordingErr, when set, fails every StartCompositeRecording call.
	RecordingErr error
	// RecordingDelay blocks StartCompositeRecording until it elapses or ctx is done.
	RecordingDelay time.Duration
	// EnsureGate, when non-nil, blocks EnsureRoom until it is closed.
	EnsureGate chan struct{}

	mu         sync.Mutex
	rooms      map[string]media.Room
	ensures    int
	recordings []media.CompositeRecordingRequest
}

var _ media.Provider = (*Provider)(nil)

func New() *Provider {
	return &Provider{rooms: make(map[string]media.Room)}
}

func (p *Provider) EnsureRoom(ctx context.Context, name string, cfg media.RoomConfig) (media.Room, error) {
	if p.EnsureGate != nil {
		select {
		case <-p.EnsureGate:
		case <-ctx.Done():
			return media.Room{}, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensures++
	if p.EnsureErr != nil {
		return media.Room{}, p.EnsureErr
	}
	name = strings.TrimSpace(name)
	if room, ok := p.rooms[name]; ok {
		if p.ConflictOnExisting {
			return media.Room{}, fmt.Errorf("create room %q: %w", name, media.ErrRoomExists)
		}
		return room, nil
	}
	room := media.Room{
		SID:             ids.NewWithPrefix("RM_"),
		Name:            name,
		EmptyTimeout:    cfg.IdleTimeout,
		MaxParticipants: cfg.MaxParticipants,
		CreationTime:    time.Now().UTC(),
	}
	p.rooms[name] = room
	return room, nil
}

func (p *Provider) GetRoom(_ context.Context, name string) (media.Room, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	room, ok := p.rooms[strings.TrimSpace(name)]
	if !ok {
		return media.Room{}, fmt.Errorf("%w: %s", media.ErrRoomNotFound, name)
	}
	return room, nil
}

func (p *Provider) ListRooms(context.Context) ([]media.Room, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rooms := make([]media.Room, 0, len(p.rooms))
	for _, room := range p.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Name < rooms[j].Name })
	return rooms, nil
}

func (p *Provider) StartCompositeRecording(ctx context.Context, req media.CompositeRecordingRequest) (media.RecordingInfo, error) {
	if p.RecordingDelay > 0 {
		timer := time.NewTimer(p.RecordingDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return media.RecordingInfo{}, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.recordings = append(p.recordings, req)
	if p.RecordingErr != nil {
		return media.RecordingInfo{}, p.RecordingErr
	}
	return media.RecordingInfo{EgressID: ids.NewWithPrefix("EG_"), Status: "EGRESS_STARTING"}, nil
}

// AddRoom seeds a room as if another process had created it.
func (p *Provider) AddRoom(room media.Room) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rooms[room.Name] = room
}

func (p *Provider) EnsureCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ensures
}

func (p *Provider) Recordings() []media.CompositeRecordingRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]media.CompositeRecordingRequest(nil), p.recordings...)
}
