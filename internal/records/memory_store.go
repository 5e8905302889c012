package records

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Aaditya4007/AI-interviewer/internal/ids"
)

type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]SessionRecord
	subjects map[string]Subject
	closed   bool
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]SessionRecord),
		subjects: make(map[string]Subject),
	}
}

// PutSubject adds or replaces a subject keyed by its text id.
func (s *MemoryStore) PutSubject(subject Subject) Subject {
	s.mu.Lock()
	defer s.mu.Unlock()
	if subject.ID == "" {
		subject.ID = ids.NewWithPrefix("rec")
	}
	s.subjects[subject.TextID] = subject
	return subject
}

func (s *MemoryStore) FindSessionBySID(_ context.Context, roomSID string) (SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return SessionRecord{}, fmt.Errorf("memory store is closed")
	}
	rec, ok := s.sessions[strings.TrimSpace(roomSID)]
	if !ok {
		return SessionRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) FindSubjectByTextID(_ context.Context, textID string) (Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Subject{}, fmt.Errorf("memory store is closed")
	}
	subject, ok := s.subjects[strings.TrimSpace(textID)]
	if !ok {
		return Subject{}, ErrNotFound
	}
	return subject, nil
}

func (s *MemoryStore) CreateSessionRecord(_ context.Context, in NewSessionRecord) (SessionRecord, error) {
	in = in.normalized(time.Now().UTC())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return SessionRecord{}, fmt.Errorf("memory store is closed")
	}
	if _, ok := s.sessions[in.RoomSID]; ok {
		return SessionRecord{}, fmt.Errorf("%w: %s", ErrDuplicateSession, in.RoomSID)
	}
	rec := SessionRecord{
		ID:              ids.NewWithPrefix("rec"),
		RoomSID:         in.RoomSID,
		RequestedName:   in.RequestedName,
		SubjectRecordID: in.SubjectRecordID,
		SubjectTextID:   in.SubjectTextID,
		StartedAt:       in.StartedAt,
	}
	s.sessions[in.RoomSID] = rec
	return rec, nil
}

// Sessions returns the number of stored session records.
func (s *MemoryStore) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
