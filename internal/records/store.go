package records

import (
	"context"
	"errors"
	"time"
)

// NoSubjectTextID is stored as the subject text id when the requested name carried none.
const NoSubjectTextID = "N/A"

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateSession = errors.New("session record already exists for room sid")
)

// SessionRecord is the durable row describing one interview session, keyed by the
// media server's room SID.
type SessionRecord struct {
	ID              string
	RoomSID         string
	RequestedName   string
	SubjectRecordID string
	SubjectTextID   string
	StartedAt       time.Time
	Transcript      string
}

type Subject struct {
	ID          string
	TextID      string
	DisplayName string
}

// NewSessionRecord carries the fields written when a session row is created.
type NewSessionRecord struct {
	RoomSID         string
	RequestedName   string
	SubjectRecordID string
	SubjectTextID   string
	StartedAt       time.Time
}

type Store interface {
	FindSessionBySID(ctx context.Context, roomSID string) (SessionRecord, error)
	FindSubjectByTextID(ctx context.Context, textID string) (Subject, error)
	CreateSessionRecord(ctx context.Context, rec NewSessionRecord) (SessionRecord, error)
	Close() error
}

func (n NewSessionRecord) normalized(now time.Time) NewSessionRecord {
	if n.SubjectTextID == "" {
		n.SubjectTextID = NoSubjectTextID
	}
	if n.StartedAt.IsZero() {
		n.StartedAt = now
	}
	n.StartedAt = n.StartedAt.UTC()
	return n
}
