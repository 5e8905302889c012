package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type ReconcileInput struct {
	RoomSID       string
	RequestedName string
	// SubjectTextID is the external subject id parsed from the requested name. Empty
	// means the session is created without a subject link.
	SubjectTextID string
	StartedAt     time.Time
}

type Reconciliation struct {
	Record  SessionRecord
	Created bool
	// SubjectErr is set when the subject lookup failed for a reason other than a miss.
	// The record is still created, just without the link.
	SubjectErr error
}

// Reconcile finds the session record for input.RoomSID or creates it. Calls for the
// same SID are serialized through locker; a nil locker skips serialization.
func Reconcile(ctx context.Context, store Store, locker Locker, input ReconcileInput) (Reconciliation, error) {
	if store == nil {
		return Reconciliation{}, errors.New("record store is not configured")
	}
	sid := strings.TrimSpace(input.RoomSID)
	if sid == "" {
		return Reconciliation{}, errors.New("room sid is required")
	}

	if locker != nil {
		unlock, err := locker.Lock(ctx, sid)
		if err != nil {
			return Reconciliation{}, fmt.Errorf("lock session %s: %w", sid, err)
		}
		defer unlock()
	}

	existing, err := store.FindSessionBySID(ctx, sid)
	switch {
	case err == nil:
		return Reconciliation{Record: existing}, nil
	case !errors.Is(err, ErrNotFound):
		return Reconciliation{}, fmt.Errorf("find session: %w", err)
	}

	var out Reconciliation
	create := NewSessionRecord{
		RoomSID:       sid,
		RequestedName: input.RequestedName,
		SubjectTextID: strings.TrimSpace(input.SubjectTextID),
		StartedAt:     input.StartedAt,
	}
	if create.SubjectTextID != "" {
		subject, err := store.FindSubjectByTextID(ctx, create.SubjectTextID)
		switch {
		case err == nil:
			create.SubjectRecordID = subject.ID
		case errors.Is(err, ErrNotFound):
		default:
			out.SubjectErr = fmt.Errorf("find subject %q: %w", create.SubjectTextID, err)
		}
	}

	rec, err := store.CreateSessionRecord(ctx, create)
	if err != nil {
		if errors.Is(err, ErrDuplicateSession) {
			existing, findErr := store.FindSessionBySID(ctx, sid)
			if findErr != nil {
				return Reconciliation{}, fmt.Errorf("find session after duplicate insert: %w", findErr)
			}
			out.Record = existing
			return out, nil
		}
		return Reconciliation{}, fmt.Errorf("create session: %w", err)
	}
	out.Record = rec
	out.Created = true
	return out, nil
}
