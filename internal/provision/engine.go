package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Aaditya4007/AI-interviewer/internal/events"
	"github.com/Aaditya4007/AI-interviewer/internal/media"
	"github.com/Aaditya4007/AI-interviewer/internal/naming"
	"github.com/Aaditya4007/AI-interviewer/internal/recording"
	"github.com/Aaditya4007/AI-interviewer/internal/records"
)

var ErrInvalidRequest = errors.New("invalid provisioning request")

const defaultRecordTimeout = 10 * time.Second

// Publisher receives lifecycle events. *dispatch.Dispatcher satisfies it.
type Publisher interface {
	Publish(context.Context, events.Event)
}

type Options struct {
	Provider media.Provider
	// Store may be nil, in which case record reconciliation is skipped.
	Store      records.Store
	Locker     records.Locker
	Recorder   *recording.Recorder
	Publisher  Publisher
	Logger     *log.Logger
	RoomConfig media.RoomConfig
	// RecordTimeout bounds record reconciliation. Zero means 10s.
	RecordTimeout time.Duration
}

// Engine runs the provisioning sequence: ensure room, reconcile the session record,
// start recording. Only the first step can fail the caller.
type Engine struct {
	provider   media.Provider
	store      records.Store
	locker     records.Locker
	recorder   *recording.Recorder
	publisher  Publisher
	logger     *log.Logger
	roomConfig media.RoomConfig
	recordTTL  time.Duration
	now        func() time.Time

	ensureGroup singleflight.Group
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.Provider == nil {
		return nil, errors.New("media provider is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	locker := opts.Locker
	if locker == nil {
		locker = records.NewKeyedMutex()
	}
	roomConfig := opts.RoomConfig
	if roomConfig.IdleTimeout <= 0 {
		roomConfig.IdleTimeout = media.DefaultIdleTimeout
	}
	if roomConfig.MaxParticipants <= 0 {
		roomConfig.MaxParticipants = media.DefaultMaxParticipants
	}
	recordTTL := opts.RecordTimeout
	if recordTTL <= 0 {
		recordTTL = defaultRecordTimeout
	}
	return &Engine{
		provider:   opts.Provider,
		store:      opts.Store,
		locker:     locker,
		recorder:   opts.Recorder,
		publisher:  opts.Publisher,
		logger:     logger,
		roomConfig: roomConfig,
		recordTTL:  recordTTL,
		now:        time.Now,
	}, nil
}

func (e *Engine) ProvisionSession(ctx context.Context, requestedName, requestingIdentity string) (Outcome, error) {
	requestedName = strings.TrimSpace(requestedName)
	if requestedName == "" {
		return Outcome{}, fmt.Errorf("%w: room name is required", ErrInvalidRequest)
	}
	e.logger.Printf("provision start room=%q requested_by=%q", requestedName, requestingIdentity)

	room, err := e.ensureRoom(ctx, requestedName)
	if err != nil {
		e.logger.Printf("provision failed room=%q err=%v", requestedName, err)
		return Outcome{}, err
	}

	out := Outcome{Session: Session{Name: room.Name, SID: room.SID}}
	if out.Session.Name == "" {
		out.Session.Name = requestedName
	}

	// Once the room exists, bookkeeping and recording finish even if the caller leaves.
	ctx = context.WithoutCancel(ctx)
	subjectID, _ := naming.SubjectID(out.Session.Name)
	out.Record = e.reconcile(ctx, &out, requestedName, subjectID)
	out.Recording = e.startRecording(ctx, &out)

	e.publish(ctx, events.EventTypeSessionProvisioned, out.Session, out)
	e.logger.Printf("provision done room=%q sid=%s record=%s recording=%s warnings=%d",
		out.Session.Name, out.Session.SID, out.Record.State, out.Recording.Status, len(out.Warnings))
	return out, nil
}

// ensureRoom shares one provider call between concurrent requests for the same name.
// The shared call is detached from any single caller; a caller whose ctx ends stops
// waiting without cancelling it for the others.
func (e *Engine) ensureRoom(ctx context.Context, name string) (media.Room, error) {
	detached := context.WithoutCancel(ctx)
	ch := e.ensureGroup.DoChan(name, func() (any, error) {
		room, err := e.provider.EnsureRoom(detached, name, e.roomConfig)
		if errors.Is(err, media.ErrRoomExists) {
			e.logger.Printf("room exists, fetching room=%q", name)
			room, err = e.provider.GetRoom(detached, name)
		}
		if err != nil {
			return media.Room{}, fmt.Errorf("ensure room %q: %w", name, err)
		}
		return room, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return media.Room{}, res.Err
		}
		return res.Val.(media.Room), nil
	case <-ctx.Done():
		return media.Room{}, fmt.Errorf("ensure room %q: %w", name, ctx.Err())
	}
}

func (e *Engine) reconcile(ctx context.Context, out *Outcome, requestedName, subjectID string) RecordStatus {
	status := RecordStatus{SubjectID: subjectID}
	if e.store == nil {
		status.State = RecordSkipped
		status.Reason = "record store not configured"
		return status
	}

	reconcileCtx, cancel := context.WithTimeout(ctx, e.recordTTL)
	defer cancel()
	result, err := records.Reconcile(reconcileCtx, e.store, e.locker, records.ReconcileInput{
		RoomSID:       out.Session.SID,
		RequestedName: requestedName,
		SubjectTextID: subjectID,
		StartedAt:     e.now().UTC(),
	})
	if err != nil {
		status.State = RecordFailed
		status.Reason = err.Error()
		out.warn(StepRecord, err.Error())
		e.logger.Printf("record reconcile failed room=%q sid=%s err=%v", out.Session.Name, out.Session.SID, err)
		e.publish(ctx, events.EventTypeRecordFailed, out.Session, status)
		return status
	}

	if result.SubjectErr != nil {
		out.warn(StepSubject, result.SubjectErr.Error())
		e.logger.Printf("subject lookup failed room=%q sid=%s subject=%q err=%v", out.Session.Name, out.Session.SID, subjectID, result.SubjectErr)
	}
	status.RecordID = result.Record.ID
	status.SubjectLinked = result.Record.SubjectRecordID != ""
	if result.Created {
		status.State = RecordCreated
	} else {
		status.State = RecordExisting
	}
	e.logger.Printf("record reconciled room=%q sid=%s record_id=%s state=%s subject_linked=%t",
		out.Session.Name, out.Session.SID, status.RecordID, status.State, status.SubjectLinked)
	e.publish(ctx, events.EventTypeRecordReconciled, out.Session, status)
	return status
}

func (e *Engine) startRecording(ctx context.Context, out *Outcome) recording.Result {
	if e.recorder == nil {
		result := recording.Result{Status: recording.StatusSkipped, Reason: "recorder not configured"}
		e.publish(ctx, events.EventTypeRecordingSkipped, out.Session, result)
		return result
	}

	result := e.recorder.Start(ctx, out.Session.Name, out.Session.SID)
	switch result.Status {
	case recording.StatusStarted:
		e.publish(ctx, events.EventTypeRecordingStarted, out.Session, result)
	case recording.StatusFailed:
		out.warn(StepRecording, result.Reason)
		e.publish(ctx, events.EventTypeRecordingFailed, out.Session, result)
	default:
		e.publish(ctx, events.EventTypeRecordingSkipped, out.Session, result)
	}
	return result
}

func (e *Engine) publish(ctx context.Context, eventType events.EventType, session Session, payload any) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(ctx, events.New(eventType, session.Name, session.SID, payload, e.now()))
}
