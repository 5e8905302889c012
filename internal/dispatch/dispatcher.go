package dispatch

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/Aaditya4007/AI-interviewer/internal/events"
	"github.com/Aaditya4007/AI-interviewer/internal/subscribers"
)

const (
	defaultAttempts       = 3
	defaultRetryBackoff   = 150 * time.Millisecond
	defaultAttemptTimeout = 10 * time.Second
)

// Dispatcher delivers provisioning events to every subscriber in the background. A
// subscriber that keeps failing only costs its own retries.
type Dispatcher struct {
	logger         *log.Logger
	subscribers    []subscribers.Subscriber
	attempts       int
	retryBackoff   time.Duration
	attemptTimeout time.Duration

	inflight sync.WaitGroup
}

func New(logger *log.Logger, subs []subscribers.Subscriber) *Dispatcher {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Dispatcher{
		logger:         logger,
		subscribers:    subs,
		attempts:       defaultAttempts,
		retryBackoff:   defaultRetryBackoff,
		attemptTimeout: defaultAttemptTimeout,
	}
}

// Publish fans the event out without blocking the caller. Deliveries outlive the
// caller's context so a finished HTTP request does not abort them.
func (d *Dispatcher) Publish(ctx context.Context, event events.Event) {
	if d == nil || len(d.subscribers) == 0 {
		return
	}
	detached := context.WithoutCancel(ctx)
	for _, sub := range d.subscribers {
		d.inflight.Add(1)
		go func(s subscribers.Subscriber) {
			defer d.inflight.Done()
			d.deliver(detached, s, event)
		}(sub)
	}
}

// Wait blocks until in-flight deliveries finish or ctx is done. Used on shutdown.
func (d *Dispatcher) Wait(ctx context.Context) error {
	if d == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) deliver(ctx context.Context, sub subscribers.Subscriber, event events.Event) {
	for attempt := 1; attempt <= d.attempts; attempt++ {
		err := d.attempt(ctx, sub, event)
		if err == nil {
			return
		}
		d.logger.Printf("event delivery failed subscriber=%s event_id=%s event_type=%s room=%q attempt=%d/%d err=%v",
			sub.Name(), event.EventID, event.EventType, event.RoomName, attempt, d.attempts, err)
		if attempt == d.attempts {
			return
		}

		// linear backoff: 1x, 2x, ...
		timer := time.NewTimer(time.Duration(attempt) * d.retryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (d *Dispatcher) attempt(ctx context.Context, sub subscribers.Subscriber, event events.Event) error {
	if d.attemptTimeout <= 0 {
		return sub.Handle(ctx, event)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
	defer cancel()
	return sub.Handle(attemptCtx, event)
}
