package dispatch

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/Aaditya4007/AI-interviewer/internal/events"
	"github.com/Aaditya4007/AI-interviewer/internal/subscribers"
)

type fakeSubscriber struct {
	name      string
	failUntil int

	mu    sync.Mutex
	calls int
	ch    chan events.Event
}

func (f *fakeSubscriber) Name() string {
	return f.name
}

func (f *fakeSubscriber) Handle(_ context.Context, event events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failUntil {
		return errors.New("forced failure")
	}
	if f.ch != nil {
		f.ch <- event
	}
	return nil
}

func (f *fakeSubscriber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestDispatcher(subs ...subscribers.Subscriber) *Dispatcher {
	d := New(log.New(io.Discard, "", 0), subs)
	d.retryBackoff = 10 * time.Millisecond
	return d
}

type blockingSubscriber struct {
	mu    sync.Mutex
	calls int
}

func (b *blockingSubscriber) Name() string {
	return "blocking"
}

func (b *blockingSubscriber) Handle(ctx context.Context, _ events.Event) error {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func TestDispatcherRetriesThenSucceeds(t *testing.T) {
	sub := &fakeSubscriber{name: "sub", failUntil: 2, ch: make(chan events.Event, 1)}
	d := newTestDispatcher(sub)
	event := events.Event{EventID: "evt_1", EventType: events.EventTypeSessionProvisioned}

	d.Publish(context.Background(), event)

	select {
	case got := <-sub.ch:
		if got.EventID != event.EventID {
			t.Fatalf("unexpected event id: %s", got.EventID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for dispatch")
	}

	if calls := sub.Calls(); calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDispatcherStopsAfterRetries(t *testing.T) {
	sub := &fakeSubscriber{name: "sub", failUntil: 10}
	d := newTestDispatcher(sub)

	d.Publish(context.Background(), events.Event{EventID: "evt_2"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	if calls := sub.Calls(); calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDispatcherDeliveryOutlivesCanceledCaller(t *testing.T) {
	sub := &fakeSubscriber{name: "sub", failUntil: 1, ch: make(chan events.Event, 1)}
	d := newTestDispatcher(sub)

	ctx, cancel := context.WithCancel(context.Background())
	d.Publish(ctx, events.Event{EventID: "evt_3"})
	cancel()

	select {
	case got := <-sub.ch:
		if got.EventID != "evt_3" {
			t.Fatalf("unexpected event id: %s", got.EventID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected retry after caller cancellation to deliver")
	}
}

func TestNilDispatcherPublishIsNoop(t *testing.T) {
	var d *Dispatcher
	d.Publish(context.Background(), events.Event{EventID: "evt_4"})
}

func TestDispatcherBoundsEachAttempt(t *testing.T) {
	sub := &blockingSubscriber{}
	d := newTestDispatcher(sub)
	d.attemptTimeout = 20 * time.Millisecond

	d.Publish(context.Background(), events.Event{EventID: "evt_5"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.calls != 3 {
		t.Fatalf("expected 3 bounded attempts, got %d", sub.calls)
	}
}

func TestWaitWithoutSubscribers(t *testing.T) {
	d := New(nil, nil)
	d.Publish(context.Background(), events.Event{EventID: "evt_6"})
	if err := d.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
}
