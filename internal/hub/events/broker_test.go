package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ataiva-software/vertex-sub003/internal/auth"
	domain "github.com/ataiva-software/vertex-sub003/internal/domain/event"
	"github.com/ataiva-software/vertex-sub003/internal/storage/memory"
)

var actor = auth.Context{UserID: "u1"}

type recordingHandler struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingHandler) handle(_ context.Context, ev domain.Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *recordingHandler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recordingHandler) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func startBroker(t *testing.T) (*Broker, *memory.Store) {
	t.Helper()
	store := memory.New()
	b := NewBroker(store, nil, Config{QueueDepth: 128, PublishBlock: 50 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := b.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		b.Stop()
	})
	return b, store
}

func subscribeHandler(t *testing.T, b *Broker, pattern string, preds []domain.Predicate, h Handler) domain.Subscription {
	t.Helper()
	ref := "h-" + pattern
	b.RegisterHandler(ref, h)
	sub, err := b.Subscribe(context.Background(), actor, domain.Subscription{
		Pattern:    pattern,
		Predicates: preds,
		Kind:       domain.CallbackHandler,
		HandlerRef: ref,
	})
	if err != nil {
		t.Fatalf("subscribe %s: %v", pattern, err)
	}
	return sub
}

func waitCount(t *testing.T, want int, count func() int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if count() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d deliveries, got %d", want, count())
}

func TestFanOutWithFilter(t *testing.T) {
	b, _ := startBroker(t)
	ctx := context.Background()

	s1 := &recordingHandler{}
	s2 := &recordingHandler{}
	subscribeHandler(t, b, "foo.*", nil, s1.handle)
	subscribeHandler(t, b, "foo.bar", []domain.Predicate{{Path: "x", Value: "1"}}, s2.handle)

	publish := func(typ string, x int) {
		if _, err := b.Publish(ctx, domain.Event{Type: typ, Source: "test", Payload: map[string]any{"x": x}}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	publish("foo.bar", 1) // both match
	publish("foo.baz", 1) // only s1 (type mismatch for s2)
	publish("foo.bar", 2) // only s1 (predicate fails for s2)

	waitCount(t, 3, s1.count)
	waitCount(t, 1, s2.count)

	time.Sleep(50 * time.Millisecond)
	if s2.count() != 1 {
		t.Fatalf("s2 received %d, want 1", s2.count())
	}
}

func TestPerSubscriptionOrdering(t *testing.T) {
	b, _ := startBroker(t)
	ctx := context.Background()

	h := &recordingHandler{}
	subscribeHandler(t, b, "seq.*", nil, h.handle)

	want := []string{"seq.a", "seq.b", "seq.c", "seq.d", "seq.e"}
	for _, typ := range want {
		if _, err := b.Publish(ctx, domain.Event{Type: typ, Source: "test"}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	waitCount(t, len(want), h.count)
	got := h.types()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order broken: got %v", got)
		}
	}
}

func TestPublishAssignsIDAndPersists(t *testing.T) {
	b, store := startBroker(t)
	ctx := context.Background()

	ev, err := b.Publish(ctx, domain.Event{Type: "foo.bar", Source: "test"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if ev.ID == "" || ev.Timestamp.IsZero() {
		t.Fatalf("event not normalized: %+v", ev)
	}

	stored, err := store.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatalf("event not persisted: %v", err)
	}
	if stored.Type != "foo.bar" {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestHandlerErrorDoesNotPropagate(t *testing.T) {
	b, _ := startBroker(t)
	ctx := context.Background()

	b.RegisterHandler("angry", func(context.Context, domain.Event) error {
		panic("handler exploded")
	})
	if _, err := b.Subscribe(ctx, actor, domain.Subscription{
		Pattern: "x.*", Kind: domain.CallbackHandler, HandlerRef: "angry",
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if _, err := b.Publish(ctx, domain.Event{Type: "x.y", Source: "test"}); err != nil {
		t.Fatalf("publish must not fail: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	// Broker still functional afterwards.
	h := &recordingHandler{}
	subscribeHandler(t, b, "x.z", nil, h.handle)
	if _, err := b.Publish(ctx, domain.Event{Type: "x.z", Source: "test"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitCount(t, 1, h.count)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b, _ := startBroker(t)
	ctx := context.Background()

	h := &recordingHandler{}
	sub := subscribeHandler(t, b, "u.*", nil, h.handle)

	if _, err := b.Publish(ctx, domain.Event{Type: "u.one", Source: "test"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitCount(t, 1, h.count)

	if err := b.Unsubscribe(ctx, actor, sub.ID); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if _, err := b.Publish(ctx, domain.Event{Type: "u.two", Source: "test"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if h.count() != 1 {
		t.Fatalf("delivery after unsubscribe: %d", h.count())
	}
}

func TestSubscribeValidation(t *testing.T) {
	b, _ := startBroker(t)
	ctx := context.Background()

	if _, err := b.Subscribe(ctx, actor, domain.Subscription{Pattern: "[bad", Kind: domain.CallbackHandler, HandlerRef: "x"}); err == nil {
		t.Fatal("bad pattern must be rejected")
	}
	if _, err := b.Subscribe(ctx, actor, domain.Subscription{Pattern: "a.*", Kind: domain.CallbackHandler, HandlerRef: "ghost"}); err == nil {
		t.Fatal("unknown handler ref must be rejected")
	}
	if _, err := b.Subscribe(ctx, actor, domain.Subscription{Pattern: "a.*", Kind: domain.CallbackWebhook}); err == nil {
		t.Fatal("webhook callback without id must be rejected")
	}
}

func TestTapReceivesDispatchedEvents(t *testing.T) {
	b, _ := startBroker(t)
	ctx := context.Background()

	tap, detach := b.Tap()
	defer detach()

	if _, err := b.Publish(ctx, domain.Event{Type: "t.one", Source: "test"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case ev := <-tap:
		if ev.Type != "t.one" {
			t.Fatalf("tap got %s", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("tap received nothing")
	}
}
