package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	domainevent "github.com/ataiva-software/vertex-sub003/internal/domain/event"
	domain "github.com/ataiva-software/vertex-sub003/internal/domain/webhook"
	"github.com/ataiva-software/vertex-sub003/internal/storage/memory"
)

// sink records every request it receives and answers with a scripted status.
type sink struct {
	mu       sync.Mutex
	requests []sinkRequest
	status   func(attempt int) int
}

type sinkRequest struct {
	headers http.Header
	body    []byte
}

func (s *sink) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.requests = append(s.requests, sinkRequest{headers: r.Header.Clone(), body: body})
		n := len(s.requests)
		s.mu.Unlock()
		w.WriteHeader(s.status(n))
	}
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *sink) request(i int) sinkRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[i]
}

func runWorker(t *testing.T, svc *Service, store *memory.Store) *Worker {
	t.Helper()
	w := NewWorker(svc, store, WorkerConfig{
		Workers:      2,
		PollInterval: 10 * time.Millisecond,
		Timeout:      time.Second,
	}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	t.Cleanup(func() {
		cancel()
		w.Stop()
	})
	return w
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestHappyPathDelivery(t *testing.T) {
	target := &sink{status: func(int) int { return http.StatusOK }}
	srv := httptest.NewServer(target.handler())
	defer srv.Close()

	store := memory.New()
	svc := NewService(store, domain.RetryPolicy{}, nil)
	wh, err := svc.Create(context.Background(), actor, CreateInput{
		Name: "w", TargetURL: srv.URL, Patterns: []string{"foo.bar"}, Secret: "s",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	d, err := svc.Enqueue(context.Background(), wh.ID, domainevent.Event{
		ID: "e1", Type: "foo.bar", Payload: map[string]any{"x": 1},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	runWorker(t, svc, store)
	waitFor(t, 2*time.Second, func() bool {
		got, err := store.GetDelivery(context.Background(), d.ID)
		return err == nil && got.Status == domain.StatusDelivered
	})

	if target.count() != 1 {
		t.Fatalf("expected exactly one POST, got %d", target.count())
	}
	req := target.request(0)
	if got := req.headers.Get("X-Event-Id"); got != "e1" {
		t.Fatalf("X-Event-Id = %q", got)
	}
	if got := req.headers.Get("X-Event-Type"); got != "foo.bar" {
		t.Fatalf("X-Event-Type = %q", got)
	}
	if got := req.headers.Get("X-Attempt"); got != "1" {
		t.Fatalf("X-Attempt = %q", got)
	}
	if string(req.body) != `{"x":1}` {
		t.Fatalf("body = %s", req.body)
	}

	wantSig := SignatureHeader([]byte("s"), []byte(`{"x":1}`))
	if got := req.headers.Get("X-Signature"); got != wantSig {
		t.Fatalf("X-Signature = %q, want %q", got, wantSig)
	}
	if !Verify(req.body, req.headers.Get("X-Signature"), []byte("s")) {
		t.Fatal("receiver-side verification failed")
	}

	final, err := store.GetDelivery(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Attempt != 1 {
		t.Fatalf("attempts = %d, want 1", final.Attempt)
	}
}

func TestRetryToExhaustion(t *testing.T) {
	target := &sink{status: func(int) int { return http.StatusInternalServerError }}
	srv := httptest.NewServer(target.handler())
	defer srv.Close()

	store := memory.New()
	svc := NewService(store, domain.RetryPolicy{
		Base: 10 * time.Millisecond, Cap: 100 * time.Millisecond, MaxAttempts: 3, Jitter: 0.2,
	}, nil)
	wh, err := svc.Create(context.Background(), actor, CreateInput{
		Name: "w", TargetURL: srv.URL, Patterns: []string{"foo.bar"}, Secret: "s",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	d, err := svc.Enqueue(context.Background(), wh.ID, domainevent.Event{
		ID: "e1", Type: "foo.bar", Payload: map[string]any{"x": 1},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	runWorker(t, svc, store)
	waitFor(t, 5*time.Second, func() bool {
		got, err := store.GetDelivery(context.Background(), d.ID)
		return err == nil && got.Status == domain.StatusExhausted
	})

	if target.count() != 3 {
		t.Fatalf("expected 3 attempts, got %d", target.count())
	}
	for i := 0; i < 3; i++ {
		req := target.request(i)
		// The event id stays stable across retries so receivers can dedupe.
		if got := req.headers.Get("X-Event-Id"); got != "e1" {
			t.Fatalf("attempt %d: X-Event-Id = %q", i+1, got)
		}
	}

	final, _ := store.GetDelivery(context.Background(), d.ID)
	if final.Attempt != 3 {
		t.Fatalf("attempts = %d", final.Attempt)
	}
	if final.ResponseSummary == "" {
		t.Fatal("response summary must be recorded")
	}
}

func TestBackoffFormula(t *testing.T) {
	policy := domain.RetryPolicy{Base: time.Second, Cap: 60 * time.Second, MaxAttempts: 10, Jitter: 0}

	for attempt, want := range map[int]time.Duration{
		1: time.Second,
		2: 2 * time.Second,
		3: 4 * time.Second,
		7: 60 * time.Second, // capped
	} {
		if got := Backoff(policy, attempt); got != want {
			t.Errorf("attempt %d: delay = %v, want %v", attempt, got, want)
		}
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	policy := domain.RetryPolicy{Base: time.Second, Cap: 60 * time.Second, MaxAttempts: 3, Jitter: 0.2}
	for i := 0; i < 100; i++ {
		got := Backoff(policy, 2)
		if got < 1600*time.Millisecond || got > 2400*time.Millisecond {
			t.Fatalf("jittered delay %v outside [1.6s, 2.4s]", got)
		}
	}
}

func TestRetryAfterOverridesBackoff(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	store := memory.New()
	// A long base would stall the test; the 1s Retry-After must override it.
	svc := NewService(store, domain.RetryPolicy{
		Base: time.Hour, Cap: time.Hour, MaxAttempts: 2, Jitter: 0,
	}, nil)
	wh, err := svc.Create(context.Background(), actor, CreateInput{
		Name: "w", TargetURL: srv.URL, Patterns: []string{"foo.bar"}, Secret: "s",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	d, err := svc.Enqueue(context.Background(), wh.ID, domainevent.Event{ID: "e1", Type: "foo.bar"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	runWorker(t, svc, store)
	waitFor(t, 5*time.Second, func() bool {
		got, err := store.GetDelivery(context.Background(), d.ID)
		return err == nil && got.Status == domain.StatusExhausted
	})

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Fatalf("attempts = %d", attempts)
	}
}
