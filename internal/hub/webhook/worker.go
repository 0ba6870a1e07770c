package webhook

import (
	"bytes"
	"context"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	domain "github.com/ataiva-software/vertex-sub003/internal/domain/webhook"
	"github.com/ataiva-software/vertex-sub003/internal/storage"
	"github.com/ataiva-software/vertex-sub003/pkg/logger"
	"github.com/ataiva-software/vertex-sub003/pkg/metrics"
)

const (
	defaultPollInterval = 250 * time.Millisecond
	defaultBatchSize    = 100
	summaryLimit        = 256
)

// WorkerConfig tunes the delivery worker pool.
type WorkerConfig struct {
	Workers      int
	PollInterval time.Duration
	Timeout      time.Duration
	// PerWebhookRate caps delivery attempts per webhook per second so a
	// downstream outage does not trigger a thundering herd.
	PerWebhookRate  float64
	PerWebhookBurst int
	// WindowCap bounds total attempts per webhook inside Window; 0 disables
	// the brake.
	WindowCap int
	Window    time.Duration
}

// Worker drains pending deliveries ordered by next-attempt time.
type Worker struct {
	service *Service
	store   storage.WebhookStore
	log     *logger.Logger
	cfg     WorkerConfig
	client  *http.Client

	mu       sync.Mutex
	inflight map[string]struct{}
	limiters map[string]*rate.Limiter

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewWorker creates a delivery worker pool.
func NewWorker(service *Service, store storage.WebhookStore, cfg WorkerConfig, log *logger.Logger) *Worker {
	if log == nil {
		log = logger.NewDefault("webhook-worker")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.PerWebhookRate <= 0 {
		cfg.PerWebhookRate = 10
	}
	if cfg.PerWebhookBurst <= 0 {
		cfg.PerWebhookBurst = int(cfg.PerWebhookRate)
		if cfg.PerWebhookBurst < 1 {
			cfg.PerWebhookBurst = 1
		}
	}
	if cfg.WindowCap > 0 && cfg.Window <= 0 {
		cfg.Window = time.Minute
	}

	return &Worker{
		service:  service,
		store:    store,
		log:      log,
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		inflight: make(map[string]struct{}),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Start launches the poll loop and worker pool.
func (w *Worker) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	jobs := make(chan domain.Delivery)

	for i := 0; i < w.cfg.Workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for {
				select {
				case <-runCtx.Done():
					return
				case d, ok := <-jobs:
					if !ok {
						return
					}
					w.attempt(runCtx, d)
					w.release(d.ID)
				}
			}
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer close(jobs)
		ticker := time.NewTicker(w.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				w.poll(runCtx, jobs)
			}
		}
	}()

	w.log.WithField("workers", w.cfg.Workers).Info("webhook delivery worker started")
}

// Stop halts polling and waits for in-flight attempts to finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.log.Info("webhook delivery worker stopped")
}

func (w *Worker) poll(ctx context.Context, jobs chan<- domain.Delivery) {
	due, err := w.store.ListDueDeliveries(ctx, time.Now().UTC(), defaultBatchSize)
	if err != nil {
		w.log.WithError(err).Warn("poll pending deliveries failed")
		return
	}

	for _, d := range due {
		if !w.claim(d.ID) {
			continue
		}
		select {
		case <-ctx.Done():
			w.release(d.ID)
			return
		case jobs <- d:
		}
	}
}

// claim takes the per-delivery lock so one delivery is attempted by at most
// one worker at a time.
func (w *Worker) claim(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inflight[id]; busy {
		return false
	}
	w.inflight[id] = struct{}{}
	return true
}

func (w *Worker) release(id string) {
	w.mu.Lock()
	delete(w.inflight, id)
	w.mu.Unlock()
}

func (w *Worker) limiter(webhookID string) *rate.Limiter {
	w.mu.Lock()
	defer w.mu.Unlock()
	lim, ok := w.limiters[webhookID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(w.cfg.PerWebhookRate), w.cfg.PerWebhookBurst)
		w.limiters[webhookID] = lim
	}
	return lim
}

func (w *Worker) attempt(ctx context.Context, d domain.Delivery) {
	wh, err := w.store.GetWebhook(ctx, d.WebhookID)
	if err != nil {
		// Webhook removed from under the delivery; finalize it.
		d.Status = domain.StatusCancelled
		d.ResponseSummary = "webhook no longer exists"
		if _, err := w.store.UpdateDelivery(ctx, d); err != nil {
			w.log.WithError(err).WithField("delivery_id", d.ID).Warn("finalize orphan delivery failed")
		}
		return
	}
	if !wh.Active {
		// Deactivated webhooks stop new deliveries; hold this one pending.
		return
	}

	if !w.limiter(wh.ID).Allow() {
		// Herd brake tripped; slide the attempt forward without consuming it.
		d.NextAttemptAt = time.Now().UTC().Add(time.Second)
		if _, err := w.store.UpdateDelivery(ctx, d); err != nil {
			w.log.WithError(err).WithField("delivery_id", d.ID).Warn("defer rate-limited delivery failed")
		}
		return
	}

	if w.cfg.WindowCap > 0 {
		since := time.Now().UTC().Add(-w.cfg.Window)
		if n, err := w.store.CountAttemptsSince(ctx, wh.ID, since); err == nil && n >= w.cfg.WindowCap {
			d.NextAttemptAt = time.Now().UTC().Add(w.cfg.Window / 2)
			if _, err := w.store.UpdateDelivery(ctx, d); err != nil {
				w.log.WithError(err).WithField("delivery_id", d.ID).Warn("defer window-capped delivery failed")
			}
			return
		}
	}

	policy := mergePolicy(wh.RetryPolicy, w.service.Defaults())
	attempt := d.Attempt + 1
	now := time.Now().UTC()

	status, summary, retryAfter := w.post(ctx, wh, d, attempt, now)

	d.Attempt = attempt
	d.RequestSummary = "POST " + wh.TargetURL
	d.ResponseSummary = summary

	entry := w.log.WithField("delivery_id", d.ID).
		WithField("webhook_id", wh.ID).
		WithField("event_id", d.EventID).
		WithField("attempt", attempt)

	switch {
	case status >= 200 && status < 300:
		d.Status = domain.StatusDelivered
		metrics.RecordWebhookAttempt("delivered")
		entry.Info("webhook delivered")
	case attempt >= policy.MaxAttempts:
		d.Status = domain.StatusExhausted
		metrics.RecordWebhookAttempt("exhausted")
		entry.Warn("webhook delivery exhausted")
	default:
		d.Status = domain.StatusPending
		delay := Backoff(policy, attempt)
		if retryAfter > 0 {
			delay = retryAfter
		}
		d.NextAttemptAt = now.Add(delay)
		metrics.RecordWebhookAttempt("retry")
		entry.WithField("next_attempt_in", delay.String()).Info("webhook delivery will retry")
	}

	if _, err := w.store.UpdateDelivery(ctx, d); err != nil {
		w.log.WithError(err).WithField("delivery_id", d.ID).Warn("record delivery attempt failed")
	}
}

// post performs one signed POST. It returns the HTTP status (0 on transport
// error), a truncated response summary, and any advisory Retry-After delay.
func (w *Worker) post(ctx context.Context, wh domain.Webhook, d domain.Delivery, attempt int, at time.Time) (int, string, time.Duration) {
	reqCtx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, wh.TargetURL, bytes.NewReader(d.Payload))
	if err != nil {
		return 0, "request build failed: " + err.Error(), 0
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Id", d.EventID)
	req.Header.Set("X-Event-Type", d.EventType)
	req.Header.Set("X-Signature", SignatureHeader([]byte(wh.Secret), d.Payload))
	req.Header.Set("X-Attempt", strconv.Itoa(attempt))
	req.Header.Set("X-Delivered-At", at.Format(time.RFC3339))

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, "transport error: " + truncate(err.Error()), 0
	}
	defer resp.Body.Close()

	buf := make([]byte, summaryLimit)
	n, _ := resp.Body.Read(buf)
	summary := resp.Status
	if n > 0 {
		summary += ": " + string(buf[:n])
	}

	var retryAfter time.Duration
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs >= 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
	}
	return resp.StatusCode, summary, retryAfter
}

// Backoff computes the retry delay for a failed attempt:
// min(cap, base * 2^(attempt-1)) scaled by a jitter factor in
// [1-jitter, 1+jitter].
func Backoff(policy domain.RetryPolicy, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := policy.Base << (attempt - 1)
	if delay > policy.Cap || delay <= 0 {
		delay = policy.Cap
	}
	if policy.Jitter > 0 {
		factor := 1 + (rand.Float64()*2-1)*policy.Jitter
		delay = time.Duration(float64(delay) * factor)
	}
	return delay
}

func truncate(s string) string {
	if len(s) > summaryLimit {
		return s[:summaryLimit]
	}
	return s
}
