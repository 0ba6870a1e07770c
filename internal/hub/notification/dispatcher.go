package notification

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	domain "github.com/ataiva-software/vertex-sub003/internal/domain/notification"
	"github.com/ataiva-software/vertex-sub003/internal/errors"
	"github.com/ataiva-software/vertex-sub003/internal/storage"
	"github.com/ataiva-software/vertex-sub003/pkg/logger"
	"github.com/ataiva-software/vertex-sub003/pkg/metrics"
)

// DispatcherConfig tunes the notification dispatch pools.
type DispatcherConfig struct {
	WorkersPerChannel int
	PollInterval      time.Duration
	ChannelTimeout    time.Duration
	RetryCap          int
	RetryBase         time.Duration
	// ChannelRate is the fair-share send rate per channel; urgent deliveries
	// bypass it.
	ChannelRate  float64
	ChannelBurst int
}

// Dispatcher drains due deliveries and fans them through channel transports.
type Dispatcher struct {
	service    *Service
	store      storage.NotificationStore
	transports Transports
	log        *logger.Logger
	cfg        DispatcherConfig

	limiters map[domain.Channel]*rate.Limiter

	mu       sync.Mutex
	inflight map[string]struct{}

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewDispatcher creates the dispatcher.
func NewDispatcher(service *Service, store storage.NotificationStore, transports Transports, cfg DispatcherConfig, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefault("notification-dispatcher")
	}
	if cfg.WorkersPerChannel <= 0 {
		cfg.WorkersPerChannel = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if cfg.ChannelTimeout <= 0 {
		cfg.ChannelTimeout = 15 * time.Second
	}
	if cfg.RetryCap <= 0 {
		cfg.RetryCap = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.ChannelRate <= 0 {
		cfg.ChannelRate = 20
	}
	if cfg.ChannelBurst <= 0 {
		cfg.ChannelBurst = int(cfg.ChannelRate)
		if cfg.ChannelBurst < 1 {
			cfg.ChannelBurst = 1
		}
	}

	limiters := make(map[domain.Channel]*rate.Limiter)
	for _, ch := range domain.KnownChannels() {
		limiters[ch] = rate.NewLimiter(rate.Limit(cfg.ChannelRate), cfg.ChannelBurst)
	}

	return &Dispatcher{
		service:    service,
		store:      store,
		transports: transports,
		log:        log,
		cfg:        cfg,
		limiters:   limiters,
		inflight:   make(map[string]struct{}),
	}
}

// Start launches the per-channel worker pools and the poll loop.
func (d *Dispatcher) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	queues := make(map[domain.Channel]chan domain.Delivery)
	for _, ch := range domain.KnownChannels() {
		queue := make(chan domain.Delivery)
		queues[ch] = queue
		for i := 0; i < d.cfg.WorkersPerChannel; i++ {
			d.wg.Add(1)
			go func(ch domain.Channel, queue <-chan domain.Delivery) {
				defer d.wg.Done()
				for {
					select {
					case <-runCtx.Done():
						return
					case delivery, ok := <-queue:
						if !ok {
							return
						}
						d.process(runCtx, delivery)
						d.release(delivery.ID)
					}
				}
			}(ch, queue)
		}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				d.poll(runCtx, queues)
			}
		}
	}()

	d.log.WithField("workers_per_channel", d.cfg.WorkersPerChannel).Info("notification dispatcher started")
}

// Stop halts polling and waits for in-flight sends.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	d.log.Info("notification dispatcher stopped")
}

func (d *Dispatcher) poll(ctx context.Context, queues map[domain.Channel]chan domain.Delivery) {
	due, err := d.store.ListDueNotifications(ctx, time.Now().UTC(), 100)
	if err != nil {
		d.log.WithError(err).Warn("poll due notifications failed")
		return
	}

	for _, delivery := range due {
		queue, ok := queues[delivery.Channel]
		if !ok {
			continue
		}
		if !d.claim(delivery.ID) {
			continue
		}
		select {
		case <-ctx.Done():
			d.release(delivery.ID)
			return
		case queue <- delivery:
		}
	}
}

func (d *Dispatcher) claim(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inflight[id]; busy {
		return false
	}
	d.inflight[id] = struct{}{}
	return true
}

func (d *Dispatcher) release(id string) {
	d.mu.Lock()
	delete(d.inflight, id)
	d.mu.Unlock()
}

// process resolves one delivery to a terminal state: every recipient is sent
// or has exhausted the channel retry cap.
func (d *Dispatcher) process(ctx context.Context, delivery domain.Delivery) {
	transport, ok := d.transports[delivery.Channel]
	if !ok {
		delivery.Status = domain.StatusFailed
		delivery.Results = failAll(delivery.Recipients, "no transport configured for channel")
		if _, err := d.store.UpdateNotification(ctx, delivery); err != nil {
			d.log.WithError(err).WithField("delivery_id", delivery.ID).Warn("record failed delivery")
		}
		return
	}

	// Re-read under the claim so a cancel that landed between poll and claim
	// is honored.
	current, err := d.store.GetNotification(ctx, delivery.ID)
	if err != nil || current.Status != domain.StatusQueued {
		return
	}
	current.Status = domain.StatusSending
	current, err = d.store.UpdateNotification(ctx, current)
	if err != nil {
		d.log.WithError(err).WithField("delivery_id", current.ID).Warn("mark sending failed")
		return
	}

	results := make([]domain.RecipientResult, 0, len(current.Recipients))
	for _, recipient := range current.Recipients {
		result := d.sendOne(ctx, transport, current, recipient)
		results = append(results, result)

		status := "failed"
		if result.Sent {
			status = "sent"
		}
		metrics.RecordNotificationSend(string(current.Channel), status)
	}

	current.Results = results
	current.Status = domain.Resolve(results)
	if _, err := d.store.UpdateNotification(ctx, current); err != nil {
		d.log.WithError(err).WithField("delivery_id", current.ID).Warn("record delivery outcome failed")
	}

	d.log.WithField("delivery_id", current.ID).
		WithField("channel", string(current.Channel)).
		WithField("status", string(current.Status)).
		Info("notification processed")
}

// sendOne delivers to a single recipient, retrying transient failures with
// exponential backoff up to the channel cap. Urgent deliveries skip the
// fair-share limiter.
func (d *Dispatcher) sendOne(ctx context.Context, transport Transport, delivery domain.Delivery, recipient string) domain.RecipientResult {
	result := domain.RecipientResult{Recipient: recipient}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.cfg.RetryBase
	policy.RandomizationFactor = 0.2
	policy.Multiplier = 2

	for attempt := 1; attempt <= d.cfg.RetryCap; attempt++ {
		result.Attempts = attempt

		if delivery.Priority != domain.PriorityUrgent {
			if err := d.limiters[delivery.Channel].Wait(ctx); err != nil {
				result.Error = err.Error()
				result.At = time.Now().UTC()
				return result
			}
		}

		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.ChannelTimeout)
		err := transport.Send(sendCtx, recipient, delivery.Subject, delivery.Body)
		cancel()

		result.At = time.Now().UTC()
		if err == nil {
			result.Sent = true
			result.Error = ""
			return result
		}
		result.Error = err.Error()

		if !errors.IsRetryable(err) || attempt == d.cfg.RetryCap {
			return result
		}

		delay := policy.NextBackOff()
		if advisory, ok := errors.AdvisoryRetryAfter(err); ok {
			delay = advisory
		}
		select {
		case <-ctx.Done():
			return result
		case <-time.After(delay):
		}
	}
	return result
}

func failAll(recipients []string, reason string) []domain.RecipientResult {
	now := time.Now().UTC()
	out := make([]domain.RecipientResult, 0, len(recipients))
	for _, r := range recipients {
		out = append(out, domain.RecipientResult{Recipient: r, Attempts: 0, Error: reason, At: now})
	}
	return out
}
