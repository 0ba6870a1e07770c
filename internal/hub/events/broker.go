package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ataiva-software/vertex-sub003/internal/auth"
	domain "github.com/ataiva-software/vertex-sub003/internal/domain/event"
	webhookdomain "github.com/ataiva-software/vertex-sub003/internal/domain/webhook"
	"github.com/ataiva-software/vertex-sub003/internal/errors"
	"github.com/ataiva-software/vertex-sub003/internal/storage"
	"github.com/ataiva-software/vertex-sub003/pkg/logger"
	"github.com/ataiva-software/vertex-sub003/pkg/metrics"
)

const subscriptionQueueDepth = 64

// Handler consumes an event in-process.
type Handler func(ctx context.Context, ev domain.Event) error

// WebhookSink enqueues a delivery when a subscription's callback is a
// webhook.
type WebhookSink interface {
	Enqueue(ctx context.Context, webhookID string, ev domain.Event) (webhookdomain.Delivery, error)
}

// WebhookFanout additionally fans an event out to every registered webhook
// whose own pattern set matches. The webhook service implements it; sinks
// that do are invoked once per dispatched event.
type WebhookFanout interface {
	DispatchEvent(ctx context.Context, ev domain.Event) ([]string, error)
}

// Config tunes the broker.
type Config struct {
	QueueDepth int
	// PublishBlock bounds how long Publish blocks when the queue is full
	// before dropping the event.
	PublishBlock time.Duration
}

// Broker accepts published events, matches them against active subscriptions
// and delivers to callbacks. Delivery is FIFO per subscription from a single
// publisher's perspective; ordering across subscriptions is best-effort.
type Broker struct {
	store  storage.EventStore
	sink   WebhookSink
	fanout WebhookFanout
	log    *logger.Logger
	cfg    Config

	queue chan domain.Event

	mu       sync.Mutex
	handlers map[string]Handler
	runners  map[string]*subRunner
	taps     map[int]chan domain.Event
	nextTap  int
	dropped  uint64

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// subRunner serializes deliveries for one subscription.
type subRunner struct {
	sub   domain.Subscription
	queue chan domain.Event
	stop  chan struct{}
}

// NewBroker creates the event broker.
func NewBroker(store storage.EventStore, sink WebhookSink, cfg Config, log *logger.Logger) *Broker {
	if log == nil {
		log = logger.NewDefault("event-broker")
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 1024
	}
	if cfg.PublishBlock <= 0 {
		cfg.PublishBlock = 200 * time.Millisecond
	}
	b := &Broker{
		store:    store,
		sink:     sink,
		log:      log,
		cfg:      cfg,
		queue:    make(chan domain.Event, cfg.QueueDepth),
		handlers: make(map[string]Handler),
		runners:  make(map[string]*subRunner),
		taps:     make(map[int]chan domain.Event),
	}
	if f, ok := sink.(WebhookFanout); ok {
		b.fanout = f
	}
	return b
}

// RegisterHandler binds an in-process handler reference used by
// handler-callback subscriptions.
func (b *Broker) RegisterHandler(ref string, h Handler) {
	b.mu.Lock()
	b.handlers[ref] = h
	b.mu.Unlock()
}

// Start hydrates runners for persisted subscriptions and launches the
// dispatcher.
func (b *Broker) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	subs, err := b.store.ListActiveSubscriptions(ctx)
	if err != nil {
		cancel()
		return err
	}
	for _, sub := range subs {
		b.startRunner(runCtx, sub)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case ev := <-b.queue:
				b.dispatch(runCtx, ev)
			}
		}
	}()

	b.log.WithField("subscriptions", len(subs)).Info("event broker started")
	return nil
}

// Stop halts dispatch and all subscription runners.
func (b *Broker) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.mu.Lock()
	for id, runner := range b.runners {
		close(runner.stop)
		delete(b.runners, id)
	}
	b.mu.Unlock()
	b.wg.Wait()
	b.log.Info("event broker stopped")
}

// Publish accepts an event best-effort. When the broker queue is full the
// call blocks up to the configured bound, then drops the event and counts it.
func (b *Broker) Publish(ctx context.Context, ev domain.Event) (domain.Event, error) {
	if ev.Type == "" {
		return domain.Event{}, errors.MissingParameter("type")
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	// Persistence is best-effort; a storage hiccup must not fail the publish.
	if err := b.store.InsertEvent(ctx, ev); err != nil && !errors.IsConflict(err) {
		b.log.WithError(err).WithField("event_id", ev.ID).Warn("persist event failed")
	}
	metrics.RecordEventPublished()

	select {
	case b.queue <- ev:
		return ev, nil
	default:
	}

	timer := time.NewTimer(b.cfg.PublishBlock)
	defer timer.Stop()
	select {
	case b.queue <- ev:
		return ev, nil
	case <-ctx.Done():
		b.countDrop(ev)
		return ev, ctx.Err()
	case <-timer.C:
		b.countDrop(ev)
		return ev, nil
	}
}

func (b *Broker) countDrop(ev domain.Event) {
	b.mu.Lock()
	b.dropped++
	b.mu.Unlock()
	metrics.RecordEventDropped()
	b.log.WithField("event_id", ev.ID).WithField("type", ev.Type).Warn("event dropped: broker queue full")
}

// DroppedEvents reports how many events were dropped under backpressure.
func (b *Broker) DroppedEvents() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Subscribe registers a subscription and starts its runner.
func (b *Broker) Subscribe(ctx context.Context, actor auth.Context, sub domain.Subscription) (domain.Subscription, error) {
	if !ValidPattern(sub.Pattern) {
		return domain.Subscription{}, errors.InvalidInput("pattern", "pattern does not compile")
	}
	switch sub.Kind {
	case domain.CallbackWebhook:
		if sub.WebhookID == "" {
			return domain.Subscription{}, errors.MissingParameter("webhook_id")
		}
	case domain.CallbackHandler:
		b.mu.Lock()
		_, known := b.handlers[sub.HandlerRef]
		b.mu.Unlock()
		if !known {
			return domain.Subscription{}, errors.InvalidInput("handler_ref", "unknown handler: "+sub.HandlerRef)
		}
	default:
		return domain.Subscription{}, errors.InvalidInput("kind", "callback must be webhook or handler")
	}

	sub.OwnerID = actor.UserID
	sub.Active = true
	created, err := b.store.CreateSubscription(ctx, sub)
	if err != nil {
		return domain.Subscription{}, err
	}

	// The runner outlives the caller's request; Unsubscribe and Stop end it.
	b.startRunner(context.WithoutCancel(ctx), created)
	b.log.WithField("subscription_id", created.ID).WithField("pattern", created.Pattern).Info("subscription registered")
	return created, nil
}

// Unsubscribe removes a subscription and stops its runner.
func (b *Broker) Unsubscribe(ctx context.Context, actor auth.Context, id string) error {
	sub, err := b.store.GetSubscription(ctx, id)
	if err != nil {
		return err
	}
	if sub.OwnerID != actor.UserID && !actor.IsAdmin() {
		return errors.OwnershipRequired("subscription")
	}
	if err := b.store.DeleteSubscription(ctx, id); err != nil {
		return err
	}

	b.mu.Lock()
	if runner, ok := b.runners[id]; ok {
		close(runner.stop)
		delete(b.runners, id)
	}
	b.mu.Unlock()
	return nil
}

// Subscriptions lists the caller's subscriptions.
func (b *Broker) Subscriptions(ctx context.Context, actor auth.Context) ([]domain.Subscription, error) {
	return b.store.ListSubscriptions(ctx, actor.UserID)
}

// Tap returns a live feed of every dispatched event. Slow consumers miss
// events rather than blocking the broker. The returned func detaches the tap.
func (b *Broker) Tap() (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, subscriptionQueueDepth)
	b.mu.Lock()
	id := b.nextTap
	b.nextTap++
	b.taps[id] = ch
	b.mu.Unlock()

	// The channel is left open on detach: the dispatcher may still hold a
	// reference, and the sole reader is the caller that detached.
	return ch, func() {
		b.mu.Lock()
		delete(b.taps, id)
		b.mu.Unlock()
	}
}

func (b *Broker) startRunner(ctx context.Context, sub domain.Subscription) {
	runner := &subRunner{
		sub:   sub,
		queue: make(chan domain.Event, subscriptionQueueDepth),
		stop:  make(chan struct{}),
	}

	b.mu.Lock()
	if old, exists := b.runners[sub.ID]; exists {
		close(old.stop)
	}
	b.runners[sub.ID] = runner
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-runner.stop:
				return
			case ev := <-runner.queue:
				b.deliver(ctx, runner.sub, ev)
			}
		}
	}()
}

// dispatch matches one event against all runners and fans it out. Runs on
// the single dispatcher goroutine, so per-subscription order follows publish
// order.
func (b *Broker) dispatch(ctx context.Context, ev domain.Event) {
	payloadJSON := encodePayload(ev)

	b.mu.Lock()
	runners := make([]*subRunner, 0, len(b.runners))
	for _, r := range b.runners {
		runners = append(runners, r)
	}
	taps := make([]chan domain.Event, 0, len(b.taps))
	for _, tap := range b.taps {
		taps = append(taps, tap)
	}
	b.mu.Unlock()

	matched := 0
	for _, runner := range runners {
		if !Matches(runner.sub, ev, payloadJSON) {
			continue
		}
		matched++
		select {
		case runner.queue <- ev:
		default:
			metrics.RecordEventDropped()
			b.log.WithField("subscription_id", runner.sub.ID).
				WithField("event_id", ev.ID).
				Warn("subscription queue full; event skipped")
		}
	}
	metrics.RecordEventMatches(matched)

	for _, tap := range taps {
		select {
		case tap <- ev:
		default:
		}
	}

	// Webhooks match on their own pattern sets, independent of explicit
	// subscriptions.
	if b.fanout != nil {
		if _, err := b.fanout.DispatchEvent(ctx, ev); err != nil {
			b.log.WithError(err).WithField("event_id", ev.ID).Warn("webhook fan-out failed")
		}
	}
}

// deliver invokes one subscription callback. Handler panics and errors are
// logged and counted; they never propagate to the publisher.
func (b *Broker) deliver(ctx context.Context, sub domain.Subscription, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithField("subscription_id", sub.ID).
				WithField("event_id", ev.ID).
				Errorf("subscription handler panicked: %v", r)
		}
	}()

	switch sub.Kind {
	case domain.CallbackWebhook:
		if b.sink == nil {
			return
		}
		if _, err := b.sink.Enqueue(ctx, sub.WebhookID, ev); err != nil {
			b.log.WithError(err).
				WithField("subscription_id", sub.ID).
				WithField("webhook_id", sub.WebhookID).
				Warn("enqueue webhook delivery failed")
		}
	case domain.CallbackHandler:
		b.mu.Lock()
		handler := b.handlers[sub.HandlerRef]
		b.mu.Unlock()
		if handler == nil {
			return
		}
		if err := handler(ctx, ev); err != nil {
			b.log.WithError(err).
				WithField("subscription_id", sub.ID).
				WithField("event_id", ev.ID).
				Warn("subscription handler failed")
		}
	}
}
