package webhook

import (
	"context"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ataiva-software/vertex-sub003/internal/auth"
	domainevent "github.com/ataiva-software/vertex-sub003/internal/domain/event"
	domain "github.com/ataiva-software/vertex-sub003/internal/domain/webhook"
	"github.com/ataiva-software/vertex-sub003/internal/errors"
	"github.com/ataiva-software/vertex-sub003/internal/storage"
	"github.com/ataiva-software/vertex-sub003/pkg/logger"
)

// Service owns webhook registration and delivery bookkeeping. The Worker
// (worker.go) drains pending deliveries.
type Service struct {
	store storage.WebhookStore
	log   *logger.Logger

	defaults domain.RetryPolicy
}

// NewService creates the webhook service.
func NewService(store storage.WebhookStore, defaults domain.RetryPolicy, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("webhooks")
	}
	if defaults.Base <= 0 {
		defaults.Base = time.Second
	}
	if defaults.Cap <= 0 {
		defaults.Cap = 60 * time.Second
	}
	if defaults.MaxAttempts <= 0 {
		defaults.MaxAttempts = 3
	}
	if defaults.Jitter == 0 {
		defaults.Jitter = 0.2
	}
	return &Service{store: store, log: log, defaults: defaults}
}

// Defaults returns the service-wide retry policy.
func (s *Service) Defaults() domain.RetryPolicy { return s.defaults }

// CreateInput carries webhook registration fields.
type CreateInput struct {
	Name        string
	TargetURL   string
	Patterns    []string
	Secret      string
	RetryPolicy *domain.RetryPolicy
}

// Create registers a webhook after validating its target URL and patterns.
func (s *Service) Create(ctx context.Context, actor auth.Context, in CreateInput) (domain.Webhook, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Webhook{}, errors.MissingParameter("name")
	}
	if err := validateTarget(in.TargetURL); err != nil {
		return domain.Webhook{}, err
	}
	if len(in.Patterns) == 0 {
		return domain.Webhook{}, errors.InvalidInput("events", "pattern set cannot be empty")
	}
	for _, p := range in.Patterns {
		if !validPattern(p) {
			return domain.Webhook{}, errors.InvalidInput("events", "pattern does not compile: "+p)
		}
	}

	wh := domain.Webhook{
		OwnerID:       actor.UserID,
		Name:          name,
		TargetURL:     in.TargetURL,
		EventPatterns: in.Patterns,
		Secret:        in.Secret,
		Active:        true,
		RetryPolicy:   s.defaults,
	}
	if in.RetryPolicy != nil {
		wh.RetryPolicy = mergePolicy(*in.RetryPolicy, s.defaults)
	}

	created, err := s.store.CreateWebhook(ctx, wh)
	if err != nil {
		return domain.Webhook{}, err
	}
	s.log.WithField("webhook_id", created.ID).WithField("owner", actor.UserID).Info("webhook registered")
	return created, nil
}

// UpdateInput carries partial webhook updates.
type UpdateInput struct {
	Name      *string
	TargetURL *string
	Patterns  []string
	Secret    *string
	Active    *bool
}

// Update applies a partial update to an owned webhook.
func (s *Service) Update(ctx context.Context, actor auth.Context, id string, in UpdateInput) (domain.Webhook, error) {
	wh, err := s.getOwned(ctx, actor, id)
	if err != nil {
		return domain.Webhook{}, err
	}

	if in.Name != nil {
		trimmed := strings.TrimSpace(*in.Name)
		if trimmed == "" {
			return domain.Webhook{}, errors.InvalidInput("name", "cannot be empty")
		}
		wh.Name = trimmed
	}
	if in.TargetURL != nil {
		if err := validateTarget(*in.TargetURL); err != nil {
			return domain.Webhook{}, err
		}
		wh.TargetURL = *in.TargetURL
	}
	if in.Patterns != nil {
		if len(in.Patterns) == 0 {
			return domain.Webhook{}, errors.InvalidInput("events", "pattern set cannot be empty")
		}
		for _, p := range in.Patterns {
			if !validPattern(p) {
				return domain.Webhook{}, errors.InvalidInput("events", "pattern does not compile: "+p)
			}
		}
		wh.EventPatterns = in.Patterns
	}
	if in.Secret != nil {
		wh.Secret = *in.Secret
	}
	if in.Active != nil {
		wh.Active = *in.Active
	}

	updated, err := s.store.UpdateWebhook(ctx, wh)
	if err != nil {
		return domain.Webhook{}, err
	}
	s.log.WithField("webhook_id", id).Info("webhook updated")
	return updated, nil
}

// Get fetches an owned webhook.
func (s *Service) Get(ctx context.Context, actor auth.Context, id string) (domain.Webhook, error) {
	return s.getOwned(ctx, actor, id)
}

// List lists the caller's webhooks.
func (s *Service) List(ctx context.Context, actor auth.Context) ([]domain.Webhook, error) {
	return s.store.ListWebhooks(ctx, actor.UserID)
}

// Delete removes a webhook. Delivery history is preserved.
func (s *Service) Delete(ctx context.Context, actor auth.Context, id string) error {
	if _, err := s.getOwned(ctx, actor, id); err != nil {
		return err
	}
	if err := s.store.DeleteWebhook(ctx, id); err != nil {
		return err
	}
	s.log.WithField("webhook_id", id).Info("webhook deleted")
	return nil
}

// DispatchEvent fans an event out to every active webhook whose pattern set
// matches, creating one pending delivery each. Returns the delivery ids.
func (s *Service) DispatchEvent(ctx context.Context, ev domainevent.Event) ([]string, error) {
	hooks, err := s.store.ListActiveWebhooks(ctx)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, wh := range hooks {
		if !MatchesAny(wh.EventPatterns, ev.Type) {
			continue
		}
		d, err := s.Enqueue(ctx, wh.ID, ev)
		if err != nil {
			s.log.WithError(err).WithField("webhook_id", wh.ID).Warn("enqueue delivery failed")
			continue
		}
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// Enqueue creates a pending delivery of an event for one webhook.
func (s *Service) Enqueue(ctx context.Context, webhookID string, ev domainevent.Event) (domain.Delivery, error) {
	canonical, err := CanonicalizeValue(ev.Payload)
	if err != nil {
		return domain.Delivery{}, errors.InvalidInput("payload", err.Error())
	}

	d := domain.Delivery{
		WebhookID:     webhookID,
		EventID:       ev.ID,
		EventType:     ev.Type,
		Payload:       canonical,
		Attempt:       0,
		Status:        domain.StatusPending,
		NextAttemptAt: time.Now().UTC(),
	}
	return s.store.CreateDelivery(ctx, d)
}

// Deliveries returns the paginated delivery history of an owned webhook.
func (s *Service) Deliveries(ctx context.Context, actor auth.Context, webhookID string, status domain.DeliveryStatus, offset, limit int) ([]domain.Delivery, error) {
	if _, err := s.getOwned(ctx, actor, webhookID); err != nil {
		return nil, err
	}
	return s.store.ListDeliveries(ctx, webhookID, status, offset, limit)
}

// Cancel marks a pending delivery cancelled. Terminal deliveries are
// immutable.
func (s *Service) Cancel(ctx context.Context, actor auth.Context, deliveryID string) (domain.Delivery, error) {
	d, err := s.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return domain.Delivery{}, err
	}
	if _, err := s.getOwned(ctx, actor, d.WebhookID); err != nil {
		return domain.Delivery{}, err
	}
	if d.Status.Terminal() {
		return domain.Delivery{}, errors.Conflict("delivery is terminal")
	}

	d.Status = domain.StatusCancelled
	return s.store.UpdateDelivery(ctx, d)
}

// Replay clones a terminal delivery into a fresh pending one with a new id.
// The event id is preserved so receivers can deduplicate.
func (s *Service) Replay(ctx context.Context, actor auth.Context, deliveryID string) (domain.Delivery, error) {
	d, err := s.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return domain.Delivery{}, err
	}
	if _, err := s.getOwned(ctx, actor, d.WebhookID); err != nil {
		return domain.Delivery{}, err
	}
	if !d.Status.Terminal() {
		return domain.Delivery{}, errors.Conflict("delivery is still in flight")
	}

	clone := domain.Delivery{
		WebhookID:     d.WebhookID,
		EventID:       d.EventID,
		EventType:     d.EventType,
		Payload:       d.Payload,
		Attempt:       0,
		Status:        domain.StatusPending,
		NextAttemptAt: time.Now().UTC(),
	}
	return s.store.CreateDelivery(ctx, clone)
}

func (s *Service) getOwned(ctx context.Context, actor auth.Context, id string) (domain.Webhook, error) {
	wh, err := s.store.GetWebhook(ctx, id)
	if err != nil {
		return domain.Webhook{}, err
	}
	if wh.OwnerID != actor.UserID && !actor.IsAdmin() {
		return domain.Webhook{}, errors.OwnershipRequired("webhook")
	}
	return wh, nil
}

func validateTarget(target string) error {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.InvalidInput("target_url", "must be an absolute http(s) URL")
	}
	return nil
}

// validPattern reports whether a type glob compiles.
func validPattern(pattern string) bool {
	if strings.TrimSpace(pattern) == "" {
		return false
	}
	_, err := path.Match(pattern, "probe")
	return err == nil
}

// Matches reports whether a type glob matches an event type.
func Matches(pattern, eventType string) bool {
	ok, err := path.Match(pattern, eventType)
	return err == nil && ok
}

// MatchesAny reports whether any pattern in the set matches the event type.
func MatchesAny(patterns []string, eventType string) bool {
	for _, p := range patterns {
		if Matches(p, eventType) {
			return true
		}
	}
	return false
}

func mergePolicy(p, defaults domain.RetryPolicy) domain.RetryPolicy {
	if p.Base <= 0 {
		p.Base = defaults.Base
	}
	if p.Cap <= 0 {
		p.Cap = defaults.Cap
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaults.MaxAttempts
	}
	if p.Jitter == 0 {
		p.Jitter = defaults.Jitter
	}
	return p
}
