// Package memory provides a thread-safe in-memory implementation of the
// storage interfaces. It backs tests and development mode and deliberately
// keeps the implementation simple.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ataiva-software/vertex-sub003/internal/domain/event"
	"github.com/ataiva-software/vertex-sub003/internal/domain/integration"
	"github.com/ataiva-software/vertex-sub003/internal/domain/notification"
	"github.com/ataiva-software/vertex-sub003/internal/domain/report"
	"github.com/ataiva-software/vertex-sub003/internal/domain/webhook"
	"github.com/ataiva-software/vertex-sub003/internal/errors"
)

// Store is the in-memory persistence layer.
type Store struct {
	mu sync.RWMutex

	integrations  map[string]integration.Integration
	webhooks      map[string]webhook.Webhook
	deliveries    map[string]webhook.Delivery
	templates     map[string]notification.Template
	notifications map[string]notification.Delivery
	events        map[string]event.Event
	eventOrder    []string
	subscriptions map[string]event.Subscription
	reportTmpls   map[string]report.Template
	reports       map[string]report.Report
	executions    map[string]report.Execution
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		integrations:  make(map[string]integration.Integration),
		webhooks:      make(map[string]webhook.Webhook),
		deliveries:    make(map[string]webhook.Delivery),
		templates:     make(map[string]notification.Template),
		notifications: make(map[string]notification.Delivery),
		events:        make(map[string]event.Event),
		subscriptions: make(map[string]event.Subscription),
		reportTmpls:   make(map[string]report.Template),
		reports:       make(map[string]report.Report),
		executions:    make(map[string]report.Execution),
	}
}

// Ping implements storage.Store.
func (s *Store) Ping(context.Context) error { return nil }

func newID() string { return uuid.New().String() }

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func copyStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Integration store ----------------------------------------------------------

func (s *Store) CreateIntegration(_ context.Context, in integration.Integration) (integration.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.integrations {
		if existing.OwnerID == in.OwnerID && strings.EqualFold(existing.Name, in.Name) {
			return integration.Integration{}, errors.AlreadyExists("integration", in.Name)
		}
	}

	if in.ID == "" {
		in.ID = newID()
	}
	now := time.Now().UTC()
	in.CreatedAt = now
	in.UpdatedAt = now
	in.Config = copyStringMap(in.Config)
	in.Tags = copyStrings(in.Tags)

	s.integrations[in.ID] = in
	return in, nil
}

func (s *Store) UpdateIntegration(_ context.Context, in integration.Integration) (integration.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.integrations[in.ID]
	if !ok {
		return integration.Integration{}, errors.NotFound("integration", in.ID)
	}
	for _, other := range s.integrations {
		if other.ID != in.ID && other.OwnerID == in.OwnerID && strings.EqualFold(other.Name, in.Name) {
			return integration.Integration{}, errors.AlreadyExists("integration", in.Name)
		}
	}

	in.CreatedAt = original.CreatedAt
	in.UpdatedAt = time.Now().UTC()
	in.Config = copyStringMap(in.Config)
	in.Tags = copyStrings(in.Tags)

	s.integrations[in.ID] = in
	return in, nil
}

func (s *Store) GetIntegration(_ context.Context, id string) (integration.Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	in, ok := s.integrations[id]
	if !ok {
		return integration.Integration{}, errors.NotFound("integration", id)
	}
	in.Config = copyStringMap(in.Config)
	in.Tags = copyStrings(in.Tags)
	return in, nil
}

func (s *Store) ListIntegrations(_ context.Context, ownerID string) ([]integration.Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]integration.Integration, 0)
	for _, in := range s.integrations {
		if ownerID != "" && in.OwnerID != ownerID {
			continue
		}
		in.Config = copyStringMap(in.Config)
		in.Tags = copyStrings(in.Tags)
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteIntegration(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.integrations[id]; !ok {
		return errors.NotFound("integration", id)
	}
	delete(s.integrations, id)
	return nil
}

// Webhook store ---------------------------------------------------------------

func (s *Store) CreateWebhook(_ context.Context, wh webhook.Webhook) (webhook.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.webhooks {
		if existing.OwnerID == wh.OwnerID && strings.EqualFold(existing.Name, wh.Name) {
			return webhook.Webhook{}, errors.AlreadyExists("webhook", wh.Name)
		}
	}

	if wh.ID == "" {
		wh.ID = newID()
	}
	now := time.Now().UTC()
	wh.CreatedAt = now
	wh.UpdatedAt = now
	wh.EventPatterns = copyStrings(wh.EventPatterns)

	s.webhooks[wh.ID] = wh
	return wh, nil
}

func (s *Store) UpdateWebhook(_ context.Context, wh webhook.Webhook) (webhook.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.webhooks[wh.ID]
	if !ok {
		return webhook.Webhook{}, errors.NotFound("webhook", wh.ID)
	}
	for _, other := range s.webhooks {
		if other.ID != wh.ID && other.OwnerID == wh.OwnerID && strings.EqualFold(other.Name, wh.Name) {
			return webhook.Webhook{}, errors.AlreadyExists("webhook", wh.Name)
		}
	}

	wh.CreatedAt = original.CreatedAt
	wh.UpdatedAt = time.Now().UTC()
	wh.EventPatterns = copyStrings(wh.EventPatterns)

	s.webhooks[wh.ID] = wh
	return wh, nil
}

func (s *Store) GetWebhook(_ context.Context, id string) (webhook.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wh, ok := s.webhooks[id]
	if !ok {
		return webhook.Webhook{}, errors.NotFound("webhook", id)
	}
	wh.EventPatterns = copyStrings(wh.EventPatterns)
	return wh, nil
}

func (s *Store) ListWebhooks(_ context.Context, ownerID string) ([]webhook.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]webhook.Webhook, 0)
	for _, wh := range s.webhooks {
		if ownerID != "" && wh.OwnerID != ownerID {
			continue
		}
		wh.EventPatterns = copyStrings(wh.EventPatterns)
		out = append(out, wh)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListActiveWebhooks(_ context.Context) ([]webhook.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]webhook.Webhook, 0)
	for _, wh := range s.webhooks {
		if !wh.Active {
			continue
		}
		wh.EventPatterns = copyStrings(wh.EventPatterns)
		out = append(out, wh)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteWebhook(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.webhooks[id]; !ok {
		return errors.NotFound("webhook", id)
	}
	delete(s.webhooks, id)
	return nil
}

func (s *Store) CreateDelivery(_ context.Context, d webhook.Delivery) (webhook.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == "" {
		d.ID = newID()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	s.deliveries[d.ID] = d
	return d, nil
}

func (s *Store) UpdateDelivery(_ context.Context, d webhook.Delivery) (webhook.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.deliveries[d.ID]
	if !ok {
		return webhook.Delivery{}, errors.NotFound("delivery", d.ID)
	}
	if original.Status.Terminal() {
		return webhook.Delivery{}, errors.Conflict("delivery is terminal")
	}

	d.CreatedAt = original.CreatedAt
	d.UpdatedAt = time.Now().UTC()

	s.deliveries[d.ID] = d
	return d, nil
}

func (s *Store) GetDelivery(_ context.Context, id string) (webhook.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deliveries[id]
	if !ok {
		return webhook.Delivery{}, errors.NotFound("delivery", id)
	}
	return d, nil
}

func (s *Store) ListDeliveries(_ context.Context, webhookID string, status webhook.DeliveryStatus, offset, limit int) ([]webhook.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]webhook.Delivery, 0)
	for _, d := range s.deliveries {
		if webhookID != "" && d.WebhookID != webhookID {
			continue
		}
		if status != "" && d.Status != status {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if offset >= len(out) {
		return []webhook.Delivery{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListDueDeliveries(_ context.Context, before time.Time, limit int) ([]webhook.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]webhook.Delivery, 0)
	for _, d := range s.deliveries {
		if d.Status != webhook.StatusPending {
			continue
		}
		if d.NextAttemptAt.After(before) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextAttemptAt.Before(out[j].NextAttemptAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountAttemptsSince(_ context.Context, webhookID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, d := range s.deliveries {
		if d.WebhookID != webhookID {
			continue
		}
		if d.UpdatedAt.Before(since) {
			continue
		}
		count += d.Attempt
	}
	return count, nil
}

// Notification store ----------------------------------------------------------

func (s *Store) CreateTemplate(_ context.Context, t notification.Template) (notification.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.templates {
		if existing.OwnerID == t.OwnerID && strings.EqualFold(existing.Name, t.Name) {
			return notification.Template{}, errors.AlreadyExists("template", t.Name)
		}
	}

	if t.ID == "" {
		t.ID = newID()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.RequiredParams = copyStrings(t.RequiredParams)

	s.templates[t.ID] = t
	return t, nil
}

func (s *Store) UpdateTemplate(_ context.Context, t notification.Template) (notification.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.templates[t.ID]
	if !ok {
		return notification.Template{}, errors.NotFound("template", t.ID)
	}
	for _, other := range s.templates {
		if other.ID != t.ID && other.OwnerID == t.OwnerID && strings.EqualFold(other.Name, t.Name) {
			return notification.Template{}, errors.AlreadyExists("template", t.Name)
		}
	}

	t.CreatedAt = original.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	t.RequiredParams = copyStrings(t.RequiredParams)

	s.templates[t.ID] = t
	return t, nil
}

func (s *Store) GetTemplate(_ context.Context, id string) (notification.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[id]
	if !ok {
		return notification.Template{}, errors.NotFound("template", id)
	}
	t.RequiredParams = copyStrings(t.RequiredParams)
	return t, nil
}

func (s *Store) ListTemplates(_ context.Context, ownerID string) ([]notification.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]notification.Template, 0)
	for _, t := range s.templates {
		if ownerID != "" && t.OwnerID != ownerID {
			continue
		}
		t.RequiredParams = copyStrings(t.RequiredParams)
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteTemplate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[id]; !ok {
		return errors.NotFound("template", id)
	}
	delete(s.templates, id)
	return nil
}

func (s *Store) CreateNotification(_ context.Context, d notification.Delivery) (notification.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == "" {
		d.ID = newID()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	d.Recipients = copyStrings(d.Recipients)
	d.Params = copyStringMap(d.Params)

	s.notifications[d.ID] = d
	return d, nil
}

func (s *Store) UpdateNotification(_ context.Context, d notification.Delivery) (notification.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.notifications[d.ID]
	if !ok {
		return notification.Delivery{}, errors.NotFound("notification", d.ID)
	}
	if original.Status.Terminal() {
		return notification.Delivery{}, errors.Conflict("notification delivery is terminal")
	}

	d.CreatedAt = original.CreatedAt
	d.UpdatedAt = time.Now().UTC()
	d.Recipients = copyStrings(d.Recipients)
	d.Params = copyStringMap(d.Params)

	s.notifications[d.ID] = d
	return d, nil
}

func (s *Store) GetNotification(_ context.Context, id string) (notification.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.notifications[id]
	if !ok {
		return notification.Delivery{}, errors.NotFound("notification", id)
	}
	return d, nil
}

func (s *Store) ListNotifications(_ context.Context, ownerID string, offset, limit int) ([]notification.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]notification.Delivery, 0)
	for _, d := range s.notifications {
		if ownerID != "" && d.OwnerID != ownerID {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if offset >= len(out) {
		return []notification.Delivery{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListDueNotifications(_ context.Context, before time.Time, limit int) ([]notification.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]notification.Delivery, 0)
	for _, d := range s.notifications {
		if d.Status != notification.StatusQueued {
			continue
		}
		if d.ScheduledAt.After(before) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Event store -----------------------------------------------------------------

func (s *Store) InsertEvent(_ context.Context, ev event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID == "" {
		return errors.InvalidInput("id", "event id required")
	}
	if _, exists := s.events[ev.ID]; exists {
		return errors.AlreadyExists("event", ev.ID)
	}
	ev.Payload = copyAnyMap(ev.Payload)
	s.events[ev.ID] = ev
	s.eventOrder = append(s.eventOrder, ev.ID)
	return nil
}

func (s *Store) GetEvent(_ context.Context, id string) (event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[id]
	if !ok {
		return event.Event{}, errors.NotFound("event", id)
	}
	ev.Payload = copyAnyMap(ev.Payload)
	return ev, nil
}

func (s *Store) ListEventsByTimeRange(_ context.Context, start, end time.Time, limit int) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]event.Event, 0)
	for _, id := range s.eventOrder {
		ev := s.events[id]
		if ev.Timestamp.Before(start) || ev.Timestamp.After(end) {
			continue
		}
		ev.Payload = copyAnyMap(ev.Payload)
		out = append(out, ev)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CreateSubscription(_ context.Context, sub event.Subscription) (event.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.ID == "" {
		sub.ID = newID()
	}
	sub.CreatedAt = time.Now().UTC()
	sub.Predicates = append([]event.Predicate(nil), sub.Predicates...)

	s.subscriptions[sub.ID] = sub
	return sub, nil
}

func (s *Store) GetSubscription(_ context.Context, id string) (event.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return event.Subscription{}, errors.NotFound("subscription", id)
	}
	return sub, nil
}

func (s *Store) ListSubscriptions(_ context.Context, ownerID string) ([]event.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]event.Subscription, 0)
	for _, sub := range s.subscriptions {
		if ownerID != "" && sub.OwnerID != ownerID {
			continue
		}
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListActiveSubscriptions(_ context.Context) ([]event.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]event.Subscription, 0)
	for _, sub := range s.subscriptions {
		if !sub.Active {
			continue
		}
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteSubscription(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscriptions[id]; !ok {
		return errors.NotFound("subscription", id)
	}
	delete(s.subscriptions, id)
	return nil
}

// Report store ----------------------------------------------------------------

func (s *Store) CreateReportTemplate(_ context.Context, t report.Template) (report.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.reportTmpls {
		if existing.OwnerID == t.OwnerID && strings.EqualFold(existing.Name, t.Name) {
			return report.Template{}, errors.AlreadyExists("report template", t.Name)
		}
	}

	if t.ID == "" {
		t.ID = newID()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.RequiredParams = copyStrings(t.RequiredParams)
	t.SupportedFormats = append([]report.Format(nil), t.SupportedFormats...)

	s.reportTmpls[t.ID] = t
	return t, nil
}

func (s *Store) UpdateReportTemplate(_ context.Context, t report.Template) (report.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.reportTmpls[t.ID]
	if !ok {
		return report.Template{}, errors.NotFound("report template", t.ID)
	}
	for _, other := range s.reportTmpls {
		if other.ID != t.ID && other.OwnerID == t.OwnerID && strings.EqualFold(other.Name, t.Name) {
			return report.Template{}, errors.AlreadyExists("report template", t.Name)
		}
	}

	t.CreatedAt = original.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	t.RequiredParams = copyStrings(t.RequiredParams)
	t.SupportedFormats = append([]report.Format(nil), t.SupportedFormats...)

	s.reportTmpls[t.ID] = t
	return t, nil
}

func (s *Store) GetReportTemplate(_ context.Context, id string) (report.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.reportTmpls[id]
	if !ok {
		return report.Template{}, errors.NotFound("report template", id)
	}
	return t, nil
}

func (s *Store) ListReportTemplates(_ context.Context, ownerID string) ([]report.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]report.Template, 0)
	for _, t := range s.reportTmpls {
		if ownerID != "" && t.OwnerID != ownerID {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteReportTemplate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reportTmpls[id]; !ok {
		return errors.NotFound("report template", id)
	}
	delete(s.reportTmpls, id)
	return nil
}

func (s *Store) CreateReport(_ context.Context, r report.Report) (report.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.reports {
		if existing.OwnerID == r.OwnerID && strings.EqualFold(existing.Name, r.Name) {
			return report.Report{}, errors.AlreadyExists("report", r.Name)
		}
	}

	if r.ID == "" {
		r.ID = newID()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	r.Params = copyStringMap(r.Params)
	r.Recipients = copyStrings(r.Recipients)

	s.reports[r.ID] = r
	return r, nil
}

func (s *Store) UpdateReport(_ context.Context, r report.Report) (report.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.reports[r.ID]
	if !ok {
		return report.Report{}, errors.NotFound("report", r.ID)
	}
	for _, other := range s.reports {
		if other.ID != r.ID && other.OwnerID == r.OwnerID && strings.EqualFold(other.Name, r.Name) {
			return report.Report{}, errors.AlreadyExists("report", r.Name)
		}
	}

	r.CreatedAt = original.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	r.Params = copyStringMap(r.Params)
	r.Recipients = copyStrings(r.Recipients)

	s.reports[r.ID] = r
	return r, nil
}

func (s *Store) GetReport(_ context.Context, id string) (report.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reports[id]
	if !ok {
		return report.Report{}, errors.NotFound("report", id)
	}
	r.Params = copyStringMap(r.Params)
	r.Recipients = copyStrings(r.Recipients)
	return r, nil
}

func (s *Store) ListReports(_ context.Context, ownerID string) ([]report.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]report.Report, 0)
	for _, r := range s.reports {
		if ownerID != "" && r.OwnerID != ownerID {
			continue
		}
		r.Params = copyStringMap(r.Params)
		r.Recipients = copyStrings(r.Recipients)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListScheduledReports(_ context.Context) ([]report.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]report.Report, 0)
	for _, r := range s.reports {
		if !r.Active || r.Schedule == "" {
			continue
		}
		r.Params = copyStringMap(r.Params)
		r.Recipients = copyStrings(r.Recipients)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteReport(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reports[id]; !ok {
		return errors.NotFound("report", id)
	}
	delete(s.reports, id)
	return nil
}

func (s *Store) CreateExecution(_ context.Context, ex report.Execution) (report.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ex.ID == "" {
		ex.ID = newID()
	}
	s.executions[ex.ID] = ex
	return ex, nil
}

func (s *Store) UpdateExecution(_ context.Context, ex report.Execution) (report.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.executions[ex.ID]
	if !ok {
		return report.Execution{}, errors.NotFound("execution", ex.ID)
	}
	if original.Status.Terminal() {
		return report.Execution{}, errors.Conflict("execution is terminal")
	}

	s.executions[ex.ID] = ex
	return ex, nil
}

func (s *Store) GetExecution(_ context.Context, id string) (report.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ex, ok := s.executions[id]
	if !ok {
		return report.Execution{}, errors.NotFound("execution", id)
	}
	return ex, nil
}

func (s *Store) ListExecutions(_ context.Context, reportID string, limit int) ([]report.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]report.Execution, 0)
	for _, ex := range s.executions {
		if reportID != "" && ex.ReportID != reportID {
			continue
		}
		out = append(out, ex)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
