// Package hub composes the integration engine, webhook service, notification
// engine, event broker and report scheduler behind one owner-scoped façade.
// The façade's create, update, delete, execute, send and subscribe operations
// publish one lifecycle event after the store commit. DeliverWebhook publishes
// none, and neither do the operations the API calls on the subsystems directly
// (delivery cancel and replay, unsubscribe, template and report edits).
package hub

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ataiva-software/vertex-sub003/internal/auth"
	domainevent "github.com/ataiva-software/vertex-sub003/internal/domain/event"
	domainintegration "github.com/ataiva-software/vertex-sub003/internal/domain/integration"
	domainnotification "github.com/ataiva-software/vertex-sub003/internal/domain/notification"
	domainreport "github.com/ataiva-software/vertex-sub003/internal/domain/report"
	domainwebhook "github.com/ataiva-software/vertex-sub003/internal/domain/webhook"
	"github.com/ataiva-software/vertex-sub003/internal/hub/connector"
	"github.com/ataiva-software/vertex-sub003/internal/hub/events"
	"github.com/ataiva-software/vertex-sub003/internal/hub/integration"
	"github.com/ataiva-software/vertex-sub003/internal/hub/notification"
	"github.com/ataiva-software/vertex-sub003/internal/hub/webhook"
	"github.com/ataiva-software/vertex-sub003/internal/insight/reports"
	"github.com/ataiva-software/vertex-sub003/internal/storage"
	"github.com/ataiva-software/vertex-sub003/pkg/logger"
)

// Hub is the composition layer over the subsystems.
type Hub struct {
	Integrations  *integration.Engine
	Webhooks      *webhook.Service
	Notifications *notification.Service
	Broker        *events.Broker
	Reports       *reports.Service
	Scheduler     *reports.Scheduler

	store storage.Store
	log   *logger.Logger
}

// New wires the composition layer.
func New(store storage.Store, integrations *integration.Engine, webhooks *webhook.Service, notifications *notification.Service, broker *events.Broker, reportSvc *reports.Service, scheduler *reports.Scheduler, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewDefault("hub")
	}
	return &Hub{
		Integrations:  integrations,
		Webhooks:      webhooks,
		Notifications: notifications,
		Broker:        broker,
		Reports:       reportSvc,
		Scheduler:     scheduler,
		store:         store,
		log:           log,
	}
}

// emit publishes a lifecycle event; failures are logged, never surfaced.
func (h *Hub) emit(ctx context.Context, actor auth.Context, eventType string, payload map[string]any) {
	if h.Broker == nil {
		return
	}
	if payload == nil {
		payload = map[string]any{}
	}
	payload["actor"] = actor.UserID
	if _, err := h.Broker.Publish(ctx, domainevent.Event{
		Type:    eventType,
		Source:  "hub",
		Payload: payload,
	}); err != nil {
		h.log.WithError(err).WithField("type", eventType).Warn("publish lifecycle event failed")
	}
}

// Integration operations ------------------------------------------------------

func (h *Hub) RegisterIntegration(ctx context.Context, actor auth.Context, typ domainintegration.Type, name string, config map[string]string, credentialRef string, tags []string) (domainintegration.Integration, error) {
	in, err := h.Integrations.Register(ctx, actor, typ, name, config, credentialRef, tags)
	if err != nil {
		return domainintegration.Integration{}, err
	}
	h.emit(ctx, actor, "integration.created", map[string]any{"integration_id": in.ID, "type": string(in.Type)})
	return in, nil
}

func (h *Hub) UpdateIntegration(ctx context.Context, actor auth.Context, id string, patch integration.Patch) (domainintegration.Integration, error) {
	in, err := h.Integrations.Update(ctx, actor, id, patch)
	if err != nil {
		return domainintegration.Integration{}, err
	}
	h.emit(ctx, actor, "integration.updated", map[string]any{"integration_id": in.ID})
	return in, nil
}

func (h *Hub) DeleteIntegration(ctx context.Context, actor auth.Context, id string) error {
	if err := h.Integrations.Delete(ctx, actor, id); err != nil {
		return err
	}
	h.emit(ctx, actor, "integration.deleted", map[string]any{"integration_id": id})
	return nil
}

func (h *Hub) ExecuteIntegration(ctx context.Context, actor auth.Context, id, op string, params connector.Params) (connector.Result, error) {
	result, err := h.Integrations.Execute(ctx, actor, id, op, params)
	if err != nil {
		return nil, err
	}
	h.emit(ctx, actor, "integration.executed", map[string]any{"integration_id": id, "operation": op})
	return result, nil
}

// Webhook operations ----------------------------------------------------------

func (h *Hub) CreateWebhook(ctx context.Context, actor auth.Context, in webhook.CreateInput) (domainwebhook.Webhook, error) {
	wh, err := h.Webhooks.Create(ctx, actor, in)
	if err != nil {
		return domainwebhook.Webhook{}, err
	}
	h.emit(ctx, actor, "webhook.created", map[string]any{"webhook_id": wh.ID})
	return wh, nil
}

func (h *Hub) UpdateWebhook(ctx context.Context, actor auth.Context, id string, in webhook.UpdateInput) (domainwebhook.Webhook, error) {
	wh, err := h.Webhooks.Update(ctx, actor, id, in)
	if err != nil {
		return domainwebhook.Webhook{}, err
	}
	h.emit(ctx, actor, "webhook.updated", map[string]any{"webhook_id": wh.ID})
	return wh, nil
}

func (h *Hub) DeleteWebhook(ctx context.Context, actor auth.Context, id string) error {
	if err := h.Webhooks.Delete(ctx, actor, id); err != nil {
		return err
	}
	h.emit(ctx, actor, "webhook.deleted", map[string]any{"webhook_id": id})
	return nil
}

// DeliverWebhook enqueues a one-off delivery of an arbitrary payload to one
// owned webhook. The event goes straight to the webhook rather than through
// the broker, so pattern fan-out does not duplicate it.
func (h *Hub) DeliverWebhook(ctx context.Context, actor auth.Context, webhookID string, eventType string, payload map[string]any) (domainwebhook.Delivery, error) {
	if _, err := h.Webhooks.Get(ctx, actor, webhookID); err != nil {
		return domainwebhook.Delivery{}, err
	}
	ev := domainevent.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    "hub.manual",
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	return h.Webhooks.Enqueue(ctx, webhookID, ev)
}

// Notification operations -----------------------------------------------------

func (h *Hub) CreateNotificationTemplate(ctx context.Context, actor auth.Context, in notification.TemplateInput) (domainnotification.Template, error) {
	t, err := h.Notifications.CreateTemplate(ctx, actor, in)
	if err != nil {
		return domainnotification.Template{}, err
	}
	h.emit(ctx, actor, "notification.template.created", map[string]any{"template_id": t.ID})
	return t, nil
}

func (h *Hub) SendNotification(ctx context.Context, actor auth.Context, in notification.SendInput) (domainnotification.Delivery, error) {
	d, err := h.Notifications.Send(ctx, actor, in)
	if err != nil {
		return domainnotification.Delivery{}, err
	}
	h.emit(ctx, actor, "notification.queued", map[string]any{"delivery_id": d.ID, "channel": string(d.Channel)})
	return d, nil
}

// Event operations ------------------------------------------------------------

func (h *Hub) PublishEvent(ctx context.Context, actor auth.Context, typ, source string, payload map[string]any, correlationID string) (domainevent.Event, error) {
	if source == "" {
		source = "user:" + actor.UserID
	}
	return h.Broker.Publish(ctx, domainevent.Event{
		Type:          typ,
		Source:        source,
		Payload:       payload,
		CorrelationID: correlationID,
	})
}

func (h *Hub) Subscribe(ctx context.Context, actor auth.Context, sub domainevent.Subscription) (domainevent.Subscription, error) {
	// A webhook callback must reference a webhook the caller owns.
	if sub.Kind == domainevent.CallbackWebhook && sub.WebhookID != "" {
		if _, err := h.Webhooks.Get(ctx, actor, sub.WebhookID); err != nil {
			return domainevent.Subscription{}, err
		}
	}
	created, err := h.Broker.Subscribe(ctx, actor, sub)
	if err != nil {
		return domainevent.Subscription{}, err
	}
	h.emit(ctx, actor, "subscription.created", map[string]any{"subscription_id": created.ID})
	return created, nil
}

// EventsByTimeRange returns persisted events in [start, end]; used by the
// activity feed.
func (h *Hub) EventsByTimeRange(ctx context.Context, _ auth.Context, start, end time.Time, limit int) ([]domainevent.Event, error) {
	return h.store.ListEventsByTimeRange(ctx, start, end, limit)
}

// Report operations -----------------------------------------------------------

func (h *Hub) CreateReport(ctx context.Context, actor auth.Context, in reports.CreateInput) (domainreport.Report, error) {
	rep, err := h.Reports.Create(ctx, actor, in)
	if err != nil {
		return domainreport.Report{}, err
	}
	h.emit(ctx, actor, "report.created", map[string]any{"report_id": rep.ID})
	return rep, nil
}

func (h *Hub) RunReportNow(ctx context.Context, actor auth.Context, id string) (domainreport.Execution, error) {
	rep, err := h.Reports.Get(ctx, actor, id)
	if err != nil {
		return domainreport.Execution{}, err
	}
	return h.Scheduler.RunNow(ctx, rep)
}

// ReportGenerated implements reports.Notifier: completed scheduled runs fan a
// notification out to the report's recipients with the artifact attached.
func (h *Hub) ReportGenerated(ctx context.Context, rep domainreport.Report, ex domainreport.Execution) {
	d := domainnotification.Delivery{
		OwnerID:    rep.OwnerID,
		Channel:    domainnotification.ChannelEmail,
		Subject:    fmt.Sprintf("Report %q is ready", rep.Name),
		Body:       fmt.Sprintf("Report %q finished at %s.\nArtifact: %s (%d bytes)", rep.Name, ex.EndedAt.Format(time.RFC3339), ex.OutputPath, ex.Bytes),
		Recipients: rep.Recipients,
		Priority:   domainnotification.PriorityNormal,
		ScheduledAt: time.Now().UTC(),
		Status:     domainnotification.StatusQueued,
	}
	if _, err := h.store.CreateNotification(ctx, d); err != nil {
		h.log.WithError(err).WithField("report_id", rep.ID).Warn("queue report notification failed")
		return
	}
	h.emit(ctx, auth.Context{UserID: rep.OwnerID}, "notification.queued", map[string]any{"report_id": rep.ID})
}

// Health ----------------------------------------------------------------------

// Ready verifies the backing store is reachable.
func (h *Hub) Ready(ctx context.Context) error {
	return h.store.Ping(ctx)
}
