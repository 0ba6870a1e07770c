// Package storage defines the persistence interfaces consumed by the hub
// services. Implementations live in the memory and postgres subpackages and
// must preserve entity invariants: unique (owner, name) pairs, immutable
// terminal delivery statuses, and monotonic next-attempt times.
package storage

import (
	"context"
	"time"

	"github.com/ataiva-software/vertex-sub003/internal/domain/event"
	"github.com/ataiva-software/vertex-sub003/internal/domain/integration"
	"github.com/ataiva-software/vertex-sub003/internal/domain/notification"
	"github.com/ataiva-software/vertex-sub003/internal/domain/report"
	"github.com/ataiva-software/vertex-sub003/internal/domain/webhook"
)

// IntegrationStore persists integration definitions.
type IntegrationStore interface {
	CreateIntegration(ctx context.Context, in integration.Integration) (integration.Integration, error)
	UpdateIntegration(ctx context.Context, in integration.Integration) (integration.Integration, error)
	GetIntegration(ctx context.Context, id string) (integration.Integration, error)
	ListIntegrations(ctx context.Context, ownerID string) ([]integration.Integration, error)
	DeleteIntegration(ctx context.Context, id string) error
}

// WebhookStore persists webhooks and their deliveries.
type WebhookStore interface {
	CreateWebhook(ctx context.Context, wh webhook.Webhook) (webhook.Webhook, error)
	UpdateWebhook(ctx context.Context, wh webhook.Webhook) (webhook.Webhook, error)
	GetWebhook(ctx context.Context, id string) (webhook.Webhook, error)
	ListWebhooks(ctx context.Context, ownerID string) ([]webhook.Webhook, error)
	ListActiveWebhooks(ctx context.Context) ([]webhook.Webhook, error)
	DeleteWebhook(ctx context.Context, id string) error

	CreateDelivery(ctx context.Context, d webhook.Delivery) (webhook.Delivery, error)
	UpdateDelivery(ctx context.Context, d webhook.Delivery) (webhook.Delivery, error)
	GetDelivery(ctx context.Context, id string) (webhook.Delivery, error)
	ListDeliveries(ctx context.Context, webhookID string, status webhook.DeliveryStatus, offset, limit int) ([]webhook.Delivery, error)
	// ListDueDeliveries returns pending deliveries whose next attempt is due,
	// ordered by next-attempt time.
	ListDueDeliveries(ctx context.Context, before time.Time, limit int) ([]webhook.Delivery, error)
	// CountAttemptsSince counts delivery attempts recorded for a webhook in
	// the given window; the delivery worker uses it as a herd brake.
	CountAttemptsSince(ctx context.Context, webhookID string, since time.Time) (int, error)
}

// NotificationStore persists notification templates and deliveries.
type NotificationStore interface {
	CreateTemplate(ctx context.Context, t notification.Template) (notification.Template, error)
	UpdateTemplate(ctx context.Context, t notification.Template) (notification.Template, error)
	GetTemplate(ctx context.Context, id string) (notification.Template, error)
	ListTemplates(ctx context.Context, ownerID string) ([]notification.Template, error)
	DeleteTemplate(ctx context.Context, id string) error

	CreateNotification(ctx context.Context, d notification.Delivery) (notification.Delivery, error)
	UpdateNotification(ctx context.Context, d notification.Delivery) (notification.Delivery, error)
	GetNotification(ctx context.Context, id string) (notification.Delivery, error)
	ListNotifications(ctx context.Context, ownerID string, offset, limit int) ([]notification.Delivery, error)
	// ListDueNotifications returns queued deliveries whose scheduled time has
	// arrived, ordered by (priority desc, scheduled-at asc).
	ListDueNotifications(ctx context.Context, before time.Time, limit int) ([]notification.Delivery, error)
}

// EventStore persists events (best-effort) and subscriptions.
type EventStore interface {
	InsertEvent(ctx context.Context, ev event.Event) error
	GetEvent(ctx context.Context, id string) (event.Event, error)
	ListEventsByTimeRange(ctx context.Context, start, end time.Time, limit int) ([]event.Event, error)

	CreateSubscription(ctx context.Context, sub event.Subscription) (event.Subscription, error)
	GetSubscription(ctx context.Context, id string) (event.Subscription, error)
	ListSubscriptions(ctx context.Context, ownerID string) ([]event.Subscription, error)
	ListActiveSubscriptions(ctx context.Context) ([]event.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error
}

// ReportStore persists reports, report templates and executions.
type ReportStore interface {
	CreateReportTemplate(ctx context.Context, t report.Template) (report.Template, error)
	UpdateReportTemplate(ctx context.Context, t report.Template) (report.Template, error)
	GetReportTemplate(ctx context.Context, id string) (report.Template, error)
	ListReportTemplates(ctx context.Context, ownerID string) ([]report.Template, error)
	DeleteReportTemplate(ctx context.Context, id string) error

	CreateReport(ctx context.Context, r report.Report) (report.Report, error)
	UpdateReport(ctx context.Context, r report.Report) (report.Report, error)
	GetReport(ctx context.Context, id string) (report.Report, error)
	ListReports(ctx context.Context, ownerID string) ([]report.Report, error)
	ListScheduledReports(ctx context.Context) ([]report.Report, error)
	DeleteReport(ctx context.Context, id string) error

	CreateExecution(ctx context.Context, ex report.Execution) (report.Execution, error)
	UpdateExecution(ctx context.Context, ex report.Execution) (report.Execution, error)
	GetExecution(ctx context.Context, id string) (report.Execution, error)
	ListExecutions(ctx context.Context, reportID string, limit int) ([]report.Execution, error)
}

// Store bundles every persistence surface the hub needs.
type Store interface {
	IntegrationStore
	WebhookStore
	NotificationStore
	EventStore
	ReportStore

	// Ping verifies the backing store is reachable; used by readiness checks.
	Ping(ctx context.Context) error
}
