package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ataiva-software/vertex-sub003/internal/domain/event"
	"github.com/ataiva-software/vertex-sub003/internal/domain/integration"
	"github.com/ataiva-software/vertex-sub003/internal/domain/notification"
	"github.com/ataiva-software/vertex-sub003/internal/domain/report"
	"github.com/ataiva-software/vertex-sub003/internal/domain/webhook"
	"github.com/ataiva-software/vertex-sub003/internal/errors"
)

func TestIntegrationNameConflictPerOwner(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.CreateIntegration(ctx, integration.Integration{OwnerID: "u1", Name: "prod", Type: integration.TypeChat})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateIntegration(ctx, integration.Integration{OwnerID: "u1", Name: "PROD", Type: integration.TypeChat}); !errors.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	// Same name under a different owner is allowed.
	if _, err := s.CreateIntegration(ctx, integration.Integration{OwnerID: "u2", Name: "prod", Type: integration.TypeChat}); err != nil {
		t.Fatalf("cross-owner create: %v", err)
	}
}

func TestDeliveryTerminalImmutable(t *testing.T) {
	s := New()
	ctx := context.Background()

	d, err := s.CreateDelivery(ctx, webhook.Delivery{WebhookID: "wh1", EventID: "e1", Attempt: 1, Status: webhook.StatusPending})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	d.Status = webhook.StatusDelivered
	if _, err := s.UpdateDelivery(ctx, d); err != nil {
		t.Fatalf("transition to delivered: %v", err)
	}
	d.Status = webhook.StatusPending
	if _, err := s.UpdateDelivery(ctx, d); !errors.IsConflict(err) {
		t.Fatalf("expected conflict mutating terminal delivery, got %v", err)
	}
}

func TestListDueDeliveriesOrdering(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	for i, offset := range []time.Duration{-time.Second, -3 * time.Second, -2 * time.Second} {
		_, err := s.CreateDelivery(ctx, webhook.Delivery{
			WebhookID:     "wh1",
			EventID:       "e1",
			Attempt:       i + 1,
			Status:        webhook.StatusPending,
			NextAttemptAt: now.Add(offset),
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	// One not yet due.
	if _, err := s.CreateDelivery(ctx, webhook.Delivery{
		WebhookID: "wh1", EventID: "e2", Attempt: 1,
		Status: webhook.StatusPending, NextAttemptAt: now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("create future: %v", err)
	}

	due, err := s.ListDueDeliveries(ctx, now, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(due) != 3 {
		t.Fatalf("expected 3 due, got %d", len(due))
	}
	for i := 1; i < len(due); i++ {
		if due[i].NextAttemptAt.Before(due[i-1].NextAttemptAt) {
			t.Fatal("due deliveries not ordered by next attempt")
		}
	}
}

func TestDueNotificationsPriorityOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	mk := func(p notification.Priority, at time.Time) {
		_, err := s.CreateNotification(ctx, notification.Delivery{
			TemplateID:  "t1",
			OwnerID:     "u1",
			Channel:     notification.ChannelEmail,
			Recipients:  []string{"a@x"},
			Priority:    p,
			ScheduledAt: at,
			Status:      notification.StatusQueued,
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	mk(notification.PriorityLow, now.Add(-3*time.Minute))
	mk(notification.PriorityUrgent, now.Add(-time.Minute))
	mk(notification.PriorityNormal, now.Add(-2*time.Minute))

	due, err := s.ListDueNotifications(ctx, now, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(due) != 3 {
		t.Fatalf("expected 3, got %d", len(due))
	}
	if due[0].Priority != notification.PriorityUrgent {
		t.Fatalf("urgent must come first, got %v", due[0].Priority)
	}
	if due[2].Priority != notification.PriorityLow {
		t.Fatalf("low must come last, got %v", due[2].Priority)
	}
}

func TestEventInsertIsIdempotencyGuarded(t *testing.T) {
	s := New()
	ctx := context.Background()

	ev := event.Event{ID: "e1", Type: "foo.bar", Source: "test", Timestamp: time.Now()}
	if err := s.InsertEvent(ctx, ev); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.InsertEvent(ctx, ev); !errors.IsConflict(err) {
		t.Fatalf("expected conflict on duplicate id, got %v", err)
	}
}

func TestEventsByTimeRange(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		ev := event.Event{
			ID:        string(rune('a' + i)),
			Type:      "tick",
			Source:    "test",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.InsertEvent(ctx, ev); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := s.ListEventsByTimeRange(ctx, base.Add(time.Minute), base.Add(3*time.Minute), 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events in range, got %d", len(got))
	}
}

func TestExecutionTerminalImmutable(t *testing.T) {
	s := New()
	ctx := context.Background()

	ex, err := s.CreateExecution(ctx, report.Execution{ReportID: "r1", Status: report.StatusRunning, StartedAt: time.Now()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ex.Status = report.StatusCompleted
	ex.EndedAt = time.Now()
	ex.OutputPath = "/tmp/x.json"
	if _, err := s.UpdateExecution(ctx, ex); err != nil {
		t.Fatalf("complete: %v", err)
	}
	ex.Status = report.StatusRunning
	if _, err := s.UpdateExecution(ctx, ex); !errors.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestScheduledReportsFilter(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.CreateReport(ctx, report.Report{OwnerID: "u1", Name: "daily", TemplateID: "t", Schedule: "0 0 * * *", Active: true}); err != nil {
		t.Fatalf("create scheduled: %v", err)
	}
	if _, err := s.CreateReport(ctx, report.Report{OwnerID: "u1", Name: "adhoc", TemplateID: "t", Active: true}); err != nil {
		t.Fatalf("create adhoc: %v", err)
	}
	if _, err := s.CreateReport(ctx, report.Report{OwnerID: "u1", Name: "paused", TemplateID: "t", Schedule: "0 0 * * *", Active: false}); err != nil {
		t.Fatalf("create paused: %v", err)
	}

	scheduled, err := s.ListScheduledReports(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(scheduled) != 1 || scheduled[0].Name != "daily" {
		t.Fatalf("unexpected scheduled set: %+v", scheduled)
	}
}

func TestGetReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.CreateIntegration(ctx, integration.Integration{
		OwnerID: "u1", Name: "store", Type: integration.TypeObjectStore,
		Config: map[string]string{"bucket": "b1"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetIntegration(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Config["bucket"] = "mutated"

	again, err := s.GetIntegration(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.Config["bucket"] != "b1" {
		t.Fatal("store must not expose internal maps")
	}
}
