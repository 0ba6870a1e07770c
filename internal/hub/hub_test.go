package hub

import (
	"context"
	"testing"
	"time"

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
	"github.com/ataiva-software/vertex-sub003/internal/secrets"
	"github.com/ataiva-software/vertex-sub003/internal/storage/memory"
)

var actor = auth.Context{UserID: "u1"}

func newTestHub(t *testing.T) (*Hub, *memory.Store) {
	t.Helper()
	store := memory.New()

	registry := connector.NewRegistry()
	registry.Register(domainintegration.TypeChat, []string{"webhook_url"}, func(connector.Config) (connector.Connector, error) {
		return nil, nil
	})
	engine := integration.New(integration.Config{
		Store:    store,
		Registry: registry,
		Resolver: secrets.NewStaticResolver(nil),
	})
	t.Cleanup(engine.Stop)

	webhookSvc := webhook.NewService(store, domainwebhook.RetryPolicy{}, nil)
	notificationSvc := notification.NewService(store, nil)
	broker := events.NewBroker(store, webhookSvc, events.Config{QueueDepth: 64}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := broker.Start(ctx); err != nil {
		t.Fatalf("start broker: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		broker.Stop()
	})

	reportSvc := reports.NewService(store, nil)
	var h *Hub
	scheduler := reports.NewScheduler(reportSvc, store, reports.NewGenerator(t.TempDir()),
		reports.NotifierFunc(func(ctx context.Context, rep domainreport.Report, ex domainreport.Execution) {
			h.ReportGenerated(ctx, rep, ex)
		}),
		broker,
		reports.SchedulerConfig{TickInterval: time.Hour, Workers: 2, Grace: time.Second}, nil)

	h = New(store, engine, webhookSvc, notificationSvc, broker, reportSvc, scheduler, nil)
	return h, store
}

func waitEvents(t *testing.T, store *memory.Store, wantType string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		evs, err := store.ListEventsByTimeRange(context.Background(), time.Time{}, time.Now().Add(time.Hour), 0)
		if err == nil {
			for _, ev := range evs {
				if ev.Type == wantType {
					return
				}
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("lifecycle event %q never published", wantType)
}

func TestRegisterIntegrationEmitsLifecycleEvent(t *testing.T) {
	h, store := newTestHub(t)
	ctx := context.Background()

	in, err := h.RegisterIntegration(ctx, actor, domainintegration.TypeChat, "chat",
		map[string]string{"webhook_url": "http://chat.invalid"}, "", nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if in.ID == "" {
		t.Fatal("no id assigned")
	}
	waitEvents(t, store, "integration.created")
}

func TestCreateWebhookEmitsLifecycleEvent(t *testing.T) {
	h, store := newTestHub(t)
	_, err := h.CreateWebhook(context.Background(), actor, webhook.CreateInput{
		Name: "w", TargetURL: "http://sink/ok", Patterns: []string{"foo.*"}, Secret: "s",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	waitEvents(t, store, "webhook.created")
}

func TestSubscribeRejectsForeignWebhook(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()

	wh, err := h.CreateWebhook(ctx, actor, webhook.CreateInput{
		Name: "w", TargetURL: "http://sink/ok", Patterns: []string{"foo.*"}, Secret: "s",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	other := auth.Context{UserID: "u2"}
	_, err = h.Subscribe(ctx, other, domainevent.Subscription{
		Pattern:   "foo.*",
		Kind:      domainevent.CallbackWebhook,
		WebhookID: wh.ID,
	})
	if err == nil {
		t.Fatal("subscribing a foreign webhook must fail")
	}
}

func TestReportGeneratedQueuesNotification(t *testing.T) {
	h, store := newTestHub(t)
	ctx := context.Background()

	rep := domainreport.Report{ID: "r1", OwnerID: "u1", Name: "usage", Recipients: []string{"ops@example.com"}}
	ex := domainreport.Execution{ID: "e1", ReportID: "r1", Status: domainreport.StatusCompleted, OutputPath: "/tmp/a.json", Bytes: 42, EndedAt: time.Now()}
	h.ReportGenerated(ctx, rep, ex)

	ds, err := store.ListNotifications(ctx, "u1", 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ds) != 1 {
		t.Fatalf("notifications = %d", len(ds))
	}
	d := ds[0]
	if d.Status != domainnotification.StatusQueued || d.Channel != domainnotification.ChannelEmail {
		t.Fatalf("delivery = %+v", d)
	}
	if d.Recipients[0] != "ops@example.com" {
		t.Fatalf("recipients = %v", d.Recipients)
	}
}
