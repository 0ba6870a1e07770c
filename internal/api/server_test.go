package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ataiva-software/vertex-sub003/internal/auth"
	"github.com/ataiva-software/vertex-sub003/internal/cache"
	"github.com/ataiva-software/vertex-sub003/internal/config"
	domainintegration "github.com/ataiva-software/vertex-sub003/internal/domain/integration"
	domainwebhook "github.com/ataiva-software/vertex-sub003/internal/domain/webhook"
	"github.com/ataiva-software/vertex-sub003/internal/hub"
	"github.com/ataiva-software/vertex-sub003/internal/hub/connector"
	"github.com/ataiva-software/vertex-sub003/internal/hub/events"
	"github.com/ataiva-software/vertex-sub003/internal/hub/integration"
	"github.com/ataiva-software/vertex-sub003/internal/hub/notification"
	"github.com/ataiva-software/vertex-sub003/internal/hub/webhook"
	"github.com/ataiva-software/vertex-sub003/internal/insight/reports"
	"github.com/ataiva-software/vertex-sub003/internal/secrets"
	"github.com/ataiva-software/vertex-sub003/internal/storage/memory"
)

type testEnv struct {
	server  *httptest.Server
	tokens  *auth.Manager
	token   string
	store   *memory.Store
}

func newTestEnv(t *testing.T) *testEnv {
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
	scheduler := reports.NewScheduler(reportSvc, store, reports.NewGenerator(t.TempDir()),
		nil, broker, reports.SchedulerConfig{TickInterval: time.Hour, Workers: 1, Grace: time.Second}, nil)

	h := hub.New(store, engine, webhookSvc, notificationSvc, broker, reportSvc, scheduler, nil)

	tokens := auth.NewManager("api-test-secret", time.Hour)
	cfg := &config.Config{
		Env:              config.Testing,
		BodyLimitBytes:   1024,
		RequestTimeout:   5 * time.Second,
		CORSOrigins:      []string{"*"},
		RateLimitEnabled: false,
	}
	handler := NewServer(h, tokens, cache.New(cache.Config{Enabled: true}, nil, nil), cfg, nil)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	token, _, err := tokens.Issue("u1", "org1", "member")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return &testEnv{server: srv, tokens: tokens, token: token, store: store}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	e := newTestEnv(t)
	resp := e.do(t, http.MethodGet, "/integrations", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	resp = e.do(t, http.MethodGet, "/integrations", "not-a-token", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestHealthEndpointsArePublic(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{"/health", "/ready", "/metrics"} {
		resp := e.do(t, http.MethodGet, path, "", nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d", path, resp.StatusCode)
		}
	}
}

func TestIntegrationCRUDFlow(t *testing.T) {
	e := newTestEnv(t)

	create := map[string]any{
		"type":   "chat",
		"name":   "ops-chat",
		"config": map[string]string{"webhook_url": "http://chat.invalid/hook"},
	}
	resp := e.do(t, http.MethodPost, "/integrations", e.token, create)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created struct {
		ID string `json:"id"`
	}
	decode(t, resp, &created)
	if created.ID == "" {
		t.Fatal("no id returned")
	}

	// Duplicate name conflicts.
	resp = e.do(t, http.MethodPost, "/integrations", e.token, create)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate status = %d", resp.StatusCode)
	}

	// Missing required config key is a validation error.
	resp = e.do(t, http.MethodPost, "/integrations", e.token, map[string]any{
		"type": "chat", "name": "bad", "config": map[string]string{},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid status = %d", resp.StatusCode)
	}

	// Cross-user access is forbidden.
	otherToken, _, err := e.tokens.Issue("u2", "", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	resp = e.do(t, http.MethodGet, "/integrations/"+created.ID, otherToken, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("cross-user status = %d", resp.StatusCode)
	}

	resp = e.do(t, http.MethodDelete, "/integrations/"+created.ID, e.token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	resp = e.do(t, http.MethodGet, "/integrations/"+created.ID, e.token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get-after-delete status = %d", resp.StatusCode)
	}
}

func TestWebhookDeliverAndHistory(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/webhooks", e.token, map[string]any{
		"name":       "sink",
		"target_url": "http://sink.invalid/hook",
		"events":     []string{"foo.*"},
		"secret":     "s",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var wh struct {
		ID string `json:"id"`
	}
	decode(t, resp, &wh)

	resp = e.do(t, http.MethodPost, "/webhooks/"+wh.ID+"/deliver", e.token, map[string]any{
		"event_type": "foo.bar",
		"payload":    map[string]any{"x": 1},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("deliver status = %d", resp.StatusCode)
	}
	var d struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decode(t, resp, &d)
	if d.Status != "pending" {
		t.Fatalf("delivery status = %s", d.Status)
	}

	resp = e.do(t, http.MethodGet, "/webhooks/"+wh.ID+"/deliveries", e.token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status = %d", resp.StatusCode)
	}
	var history []map[string]any
	decode(t, resp, &history)
	if len(history) != 1 {
		t.Fatalf("history = %v", history)
	}
}

func TestPublishEventAccepted(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/events/publish", e.token, map[string]any{
		"type":    "deploy.finished",
		"payload": map[string]any{"env": "prod"},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out struct {
		ID string `json:"id"`
	}
	decode(t, resp, &out)
	if out.ID == "" {
		t.Fatal("no event id")
	}

	// Missing type is a validation failure.
	resp = e.do(t, http.MethodPost, "/events/publish", e.token, map[string]any{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	// The event shows up in the activity feed.
	resp = e.do(t, http.MethodGet, "/events", e.token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("feed status = %d", resp.StatusCode)
	}
	var feed []struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	decode(t, resp, &feed)
	found := false
	for _, ev := range feed {
		if ev.ID == out.ID && ev.Type == "deploy.finished" {
			found = true
		}
	}
	if !found {
		t.Fatalf("published event missing from feed: %v", feed)
	}
}

func TestReportLifecycleOverHTTP(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/reports/templates", e.token, map[string]any{
		"name":    "usage",
		"content": "Usage: {{total}}",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("template status = %d", resp.StatusCode)
	}
	var tmpl struct {
		ID string `json:"id"`
	}
	decode(t, resp, &tmpl)

	resp = e.do(t, http.MethodPost, "/reports", e.token, map[string]any{
		"name":        "daily-usage",
		"template_id": tmpl.ID,
		"params":      map[string]string{"total": "42"},
		"schedule":    "0 6 * * *",
		"timezone":    "UTC",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("report status = %d", resp.StatusCode)
	}
	var rep struct {
		ID            string `json:"id"`
		NextExecution string `json:"next_execution"`
	}
	decode(t, resp, &rep)
	if rep.NextExecution == "" {
		t.Fatal("scheduled report must expose next_execution")
	}

	resp = e.do(t, http.MethodPost, "/reports/"+rep.ID+"/run", e.token, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("run status = %d", resp.StatusCode)
	}
	var ex struct {
		ID string `json:"id"`
	}
	decode(t, resp, &ex)

	deadline := time.Now().Add(3 * time.Second)
	for {
		resp = e.do(t, http.MethodGet, "/reports/"+rep.ID+"/executions", e.token, nil)
		var exs []struct {
			Status string `json:"status"`
		}
		decode(t, resp, &exs)
		if len(exs) == 1 && exs[0].Status == "completed" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("execution never completed: %v", exs)
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Bad cron is rejected.
	resp = e.do(t, http.MethodPost, "/reports", e.token, map[string]any{
		"name":        "broken",
		"template_id": tmpl.ID,
		"schedule":    "whenever",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad cron status = %d", resp.StatusCode)
	}
}

func TestOversizedPayloadRejected(t *testing.T) {
	e := newTestEnv(t)

	big := strings.Repeat("x", 2048)
	resp := e.do(t, http.MethodPost, "/events/publish", e.token, map[string]any{
		"type":    "big.event",
		"payload": map[string]any{"blob": big},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestErrorBodyShape(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodGet, "/integrations/ghost", e.token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	}
	decode(t, resp, &body)
	if body.Code == "" || body.Message == "" {
		t.Fatalf("error body = %+v", body)
	}
}
