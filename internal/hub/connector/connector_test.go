package connector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ataiva-software/vertex-sub003/internal/domain/integration"
	"github.com/ataiva-software/vertex-sub003/internal/errors"
)

func chatConnector(t *testing.T, url string) Connector {
	t.Helper()
	c, err := NewChat(Config{
		Integration: integration.Integration{
			Type:   integration.TypeChat,
			Config: map[string]string{"webhook_url": url, "channel": "#ops"},
		},
		Credential: "tok",
		Timeout:    2 * time.Second,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return c
}

func TestChatPostMessage(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer header")
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := chatConnector(t, srv.URL)
	res, err := c.Execute(context.Background(), "post_message", Params{"text": "deploy done"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got["text"] != "deploy done" || got["channel"] != "#ops" {
		t.Fatalf("payload = %v", got)
	}
	if res["posted"] != true {
		t.Fatalf("result = %v", res)
	}
}

func TestUnknownOperationIsUnsupported(t *testing.T) {
	c := chatConnector(t, "http://unused.invalid")
	_, err := c.Execute(context.Background(), "delete_workspace", Params{})
	svcErr := errors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != errors.ErrCodeUnsupportedOperation {
		t.Fatalf("expected UnsupportedOperation, got %v", err)
	}
}

func TestMissingRequiredParam(t *testing.T) {
	c := chatConnector(t, "http://unused.invalid")
	_, err := c.Execute(context.Background(), "post_message", Params{})
	svcErr := errors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != errors.ErrCodeMissingParameter {
		t.Fatalf("expected MissingParameter, got %v", err)
	}
}

func TestServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := chatConnector(t, srv.URL)
	_, err := c.Execute(context.Background(), "post_message", Params{"text": "x"})
	if !errors.IsRetryable(err) {
		t.Fatalf("5xx must classify as transient, got %v", err)
	}
}

func TestAuthFailureIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := chatConnector(t, srv.URL)
	_, err := c.Execute(context.Background(), "post_message", Params{"text": "x"})
	if err == nil || errors.IsRetryable(err) {
		t.Fatalf("403 must classify as permanent, got %v", err)
	}
}

func TestRateLimitCarriesRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := chatConnector(t, srv.URL)
	_, err := c.Execute(context.Background(), "post_message", Params{"text": "x"})
	delay, ok := errors.AdvisoryRetryAfter(err)
	if !ok || delay != 7*time.Second {
		t.Fatalf("expected 7s advisory delay, got (%v, %v)", delay, ok)
	}
}

func TestObjectStoreTestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/buckets" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"buckets":[]}`))
	}))
	defer srv.Close()

	c, err := NewObjectStore(Config{
		Integration: integration.Integration{
			Type:   integration.TypeObjectStore,
			Config: map[string]string{"endpoint": srv.URL, "bucket": "b"},
		},
		Credential: "k",
		Timeout:    2 * time.Second,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	res := c.Test(context.Background())
	if !res.OK {
		t.Fatalf("probe failed: %s", res.Diagnostics)
	}
	if res.Latency <= 0 {
		t.Fatal("latency must be measured")
	}
}

func TestRegistryRejectsUnknownType(t *testing.T) {
	r := DefaultRegistry()
	_, err := r.Build(Config{Integration: integration.Integration{Type: "ftp"}})
	if err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestRegistryRequiredConfig(t *testing.T) {
	r := DefaultRegistry()
	keys, ok := r.RequiredConfig(integration.TypeChat)
	if !ok || len(keys) == 0 {
		t.Fatalf("chat required config missing: %v", keys)
	}
}
