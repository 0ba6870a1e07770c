package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestServiceErrorFormatsCodeAndMessage(t *testing.T) {
	err := NotFound("webhook", "wh-1")
	want := "[RES_4001] Resource not found"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
	if err.HTTPStatus != http.StatusNotFound {
		t.Fatalf("status = %d", err.HTTPStatus)
	}
}

func TestWrapPreservesUnderlyingError(t *testing.T) {
	inner := errors.New("connection refused")
	err := TransportFailure("http://sink", inner)
	if !errors.Is(err, inner) {
		t.Fatal("expected wrapped error to unwrap to inner")
	}
}

func TestGetHTTPStatusThroughWrapping(t *testing.T) {
	err := fmt.Errorf("while delivering: %w", Conflict("duplicate name"))
	if got := GetHTTPStatus(err); got != http.StatusConflict {
		t.Fatalf("status = %d, want 409", got)
	}
	if got := GetHTTPStatus(errors.New("plain")); got != http.StatusInternalServerError {
		t.Fatalf("plain error status = %d, want 500", got)
	}
}

func TestRetryability(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"transport", TransportFailure("http://x", errors.New("eof")), true},
		{"timeout", Timeout("deliver"), true},
		{"rate limited", RateLimited(time.Second), true},
		{"transient connector", ConnectorFailure("chat", true, errors.New("503")), true},
		{"permanent connector", ConnectorFailure("chat", false, errors.New("bad creds")), false},
		{"validation", InvalidInput("url", "must be absolute"), false},
		{"plain", errors.New("x"), false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.retryable {
			t.Errorf("%s: IsRetryable = %v, want %v", tc.name, got, tc.retryable)
		}
	}
}

func TestAdvisoryRetryAfter(t *testing.T) {
	err := RateLimited(2 * time.Second)
	d, ok := AdvisoryRetryAfter(err)
	if !ok || d != 2*time.Second {
		t.Fatalf("got (%v, %v)", d, ok)
	}
	if _, ok := AdvisoryRetryAfter(Timeout("x")); ok {
		t.Fatal("timeout should not advise a delay")
	}
}

func TestConflictDetection(t *testing.T) {
	if !IsConflict(AlreadyExists("integration", "prod-s3")) {
		t.Fatal("AlreadyExists should register as conflict")
	}
	if IsConflict(NotFound("integration", "i-1")) {
		t.Fatal("NotFound must not register as conflict")
	}
	if !IsNotFound(NotFound("report", "r-1")) {
		t.Fatal("IsNotFound failed")
	}
}
