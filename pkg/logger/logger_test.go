package logger

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewParsesLevel(t *testing.T) {
	log := New("hub", "debug", "json")
	if log.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %v", log.GetLevel())
	}
}

func TestNewFallsBackToInfoOnBadLevel(t *testing.T) {
	log := New("hub", "nope", "text")
	if log.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level fallback, got %v", log.GetLevel())
	}
}

func TestWithContextAddsFields(t *testing.T) {
	log := New("hub", "info", "json")
	ctx := context.WithValue(context.Background(), TraceIDKey, "t-1")
	ctx = context.WithValue(ctx, UserIDKey, "u-1")

	entry := log.WithContext(ctx)
	if entry.Data["trace_id"] != "t-1" {
		t.Fatalf("trace_id not propagated: %v", entry.Data)
	}
	if entry.Data["user_id"] != "u-1" {
		t.Fatalf("user_id not propagated: %v", entry.Data)
	}
	if entry.Data["service"] != "hub" {
		t.Fatalf("service not set: %v", entry.Data)
	}
}
