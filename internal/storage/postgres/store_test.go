package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/ataiva-software/vertex-sub003/internal/domain/webhook"
	"github.com/ataiva-software/vertex-sub003/internal/errors"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func TestGetWebhookMapsRow(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT \* FROM webhooks WHERE id = \$1`).
		WithArgs("wh-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "owner_id", "name", "target_url", "event_patterns", "secret", "active",
			"retry_base_ms", "retry_cap_ms", "retry_max", "retry_jitter", "created_at", "updated_at",
		}).AddRow("wh-1", "u1", "w", "http://sink/ok", "{foo.*}", "s", true,
			int64(1000), int64(60000), 3, 0.2, now, now))

	wh, err := s.GetWebhook(context.Background(), "wh-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if wh.RetryPolicy.Base != time.Second || wh.RetryPolicy.MaxAttempts != 3 {
		t.Fatalf("policy = %+v", wh.RetryPolicy)
	}
	if len(wh.EventPatterns) != 1 || wh.EventPatterns[0] != "foo.*" {
		t.Fatalf("patterns = %v", wh.EventPatterns)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetWebhookNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM webhooks WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetWebhook(context.Background(), "ghost")
	if !errors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateDeliveryTerminalConflict(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	// The guarded UPDATE touches no rows, and the follow-up read shows the
	// row exists, so the store reports a terminal-state conflict.
	mock.ExpectExec(`UPDATE webhook_deliveries`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM webhook_deliveries WHERE id = \$1`).
		WithArgs("d-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "webhook_id", "event_id", "event_type", "payload", "attempt", "status",
			"request_summary", "response_summary", "next_attempt_at", "created_at", "updated_at",
		}).AddRow("d-1", "wh-1", "e1", "foo.bar", []byte(`{}`), 3, "delivered", "", "", now, now, now))

	_, err := s.UpdateDelivery(context.Background(), webhook.Delivery{ID: "d-1", Status: webhook.StatusPending})
	if !errors.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestListDueDeliveriesQueryShape(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT \* FROM webhook_deliveries\s+WHERE status = 'pending' AND next_attempt_at <= \$1\s+ORDER BY next_attempt_at\s+LIMIT \$2`).
		WithArgs(now, 10).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "webhook_id", "event_id", "event_type", "payload", "attempt", "status",
			"request_summary", "response_summary", "next_attempt_at", "created_at", "updated_at",
		}).AddRow("d-1", "wh-1", "e1", "foo.bar", []byte(`{"x":1}`), 0, "pending", "", "", now, now, now))

	due, err := s.ListDueDeliveries(context.Background(), now, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(due) != 1 || due[0].Status != webhook.StatusPending {
		t.Fatalf("due = %+v", due)
	}
}
