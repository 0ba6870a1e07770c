package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ataiva-software/vertex-sub003/internal/domain/event"
)

type eventRow struct {
	ID            string    `db:"id"`
	Type          string    `db:"type"`
	Source        string    `db:"source"`
	Payload       []byte    `db:"payload"`
	Timestamp     time.Time `db:"ts"`
	CorrelationID string    `db:"correlation_id"`
}

func (r eventRow) toDomain() event.Event {
	var payload map[string]any
	_ = json.Unmarshal(r.Payload, &payload)
	return event.Event{
		ID:            r.ID,
		Type:          r.Type,
		Source:        r.Source,
		Payload:       payload,
		Timestamp:     r.Timestamp,
		CorrelationID: r.CorrelationID,
	}
}

func (s *Store) InsertEvent(ctx context.Context, ev event.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return mapError("insert event", "event", ev.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, type, source, payload, ts, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.Type, ev.Source, payload, ev.Timestamp, ev.CorrelationID)
	return mapError("insert event", "event", ev.ID, err)
}

func (s *Store) GetEvent(ctx context.Context, id string) (event.Event, error) {
	var row eventRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM events WHERE id = $1`, id); err != nil {
		return event.Event{}, mapError("get event", "event", id, err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListEventsByTimeRange(ctx context.Context, start, end time.Time, limit int) ([]event.Event, error) {
	if limit <= 0 {
		limit = 500
	}
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM events WHERE ts >= $1 AND ts <= $2 ORDER BY ts LIMIT $3`, start, end, limit)
	if err != nil {
		return nil, mapError("list events", "event", "", err)
	}
	out := make([]event.Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

type subscriptionRow struct {
	ID         string    `db:"id"`
	OwnerID    string    `db:"owner_id"`
	Pattern    string    `db:"pattern"`
	Predicates []byte    `db:"predicates"`
	Kind       string    `db:"kind"`
	WebhookID  string    `db:"webhook_id"`
	HandlerRef string    `db:"handler_ref"`
	Active     bool      `db:"active"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r subscriptionRow) toDomain() event.Subscription {
	var predicates []event.Predicate
	_ = json.Unmarshal(r.Predicates, &predicates)
	return event.Subscription{
		ID:         r.ID,
		OwnerID:    r.OwnerID,
		Pattern:    r.Pattern,
		Predicates: predicates,
		Kind:       event.CallbackKind(r.Kind),
		WebhookID:  r.WebhookID,
		HandlerRef: r.HandlerRef,
		Active:     r.Active,
		CreatedAt:  r.CreatedAt,
	}
}

func (s *Store) CreateSubscription(ctx context.Context, sub event.Subscription) (event.Subscription, error) {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	sub.CreatedAt = time.Now().UTC()
	predicates, err := json.Marshal(sub.Predicates)
	if err != nil {
		return event.Subscription{}, mapError("create subscription", "subscription", sub.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, owner_id, pattern, predicates, kind, webhook_id, handler_ref, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sub.ID, sub.OwnerID, sub.Pattern, predicates, string(sub.Kind), sub.WebhookID, sub.HandlerRef, sub.Active, sub.CreatedAt)
	if err != nil {
		return event.Subscription{}, mapError("create subscription", "subscription", sub.ID, err)
	}
	return sub, nil
}

func (s *Store) GetSubscription(ctx context.Context, id string) (event.Subscription, error) {
	var row subscriptionRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM subscriptions WHERE id = $1`, id); err != nil {
		return event.Subscription{}, mapError("get subscription", "subscription", id, err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListSubscriptions(ctx context.Context, ownerID string) ([]event.Subscription, error) {
	var rows []subscriptionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM subscriptions WHERE ($1 = '' OR owner_id = $1) ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, mapError("list subscriptions", "subscription", "", err)
	}
	out := make([]event.Subscription, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) ListActiveSubscriptions(ctx context.Context) ([]event.Subscription, error) {
	var rows []subscriptionRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM subscriptions WHERE active ORDER BY created_at`); err != nil {
		return nil, mapError("list active subscriptions", "subscription", "", err)
	}
	out := make([]event.Subscription, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) DeleteSubscription(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return mapError("delete subscription", "subscription", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return mapError("delete subscription", "subscription", id, errNoRows)
	}
	return nil
}
