package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ataiva-software/vertex-sub003/internal/domain/webhook"
	"github.com/ataiva-software/vertex-sub003/internal/errors"
)

type webhookRow struct {
	ID            string         `db:"id"`
	OwnerID       string         `db:"owner_id"`
	Name          string         `db:"name"`
	TargetURL     string         `db:"target_url"`
	EventPatterns pq.StringArray `db:"event_patterns"`
	Secret        string         `db:"secret"`
	Active        bool           `db:"active"`
	RetryBaseMS   int64          `db:"retry_base_ms"`
	RetryCapMS    int64          `db:"retry_cap_ms"`
	RetryMax      int            `db:"retry_max"`
	RetryJitter   float64        `db:"retry_jitter"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r webhookRow) toDomain() webhook.Webhook {
	return webhook.Webhook{
		ID:            r.ID,
		OwnerID:       r.OwnerID,
		Name:          r.Name,
		TargetURL:     r.TargetURL,
		EventPatterns: r.EventPatterns,
		Secret:        r.Secret,
		Active:        r.Active,
		RetryPolicy: webhook.RetryPolicy{
			Base:        time.Duration(r.RetryBaseMS) * time.Millisecond,
			Cap:         time.Duration(r.RetryCapMS) * time.Millisecond,
			MaxAttempts: r.RetryMax,
			Jitter:      r.RetryJitter,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (s *Store) CreateWebhook(ctx context.Context, wh webhook.Webhook) (webhook.Webhook, error) {
	if wh.ID == "" {
		wh.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	wh.CreatedAt = now
	wh.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhooks (id, owner_id, name, target_url, event_patterns, secret, active,
		                      retry_base_ms, retry_cap_ms, retry_max, retry_jitter, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		wh.ID, wh.OwnerID, wh.Name, wh.TargetURL, pq.Array(wh.EventPatterns), wh.Secret, wh.Active,
		wh.RetryPolicy.Base.Milliseconds(), wh.RetryPolicy.Cap.Milliseconds(),
		wh.RetryPolicy.MaxAttempts, wh.RetryPolicy.Jitter, wh.CreatedAt, wh.UpdatedAt)
	if err != nil {
		return webhook.Webhook{}, mapError("create webhook", "webhook", wh.Name, err)
	}
	return wh, nil
}

func (s *Store) UpdateWebhook(ctx context.Context, wh webhook.Webhook) (webhook.Webhook, error) {
	wh.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhooks
		SET name = $2, target_url = $3, event_patterns = $4, secret = $5, active = $6,
		    retry_base_ms = $7, retry_cap_ms = $8, retry_max = $9, retry_jitter = $10, updated_at = $11
		WHERE id = $1`,
		wh.ID, wh.Name, wh.TargetURL, pq.Array(wh.EventPatterns), wh.Secret, wh.Active,
		wh.RetryPolicy.Base.Milliseconds(), wh.RetryPolicy.Cap.Milliseconds(),
		wh.RetryPolicy.MaxAttempts, wh.RetryPolicy.Jitter, wh.UpdatedAt)
	if err != nil {
		return webhook.Webhook{}, mapError("update webhook", "webhook", wh.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return webhook.Webhook{}, mapError("update webhook", "webhook", wh.ID, errNoRows)
	}
	return s.GetWebhook(ctx, wh.ID)
}

func (s *Store) GetWebhook(ctx context.Context, id string) (webhook.Webhook, error) {
	var row webhookRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM webhooks WHERE id = $1`, id); err != nil {
		return webhook.Webhook{}, mapError("get webhook", "webhook", id, err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListWebhooks(ctx context.Context, ownerID string) ([]webhook.Webhook, error) {
	var rows []webhookRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM webhooks WHERE ($1 = '' OR owner_id = $1) ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, mapError("list webhooks", "webhook", "", err)
	}
	out := make([]webhook.Webhook, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) ListActiveWebhooks(ctx context.Context) ([]webhook.Webhook, error) {
	var rows []webhookRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM webhooks WHERE active ORDER BY created_at`); err != nil {
		return nil, mapError("list active webhooks", "webhook", "", err)
	}
	out := make([]webhook.Webhook, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) DeleteWebhook(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return mapError("delete webhook", "webhook", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return mapError("delete webhook", "webhook", id, errNoRows)
	}
	return nil
}

type deliveryRow struct {
	ID              string    `db:"id"`
	WebhookID       string    `db:"webhook_id"`
	EventID         string    `db:"event_id"`
	EventType       string    `db:"event_type"`
	Payload         []byte    `db:"payload"`
	Attempt         int       `db:"attempt"`
	Status          string    `db:"status"`
	RequestSummary  string    `db:"request_summary"`
	ResponseSummary string    `db:"response_summary"`
	NextAttemptAt   time.Time `db:"next_attempt_at"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r deliveryRow) toDomain() webhook.Delivery {
	return webhook.Delivery{
		ID:              r.ID,
		WebhookID:       r.WebhookID,
		EventID:         r.EventID,
		EventType:       r.EventType,
		Payload:         r.Payload,
		Attempt:         r.Attempt,
		Status:          webhook.DeliveryStatus(r.Status),
		RequestSummary:  r.RequestSummary,
		ResponseSummary: r.ResponseSummary,
		NextAttemptAt:   r.NextAttemptAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func (s *Store) CreateDelivery(ctx context.Context, d webhook.Delivery) (webhook.Delivery, error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (id, webhook_id, event_id, event_type, payload, attempt, status,
		                                request_summary, response_summary, next_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		d.ID, d.WebhookID, d.EventID, d.EventType, d.Payload, d.Attempt, string(d.Status),
		d.RequestSummary, d.ResponseSummary, d.NextAttemptAt, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return webhook.Delivery{}, mapError("create delivery", "delivery", d.ID, err)
	}
	return d, nil
}

func (s *Store) UpdateDelivery(ctx context.Context, d webhook.Delivery) (webhook.Delivery, error) {
	d.UpdatedAt = time.Now().UTC()
	// Terminal rows are immutable; the WHERE clause makes the check atomic.
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET attempt = $2, status = $3, request_summary = $4, response_summary = $5,
		    next_attempt_at = $6, updated_at = $7
		WHERE id = $1 AND status NOT IN ('delivered', 'failed', 'exhausted', 'cancelled')`,
		d.ID, d.Attempt, string(d.Status), d.RequestSummary, d.ResponseSummary, d.NextAttemptAt, d.UpdatedAt)
	if err != nil {
		return webhook.Delivery{}, mapError("update delivery", "delivery", d.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, getErr := s.GetDelivery(ctx, d.ID); getErr == nil {
			return webhook.Delivery{}, errors.Conflict("delivery is terminal")
		}
		return webhook.Delivery{}, mapError("update delivery", "delivery", d.ID, errNoRows)
	}
	return d, nil
}

func (s *Store) GetDelivery(ctx context.Context, id string) (webhook.Delivery, error) {
	var row deliveryRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM webhook_deliveries WHERE id = $1`, id); err != nil {
		return webhook.Delivery{}, mapError("get delivery", "delivery", id, err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListDeliveries(ctx context.Context, webhookID string, status webhook.DeliveryStatus, offset, limit int) ([]webhook.Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []deliveryRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM webhook_deliveries
		WHERE ($1 = '' OR webhook_id = $1::uuid) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		OFFSET $3 LIMIT $4`, webhookID, string(status), offset, limit)
	if err != nil {
		return nil, mapError("list deliveries", "delivery", webhookID, err)
	}
	out := make([]webhook.Delivery, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) ListDueDeliveries(ctx context.Context, before time.Time, limit int) ([]webhook.Delivery, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []deliveryRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM webhook_deliveries
		WHERE status = 'pending' AND next_attempt_at <= $1
		ORDER BY next_attempt_at
		LIMIT $2`, before, limit)
	if err != nil {
		return nil, mapError("list due deliveries", "delivery", "", err)
	}
	out := make([]webhook.Delivery, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) CountAttemptsSince(ctx context.Context, webhookID string, since time.Time) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COALESCE(SUM(attempt), 0) FROM webhook_deliveries
		WHERE webhook_id = $1 AND updated_at >= $2`, webhookID, since)
	if err != nil {
		return 0, mapError("count attempts", "delivery", webhookID, err)
	}
	return count, nil
}
