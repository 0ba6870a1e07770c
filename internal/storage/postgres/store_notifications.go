package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ataiva-software/vertex-sub003/internal/domain/notification"
	"github.com/ataiva-software/vertex-sub003/internal/errors"
)

type templateRow struct {
	ID              string         `db:"id"`
	OwnerID         string         `db:"owner_id"`
	Name            string         `db:"name"`
	Channel         string         `db:"channel"`
	SubjectTemplate string         `db:"subject_template"`
	BodyTemplate    string         `db:"body_template"`
	RequiredParams  pq.StringArray `db:"required_params"`
	Category        string         `db:"category"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (r templateRow) toDomain() notification.Template {
	return notification.Template{
		ID:              r.ID,
		OwnerID:         r.OwnerID,
		Name:            r.Name,
		Channel:         notification.Channel(r.Channel),
		SubjectTemplate: r.SubjectTemplate,
		BodyTemplate:    r.BodyTemplate,
		RequiredParams:  r.RequiredParams,
		Category:        r.Category,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func (s *Store) CreateTemplate(ctx context.Context, t notification.Template) (notification.Template, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_templates (id, owner_id, name, channel, subject_template, body_template,
		                                    required_params, category, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.OwnerID, t.Name, string(t.Channel), t.SubjectTemplate, t.BodyTemplate,
		pq.Array(t.RequiredParams), t.Category, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return notification.Template{}, mapError("create template", "template", t.Name, err)
	}
	return t, nil
}

func (s *Store) UpdateTemplate(ctx context.Context, t notification.Template) (notification.Template, error) {
	t.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE notification_templates
		SET name = $2, channel = $3, subject_template = $4, body_template = $5,
		    required_params = $6, category = $7, updated_at = $8
		WHERE id = $1`,
		t.ID, t.Name, string(t.Channel), t.SubjectTemplate, t.BodyTemplate,
		pq.Array(t.RequiredParams), t.Category, t.UpdatedAt)
	if err != nil {
		return notification.Template{}, mapError("update template", "template", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notification.Template{}, mapError("update template", "template", t.ID, errNoRows)
	}
	return s.GetTemplate(ctx, t.ID)
}

func (s *Store) GetTemplate(ctx context.Context, id string) (notification.Template, error) {
	var row templateRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM notification_templates WHERE id = $1`, id); err != nil {
		return notification.Template{}, mapError("get template", "template", id, err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListTemplates(ctx context.Context, ownerID string) ([]notification.Template, error) {
	var rows []templateRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM notification_templates WHERE ($1 = '' OR owner_id = $1) ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, mapError("list templates", "template", "", err)
	}
	out := make([]notification.Template, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notification_templates WHERE id = $1`, id)
	if err != nil {
		return mapError("delete template", "template", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return mapError("delete template", "template", id, errNoRows)
	}
	return nil
}

type notificationRow struct {
	ID          string         `db:"id"`
	TemplateID  string         `db:"template_id"`
	OwnerID     string         `db:"owner_id"`
	Channel     string         `db:"channel"`
	Subject     string         `db:"subject"`
	Body        string         `db:"body"`
	Recipients  pq.StringArray `db:"recipients"`
	Params      []byte         `db:"params"`
	Priority    int            `db:"priority"`
	ScheduledAt time.Time      `db:"scheduled_at"`
	Status      string         `db:"status"`
	Results     []byte         `db:"results"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r notificationRow) toDomain() notification.Delivery {
	var params map[string]string
	_ = json.Unmarshal(r.Params, &params)
	var results []notification.RecipientResult
	_ = json.Unmarshal(r.Results, &results)
	return notification.Delivery{
		ID:          r.ID,
		TemplateID:  r.TemplateID,
		OwnerID:     r.OwnerID,
		Channel:     notification.Channel(r.Channel),
		Subject:     r.Subject,
		Body:        r.Body,
		Recipients:  r.Recipients,
		Params:      params,
		Priority:    notification.Priority(r.Priority),
		ScheduledAt: r.ScheduledAt,
		Status:      notification.DeliveryStatus(r.Status),
		Results:     results,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (s *Store) CreateNotification(ctx context.Context, d notification.Delivery) (notification.Delivery, error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	params, err := json.Marshal(d.Params)
	if err != nil {
		return notification.Delivery{}, mapError("create notification", "notification", d.ID, err)
	}
	results, err := json.Marshal(d.Results)
	if err != nil {
		return notification.Delivery{}, mapError("create notification", "notification", d.ID, err)
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notification_deliveries (id, template_id, owner_id, channel, subject, body, recipients,
		                                     params, priority, scheduled_at, status, results, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		d.ID, d.TemplateID, d.OwnerID, string(d.Channel), d.Subject, d.Body, pq.Array(d.Recipients),
		params, int(d.Priority), d.ScheduledAt, string(d.Status), results, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return notification.Delivery{}, mapError("create notification", "notification", d.ID, err)
	}
	return d, nil
}

func (s *Store) UpdateNotification(ctx context.Context, d notification.Delivery) (notification.Delivery, error) {
	results, err := json.Marshal(d.Results)
	if err != nil {
		return notification.Delivery{}, mapError("update notification", "notification", d.ID, err)
	}
	d.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE notification_deliveries
		SET status = $2, results = $3, scheduled_at = $4, updated_at = $5
		WHERE id = $1 AND status NOT IN ('sent', 'failed', 'cancelled')`,
		d.ID, string(d.Status), results, d.ScheduledAt, d.UpdatedAt)
	if err != nil {
		return notification.Delivery{}, mapError("update notification", "notification", d.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, getErr := s.GetNotification(ctx, d.ID); getErr == nil {
			return notification.Delivery{}, errors.Conflict("notification delivery is terminal")
		}
		return notification.Delivery{}, mapError("update notification", "notification", d.ID, errNoRows)
	}
	return d, nil
}

func (s *Store) GetNotification(ctx context.Context, id string) (notification.Delivery, error) {
	var row notificationRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM notification_deliveries WHERE id = $1`, id); err != nil {
		return notification.Delivery{}, mapError("get notification", "notification", id, err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListNotifications(ctx context.Context, ownerID string, offset, limit int) ([]notification.Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM notification_deliveries
		WHERE ($1 = '' OR owner_id = $1)
		ORDER BY created_at DESC
		OFFSET $2 LIMIT $3`, ownerID, offset, limit)
	if err != nil {
		return nil, mapError("list notifications", "notification", "", err)
	}
	out := make([]notification.Delivery, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) ListDueNotifications(ctx context.Context, before time.Time, limit int) ([]notification.Delivery, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM notification_deliveries
		WHERE status = 'queued' AND scheduled_at <= $1
		ORDER BY priority DESC, scheduled_at ASC
		LIMIT $2`, before, limit)
	if err != nil {
		return nil, mapError("list due notifications", "notification", "", err)
	}
	out := make([]notification.Delivery, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
