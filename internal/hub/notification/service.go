package notification

import (
	"context"
	"strings"
	"time"

	"github.com/ataiva-software/vertex-sub003/internal/auth"
	domain "github.com/ataiva-software/vertex-sub003/internal/domain/notification"
	"github.com/ataiva-software/vertex-sub003/internal/errors"
	"github.com/ataiva-software/vertex-sub003/internal/storage"
	"github.com/ataiva-software/vertex-sub003/pkg/logger"
)

// Service owns notification templates and the delivery queue. The Dispatcher
// (dispatcher.go) drains due deliveries through channel transports.
type Service struct {
	store storage.NotificationStore
	log   *logger.Logger
}

// NewService creates the notification service.
func NewService(store storage.NotificationStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("notifications")
	}
	return &Service{store: store, log: log}
}

// TemplateInput carries template create/update fields.
type TemplateInput struct {
	Name            string
	Channel         domain.Channel
	SubjectTemplate string
	BodyTemplate    string
	RequiredParams  []string
	Category        string
}

// CreateTemplate validates and stores a template.
func (s *Service) CreateTemplate(ctx context.Context, actor auth.Context, in TemplateInput) (domain.Template, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Template{}, errors.MissingParameter("name")
	}
	if !knownChannel(in.Channel) {
		return domain.Template{}, errors.InvalidInput("channel", "unknown channel: "+string(in.Channel))
	}

	t := domain.Template{
		OwnerID:         actor.UserID,
		Name:            name,
		Channel:         in.Channel,
		SubjectTemplate: in.SubjectTemplate,
		BodyTemplate:    in.BodyTemplate,
		RequiredParams:  in.RequiredParams,
		Category:        in.Category,
	}
	if err := ValidateTemplate(t); err != nil {
		return domain.Template{}, err
	}

	created, err := s.store.CreateTemplate(ctx, t)
	if err != nil {
		return domain.Template{}, err
	}
	s.log.WithField("template_id", created.ID).WithField("channel", string(in.Channel)).Info("notification template created")
	return created, nil
}

// UpdateTemplate replaces the mutable fields of an owned template.
func (s *Service) UpdateTemplate(ctx context.Context, actor auth.Context, id string, in TemplateInput) (domain.Template, error) {
	t, err := s.getOwnedTemplate(ctx, actor, id)
	if err != nil {
		return domain.Template{}, err
	}

	if in.Name != "" {
		t.Name = strings.TrimSpace(in.Name)
	}
	if in.Channel != "" {
		if !knownChannel(in.Channel) {
			return domain.Template{}, errors.InvalidInput("channel", "unknown channel: "+string(in.Channel))
		}
		t.Channel = in.Channel
	}
	if in.SubjectTemplate != "" {
		t.SubjectTemplate = in.SubjectTemplate
	}
	if in.BodyTemplate != "" {
		t.BodyTemplate = in.BodyTemplate
	}
	if in.RequiredParams != nil {
		t.RequiredParams = in.RequiredParams
	}
	if in.Category != "" {
		t.Category = in.Category
	}
	if err := ValidateTemplate(t); err != nil {
		return domain.Template{}, err
	}

	return s.store.UpdateTemplate(ctx, t)
}

// GetTemplate fetches an owned template.
func (s *Service) GetTemplate(ctx context.Context, actor auth.Context, id string) (domain.Template, error) {
	return s.getOwnedTemplate(ctx, actor, id)
}

// ListTemplates lists the caller's templates.
func (s *Service) ListTemplates(ctx context.Context, actor auth.Context) ([]domain.Template, error) {
	return s.store.ListTemplates(ctx, actor.UserID)
}

// DeleteTemplate removes an owned template.
func (s *Service) DeleteTemplate(ctx context.Context, actor auth.Context, id string) error {
	if _, err := s.getOwnedTemplate(ctx, actor, id); err != nil {
		return err
	}
	return s.store.DeleteTemplate(ctx, id)
}

// Preview renders a template with the given params without sending.
func (s *Service) Preview(ctx context.Context, actor auth.Context, templateID string, params map[string]string) (subject, body string, err error) {
	t, err := s.getOwnedTemplate(ctx, actor, templateID)
	if err != nil {
		return "", "", err
	}
	return Render(t, params)
}

// SendInput carries enqueue fields.
type SendInput struct {
	TemplateID  string
	Recipients  []string
	Params      map[string]string
	Priority    domain.Priority
	ScheduledAt time.Time
}

// Send renders the template and enqueues a delivery. Scheduling in the past
// (or zero) means immediate.
func (s *Service) Send(ctx context.Context, actor auth.Context, in SendInput) (domain.Delivery, error) {
	if len(in.Recipients) == 0 {
		return domain.Delivery{}, errors.InvalidInput("recipients", "at least one recipient required")
	}

	t, err := s.getOwnedTemplate(ctx, actor, in.TemplateID)
	if err != nil {
		return domain.Delivery{}, err
	}

	subject, body, err := Render(t, in.Params)
	if err != nil {
		return domain.Delivery{}, err
	}

	now := time.Now().UTC()
	scheduledAt := in.ScheduledAt.UTC()
	if scheduledAt.Before(now) {
		scheduledAt = now
	}

	d := domain.Delivery{
		TemplateID:  t.ID,
		OwnerID:     actor.UserID,
		Channel:     t.Channel,
		Subject:     subject,
		Body:        body,
		Recipients:  in.Recipients,
		Params:      in.Params,
		Priority:    in.Priority,
		ScheduledAt: scheduledAt,
		Status:      domain.StatusQueued,
	}
	created, err := s.store.CreateNotification(ctx, d)
	if err != nil {
		return domain.Delivery{}, err
	}

	s.log.WithField("delivery_id", created.ID).
		WithField("channel", string(t.Channel)).
		WithField("recipients", len(in.Recipients)).
		WithField("priority", in.Priority.String()).
		Info("notification queued")
	return created, nil
}

// Get fetches an owned delivery.
func (s *Service) Get(ctx context.Context, actor auth.Context, id string) (domain.Delivery, error) {
	d, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return domain.Delivery{}, err
	}
	if d.OwnerID != actor.UserID && !actor.IsAdmin() {
		return domain.Delivery{}, errors.OwnershipRequired("notification")
	}
	return d, nil
}

// List pages through the caller's deliveries.
func (s *Service) List(ctx context.Context, actor auth.Context, offset, limit int) ([]domain.Delivery, error) {
	return s.store.ListNotifications(ctx, actor.UserID, offset, limit)
}

// Cancel marks a queued delivery cancelled before it is picked up.
func (s *Service) Cancel(ctx context.Context, actor auth.Context, id string) (domain.Delivery, error) {
	d, err := s.Get(ctx, actor, id)
	if err != nil {
		return domain.Delivery{}, err
	}
	if d.Status != domain.StatusQueued {
		return domain.Delivery{}, errors.Conflict("only queued deliveries can be cancelled")
	}
	d.Status = domain.StatusCancelled
	return s.store.UpdateNotification(ctx, d)
}

func (s *Service) getOwnedTemplate(ctx context.Context, actor auth.Context, id string) (domain.Template, error) {
	t, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return domain.Template{}, err
	}
	if t.OwnerID != actor.UserID && !actor.IsAdmin() {
		return domain.Template{}, errors.OwnershipRequired("template")
	}
	return t, nil
}

func knownChannel(c domain.Channel) bool {
	for _, known := range domain.KnownChannels() {
		if c == known {
			return true
		}
	}
	return false
}
