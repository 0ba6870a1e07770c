package reports

import (
	"context"
	"strings"
	"time"

	"github.com/ataiva-software/vertex-sub003/internal/auth"
	domain "github.com/ataiva-software/vertex-sub003/internal/domain/report"
	"github.com/ataiva-software/vertex-sub003/internal/errors"
	"github.com/ataiva-software/vertex-sub003/internal/storage"
	"github.com/ataiva-software/vertex-sub003/pkg/logger"
)

// Service owns report and report-template definitions plus execution history.
// The Scheduler (scheduler.go) runs cron executions against the same store.
type Service struct {
	store storage.ReportStore
	log   *logger.Logger
}

// NewService creates the report service.
func NewService(store storage.ReportStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("reports")
	}
	return &Service{store: store, log: log}
}

// TemplateInput carries report-template fields.
type TemplateInput struct {
	Name             string
	Content          string
	RequiredParams   []string
	SupportedFormats []domain.Format
	Category         string
}

// CreateTemplate stores a report template.
func (s *Service) CreateTemplate(ctx context.Context, actor auth.Context, in TemplateInput) (domain.Template, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Template{}, errors.MissingParameter("name")
	}
	if strings.TrimSpace(in.Content) == "" {
		return domain.Template{}, errors.MissingParameter("content")
	}

	declared := make(map[string]struct{})
	for _, m := range reportPlaceholderRe.FindAllStringSubmatch(in.Content, -1) {
		declared[m[1]] = struct{}{}
	}
	for _, required := range in.RequiredParams {
		if _, ok := declared[required]; !ok {
			return domain.Template{}, errors.InvalidInput("required_params", "not a template placeholder: "+required)
		}
	}

	return s.store.CreateReportTemplate(ctx, domain.Template{
		OwnerID:          actor.UserID,
		Name:             name,
		Content:          in.Content,
		RequiredParams:   in.RequiredParams,
		SupportedFormats: in.SupportedFormats,
		Category:         in.Category,
	})
}

// GetTemplate fetches an owned report template.
func (s *Service) GetTemplate(ctx context.Context, actor auth.Context, id string) (domain.Template, error) {
	return s.getOwnedTemplate(ctx, actor, id)
}

// ListTemplates lists the caller's report templates.
func (s *Service) ListTemplates(ctx context.Context, actor auth.Context) ([]domain.Template, error) {
	return s.store.ListReportTemplates(ctx, actor.UserID)
}

// DeleteTemplate removes an owned report template.
func (s *Service) DeleteTemplate(ctx context.Context, actor auth.Context, id string) error {
	if _, err := s.getOwnedTemplate(ctx, actor, id); err != nil {
		return err
	}
	return s.store.DeleteReportTemplate(ctx, id)
}

// CreateInput carries report fields.
type CreateInput struct {
	Name         string
	TemplateID   string
	Params       map[string]string
	Schedule     string
	Timezone     string
	Recipients   []string
	OutputFormat domain.Format
}

// Create registers a report. A schedule, when present, must parse as valid
// cron in the stated timezone; NextExecution is primed from now.
func (s *Service) Create(ctx context.Context, actor auth.Context, in CreateInput) (domain.Report, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Report{}, errors.MissingParameter("name")
	}
	tmpl, err := s.getOwnedTemplate(ctx, actor, in.TemplateID)
	if err != nil {
		return domain.Report{}, err
	}

	format := in.OutputFormat
	if format == "" {
		format = domain.FormatJSON
	}
	if !tmpl.Supports(format) {
		return domain.Report{}, errors.InvalidInput("output_format",
			"template does not support format "+string(format))
	}

	rep := domain.Report{
		OwnerID:      actor.UserID,
		TemplateID:   tmpl.ID,
		Name:         name,
		Params:       in.Params,
		Schedule:     strings.TrimSpace(in.Schedule),
		Timezone:     strings.TrimSpace(in.Timezone),
		Recipients:   in.Recipients,
		OutputFormat: format,
		Active:       true,
	}
	if rep.Scheduled() {
		next, err := NextExecution(rep.Schedule, rep.Timezone, time.Now())
		if err != nil {
			return domain.Report{}, err
		}
		rep.NextExecution = next.UTC()
	}

	created, err := s.store.CreateReport(ctx, rep)
	if err != nil {
		return domain.Report{}, err
	}
	s.log.WithField("report_id", created.ID).
		WithField("schedule", created.Schedule).
		Info("report created")
	return created, nil
}

// UpdateInput carries partial report updates.
type UpdateInput struct {
	Name       *string
	Params     map[string]string
	Schedule   *string
	Timezone   *string
	Recipients []string
	Active     *bool
}

// Update applies a partial update; a schedule change recomputes the next
// execution.
func (s *Service) Update(ctx context.Context, actor auth.Context, id string, in UpdateInput) (domain.Report, error) {
	rep, err := s.getOwned(ctx, actor, id)
	if err != nil {
		return domain.Report{}, err
	}

	rescheduled := false
	if in.Name != nil {
		trimmed := strings.TrimSpace(*in.Name)
		if trimmed == "" {
			return domain.Report{}, errors.InvalidInput("name", "cannot be empty")
		}
		rep.Name = trimmed
	}
	if in.Params != nil {
		rep.Params = in.Params
	}
	if in.Schedule != nil {
		rep.Schedule = strings.TrimSpace(*in.Schedule)
		rescheduled = true
	}
	if in.Timezone != nil {
		rep.Timezone = strings.TrimSpace(*in.Timezone)
		rescheduled = true
	}
	if in.Recipients != nil {
		rep.Recipients = in.Recipients
	}
	if in.Active != nil {
		rep.Active = *in.Active
	}

	if rep.Scheduled() && rescheduled {
		next, err := NextExecution(rep.Schedule, rep.Timezone, time.Now())
		if err != nil {
			return domain.Report{}, err
		}
		rep.NextExecution = next.UTC()
	}
	if !rep.Scheduled() {
		rep.NextExecution = time.Time{}
	}

	return s.store.UpdateReport(ctx, rep)
}

// Get fetches an owned report.
func (s *Service) Get(ctx context.Context, actor auth.Context, id string) (domain.Report, error) {
	return s.getOwned(ctx, actor, id)
}

// List lists the caller's reports.
func (s *Service) List(ctx context.Context, actor auth.Context) ([]domain.Report, error) {
	return s.store.ListReports(ctx, actor.UserID)
}

// Delete removes an owned report.
func (s *Service) Delete(ctx context.Context, actor auth.Context, id string) error {
	if _, err := s.getOwned(ctx, actor, id); err != nil {
		return err
	}
	if err := s.store.DeleteReport(ctx, id); err != nil {
		return err
	}
	s.log.WithField("report_id", id).Info("report deleted")
	return nil
}

// Executions lists recent executions of an owned report.
func (s *Service) Executions(ctx context.Context, actor auth.Context, reportID string, limit int) ([]domain.Execution, error) {
	if _, err := s.getOwned(ctx, actor, reportID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListExecutions(ctx, reportID, limit)
}

func (s *Service) getOwned(ctx context.Context, actor auth.Context, id string) (domain.Report, error) {
	rep, err := s.store.GetReport(ctx, id)
	if err != nil {
		return domain.Report{}, err
	}
	if rep.OwnerID != actor.UserID && !actor.IsAdmin() {
		return domain.Report{}, errors.OwnershipRequired("report")
	}
	return rep, nil
}

func (s *Service) getOwnedTemplate(ctx context.Context, actor auth.Context, id string) (domain.Template, error) {
	tmpl, err := s.store.GetReportTemplate(ctx, id)
	if err != nil {
		return domain.Template{}, err
	}
	if tmpl.OwnerID != actor.UserID && !actor.IsAdmin() {
		return domain.Template{}, errors.OwnershipRequired("report template")
	}
	return tmpl, nil
}
