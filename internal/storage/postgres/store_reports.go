package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ataiva-software/vertex-sub003/internal/domain/report"
	"github.com/ataiva-software/vertex-sub003/internal/errors"
)

type reportTemplateRow struct {
	ID               string         `db:"id"`
	OwnerID          string         `db:"owner_id"`
	Name             string         `db:"name"`
	Content          string         `db:"content"`
	RequiredParams   pq.StringArray `db:"required_params"`
	SupportedFormats pq.StringArray `db:"supported_formats"`
	Category         string         `db:"category"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (r reportTemplateRow) toDomain() report.Template {
	formats := make([]report.Format, 0, len(r.SupportedFormats))
	for _, f := range r.SupportedFormats {
		formats = append(formats, report.Format(f))
	}
	return report.Template{
		ID:               r.ID,
		OwnerID:          r.OwnerID,
		Name:             r.Name,
		Content:          r.Content,
		RequiredParams:   r.RequiredParams,
		SupportedFormats: formats,
		Category:         r.Category,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func formatsToStrings(formats []report.Format) []string {
	out := make([]string, 0, len(formats))
	for _, f := range formats {
		out = append(out, string(f))
	}
	return out
}

func (s *Store) CreateReportTemplate(ctx context.Context, t report.Template) (report.Template, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO report_templates (id, owner_id, name, content, required_params, supported_formats, category, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.OwnerID, t.Name, t.Content, pq.Array(t.RequiredParams),
		pq.Array(formatsToStrings(t.SupportedFormats)), t.Category, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return report.Template{}, mapError("create report template", "report template", t.Name, err)
	}
	return t, nil
}

func (s *Store) UpdateReportTemplate(ctx context.Context, t report.Template) (report.Template, error) {
	t.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE report_templates
		SET name = $2, content = $3, required_params = $4, supported_formats = $5, category = $6, updated_at = $7
		WHERE id = $1`,
		t.ID, t.Name, t.Content, pq.Array(t.RequiredParams),
		pq.Array(formatsToStrings(t.SupportedFormats)), t.Category, t.UpdatedAt)
	if err != nil {
		return report.Template{}, mapError("update report template", "report template", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return report.Template{}, mapError("update report template", "report template", t.ID, errNoRows)
	}
	return s.GetReportTemplate(ctx, t.ID)
}

func (s *Store) GetReportTemplate(ctx context.Context, id string) (report.Template, error) {
	var row reportTemplateRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM report_templates WHERE id = $1`, id); err != nil {
		return report.Template{}, mapError("get report template", "report template", id, err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListReportTemplates(ctx context.Context, ownerID string) ([]report.Template, error) {
	var rows []reportTemplateRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM report_templates WHERE ($1 = '' OR owner_id = $1) ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, mapError("list report templates", "report template", "", err)
	}
	out := make([]report.Template, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) DeleteReportTemplate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM report_templates WHERE id = $1`, id)
	if err != nil {
		return mapError("delete report template", "report template", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return mapError("delete report template", "report template", id, errNoRows)
	}
	return nil
}

type reportRow struct {
	ID            string         `db:"id"`
	OwnerID       string         `db:"owner_id"`
	TemplateID    string         `db:"template_id"`
	Name          string         `db:"name"`
	Params        []byte         `db:"params"`
	Schedule      string         `db:"schedule"`
	Timezone      string         `db:"timezone"`
	Recipients    pq.StringArray `db:"recipients"`
	OutputFormat  string         `db:"output_format"`
	Active        bool           `db:"active"`
	LastGenerated sql.NullTime   `db:"last_generated"`
	NextExecution sql.NullTime   `db:"next_execution"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r reportRow) toDomain() report.Report {
	var params map[string]string
	_ = json.Unmarshal(r.Params, &params)
	out := report.Report{
		ID:           r.ID,
		OwnerID:      r.OwnerID,
		TemplateID:   r.TemplateID,
		Name:         r.Name,
		Params:       params,
		Schedule:     r.Schedule,
		Timezone:     r.Timezone,
		Recipients:   r.Recipients,
		OutputFormat: report.Format(r.OutputFormat),
		Active:       r.Active,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.LastGenerated.Valid {
		out.LastGenerated = r.LastGenerated.Time
	}
	if r.NextExecution.Valid {
		out.NextExecution = r.NextExecution.Time
	}
	return out
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func (s *Store) CreateReport(ctx context.Context, r report.Report) (report.Report, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	params, err := json.Marshal(r.Params)
	if err != nil {
		return report.Report{}, mapError("create report", "report", r.Name, err)
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (id, owner_id, template_id, name, params, schedule, timezone, recipients,
		                     output_format, active, last_generated, next_execution, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		r.ID, r.OwnerID, r.TemplateID, r.Name, params, r.Schedule, r.Timezone, pq.Array(r.Recipients),
		string(r.OutputFormat), r.Active, nullTime(r.LastGenerated), nullTime(r.NextExecution), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return report.Report{}, mapError("create report", "report", r.Name, err)
	}
	return r, nil
}

func (s *Store) UpdateReport(ctx context.Context, r report.Report) (report.Report, error) {
	params, err := json.Marshal(r.Params)
	if err != nil {
		return report.Report{}, mapError("update report", "report", r.ID, err)
	}
	r.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE reports
		SET name = $2, params = $3, schedule = $4, timezone = $5, recipients = $6,
		    output_format = $7, active = $8, last_generated = $9, next_execution = $10, updated_at = $11
		WHERE id = $1`,
		r.ID, r.Name, params, r.Schedule, r.Timezone, pq.Array(r.Recipients),
		string(r.OutputFormat), r.Active, nullTime(r.LastGenerated), nullTime(r.NextExecution), r.UpdatedAt)
	if err != nil {
		return report.Report{}, mapError("update report", "report", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return report.Report{}, mapError("update report", "report", r.ID, errNoRows)
	}
	return r, nil
}

func (s *Store) GetReport(ctx context.Context, id string) (report.Report, error) {
	var row reportRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM reports WHERE id = $1`, id); err != nil {
		return report.Report{}, mapError("get report", "report", id, err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListReports(ctx context.Context, ownerID string) ([]report.Report, error) {
	var rows []reportRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM reports WHERE ($1 = '' OR owner_id = $1) ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, mapError("list reports", "report", "", err)
	}
	out := make([]report.Report, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) ListScheduledReports(ctx context.Context) ([]report.Report, error) {
	var rows []reportRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM reports WHERE active AND schedule <> '' ORDER BY created_at`)
	if err != nil {
		return nil, mapError("list scheduled reports", "report", "", err)
	}
	out := make([]report.Report, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) DeleteReport(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return mapError("delete report", "report", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return mapError("delete report", "report", id, errNoRows)
	}
	return nil
}

type executionRow struct {
	ID         string       `db:"id"`
	ReportID   string       `db:"report_id"`
	StartedAt  time.Time    `db:"started_at"`
	EndedAt    sql.NullTime `db:"ended_at"`
	Status     string       `db:"status"`
	OutputPath string       `db:"output_path"`
	Bytes      int64        `db:"bytes"`
	Error      string       `db:"error"`
}

func (r executionRow) toDomain() report.Execution {
	out := report.Execution{
		ID:         r.ID,
		ReportID:   r.ReportID,
		StartedAt:  r.StartedAt,
		Status:     report.ExecutionStatus(r.Status),
		OutputPath: r.OutputPath,
		Bytes:      r.Bytes,
		Error:      r.Error,
	}
	if r.EndedAt.Valid {
		out.EndedAt = r.EndedAt.Time
	}
	return out
}

func (s *Store) CreateExecution(ctx context.Context, ex report.Execution) (report.Execution, error) {
	if ex.ID == "" {
		ex.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO report_executions (id, report_id, started_at, ended_at, status, output_path, bytes, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ex.ID, ex.ReportID, ex.StartedAt, nullTime(ex.EndedAt), string(ex.Status), ex.OutputPath, ex.Bytes, ex.Error)
	if err != nil {
		return report.Execution{}, mapError("create execution", "execution", ex.ID, err)
	}
	return ex, nil
}

func (s *Store) UpdateExecution(ctx context.Context, ex report.Execution) (report.Execution, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE report_executions
		SET ended_at = $2, status = $3, output_path = $4, bytes = $5, error = $6
		WHERE id = $1 AND status = 'running'`,
		ex.ID, nullTime(ex.EndedAt), string(ex.Status), ex.OutputPath, ex.Bytes, ex.Error)
	if err != nil {
		return report.Execution{}, mapError("update execution", "execution", ex.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, getErr := s.GetExecution(ctx, ex.ID); getErr == nil {
			return report.Execution{}, errors.Conflict("execution is terminal")
		}
		return report.Execution{}, mapError("update execution", "execution", ex.ID, errNoRows)
	}
	return ex, nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (report.Execution, error) {
	var row executionRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM report_executions WHERE id = $1`, id); err != nil {
		return report.Execution{}, mapError("get execution", "execution", id, err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListExecutions(ctx context.Context, reportID string, limit int) ([]report.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []executionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM report_executions
		WHERE ($1 = '' OR report_id = $1::uuid)
		ORDER BY started_at DESC
		LIMIT $2`, reportID, limit)
	if err != nil {
		return nil, mapError("list executions", "execution", reportID, err)
	}
	out := make([]report.Execution, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
