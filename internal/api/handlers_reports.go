package api

import (
	"net/http"

	"github.com/gorilla/mux"

	domainreport "github.com/ataiva-software/vertex-sub003/internal/domain/report"
	"github.com/ataiva-software/vertex-sub003/internal/httputil"
	"github.com/ataiva-software/vertex-sub003/internal/insight/reports"
)

type reportResponse struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	TemplateID    string            `json:"template_id"`
	Params        map[string]string `json:"params,omitempty"`
	Schedule      string            `json:"schedule,omitempty"`
	Timezone      string            `json:"timezone,omitempty"`
	Recipients    []string          `json:"recipients,omitempty"`
	OutputFormat  string            `json:"output_format"`
	Active        bool              `json:"active"`
	LastGenerated string            `json:"last_generated,omitempty"`
	NextExecution string            `json:"next_execution,omitempty"`
	CreatedAt     string            `json:"created_at"`
}

func toReportResponse(rep domainreport.Report) reportResponse {
	out := reportResponse{
		ID:           rep.ID,
		Name:         rep.Name,
		TemplateID:   rep.TemplateID,
		Params:       rep.Params,
		Schedule:     rep.Schedule,
		Timezone:     rep.Timezone,
		Recipients:   rep.Recipients,
		OutputFormat: string(rep.OutputFormat),
		Active:       rep.Active,
		CreatedAt:    rep.CreatedAt.Format(timeFormat),
	}
	if !rep.LastGenerated.IsZero() {
		out.LastGenerated = rep.LastGenerated.Format(timeFormat)
	}
	if !rep.NextExecution.IsZero() {
		out.NextExecution = rep.NextExecution.Format(timeFormat)
	}
	return out
}

type executionResponse struct {
	ID         string `json:"id"`
	ReportID   string `json:"report_id"`
	StartedAt  string `json:"started_at"`
	EndedAt    string `json:"ended_at,omitempty"`
	Status     string `json:"status"`
	OutputPath string `json:"output_path,omitempty"`
	Bytes      int64  `json:"bytes,omitempty"`
	Error      string `json:"error,omitempty"`
}

func toExecutionResponse(ex domainreport.Execution) executionResponse {
	out := executionResponse{
		ID:         ex.ID,
		ReportID:   ex.ReportID,
		StartedAt:  ex.StartedAt.Format(timeFormat),
		Status:     string(ex.Status),
		OutputPath: ex.OutputPath,
		Bytes:      ex.Bytes,
		Error:      ex.Error,
	}
	if !ex.EndedAt.IsZero() {
		out.EndedAt = ex.EndedAt.Format(timeFormat)
	}
	return out
}

func (s *Server) handleCreateReportTemplate(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Name             string   `json:"name"`
		Content          string   `json:"content"`
		RequiredParams   []string `json:"required_params"`
		SupportedFormats []string `json:"supported_formats"`
		Category         string   `json:"category"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	formats := make([]domainreport.Format, 0, len(body.SupportedFormats))
	for _, f := range body.SupportedFormats {
		formats = append(formats, domainreport.Format(f))
	}

	t, err := s.hub.Reports.CreateTemplate(r.Context(), actor, reports.TemplateInput{
		Name:             body.Name,
		Content:          body.Content,
		RequiredParams:   body.RequiredParams,
		SupportedFormats: formats,
		Category:         body.Category,
	})
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"id":       t.ID,
		"name":     t.Name,
		"category": t.Category,
	})
}

func (s *Server) handleListReportTemplates(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	templates, err := s.hub.Reports.ListTemplates(r.Context(), actor)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(templates))
	for _, t := range templates {
		out = append(out, map[string]any{
			"id":              t.ID,
			"name":            t.Name,
			"required_params": t.RequiredParams,
			"category":        t.Category,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteReportTemplate(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	if err := s.hub.Reports.DeleteTemplate(r.Context(), actor, mux.Vars(r)["id"]); err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Name         string            `json:"name"`
		TemplateID   string            `json:"template_id"`
		Params       map[string]string `json:"params"`
		Schedule     string            `json:"schedule"`
		Timezone     string            `json:"timezone"`
		Recipients   []string          `json:"recipients"`
		OutputFormat string            `json:"output_format"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	rep, err := s.hub.CreateReport(r.Context(), actor, reports.CreateInput{
		Name:         body.Name,
		TemplateID:   body.TemplateID,
		Params:       body.Params,
		Schedule:     body.Schedule,
		Timezone:     body.Timezone,
		Recipients:   body.Recipients,
		OutputFormat: domainreport.Format(body.OutputFormat),
	})
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toReportResponse(rep))
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	reps, err := s.hub.Reports.List(r.Context(), actor)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	out := make([]reportResponse, 0, len(reps))
	for _, rep := range reps {
		out = append(out, toReportResponse(rep))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	rep, err := s.hub.Reports.Get(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toReportResponse(rep))
}

func (s *Server) handleUpdateReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Name       *string           `json:"name"`
		Params     map[string]string `json:"params"`
		Schedule   *string           `json:"schedule"`
		Timezone   *string           `json:"timezone"`
		Recipients []string          `json:"recipients"`
		Active     *bool             `json:"active"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	rep, err := s.hub.Reports.Update(r.Context(), actor, mux.Vars(r)["id"], reports.UpdateInput{
		Name:       body.Name,
		Params:     body.Params,
		Schedule:   body.Schedule,
		Timezone:   body.Timezone,
		Recipients: body.Recipients,
		Active:     body.Active,
	})
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toReportResponse(rep))
}

func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	if err := s.hub.Reports.Delete(r.Context(), actor, mux.Vars(r)["id"]); err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	ex, err := s.hub.RunReportNow(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, toExecutionResponse(ex))
}

func (s *Server) handleCancelReportExecution(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	reportID := mux.Vars(r)["id"]
	if _, err := s.hub.Reports.Get(r.Context(), actor, reportID); err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	if !s.hub.Scheduler.CancelExecution(reportID) {
		httputil.NotFound(w, "no running execution")
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	limit := httputil.QueryInt(r, "limit", 50)
	exs, err := s.hub.Reports.Executions(r.Context(), actor, mux.Vars(r)["id"], limit)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	out := make([]executionResponse, 0, len(exs))
	for _, ex := range exs {
		out = append(out, toExecutionResponse(ex))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
