package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	domainnotification "github.com/ataiva-software/vertex-sub003/internal/domain/notification"
	"github.com/ataiva-software/vertex-sub003/internal/httputil"
	"github.com/ataiva-software/vertex-sub003/internal/hub/notification"
)

type templateResponse struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Channel         string   `json:"channel"`
	SubjectTemplate string   `json:"subject_template,omitempty"`
	BodyTemplate    string   `json:"body_template"`
	RequiredParams  []string `json:"required_params,omitempty"`
	Category        string   `json:"category,omitempty"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
}

func toTemplateResponse(t domainnotification.Template) templateResponse {
	return templateResponse{
		ID:              t.ID,
		Name:            t.Name,
		Channel:         string(t.Channel),
		SubjectTemplate: t.SubjectTemplate,
		BodyTemplate:    t.BodyTemplate,
		RequiredParams:  t.RequiredParams,
		Category:        t.Category,
		CreatedAt:       t.CreatedAt.Format(timeFormat),
		UpdatedAt:       t.UpdatedAt.Format(timeFormat),
	}
}

type notificationResponse struct {
	ID          string                                `json:"id"`
	TemplateID  string                                `json:"template_id,omitempty"`
	Channel     string                                `json:"channel"`
	Recipients  []string                              `json:"recipients"`
	Priority    string                                `json:"priority"`
	ScheduledAt string                                `json:"scheduled_at"`
	Status      string                                `json:"status"`
	Results     []domainnotification.RecipientResult  `json:"results,omitempty"`
	CreatedAt   string                                `json:"created_at"`
}

func toNotificationResponse(d domainnotification.Delivery) notificationResponse {
	return notificationResponse{
		ID:          d.ID,
		TemplateID:  d.TemplateID,
		Channel:     string(d.Channel),
		Recipients:  d.Recipients,
		Priority:    d.Priority.String(),
		ScheduledAt: d.ScheduledAt.Format(timeFormat),
		Status:      string(d.Status),
		Results:     d.Results,
		CreatedAt:   d.CreatedAt.Format(timeFormat),
	}
}

func (s *Server) handleCreateNotificationTemplate(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Name            string   `json:"name"`
		Channel         string   `json:"channel"`
		SubjectTemplate string   `json:"subject_template"`
		BodyTemplate    string   `json:"body_template"`
		RequiredParams  []string `json:"required_params"`
		Category        string   `json:"category"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	t, err := s.hub.CreateNotificationTemplate(r.Context(), actor, notification.TemplateInput{
		Name:            body.Name,
		Channel:         domainnotification.Channel(body.Channel),
		SubjectTemplate: body.SubjectTemplate,
		BodyTemplate:    body.BodyTemplate,
		RequiredParams:  body.RequiredParams,
		Category:        body.Category,
	})
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toTemplateResponse(t))
}

func (s *Server) handleListNotificationTemplates(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	templates, err := s.hub.Notifications.ListTemplates(r.Context(), actor)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	out := make([]templateResponse, 0, len(templates))
	for _, t := range templates {
		out = append(out, toTemplateResponse(t))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetNotificationTemplate(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	t, err := s.hub.Notifications.GetTemplate(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTemplateResponse(t))
}

func (s *Server) handleDeleteNotificationTemplate(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	if err := s.hub.Notifications.DeleteTemplate(r.Context(), actor, mux.Vars(r)["id"]); err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePreviewTemplate(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Params map[string]string `json:"params"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	subject, rendered, err := s.hub.Notifications.Preview(r.Context(), actor, mux.Vars(r)["id"], body.Params)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"subject": subject, "body": rendered})
}

func (s *Server) handleSendNotification(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		TemplateID  string            `json:"template_id"`
		Recipients  []string          `json:"recipients"`
		Params      map[string]string `json:"params"`
		Priority    string            `json:"priority"`
		ScheduledAt string            `json:"scheduled_at"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	var scheduledAt time.Time
	if body.ScheduledAt != "" {
		parsed, err := time.Parse(time.RFC3339, body.ScheduledAt)
		if err != nil {
			httputil.BadRequest(w, "scheduled_at must be RFC3339")
			return
		}
		scheduledAt = parsed
	}

	d, err := s.hub.SendNotification(r.Context(), actor, notification.SendInput{
		TemplateID:  body.TemplateID,
		Recipients:  body.Recipients,
		Params:      body.Params,
		Priority:    domainnotification.ParsePriority(body.Priority),
		ScheduledAt: scheduledAt,
	})
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, toNotificationResponse(d))
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	offset, limit := httputil.PaginationParams(r, 20, 100)
	ds, err := s.hub.Notifications.List(r.Context(), actor, offset, limit)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	out := make([]notificationResponse, 0, len(ds))
	for _, d := range ds {
		out = append(out, toNotificationResponse(d))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetNotification(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	d, err := s.hub.Notifications.Get(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toNotificationResponse(d))
}

func (s *Server) handleCancelNotification(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	d, err := s.hub.Notifications.Cancel(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toNotificationResponse(d))
}
