package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	domainwebhook "github.com/ataiva-software/vertex-sub003/internal/domain/webhook"
	"github.com/ataiva-software/vertex-sub003/internal/httputil"
	"github.com/ataiva-software/vertex-sub003/internal/hub/webhook"
)

const timeFormat = time.RFC3339

type retryPolicyBody struct {
	BaseMS      int64   `json:"base_ms"`
	CapMS       int64   `json:"cap_ms"`
	MaxAttempts int     `json:"max_attempts"`
	Jitter      float64 `json:"jitter"`
}

type webhookResponse struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	TargetURL     string          `json:"target_url"`
	EventPatterns []string        `json:"events"`
	Active        bool            `json:"active"`
	RetryPolicy   retryPolicyBody `json:"retry_policy"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
}

func toWebhookResponse(wh domainwebhook.Webhook) webhookResponse {
	return webhookResponse{
		ID:            wh.ID,
		Name:          wh.Name,
		TargetURL:     wh.TargetURL,
		EventPatterns: wh.EventPatterns,
		Active:        wh.Active,
		RetryPolicy: retryPolicyBody{
			BaseMS:      wh.RetryPolicy.Base.Milliseconds(),
			CapMS:       wh.RetryPolicy.Cap.Milliseconds(),
			MaxAttempts: wh.RetryPolicy.MaxAttempts,
			Jitter:      wh.RetryPolicy.Jitter,
		},
		CreatedAt: wh.CreatedAt.Format(timeFormat),
		UpdatedAt: wh.UpdatedAt.Format(timeFormat),
	}
}

type deliveryResponse struct {
	ID              string `json:"id"`
	WebhookID       string `json:"webhook_id"`
	EventID         string `json:"event_id"`
	EventType       string `json:"event_type"`
	Attempt         int    `json:"attempt"`
	Status          string `json:"status"`
	RequestSummary  string `json:"request_summary,omitempty"`
	ResponseSummary string `json:"response_summary,omitempty"`
	NextAttemptAt   string `json:"next_attempt_at,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func toDeliveryResponse(d domainwebhook.Delivery) deliveryResponse {
	out := deliveryResponse{
		ID:              d.ID,
		WebhookID:       d.WebhookID,
		EventID:         d.EventID,
		EventType:       d.EventType,
		Attempt:         d.Attempt,
		Status:          string(d.Status),
		RequestSummary:  d.RequestSummary,
		ResponseSummary: d.ResponseSummary,
		CreatedAt:       d.CreatedAt.Format(timeFormat),
	}
	if d.Status == domainwebhook.StatusPending && !d.NextAttemptAt.IsZero() {
		out.NextAttemptAt = d.NextAttemptAt.Format(timeFormat)
	}
	return out
}

func (s *Server) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Name        string           `json:"name"`
		TargetURL   string           `json:"target_url"`
		Events      []string         `json:"events"`
		Secret      string           `json:"secret"`
		RetryPolicy *retryPolicyBody `json:"retry_policy"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	in := webhook.CreateInput{
		Name:      body.Name,
		TargetURL: body.TargetURL,
		Patterns:  body.Events,
		Secret:    body.Secret,
	}
	if body.RetryPolicy != nil {
		in.RetryPolicy = &domainwebhook.RetryPolicy{
			Base:        time.Duration(body.RetryPolicy.BaseMS) * time.Millisecond,
			Cap:         time.Duration(body.RetryPolicy.CapMS) * time.Millisecond,
			MaxAttempts: body.RetryPolicy.MaxAttempts,
			Jitter:      body.RetryPolicy.Jitter,
		}
	}

	wh, err := s.hub.CreateWebhook(r.Context(), actor, in)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toWebhookResponse(wh))
}

func (s *Server) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	hooks, err := s.hub.Webhooks.List(r.Context(), actor)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	out := make([]webhookResponse, 0, len(hooks))
	for _, wh := range hooks {
		out = append(out, toWebhookResponse(wh))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetWebhook(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	wh, err := s.hub.Webhooks.Get(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toWebhookResponse(wh))
}

func (s *Server) handleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Name      *string  `json:"name"`
		TargetURL *string  `json:"target_url"`
		Events    []string `json:"events"`
		Secret    *string  `json:"secret"`
		Active    *bool    `json:"active"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	wh, err := s.hub.UpdateWebhook(r.Context(), actor, mux.Vars(r)["id"], webhook.UpdateInput{
		Name:      body.Name,
		TargetURL: body.TargetURL,
		Patterns:  body.Events,
		Secret:    body.Secret,
		Active:    body.Active,
	})
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toWebhookResponse(wh))
}

func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	if err := s.hub.DeleteWebhook(r.Context(), actor, mux.Vars(r)["id"]); err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeliverWebhook(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		EventType string         `json:"event_type"`
		Payload   map[string]any `json:"payload"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	if body.EventType == "" {
		body.EventType = "manual.delivery"
	}

	d, err := s.hub.DeliverWebhook(r.Context(), actor, mux.Vars(r)["id"], body.EventType, body.Payload)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, toDeliveryResponse(d))
}

func (s *Server) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	offset, limit := httputil.PaginationParams(r, 20, 100)
	status := domainwebhook.DeliveryStatus(httputil.QueryString(r, "status", ""))

	ds, err := s.hub.Webhooks.Deliveries(r.Context(), actor, mux.Vars(r)["id"], status, offset, limit)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	out := make([]deliveryResponse, 0, len(ds))
	for _, d := range ds {
		out = append(out, toDeliveryResponse(d))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleCancelDelivery(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	d, err := s.hub.Webhooks.Cancel(r.Context(), actor, mux.Vars(r)["deliveryId"])
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDeliveryResponse(d))
}

func (s *Server) handleReplayDelivery(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	d, err := s.hub.Webhooks.Replay(r.Context(), actor, mux.Vars(r)["deliveryId"])
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, toDeliveryResponse(d))
}
