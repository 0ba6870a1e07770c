package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	domainevent "github.com/ataiva-software/vertex-sub003/internal/domain/event"
	"github.com/ataiva-software/vertex-sub003/internal/httputil"
)

type subscriptionResponse struct {
	ID         string                  `json:"id"`
	Pattern    string                  `json:"pattern"`
	Predicates []domainevent.Predicate `json:"predicates,omitempty"`
	Kind       string                  `json:"kind"`
	WebhookID  string                  `json:"webhook_id,omitempty"`
	HandlerRef string                  `json:"handler_ref,omitempty"`
	Active     bool                    `json:"active"`
	CreatedAt  string                  `json:"created_at"`
}

func toSubscriptionResponse(sub domainevent.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:         sub.ID,
		Pattern:    sub.Pattern,
		Predicates: sub.Predicates,
		Kind:       string(sub.Kind),
		WebhookID:  sub.WebhookID,
		HandlerRef: sub.HandlerRef,
		Active:     sub.Active,
		CreatedAt:  sub.CreatedAt.Format(timeFormat),
	}
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Pattern    string                  `json:"pattern"`
		Predicates []domainevent.Predicate `json:"predicates"`
		Kind       string                  `json:"kind"`
		WebhookID  string                  `json:"webhook_id"`
		HandlerRef string                  `json:"handler_ref"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	if body.Kind == "" {
		body.Kind = string(domainevent.CallbackWebhook)
	}

	sub, err := s.hub.Subscribe(r.Context(), actor, domainevent.Subscription{
		Pattern:    body.Pattern,
		Predicates: body.Predicates,
		Kind:       domainevent.CallbackKind(body.Kind),
		WebhookID:  body.WebhookID,
		HandlerRef: body.HandlerRef,
	})
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toSubscriptionResponse(sub))
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	subs, err := s.hub.Broker.Subscriptions(r.Context(), actor)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	out := make([]subscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		out = append(out, toSubscriptionResponse(sub))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	if err := s.hub.Broker.Unsubscribe(r.Context(), actor, mux.Vars(r)["id"]); err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePublishEvent(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Type          string         `json:"type"`
		Source        string         `json:"source"`
		Payload       map[string]any `json:"payload"`
		CorrelationID string         `json:"correlation_id"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	ev, err := s.hub.PublishEvent(r.Context(), actor, body.Type, body.Source, body.Payload, body.CorrelationID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	// Publish is accepted-but-async: matching and fan-out happen off the
	// request path.
	httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
		"id":        ev.ID,
		"type":      ev.Type,
		"timestamp": ev.Timestamp.Format(timeFormat),
	})
}

// handleListEvents serves the activity feed over a time range. Responses are
// cached briefly under the queries class; repeated dashboard polls share one
// store read.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	end := time.Now().UTC()
	start := end.Add(-time.Hour)
	if v := httputil.QueryString(r, "start", ""); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.BadRequest(w, "start must be RFC3339")
			return
		}
		start = parsed
	}
	if v := httputil.QueryString(r, "end", ""); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.BadRequest(w, "end must be RFC3339")
			return
		}
		end = parsed
	}
	limit := httputil.QueryInt(r, "limit", 100)

	key := fmt.Sprintf("events:%d:%d:%d", start.Unix(), end.Unix(), limit)
	raw, err := s.cache.GetOrBuild(r.Context(), "queries", key, 30*time.Second, func(ctx context.Context) ([]byte, error) {
		evs, err := s.hub.EventsByTimeRange(ctx, actor, start, end, limit)
		if err != nil {
			return nil, err
		}
		return json.Marshal(evs)
	})
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

// handleEventStream upgrades to a websocket and forwards live events.
// Best-effort: slow readers miss events rather than applying backpressure.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.actor(w, r); !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	tap, detach := s.hub.Broker.Tap()
	defer detach()

	// Drain client frames so pings and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-tap:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(timeFormat),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.hub.Ready(r.Context()); err != nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	if s.cache != nil {
		if err := s.cache.Ping(r.Context()); err != nil {
			httputil.WriteError(w, http.StatusServiceUnavailable, "cache unreachable")
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
