package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ataiva-software/vertex-sub003/internal/auth"
	domainintegration "github.com/ataiva-software/vertex-sub003/internal/domain/integration"
	"github.com/ataiva-software/vertex-sub003/internal/httputil"
	"github.com/ataiva-software/vertex-sub003/internal/hub/connector"
	"github.com/ataiva-software/vertex-sub003/internal/hub/integration"
)

func (s *Server) actor(w http.ResponseWriter, r *http.Request) (auth.Context, bool) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		httputil.Unauthorized(w, "")
		return auth.Context{}, false
	}
	return actor, true
}

type integrationResponse struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	Name          string            `json:"name"`
	Config        map[string]string `json:"config"`
	CredentialRef string            `json:"credential_ref,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	Active        bool              `json:"active"`
	CreatedAt     string            `json:"created_at"`
	UpdatedAt     string            `json:"updated_at"`
}

func toIntegrationResponse(in domainintegration.Integration) integrationResponse {
	return integrationResponse{
		ID:            in.ID,
		Type:          string(in.Type),
		Name:          in.Name,
		Config:        in.Config,
		CredentialRef: in.CredentialRef,
		Tags:          in.Tags,
		Active:        in.Active,
		CreatedAt:     in.CreatedAt.Format(timeFormat),
		UpdatedAt:     in.UpdatedAt.Format(timeFormat),
	}
}

func (s *Server) handleCreateIntegration(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Type          string            `json:"type"`
		Name          string            `json:"name"`
		Config        map[string]string `json:"config"`
		CredentialRef string            `json:"credential_ref"`
		Tags          []string          `json:"tags"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	in, err := s.hub.RegisterIntegration(r.Context(), actor, domainintegration.Type(body.Type), body.Name, body.Config, body.CredentialRef, body.Tags)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toIntegrationResponse(in))
}

func (s *Server) handleListIntegrations(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	ins, err := s.hub.Integrations.List(r.Context(), actor)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	out := make([]integrationResponse, 0, len(ins))
	for _, in := range ins {
		out = append(out, toIntegrationResponse(in))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetIntegration(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	in, err := s.hub.Integrations.Get(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toIntegrationResponse(in))
}

func (s *Server) handleUpdateIntegration(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Name          *string           `json:"name"`
		Config        map[string]string `json:"config"`
		CredentialRef *string           `json:"credential_ref"`
		Tags          []string          `json:"tags"`
		Active        *bool             `json:"active"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	in, err := s.hub.UpdateIntegration(r.Context(), actor, mux.Vars(r)["id"], integration.Patch{
		Name:          body.Name,
		Config:        body.Config,
		CredentialRef: body.CredentialRef,
		Tags:          body.Tags,
		Active:        body.Active,
	})
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toIntegrationResponse(in))
}

func (s *Server) handleDeleteIntegration(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	if err := s.hub.DeleteIntegration(r.Context(), actor, mux.Vars(r)["id"]); err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTestIntegration(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	result, err := s.hub.Integrations.Test(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"ok":          result.OK,
		"latency_ms":  result.Latency.Milliseconds(),
		"diagnostics": result.Diagnostics,
	})
}

func (s *Server) handleExecuteIntegration(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Op     string           `json:"op"`
		Params connector.Params `json:"params"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	if body.Op == "" {
		httputil.BadRequest(w, "op required")
		return
	}

	result, err := s.hub.ExecuteIntegration(r.Context(), actor, mux.Vars(r)["id"], body.Op, body.Params)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (s *Server) handleIntegrationCapabilities(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	caps, err := s.hub.Integrations.Capabilities(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, caps)
}
