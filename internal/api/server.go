// Package api exposes the hub over a stateless HTTP boundary.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/ataiva-software/vertex-sub003/internal/auth"
	"github.com/ataiva-software/vertex-sub003/internal/cache"
	"github.com/ataiva-software/vertex-sub003/internal/config"
	"github.com/ataiva-software/vertex-sub003/internal/hub"
	"github.com/ataiva-software/vertex-sub003/pkg/logger"
	"github.com/ataiva-software/vertex-sub003/pkg/metrics"
)

// TokenValidator resolves bearer tokens to caller identity.
type TokenValidator interface {
	Validate(token string) (auth.Context, error)
}

// Server bundles the HTTP handlers for the hub services.
type Server struct {
	hub      *hub.Hub
	tokens   TokenValidator
	cache    *cache.Cache
	log      *logger.Logger
	upgrader websocket.Upgrader
}

// NewServer builds the router with the full middleware chain.
func NewServer(h *hub.Hub, tokens TokenValidator, c *cache.Cache, cfg *config.Config, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("api")
	}
	s := &Server{
		hub:    h,
		tokens: tokens,
		cache:  c,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	r := mux.NewRouter()

	// Operational endpoints bypass auth and rate limiting.
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	apiRouter := r.PathPrefix("/").Subrouter()
	apiRouter.Use(s.authMiddleware)
	if cfg.RateLimitEnabled {
		apiRouter.Use(rateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}

	apiRouter.HandleFunc("/integrations", s.handleCreateIntegration).Methods(http.MethodPost)
	apiRouter.HandleFunc("/integrations", s.handleListIntegrations).Methods(http.MethodGet)
	apiRouter.HandleFunc("/integrations/{id}", s.handleGetIntegration).Methods(http.MethodGet)
	apiRouter.HandleFunc("/integrations/{id}", s.handleUpdateIntegration).Methods(http.MethodPut)
	apiRouter.HandleFunc("/integrations/{id}", s.handleDeleteIntegration).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/integrations/{id}/test", s.handleTestIntegration).Methods(http.MethodPost)
	apiRouter.HandleFunc("/integrations/{id}/execute", s.handleExecuteIntegration).Methods(http.MethodPost)
	apiRouter.HandleFunc("/integrations/{id}/capabilities", s.handleIntegrationCapabilities).Methods(http.MethodGet)

	apiRouter.HandleFunc("/webhooks", s.handleCreateWebhook).Methods(http.MethodPost)
	apiRouter.HandleFunc("/webhooks", s.handleListWebhooks).Methods(http.MethodGet)
	apiRouter.HandleFunc("/webhooks/{id}", s.handleGetWebhook).Methods(http.MethodGet)
	apiRouter.HandleFunc("/webhooks/{id}", s.handleUpdateWebhook).Methods(http.MethodPut)
	apiRouter.HandleFunc("/webhooks/{id}", s.handleDeleteWebhook).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/webhooks/{id}/deliver", s.handleDeliverWebhook).Methods(http.MethodPost)
	apiRouter.HandleFunc("/webhooks/{id}/deliveries", s.handleListDeliveries).Methods(http.MethodGet)
	apiRouter.HandleFunc("/webhooks/deliveries/{deliveryId}/cancel", s.handleCancelDelivery).Methods(http.MethodPost)
	apiRouter.HandleFunc("/webhooks/deliveries/{deliveryId}/replay", s.handleReplayDelivery).Methods(http.MethodPost)

	apiRouter.HandleFunc("/notifications/templates", s.handleCreateNotificationTemplate).Methods(http.MethodPost)
	apiRouter.HandleFunc("/notifications/templates", s.handleListNotificationTemplates).Methods(http.MethodGet)
	apiRouter.HandleFunc("/notifications/templates/{id}", s.handleGetNotificationTemplate).Methods(http.MethodGet)
	apiRouter.HandleFunc("/notifications/templates/{id}", s.handleDeleteNotificationTemplate).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/notifications/templates/{id}/preview", s.handlePreviewTemplate).Methods(http.MethodPost)
	apiRouter.HandleFunc("/notifications/send", s.handleSendNotification).Methods(http.MethodPost)
	apiRouter.HandleFunc("/notifications", s.handleListNotifications).Methods(http.MethodGet)
	apiRouter.HandleFunc("/notifications/{id}", s.handleGetNotification).Methods(http.MethodGet)
	apiRouter.HandleFunc("/notifications/{id}/cancel", s.handleCancelNotification).Methods(http.MethodPost)

	apiRouter.HandleFunc("/events/subscribe", s.handleSubscribe).Methods(http.MethodPost)
	apiRouter.HandleFunc("/events/subscriptions", s.handleListSubscriptions).Methods(http.MethodGet)
	apiRouter.HandleFunc("/events/subscriptions/{id}", s.handleUnsubscribe).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/events/publish", s.handlePublishEvent).Methods(http.MethodPost)
	apiRouter.HandleFunc("/events", s.handleListEvents).Methods(http.MethodGet)
	apiRouter.HandleFunc("/events/stream", s.handleEventStream).Methods(http.MethodGet)

	apiRouter.HandleFunc("/reports/templates", s.handleCreateReportTemplate).Methods(http.MethodPost)
	apiRouter.HandleFunc("/reports/templates", s.handleListReportTemplates).Methods(http.MethodGet)
	apiRouter.HandleFunc("/reports/templates/{id}", s.handleDeleteReportTemplate).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/reports", s.handleCreateReport).Methods(http.MethodPost)
	apiRouter.HandleFunc("/reports", s.handleListReports).Methods(http.MethodGet)
	apiRouter.HandleFunc("/reports/{id}", s.handleGetReport).Methods(http.MethodGet)
	apiRouter.HandleFunc("/reports/{id}", s.handleUpdateReport).Methods(http.MethodPut)
	apiRouter.HandleFunc("/reports/{id}", s.handleDeleteReport).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/reports/{id}/run", s.handleRunReport).Methods(http.MethodPost)
	apiRouter.HandleFunc("/reports/{id}/cancel", s.handleCancelReportExecution).Methods(http.MethodPost)
	apiRouter.HandleFunc("/reports/{id}/executions", s.handleListExecutions).Methods(http.MethodGet)

	var handler http.Handler = r
	handler = timeoutMiddleware(cfg.RequestTimeout)(handler)
	handler = bodyLimitMiddleware(cfg.BodyLimitBytes)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(log)(handler)
	handler = recoveryMiddleware(log)(handler)
	return handler
}

// muxCurrentRoute returns the matched route template, if any.
func muxCurrentRoute(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return ""
}

// NewHTTPServer wraps the handler in a configured http.Server.
func NewHTTPServer(handler http.Handler, addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
