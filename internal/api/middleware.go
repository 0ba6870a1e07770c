package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ataiva-software/vertex-sub003/internal/auth"
	"github.com/ataiva-software/vertex-sub003/internal/httputil"
	"github.com/ataiva-software/vertex-sub003/pkg/logger"
	"github.com/ataiva-software/vertex-sub003/pkg/metrics"
)

type contextKey string

const authContextKey contextKey = "auth_context"

// ActorFromContext returns the authenticated caller stored by the auth
// middleware.
func ActorFromContext(ctx context.Context) (auth.Context, bool) {
	actor, ok := ctx.Value(authContextKey).(auth.Context)
	return actor, ok
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// recoveryMiddleware turns panics into opaque 500s.
func recoveryMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.WithField("path", r.URL.Path).Errorf("handler panicked: %v", rec)
					httputil.InternalError(w, "")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// loggingMiddleware emits one structured line per request and feeds the
// request metrics.
func loggingMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			traceID := r.Header.Get("X-Trace-Id")
			if traceID == "" {
				traceID = uuid.New().String()
			}
			ctx := context.WithValue(r.Context(), logger.TraceIDKey, traceID)
			w.Header().Set("X-Trace-Id", traceID)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			metrics.HTTPInFlight(1)
			next.ServeHTTP(rec, r.WithContext(ctx))
			metrics.HTTPInFlight(-1)

			elapsed := time.Since(start)
			metrics.ObserveHTTPRequest(r.Method, routePattern(r), rec.status, elapsed)
			log.WithField("method", r.Method).
				WithField("path", r.URL.Path).
				WithField("status", rec.status).
				WithField("trace_id", traceID).
				WithField("duration_ms", elapsed.Milliseconds()).
				Info("request handled")
		})
	}
}

// bodyLimitMiddleware rejects oversized payloads before handlers decode them.
func bodyLimitMiddleware(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				httputil.BadRequest(w, "payload exceeds maximum size")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

// timeoutMiddleware bounds handler time with a per-request deadline. The
// event stream is long-lived and exempt.
func timeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/events/stream" {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// corsMiddleware handles cross-origin requests for the portal.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := false
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}
			if allowed && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitMiddleware applies a global token bucket at the API boundary.
func rateLimitMiddleware(rps, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// authMiddleware resolves the bearer token to an auth.Context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.FromBearerHeader(r.Header.Get("Authorization"))
		if !ok {
			// Websocket clients cannot set headers from browsers; accept the
			// token as a query parameter on the stream endpoint only.
			if r.URL.Path == "/events/stream" {
				token = r.URL.Query().Get("token")
				ok = token != ""
			}
		}
		if !ok {
			httputil.Unauthorized(w, "")
			return
		}

		actor, err := s.tokens.Validate(token)
		if err != nil {
			httputil.Unauthorized(w, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), authContextKey, actor)
		ctx = context.WithValue(ctx, logger.UserIDKey, actor.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// routePattern reduces high-cardinality paths for metric labels.
func routePattern(r *http.Request) string {
	if route := muxCurrentRoute(r); route != "" {
		return route
	}
	return r.URL.Path
}
