package admin

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/galemark/ratelimitgw/ratelimit"
)

// Server wraps the admin HTTP server and mux.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer builds the admin API server bound to port, wired against
// pipeline. adminToken is checked against every request's Authorization
// header except /healthz; apiMaxBodyBytes bounds request bodies for
// mutating endpoints.
func NewServer(port int, adminToken string, pipeline *ratelimit.Pipeline, apiMaxBodyBytes int64) *Server {
	return NewServerWithAddress("", port, adminToken, pipeline, apiMaxBodyBytes)
}

// NewServerWithAddress is NewServer with an explicit listen address, used
// by tests that need a fixed loopback binding.
func NewServerWithAddress(listenAddress string, port int, adminToken string, pipeline *ratelimit.Pipeline, apiMaxBodyBytes int64) *Server {
	mux := http.NewServeMux()

	mux.Handle("GET /healthz", handleHealthz())

	authed := http.NewServeMux()
	authed.Handle("GET /api/v1/rules", handleListRules(pipeline))
	authed.Handle("GET /api/v1/rules/active", handleListActiveRules(pipeline))
	authed.Handle("GET /api/v1/rules/{id}", handleGetRule(pipeline))
	authed.Handle("POST /api/v1/rules", handleCreateRule(pipeline))
	authed.Handle("PUT /api/v1/rules/{id}", handleUpdateRule(pipeline))
	authed.Handle("PATCH /api/v1/rules/{id}/queue", handlePatchQueue(pipeline))
	authed.Handle("PATCH /api/v1/rules/{id}/body-limit", handlePatchBodyLimit(pipeline))
	authed.Handle("DELETE /api/v1/rules/{id}", handleDeleteRule(pipeline))
	authed.Handle("POST /api/v1/rules/refresh", handleRefreshRules(pipeline))

	authed.Handle("GET /api/v1/config", handleListConfig(pipeline))
	authed.Handle("GET /api/v1/config/{key}", handleGetConfig(pipeline))
	authed.Handle("POST /api/v1/config/{key}", handleSetConfig(pipeline))

	authed.Handle("GET /api/v1/events", handleEventStream(pipeline))

	limited := requestBodyLimitMiddleware(apiMaxBodyBytes, authed)
	mux.Handle("/api/", authMiddleware(adminToken, limited))

	srv := &http.Server{
		Addr:    net.JoinHostPort(listenAddress, strconv.Itoa(port)),
		Handler: mux,
	}
	return &Server{httpServer: srv, mux: mux}
}

// ListenAndServe starts the HTTP server. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the underlying http.Handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func handleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

// authMiddleware validates the Bearer token in the Authorization header
// against adminToken. An empty adminToken disables auth, for local
// development.
func authMiddleware(adminToken string, next http.Handler) http.Handler {
	if adminToken == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) || strings.TrimPrefix(auth, prefix) != adminToken {
			WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestBodyLimitMiddleware enforces a max request body size for
// downstream handlers.
func requestBodyLimitMiddleware(maxBytes int64, next http.Handler) http.Handler {
	if maxBytes <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}
