package api

import (
	"context"
	"encoding/json"
	"net/http"
	"os/exec"

	"github.com/avatargate/avatargate/internal/account"
	"github.com/avatargate/avatargate/internal/artifact"
	"github.com/avatargate/avatargate/internal/config"
	"github.com/avatargate/avatargate/internal/job"
	"github.com/avatargate/avatargate/internal/metrics"
	"github.com/avatargate/avatargate/internal/queue"
	"github.com/avatargate/avatargate/internal/store"
)

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	cfg       *config.Config
	accounts  *account.Service
	store     store.Store
	registry  *job.Registry
	queue     *queue.Queue
	artifacts *artifact.Store
}

// NewHandler constructs a Handler with the given dependencies.
func NewHandler(cfg *config.Config, accounts *account.Service, st store.Store, registry *job.Registry, q *queue.Queue, artifacts *artifact.Store) *Handler {
	return &Handler{
		cfg:       cfg,
		accounts:  accounts,
		store:     st,
		registry:  registry,
		queue:     q,
		artifacts: artifacts,
	}
}

// RegisterRoutes registers all API routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/health", h.Health)

	mux.HandleFunc("POST /api/v1/register", h.Register)
	mux.HandleFunc("POST /api/v1/login", h.Login)
	mux.HandleFunc("POST /api/v1/logout", h.Logout)
	mux.HandleFunc("GET /api/v1/profile", h.Profile)
	mux.HandleFunc("DELETE /api/v1/videos/{id}", h.DeleteVideo)

	mux.HandleFunc("POST /api/v1/generate", h.Generate)
	mux.HandleFunc("GET /api/v1/status/{id}", h.Status)
	mux.HandleFunc("GET /api/v1/jobs/{id}/events", h.StreamSSE)

	mux.Handle("GET "+artifact.URLPrefix, h.artifacts.Handler())
	mux.Handle("GET /metrics", metrics.Handler())
}

// Routes returns all routes wrapped in the middleware chain.
func (h *Handler) Routes(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return Chain(mux,
		CORS(h.cfg.CORSOrigins),
		RequestID,
		Logging,
		RateLimit(ctx, h.cfg.RateLimitRPS),
	)
}

// Health handles GET /api/v1/health and responds 200.
// It also reports whether the synthesis executable can be found.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok", "synthesis": "missing"}
	if _, err := exec.LookPath(h.cfg.Synthesis.Executable); err == nil {
		resp["synthesis"] = "found"
	}
	writeJSON(w, http.StatusOK, resp)
}

// Status handles GET /api/v1/status/{id}. Unknown ids are not an error.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Get(r.PathValue("id")))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
