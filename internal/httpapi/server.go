package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"inferd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
// *manager.Manager satisfies it.
type Service interface {
	ListModels() []types.Model
	RescanModels() error
	Status(ctx context.Context) types.StatusResponse
	StartServer(ctx context.Context, name string, req types.ServerConfigRequest) error
	StopServer(ctx context.Context, name string) error
	ServerHealth(ctx context.Context, name string) (types.HealthResponse, error)
	GenerateImage(ctx context.Context, req types.GenerateImageRequest) (types.GenerateImageResponse, error)
}

type api struct {
	svc Service
}

// NewMux builds the control API router.
func NewMux(svc Service) http.Handler {
	a := &api{svc: svc}
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	r.Use(MetricsMiddleware)

	r.Get("/healthz", a.handleHealthz)
	r.Get("/v1/models", a.handleListModels)
	r.Post("/v1/models/rescan", a.handleRescanModels)
	r.Get("/v1/status", a.handleStatus)
	r.Post("/v1/servers/{name}/start", a.handleStartServer)
	r.Post("/v1/servers/{name}/stop", a.handleStopServer)
	r.Get("/v1/servers/{name}/health", a.handleServerHealth)
	r.Post("/v1/images/generations", a.handleGenerateImage)

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)

	return r
}

// handleHealthz godoc
// @Summary      Liveness probe
// @Description  Always answers ok while the daemon runs.
// @Produce      plain
// @Success      200 {string} string "ok"
// @Router       /healthz [get]
func (a *api) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleListModels godoc
// @Summary      List catalog models
// @Produce      json
// @Success      200 {object} types.ModelsResponse
// @Router       /v1/models [get]
func (a *api) handleListModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, types.ModelsResponse{Models: a.svc.ListModels()})
}

// handleRescanModels godoc
// @Summary      Rescan the models directory
// @Produce      json
// @Success      200 {object} types.ModelsResponse
// @Failure      500 {object} types.ErrorResponse
// @Router       /v1/models/rescan [post]
func (a *api) handleRescanModels(w http.ResponseWriter, _ *http.Request) {
	if err := a.svc.RescanModels(); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, types.ModelsResponse{Models: a.svc.ListModels()})
}

// handleStatus godoc
// @Summary      Daemon status
// @Description  Reports both servers, arbitration state and a hardware snapshot.
// @Produce      json
// @Success      200 {object} types.StatusResponse
// @Router       /v1/status [get]
func (a *api) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.svc.Status(r.Context()))
}

// handleStartServer godoc
// @Summary      Start a managed server
// @Description  Resolves the model, acquires a binary if needed, spawns the
// @Description  server and waits for it to become healthy.
// @Accept       json
// @Produce      json
// @Param        name    path  string                    true  "Server name: text or image"
// @Param        request body  types.ServerConfigRequest false "Launch configuration"
// @Success      204 {string} string "started"
// @Failure      400 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Failure      409 {object} types.ErrorResponse
// @Failure      502 {object} types.ErrorResponse
// @Failure      507 {object} types.ErrorResponse
// @Router       /v1/servers/{name}/start [post]
func (a *api) handleStartServer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req types.ServerConfigRequest
	if r.ContentLength != 0 {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	logRequestStart(r, "server_start", map[string]string{"server": name, "model": req.Model})
	start := time.Now()
	ctx, cancel := requestContext(r)
	defer cancel()
	if err := a.svc.StartServer(ctx, name, req); err != nil {
		// If context was canceled (client disconnect or shutdown), just return.
		if r.Context().Err() != nil || baseCtx.Err() != nil {
			return
		}
		status := statusForError(err)
		writeJSONError(w, status, err.Error())
		logRequestEnd(r, "server_start", status, start, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	logRequestEnd(r, "server_start", http.StatusNoContent, start, nil)
}

// handleStopServer godoc
// @Summary      Stop a managed server
// @Description  Stopping a stopped server is a no-op.
// @Produce      json
// @Param        name path string true "Server name: text or image"
// @Success      204 {string} string "stopped"
// @Failure      404 {object} types.ErrorResponse
// @Router       /v1/servers/{name}/stop [post]
func (a *api) handleStopServer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ctx, cancel := requestContext(r)
	defer cancel()
	if err := a.svc.StopServer(ctx, name); err != nil {
		writeJSONError(w, statusForError(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleServerHealth godoc
// @Summary      Probe a managed server
// @Description  Returns status stopped without probing when the server is not running.
// @Produce      json
// @Param        name path string true "Server name: text or image"
// @Success      200 {object} types.HealthResponse
// @Failure      404 {object} types.ErrorResponse
// @Router       /v1/servers/{name}/health [get]
func (a *api) handleServerHealth(w http.ResponseWriter, r *http.Request) {
	h, err := a.svc.ServerHealth(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeJSONError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, h)
}

// handleGenerateImage godoc
// @Summary      Generate an image
// @Description  Runs one synchronous text-to-image job. A second concurrent
// @Description  request is rejected with 429 rather than queued.
// @Accept       json
// @Produce      json
// @Param        request body types.GenerateImageRequest true "Generation request"
// @Success      200 {object} types.GenerateImageResponse
// @Failure      400 {object} types.ErrorResponse
// @Failure      409 {object} types.ErrorResponse
// @Failure      415 {object} types.ErrorResponse
// @Failure      429 {object} types.ErrorResponse
// @Failure      507 {object} types.ErrorResponse
// @Router       /v1/images/generations [post]
func (a *api) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req types.GenerateImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	lvl := requestLogLevel(r)
	if lvl >= LevelInfo {
		logRequestStart(r, "generate", nil)
	}
	start := time.Now()
	ctx, cancel := requestContext(r)
	defer cancel()
	resp, err := a.svc.GenerateImage(ctx, req)
	if err != nil {
		if r.Context().Err() != nil || baseCtx.Err() != nil {
			return
		}
		status := statusForError(err)
		if status == http.StatusTooManyRequests {
			IncrementBackpressure("image_generation")
		}
		writeJSONError(w, status, err.Error())
		if lvl >= LevelInfo {
			logRequestEnd(r, "generate", status, start, err)
		}
		return
	}
	writeJSON(w, resp)
	if lvl >= LevelInfo {
		logRequestEnd(r, "generate", http.StatusOK, start, nil)
	}
}

// writeJSON writes v as a JSON response body.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}
