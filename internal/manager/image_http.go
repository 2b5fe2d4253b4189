package manager

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"inferd/pkg/types"
)

// Request body cap for the generation endpoint.
const imageMaxBodyBytes int64 = 1 << 20

// wrapperMux builds the HTTP surface served on the image server's port.
// This is the public generation contract: GET /health and
// POST /v1/images/generations.
func (s *ImageServer) wrapperMux() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(types.HealthResponse{Status: "ok"})
	})

	r.Post("/v1/images/generations", func(w http.ResponseWriter, req *http.Request) {
		ct := req.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeWrapperError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		req.Body = http.MaxBytesReader(w, req.Body, imageMaxBodyBytes)
		var body types.GenerateImageRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeWrapperError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(body.Prompt) == "" {
			writeWrapperError(w, http.StatusBadRequest, "prompt is required")
			return
		}

		resp, err := s.Generate(req.Context(), body)
		if err != nil {
			if req.Context().Err() != nil {
				return
			}
			switch {
			case IsTooBusy(err):
				writeWrapperError(w, http.StatusTooManyRequests, err.Error())
			case IsNotRunning(err):
				writeWrapperError(w, http.StatusConflict, err.Error())
			case IsInsufficientResources(err):
				writeWrapperError(w, http.StatusInsufficientStorage, err.Error())
			default:
				writeWrapperError(w, http.StatusInternalServerError, err.Error())
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			s.log.Error().Err(err).Msg("failed to encode generation response")
		}
	})

	return r
}

// writeWrapperError writes a consistent JSON error payload.
func writeWrapperError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
