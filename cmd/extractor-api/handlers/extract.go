// Package handlers provides HTTP handlers for the component extractor API.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/tabletopforge/component-extractor/internal/observability"
	"github.com/tabletopforge/component-extractor/pkg/pipeline"
)

// ExtractHandler handles component extraction requests.
type ExtractHandler struct {
	logger   *observability.Logger
	pipeline *pipeline.Pipeline
}

// NewExtractHandler creates a new extraction handler.
func NewExtractHandler(logger *observability.Logger, p *pipeline.Pipeline) *ExtractHandler {
	return &ExtractHandler{logger: logger, pipeline: p}
}

// ExtractRequestDTO represents the API request for extraction.
type ExtractRequestDTO struct {
	// Source is a PDF URL or a server-local path.
	Source  string           `json:"source"`
	Options pipeline.Options `json:"options"`
}

// Extract runs one extraction request. The pipeline folds every failure into
// a well-formed result, so this handler only rejects malformed requests.
func (h *ExtractHandler) Extract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Source == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}

	result := h.pipeline.Extract(r.Context(), req.Source, req.Options)

	status := http.StatusOK
	if result.Error != "" {
		status = http.StatusUnprocessableEntity
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
