package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"ultraflow/internal/aiengine"
	"ultraflow/internal/gateway/service/flowchart"
	"ultraflow/internal/llm"
	"ultraflow/internal/pipeline"
)

type generateResponse struct {
	Success bool `json:"success"`
	pipeline.Result
}

// GenerateFlowchart handles POST /api/flowchart.
func (h *Handler) GenerateFlowchart(w http.ResponseWriter, r *http.Request) {
	var in flowchart.GenerateInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "request body must be a JSON object")
		return
	}
	ctx := llm.WithRequestID(r.Context(), chimiddleware.GetReqID(r.Context()))
	res, err := h.gen.Generate(ctx, in)
	if err != nil {
		status, code := statusFor(err)
		h.logger.Warn("flowchart generation failed",
			zap.String("request_id", llm.RequestIDFrom(ctx)),
			zap.String("code", code),
			zap.Error(err))
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{Success: true, Result: res})
}

type modelsResponse struct {
	Provider string `json:"provider"`
	Models   any    `json:"models"`
}

// ListModels handles GET /api/models/{provider}.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	models, err := h.catalog.ModelsForProvider(provider)
	if err != nil {
		var aerr *aiengine.Error
		if errors.As(err, &aerr) && aerr.Kind == aiengine.KindInvalidInput {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		writeError(w, http.StatusNotFound, "unknown_provider", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, modelsResponse{Provider: provider, Models: models})
}
