package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
)

type ProcessHandler struct {
	processService *service.ProcessService
	validate       *validator.Validate
}

func NewProcessHandler(processService *service.ProcessService, v *validator.Validate) *ProcessHandler {
	return &ProcessHandler{processService: processService, validate: v}
}

// RegisterRoutes mounts v1 processing routes
func (h *ProcessHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /videos/process", h.processChunk)
}

func (h *ProcessHandler) processChunk(w http.ResponseWriter, r *http.Request) {
	var req dto.ProcessChunkRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.processService.ProcessChunk(r.Context(), req.ExtensionUserID, req.VideoID, req.Transcript, req.Prompt, req.MaxTokens)
	if err != nil {
		writeProcessError(w, err)
		return
	}

	resp := dto.ProcessChunkResponseDTO{
		Content: result.Content,
		Usage: dto.ProcessUsageDTO{
			InputTokens:  result.Usage.InputTokens,
			OutputTokens: result.Usage.OutputTokens,
			TotalTokens:  result.Usage.TotalTokens,
			Cost:         result.Usage.Cost,
		},
		Model: result.Model,
		Tier:  string(result.Tier),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeProcessError maps processing failures to statuses the extension
// can act on: switch tier, retry later, or contact support. Provider
// failures keep the provider's own status code and detail.
func writeProcessError(w http.ResponseWriter, err error) {
	var provErr *service.ProviderError
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrTierNotEligible):
		http.Error(w, "This tier processes videos with its own API key; call the provider directly", http.StatusForbidden)
	case errors.As(err, &provErr):
		http.Error(w, provErr.Message, provErr.StatusCode)
	case errors.Is(err, service.ErrNoAPIKey), errors.Is(err, service.ErrModelNotFound), errors.Is(err, service.ErrEmptyCompletion):
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		http.Error(w, "Failed to process chunk: "+err.Error(), http.StatusInternalServerError)
	}
}
