package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/model"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
)

type UserHandler struct {
	userService *service.UserService
	validate    *validator.Validate
}

func NewUserHandler(userService *service.UserService, v *validator.Validate) *UserHandler {
	return &UserHandler{userService: userService, validate: v}
}

// RegisterRoutes mounts v1 user routes
func (h *UserHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /users", h.getOrCreateUser)
	mux.HandleFunc("PUT /users/tier", h.updateTier)
	mux.HandleFunc("POST /users/usage", h.trackUsage)
	mux.HandleFunc("GET /users/{extensionUserId}/model", h.getUserModel)
	mux.HandleFunc("GET /users/{extensionUserId}/usage", h.getUsageStats)
}

func (h *UserHandler) getOrCreateUser(w http.ResponseWriter, r *http.Request) {
	var req dto.UserUpsertDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.userService.GetOrCreate(r.Context(), req.ExtensionUserID, req.Email, model.Tier(req.Tier), req.PlanName)
	if err != nil {
		http.Error(w, "Failed to get or create user: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toUserDTO(user))
}

func (h *UserHandler) updateTier(w http.ResponseWriter, r *http.Request) {
	var req dto.UserTierUpdateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.userService.UpdateTier(r.Context(), req.ExtensionUserID, model.Tier(req.Tier), req.PlanName, req.Email)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to update tier: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toUserDTO(user))
}

func (h *UserHandler) trackUsage(w http.ResponseWriter, r *http.Request) {
	var req dto.TrackUsageDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	err := h.userService.TrackUsage(r.Context(), req.ExtensionUserID, req.VideosProcessed, req.TokensUsed, req.CostIncurred)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to track usage: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Usage tracked"})
}

func (h *UserHandler) getUserModel(w http.ResponseWriter, r *http.Request) {
	extID := r.PathValue("extensionUserId")
	if extID == "" {
		http.Error(w, "Extension user ID is required", http.StatusBadRequest)
		return
	}

	um, err := h.userService.GetModel(r.Context(), extID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to get user model: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := dto.UserModelResponseDTO{
		User:           toUserDTO(um.User),
		RequiresAPIKey: um.RequiresAPIKey,
	}
	if um.Model != nil {
		resp.Model = &dto.ModelConfigDTO{
			Tier:            string(um.Model.Tier),
			ModelID:         um.Model.ModelID,
			ModelName:       um.Model.ModelName,
			MaxOutputTokens: um.Model.MaxOutputTokens,
			CostPer1MInput:  um.Model.CostPer1MInput,
			CostPer1MOutput: um.Model.CostPer1MOutput,
			ContextWindow:   um.Model.ContextWindow,
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *UserHandler) getUsageStats(w http.ResponseWriter, r *http.Request) {
	extID := r.PathValue("extensionUserId")
	if extID == "" {
		http.Error(w, "Extension user ID is required", http.StatusBadRequest)
		return
	}

	stats, err := h.userService.Stats(r.Context(), extID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to get usage stats: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := dto.UsageStatsResponseDTO{
		TotalVideos: stats.TotalVideos,
		TotalTokens: stats.TotalTokens,
		TotalCost:   stats.TotalCost,
		VideosToday: stats.VideosToday,
		Videos7d:    stats.Videos7d,
		Videos30d:   stats.Videos30d,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func toUserDTO(u *model.User) dto.UserResponseDTO {
	return dto.UserResponseDTO{
		ExtensionUserID: u.ExtensionUserID,
		Email:           u.Email,
		Tier:            string(u.Tier),
		PlanName:        u.PlanName,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}
