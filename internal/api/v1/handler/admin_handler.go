package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
)

type AdminHandler struct {
	settingsService service.SettingsService
	modelService    service.ModelService
	usageService    *service.UsageService
	validate        *validator.Validate
}

func NewAdminHandler(settingsService service.SettingsService, modelService service.ModelService, usageService *service.UsageService, v *validator.Validate) *AdminHandler {
	return &AdminHandler{
		settingsService: settingsService,
		modelService:    modelService,
		usageService:    usageService,
		validate:        v,
	}
}

// RegisterRoutes mounts v1 admin routes behind the admin auth
// middleware.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("GET /admin/settings", authMw(http.HandlerFunc(h.listSettings)))
	mux.Handle("PUT /admin/settings/{key}", authMw(http.HandlerFunc(h.updateSetting)))
	mux.Handle("GET /admin/models", authMw(http.HandlerFunc(h.listModels)))
	mux.Handle("PUT /admin/models/{tier}", authMw(http.HandlerFunc(h.updateModel)))
	mux.Handle("GET /admin/analytics", authMw(http.HandlerFunc(h.getAnalytics)))
}

func (h *AdminHandler) listSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settingsService.List(r.Context())
	if err != nil {
		http.Error(w, "Failed to list settings: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := make([]dto.SettingResponseDTO, 0, len(settings))
	for _, s := range settings {
		resp = append(resp, toSettingDTO(&s))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *AdminHandler) updateSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		http.Error(w, "Setting key is required", http.StatusBadRequest)
		return
	}

	var req dto.SettingUpdateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	setting, err := h.settingsService.Update(r.Context(), key, req.Value, middleware.AdminEmail(r.Context()))
	if err != nil {
		if errors.Is(err, service.ErrSettingNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to update setting: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toSettingDTO(setting))
}

func (h *AdminHandler) listModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.modelService.List(r.Context())
	if err != nil {
		http.Error(w, "Failed to list models: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := make([]dto.ModelConfigDTO, 0, len(models))
	for _, m := range models {
		resp = append(resp, dto.ModelConfigDTO{
			Tier:            string(m.Tier),
			ModelID:         m.ModelID,
			ModelName:       m.ModelName,
			MaxOutputTokens: m.MaxOutputTokens,
			CostPer1MInput:  m.CostPer1MInput,
			CostPer1MOutput: m.CostPer1MOutput,
			ContextWindow:   m.ContextWindow,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *AdminHandler) updateModel(w http.ResponseWriter, r *http.Request) {
	tier := model.Tier(r.PathValue("tier"))
	if !tier.Valid() {
		http.Error(w, "Invalid tier", http.StatusBadRequest)
		return
	}

	var req dto.ModelUpdateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := h.modelService.UpdateForTier(r.Context(), tier, model.ModelConfig{
		ModelID:         req.ModelID,
		ModelName:       req.ModelName,
		MaxOutputTokens: req.MaxOutputTokens,
		CostPer1MInput:  req.CostPer1MInput,
		CostPer1MOutput: req.CostPer1MOutput,
		ContextWindow:   req.ContextWindow,
	}, middleware.AdminEmail(r.Context()))
	if err != nil {
		if errors.Is(err, service.ErrModelConfigTierMissing) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to update model: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dto.ModelConfigDTO{
		Tier:            string(updated.Tier),
		ModelID:         updated.ModelID,
		ModelName:       updated.ModelName,
		MaxOutputTokens: updated.MaxOutputTokens,
		CostPer1MInput:  updated.CostPer1MInput,
		CostPer1MOutput: updated.CostPer1MOutput,
		ContextWindow:   updated.ContextWindow,
	})
}

func (h *AdminHandler) getAnalytics(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > 365 {
			http.Error(w, "Invalid days parameter", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	series, err := h.usageService.Analytics(r.Context(), days)
	if err != nil {
		http.Error(w, "Failed to get analytics: "+err.Error(), http.StatusInternalServerError)
		return
	}

	usage := make([]dto.DailyUsageDTO, 0, len(series))
	for _, d := range series {
		usage = append(usage, dto.DailyUsageDTO{
			Date:        d.Date,
			Videos:      d.Videos,
			Tokens:      d.Tokens,
			Cost:        d.Cost,
			ActiveUsers: d.ActiveUsers,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dto.AnalyticsResponseDTO{Days: days, Usage: usage})
}

func toSettingDTO(s *model.SystemSetting) dto.SettingResponseDTO {
	return dto.SettingResponseDTO{
		Key:         s.Key,
		Value:       s.Value,
		Description: s.Description,
		UpdatedBy:   s.UpdatedBy,
		UpdatedAt:   s.UpdatedAt,
	}
}
