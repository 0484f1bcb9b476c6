package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
)

type BillingHandler struct {
	stripeService *service.StripeService
	validate      *validator.Validate
}

func NewBillingHandler(stripeService *service.StripeService, v *validator.Validate) *BillingHandler {
	return &BillingHandler{stripeService: stripeService, validate: v}
}

// RegisterRoutes mounts v1 billing routes. The webhook is registered
// separately at the top level because it must see the raw body.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /billing/checkout", h.createCheckout)
	mux.HandleFunc("POST /billing/change-subscription", h.changeSubscription)
	mux.HandleFunc("POST /billing/cancel-subscription", h.cancelSubscription)
	mux.HandleFunc("GET /billing/subscription-status/{extensionUserId}", h.subscriptionStatus)
}

func (h *BillingHandler) createCheckout(w http.ResponseWriter, r *http.Request) {
	var req dto.CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := h.stripeService.CreateCheckoutSession(r.Context(), req.ExtensionUserID, req.Email, req.PriceID, req.SuccessURL, req.CancelURL)
	if err != nil {
		writeBillingError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dto.CheckoutResponseDTO{SessionID: sess.SessionID, URL: sess.URL})
}

func (h *BillingHandler) changeSubscription(w http.ResponseWriter, r *http.Request) {
	var req dto.ChangeSubscriptionRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.stripeService.ChangeSubscription(r.Context(), req.ExtensionUserID, req.NewPriceID)
	if err != nil {
		writeBillingError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toUserDTO(user))
}

func (h *BillingHandler) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	var req dto.CancelSubscriptionRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.stripeService.CancelSubscription(r.Context(), req.ExtensionUserID, req.Immediate)
	if err != nil {
		writeBillingError(w, err)
		return
	}

	msg := "Subscription will cancel at the end of the billing period"
	if req.Immediate {
		msg = "Subscription canceled immediately"
	}
	resp := dto.CancelSubscriptionResponseDTO{
		SubscriptionID: result.SubscriptionID,
		Status:         result.Status,
		CancelAt:       result.CancelAt,
		Message:        msg,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *BillingHandler) subscriptionStatus(w http.ResponseWriter, r *http.Request) {
	extID := r.PathValue("extensionUserId")
	if extID == "" {
		http.Error(w, "Extension user ID is required", http.StatusBadRequest)
		return
	}

	status, err := h.stripeService.Status(r.Context(), extID)
	if err != nil {
		writeBillingError(w, err)
		return
	}

	resp := dto.SubscriptionStatusResponseDTO{
		Tier:     string(status.Tier),
		PlanName: status.PlanName,
	}
	if status.Subscription != nil {
		resp.Subscription = &dto.SubscriptionDetailDTO{
			ID:                status.Subscription.ID,
			Status:            status.Subscription.Status,
			PriceID:           status.Subscription.PriceID,
			CurrentPeriodEnd:  status.Subscription.CurrentPeriodEnd,
			CancelAtPeriodEnd: status.Subscription.CancelAtPeriodEnd,
			TrialEnd:          status.Subscription.TrialEnd,
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeBillingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrUserNotFound), errors.Is(err, service.ErrNoSubscription):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrStudentNotVerified):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, service.ErrPlanNotFound):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
