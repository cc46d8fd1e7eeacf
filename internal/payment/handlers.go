package payment

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Caqil/oncart-backend/internal/cart"
	"github.com/Caqil/oncart-backend/internal/common"
)

// Handler exposes the payment HTTP API.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type createIntentRequest struct {
	OrderID  string `json:"orderId" validate:"required,uuid4"`
	Provider string `json:"provider,omitempty" validate:"omitempty,oneof=stripe paypal razorpay"`
}

// CreateIntent handles POST /api/v1/payments/intent.
func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid intent request", nil)
		return
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}

	intent, err := h.Svc.CreateIntent(r.Context(), orderID, req.Provider)
	if err != nil {
		common.RenderError(w, err, "payment operation failed")
		return
	}
	common.Data(w, http.StatusCreated, intent)
}

type confirmRequest struct {
	ConfirmationToken string `json:"confirmationToken" validate:"required"`
}

// Confirm handles POST /api/v1/payments/{paymentId}/confirm.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := h.paymentID(w, r)
	if !ok {
		return
	}
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "confirmation token required", nil)
		return
	}

	p, err := h.Svc.Confirm(r.Context(), paymentID, req.ConfirmationToken)
	if err != nil {
		common.RenderError(w, err, "payment operation failed")
		return
	}
	common.Data(w, http.StatusOK, p)
}

type refundRequest struct {
	Amount cart.Money `json:"amount" validate:"gte=0"`
	Reason string     `json:"reason,omitempty" validate:"max=500"`
}

// Refund handles POST /api/v1/payments/{paymentId}/refund.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := h.paymentID(w, r)
	if !ok {
		return
	}
	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid refund request", nil)
		return
	}

	refund, err := h.Svc.Refund(r.Context(), paymentID, req.Amount, req.Reason)
	if err != nil {
		common.RenderError(w, err, "payment operation failed")
		return
	}
	common.Data(w, http.StatusOK, refund)
}

// Get handles GET /api/v1/payments/{paymentId}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := h.paymentID(w, r)
	if !ok {
		return
	}
	p, err := h.Svc.Get(r.Context(), paymentID)
	if err != nil {
		common.RenderError(w, err, "payment operation failed")
		return
	}
	common.Data(w, http.StatusOK, p)
}

func (h *Handler) paymentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "paymentId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payment id", nil)
		return uuid.Nil, false
	}
	return id, true
}
