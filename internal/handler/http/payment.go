package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/harborpay/payment-engine/internal/service"
	"github.com/harborpay/payment-engine/pkg/httputil"
	"github.com/harborpay/payment-engine/pkg/validator"
)

// PaymentHandler handles HTTP requests for payment endpoints.
type PaymentHandler struct {
	service *service.PaymentService
	logger  *slog.Logger
}

// NewPaymentHandler creates a new payment HTTP handler.
func NewPaymentHandler(svc *service.PaymentService, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CreatePaymentRequest is the JSON request body for creating a payment.
type CreatePaymentRequest struct {
	ProviderID   string          `json:"provider_id" validate:"required"`
	Amount       int64           `json:"amount" validate:"required,gt=0"`
	CurrencyCode string          `json:"currency_code" validate:"required,len=3"`
	OrderID      string          `json:"order_id,omitempty"`
	SwapID       string          `json:"swap_id,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// UpdatePaymentRequest is the JSON request body for updating a payment's
// back references. Absent fields are left untouched.
type UpdatePaymentRequest struct {
	OrderID *string `json:"order_id,omitempty"`
	SwapID  *string `json:"swap_id,omitempty"`
}

// RefundPaymentRequest is the JSON request body for refunding a payment.
type RefundPaymentRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"required,oneof=discount return swap claim other"`
	Note   string `json:"note,omitempty"`
}

// --- Handlers ---

// CreatePayment handles POST /api/v1/payments
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req CreatePaymentRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	payment, err := h.service.Create(r.Context(), &service.CreatePaymentInput{
		ProviderID:   req.ProviderID,
		Amount:       req.Amount,
		CurrencyCode: req.CurrencyCode,
		OrderID:      req.OrderID,
		SwapID:       req.SwapID,
		Data:         req.Data,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: payment})
}

// GetPayment handles GET /api/v1/payments/{id}. The optional fields query
// parameter narrows the returned columns, e.g. ?fields=amount,amount_refunded.
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var fields []string
	if raw := r.URL.Query().Get("fields"); raw != "" {
		for _, f := range strings.Split(raw, ",") {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
	}

	payment, err := h.service.Retrieve(r.Context(), id.String(), fields...)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: payment})
}

// UpdatePayment handles POST /api/v1/payments/{id}
func (h *PaymentHandler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req UpdatePaymentRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	payment, err := h.service.Update(r.Context(), id.String(), &service.UpdatePaymentInput{
		OrderID: req.OrderID,
		SwapID:  req.SwapID,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: payment})
}

// CapturePayment handles POST /api/v1/payments/{id}/capture
func (h *PaymentHandler) CapturePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	payment, err := h.service.Capture(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: payment})
}

// RefundPayment handles POST /api/v1/payments/{id}/refund
func (h *PaymentHandler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req RefundPaymentRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	refund, err := h.service.Refund(r.Context(), id.String(), &service.RefundPaymentInput{
		Amount: req.Amount,
		Reason: req.Reason,
		Note:   req.Note,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: refund})
}
