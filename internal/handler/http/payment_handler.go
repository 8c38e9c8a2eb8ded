package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/garment-order-service/internal/payment"
)

type CheckoutSessionResponse struct {
	SessionID   string          `json:"session_id"`
	RedirectURL string          `json:"redirect_url"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// SuccessRequest is replayed by the client after the provider redirects back.
// Product and quantity are only needed when the session id was lost.
type SuccessRequest struct {
	SessionID string    `json:"session_id"`
	ProductID uuid.UUID `json:"product_id" validate:"required_without=SessionID"`
	Quantity  int       `json:"quantity" validate:"required_without=SessionID,gte=0"`
}

type PaymentHandler struct {
	bridge   payment.Bridge
	validate *validator.Validate
}

func NewPaymentHandler(bridge payment.Bridge) *PaymentHandler {
	return &PaymentHandler{
		bridge:   bridge,
		validate: validator.New(),
	}
}

func (h *PaymentHandler) RegisterRoutes(router chi.Router) {
	router.Post("/payments/checkout-session", h.handleCreateCheckoutSession)
	router.Post("/payments/success", h.handlePaymentSuccess)
}

func (h *PaymentHandler) handleCreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}
	var requestPayload BookingRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	session, err := h.bridge.CreateCheckoutIntent(r.Context(), principal, requestPayload.toDraft())
	if err != nil {
		respondWithServiceError(w, err, "Failed to create checkout session")
		return
	}

	respondWithJSON(w, http.StatusCreated, CheckoutSessionResponse{
		SessionID:   session.ID,
		RedirectURL: session.RedirectURL,
		Amount:      session.Amount,
		Currency:    session.Currency,
		ExpiresAt:   session.ExpiresAt,
	})
}

func (h *PaymentHandler) handlePaymentSuccess(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}
	var requestPayload SuccessRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	created, err := h.bridge.MaterializeOrder(r.Context(), principal, payment.SuccessMetadata{
		SessionID: requestPayload.SessionID,
		ProductID: requestPayload.ProductID,
		Quantity:  requestPayload.Quantity,
	})
	if err != nil {
		respondWithServiceError(w, err, "Failed to confirm payment")
		return
	}

	respondWithJSON(w, http.StatusOK, created)
}
