package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/garment-order-service/internal/auth"
	"github.com/vasiliy-maslov/garment-order-service/internal/order"
)

// BookingRequest is the booking form. Price and total are never accepted from
// the client.
type BookingRequest struct {
	ProductID       uuid.UUID `json:"product_id" validate:"required"`
	Quantity        int       `json:"quantity" validate:"gte=1"`
	FirstName       string    `json:"first_name" validate:"required"`
	LastName        string    `json:"last_name" validate:"required"`
	ContactNumber   string    `json:"contact_number" validate:"required"`
	DeliveryAddress string    `json:"delivery_address" validate:"required"`
	Notes           string    `json:"notes"`
}

type CoordinateRequest struct {
	Lat *float64 `json:"lat" validate:"required"`
	Lng *float64 `json:"lng" validate:"required"`
}

type StageRequest struct {
	Stage    string             `json:"stage" validate:"required"`
	Note     string             `json:"note"`
	Location *CoordinateRequest `json:"location"`
}

type OrderHandler struct {
	service  order.Service
	validate *validator.Validate
}

func NewOrderHandler(service order.Service) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Get("/orders", h.handleListOrders)
	router.Get("/orders/{id}", h.handleGetOrder)
	router.Post("/orders", h.handleCreateOrder)
	router.Put("/orders/{id}/approve", h.transitionHandler(h.service.ApproveOrder, "Failed to approve order"))
	router.Put("/orders/{id}/reject", h.transitionHandler(h.service.RejectOrder, "Failed to reject order"))
	router.Put("/orders/{id}/cancel", h.transitionHandler(h.service.CancelOrder, "Failed to cancel order"))
	router.Put("/orders/{id}/progress", h.handleAdvanceStage)
	router.Put("/orders/{id}/location", h.handleSetLocation)
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}
	var requestPayload BookingRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	created, err := h.service.CreateOrder(r.Context(), principal, requestPayload.toDraft())
	if err != nil {
		respondWithServiceError(w, err, "Failed to create order")
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}
	orderID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	found, err := h.service.GetOrder(r.Context(), principal, orderID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to get order")
		return
	}

	respondWithJSON(w, http.StatusOK, found)
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := order.ListFilter{Status: order.Status(query.Get("status"))}
	if filter.Status != "" && !filter.Status.Valid() {
		respondWithError(w, http.StatusBadRequest, "Invalid status filter")
		return
	}
	if raw := query.Get("customer_id"); raw != "" {
		customerID, err := uuid.FromString(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid customer_id")
			return
		}
		filter.CustomerID = customerID
	}
	if raw := query.Get("manager_scope"); raw != "" {
		scoped, err := strconv.ParseBool(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid manager_scope flag")
			return
		}
		filter.ManagerScope = scoped
	}

	orders, err := h.service.ListOrders(r.Context(), principal, filter)
	if err != nil {
		respondWithServiceError(w, err, "Failed to list orders")
		return
	}
	if orders == nil {
		orders = []order.Order{}
	}

	respondWithJSON(w, http.StatusOK, orders)
}

type transitionFunc func(ctx context.Context, actor auth.Principal, id uuid.UUID) (*order.Order, error)

func (h *OrderHandler) transitionHandler(transition transitionFunc, failure string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalFrom(w, r)
		if !ok {
			return
		}
		orderID, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		updated, err := transition(r.Context(), principal, orderID)
		if err != nil {
			respondWithServiceError(w, err, failure)
			return
		}

		respondWithJSON(w, http.StatusOK, updated)
	}
}

func (h *OrderHandler) handleAdvanceStage(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}
	orderID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}
	var requestPayload StageRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	adv := order.StageAdvance{
		Stage: order.Stage(requestPayload.Stage),
		Note:  requestPayload.Note,
	}
	if requestPayload.Location != nil {
		loc := requestPayload.Location.toCoordinate()
		adv.Location = &loc
	}

	updated, err := h.service.AdvanceStage(r.Context(), principal, orderID, adv)
	if err != nil {
		respondWithServiceError(w, err, "Failed to advance stage")
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *OrderHandler) handleSetLocation(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}
	orderID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}
	var requestPayload CoordinateRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	updated, err := h.service.SetCurrentLocation(r.Context(), principal, orderID, requestPayload.toCoordinate())
	if err != nil {
		respondWithServiceError(w, err, "Failed to update location")
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (b BookingRequest) toDraft() order.BookingDraft {
	return order.BookingDraft{
		ProductID: b.ProductID,
		Quantity:  b.Quantity,
		Delivery: order.DeliveryDetails{
			FirstName:       b.FirstName,
			LastName:        b.LastName,
			ContactNumber:   b.ContactNumber,
			DeliveryAddress: b.DeliveryAddress,
			Notes:           b.Notes,
		},
	}
}

func (c CoordinateRequest) toCoordinate() order.Coordinate {
	return order.Coordinate{Lat: *c.Lat, Lng: *c.Lng}
}
