package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/garment-order-service/internal/product"
)

type ProductRequest struct {
	Name              string          `json:"name" validate:"required,min=2"`
	Description       string          `json:"description"`
	Category          string          `json:"category"`
	Price             decimal.Decimal `json:"price"`
	AvailableQuantity int             `json:"available_quantity" validate:"gte=0"`
	MinimumOrder      int             `json:"minimum_order" validate:"gte=1"`
	PaymentOption     string          `json:"payment_option" validate:"required,oneof=CashOnDelivery Prepaid"`
	ShowOnHome        bool            `json:"show_on_home"`
}

type ProductHandler struct {
	service  product.Service
	validate *validator.Validate
}

func NewProductHandler(service product.Service) *ProductHandler {
	return &ProductHandler{
		service:  service,
		validate: validator.New(),
	}
}

// RegisterPublicRoutes mounts the catalog reads.
func (h *ProductHandler) RegisterPublicRoutes(router chi.Router) {
	router.Get("/products", h.handleListProducts)
	router.Get("/products/{id}", h.handleGetProduct)
}

func (h *ProductHandler) RegisterRoutes(router chi.Router) {
	router.Post("/products", h.handleCreateProduct)
	router.Put("/products/{id}", h.handleUpdateProduct)
}

func (h *ProductHandler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	var filter product.ListFilter

	if owner := r.URL.Query().Get("owner_id"); owner != "" {
		ownerID, err := uuid.FromString(owner)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid owner_id")
			return
		}
		filter.OwnerManagerID = ownerID
	}
	if home := r.URL.Query().Get("home"); home != "" {
		onlyHome, err := strconv.ParseBool(home)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid home flag")
			return
		}
		filter.OnlyHome = onlyHome
	}

	products, err := h.service.ListProducts(r.Context(), filter)
	if err != nil {
		respondWithServiceError(w, err, "Failed to list products")
		return
	}
	if products == nil {
		products = []product.Product{}
	}

	respondWithJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	found, err := h.service.GetProduct(r.Context(), productID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to get product")
		return
	}

	respondWithJSON(w, http.StatusOK, found)
}

func (h *ProductHandler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}
	var requestPayload ProductRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	created, err := h.service.CreateProduct(r.Context(), principal, requestPayload.toInput())
	if err != nil {
		respondWithServiceError(w, err, "Failed to create product")
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *ProductHandler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}
	productID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}
	var requestPayload ProductRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	updated, err := h.service.UpdateProduct(r.Context(), principal, productID, requestPayload.toInput())
	if err != nil {
		respondWithServiceError(w, err, "Failed to update product")
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (p ProductRequest) toInput() product.Input {
	return product.Input{
		Name:              p.Name,
		Description:       p.Description,
		Category:          p.Category,
		Price:             p.Price,
		AvailableQuantity: p.AvailableQuantity,
		MinimumOrder:      p.MinimumOrder,
		PaymentOption:     product.PaymentOption(p.PaymentOption),
		ShowOnHome:        p.ShowOnHome,
	}
}
