package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/garment-order-service/internal/auth"
	"github.com/vasiliy-maslov/garment-order-service/internal/order"
	"github.com/vasiliy-maslov/garment-order-service/internal/payment"
	"github.com/vasiliy-maslov/garment-order-service/internal/product"
	"github.com/vasiliy-maslov/garment-order-service/internal/user"
)

type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

// StageErrorResponse tells the caller which stage to request next.
type StageErrorResponse struct {
	Error          string `json:"error"`
	RequestedStage string `json:"requested_stage"`
	ExpectedStage  string `json:"expected_stage,omitempty"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrAccountSuspended), errors.Is(err, auth.ErrForbidden),
		errors.Is(err, user.ErrSelfModification):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, user.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, user.ErrNotFound), errors.Is(err, product.ErrNotFound),
		errors.Is(err, order.ErrOrderNotFound), errors.Is(err, payment.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrInvalidStateTransition), errors.Is(err, order.ErrIllegalStageTransition),
		errors.Is(err, order.ErrConflict), errors.Is(err, user.ErrEmailExists):
		return http.StatusConflict
	case errors.Is(err, payment.ErrInvalidAmount), errors.Is(err, order.ErrProductUnavailable),
		errors.Is(err, order.ErrInvalidQuantity), errors.Is(err, order.ErrInvalidCoordinate),
		errors.Is(err, order.ErrInvalidDelivery), errors.Is(err, product.ErrInvalidProduct),
		errors.Is(err, user.ErrInvalidRole), errors.Is(err, user.ErrInvalidRegistration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, order.ErrPaymentRequired), errors.Is(err, payment.ErrPaymentIncomplete):
		return http.StatusPaymentRequired
	case errors.Is(err, payment.ErrUpstreamPayment):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondWithServiceError writes err with the status mapErrorToStatusCode
// picks. Server-side failures never leak their message.
func respondWithServiceError(w http.ResponseWriter, err error, fallback string) {
	statusCode := mapErrorToStatusCode(err)

	var stageErr *order.StageError
	if errors.As(err, &stageErr) {
		respondWithJSON(w, statusCode, StageErrorResponse{
			Error:          stageErr.Error(),
			RequestedStage: stageErr.Requested.String(),
			ExpectedStage:  stageErr.Expected.String(),
		})
		return
	}

	switch statusCode {
	case http.StatusInternalServerError:
		log.Error().Err(err).Msg(fallback)
		respondWithError(w, statusCode, fallback)
	case http.StatusBadGateway:
		respondWithError(w, statusCode, "Payment provider is unavailable, please retry")
	case http.StatusUnauthorized:
		respondWithError(w, statusCode, "Invalid credentials")
	default:
		respondWithError(w, statusCode, err.Error())
	}
}

func formatValidationErrors(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		switch fe.Tag() {
		case "required", "required_without":
			details[fe.Field()] = "is required"
		case "email":
			details[fe.Field()] = "must be a valid email"
		case "min", "gte":
			details[fe.Field()] = fmt.Sprintf("must be at least %s", fe.Param())
		case "oneof":
			details[fe.Field()] = fmt.Sprintf("must be one of: %s", fe.Param())
		default:
			details[fe.Field()] = fmt.Sprintf("failed on %s", fe.Tag())
		}
	}
	return details
}

// decodeAndValidate decodes the JSON body into dst and validates it. It
// writes the error response itself and reports whether the caller may go on.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, validate *validator.Validate, dst interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		log.Warn().Err(err).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request payload %v", err))
		return false
	}

	err := validate.Struct(dst)
	if err == nil {
		return true
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
			Error:   "Validation failed",
			Details: formatValidationErrors(validationErrors),
		})
	} else {
		log.Error().Err(err).Type("validation_error_type", err).Msg("Unexpected error type during validation")
		respondWithError(w, http.StatusInternalServerError, "Internal validation error")
	}
	return false
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	idParam := chi.URLParam(r, name)
	id, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str(name, idParam).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return uuid.Nil, false
	}
	return id, true
}
