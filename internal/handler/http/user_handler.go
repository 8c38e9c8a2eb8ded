package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/garment-order-service/internal/auth"
	"github.com/vasiliy-maslov/garment-order-service/internal/user"
)

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,min=2"`
	PhotoURL string `json:"photo_url" validate:"omitempty,url"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"omitempty,oneof=customer manager"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type SuspendRequest struct {
	Reason string `json:"reason" validate:"required,min=3"`
}

type RoleRequest struct {
	Role string `json:"role" validate:"required,oneof=customer manager admin"`
}

type UserResponse struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	PhotoURL      string    `json:"photo_url,omitempty"`
	Role          string    `json:"role"`
	Status        string    `json:"status"`
	SuspendReason string    `json:"suspend_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

type TokenIssuer interface {
	Issue(userID uuid.UUID) (string, time.Time, error)
}

type UserHandler struct {
	service  user.Service
	tokens   TokenIssuer
	validate *validator.Validate
}

func NewUserHandler(service user.Service, tokens TokenIssuer) *UserHandler {
	return &UserHandler{
		service:  service,
		tokens:   tokens,
		validate: validator.New(),
	}
}

// RegisterPublicRoutes mounts the routes reachable without a token.
func (h *UserHandler) RegisterPublicRoutes(router chi.Router) {
	router.Post("/auth/register", h.handleRegister)
	router.Post("/auth/login", h.handleLogin)
}

func (h *UserHandler) RegisterRoutes(router chi.Router) {
	router.Get("/profile", h.handleGetProfile)
	router.Get("/users", h.handleListUsers)
	router.Patch("/users/{id}/approve", h.handleApproveUser)
	router.Patch("/users/{id}/suspend", h.handleSuspendUser)
	router.Patch("/users/{id}/role", h.handleSetRole)
}

func (h *UserHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var requestPayload RegisterRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	createdUser, err := h.service.Register(r.Context(), user.Registration{
		Email:    requestPayload.Email,
		Name:     requestPayload.Name,
		PhotoURL: requestPayload.PhotoURL,
		Password: requestPayload.Password,
		Role:     auth.Role(requestPayload.Role),
	})
	if err != nil {
		respondWithServiceError(w, err, "Failed to register user")
		return
	}

	respondWithJSON(w, http.StatusCreated, toUserResponse(createdUser))
}

func (h *UserHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var requestPayload LoginRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	foundUser, err := h.service.Authenticate(r.Context(), requestPayload.Email, requestPayload.Password)
	if err != nil {
		respondWithServiceError(w, err, "Failed to authenticate")
		return
	}

	token, expiresAt, err := h.tokens.Issue(foundUser.ID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", foundUser.ID).Msg("Failed to issue token")
		respondWithError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	respondWithJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      toUserResponse(foundUser),
	})
}

func (h *UserHandler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}

	profile, err := h.service.GetProfile(r.Context(), principal.ID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to get profile")
		return
	}

	respondWithJSON(w, http.StatusOK, toUserResponse(profile))
}

func (h *UserHandler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}

	filter := user.ListFilter{
		Role:   auth.Role(r.URL.Query().Get("role")),
		Status: auth.AccountStatus(r.URL.Query().Get("status")),
	}
	if (filter.Role != "" && !filter.Role.Valid()) || (filter.Status != "" && !filter.Status.Valid()) {
		respondWithError(w, http.StatusBadRequest, "Invalid role or status filter")
		return
	}

	users, err := h.service.ListUsers(r.Context(), principal, filter)
	if err != nil {
		respondWithServiceError(w, err, "Failed to list users")
		return
	}

	response := make([]UserResponse, 0, len(users))
	for i := range users {
		response = append(response, toUserResponse(&users[i]))
	}
	respondWithJSON(w, http.StatusOK, response)
}

func (h *UserHandler) handleApproveUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}
	userID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	updated, err := h.service.ApproveUser(r.Context(), principal, userID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to approve user")
		return
	}

	respondWithJSON(w, http.StatusOK, toUserResponse(updated))
}

func (h *UserHandler) handleSuspendUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}
	userID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}
	var requestPayload SuspendRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	updated, err := h.service.SuspendUser(r.Context(), principal, userID, requestPayload.Reason)
	if err != nil {
		respondWithServiceError(w, err, "Failed to suspend user")
		return
	}

	respondWithJSON(w, http.StatusOK, toUserResponse(updated))
}

func (h *UserHandler) handleSetRole(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}
	userID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}
	var requestPayload RoleRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	updated, err := h.service.SetRole(r.Context(), principal, userID, auth.Role(requestPayload.Role))
	if err != nil {
		respondWithServiceError(w, err, "Failed to change role")
		return
	}

	respondWithJSON(w, http.StatusOK, toUserResponse(updated))
}

func toUserResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		PhotoURL:      u.PhotoURL,
		Role:          u.Role.String(),
		Status:        u.Status.String(),
		SuspendReason: u.SuspendReason,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}
