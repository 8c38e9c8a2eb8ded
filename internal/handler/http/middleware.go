package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/hlog"
	"github.com/vasiliy-maslov/garment-order-service/internal/auth"
	"github.com/vasiliy-maslov/garment-order-service/internal/user"
)

type TokenParser interface {
	Parse(raw string) (uuid.UUID, error)
}

type PrincipalResolver interface {
	Principal(ctx context.Context, id uuid.UUID) (auth.Principal, error)
}

// Authenticate resolves the bearer token to a Principal on every request so
// that role and status changes take effect immediately.
func Authenticate(tokens TokenParser, resolver PrincipalResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				respondWithError(w, http.StatusUnauthorized, "Missing bearer token")
				return
			}

			userID, err := tokens.Parse(strings.TrimSpace(raw))
			if err != nil {
				hlog.FromRequest(r).Warn().Err(err).Msg("Rejected bearer token")
				respondWithError(w, http.StatusUnauthorized, "Invalid bearer token")
				return
			}

			principal, err := resolver.Principal(r.Context(), userID)
			if err != nil {
				if errors.Is(err, user.ErrNotFound) {
					respondWithError(w, http.StatusUnauthorized, "Unknown account")
					return
				}
				hlog.FromRequest(r).Error().Err(err).Stringer("user_id", userID).Msg("Failed to resolve principal")
				respondWithError(w, http.StatusInternalServerError, "Failed to resolve account")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
		})
	}
}

func principalFrom(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Not authenticated")
	}
	return p, ok
}
