package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/garment-order-service/internal/auth"
)

type routeRegistrar interface {
	RegisterRoutes(router chi.Router)
}

func principal(role auth.Role) auth.Principal {
	return auth.Principal{
		ID:     uuid.Must(uuid.NewV4()),
		Email:  string(role) + "@example.com",
		Role:   role,
		Status: auth.StatusApproved,
	}
}

// serveAs runs req through h's routes with p already authenticated.
func serveAs(t *testing.T, h routeRegistrar, p auth.Principal, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	})
	h.RegisterRoutes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func jsonRequest(t *testing.T, method, target string, payload interface{}) *http.Request {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func rawRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var errorResponse map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&errorResponse), "Failed to decode error response body")
	return errorResponse
}
