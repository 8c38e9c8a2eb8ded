package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

// Handlers groups everything NewRouter mounts.
type Handlers struct {
	Users     *UserHandler
	Products  *ProductHandler
	Orders    *OrderHandler
	Payments  *PaymentHandler
	Tokens    TokenParser
	Principal PrincipalResolver
}

func NewRouter(h Handlers) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(hlog.NewHandler(log.Logger))
	router.Use(hlog.AccessHandler(accessLog))
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	h.Users.RegisterPublicRoutes(router)
	h.Products.RegisterPublicRoutes(router)

	router.Group(func(r chi.Router) {
		r.Use(Authenticate(h.Tokens, h.Principal))
		h.Users.RegisterRoutes(r)
		h.Products.RegisterRoutes(r)
		h.Orders.RegisterRoutes(r)
		h.Payments.RegisterRoutes(r)
	})

	return router
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	var event *zerolog.Event
	switch {
	case status >= http.StatusInternalServerError:
		event = hlog.FromRequest(r).Error()
	case status >= http.StatusBadRequest:
		event = hlog.FromRequest(r).Warn()
	default:
		event = hlog.FromRequest(r).Info()
	}
	event.
		Str("method", r.Method).
		Stringer("url", r.URL).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("request handled")
}
