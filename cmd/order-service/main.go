package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/garment-order-service/internal/auth"
	"github.com/vasiliy-maslov/garment-order-service/internal/config"
	"github.com/vasiliy-maslov/garment-order-service/internal/db"
	httpHandler "github.com/vasiliy-maslov/garment-order-service/internal/handler/http"
	"github.com/vasiliy-maslov/garment-order-service/internal/order"
	"github.com/vasiliy-maslov/garment-order-service/internal/payment"
	"github.com/vasiliy-maslov/garment-order-service/internal/product"
	"github.com/vasiliy-maslov/garment-order-service/internal/user"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogger(cfg.App)

	log.Info().Str("env", cfg.App.Env).Msg("Order service starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	postgres, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer postgres.Close()

	stripeProvider, err := payment.NewStripeProvider(payment.StripeProviderConfig{APIKey: cfg.Stripe.SecretKey})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure payment provider")
	}

	userSvc := user.NewService(user.NewRepository(postgres.Pool))
	productSvc := product.NewService(product.NewRepository(postgres.Pool))
	orderRepo := order.NewRepository(postgres.Pool)
	orderSvc := order.NewService(orderRepo, productSvc)
	bridge := payment.NewBridge(payment.NewRepository(postgres.Pool), orderRepo, productSvc, stripeProvider, payment.Config{
		Currency:   cfg.Stripe.Currency,
		SuccessURL: cfg.Stripe.SuccessURL,
		CancelURL:  cfg.Stripe.CancelURL,
	})
	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	router := httpHandler.NewRouter(httpHandler.Handlers{
		Users:     httpHandler.NewUserHandler(userSvc, tokens),
		Products:  httpHandler.NewProductHandler(productSvc),
		Orders:    httpHandler.NewOrderHandler(orderSvc),
		Payments:  httpHandler.NewPaymentHandler(bridge),
		Tokens:    tokens,
		Principal: userSvc,
	})

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
	}
	log.Info().Msg("Server stopped")
}

func setupLogger(cfg config.AppConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", "order-service").Logger()
}
