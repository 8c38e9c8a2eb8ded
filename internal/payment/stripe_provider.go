package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type StripeProviderConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Clock    func() time.Time

	sessions stripeSessionAPI
}

// StripeProvider implements Provider on Stripe Checkout.
type StripeProvider struct {
	sessions stripeSessionAPI
	clock    func() time.Time
}

func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.sessions == nil {
		return nil, errors.New("stripe: api key is required")
	}

	sessions := cfg.sessions
	if sessions == nil {
		sessions = client.New(apiKey, cfg.Backends).CheckoutSessions
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &StripeProvider{
		sessions: sessions,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(req.Quantity),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.UnitAmount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.ProductName),
					},
				},
			},
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: make(map[string]string, len(req.Metadata)),
		}
		for k, v := range req.Metadata {
			params.Metadata[k] = v
			params.PaymentIntentData.Metadata[k] = v
		}
	}

	session, err := p.sessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	log.Debug().Str("session_id", session.ID).Int64("amount_total", session.AmountTotal).Msg("stripe: checkout session created")

	expiresAt := p.clock().Add(30 * time.Minute)
	if session.ExpiresAt != 0 {
		expiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}

	return CheckoutSession{
		ID:          session.ID,
		RedirectURL: session.URL,
		AmountTotal: session.AmountTotal,
		ExpiresAt:   expiresAt,
	}, nil
}

func (p *StripeProvider) RetrieveCheckoutSession(ctx context.Context, id string) (RemoteSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	session, err := p.sessions.Get(id, params)
	if err != nil {
		return RemoteSession{}, fmt.Errorf("stripe: retrieve checkout session %s: %w", id, err)
	}

	return RemoteSession{
		ID:          session.ID,
		Paid:        session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		AmountTotal: session.AmountTotal,
		Currency:    strings.ToLower(string(session.Currency)),
		Metadata:    session.Metadata,
	}, nil
}
