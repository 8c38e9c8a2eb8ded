package payment

import (
	"context"
	"time"
)

// CheckoutSessionRequest is the provider-neutral payload for starting a
// hosted checkout for a single product line.
type CheckoutSessionRequest struct {
	ProductName    string
	Quantity       int64
	UnitAmount     int64
	Currency       string
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
}

// CheckoutSession is what the provider hands back after creation.
type CheckoutSession struct {
	ID          string
	RedirectURL string
	AmountTotal int64
	ExpiresAt   time.Time
}

// RemoteSession is the provider's current view of a checkout session.
type RemoteSession struct {
	ID          string
	Paid        bool
	AmountTotal int64
	Currency    string
	Metadata    map[string]string
}

type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	RetrieveCheckoutSession(ctx context.Context, id string) (RemoteSession, error)
}
