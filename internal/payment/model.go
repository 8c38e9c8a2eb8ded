package payment

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/garment-order-service/internal/order"
)

type SessionState string

const (
	SessionOpen      SessionState = "open"
	SessionCompleted SessionState = "completed"
)

// Session is the server-held record of a checkout. Its id is the provider's
// session id and doubles as the idempotence key for materialization.
type Session struct {
	ID          string                `json:"session_id"`
	CustomerID  uuid.UUID             `json:"customer_id"`
	ProductID   uuid.UUID             `json:"product_id"`
	Quantity    int                   `json:"quantity"`
	UnitPrice   decimal.Decimal       `json:"unit_price"`
	Amount      decimal.Decimal       `json:"amount"`
	Currency    string                `json:"currency"`
	Delivery    order.DeliveryDetails `json:"delivery"`
	State       SessionState          `json:"state"`
	OrderID     *uuid.UUID            `json:"order_id,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	ExpiresAt   time.Time             `json:"expires_at"`
	RedirectURL string                `json:"redirect_url,omitempty"`
}

// SuccessMetadata is what the client replays after the provider redirects
// back. It identifies a session; it is never trusted for price or quantity.
type SuccessMetadata struct {
	SessionID string
	ProductID uuid.UUID
	Quantity  int
}

func toMinorUnits(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}
