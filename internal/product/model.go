package product

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type PaymentOption string

const (
	PaymentCashOnDelivery PaymentOption = "CashOnDelivery"
	PaymentPrepaid        PaymentOption = "Prepaid"
)

func (p PaymentOption) String() string {
	return string(p)
}

func (p PaymentOption) Valid() bool {
	return p == PaymentCashOnDelivery || p == PaymentPrepaid
}

type Product struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	Name              string          `json:"name" db:"name"`
	Description       string          `json:"description" db:"description"`
	Category          string          `json:"category" db:"category"`
	Price             decimal.Decimal `json:"price" db:"price"`
	AvailableQuantity int             `json:"available_quantity" db:"available_quantity"`
	MinimumOrder      int             `json:"minimum_order" db:"minimum_order"`
	PaymentOption     PaymentOption   `json:"payment_option" db:"payment_option"`
	ShowOnHome        bool            `json:"show_on_home" db:"show_on_home"`
	OwnerManagerID    uuid.UUID       `json:"owner_manager_id" db:"owner_manager_id"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// Input is the manager-editable part of a product.
type Input struct {
	Name              string
	Description       string
	Category          string
	Price             decimal.Decimal
	AvailableQuantity int
	MinimumOrder      int
	PaymentOption     PaymentOption
	ShowOnHome        bool
}

type ListFilter struct {
	OwnerManagerID uuid.UUID
	OnlyHome       bool
}
