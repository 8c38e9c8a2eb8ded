package order

import (
	"fmt"
	"math"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/garment-order-service/internal/product"
)

type Status string

const (
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
	StatusCanceled Status = "Canceled"
)

func (s Status) String() string {
	return string(s)
}

func (s Status) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "Unpaid"
	PaymentPaid   PaymentStatus = "Paid"
)

func (p PaymentStatus) String() string {
	return string(p)
}

// Stage is one step of the production pipeline.
type Stage string

const (
	StageCutting   Stage = "Cutting"
	StageSewing    Stage = "Sewing"
	StageFinishing Stage = "Finishing"
	StageQC        Stage = "QC"
	StagePacked    Stage = "Packed"
	StageShipped   Stage = "Shipped"
)

func (s Stage) String() string {
	return string(s)
}

// CanonicalStages is the only legal completion order.
var CanonicalStages = []Stage{
	StageCutting,
	StageSewing,
	StageFinishing,
	StageQC,
	StagePacked,
	StageShipped,
}

// NextStage returns the stage that must be completed after completed.
// ok is false once the pipeline is finished.
func NextStage(completed []Stage) (Stage, bool) {
	if len(completed) >= len(CanonicalStages) {
		return "", false
	}
	return CanonicalStages[len(completed)], true
}

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || math.IsNaN(c.Lng) || math.IsInf(c.Lng, 0) {
		return fmt.Errorf("%w: coordinates must be finite", ErrInvalidCoordinate)
	}
	if c.Lat < -90 || c.Lat > 90 || c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w: lat %.6f lng %.6f out of range", ErrInvalidCoordinate, c.Lat, c.Lng)
	}
	return nil
}

type TrackingRecord struct {
	CompletedStages   []Stage             `json:"completed_stages"`
	StageTimestamps   map[Stage]time.Time `json:"stage_timestamps"`
	StageNotes        map[Stage]string    `json:"stage_notes"`
	CurrentLocation   *Coordinate         `json:"current_location,omitempty"`
	LocationUpdatedAt *time.Time          `json:"location_updated_at,omitempty"`
}

type DeliveryDetails struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	ContactNumber   string `json:"contact_number"`
	DeliveryAddress string `json:"delivery_address"`
	Notes           string `json:"notes,omitempty"`
}

type Order struct {
	ID               uuid.UUID             `json:"id" db:"id"`
	CustomerID       uuid.UUID             `json:"customer_id" db:"customer_id"`
	ProductID        uuid.UUID             `json:"product_id" db:"product_id"`
	ProductName      string                `json:"product_name" db:"product_name"`
	ManagerID        uuid.UUID             `json:"manager_id" db:"manager_id"`
	UnitPrice        decimal.Decimal       `json:"unit_price" db:"unit_price"`
	Quantity         int                   `json:"quantity" db:"quantity"`
	TotalPrice       decimal.Decimal       `json:"total_price" db:"total_price"`
	Status           Status                `json:"status" db:"status"`
	PaymentOption    product.PaymentOption `json:"payment_option" db:"payment_option"`
	PaymentStatus    PaymentStatus         `json:"payment_status" db:"payment_status"`
	PaymentSessionID string                `json:"payment_session_id,omitempty" db:"payment_session_id"`
	Delivery         DeliveryDetails       `json:"delivery" db:"-"`
	Tracking         TrackingRecord        `json:"tracking" db:"-"`
	ApprovedAt       *time.Time            `json:"approved_at,omitempty" db:"approved_at"`
	RejectedAt       *time.Time            `json:"rejected_at,omitempty" db:"rejected_at"`
	CanceledAt       *time.Time            `json:"canceled_at,omitempty" db:"canceled_at"`
	CreatedAt        time.Time             `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at" db:"updated_at"`
}

// BookingDraft is what a customer submits from the booking form.
type BookingDraft struct {
	ProductID uuid.UUID
	Quantity  int
	Delivery  DeliveryDetails
}

// ListFilter is the caller-facing listing filter. The service narrows it
// further by the caller's role.
type ListFilter struct {
	Status       Status
	CustomerID   uuid.UUID
	ManagerScope bool
}

// ListQuery is the storage-level filter; zero values match everything.
type ListQuery struct {
	Status     Status
	CustomerID uuid.UUID
	ManagerID  uuid.UUID
}

// CheckAvailability validates quantity against the product as it is right now.
func CheckAvailability(p *product.Product, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidQuantity)
	}
	if quantity < p.MinimumOrder {
		return fmt.Errorf("%w: quantity %d is below the minimum order of %d", ErrProductUnavailable, quantity, p.MinimumOrder)
	}
	if quantity > p.AvailableQuantity {
		return fmt.Errorf("%w: only %d units available", ErrProductUnavailable, p.AvailableQuantity)
	}
	return nil
}

// NewFromSnapshot builds a Pending order priced from p. The snapshot fields
// are never updated afterwards.
func NewFromSnapshot(customerID uuid.UUID, p *product.Product, quantity int, delivery DeliveryDetails) (*Order, error) {
	if err := CheckAvailability(p, quantity); err != nil {
		return nil, err
	}
	if err := delivery.Validate(); err != nil {
		return nil, err
	}

	return &Order{
		CustomerID:    customerID,
		ProductID:     p.ID,
		ProductName:   p.Name,
		ManagerID:     p.OwnerManagerID,
		UnitPrice:     p.Price,
		Quantity:      quantity,
		TotalPrice:    Total(p.Price, quantity),
		Status:        StatusPending,
		PaymentOption: p.PaymentOption,
		PaymentStatus: PaymentUnpaid,
		Delivery:      delivery,
		Tracking: TrackingRecord{
			CompletedStages: []Stage{},
			StageTimestamps: map[Stage]time.Time{},
			StageNotes:      map[Stage]string{},
		},
	}, nil
}

func Total(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

func (d DeliveryDetails) Validate() error {
	switch {
	case d.FirstName == "", d.LastName == "":
		return fmt.Errorf("%w: name is required", ErrInvalidDelivery)
	case d.ContactNumber == "":
		return fmt.Errorf("%w: contact number is required", ErrInvalidDelivery)
	case d.DeliveryAddress == "":
		return fmt.Errorf("%w: delivery address is required", ErrInvalidDelivery)
	}
	return nil
}
