package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vasiliy-maslov/garment-order-service/internal/product"
)

// Repository persists orders. Every mutation is a single conditional UPDATE;
// when the condition no longer holds it returns ErrConflict and the caller
// re-reads the order to find out why.
type Repository interface {
	Create(ctx context.Context, order *Order) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByPaymentSession(ctx context.Context, sessionID string) (*Order, error)
	List(ctx context.Context, query ListQuery) ([]Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, at time.Time) error
	AppendStage(ctx context.Context, id uuid.UUID, completed int, stage Stage, note string, loc *Coordinate, at time.Time) error
	SetLocation(ctx context.Context, id uuid.UUID, loc Coordinate, at time.Time) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const orderColumns = `id, customer_id, product_id, product_name, manager_id, unit_price, quantity, total_price,
	status, payment_option, payment_status, payment_session_id,
	first_name, last_name, contact_number, delivery_address, notes,
	completed_stages, stage_timestamps, stage_notes, current_lat, current_lng, location_updated_at,
	approved_at, rejected_at, canceled_at, created_at, updated_at`

var statusTimestampColumn = map[Status]string{
	StatusApproved: "approved_at",
	StatusRejected: "rejected_at",
	StatusCanceled: "canceled_at",
}

func (r *postgresRepository) Create(ctx context.Context, order *Order) (uuid.UUID, error) {
	if order.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return uuid.Nil, fmt.Errorf("repository: failed to generate order ID: %w", err)
		}
		order.ID = id
	}

	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	if order.Tracking.StageTimestamps == nil {
		order.Tracking.StageTimestamps = map[Stage]time.Time{}
	}
	if order.Tracking.StageNotes == nil {
		order.Tracking.StageNotes = map[Stage]string{}
	}

	timestamps, err := json.Marshal(order.Tracking.StageTimestamps)
	if err != nil {
		return uuid.Nil, fmt.Errorf("repository: failed to encode stage timestamps: %w", err)
	}
	notes, err := json.Marshal(order.Tracking.StageNotes)
	if err != nil {
		return uuid.Nil, fmt.Errorf("repository: failed to encode stage notes: %w", err)
	}

	var sessionID *string
	if order.PaymentSessionID != "" {
		sessionID = &order.PaymentSessionID
	}

	query := `
		INSERT INTO orders (id, customer_id, product_id, product_name, manager_id, unit_price, quantity, total_price,
			status, payment_option, payment_status, payment_session_id,
			first_name, last_name, contact_number, delivery_address, notes,
			completed_stages, stage_timestamps, stage_notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`
	_, err = r.db.Exec(ctx, query,
		order.ID,
		order.CustomerID,
		order.ProductID,
		order.ProductName,
		order.ManagerID,
		order.UnitPrice,
		order.Quantity,
		order.TotalPrice,
		string(order.Status),
		string(order.PaymentOption),
		string(order.PaymentStatus),
		sessionID,
		order.Delivery.FirstName,
		order.Delivery.LastName,
		order.Delivery.ContactNumber,
		order.Delivery.DeliveryAddress,
		order.Delivery.Notes,
		stagesToStrings(order.Tracking.CompletedStages),
		timestamps,
		notes,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return uuid.Nil, ErrDuplicatePaymentSession
		}
		return uuid.Nil, fmt.Errorf("repository: failed to insert order: %w", err)
	}

	return order.ID, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", id, err)
	}

	return order, nil
}

func (r *postgresRepository) GetByPaymentSession(ctx context.Context, sessionID string) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE payment_session_id = $1`

	order, err := scanOrder(r.db.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by payment session %s: %w", sessionID, err)
	}

	return order, nil
}

func (r *postgresRepository) List(ctx context.Context, q ListQuery) ([]Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1::text = '' OR status = $1::text)
			AND ($2::uuid IS NULL OR customer_id = $2::uuid)
			AND ($3::uuid IS NULL OR manager_id = $3::uuid)
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, string(q.Status), nullableUUID(q.CustomerID), nullableUUID(q.ManagerID))
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating orders: %w", err)
	}

	return orders, nil
}

func (r *postgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, at time.Time) error {
	column, ok := statusTimestampColumn[to]
	if !ok {
		return fmt.Errorf("repository: no timestamp column for status %s", to)
	}

	query := `
		UPDATE orders
		SET status = $1, ` + column + ` = $2, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	cmdTag, err := r.db.Exec(ctx, query, string(to), at, id, string(from))
	if err != nil {
		return fmt.Errorf("repository: failed to update status for order %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrConflict
	}

	return nil
}

func (r *postgresRepository) AppendStage(ctx context.Context, id uuid.UUID, completed int, stage Stage, note string, loc *Coordinate, at time.Time) error {
	var lat, lng *float64
	if loc != nil {
		lat, lng = &loc.Lat, &loc.Lng
	}

	query := `
		UPDATE orders
		SET completed_stages = array_append(completed_stages, $3::text),
			stage_timestamps = stage_timestamps || jsonb_build_object($3::text, $4::text),
			stage_notes = CASE WHEN $5::text = '' THEN stage_notes ELSE stage_notes || jsonb_build_object($3::text, $5::text) END,
			current_lat = COALESCE($6::float8, current_lat),
			current_lng = COALESCE($7::float8, current_lng),
			location_updated_at = CASE WHEN $6::float8 IS NULL THEN location_updated_at ELSE $8 END,
			updated_at = $8
		WHERE id = $1 AND status = 'Approved' AND cardinality(completed_stages) = $2
	`
	cmdTag, err := r.db.Exec(ctx, query,
		id,
		completed,
		string(stage),
		at.UTC().Format(time.RFC3339Nano),
		note,
		lat,
		lng,
		at,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to append stage %s for order %s: %w", stage, id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrConflict
	}

	return nil
}

func (r *postgresRepository) SetLocation(ctx context.Context, id uuid.UUID, loc Coordinate, at time.Time) error {
	query := `
		UPDATE orders
		SET current_lat = $1, current_lng = $2, location_updated_at = $3, updated_at = $3
		WHERE id = $4 AND status = 'Approved'
	`
	cmdTag, err := r.db.Exec(ctx, query, loc.Lat, loc.Lng, at, id)
	if err != nil {
		return fmt.Errorf("repository: failed to set location for order %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrConflict
	}

	return nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		order                 Order
		status, option, paySt string
		sessionID             *string
		stages                []string
		timestamps, notes     []byte
		lat, lng              *float64
	)
	err := row.Scan(
		&order.ID,
		&order.CustomerID,
		&order.ProductID,
		&order.ProductName,
		&order.ManagerID,
		&order.UnitPrice,
		&order.Quantity,
		&order.TotalPrice,
		&status,
		&option,
		&paySt,
		&sessionID,
		&order.Delivery.FirstName,
		&order.Delivery.LastName,
		&order.Delivery.ContactNumber,
		&order.Delivery.DeliveryAddress,
		&order.Delivery.Notes,
		&stages,
		&timestamps,
		&notes,
		&lat,
		&lng,
		&order.Tracking.LocationUpdatedAt,
		&order.ApprovedAt,
		&order.RejectedAt,
		&order.CanceledAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.Status = Status(status)
	order.PaymentOption = product.PaymentOption(option)
	order.PaymentStatus = PaymentStatus(paySt)
	if sessionID != nil {
		order.PaymentSessionID = *sessionID
	}

	order.Tracking.CompletedStages = make([]Stage, len(stages))
	for i, s := range stages {
		order.Tracking.CompletedStages[i] = Stage(s)
	}
	if err := json.Unmarshal(timestamps, &order.Tracking.StageTimestamps); err != nil {
		return nil, fmt.Errorf("failed to decode stage timestamps: %w", err)
	}
	if err := json.Unmarshal(notes, &order.Tracking.StageNotes); err != nil {
		return nil, fmt.Errorf("failed to decode stage notes: %w", err)
	}
	if lat != nil && lng != nil {
		order.Tracking.CurrentLocation = &Coordinate{Lat: *lat, Lng: *lng}
	}

	return &order, nil
}

func stagesToStrings(stages []Stage) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = string(s)
	}
	return out
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
