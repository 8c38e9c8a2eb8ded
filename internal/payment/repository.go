package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrSessionNotFound  = errors.New("payment session not found")
	ErrDuplicateSession = errors.New("payment session already stored")
)

type Repository interface {
	Create(ctx context.Context, session *Session) error
	GetByID(ctx context.Context, id string) (*Session, error)
	FindLatest(ctx context.Context, customerID, productID uuid.UUID, quantity int, state SessionState) (*Session, error)
	MarkCompleted(ctx context.Context, id string, orderID uuid.UUID) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const sessionColumns = `id, customer_id, product_id, quantity, unit_price, amount, currency,
	first_name, last_name, contact_number, delivery_address, notes, status, order_id, created_at, expires_at`

func (r *postgresRepository) Create(ctx context.Context, s *Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO payment_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := r.db.Exec(ctx, query,
		s.ID,
		s.CustomerID,
		s.ProductID,
		s.Quantity,
		s.UnitPrice,
		s.Amount,
		s.Currency,
		s.Delivery.FirstName,
		s.Delivery.LastName,
		s.Delivery.ContactNumber,
		s.Delivery.DeliveryAddress,
		s.Delivery.Notes,
		string(s.State),
		s.OrderID,
		s.CreatedAt,
		s.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrDuplicateSession
		}
		return fmt.Errorf("repository: failed to insert payment session %s: %w", s.ID, err)
	}

	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM payment_sessions WHERE id = $1`

	s, err := scanSession(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("repository: failed to select payment session %s: %w", id, err)
	}

	return s, nil
}

// FindLatest returns the newest session in state for the same customer,
// product and quantity.
func (r *postgresRepository) FindLatest(ctx context.Context, customerID, productID uuid.UUID, quantity int, state SessionState) (*Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM payment_sessions
		WHERE customer_id = $1 AND product_id = $2 AND quantity = $3 AND status = $4
		ORDER BY created_at DESC
		LIMIT 1
	`

	s, err := scanSession(r.db.QueryRow(ctx, query, customerID, productID, quantity, string(state)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("repository: failed to find %s payment session: %w", state, err)
	}

	return s, nil
}

func (r *postgresRepository) MarkCompleted(ctx context.Context, id string, orderID uuid.UUID) error {
	query := `UPDATE payment_sessions SET status = 'completed', order_id = $1 WHERE id = $2`

	cmdTag, err := r.db.Exec(ctx, query, orderID, id)
	if err != nil {
		return fmt.Errorf("repository: failed to complete payment session %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	return nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	var state string
	err := row.Scan(
		&s.ID,
		&s.CustomerID,
		&s.ProductID,
		&s.Quantity,
		&s.UnitPrice,
		&s.Amount,
		&s.Currency,
		&s.Delivery.FirstName,
		&s.Delivery.LastName,
		&s.Delivery.ContactNumber,
		&s.Delivery.DeliveryAddress,
		&s.Delivery.Notes,
		&state,
		&s.OrderID,
		&s.CreatedAt,
		&s.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	s.State = SessionState(state)

	return &s, nil
}
