package product

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("product not found")

type Repository interface {
	Create(ctx context.Context, product *Product) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	List(ctx context.Context, filter ListFilter) ([]Product, error)
	Update(ctx context.Context, product *Product) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const productColumns = `id, name, description, category, price, available_quantity, minimum_order,
	payment_option, show_on_home, owner_manager_id, created_at, updated_at`

func (r *postgresRepository) Create(ctx context.Context, product *Product) (uuid.UUID, error) {
	if product.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return uuid.Nil, fmt.Errorf("repository: failed to generate product ID: %w", err)
		}
		product.ID = id
	}

	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.Exec(ctx, query,
		product.ID,
		product.Name,
		product.Description,
		product.Category,
		product.Price,
		product.AvailableQuantity,
		product.MinimumOrder,
		string(product.PaymentOption),
		product.ShowOnHome,
		product.OwnerManagerID,
		product.CreatedAt,
		product.UpdatedAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("repository: failed to insert product: %w", err)
	}

	return product.ID, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select product by id %s: %w", id, err)
	}

	return product, nil
}

func (r *postgresRepository) List(ctx context.Context, filter ListFilter) ([]Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE ($1::uuid IS NULL OR owner_manager_id = $1::uuid) AND (NOT $2::bool OR show_on_home)
		ORDER BY created_at DESC
	`

	var owner *uuid.UUID
	if filter.OwnerManagerID != uuid.Nil {
		owner = &filter.OwnerManagerID
	}

	rows, err := r.db.Query(ctx, query, owner, filter.OnlyHome)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan product: %w", err)
		}
		products = append(products, *product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating products: %w", err)
	}

	return products, nil
}

func (r *postgresRepository) Update(ctx context.Context, product *Product) error {
	product.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE products
		SET name = $1, description = $2, category = $3, price = $4, available_quantity = $5,
			minimum_order = $6, payment_option = $7, show_on_home = $8, updated_at = $9
		WHERE id = $10
	`
	cmdTag, err := r.db.Exec(ctx, query,
		product.Name,
		product.Description,
		product.Category,
		product.Price,
		product.AvailableQuantity,
		product.MinimumOrder,
		string(product.PaymentOption),
		product.ShowOnHome,
		product.UpdatedAt,
		product.ID,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update product %s: %w", product.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func scanProduct(row pgx.Row) (*Product, error) {
	var product Product
	var option string
	err := row.Scan(
		&product.ID,
		&product.Name,
		&product.Description,
		&product.Category,
		&product.Price,
		&product.AvailableQuantity,
		&product.MinimumOrder,
		&option,
		&product.ShowOnHome,
		&product.OwnerManagerID,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	product.PaymentOption = PaymentOption(option)

	return &product, nil
}
