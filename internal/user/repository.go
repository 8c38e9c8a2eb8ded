package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vasiliy-maslov/garment-order-service/internal/auth"
)

var (
	ErrNotFound    = errors.New("user not found")
	ErrEmailExists = errors.New("email already exists")
)

type Repository interface {
	Create(ctx context.Context, user *User) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, filter ListFilter) ([]User, error)
	UpdateAccess(ctx context.Context, id uuid.UUID, role auth.Role, status auth.AccountStatus, suspendReason string) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const userColumns = `id, email, name, photo_url, password_hash, role, status, suspend_reason, created_at, updated_at`

func (r *postgresRepository) Create(ctx context.Context, user *User) (uuid.UUID, error) {
	if user.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return uuid.Nil, fmt.Errorf("repository: failed to generate user ID: %w", err)
		}
		user.ID = id
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.PhotoURL,
		user.PasswordHash,
		string(user.Role),
		string(user.Status),
		user.SuspendReason,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return uuid.Nil, ErrEmailExists
		}
		return uuid.Nil, fmt.Errorf("repository: failed to insert user: %w", err)
	}

	return user.ID, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select user by id %s: %w", id, err)
	}

	return user, nil
}

func (r *postgresRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, strings.ToLower(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select user by email: %w", err)
	}

	return user, nil
}

func (r *postgresRepository) List(ctx context.Context, filter ListFilter) ([]User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE ($1::text = '' OR role = $1::text) AND ($2::text = '' OR status = $2::text)
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, string(filter.Role), string(filter.Status))
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating users: %w", err)
	}

	return users, nil
}

func (r *postgresRepository) UpdateAccess(ctx context.Context, id uuid.UUID, role auth.Role, status auth.AccountStatus, suspendReason string) error {
	query := `
		UPDATE users
		SET role = $1, status = $2, suspend_reason = $3, updated_at = $4
		WHERE id = $5
	`

	cmdTag, err := r.db.Exec(ctx, query, string(role), string(status), suspendReason, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("repository: failed to update access for user %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func scanUser(row pgx.Row) (*User, error) {
	var user User
	var role, status string
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PhotoURL,
		&user.PasswordHash,
		&role,
		&status,
		&user.SuspendReason,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Role = auth.Role(role)
	user.Status = auth.AccountStatus(status)

	return &user, nil
}
