package user

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/garment-order-service/internal/auth"
)

// User is a stored account. Accounts are never deleted; suspension is a status.
type User struct {
	ID            uuid.UUID          `json:"id" db:"id"`
	Email         string             `json:"email" db:"email"`
	Name          string             `json:"name" db:"name"`
	PhotoURL      string             `json:"photo_url" db:"photo_url"`
	PasswordHash  string             `json:"-" db:"password_hash"`
	Role          auth.Role          `json:"role" db:"role"`
	Status        auth.AccountStatus `json:"status" db:"status"`
	SuspendReason string             `json:"suspend_reason,omitempty" db:"suspend_reason"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" db:"updated_at"`
}

func (u *User) Principal() auth.Principal {
	return auth.Principal{
		ID:     u.ID,
		Email:  u.Email,
		Role:   u.Role,
		Status: u.Status,
	}
}

type Registration struct {
	Email    string
	Name     string
	PhotoURL string
	Password string
	Role     auth.Role
}

type ListFilter struct {
	Role   auth.Role
	Status auth.AccountStatus
}
