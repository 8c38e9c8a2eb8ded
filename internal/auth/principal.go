package auth

import (
	"context"

	"github.com/gofrs/uuid"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

func (r Role) String() string {
	return string(r)
}

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleManager, RoleAdmin:
		return true
	}
	return false
}

type AccountStatus string

const (
	StatusPending   AccountStatus = "pending"
	StatusApproved  AccountStatus = "approved"
	StatusSuspended AccountStatus = "suspended"
)

func (s AccountStatus) String() string {
	return string(s)
}

func (s AccountStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusSuspended:
		return true
	}
	return false
}

// Principal is the authenticated actor passed explicitly into every core operation.
type Principal struct {
	ID     uuid.UUID     `json:"id"`
	Email  string        `json:"email"`
	Role   Role          `json:"role"`
	Status AccountStatus `json:"status"`
}

type principalKey struct{}

// WithPrincipal stores p on ctx. Only the HTTP layer does this; engines take the
// Principal as an argument.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
