package auth

import (
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
)

var (
	ErrForbidden        = errors.New("forbidden")
	ErrAccountSuspended = errors.New("account suspended")
)

type Action string

const (
	ViewProfile Action = "ViewProfile"

	ApproveUser      Action = "ApproveUser"
	SuspendUser      Action = "SuspendUser"
	ChangeRole       Action = "ChangeRole"
	ManageUsers      Action = "ManageUsers"
	ViewAllOrders    Action = "ViewAllOrders"
	ManageAnyProduct Action = "ManageAnyProduct"

	CreateProduct        Action = "CreateProduct"
	UpdateOwnProduct     Action = "UpdateOwnProduct"
	ApproveOrder         Action = "ApproveOrder"
	RejectOrder          Action = "RejectOrder"
	AdvanceTrackingStage Action = "AdvanceTrackingStage"
	SetCurrentLocation   Action = "SetCurrentLocation"
	ViewManagedOrders    Action = "ViewManagedOrders"

	CreateOrder    Action = "CreateOrder"
	CancelOwnOrder Action = "CancelOwnOrder"
	ViewOwnOrders  Action = "ViewOwnOrders"
)

// Resource carries the ownership facts some rules need. Zero values mean
// "not applicable".
type Resource struct {
	OwnerManagerID uuid.UUID
	CustomerID     uuid.UUID
}

// DenyError is returned by Check. Reason is ErrForbidden or ErrAccountSuspended.
type DenyError struct {
	Action Action
	Reason error
}

func (e *DenyError) Error() string {
	return fmt.Sprintf("%s denied: %v", e.Action, e.Reason)
}

func (e *DenyError) Unwrap() error {
	return e.Reason
}

var (
	adminActions = map[Action]bool{
		ApproveUser:      true,
		SuspendUser:      true,
		ChangeRole:       true,
		ManageUsers:      true,
		ViewAllOrders:    true,
		ManageAnyProduct: true,
	}
	managerActions = map[Action]bool{
		CreateProduct:        true,
		UpdateOwnProduct:     true,
		ApproveOrder:         true,
		RejectOrder:          true,
		AdvanceTrackingStage: true,
		SetCurrentLocation:   true,
		ViewManagedOrders:    true,
	}
	customerActions = map[Action]bool{
		CreateOrder:    true,
		CancelOwnOrder: true,
		ViewOwnOrders:  true,
	}
)

// Check decides whether p may perform action on res. It returns nil on allow
// and a *DenyError otherwise. Rules are evaluated in order; the first match wins.
func Check(p Principal, action Action, res Resource) error {
	if action == ViewProfile {
		return nil
	}

	if p.Status == StatusSuspended {
		return deny(action, ErrAccountSuspended)
	}

	if adminActions[action] {
		if p.Role == RoleAdmin {
			return nil
		}
		return deny(action, ErrForbidden)
	}

	if managerActions[action] {
		if p.Role != RoleManager || p.Status != StatusApproved {
			return deny(action, ErrForbidden)
		}
		if action == UpdateOwnProduct && res.OwnerManagerID != p.ID {
			return deny(action, ErrForbidden)
		}
		return nil
	}

	if customerActions[action] {
		if p.Role != RoleCustomer {
			return deny(action, ErrForbidden)
		}
		if action != ViewOwnOrders && p.Status != StatusApproved {
			return deny(action, ErrForbidden)
		}
		if action == CancelOwnOrder && res.CustomerID != p.ID {
			return deny(action, ErrForbidden)
		}
		return nil
	}

	return deny(action, ErrForbidden)
}

// Allowed is Check reduced to a boolean.
func Allowed(p Principal, action Action, res Resource) bool {
	return Check(p, action, res) == nil
}

func deny(action Action, reason error) error {
	return &DenyError{Action: action, Reason: reason}
}
