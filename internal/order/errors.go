package order

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound           = errors.New("order not found")
	ErrInvalidStateTransition  = errors.New("invalid order status transition")
	ErrIllegalStageTransition  = errors.New("illegal tracking stage transition")
	ErrConflict                = errors.New("order was modified concurrently")
	ErrProductUnavailable      = errors.New("product unavailable")
	ErrInvalidQuantity         = errors.New("invalid quantity")
	ErrPaymentRequired         = errors.New("product requires prepayment")
	ErrInvalidCoordinate       = errors.New("invalid coordinate")
	ErrInvalidDelivery         = errors.New("invalid delivery details")
	ErrDuplicatePaymentSession = errors.New("order already exists for payment session")
)

// StageError reports a rejected advanceStage call together with the stage
// the caller should have requested. Expected is empty when every stage is done.
type StageError struct {
	Requested Stage
	Expected  Stage
}

func (e *StageError) Error() string {
	if e.Expected == "" {
		return fmt.Sprintf("%v: %s requested but tracking is already complete", ErrIllegalStageTransition, e.Requested)
	}
	return fmt.Sprintf("%v: %s requested, next stage is %s", ErrIllegalStageTransition, e.Requested, e.Expected)
}

func (e *StageError) Is(target error) bool {
	return target == ErrIllegalStageTransition
}

// TransitionError reports a status change the state machine does not allow.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%v: %s -> %s", ErrInvalidStateTransition, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}
