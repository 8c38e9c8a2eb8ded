package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/garment-order-service/internal/auth"
)

type StageAdvance struct {
	Stage    Stage
	Note     string
	Location *Coordinate
}

// AdvanceStage completes the next production stage of an approved order.
// Only NextStage(completed) is accepted; anything else is a *StageError.
func (s *service) AdvanceStage(ctx context.Context, actor auth.Principal, id uuid.UUID, adv StageAdvance) (*Order, error) {
	if err := auth.Check(actor, auth.AdvanceTrackingStage, auth.Resource{}); err != nil {
		return nil, err
	}
	if adv.Location != nil {
		if err := adv.Location.Validate(); err != nil {
			return nil, err
		}
	}

	order, err := s.getOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkStage(order, adv.Stage); err != nil {
		log.Warn().Err(err).Stringer("order_id", id).Msg("service: stage advance rejected")
		return nil, err
	}

	completed := len(order.Tracking.CompletedStages)
	at := s.now().UTC()
	err = s.orderRepo.AppendStage(ctx, id, completed, adv.Stage, adv.Note, adv.Location, at)
	if errors.Is(err, ErrConflict) {
		current, getErr := s.getOrder(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if err := checkStage(current, adv.Stage); err != nil {
			log.Warn().Err(err).Stringer("order_id", id).Msg("service: stage advance lost a concurrent update")
			return nil, err
		}
		return nil, ErrConflict
	}
	if err != nil {
		log.Error().Err(err).Stringer("order_id", id).Stringer("stage", adv.Stage).Msg("service: failed to append stage in repository")
		return nil, fmt.Errorf("service: failed to advance stage: %w", err)
	}

	order.Tracking.CompletedStages = append(order.Tracking.CompletedStages, adv.Stage)
	if order.Tracking.StageTimestamps == nil {
		order.Tracking.StageTimestamps = map[Stage]time.Time{}
	}
	order.Tracking.StageTimestamps[adv.Stage] = at
	if adv.Note != "" {
		if order.Tracking.StageNotes == nil {
			order.Tracking.StageNotes = map[Stage]string{}
		}
		order.Tracking.StageNotes[adv.Stage] = adv.Note
	}
	if adv.Location != nil {
		loc := *adv.Location
		order.Tracking.CurrentLocation = &loc
		order.Tracking.LocationUpdatedAt = &at
	}
	order.UpdatedAt = at

	log.Info().
		Stringer("order_id", id).
		Stringer("actor_id", actor.ID).
		Stringer("stage", adv.Stage).
		Int("completed", completed+1).
		Msg("service: tracking stage completed")

	return order, nil
}

// SetCurrentLocation records where an approved order currently is. It never
// touches completed stages.
func (s *service) SetCurrentLocation(ctx context.Context, actor auth.Principal, id uuid.UUID, loc Coordinate) (*Order, error) {
	if err := auth.Check(actor, auth.SetCurrentLocation, auth.Resource{}); err != nil {
		return nil, err
	}
	if err := loc.Validate(); err != nil {
		return nil, err
	}

	order, err := s.getOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status != StatusApproved {
		return nil, fmt.Errorf("%w: tracking requires an approved order, status is %s", ErrInvalidStateTransition, order.Status)
	}

	at := s.now().UTC()
	err = s.orderRepo.SetLocation(ctx, id, loc, at)
	if errors.Is(err, ErrConflict) {
		current, getErr := s.getOrder(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status != StatusApproved {
			return nil, fmt.Errorf("%w: tracking requires an approved order, status is %s", ErrInvalidStateTransition, current.Status)
		}
		return nil, ErrConflict
	}
	if err != nil {
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to set location in repository")
		return nil, fmt.Errorf("service: failed to set location: %w", err)
	}

	order.Tracking.CurrentLocation = &loc
	order.Tracking.LocationUpdatedAt = &at
	order.UpdatedAt = at

	log.Info().Stringer("order_id", id).Float64("lat", loc.Lat).Float64("lng", loc.Lng).Msg("service: order location updated")
	return order, nil
}

func checkStage(order *Order, requested Stage) error {
	if order.Status != StatusApproved {
		return fmt.Errorf("%w: tracking requires an approved order, status is %s", ErrInvalidStateTransition, order.Status)
	}
	expected, ok := NextStage(order.Tracking.CompletedStages)
	if !ok || requested != expected {
		return &StageError{Requested: requested, Expected: expected}
	}
	return nil
}
