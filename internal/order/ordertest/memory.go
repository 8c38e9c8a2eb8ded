// Package ordertest provides an in-memory order.Repository with the same
// conditional-update and uniqueness semantics as the Postgres one.
package ordertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/garment-order-service/internal/order"
)

type MemoryRepository struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]*order.Order
	sessions map[string]uuid.UUID
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orders:   make(map[uuid.UUID]*order.Order),
		sessions: make(map[string]uuid.UUID),
	}
}

// Put stores o as-is, bypassing validation. Used to seed fixtures.
func (r *MemoryRepository) Put(o *order.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.Must(uuid.NewV4())
	}
	r.orders[o.ID] = clone(o)
	if o.PaymentSessionID != "" {
		r.sessions[o.PaymentSessionID] = o.ID
	}
}

func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

func (r *MemoryRepository) Create(_ context.Context, o *order.Order) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o.PaymentSessionID != "" {
		if _, exists := r.sessions[o.PaymentSessionID]; exists {
			return uuid.Nil, order.ErrDuplicatePaymentSession
		}
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.Must(uuid.NewV4())
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	r.orders[o.ID] = clone(o)
	if o.PaymentSessionID != "" {
		r.sessions[o.PaymentSessionID] = o.ID
	}
	return o.ID, nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return clone(o), nil
}

func (r *MemoryRepository) GetByPaymentSession(_ context.Context, sessionID string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.sessions[sessionID]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return clone(r.orders[id]), nil
}

func (r *MemoryRepository) List(_ context.Context, q order.ListQuery) ([]order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]order.Order, 0)
	for _, o := range r.orders {
		if q.Status != "" && o.Status != q.Status {
			continue
		}
		if q.CustomerID != uuid.Nil && o.CustomerID != q.CustomerID {
			continue
		}
		if q.ManagerID != uuid.Nil && o.ManagerID != q.ManagerID {
			continue
		}
		out = append(out, *clone(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, id uuid.UUID, from, to order.Status, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok || o.Status != from {
		return order.ErrConflict
	}
	o.Status = to
	o.UpdatedAt = at
	switch to {
	case order.StatusApproved:
		o.ApprovedAt = &at
	case order.StatusRejected:
		o.RejectedAt = &at
	case order.StatusCanceled:
		o.CanceledAt = &at
	}
	return nil
}

func (r *MemoryRepository) AppendStage(_ context.Context, id uuid.UUID, completed int, stage order.Stage, note string, loc *order.Coordinate, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok || o.Status != order.StatusApproved || len(o.Tracking.CompletedStages) != completed {
		return order.ErrConflict
	}
	o.Tracking.CompletedStages = append(o.Tracking.CompletedStages, stage)
	o.Tracking.StageTimestamps[stage] = at
	if note != "" {
		o.Tracking.StageNotes[stage] = note
	}
	if loc != nil {
		c := *loc
		o.Tracking.CurrentLocation = &c
		o.Tracking.LocationUpdatedAt = &at
	}
	o.UpdatedAt = at
	return nil
}

func (r *MemoryRepository) SetLocation(_ context.Context, id uuid.UUID, loc order.Coordinate, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok || o.Status != order.StatusApproved {
		return order.ErrConflict
	}
	o.Tracking.CurrentLocation = &loc
	o.Tracking.LocationUpdatedAt = &at
	o.UpdatedAt = at
	return nil
}

func clone(o *order.Order) *order.Order {
	c := *o
	c.Tracking.CompletedStages = append([]order.Stage{}, o.Tracking.CompletedStages...)
	c.Tracking.StageTimestamps = make(map[order.Stage]time.Time, len(o.Tracking.StageTimestamps))
	for k, v := range o.Tracking.StageTimestamps {
		c.Tracking.StageTimestamps[k] = v
	}
	c.Tracking.StageNotes = make(map[order.Stage]string, len(o.Tracking.StageNotes))
	for k, v := range o.Tracking.StageNotes {
		c.Tracking.StageNotes[k] = v
	}
	if o.Tracking.CurrentLocation != nil {
		loc := *o.Tracking.CurrentLocation
		c.Tracking.CurrentLocation = &loc
	}
	return &c
}

var _ order.Repository = (*MemoryRepository)(nil)
