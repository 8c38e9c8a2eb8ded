package payment_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/garment-order-service/internal/auth"
	"github.com/vasiliy-maslov/garment-order-service/internal/order"
	"github.com/vasiliy-maslov/garment-order-service/internal/order/ordertest"
	"github.com/vasiliy-maslov/garment-order-service/internal/payment"
	"github.com/vasiliy-maslov/garment-order-service/internal/product"
)

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]*payment.Session
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]*payment.Session)}
}

func (f *fakeSessions) Create(_ context.Context, s *payment.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[s.ID]; ok {
		return payment.ErrDuplicateSession
	}
	c := *s
	f.sessions[s.ID] = &c
	return nil
}

func (f *fakeSessions) GetByID(_ context.Context, id string) (*payment.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, payment.ErrSessionNotFound
	}
	c := *s
	return &c, nil
}

func (f *fakeSessions) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *fakeSessions) FindLatest(_ context.Context, customerID, productID uuid.UUID, quantity int, state payment.SessionState) (*payment.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *payment.Session
	for _, s := range f.sessions {
		if s.CustomerID != customerID || s.ProductID != productID || s.Quantity != quantity || s.State != state {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, payment.ErrSessionNotFound
	}
	c := *latest
	return &c, nil
}

func (f *fakeSessions) MarkCompleted(_ context.Context, id string, orderID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return payment.ErrSessionNotFound
	}
	s.State = payment.SessionCompleted
	s.OrderID = &orderID
	return nil
}

type fakeProvider struct {
	mu           sync.Mutex
	created      map[string]payment.CheckoutSessionRequest
	byKey        map[string]string
	createFunc   func(ctx context.Context, req payment.CheckoutSessionRequest) (payment.CheckoutSession, error)
	retrieveFunc func(ctx context.Context, id string) (payment.RemoteSession, error)
	retrieved    atomic.Int32
}

func (f *fakeProvider) CreateCheckoutSession(ctx context.Context, req payment.CheckoutSessionRequest) (payment.CheckoutSession, error) {
	return f.createFunc(ctx, req)
}

func (f *fakeProvider) RetrieveCheckoutSession(ctx context.Context, id string) (payment.RemoteSession, error) {
	f.retrieved.Add(1)
	return f.retrieveFunc(ctx, id)
}

// paidProvider behaves like Stripe for the happy path: one session per
// idempotency key, reported back as paid with the metadata it was created with.
func paidProvider(amount int64) *fakeProvider {
	f := &fakeProvider{
		created: make(map[string]payment.CheckoutSessionRequest),
		byKey:   make(map[string]string),
	}
	f.createFunc = func(_ context.Context, req payment.CheckoutSessionRequest) (payment.CheckoutSession, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id, ok := f.byKey[req.IdempotencyKey]
		if !ok {
			id = fmt.Sprintf("cs_test_%d", len(f.created)+1)
			f.byKey[req.IdempotencyKey] = id
			f.created[id] = req
		}
		return payment.CheckoutSession{
			ID:          id,
			RedirectURL: "https://checkout.stripe.com/c/pay/" + id,
			AmountTotal: req.UnitAmount * req.Quantity,
			ExpiresAt:   time.Now().Add(time.Hour),
		}, nil
	}
	f.retrieveFunc = func(_ context.Context, id string) (payment.RemoteSession, error) {
		f.mu.Lock()
		req := f.created[id]
		f.mu.Unlock()
		return payment.RemoteSession{
			ID:          id,
			Paid:        true,
			AmountTotal: amount,
			Currency:    strings.ToLower(req.Currency),
			Metadata:    req.Metadata,
		}, nil
	}
	return f
}

type fakeCatalog struct {
	mu       sync.Mutex
	products map[uuid.UUID]*product.Product
	err      error
}

func (f *fakeCatalog) GetProduct(_ context.Context, id uuid.UUID) (*product.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	c := *p
	return &c, nil
}

type harness struct {
	bridge   payment.Bridge
	sessions *fakeSessions
	orders   *ordertest.MemoryRepository
	catalog  *fakeCatalog
	provider *fakeProvider
	product  *product.Product
	customer auth.Principal
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	p := &product.Product{
		ID:                uuid.Must(uuid.NewV4()),
		Name:              "Linen Shirt",
		Price:             decimal.RequireFromString("19.99"),
		AvailableQuantity: 100,
		MinimumOrder:      5,
		PaymentOption:     product.PaymentPrepaid,
		OwnerManagerID:    uuid.Must(uuid.NewV4()),
	}
	h := &harness{
		sessions: newFakeSessions(),
		orders:   ordertest.NewMemoryRepository(),
		catalog:  &fakeCatalog{products: map[uuid.UUID]*product.Product{p.ID: p}},
		provider: paidProvider(19990),
		product:  p,
		customer: auth.Principal{ID: uuid.Must(uuid.NewV4()), Email: "grace@example.com", Role: auth.RoleCustomer, Status: auth.StatusApproved},
		now:      time.Date(2026, 3, 2, 10, 15, 20, 0, time.UTC),
	}
	h.bridge = payment.NewBridge(h.sessions, h.orders, h.catalog, h.provider, payment.Config{
		Currency:   "USD",
		SuccessURL: "https://shop.example.com/payment-success",
		CancelURL:  "https://shop.example.com/products",
		Clock:      func() time.Time { return h.now },
	})
	return h
}

func (h *harness) draft(quantity int) order.BookingDraft {
	return order.BookingDraft{
		ProductID: h.product.ID,
		Quantity:  quantity,
		Delivery: order.DeliveryDetails{
			FirstName:       "Grace",
			LastName:        "Hopper",
			ContactNumber:   "555-0100",
			DeliveryAddress: "1 Navy Yard, Arlington",
		},
	}
}

func (h *harness) checkout(t *testing.T, quantity int) *payment.Session {
	t.Helper()
	s, err := h.bridge.CreateCheckoutIntent(context.Background(), h.customer, h.draft(quantity))
	require.NoError(t, err)
	return s
}

func TestBridge_CreateCheckoutIntent(t *testing.T) {
	h := newHarness(t)
	var got payment.CheckoutSessionRequest
	create := h.provider.createFunc
	h.provider.createFunc = func(ctx context.Context, req payment.CheckoutSessionRequest) (payment.CheckoutSession, error) {
		got = req
		return create(ctx, req)
	}

	s, err := h.bridge.CreateCheckoutIntent(context.Background(), h.customer, h.draft(10))
	require.NoError(t, err)

	assert.Equal(t, int64(1999), got.UnitAmount)
	assert.Equal(t, int64(10), got.Quantity)
	assert.Equal(t, "https://shop.example.com/payment-success?session_id={CHECKOUT_SESSION_ID}", got.SuccessURL)
	assert.Equal(t, h.product.ID.String(), got.Metadata["product_id"])
	assert.Equal(t, "10", got.Metadata["quantity"])
	assert.Equal(t, "grace@example.com", got.CustomerEmail)
	assert.NotEmpty(t, got.IdempotencyKey)

	assert.True(t, s.Amount.Equal(decimal.RequireFromString("199.90")))
	assert.Equal(t, payment.SessionOpen, s.State)
	assert.NotEmpty(t, s.RedirectURL)

	stored, err := h.sessions.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, h.customer.ID, stored.CustomerID)
}

func TestBridge_CreateCheckoutIntent_Errors(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(h *harness) (auth.Principal, order.BookingDraft)
		wantErrIs error
	}{
		{
			name: "below_minimum",
			setup: func(h *harness) (auth.Principal, order.BookingDraft) {
				return h.customer, h.draft(2)
			},
			wantErrIs: order.ErrProductUnavailable,
		},
		{
			name: "manager_forbidden",
			setup: func(h *harness) (auth.Principal, order.BookingDraft) {
				return auth.Principal{ID: uuid.Must(uuid.NewV4()), Role: auth.RoleManager, Status: auth.StatusApproved}, h.draft(10)
			},
			wantErrIs: auth.ErrForbidden,
		},
		{
			name: "provider_down",
			setup: func(h *harness) (auth.Principal, order.BookingDraft) {
				h.provider.createFunc = func(context.Context, payment.CheckoutSessionRequest) (payment.CheckoutSession, error) {
					return payment.CheckoutSession{}, errors.New("connection reset")
				}
				return h.customer, h.draft(10)
			},
			wantErrIs: payment.ErrUpstreamPayment,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			actor, draft := tt.setup(h)

			_, err := h.bridge.CreateCheckoutIntent(context.Background(), actor, draft)
			require.ErrorIs(t, err, tt.wantErrIs)
		})
	}
}

func TestBridge_CreateCheckoutIntent_DoubleSubmit(t *testing.T) {
	h := newHarness(t)

	first := h.checkout(t, 10)
	h.now = h.now.Add(10 * time.Second)
	second := h.checkout(t, 10)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.RedirectURL, second.RedirectURL)
	assert.Equal(t, 1, h.sessions.Len())

	h.now = h.now.Add(2 * time.Minute)
	later := h.checkout(t, 10)
	assert.NotEqual(t, first.ID, later.ID)

	other := h.checkout(t, 12)
	assert.NotEqual(t, later.ID, other.ID)
	assert.Equal(t, 3, h.sessions.Len())
}

func TestBridge_MaterializeOrder(t *testing.T) {
	h := newHarness(t)
	s := h.checkout(t, 10)

	o, err := h.bridge.MaterializeOrder(context.Background(), h.customer, payment.SuccessMetadata{SessionID: s.ID})
	require.NoError(t, err)

	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, order.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, s.ID, o.PaymentSessionID)
	assert.True(t, o.TotalPrice.Equal(s.Amount))
	assert.Equal(t, "Grace", o.Delivery.FirstName)

	stored, err := h.sessions.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.SessionCompleted, stored.State)
	require.NotNil(t, stored.OrderID)
	assert.Equal(t, o.ID, *stored.OrderID)
}

func TestBridge_MaterializeOrder_Idempotent(t *testing.T) {
	h := newHarness(t)
	s := h.checkout(t, 10)
	meta := payment.SuccessMetadata{SessionID: s.ID, ProductID: h.product.ID, Quantity: 10}

	first, err := h.bridge.MaterializeOrder(context.Background(), h.customer, meta)
	require.NoError(t, err)
	second, err := h.bridge.MaterializeOrder(context.Background(), h.customer, meta)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, h.orders.Len())
	assert.Equal(t, int32(1), h.provider.retrieved.Load())
}

func TestBridge_MaterializeOrder_ConcurrentDuplicates(t *testing.T) {
	h := newHarness(t)
	s := h.checkout(t, 10)

	const callers = 8
	var wg sync.WaitGroup
	ids := make([]uuid.UUID, callers)
	errs := make([]error, callers)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			o, err := h.bridge.MaterializeOrder(context.Background(), h.customer, payment.SuccessMetadata{SessionID: s.ID})
			errs[i] = err
			if err == nil {
				ids[i] = o.ID
			}
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, h.orders.Len())
}

func TestBridge_MaterializeOrder_WithoutSessionID(t *testing.T) {
	h := newHarness(t)
	s := h.checkout(t, 10)

	o, err := h.bridge.MaterializeOrder(context.Background(), h.customer, payment.SuccessMetadata{ProductID: h.product.ID, Quantity: 10})
	require.NoError(t, err)
	assert.Equal(t, s.ID, o.PaymentSessionID)

	_, err = h.bridge.MaterializeOrder(context.Background(), h.customer, payment.SuccessMetadata{ProductID: h.product.ID, Quantity: 11})
	require.ErrorIs(t, err, payment.ErrSessionNotFound)
}

func TestBridge_MaterializeOrder_ReplayWithoutSessionID(t *testing.T) {
	h := newHarness(t)
	h.checkout(t, 10)
	meta := payment.SuccessMetadata{ProductID: h.product.ID, Quantity: 10}

	first, err := h.bridge.MaterializeOrder(context.Background(), h.customer, meta)
	require.NoError(t, err)
	second, err := h.bridge.MaterializeOrder(context.Background(), h.customer, meta)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, h.orders.Len())
	assert.Equal(t, int32(1), h.provider.retrieved.Load())
}

func TestBridge_MaterializeOrder_Failures(t *testing.T) {
	errConnReset := errors.New("pgx: connection reset by peer")

	tests := []struct {
		name      string
		setup     func(h *harness, s *payment.Session) (auth.Principal, payment.SuccessMetadata)
		wantErrIs error
		notErrIs  error
	}{
		{
			name: "tampered_quantity",
			setup: func(h *harness, s *payment.Session) (auth.Principal, payment.SuccessMetadata) {
				return h.customer, payment.SuccessMetadata{SessionID: s.ID, Quantity: 1000}
			},
			wantErrIs: payment.ErrInvalidAmount,
		},
		{
			name: "price_changed",
			setup: func(h *harness, s *payment.Session) (auth.Principal, payment.SuccessMetadata) {
				h.catalog.products[h.product.ID].Price = decimal.RequireFromString("25.00")
				return h.customer, payment.SuccessMetadata{SessionID: s.ID}
			},
			wantErrIs: payment.ErrInvalidAmount,
		},
		{
			name: "stock_sold_out",
			setup: func(h *harness, s *payment.Session) (auth.Principal, payment.SuccessMetadata) {
				h.catalog.products[h.product.ID].AvailableQuantity = 3
				return h.customer, payment.SuccessMetadata{SessionID: s.ID}
			},
			wantErrIs: order.ErrProductUnavailable,
		},
		{
			name: "minimum_raised",
			setup: func(h *harness, s *payment.Session) (auth.Principal, payment.SuccessMetadata) {
				h.catalog.products[h.product.ID].MinimumOrder = 50
				return h.customer, payment.SuccessMetadata{SessionID: s.ID}
			},
			wantErrIs: order.ErrProductUnavailable,
		},
		{
			name: "product_removed",
			setup: func(h *harness, s *payment.Session) (auth.Principal, payment.SuccessMetadata) {
				delete(h.catalog.products, h.product.ID)
				return h.customer, payment.SuccessMetadata{SessionID: s.ID}
			},
			wantErrIs: order.ErrProductUnavailable,
		},
		{
			name: "catalog_down",
			setup: func(h *harness, s *payment.Session) (auth.Principal, payment.SuccessMetadata) {
				h.catalog.err = errConnReset
				return h.customer, payment.SuccessMetadata{SessionID: s.ID}
			},
			wantErrIs: errConnReset,
			notErrIs:  order.ErrProductUnavailable,
		},
		{
			name: "not_paid",
			setup: func(h *harness, s *payment.Session) (auth.Principal, payment.SuccessMetadata) {
				h.provider.retrieveFunc = func(_ context.Context, id string) (payment.RemoteSession, error) {
					return payment.RemoteSession{ID: id, Paid: false, AmountTotal: 19990}, nil
				}
				return h.customer, payment.SuccessMetadata{SessionID: s.ID}
			},
			wantErrIs: payment.ErrPaymentIncomplete,
		},
		{
			name: "provider_amount_mismatch",
			setup: func(h *harness, s *payment.Session) (auth.Principal, payment.SuccessMetadata) {
				h.provider.retrieveFunc = func(_ context.Context, id string) (payment.RemoteSession, error) {
					return payment.RemoteSession{ID: id, Paid: true, AmountTotal: 100}, nil
				}
				return h.customer, payment.SuccessMetadata{SessionID: s.ID}
			},
			wantErrIs: payment.ErrInvalidAmount,
		},
		{
			name: "provider_currency_mismatch",
			setup: func(h *harness, s *payment.Session) (auth.Principal, payment.SuccessMetadata) {
				h.provider.retrieveFunc = func(_ context.Context, id string) (payment.RemoteSession, error) {
					return payment.RemoteSession{
						ID: id, Paid: true, AmountTotal: 19990, Currency: "eur",
						Metadata: map[string]string{"product_id": h.product.ID.String(), "quantity": "10"},
					}, nil
				}
				return h.customer, payment.SuccessMetadata{SessionID: s.ID}
			},
			wantErrIs: payment.ErrInvalidAmount,
		},
		{
			name: "provider_metadata_mismatch",
			setup: func(h *harness, s *payment.Session) (auth.Principal, payment.SuccessMetadata) {
				h.provider.retrieveFunc = func(_ context.Context, id string) (payment.RemoteSession, error) {
					return payment.RemoteSession{
						ID: id, Paid: true, AmountTotal: 19990, Currency: "usd",
						Metadata: map[string]string{"product_id": uuid.Must(uuid.NewV4()).String(), "quantity": "10"},
					}, nil
				}
				return h.customer, payment.SuccessMetadata{SessionID: s.ID}
			},
			wantErrIs: payment.ErrInvalidAmount,
		},
		{
			name: "provider_error",
			setup: func(h *harness, s *payment.Session) (auth.Principal, payment.SuccessMetadata) {
				h.provider.retrieveFunc = func(context.Context, string) (payment.RemoteSession, error) {
					return payment.RemoteSession{}, errors.New("stripe: 500")
				}
				return h.customer, payment.SuccessMetadata{SessionID: s.ID}
			},
			wantErrIs: payment.ErrUpstreamPayment,
		},
		{
			name: "unknown_session",
			setup: func(h *harness, _ *payment.Session) (auth.Principal, payment.SuccessMetadata) {
				return h.customer, payment.SuccessMetadata{SessionID: "cs_missing"}
			},
			wantErrIs: payment.ErrSessionNotFound,
		},
		{
			name: "other_customer",
			setup: func(h *harness, s *payment.Session) (auth.Principal, payment.SuccessMetadata) {
				other := auth.Principal{ID: uuid.Must(uuid.NewV4()), Role: auth.RoleCustomer, Status: auth.StatusApproved}
				return other, payment.SuccessMetadata{SessionID: s.ID}
			},
			wantErrIs: auth.ErrForbidden,
		},
		{
			name: "suspended_customer",
			setup: func(h *harness, s *payment.Session) (auth.Principal, payment.SuccessMetadata) {
				suspended := h.customer
				suspended.Status = auth.StatusSuspended
				return suspended, payment.SuccessMetadata{SessionID: s.ID}
			},
			wantErrIs: auth.ErrAccountSuspended,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			s := h.checkout(t, 10)
			actor, meta := tt.setup(h, s)

			o, err := h.bridge.MaterializeOrder(context.Background(), actor, meta)
			require.ErrorIs(t, err, tt.wantErrIs)
			if tt.notErrIs != nil {
				assert.NotErrorIs(t, err, tt.notErrIs)
			}
			assert.Nil(t, o)
			assert.Equal(t, 0, h.orders.Len())
		})
	}
}
