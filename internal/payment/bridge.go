package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/garment-order-service/internal/auth"
	"github.com/vasiliy-maslov/garment-order-service/internal/order"
	"github.com/vasiliy-maslov/garment-order-service/internal/product"
)

var (
	ErrInvalidAmount     = errors.New("payment amount does not match the order")
	ErrUpstreamPayment   = errors.New("payment provider error")
	ErrPaymentIncomplete = errors.New("payment has not been completed")
)

const sessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"

// OrderStore is the slice of order.Repository the bridge writes through.
type OrderStore interface {
	Create(ctx context.Context, o *order.Order) (uuid.UUID, error)
	GetByPaymentSession(ctx context.Context, sessionID string) (*order.Order, error)
}

type Config struct {
	Currency   string
	SuccessURL string
	CancelURL  string
	Clock      func() time.Time
}

type Bridge interface {
	CreateCheckoutIntent(ctx context.Context, actor auth.Principal, draft order.BookingDraft) (*Session, error)
	MaterializeOrder(ctx context.Context, actor auth.Principal, meta SuccessMetadata) (*order.Order, error)
}

type bridge struct {
	sessions Repository
	orders   OrderStore
	catalog  order.Catalog
	provider Provider
	cfg      Config
	now      func() time.Time
}

func NewBridge(sessions Repository, orders OrderStore, catalog order.Catalog, provider Provider, cfg Config) Bridge {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &bridge{
		sessions: sessions,
		orders:   orders,
		catalog:  catalog,
		provider: provider,
		cfg:      cfg,
		now:      now,
	}
}

// CreateCheckoutIntent prices the draft from the live product and opens a
// provider checkout for it. The amount never comes from the client.
func (b *bridge) CreateCheckoutIntent(ctx context.Context, actor auth.Principal, draft order.BookingDraft) (*Session, error) {
	if err := auth.Check(actor, auth.CreateOrder, auth.Resource{}); err != nil {
		return nil, err
	}

	p, err := b.catalog.GetProduct(ctx, draft.ProductID)
	if err != nil {
		return nil, err
	}
	preview, err := order.NewFromSnapshot(actor.ID, p, draft.Quantity, draft.Delivery)
	if err != nil {
		return nil, err
	}

	createdAt := b.now().UTC()
	checkout, err := b.provider.CreateCheckoutSession(ctx, CheckoutSessionRequest{
		ProductName:   p.Name,
		Quantity:      int64(draft.Quantity),
		UnitAmount:    toMinorUnits(p.Price),
		Currency:      b.cfg.Currency,
		CustomerEmail: actor.Email,
		SuccessURL:    successURL(b.cfg.SuccessURL),
		CancelURL:     b.cfg.CancelURL,
		Metadata: map[string]string{
			"product_id":  p.ID.String(),
			"quantity":    strconv.Itoa(draft.Quantity),
			"customer_id": actor.ID.String(),
		},
		IdempotencyKey: checkoutIdempotencyKey(actor.ID, p.ID, draft.Quantity, createdAt),
	})
	if err != nil {
		log.Error().
			Err(err).
			Stringer("customer_id", actor.ID).
			Stringer("product_id", p.ID).
			Int("quantity", draft.Quantity).
			Msg("service: failed to create checkout session")
		return nil, fmt.Errorf("%w: %v", ErrUpstreamPayment, err)
	}

	session := &Session{
		ID:          checkout.ID,
		CustomerID:  actor.ID,
		ProductID:   p.ID,
		Quantity:    draft.Quantity,
		UnitPrice:   p.Price,
		Amount:      preview.TotalPrice,
		Currency:    strings.ToLower(b.cfg.Currency),
		Delivery:    draft.Delivery,
		State:       SessionOpen,
		CreatedAt:   createdAt,
		ExpiresAt:   checkout.ExpiresAt,
		RedirectURL: checkout.RedirectURL,
	}
	if err := b.sessions.Create(ctx, session); err != nil {
		if errors.Is(err, ErrDuplicateSession) {
			stored, getErr := b.sessions.GetByID(ctx, session.ID)
			if getErr != nil {
				return nil, fmt.Errorf("service: failed to load repeated checkout session: %w", getErr)
			}
			if stored.CustomerID != actor.ID {
				return nil, fmt.Errorf("service: checkout session %s belongs to another customer", session.ID)
			}
			log.Info().Str("session_id", stored.ID).Stringer("customer_id", actor.ID).Msg("service: repeated checkout resolved to existing session")
			return stored, nil
		}
		log.Error().Err(err).Str("session_id", session.ID).Msg("service: failed to store payment session")
		return nil, fmt.Errorf("service: failed to store payment session: %w", err)
	}

	log.Info().
		Str("session_id", session.ID).
		Stringer("customer_id", actor.ID).
		Str("amount", session.Amount.StringFixed(2)).
		Msg("service: checkout session created")

	return session, nil
}

// MaterializeOrder turns a paid checkout into exactly one order. Replays for
// the same session return the order created by the first call.
func (b *bridge) MaterializeOrder(ctx context.Context, actor auth.Principal, meta SuccessMetadata) (*order.Order, error) {
	if err := auth.Check(actor, auth.CreateOrder, auth.Resource{}); err != nil {
		return nil, err
	}

	session, err := b.resolveSession(ctx, actor, meta)
	if err != nil {
		return nil, err
	}
	if session.CustomerID != actor.ID {
		log.Warn().Str("session_id", session.ID).Stringer("actor_id", actor.ID).Msg("service: session belongs to another customer")
		return nil, &auth.DenyError{Action: auth.CreateOrder, Reason: auth.ErrForbidden}
	}

	existing, err := b.orders.GetByPaymentSession(ctx, session.ID)
	if err == nil {
		log.Info().Str("session_id", session.ID).Stringer("order_id", existing.ID).Msg("service: order already materialized")
		return existing, nil
	}
	if !errors.Is(err, order.ErrOrderNotFound) {
		return nil, fmt.Errorf("service: failed to look up order for session: %w", err)
	}

	if (meta.ProductID != uuid.Nil && meta.ProductID != session.ProductID) ||
		(meta.Quantity != 0 && meta.Quantity != session.Quantity) {
		log.Warn().Str("session_id", session.ID).Msg("service: success metadata does not match session")
		return nil, fmt.Errorf("%w: metadata does not match session %s", ErrInvalidAmount, session.ID)
	}

	p, err := b.catalog.GetProduct(ctx, session.ProductID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", order.ErrProductUnavailable, err)
		}
		log.Error().Err(err).Str("session_id", session.ID).Stringer("product_id", session.ProductID).Msg("service: failed to load product for paid session")
		return nil, fmt.Errorf("service: failed to load product: %w", err)
	}
	if live := order.Total(p.Price, session.Quantity); !live.Equal(session.Amount) {
		log.Warn().
			Str("session_id", session.ID).
			Str("session_amount", session.Amount.StringFixed(2)).
			Str("live_amount", live.StringFixed(2)).
			Msg("service: price changed since checkout")
		return nil, fmt.Errorf("%w: paid %s, live price is %s", ErrInvalidAmount, session.Amount.StringFixed(2), live.StringFixed(2))
	}

	o, err := order.NewFromSnapshot(session.CustomerID, p, session.Quantity, session.Delivery)
	if err != nil {
		return nil, err
	}

	remote, err := b.provider.RetrieveCheckoutSession(ctx, session.ID)
	if err != nil {
		log.Error().
			Err(err).
			Str("session_id", session.ID).
			Stringer("customer_id", session.CustomerID).
			Stringer("product_id", session.ProductID).
			Msg("service: failed to confirm checkout session with provider")
		return nil, fmt.Errorf("%w: %v", ErrUpstreamPayment, err)
	}
	if !remote.Paid {
		return nil, fmt.Errorf("%w: session %s", ErrPaymentIncomplete, session.ID)
	}
	if remote.AmountTotal != toMinorUnits(session.Amount) {
		log.Warn().Str("session_id", session.ID).Int64("remote_amount", remote.AmountTotal).Msg("service: provider amount mismatch")
		return nil, fmt.Errorf("%w: provider charged %d", ErrInvalidAmount, remote.AmountTotal)
	}
	if err := matchRemote(session, remote); err != nil {
		log.Warn().Err(err).Str("session_id", session.ID).Msg("service: provider session does not match stored session")
		return nil, err
	}

	o.PaymentStatus = order.PaymentPaid
	o.PaymentSessionID = session.ID

	if _, err := b.orders.Create(ctx, o); err != nil {
		if errors.Is(err, order.ErrDuplicatePaymentSession) {
			winner, getErr := b.orders.GetByPaymentSession(ctx, session.ID)
			if getErr != nil {
				return nil, fmt.Errorf("service: failed to load concurrently materialized order: %w", getErr)
			}
			log.Info().Str("session_id", session.ID).Stringer("order_id", winner.ID).Msg("service: concurrent materialization resolved to existing order")
			return winner, nil
		}
		log.Error().Err(err).Str("session_id", session.ID).Msg("service: failed to create paid order")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	if err := b.sessions.MarkCompleted(ctx, session.ID, o.ID); err != nil {
		log.Warn().Err(err).Str("session_id", session.ID).Stringer("order_id", o.ID).Msg("service: failed to mark payment session completed")
	}

	log.Info().
		Str("session_id", session.ID).
		Stringer("order_id", o.ID).
		Stringer("customer_id", o.CustomerID).
		Msg("service: order materialized from payment")

	return o, nil
}

func (b *bridge) resolveSession(ctx context.Context, actor auth.Principal, meta SuccessMetadata) (*Session, error) {
	if meta.SessionID != "" {
		return b.sessions.GetByID(ctx, meta.SessionID)
	}

	// Without a session id the newest open session with matching metadata is
	// the best guess; two identical checkouts can still collide here. A
	// replay after success finds the completed session and its order.
	log.Warn().Stringer("customer_id", actor.ID).Stringer("product_id", meta.ProductID).Msg("service: materializing without session id")
	session, err := b.sessions.FindLatest(ctx, actor.ID, meta.ProductID, meta.Quantity, SessionOpen)
	if errors.Is(err, ErrSessionNotFound) {
		return b.sessions.FindLatest(ctx, actor.ID, meta.ProductID, meta.Quantity, SessionCompleted)
	}
	return session, err
}

// matchRemote compares what the provider charged for with the stored session.
func matchRemote(session *Session, remote RemoteSession) error {
	if !strings.EqualFold(remote.Currency, session.Currency) {
		return fmt.Errorf("%w: provider currency %q, session currency %q", ErrInvalidAmount, remote.Currency, session.Currency)
	}
	if remote.Metadata["product_id"] != session.ProductID.String() ||
		remote.Metadata["quantity"] != strconv.Itoa(session.Quantity) {
		return fmt.Errorf("%w: provider metadata does not match session %s", ErrInvalidAmount, session.ID)
	}
	return nil
}

// checkoutIdempotencyKey makes a double-submitted checkout form within the
// same minute reuse one provider session.
func checkoutIdempotencyKey(customerID, productID uuid.UUID, quantity int, at time.Time) string {
	return fmt.Sprintf("checkout-%s-%s-%d-%d", customerID, productID, quantity, at.Truncate(time.Minute).Unix())
}

func successURL(base string) string {
	if strings.Contains(base, sessionIDPlaceholder) {
		return base
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	sep := "?"
	if u.RawQuery != "" {
		sep = "&"
	}
	return base + sep + "session_id=" + sessionIDPlaceholder
}
