package product

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/garment-order-service/internal/auth"
)

var ErrInvalidProduct = errors.New("invalid product")

type Service interface {
	CreateProduct(ctx context.Context, actor auth.Principal, input Input) (*Product, error)
	UpdateProduct(ctx context.Context, actor auth.Principal, id uuid.UUID, input Input) (*Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
	ListProducts(ctx context.Context, filter ListFilter) ([]Product, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) CreateProduct(ctx context.Context, actor auth.Principal, input Input) (*Product, error) {
	if err := auth.Check(actor, auth.CreateProduct, auth.Resource{}); err != nil {
		log.Warn().Err(err).Stringer("actor_id", actor.ID).Msg("service: product creation denied")
		return nil, err
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	product := &Product{OwnerManagerID: actor.ID}
	apply(product, input)

	if _, err := s.repo.Create(ctx, product); err != nil {
		log.Error().Err(err).Stringer("actor_id", actor.ID).Msg("service: failed to create product in repository")
		return nil, fmt.Errorf("failed to save product: %w", err)
	}

	log.Info().Stringer("product_id", product.ID).Stringer("owner_id", actor.ID).Msg("service: product created")
	return product, nil
}

// UpdateProduct lets the owning manager edit a product. Admins may edit any product.
func (s *service) UpdateProduct(ctx context.Context, actor auth.Principal, id uuid.UUID, input Input) (*Product, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	if !auth.Allowed(actor, auth.ManageAnyProduct, auth.Resource{}) {
		if err := auth.Check(actor, auth.UpdateOwnProduct, auth.Resource{OwnerManagerID: product.OwnerManagerID}); err != nil {
			log.Warn().Err(err).Stringer("actor_id", actor.ID).Stringer("product_id", id).Msg("service: product update denied")
			return nil, err
		}
	}

	apply(product, input)
	if err := s.repo.Update(ctx, product); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Stringer("product_id", id).Msg("service: failed to update product in repository")
		return nil, fmt.Errorf("failed to update product '%s': %w", id, err)
	}

	log.Info().Stringer("product_id", id).Stringer("actor_id", actor.ID).Msg("service: product updated")
	return product, nil
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Stringer("product_id", id).Msg("service: failed to get product by id in repository")
		return nil, fmt.Errorf("failed to get product by id '%s': %w", id, err)
	}

	return product, nil
}

func (s *service) ListProducts(ctx context.Context, filter ListFilter) ([]Product, error) {
	products, err := s.repo.List(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list products")
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	return products, nil
}

func validateInput(input Input) error {
	switch {
	case strings.TrimSpace(input.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	case !input.Price.Round(2).IsPositive():
		return fmt.Errorf("%w: price must be positive", ErrInvalidProduct)
	case input.AvailableQuantity < 0:
		return fmt.Errorf("%w: available quantity cannot be negative", ErrInvalidProduct)
	case input.MinimumOrder < 1:
		return fmt.Errorf("%w: minimum order must be at least 1", ErrInvalidProduct)
	case !input.PaymentOption.Valid():
		return fmt.Errorf("%w: unknown payment option %q", ErrInvalidProduct, input.PaymentOption)
	}
	return nil
}

func apply(p *Product, input Input) {
	p.Name = strings.TrimSpace(input.Name)
	p.Description = input.Description
	p.Category = input.Category
	p.Price = input.Price.Round(2)
	p.AvailableQuantity = input.AvailableQuantity
	p.MinimumOrder = input.MinimumOrder
	p.PaymentOption = input.PaymentOption
	p.ShowOnHome = input.ShowOnHome
}
