package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/garment-order-service/internal/auth"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrInvalidRole         = errors.New("invalid role")
	ErrInvalidRegistration = errors.New("invalid registration")
	ErrSelfModification    = errors.New("admins cannot suspend or demote themselves")
)

type Service interface {
	Register(ctx context.Context, reg Registration) (*User, error)
	Authenticate(ctx context.Context, email, password string) (*User, error)
	GetProfile(ctx context.Context, id uuid.UUID) (*User, error)
	Principal(ctx context.Context, id uuid.UUID) (auth.Principal, error)
	ListUsers(ctx context.Context, actor auth.Principal, filter ListFilter) ([]User, error)
	ApproveUser(ctx context.Context, actor auth.Principal, id uuid.UUID) (*User, error)
	SuspendUser(ctx context.Context, actor auth.Principal, id uuid.UUID, reason string) (*User, error)
	SetRole(ctx context.Context, actor auth.Principal, id uuid.UUID, role auth.Role) (*User, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// Register creates an account in pending status. Only customer and manager
// roles can be requested; admins are promoted by another admin.
func (s *service) Register(ctx context.Context, reg Registration) (*User, error) {
	if reg.Password == "" {
		return nil, fmt.Errorf("%w: password cannot be empty", ErrInvalidRegistration)
	}
	if reg.Role == "" {
		reg.Role = auth.RoleCustomer
	}
	if reg.Role != auth.RoleCustomer && reg.Role != auth.RoleManager {
		return nil, fmt.Errorf("%w: %q cannot be requested at registration", ErrInvalidRole, reg.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to hash password")
		return nil, fmt.Errorf("internal error hashing password: %w", err)
	}

	user := &User{
		Email:        strings.ToLower(strings.TrimSpace(reg.Email)),
		Name:         strings.TrimSpace(reg.Name),
		PhotoURL:     reg.PhotoURL,
		PasswordHash: string(hash),
		Role:         reg.Role,
		Status:       auth.StatusPending,
	}

	createdID, err := s.repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, ErrEmailExists) {
			return nil, ErrEmailExists
		}
		log.Error().Err(err).Msg("service: failed to create user in repository")
		return nil, fmt.Errorf("failed to save user: %w", err)
	}
	user.ID = createdID

	log.Info().Stringer("user_id", user.ID).Stringer("role", user.Role).Msg("service: user registered")
	return user, nil
}

func (s *service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

func (s *service) GetProfile(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Stringer("user_id", id).Msg("service: failed to get user by id in repository")
		return nil, fmt.Errorf("failed to get user by id '%s': %w", id, err)
	}

	return user, nil
}

func (s *service) Principal(ctx context.Context, id uuid.UUID) (auth.Principal, error) {
	user, err := s.GetProfile(ctx, id)
	if err != nil {
		return auth.Principal{}, err
	}
	return user.Principal(), nil
}

func (s *service) ListUsers(ctx context.Context, actor auth.Principal, filter ListFilter) ([]User, error) {
	if err := auth.Check(actor, auth.ManageUsers, auth.Resource{}); err != nil {
		return nil, err
	}

	users, err := s.repo.List(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list users")
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	return users, nil
}

func (s *service) ApproveUser(ctx context.Context, actor auth.Principal, id uuid.UUID) (*User, error) {
	return s.updateAccess(ctx, actor, auth.ApproveUser, id, func(u *User) error {
		u.Status = auth.StatusApproved
		u.SuspendReason = ""
		return nil
	})
}

func (s *service) SuspendUser(ctx context.Context, actor auth.Principal, id uuid.UUID, reason string) (*User, error) {
	return s.updateAccess(ctx, actor, auth.SuspendUser, id, func(u *User) error {
		if u.ID == actor.ID {
			return ErrSelfModification
		}
		u.Status = auth.StatusSuspended
		u.SuspendReason = strings.TrimSpace(reason)
		return nil
	})
}

func (s *service) SetRole(ctx context.Context, actor auth.Principal, id uuid.UUID, role auth.Role) (*User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	return s.updateAccess(ctx, actor, auth.ChangeRole, id, func(u *User) error {
		if u.ID == actor.ID && role != auth.RoleAdmin {
			return ErrSelfModification
		}
		u.Role = role
		return nil
	})
}

func (s *service) updateAccess(ctx context.Context, actor auth.Principal, action auth.Action, id uuid.UUID, mutate func(*User) error) (*User, error) {
	if err := auth.Check(actor, action, auth.Resource{}); err != nil {
		log.Warn().Err(err).Stringer("actor_id", actor.ID).Stringer("user_id", id).Msg("service: user access change denied")
		return nil, err
	}

	user, err := s.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := mutate(user); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateAccess(ctx, user.ID, user.Role, user.Status, user.SuspendReason); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Stringer("user_id", id).Msg("service: failed to update user access")
		return nil, fmt.Errorf("failed to update user access '%s': %w", id, err)
	}

	log.Info().
		Stringer("actor_id", actor.ID).
		Stringer("user_id", user.ID).
		Str("action", string(action)).
		Stringer("role", user.Role).
		Stringer("status", user.Status).
		Msg("service: user access updated")

	return user, nil
}
