// internal/core/services/users.go
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
)

// UserService manages operator accounts.
type UserService struct {
	users  ports.UserRepository
	hasher ports.PasswordHasher
	logger *slog.Logger
}

// Statically assert that *UserService implements the UserService interface.
var _ ports.UserService = (*UserService)(nil)

func NewUserService(users ports.UserRepository, hasher ports.PasswordHasher, logger *slog.Logger) *UserService {
	return &UserService{
		users:  users,
		hasher: hasher,
		logger: logger.With(slog.String("service", "users")),
	}
}

func (s *UserService) Create(ctx context.Context, user *domain.User, password string) (*domain.User, error) {
	if err := user.Validate(); err != nil {
		return nil, err
	}
	if err := domain.ValidatePassword(password); err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, user.Email, uuid.Nil); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, classifyError(ctx, s.logger, "hash password", err)
	}

	now := time.Now().UTC()
	user.ID = uuid.New()
	user.PasswordHash = hash
	user.CreatedAt = now
	user.UpdatedAt = now

	if err := s.users.Create(ctx, user); err != nil {
		return nil, classifyError(ctx, s.logger, "create user", err)
	}

	s.logger.InfoContext(ctx, "user created",
		slog.String("user_id", user.ID.String()),
		slog.String("role", string(user.Role)))
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, classifyError(ctx, s.logger, "load user", err)
	}
	return u, nil
}

func (s *UserService) List(ctx context.Context) ([]*domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, classifyError(ctx, s.logger, "list users", err)
	}
	return users, nil
}

// Update changes name, email and role.
func (s *UserService) Update(ctx context.Context, user *domain.User) (*domain.User, error) {
	existing, err := s.Get(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	if user.Email != existing.Email {
		if err := s.ensureEmailFree(ctx, user.Email, user.ID); err != nil {
			return nil, err
		}
	}

	existing.Name = user.Name
	existing.Email = user.Email
	existing.Role = user.Role
	existing.UpdatedAt = time.Now().UTC()
	if err := s.users.Update(ctx, existing); err != nil {
		return nil, classifyError(ctx, s.logger, "update user", err)
	}
	return existing, nil
}

// Delete removes a user. Operators cannot delete themselves.
func (s *UserService) Delete(ctx context.Context, id uuid.UUID, actorID uuid.UUID) error {
	if id == actorID {
		return domain.NewConflictError("you cannot delete your own account")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return classifyError(ctx, s.logger, "delete user", err)
	}
	s.logger.InfoContext(ctx, "user deleted",
		slog.String("user_id", id.String()),
		slog.String("actor_id", actorID.String()))
	return nil
}

// UpdateProfile lets a user change their own name and email.
func (s *UserService) UpdateProfile(ctx context.Context, id uuid.UUID, name, email string) (*domain.User, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	changed := *existing
	changed.Name = name
	changed.Email = email
	return s.Update(ctx, &changed)
}

// ChangePassword verifies the current password before storing the new one.
func (s *UserService) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	if current == "" {
		return domain.NewValidationError("current password is required")
	}
	if err := domain.ValidatePassword(next); err != nil {
		return err
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.hasher.Compare(user.PasswordHash, current); err != nil {
		return domain.NewValidationError("current password is incorrect")
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return classifyError(ctx, s.logger, "hash password", err)
	}
	if err := s.users.UpdatePassword(ctx, id, hash); err != nil {
		return classifyError(ctx, s.logger, "update password", err)
	}

	s.logger.InfoContext(ctx, "password changed", slog.String("user_id", id.String()))
	return nil
}

func (s *UserService) ensureEmailFree(ctx context.Context, email string, self uuid.UUID) error {
	other, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return classifyError(ctx, s.logger, "check email", err)
	}
	if other != nil && other.ID != self {
		return domain.NewConflictError("email %s is already registered", email)
	}
	return nil
}
