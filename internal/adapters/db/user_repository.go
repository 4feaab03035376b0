// internal/adapters/db/user_repository.go
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
)

const userSelect = `SELECT id, email, name, role, password_hash, created_at, updated_at FROM users`

type UserRepository struct {
	db     *Database
	logger *slog.Logger
}

var _ ports.UserRepository = (*UserRepository)(nil)

func NewUserRepository(db *Database, logger *slog.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger.With(slog.String("repository", "users")),
	}
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, email, name, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Email, u.Name, string(u.Role), u.PasswordHash, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return translateUserError(err, u)
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, userSelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("user", id)
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, userSelect+` WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return u, nil
}

func (r *UserRepository) Update(ctx context.Context, u *domain.User) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET email = $2, name = $3, role = $4, updated_at = $5
		WHERE id = $1`,
		u.ID, u.Email, u.Name, string(u.Role), u.UpdatedAt,
	)
	if err != nil {
		return translateUserError(err, u)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("user", u.ID)
	}
	return nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, hash, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("user", id)
	}
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("user", id)
	}
	return nil
}

func (r *UserRepository) List(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.db.Query(ctx, userSelect+` ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	items, err := scanAll(rows, scanUser)
	if err != nil {
		return nil, fmt.Errorf("failed to scan users: %w", err)
	}
	return items, nil
}

func translateUserError(err error, u *domain.User) error {
	if code, _ := pgError(err); code == pgUniqueViolation {
		return domain.NewConflictError("email %s is already registered", u.Email)
	}
	return fmt.Errorf("failed to save user: %w", err)
}

func scanUser(row rowScanner) (*domain.User, error) {
	u := &domain.User{}
	var role string
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	return u, nil
}
