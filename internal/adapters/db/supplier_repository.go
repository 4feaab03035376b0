// internal/adapters/db/supplier_repository.go
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
)

type SupplierRepository struct {
	db     *Database
	logger *slog.Logger
}

var _ ports.SupplierRepository = (*SupplierRepository)(nil)

func NewSupplierRepository(db *Database, logger *slog.Logger) *SupplierRepository {
	return &SupplierRepository{
		db:     db,
		logger: logger.With(slog.String("repository", "suppliers")),
	}
}

func (r *SupplierRepository) Create(ctx context.Context, s *domain.Supplier) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO suppliers (id, name, email, phone, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.Name, s.Email, s.Phone, s.Address, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save supplier: %w", err)
	}
	return nil
}

func (r *SupplierRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Supplier, error) {
	s, err := scanSupplier(r.db.QueryRow(ctx, `
		SELECT id, name, email, phone, address, created_at, updated_at
		FROM suppliers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("supplier", id)
		}
		return nil, fmt.Errorf("failed to find supplier: %w", err)
	}
	return s, nil
}

func (r *SupplierRepository) Update(ctx context.Context, s *domain.Supplier) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE suppliers SET name = $2, email = $3, phone = $4, address = $5, updated_at = $6
		WHERE id = $1`,
		s.ID, s.Name, s.Email, s.Phone, s.Address, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update supplier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("supplier", s.ID)
	}
	return nil
}

func (r *SupplierRepository) List(ctx context.Context) ([]*domain.Supplier, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, email, phone, address, created_at, updated_at
		FROM suppliers ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query suppliers: %w", err)
	}
	items, err := scanAll(rows, scanSupplier)
	if err != nil {
		return nil, fmt.Errorf("failed to scan suppliers: %w", err)
	}
	return items, nil
}

func scanSupplier(row rowScanner) (*domain.Supplier, error) {
	s := &domain.Supplier{}
	if err := row.Scan(&s.ID, &s.Name, &s.Email, &s.Phone, &s.Address, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return s, nil
}
