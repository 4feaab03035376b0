// internal/adapters/db/category_repository.go
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

const categorySelect = `
	SELECT c.id, c.name, c.description, COUNT(p.id), c.created_at, c.updated_at
	FROM categories c
	LEFT JOIN products p ON p.category_id = c.id`

type CategoryRepository struct {
	db     *Database
	logger *slog.Logger
}

var _ ports.CategoryRepository = (*CategoryRepository)(nil)

func NewCategoryRepository(db *Database, logger *slog.Logger) *CategoryRepository {
	return &CategoryRepository{
		db:     db,
		logger: logger.With(slog.String("repository", "categories")),
	}
}

func (r *CategoryRepository) Create(ctx context.Context, c *domain.Category) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO categories (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.Name, c.Description, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return translateCategoryError(err, c)
	}
	return nil
}

// FindByID returns the category with its product count.
func (r *CategoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	query := categorySelect + `
		WHERE c.id = $1
		GROUP BY c.id`

	c, err := scanCategory(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("category", id)
		}
		return nil, fmt.Errorf("failed to find category: %w", err)
	}
	return c, nil
}

func (r *CategoryRepository) Update(ctx context.Context, c *domain.Category) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE categories SET name = $2, description = $3, updated_at = $4
		WHERE id = $1`,
		c.ID, c.Name, c.Description, c.UpdatedAt,
	)
	if err != nil {
		return translateCategoryError(err, c)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("category", c.ID)
	}
	return nil
}

func (r *CategoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		if code, _ := pgError(err); code == pgForeignKeyViolation {
			return domain.NewConflictError("category %s still has products and cannot be deleted", id)
		}
		return fmt.Errorf("failed to delete category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("category", id)
	}
	r.logger.InfoContext(ctx, "category deleted", slog.String("category_id", id.String()))
	return nil
}

func (r *CategoryRepository) List(ctx context.Context) ([]*domain.Category, error) {
	query := categorySelect + `
		GROUP BY c.id
		ORDER BY c.name ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	items, err := scanAll(rows, scanCategory)
	if err != nil {
		return nil, fmt.Errorf("failed to scan categories: %w", err)
	}
	return items, nil
}

func translateCategoryError(err error, c *domain.Category) error {
	if code, _ := pgError(err); code == pgUniqueViolation {
		return domain.NewConflictError("category %q already exists", c.Name)
	}
	return fmt.Errorf("failed to save category: %w", err)
}

func scanCategory(row rowScanner) (*domain.Category, error) {
	c := &domain.Category{}
	var count int64
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &count, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.ProductCount = int(count)
	return c, nil
}
