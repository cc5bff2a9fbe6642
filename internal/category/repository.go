package category

import (
	"context"
	"database/sql"
	"fmt"
)

// Repository handles category data persistence
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new category repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetByID retrieves a category by ID, returning nil when absent.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Category, error) {
	query := `SELECT id, name, created_at FROM categories WHERE id = $1`

	cat := &Category{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&cat.ID, &cat.Name, &cat.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get category: %w", err)
	}

	return cat, nil
}

// FindByName retrieves a category by case-insensitive name, returning nil
// when absent.
func (r *Repository) FindByName(ctx context.Context, name string) (*Category, error) {
	query := `SELECT id, name, created_at FROM categories WHERE LOWER(name) = LOWER($1)`

	cat := &Category{}
	err := r.db.QueryRowContext(ctx, query, name).Scan(&cat.ID, &cat.Name, &cat.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find category: %w", err)
	}

	return cat, nil
}

// List retrieves all categories ordered by name.
func (r *Repository) List(ctx context.Context) ([]*Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []*Category
	for rows.Next() {
		cat := &Category{}
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, cat)
	}

	return categories, nil
}
