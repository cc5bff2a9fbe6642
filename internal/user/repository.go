package user

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Repository handles user data persistence
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new user repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetByID retrieves a user by ID, returning nil when absent.
func (r *Repository) GetByID(ctx context.Context, id int64) (*User, error) {
	query := `
		SELECT id, email, full_name, created_at
		FROM users
		WHERE id = $1
	`

	user := &User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// UpsertByEmail finds or creates a user by email. The insert is backed by the
// unique email constraint so concurrent callers resolve to the same row. New
// accounts get a placeholder name derived from the email local part.
func (r *Repository) UpsertByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	fullName := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		fullName = email[:at]
	}

	query := `
		INSERT INTO users (email, full_name)
		VALUES ($1, $2)
		ON CONFLICT (email) DO NOTHING
		RETURNING id, email, full_name, created_at
	`

	user := &User{}
	err := r.db.QueryRowContext(ctx, query, email, fullName).Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.CreatedAt,
	)
	if err == nil {
		return user, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// Conflict: the user already exists, fetch it.
	err = r.db.QueryRowContext(ctx,
		`SELECT id, email, full_name, created_at FROM users WHERE email = $1`,
		email,
	).Scan(&user.ID, &user.Email, &user.FullName, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return user, nil
}
