package friend

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/dotsapp/dots/internal/database"
)

// Repository handles friendship data persistence
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new friend repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Upsert finds or creates the friendship edge (createdBy -> memberID). It is
// backed by the unique (created_by, member_id) constraint, so concurrent
// retries resolve to the same row. The bool result reports first creation.
func (r *Repository) Upsert(ctx context.Context, q database.Queryer, createdBy, memberID int64) (*Friend, bool, error) {
	query := `
		INSERT INTO friends (created_by, member_id)
		VALUES ($1, $2)
		ON CONFLICT (created_by, member_id) DO NOTHING
		RETURNING id, created_by, member_id, created_at
	`

	f := &Friend{}
	err := q.QueryRowContext(ctx, query, createdBy, memberID).Scan(
		&f.ID,
		&f.CreatedBy,
		&f.MemberID,
		&f.CreatedAt,
	)
	if err == nil {
		return f, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("failed to create friend: %w", err)
	}

	err = q.QueryRowContext(ctx,
		`SELECT id, created_by, member_id, created_at FROM friends WHERE created_by = $1 AND member_id = $2`,
		createdBy, memberID,
	).Scan(&f.ID, &f.CreatedBy, &f.MemberID, &f.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get friend: %w", err)
	}

	return f, false, nil
}

// FindByEmails retrieves the friends of a user whose member accounts match
// the given emails.
func (r *Repository) FindByEmails(ctx context.Context, createdBy int64, emails []string) ([]*Friend, error) {
	if len(emails) == 0 {
		return nil, nil
	}

	query := `
		SELECT f.id, f.created_by, f.member_id, f.created_at, u.email
		FROM friends f
		JOIN users u ON f.member_id = u.id
		WHERE f.created_by = $1 AND u.email = ANY($2)
		ORDER BY f.id
	`

	rows, err := r.db.QueryContext(ctx, query, createdBy, pq.Array(emails))
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}
	defer rows.Close()

	var friends []*Friend
	for rows.Next() {
		f := &Friend{}
		if err := rows.Scan(&f.ID, &f.CreatedBy, &f.MemberID, &f.CreatedAt, &f.MemberEmail); err != nil {
			return nil, fmt.Errorf("failed to scan friend: %w", err)
		}
		friends = append(friends, f)
	}

	return friends, nil
}
