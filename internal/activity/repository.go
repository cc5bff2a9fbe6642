package activity

import (
	"context"
	"database/sql"
	"fmt"
)

// Repository handles activity data persistence
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new activity repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateBatch inserts a set of activities.
func (r *Repository) CreateBatch(ctx context.Context, activities []*Activity) error {
	query := `
		INSERT INTO activities (sender_id, receiver_id, type, title, content)
		VALUES ($1, $2, $3, $4, $5)
	`

	for _, a := range activities {
		if _, err := r.db.ExecContext(ctx, query, a.SenderID, a.ReceiverID, a.Type, a.Title, a.Content); err != nil {
			return fmt.Errorf("failed to create activity: %w", err)
		}
	}
	return nil
}

// ListByReceiver retrieves activities for a user, newest first.
func (r *Repository) ListByReceiver(ctx context.Context, receiverID int64, limit, offset int, unreadOnly bool) ([]*Activity, int, error) {
	countQuery := `SELECT COUNT(*) FROM activities WHERE receiver_id = $1 AND ($2 = false OR is_read = false)`

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, receiverID, unreadOnly).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count activities: %w", err)
	}

	query := `
		SELECT id, sender_id, receiver_id, type, title, content, is_read, created_at
		FROM activities
		WHERE receiver_id = $1 AND ($2 = false OR is_read = false)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.QueryContext(ctx, query, receiverID, unreadOnly, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	var activities []*Activity
	for rows.Next() {
		a := &Activity{}
		if err := rows.Scan(&a.ID, &a.SenderID, &a.ReceiverID, &a.Type, &a.Title, &a.Content, &a.IsRead, &a.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan activity: %w", err)
		}
		activities = append(activities, a)
	}

	return activities, total, nil
}

// UnreadCount returns the number of unread activities for a user.
func (r *Repository) UnreadCount(ctx context.Context, receiverID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM activities WHERE receiver_id = $1 AND is_read = false`,
		receiverID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread activities: %w", err)
	}
	return count, nil
}

// MarkRead marks one activity read, scoped to its receiver.
func (r *Repository) MarkRead(ctx context.Context, id, receiverID int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE activities SET is_read = true WHERE id = $1 AND receiver_id = $2`,
		id, receiverID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark activity read: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkAllRead marks every activity of a user read.
func (r *Repository) MarkAllRead(ctx context.Context, receiverID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE activities SET is_read = true WHERE receiver_id = $1`,
		receiverID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark activities read: %w", err)
	}
	return nil
}
