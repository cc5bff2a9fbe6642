package group

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dotsapp/dots/internal/database"
)

// Repository handles group and membership data persistence
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new group repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateWithCreator inserts a group and the creator's membership in one
// transaction. The creator is always a member of their own group.
func (r *Repository) CreateWithCreator(ctx context.Context, creatorID int64, req *CreateGroupRequest) (*Group, *Member, error) {
	var g *Group
	var m *Member

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		g, err = insertGroup(ctx, tx, nil, creatorID, req.Name, req.Description)
		if err != nil {
			return err
		}
		m, _, err = upsertMember(ctx, tx, g.ID, creatorID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	return g, m, nil
}

// GetByID retrieves a group by ID, returning nil when absent.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Group, error) {
	query := `
		SELECT id, client_id, created_by, name, description, created_at
		FROM groups
		WHERE id = $1
	`

	g := &Group{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&g.ID,
		&g.ClientID,
		&g.CreatedBy,
		&g.Name,
		&g.Description,
		&g.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	return g, nil
}

// IsMember reports whether the user belongs to the group.
func (r *Repository) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)`,
		groupID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

// UserExists reports whether a user account with the given id exists.
func (r *Repository) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`,
		userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return exists, nil
}

// GetMembers retrieves all members of a group.
func (r *Repository) GetMembers(ctx context.Context, groupID int64) ([]*Member, error) {
	query := `
		SELECT gm.id, gm.group_id, gm.user_id, gm.created_at, u.email, u.full_name
		FROM group_members gm
		JOIN users u ON gm.user_id = u.id
		WHERE gm.group_id = $1
		ORDER BY gm.id
	`

	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		m := &Member{}
		if err := rows.Scan(&m.ID, &m.GroupID, &m.UserID, &m.CreatedAt, &m.Email, &m.FullName); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}

	return members, nil
}

// UpsertMember finds or creates the (group, user) membership, backed by its
// unique constraint. The bool result reports first creation.
func (r *Repository) UpsertMember(ctx context.Context, groupID, userID int64) (*Member, bool, error) {
	return upsertMember(ctx, r.db, groupID, userID)
}

// UpsertMemberTx is UpsertMember running on the caller's transaction.
func (r *Repository) UpsertMemberTx(ctx context.Context, q database.Queryer, groupID, userID int64) (*Member, bool, error) {
	return upsertMember(ctx, q, groupID, userID)
}

// UpsertByClientID finds or creates a group by its client idempotency key,
// backed by the unique client_id constraint. Name, description and owner are
// only applied on first creation; replays keep the existing row untouched.
func (r *Repository) UpsertByClientID(ctx context.Context, q database.Queryer, clientID, name, description string, createdBy int64) (*Group, bool, error) {
	query := `
		INSERT INTO groups (client_id, created_by, name, description)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (client_id) DO NOTHING
		RETURNING id, client_id, created_by, name, description, created_at
	`

	g := &Group{}
	err := q.QueryRowContext(ctx, query, clientID, createdBy, name, description).Scan(
		&g.ID, &g.ClientID, &g.CreatedBy, &g.Name, &g.Description, &g.CreatedAt,
	)
	if err == nil {
		return g, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("failed to create group: %w", err)
	}

	err = q.QueryRowContext(ctx,
		`SELECT id, client_id, created_by, name, description, created_at FROM groups WHERE client_id = $1`,
		clientID,
	).Scan(&g.ID, &g.ClientID, &g.CreatedBy, &g.Name, &g.Description, &g.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get group by client id: %w", err)
	}

	return g, false, nil
}

// Delete removes a group; memberships, expenses, splits and items cascade.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("group not found")
	}

	return nil
}

// insertGroup inserts a group row, optionally carrying a client idempotency key.
func insertGroup(ctx context.Context, q database.Queryer, clientID *string, createdBy int64, name, description string) (*Group, error) {
	query := `
		INSERT INTO groups (client_id, created_by, name, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id, client_id, created_by, name, description, created_at
	`

	g := &Group{}
	err := q.QueryRowContext(ctx, query, clientID, createdBy, name, description).Scan(
		&g.ID, &g.ClientID, &g.CreatedBy, &g.Name, &g.Description, &g.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	return g, nil
}

func upsertMember(ctx context.Context, q database.Queryer, groupID, userID int64) (*Member, bool, error) {
	query := `
		INSERT INTO group_members (group_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (group_id, user_id) DO NOTHING
		RETURNING id, group_id, user_id, created_at
	`

	m := &Member{}
	err := q.QueryRowContext(ctx, query, groupID, userID).Scan(
		&m.ID, &m.GroupID, &m.UserID, &m.CreatedAt,
	)
	if err == nil {
		return m, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("failed to add member: %w", err)
	}

	err = q.QueryRowContext(ctx,
		`SELECT id, group_id, user_id, created_at FROM group_members WHERE group_id = $1 AND user_id = $2`,
		groupID, userID,
	).Scan(&m.ID, &m.GroupID, &m.UserID, &m.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get member: %w", err)
	}

	return m, false, nil
}
