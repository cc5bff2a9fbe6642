package sync

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/dotsapp/dots/internal/category"
	"github.com/dotsapp/dots/internal/database"
	"github.com/dotsapp/dots/internal/expense"
	"github.com/dotsapp/dots/internal/friend"
	"github.com/dotsapp/dots/internal/group"
)

// Repository is the Postgres implementation of Store. Entity upserts delegate
// to the owning feature repositories so the sync path and the online path
// share one SQL surface per entity.
type Repository struct {
	db         *sql.DB
	friends    *friend.Repository
	groups     *group.Repository
	categories *category.Repository
	expenses   *expense.Repository
}

// NewRepository creates a new sync repository
func NewRepository(db *sql.DB, friends *friend.Repository, groups *group.Repository, categories *category.Repository, expenses *expense.Repository) *Repository {
	return &Repository{db: db, friends: friends, groups: groups, categories: categories, expenses: expenses}
}

// FindBatch retrieves the batch record for (user, batch id), returning nil
// when absent.
func (r *Repository) FindBatch(ctx context.Context, userID int64, batchID string) (*BatchRecord, error) {
	query := `
		SELECT id, user_id, batch_id, friend_count, group_count, membership_count, expense_count,
		       friend_emails, group_client_ids, expense_client_ids, completed, processed_at
		FROM sync_batches
		WHERE user_id = $1 AND batch_id = $2
	`

	rec := &BatchRecord{}
	var friendEmails, groupClientIDs, expenseClientIDs pq.StringArray
	err := r.db.QueryRowContext(ctx, query, userID, batchID).Scan(
		&rec.ID, &rec.UserID, &rec.BatchID,
		&rec.FriendCount, &rec.GroupCount, &rec.MembershipCount, &rec.ExpenseCount,
		&friendEmails, &groupClientIDs, &expenseClientIDs,
		&rec.Completed, &rec.ProcessedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get batch record: %w", err)
	}

	rec.FriendEmails = friendEmails
	rec.GroupClientIDs = groupClientIDs
	rec.ExpenseClientIDs = expenseClientIDs
	return rec, nil
}

// RunInTx runs fn against a transactional view of the store.
func (r *Repository) RunInTx(ctx context.Context, fn func(tx TxStore) error) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&txStore{repo: r, tx: tx})
	})
}

// FriendsByEmails retrieves the user's friends matching the recorded emails.
func (r *Repository) FriendsByEmails(ctx context.Context, userID int64, emails []string) ([]*friend.Friend, error) {
	return r.friends.FindByEmails(ctx, userID, emails)
}

// GroupsByClientIDs retrieves groups by their recorded client keys.
func (r *Repository) GroupsByClientIDs(ctx context.Context, clientIDs []string) ([]*group.Group, error) {
	if len(clientIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, client_id, created_by, name, description, created_at
		FROM groups
		WHERE client_id = ANY($1)
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(clientIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []*group.Group
	for rows.Next() {
		g := &group.Group{}
		if err := rows.Scan(&g.ID, &g.ClientID, &g.CreatedBy, &g.Name, &g.Description, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}

	return groups, nil
}

// MembershipsInGroups retrieves every membership of the given groups.
func (r *Repository) MembershipsInGroups(ctx context.Context, groupIDs []int64) ([]*group.Member, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT gm.id, gm.group_id, gm.user_id, gm.created_at, u.email, u.full_name
		FROM group_members gm
		JOIN users u ON gm.user_id = u.id
		WHERE gm.group_id = ANY($1)
		ORDER BY gm.id
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(groupIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*group.Member
	for rows.Next() {
		m := &group.Member{}
		if err := rows.Scan(&m.ID, &m.GroupID, &m.UserID, &m.CreatedAt, &m.Email, &m.FullName); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}

	return members, nil
}

// ExpensesByClientIDs retrieves expenses by their recorded client keys.
func (r *Repository) ExpensesByClientIDs(ctx context.Context, clientIDs []string) ([]*expense.Expense, error) {
	if len(clientIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, group_id, client_id, title, amount, paid_by, category_id, notes, split_type, created_by, created_at, updated_at
		FROM expenses
		WHERE client_id = ANY($1)
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(clientIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []*expense.Expense
	for rows.Next() {
		e := &expense.Expense{}
		if err := rows.Scan(&e.ID, &e.GroupID, &e.ClientID, &e.Title, &e.Amount, &e.PaidBy, &e.CategoryID, &e.Notes, &e.SplitType, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}

	return expenses, nil
}

// txStore adapts one open transaction to the TxStore contract.
type txStore struct {
	repo *Repository
	tx   *sql.Tx
}

func (t *txStore) UpsertFriend(ctx context.Context, createdBy, memberID int64) (*friend.Friend, bool, error) {
	return t.repo.friends.Upsert(ctx, t.tx, createdBy, memberID)
}

func (t *txStore) UpsertGroup(ctx context.Context, clientID, name, description string, createdBy int64) (*group.Group, bool, error) {
	return t.repo.groups.UpsertByClientID(ctx, t.tx, clientID, name, description, createdBy)
}

func (t *txStore) UpsertMembership(ctx context.Context, groupID, userID int64) (*group.Member, bool, error) {
	return t.repo.groups.UpsertMemberTx(ctx, t.tx, groupID, userID)
}

// FindCategoryByName reads reference data; categories are never written by a
// batch, so the read runs outside the transaction.
func (t *txStore) FindCategoryByName(ctx context.Context, name string) (*category.Category, error) {
	return t.repo.categories.FindByName(ctx, name)
}

func (t *txStore) UpsertExpense(ctx context.Context, exp *expense.Expense, splits []*expense.Split, items []*expense.Item) (*expense.Expense, bool, error) {
	return t.repo.expenses.UpsertByClientID(ctx, t.tx, exp, splits, items)
}

// InsertBatchRecord writes the record guarding this batch against replays.
// The (user_id, batch_id) unique key turns a concurrent duplicate submission
// into ErrBatchAlreadyRecorded instead of a constraint violation.
func (t *txStore) InsertBatchRecord(ctx context.Context, rec *BatchRecord) error {
	query := `
		INSERT INTO sync_batches (user_id, batch_id, friend_count, group_count, membership_count, expense_count,
		                          friend_emails, group_client_ids, expense_client_ids, completed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, batch_id) DO NOTHING
		RETURNING id, processed_at
	`

	err := t.tx.QueryRowContext(ctx, query,
		rec.UserID, rec.BatchID,
		rec.FriendCount, rec.GroupCount, rec.MembershipCount, rec.ExpenseCount,
		pq.Array(rec.FriendEmails), pq.Array(rec.GroupClientIDs), pq.Array(rec.ExpenseClientIDs),
		rec.Completed,
	).Scan(&rec.ID, &rec.ProcessedAt)
	if err == sql.ErrNoRows {
		return ErrBatchAlreadyRecorded
	}
	if err != nil {
		return fmt.Errorf("failed to record batch: %w", err)
	}
	return nil
}
