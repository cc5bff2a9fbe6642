package expense

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/dotsapp/dots/internal/database"
	"github.com/dotsapp/dots/pkg/money"
)

// Repository is the Postgres implementation of Store.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new expense repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetGroup retrieves the group reference, returning nil when absent.
func (r *Repository) GetGroup(ctx context.Context, groupID int64) (*GroupRef, error) {
	g := &GroupRef{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name FROM groups WHERE id = $1`, groupID,
	).Scan(&g.ID, &g.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return g, nil
}

// IsGroupMember reports whether the user belongs to the group.
func (r *Repository) IsGroupMember(ctx context.Context, groupID, userID int64) (bool, error) {
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

// MembersByID resolves member ids within a group. Ids that do not belong to
// the group are simply absent from the result map.
func (r *Repository) MembersByID(ctx context.Context, groupID int64, memberIDs []int64) (map[int64]*MemberRef, error) {
	members := make(map[int64]*MemberRef, len(memberIDs))
	if len(memberIDs) == 0 {
		return members, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, group_id, user_id FROM group_members WHERE group_id = $1 AND id = ANY($2)`,
		groupID, pq.Array(memberIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m := &MemberRef{}
		if err := rows.Scan(&m.ID, &m.GroupID, &m.UserID); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members[m.ID] = m
	}

	return members, nil
}

// CategoryExists reports whether a category with this id exists.
func (r *Repository) CategoryExists(ctx context.Context, categoryID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM categories WHERE id = $1)`, categoryID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check category: %w", err)
	}
	return exists, nil
}

// GetExpense retrieves an expense by ID, returning nil when absent.
func (r *Repository) GetExpense(ctx context.Context, id int64) (*Expense, error) {
	return getExpense(ctx, r.db, id)
}

// GetSplits retrieves the splits of an expense ordered by participant.
func (r *Repository) GetSplits(ctx context.Context, expenseID int64) ([]*Split, error) {
	return getSplits(ctx, r.db, expenseID)
}

// GetItems retrieves the items of an itemized expense.
func (r *Repository) GetItems(ctx context.Context, expenseID int64) ([]*Item, error) {
	return getItems(ctx, r.db, expenseID)
}

// ListByGroup retrieves a page of a group's expenses, newest first, with the
// total count.
func (r *Repository) ListByGroup(ctx context.Context, groupID int64, limit, offset int) ([]*Expense, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM expenses WHERE group_id = $1`, groupID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count expenses: %w", err)
	}

	query := `
		SELECT id, group_id, client_id, title, amount, paid_by, category_id, notes, split_type, created_by, created_at, updated_at
		FROM expenses
		WHERE group_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, groupID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []*Expense
	for rows.Next() {
		e := &Expense{}
		if err := scanExpense(rows, e); err != nil {
			return nil, 0, err
		}
		expenses = append(expenses, e)
	}

	return expenses, total, nil
}

// InsertExpense persists a new expense with its splits and items in one
// transaction.
func (r *Repository) InsertExpense(ctx context.Context, exp *Expense, splits []*Split, items []*Item) (*Detail, error) {
	var detail *Detail
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		detail, err = insertExpenseTx(ctx, tx, exp, splits, items)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// InsertExpenseTx is InsertExpense running on the caller's transaction.
func (r *Repository) InsertExpenseTx(ctx context.Context, q database.Queryer, exp *Expense, splits []*Split, items []*Item) (*Detail, error) {
	return insertExpenseTx(ctx, q, exp, splits, items)
}

// UpsertByClientID finds or creates an expense by its client idempotency key,
// backed by the unique client_id constraint. Splits and items are only
// materialized on first creation; replays return the existing row untouched.
// The bool result reports first creation.
func (r *Repository) UpsertByClientID(ctx context.Context, q database.Queryer, exp *Expense, splits []*Split, items []*Item) (*Expense, bool, error) {
	query := `
		INSERT INTO expenses (group_id, client_id, title, amount, paid_by, category_id, notes, split_type, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (client_id) DO NOTHING
		RETURNING id, created_at, updated_at
	`

	err := q.QueryRowContext(ctx, query,
		exp.GroupID, exp.ClientID, exp.Title, exp.Amount, exp.PaidBy, exp.CategoryID, exp.Notes, exp.SplitType, exp.CreatedBy,
	).Scan(&exp.ID, &exp.CreatedAt, &exp.UpdatedAt)
	if err == nil {
		for _, sp := range splits {
			if err := upsertSplit(ctx, q, exp.ID, sp); err != nil {
				return nil, false, err
			}
		}
		for _, it := range items {
			if err := insertItem(ctx, q, exp.ID, it); err != nil {
				return nil, false, err
			}
		}
		return exp, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("failed to create expense: %w", err)
	}

	existing, err := r.FindByClientID(ctx, q, *exp.ClientID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("expense vanished after conflict on client id %q", *exp.ClientID)
	}
	return existing, false, nil
}

// FindByClientID retrieves an expense by its client idempotency key on the
// caller's transaction, returning nil when absent.
func (r *Repository) FindByClientID(ctx context.Context, q database.Queryer, clientID string) (*Expense, error) {
	e := &Expense{}
	err := q.QueryRowContext(ctx,
		`SELECT id, group_id, client_id, title, amount, paid_by, category_id, notes, split_type, created_by, created_at, updated_at
		 FROM expenses WHERE client_id = $1`,
		clientID,
	).Scan(&e.ID, &e.GroupID, &e.ClientID, &e.Title, &e.Amount, &e.PaidBy, &e.CategoryID, &e.Notes, &e.SplitType, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get expense by client id: %w", err)
	}
	return e, nil
}

// ApplyUpdate persists field changes plus the reconciled splits and item
// changes in one transaction. Splits are upserted on their unique
// (expense, participant) key; no split row is ever deleted.
func (r *Repository) ApplyUpdate(ctx context.Context, exp *Expense, splits []*Split, newItems []*Item, updatedItems []*Item, deleteItemIDs []int64) (*Detail, error) {
	var detail *Detail
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `
			UPDATE expenses
			SET title = $1, amount = $2, paid_by = $3, category_id = $4, notes = $5, updated_at = NOW()
			WHERE id = $6
		`
		if _, err := tx.ExecContext(ctx, query, exp.Title, exp.Amount, exp.PaidBy, exp.CategoryID, exp.Notes, exp.ID); err != nil {
			return fmt.Errorf("failed to update expense: %w", err)
		}

		for _, sp := range splits {
			if err := upsertSplit(ctx, tx, exp.ID, sp); err != nil {
				return err
			}
		}

		for _, id := range deleteItemIDs {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM expense_items WHERE id = $1 AND expense_id = $2`, id, exp.ID,
			); err != nil {
				return fmt.Errorf("failed to delete item: %w", err)
			}
		}
		for _, it := range updatedItems {
			if _, err := tx.ExecContext(ctx,
				`UPDATE expense_items SET title = $1, amount = $2, assignee_id = $3 WHERE id = $4 AND expense_id = $5`,
				it.Title, it.Amount, it.AssigneeID, it.ID, exp.ID,
			); err != nil {
				return fmt.Errorf("failed to update item: %w", err)
			}
		}
		for _, it := range newItems {
			if err := insertItem(ctx, tx, exp.ID, it); err != nil {
				return err
			}
		}

		var err error
		detail, err = getDetail(ctx, tx, exp.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// DeleteExpense removes an expense; splits and items cascade.
func (r *Repository) DeleteExpense(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("expense not found")
	}

	return nil
}

func insertExpenseTx(ctx context.Context, q database.Queryer, exp *Expense, splits []*Split, items []*Item) (*Detail, error) {
	query := `
		INSERT INTO expenses (group_id, client_id, title, amount, paid_by, category_id, notes, split_type, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	err := q.QueryRowContext(ctx, query,
		exp.GroupID, exp.ClientID, exp.Title, exp.Amount, exp.PaidBy, exp.CategoryID, exp.Notes, exp.SplitType, exp.CreatedBy,
	).Scan(&exp.ID, &exp.CreatedAt, &exp.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create expense: %w", err)
	}

	for _, sp := range splits {
		if err := upsertSplit(ctx, q, exp.ID, sp); err != nil {
			return nil, err
		}
	}
	for _, it := range items {
		if err := insertItem(ctx, q, exp.ID, it); err != nil {
			return nil, err
		}
	}

	return getDetail(ctx, q, exp.ID)
}

func upsertSplit(ctx context.Context, q database.Queryer, expenseID int64, sp *Split) error {
	query := `
		INSERT INTO expense_splits (expense_id, participant_id, amount, percentage, is_included)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (expense_id, participant_id) DO UPDATE
		SET amount = EXCLUDED.amount,
		    percentage = EXCLUDED.percentage,
		    is_included = EXCLUDED.is_included,
		    updated_at = NOW()
	`
	if _, err := q.ExecContext(ctx, query, expenseID, sp.ParticipantID, nullMoney(sp.Amount), nullDecimal(sp.Percentage), sp.Included); err != nil {
		return fmt.Errorf("failed to upsert split: %w", err)
	}
	return nil
}

// nullMoney renders an optional amount as a nullable SQL value.
func nullMoney(m *money.Money) interface{} {
	if m == nil {
		return nil
	}
	return *m
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func insertItem(ctx context.Context, q database.Queryer, expenseID int64, it *Item) error {
	err := q.QueryRowContext(ctx,
		`INSERT INTO expense_items (expense_id, title, amount, assignee_id) VALUES ($1, $2, $3, $4) RETURNING id`,
		expenseID, it.Title, it.Amount, it.AssigneeID,
	).Scan(&it.ID)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	it.ExpenseID = expenseID
	return nil
}

func getExpense(ctx context.Context, q database.Queryer, id int64) (*Expense, error) {
	e := &Expense{}
	err := q.QueryRowContext(ctx,
		`SELECT id, group_id, client_id, title, amount, paid_by, category_id, notes, split_type, created_by, created_at, updated_at
		 FROM expenses WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.GroupID, &e.ClientID, &e.Title, &e.Amount, &e.PaidBy, &e.CategoryID, &e.Notes, &e.SplitType, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return e, nil
}

func getSplits(ctx context.Context, q database.Queryer, expenseID int64) ([]*Split, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, expense_id, participant_id, amount, percentage, is_included, updated_at
		 FROM expense_splits WHERE expense_id = $1 ORDER BY participant_id`,
		expenseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get splits: %w", err)
	}
	defer rows.Close()

	var splits []*Split
	for rows.Next() {
		sp := &Split{}
		var amount sql.NullString
		var pct decimal.NullDecimal
		if err := rows.Scan(&sp.ID, &sp.ExpenseID, &sp.ParticipantID, &amount, &pct, &sp.Included, &sp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan split: %w", err)
		}
		if amount.Valid {
			m, err := money.FromString(amount.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse split amount: %w", err)
			}
			sp.Amount = &m
		}
		if pct.Valid {
			p := pct.Decimal
			sp.Percentage = &p
		}
		splits = append(splits, sp)
	}

	return splits, nil
}

func getItems(ctx context.Context, q database.Queryer, expenseID int64) ([]*Item, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, expense_id, title, amount, assignee_id
		 FROM expense_items WHERE expense_id = $1 ORDER BY id`,
		expenseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		it := &Item{}
		if err := rows.Scan(&it.ID, &it.ExpenseID, &it.Title, &it.Amount, &it.AssigneeID); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, it)
	}

	return items, nil
}

func getDetail(ctx context.Context, q database.Queryer, expenseID int64) (*Detail, error) {
	exp, err := getExpense(ctx, q, expenseID)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return nil, fmt.Errorf("expense not found after write")
	}

	splits, err := getSplits(ctx, q, expenseID)
	if err != nil {
		return nil, err
	}
	items, err := getItems(ctx, q, expenseID)
	if err != nil {
		return nil, err
	}

	return &Detail{Expense: exp, Splits: splits, Items: items}, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExpense(rows rowScanner, e *Expense) error {
	if err := rows.Scan(&e.ID, &e.GroupID, &e.ClientID, &e.Title, &e.Amount, &e.PaidBy, &e.CategoryID, &e.Notes, &e.SplitType, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return fmt.Errorf("failed to scan expense: %w", err)
	}
	return nil
}
