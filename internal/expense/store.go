package expense

import "context"

// Store is the persistence surface of the mutation engine. The Postgres
// implementation lives in Repository; tests substitute an in-memory fake.
// Multi-row writes (InsertExpense, ApplyUpdate) are atomic: either every row
// lands or none does.
type Store interface {
	GetGroup(ctx context.Context, groupID int64) (*GroupRef, error)
	IsGroupMember(ctx context.Context, groupID, userID int64) (bool, error)
	// MembersByID resolves member ids within a group; absent ids are simply
	// missing from the result map.
	MembersByID(ctx context.Context, groupID int64, memberIDs []int64) (map[int64]*MemberRef, error)
	CategoryExists(ctx context.Context, categoryID int64) (bool, error)

	GetExpense(ctx context.Context, id int64) (*Expense, error)
	GetSplits(ctx context.Context, expenseID int64) ([]*Split, error)
	GetItems(ctx context.Context, expenseID int64) ([]*Item, error)
	ListByGroup(ctx context.Context, groupID int64, limit, offset int) ([]*Expense, int, error)

	// InsertExpense persists a new expense with its splits and items in one
	// transaction and returns the stored rows.
	InsertExpense(ctx context.Context, exp *Expense, splits []*Split, items []*Item) (*Detail, error)

	// ApplyUpdate persists field changes plus the reconciled splits and item
	// changes in one transaction. Splits are upserted on the
	// (expense, participant) unique key: existing rows are updated in place,
	// rows for new participants are inserted, and no split row is ever
	// deleted.
	ApplyUpdate(ctx context.Context, exp *Expense, splits []*Split, newItems []*Item, updatedItems []*Item, deleteItemIDs []int64) (*Detail, error)

	DeleteExpense(ctx context.Context, id int64) error
}
