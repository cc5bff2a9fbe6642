package sync

import (
	"context"
	"errors"

	"github.com/dotsapp/dots/internal/category"
	"github.com/dotsapp/dots/internal/expense"
	"github.com/dotsapp/dots/internal/friend"
	"github.com/dotsapp/dots/internal/group"
)

// ErrBatchAlreadyRecorded reports that another submission of the same
// (user, batch id) pair recorded the batch first. The loser of that race must
// treat the batch as already applied and serve the winner's result.
var ErrBatchAlreadyRecorded = errors.New("batch already recorded")

// Store is the persistence surface of the batch reconciler. All batch writes
// happen through RunInTx so either the whole batch commits or none of it
// does; the remaining readers serve replay resolution.
type Store interface {
	// FindBatch retrieves the batch record for (user, batch id), returning
	// nil when the batch has never been processed.
	FindBatch(ctx context.Context, userID int64, batchID string) (*BatchRecord, error)

	// RunInTx runs fn against a transactional view of the store, committing
	// on success and rolling back on error.
	RunInTx(ctx context.Context, fn func(tx TxStore) error) error

	FriendsByEmails(ctx context.Context, userID int64, emails []string) ([]*friend.Friend, error)
	GroupsByClientIDs(ctx context.Context, clientIDs []string) ([]*group.Group, error)
	MembershipsInGroups(ctx context.Context, groupIDs []int64) ([]*group.Member, error)
	ExpensesByClientIDs(ctx context.Context, clientIDs []string) ([]*expense.Expense, error)
}

// TxStore is the transactional slice of Store handed to the batch processing
// callback. Every get-or-create is a constraint-backed upsert; the bool
// results report first creation.
type TxStore interface {
	UpsertFriend(ctx context.Context, createdBy, memberID int64) (*friend.Friend, bool, error)
	UpsertGroup(ctx context.Context, clientID, name, description string, createdBy int64) (*group.Group, bool, error)
	UpsertMembership(ctx context.Context, groupID, userID int64) (*group.Member, bool, error)
	FindCategoryByName(ctx context.Context, name string) (*category.Category, error)
	UpsertExpense(ctx context.Context, exp *expense.Expense, splits []*expense.Split, items []*expense.Item) (*expense.Expense, bool, error)
	InsertBatchRecord(ctx context.Context, rec *BatchRecord) error
}
