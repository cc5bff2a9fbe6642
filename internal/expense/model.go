package expense

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dotsapp/dots/internal/expense/split"
	"github.com/dotsapp/dots/pkg/money"
)

// Expense represents a shared expense within a group. ClientID is the
// optional client-supplied idempotency key used by the offline sync flow;
// unique when present.
type Expense struct {
	ID         int64       `json:"id"`
	GroupID    int64       `json:"group"`
	ClientID   *string     `json:"client_id,omitempty"`
	Title      string      `json:"title"`
	Amount     money.Money `json:"amount"`
	PaidBy     int64       `json:"paid_by"` // group member id
	CategoryID *int64      `json:"category,omitempty"`
	Notes      *string     `json:"notes,omitempty"`
	SplitType  split.Type  `json:"split_type"`
	CreatedBy  int64       `json:"created_by"` // user id
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Split is the obligation of one group member for one expense. The
// (expense, participant) pair is unique; a split row survives the
// participant's exclusion so the historical linkage is never lost.
type Split struct {
	ID            int64            `json:"id"`
	ExpenseID     int64            `json:"expense_id"`
	ParticipantID int64            `json:"participant"` // group member id
	Amount        *money.Money     `json:"amount"`
	Percentage    *decimal.Decimal `json:"percentage,omitempty"`
	Included      bool             `json:"is_included"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Item is a single line of an itemized expense. Multiple items may share an
// assignee; the assignee's split amount is the sum of their items.
type Item struct {
	ID         int64       `json:"id"`
	ExpenseID  int64       `json:"expense_id"`
	Title      string      `json:"title"`
	Amount     money.Money `json:"amount"`
	AssigneeID int64       `json:"assignee"` // group member id
}

// Detail combines an expense with its splits and, for itemized expenses,
// its items.
type Detail struct {
	Expense *Expense `json:"expense"`
	Splits  []*Split `json:"splits"`
	Items   []*Item  `json:"items,omitempty"`
}

// MemberRef identifies a group member and the user behind it, as much as the
// engine needs for validation and notification fan-out.
type MemberRef struct {
	ID      int64
	GroupID int64
	UserID  int64
}

// GroupRef carries the group fields the engine needs.
type GroupRef struct {
	ID   int64
	Name string
}
