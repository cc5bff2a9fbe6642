package sync

import (
	"github.com/shopspring/decimal"

	"github.com/dotsapp/dots/internal/expense"
	"github.com/dotsapp/dots/internal/friend"
	"github.com/dotsapp/dots/internal/group"
	"github.com/dotsapp/dots/pkg/money"
)

// BatchRequest is one offline batch uploaded by a client. Groups and expenses
// carry client-chosen idempotency keys; memberships and expenses reference
// groups by those keys, which must appear in the same batch.
type BatchRequest struct {
	BatchID     string            `json:"batch_id" validate:"required"`
	Friends     []FriendEntry     `json:"friends,omitempty"`
	Groups      []GroupEntry      `json:"groups,omitempty"`
	Memberships []MembershipEntry `json:"group_members,omitempty"`
	Expenses    []ExpenseEntry    `json:"expenses,omitempty"`
}

// FriendEntry invites one counterpart by email.
type FriendEntry struct {
	Email string `json:"email" validate:"required,email"`
}

// GroupEntry creates a group under a client idempotency key.
type GroupEntry struct {
	ClientID    string `json:"client_id" validate:"required"`
	Name        string `json:"name" validate:"required,min=1,max=100"`
	Description string `json:"description,omitempty"`
}

// MembershipEntry adds a member, by email, to a group created in this batch.
type MembershipEntry struct {
	GroupClientID string `json:"group_client_id" validate:"required"`
	MemberEmail   string `json:"member_email" validate:"required,email"`
}

// ParticipantEntry is one share of an equal or percentage synced expense,
// addressed by email since the client may not know server member ids.
type ParticipantEntry struct {
	Email      string           `json:"email" validate:"required,email"`
	Percentage *decimal.Decimal `json:"percentage,omitempty"`
	Included   bool             `json:"is_included"`
}

// ItemEntry is one line of an itemized synced expense.
type ItemEntry struct {
	Title         string      `json:"title" validate:"required"`
	Amount        money.Money `json:"amount" validate:"required"`
	AssigneeEmail string      `json:"assignee_email" validate:"required,email"`
}

// ExpenseEntry creates an expense under a client idempotency key inside a
// group created in the same batch.
type ExpenseEntry struct {
	ClientID      string             `json:"client_id" validate:"required"`
	GroupClientID string             `json:"group_client_id" validate:"required"`
	Title         string             `json:"title" validate:"required,min=1,max=100"`
	Amount        money.Money        `json:"amount" validate:"required"`
	PaidByEmail   string             `json:"paid_by_email" validate:"required,email"`
	Category      *string            `json:"category,omitempty"`
	Notes         *string            `json:"notes,omitempty"`
	SplitType     string             `json:"split_type" validate:"required,oneof=equal percentage itemized"`
	Participants  []ParticipantEntry `json:"participants,omitempty"`
	Items         []ItemEntry        `json:"items,omitempty"`
}

// BatchResult is what one batch materialized: the friends, groups and
// expenses this batch created, plus every membership it touched. A replayed
// batch returns the same sets re-fetched from the original run's record.
type BatchResult struct {
	Replayed    bool               `json:"replayed"`
	Friends     []*friend.Friend   `json:"friends"`
	Groups      []*group.Group     `json:"groups"`
	Memberships []*group.Member    `json:"group_members"`
	Expenses    []*expense.Expense `json:"expenses"`
}
