package expense

import (
	"github.com/shopspring/decimal"

	"github.com/dotsapp/dots/pkg/money"
)

// ShareRequest is one participant entry of an equal or percentage split
// payload.
type ShareRequest struct {
	Participant int64            `json:"participant" validate:"required"`
	Percentage  *decimal.Decimal `json:"percentage,omitempty"`
	Included    bool             `json:"is_included"`
}

// ItemRequest is one new item of an itemized expense.
type ItemRequest struct {
	Title    string      `json:"title" validate:"required,min=1,max=100"`
	Amount   money.Money `json:"amount" validate:"required"`
	Assignee int64       `json:"assignee" validate:"required"`
}

// ItemUpdate patches an existing item by id.
type ItemUpdate struct {
	ID       int64        `json:"id" validate:"required"`
	Title    *string      `json:"title,omitempty"`
	Amount   *money.Money `json:"amount,omitempty"`
	Assignee *int64       `json:"assignee,omitempty"`
}

// CreateRequest represents the request to create an expense
type CreateRequest struct {
	GroupID    int64          `json:"group" validate:"required"`
	ClientID   *string        `json:"client_id,omitempty"`
	Title      string         `json:"title" validate:"required,min=1,max=100"`
	Amount     money.Money    `json:"amount" validate:"required"`
	PaidBy     int64          `json:"paid_by" validate:"required"`
	CategoryID *int64         `json:"category,omitempty"`
	Notes      *string        `json:"notes,omitempty"`
	SplitType  string         `json:"split_type" validate:"required,oneof=equal percentage itemized"`
	Splits     []ShareRequest `json:"splits,omitempty"`
	Items      []ItemRequest  `json:"items,omitempty"`
}

// UpdateRequest represents the request to update an expense. Nil fields are
// left untouched. Supplying Splits (equal/percentage) or any item change
// (itemized) forces a full recomputation of the expense's splits.
type UpdateRequest struct {
	Title      *string      `json:"title,omitempty"`
	Amount     *money.Money `json:"amount,omitempty"`
	PaidBy     *int64       `json:"paid_by,omitempty"`
	CategoryID *int64       `json:"category,omitempty"`
	Notes      *string      `json:"notes,omitempty"`

	Splits []ShareRequest `json:"splits,omitempty"`

	NewItems      []ItemRequest `json:"new_items,omitempty"`
	UpdateItems   []ItemUpdate  `json:"update_items,omitempty"`
	DeleteItemIDs []int64       `json:"delete_item_ids,omitempty"`
}

// hasItemChanges reports whether the update touches the item list.
func (r *UpdateRequest) hasItemChanges() bool {
	return len(r.NewItems) > 0 || len(r.UpdateItems) > 0 || len(r.DeleteItemIDs) > 0
}
