package activity

import "time"

// Type classifies an activity entry
type Type string

const (
	TypeExpenseCreate Type = "expense_create"
	TypeExpenseUpdate Type = "expense_update"
	TypeGroupAdd      Type = "group_add"
)

// Activity is a user-visible feed entry produced when an expense or
// membership changes.
type Activity struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"sender"`
	ReceiverID int64     `json:"receiver"`
	Type       Type      `json:"type"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	IsRead     bool      `json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
}
