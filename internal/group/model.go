package group

import "time"

// Group represents a shared-expense group. ClientID is the optional
// client-supplied idempotency key used by the offline sync flow; it is
// unique when present.
type Group struct {
	ID          int64     `json:"id"`
	ClientID    *string   `json:"client_id,omitempty"`
	CreatedBy   int64     `json:"created_by"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Member is the billing identity of a user within a group: expenses always
// reference members, never raw users. The (group, user) pair is unique.
type Member struct {
	ID        int64     `json:"id"`
	GroupID   int64     `json:"group_id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`

	// Populated via JOIN
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
}
