package friend

import "time"

// Friend is a directed friendship edge from the user who added the friend to
// the account that was added. The (created_by, member) pair is unique.
type Friend struct {
	ID        int64     `json:"id"`
	CreatedBy int64     `json:"created_by"`
	MemberID  int64     `json:"member"`
	CreatedAt time.Time `json:"created_at"`

	// Populated via JOIN
	MemberEmail string `json:"member_email,omitempty"`
}
