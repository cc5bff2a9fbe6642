package sync

import "time"

// BatchRecord marks one processed client batch. The (user, batch id) pair is
// unique, so a completed record is the replay sentinel: the recorded email
// and client-key sets are enough to re-materialize the batch's result without
// touching any entity.
type BatchRecord struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"user_id"`
	BatchID          string    `json:"batch_id"`
	FriendCount      int       `json:"friend_count"`
	GroupCount       int       `json:"group_count"`
	MembershipCount  int       `json:"membership_count"`
	ExpenseCount     int       `json:"expense_count"`
	FriendEmails     []string  `json:"-"`
	GroupClientIDs   []string  `json:"-"`
	ExpenseClientIDs []string  `json:"-"`
	Completed        bool      `json:"completed"`
	ProcessedAt      time.Time `json:"processed_at"`
}
