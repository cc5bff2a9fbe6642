package user

import "time"

// User represents an account in the system. Accounts may be created eagerly
// from an email address when a friend or group member is referenced before
// the person ever signs in.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
}
