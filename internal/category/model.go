package category

import "time"

// Category labels an expense, e.g. "Groceries" or "Travel".
type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
