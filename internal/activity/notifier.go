package activity

import (
	"context"

	"github.com/dotsapp/dots/pkg/money"
)

// EventKind tags what happened to the entity behind an event.
type EventKind string

const (
	EventExpenseCreated EventKind = "created"
	EventExpenseUpdated EventKind = "updated"
	EventGroupAdded     EventKind = "group_added"
)

// Event carries everything the notifier needs, built once at the point of
// origin so downstream code never branches on entity shapes.
type Event struct {
	Kind      EventKind
	ActorID   int64
	GroupID   int64
	GroupName string
	ExpenseID int64  // zero for group events
	Title     string // expense title for expense events

	// Shares maps receiver user IDs to their owed amount; expense events only.
	Shares map[int64]money.Money
	// UserIDs lists receivers without amounts; group events only.
	UserIDs []int64
}

// Notifier fans an event out to the affected users. Dispatch is best-effort:
// implementations log failures and never surface them to the caller, so a
// failed notification cannot fail the mutation that produced it.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}
