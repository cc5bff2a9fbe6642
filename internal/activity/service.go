package activity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dotsapp/dots/pkg/metrics"
)

// Common errors
var (
	ErrActivityNotFound = errors.New("activity not found")
)

// store is the persistence surface the service needs; satisfied by *Repository.
type store interface {
	CreateBatch(ctx context.Context, activities []*Activity) error
	ListByReceiver(ctx context.Context, receiverID int64, limit, offset int, unreadOnly bool) ([]*Activity, int, error)
	UnreadCount(ctx context.Context, receiverID int64) (int, error)
	MarkRead(ctx context.Context, id, receiverID int64) error
	MarkAllRead(ctx context.Context, receiverID int64) error
}

// Service persists activity rows and fans them out. It implements Notifier.
type Service struct {
	store store
}

// NewService creates a new activity service
func NewService(store store) *Service {
	return &Service{store: store}
}

// Notify builds one activity row per affected user and persists them.
// Failures are logged and counted, never returned: the mutation that produced
// the event has already committed.
func (s *Service) Notify(ctx context.Context, ev Event) {
	activities := buildActivities(ev)
	if len(activities) == 0 {
		return
	}

	if err := s.store.CreateBatch(ctx, activities); err != nil {
		metrics.NotificationFailures.Inc()
		slog.Error("activity fan-out failed",
			"kind", string(ev.Kind),
			"group_id", ev.GroupID,
			"expense_id", ev.ExpenseID,
			"err", err,
		)
	}
}

func buildActivities(ev Event) []*Activity {
	var activities []*Activity

	switch ev.Kind {
	case EventExpenseCreated:
		for userID, amount := range ev.Shares {
			activities = append(activities, &Activity{
				SenderID:   ev.ActorID,
				ReceiverID: userID,
				Type:       TypeExpenseCreate,
				Title:      "New Expense Added",
				Content: fmt.Sprintf("New expense added in the group '%s', '%s'. Your share is $%s.",
					ev.GroupName, ev.Title, amount),
			})
		}
	case EventExpenseUpdated:
		for userID, amount := range ev.Shares {
			activities = append(activities, &Activity{
				SenderID:   ev.ActorID,
				ReceiverID: userID,
				Type:       TypeExpenseUpdate,
				Title:      "Expense Updated",
				Content: fmt.Sprintf("Expense updated in the group '%s', '%s'. Your share has changed to $%s.",
					ev.GroupName, ev.Title, amount),
			})
		}
	case EventGroupAdded:
		for _, userID := range ev.UserIDs {
			activities = append(activities, &Activity{
				SenderID:   ev.ActorID,
				ReceiverID: userID,
				Type:       TypeGroupAdd,
				Title:      "Added to Group",
				Content:    fmt.Sprintf("You have been added to the group '%s'.", ev.GroupName),
			})
		}
	}

	return activities
}

// ListByReceiver retrieves activities for a user
func (s *Service) ListByReceiver(ctx context.Context, receiverID int64, page, perPage int, unreadOnly bool) ([]*Activity, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	offset := (page - 1) * perPage
	return s.store.ListByReceiver(ctx, receiverID, perPage, offset, unreadOnly)
}

// UnreadCount returns the number of unread activities for a user
func (s *Service) UnreadCount(ctx context.Context, receiverID int64) (int, error) {
	return s.store.UnreadCount(ctx, receiverID)
}

// MarkRead marks a single activity as read
func (s *Service) MarkRead(ctx context.Context, id, receiverID int64) error {
	err := s.store.MarkRead(ctx, id, receiverID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrActivityNotFound
	}
	return err
}

// MarkAllRead marks all activities of a user as read
func (s *Service) MarkAllRead(ctx context.Context, receiverID int64) error {
	return s.store.MarkAllRead(ctx, receiverID)
}
