package group

import (
	"context"
	"strings"

	"github.com/dotsapp/dots/internal/activity"
	"github.com/dotsapp/dots/pkg/apperr"
)

// store is the persistence surface the service needs; satisfied by *Repository.
type store interface {
	CreateWithCreator(ctx context.Context, creatorID int64, req *CreateGroupRequest) (*Group, *Member, error)
	GetByID(ctx context.Context, id int64) (*Group, error)
	IsMember(ctx context.Context, groupID, userID int64) (bool, error)
	GetMembers(ctx context.Context, groupID int64) ([]*Member, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
	UpsertMember(ctx context.Context, groupID, userID int64) (*Member, bool, error)
	Delete(ctx context.Context, id int64) error
}

// Service handles group business logic
type Service struct {
	store    store
	notifier activity.Notifier
}

// NewService creates a new group service with dependencies injected
func NewService(store store, notifier activity.Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

// Create creates a group; the creator automatically becomes a member.
func (s *Service) Create(ctx context.Context, creatorID int64, req *CreateGroupRequest) (*Group, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperr.Validation("name", "group name is required")
	}

	g, _, err := s.store.CreateWithCreator(ctx, creatorID, req)
	return g, err
}

// GetByID retrieves a group the acting user belongs to.
func (s *Service) GetByID(ctx context.Context, id, actorID int64) (*Group, error) {
	g, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, apperr.NotFound("group", "group not found")
	}

	isMember, err := s.store.IsMember(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, apperr.PermissionDenied("you must be a member of this group")
	}

	return g, nil
}

// GetMembers retrieves all members of a group the acting user belongs to.
func (s *Service) GetMembers(ctx context.Context, groupID, actorID int64) ([]*Member, error) {
	if _, err := s.GetByID(ctx, groupID, actorID); err != nil {
		return nil, err
	}
	return s.store.GetMembers(ctx, groupID)
}

// AddMember adds a user to a group. The operation is idempotent: adding an
// existing member returns the existing membership. Only first creation
// notifies the added user.
func (s *Service) AddMember(ctx context.Context, groupID, actorID int64, req *AddMemberRequest) (*Member, error) {
	g, err := s.store.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, apperr.NotFound("group", "group not found")
	}

	isMember, err := s.store.IsMember(ctx, groupID, actorID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, apperr.PermissionDenied("you must be a member of this group")
	}

	// Resolve the target before the membership insert so an unknown id is a
	// not-found response instead of a foreign key violation.
	exists, err := s.store.UserExists(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.NotFound("user", "user not found")
	}

	member, created, err := s.store.UpsertMember(ctx, groupID, req.UserID)
	if err != nil {
		return nil, err
	}

	if created {
		s.notifier.Notify(ctx, activity.Event{
			Kind:      activity.EventGroupAdded,
			ActorID:   actorID,
			GroupID:   groupID,
			GroupName: g.Name,
			UserIDs:   []int64{req.UserID},
		})
	}

	return member, nil
}

// Delete removes a group and everything in it. Only the creator may delete.
func (s *Service) Delete(ctx context.Context, groupID, actorID int64) error {
	g, err := s.store.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if g == nil {
		return apperr.NotFound("group", "group not found")
	}
	if g.CreatedBy != actorID {
		return apperr.PermissionDenied("only the group creator can delete the group")
	}

	return s.store.Delete(ctx, groupID)
}
