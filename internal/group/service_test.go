package group

import (
	"context"
	"fmt"
	"testing"

	"github.com/dotsapp/dots/internal/activity"
	"github.com/dotsapp/dots/pkg/apperr"
)

// fakeGroupStore is an in-memory store for service tests.
type fakeGroupStore struct {
	groups  map[int64]*Group
	members map[string]*Member // "groupID/userID"
	users   map[int64]bool
	nextID  int64
}

func newFakeGroupStore() *fakeGroupStore {
	return &fakeGroupStore{
		groups:  map[int64]*Group{},
		members: map[string]*Member{},
		users:   map[int64]bool{1: true, 2: true, 3: true},
		nextID:  100,
	}
}

func (f *fakeGroupStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeGroupStore) CreateWithCreator(_ context.Context, creatorID int64, req *CreateGroupRequest) (*Group, *Member, error) {
	g := &Group{ID: f.id(), CreatedBy: creatorID, Name: req.Name, Description: req.Description}
	f.groups[g.ID] = g
	m := &Member{ID: f.id(), GroupID: g.ID, UserID: creatorID}
	f.members[fmt.Sprintf("%d/%d", g.ID, creatorID)] = m
	return g, m, nil
}

func (f *fakeGroupStore) GetByID(_ context.Context, id int64) (*Group, error) {
	return f.groups[id], nil
}

func (f *fakeGroupStore) IsMember(_ context.Context, groupID, userID int64) (bool, error) {
	return f.members[fmt.Sprintf("%d/%d", groupID, userID)] != nil, nil
}

func (f *fakeGroupStore) GetMembers(_ context.Context, groupID int64) ([]*Member, error) {
	var out []*Member
	for _, m := range f.members {
		if m.GroupID == groupID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeGroupStore) UserExists(_ context.Context, userID int64) (bool, error) {
	return f.users[userID], nil
}

func (f *fakeGroupStore) UpsertMember(_ context.Context, groupID, userID int64) (*Member, bool, error) {
	key := fmt.Sprintf("%d/%d", groupID, userID)
	if existing := f.members[key]; existing != nil {
		return existing, false, nil
	}
	m := &Member{ID: f.id(), GroupID: groupID, UserID: userID}
	f.members[key] = m
	return m, true, nil
}

func (f *fakeGroupStore) Delete(_ context.Context, id int64) error {
	delete(f.groups, id)
	return nil
}

type recordNotifier struct {
	events []activity.Event
}

func (n *recordNotifier) Notify(_ context.Context, ev activity.Event) {
	n.events = append(n.events, ev)
}

func newTestGroupService(t *testing.T) (*Service, *fakeGroupStore, *recordNotifier, *Group) {
	t.Helper()
	store := newFakeGroupStore()
	notifier := &recordNotifier{}
	svc := NewService(store, notifier)

	g, err := svc.Create(context.Background(), 1, &CreateGroupRequest{Name: "Trip"})
	if err != nil {
		t.Fatal(err)
	}
	return svc, store, notifier, g
}

func TestAddMember(t *testing.T) {
	svc, _, notifier, g := newTestGroupService(t)

	m, err := svc.AddMember(context.Background(), g.ID, 1, &AddMemberRequest{UserID: 2})
	if err != nil {
		t.Fatal(err)
	}
	if m.UserID != 2 || m.GroupID != g.ID {
		t.Errorf("member = %+v", m)
	}

	if len(notifier.events) != 1 {
		t.Fatalf("got %d events, want 1", len(notifier.events))
	}
	ev := notifier.events[0]
	if ev.Kind != activity.EventGroupAdded || len(ev.UserIDs) != 1 || ev.UserIDs[0] != 2 {
		t.Errorf("event = %+v", ev)
	}
}

func TestAddMemberIdempotent(t *testing.T) {
	svc, _, notifier, g := newTestGroupService(t)

	first, err := svc.AddMember(context.Background(), g.ID, 1, &AddMemberRequest{UserID: 2})
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.AddMember(context.Background(), g.ID, 1, &AddMemberRequest{UserID: 2})
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Errorf("re-add returned a different membership: %d vs %d", second.ID, first.ID)
	}

	// Only the first addition notifies.
	if len(notifier.events) != 1 {
		t.Errorf("got %d events, want 1", len(notifier.events))
	}
}

func TestAddMemberValidation(t *testing.T) {
	svc, _, _, g := newTestGroupService(t)

	tests := []struct {
		name     string
		groupID  int64
		actor    int64
		userID   int64
		wantKind apperr.Kind
	}{
		{
			name:     "unknown group",
			groupID:  9999,
			actor:    1,
			userID:   2,
			wantKind: apperr.KindNotFound,
		},
		{
			name:     "actor not a member",
			groupID:  g.ID,
			actor:    3,
			userID:   2,
			wantKind: apperr.KindPermissionDenied,
		},
		{
			name:     "unknown user",
			groupID:  g.ID,
			actor:    1,
			userID:   424242,
			wantKind: apperr.KindNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddMember(context.Background(), tt.groupID, tt.actor, &AddMemberRequest{UserID: tt.userID})
			if !apperr.IsKind(err, tt.wantKind) {
				t.Errorf("error = %v, want kind %v", err, tt.wantKind)
			}
		})
	}
}

func TestDeleteOnlyByGroupCreator(t *testing.T) {
	svc, store, _, g := newTestGroupService(t)

	if _, err := svc.AddMember(context.Background(), g.ID, 1, &AddMemberRequest{UserID: 2}); err != nil {
		t.Fatal(err)
	}

	if err := svc.Delete(context.Background(), g.ID, 2); !apperr.IsKind(err, apperr.KindPermissionDenied) {
		t.Errorf("delete by non-creator: error = %v, want permission denied", err)
	}
	if err := svc.Delete(context.Background(), g.ID, 1); err != nil {
		t.Fatal(err)
	}
	if store.groups[g.ID] != nil {
		t.Error("group survived deletion")
	}
}
