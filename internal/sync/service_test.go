package sync

import (
	"context"
	"fmt"
	"testing"

	"github.com/dotsapp/dots/internal/activity"
	"github.com/dotsapp/dots/internal/category"
	"github.com/dotsapp/dots/internal/expense"
	"github.com/dotsapp/dots/internal/expense/split"
	"github.com/dotsapp/dots/internal/friend"
	"github.com/dotsapp/dots/internal/group"
	"github.com/dotsapp/dots/internal/user"
	"github.com/dotsapp/dots/pkg/apperr"
	"github.com/dotsapp/dots/pkg/money"
)

// fakeState is the mutable entity state behind the fake store, kept copyable
// so the fake can roll a failed transaction back.
type fakeState struct {
	friends     map[string]*friend.Friend // "createdBy/memberID"
	groups      map[string]*group.Group   // by client id
	memberships map[string]*group.Member  // "groupID/userID"
	expenses    map[string]*expense.Expense
	splits      map[int64][]*expense.Split
	items       map[int64][]*expense.Item
	batches     map[string]*BatchRecord // "userID/batchID"
	nextID      int64
}

func (s *fakeState) clone() *fakeState {
	copied := &fakeState{
		friends:     map[string]*friend.Friend{},
		groups:      map[string]*group.Group{},
		memberships: map[string]*group.Member{},
		expenses:    map[string]*expense.Expense{},
		splits:      map[int64][]*expense.Split{},
		items:       map[int64][]*expense.Item{},
		batches:     map[string]*BatchRecord{},
		nextID:      s.nextID,
	}
	for k, v := range s.friends {
		copied.friends[k] = v
	}
	for k, v := range s.groups {
		copied.groups[k] = v
	}
	for k, v := range s.memberships {
		copied.memberships[k] = v
	}
	for k, v := range s.expenses {
		copied.expenses[k] = v
	}
	for k, v := range s.splits {
		copied.splits[k] = v
	}
	for k, v := range s.items {
		copied.items[k] = v
	}
	for k, v := range s.batches {
		copied.batches[k] = v
	}
	return copied
}

type fakeSyncStore struct {
	state      *fakeState
	categories map[string]*category.Category
}

func newFakeSyncStore() *fakeSyncStore {
	return &fakeSyncStore{
		state: &fakeState{
			friends:     map[string]*friend.Friend{},
			groups:      map[string]*group.Group{},
			memberships: map[string]*group.Member{},
			expenses:    map[string]*expense.Expense{},
			splits:      map[int64][]*expense.Split{},
			items:       map[int64][]*expense.Item{},
			batches:     map[string]*BatchRecord{},
			nextID:      1,
		},
		categories: map[string]*category.Category{
			"food": {ID: 1, Name: "Food"},
		},
	}
}

func (f *fakeSyncStore) FindBatch(_ context.Context, userID int64, batchID string) (*BatchRecord, error) {
	return f.state.batches[fmt.Sprintf("%d/%s", userID, batchID)], nil
}

// RunInTx stages all writes on a copy and only publishes them on success.
func (f *fakeSyncStore) RunInTx(_ context.Context, fn func(tx TxStore) error) error {
	staged := f.state.clone()
	if err := fn(&fakeTxStore{state: staged, categories: f.categories}); err != nil {
		return err
	}
	f.state = staged
	return nil
}

func (f *fakeSyncStore) FriendsByEmails(_ context.Context, userID int64, emails []string) ([]*friend.Friend, error) {
	var out []*friend.Friend
	for _, email := range emails {
		for _, fr := range f.state.friends {
			if fr.CreatedBy == userID && fr.MemberEmail == email {
				out = append(out, fr)
			}
		}
	}
	return out, nil
}

func (f *fakeSyncStore) GroupsByClientIDs(_ context.Context, clientIDs []string) ([]*group.Group, error) {
	var out []*group.Group
	for _, id := range clientIDs {
		if g := f.state.groups[id]; g != nil {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeSyncStore) MembershipsInGroups(_ context.Context, groupIDs []int64) ([]*group.Member, error) {
	var out []*group.Member
	for _, m := range f.state.memberships {
		for _, id := range groupIDs {
			if m.GroupID == id {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func (f *fakeSyncStore) ExpensesByClientIDs(_ context.Context, clientIDs []string) ([]*expense.Expense, error) {
	var out []*expense.Expense
	for _, id := range clientIDs {
		if e := f.state.expenses[id]; e != nil {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeTxStore struct {
	state      *fakeState
	categories map[string]*category.Category
}

func (t *fakeTxStore) id() int64 {
	t.state.nextID++
	return t.state.nextID
}

func (t *fakeTxStore) UpsertFriend(_ context.Context, createdBy, memberID int64) (*friend.Friend, bool, error) {
	key := fmt.Sprintf("%d/%d", createdBy, memberID)
	if existing := t.state.friends[key]; existing != nil {
		return existing, false, nil
	}
	f := &friend.Friend{ID: t.id(), CreatedBy: createdBy, MemberID: memberID}
	t.state.friends[key] = f
	return f, true, nil
}

func (t *fakeTxStore) UpsertGroup(_ context.Context, clientID, name, description string, createdBy int64) (*group.Group, bool, error) {
	if existing := t.state.groups[clientID]; existing != nil {
		return existing, false, nil
	}
	cid := clientID
	g := &group.Group{ID: t.id(), ClientID: &cid, CreatedBy: createdBy, Name: name, Description: description}
	t.state.groups[clientID] = g
	return g, true, nil
}

func (t *fakeTxStore) UpsertMembership(_ context.Context, groupID, userID int64) (*group.Member, bool, error) {
	key := fmt.Sprintf("%d/%d", groupID, userID)
	if existing := t.state.memberships[key]; existing != nil {
		return existing, false, nil
	}
	m := &group.Member{ID: t.id(), GroupID: groupID, UserID: userID}
	t.state.memberships[key] = m
	return m, true, nil
}

func (t *fakeTxStore) FindCategoryByName(_ context.Context, name string) (*category.Category, error) {
	return t.categories[name], nil
}

func (t *fakeTxStore) UpsertExpense(_ context.Context, exp *expense.Expense, splits []*expense.Split, items []*expense.Item) (*expense.Expense, bool, error) {
	if existing := t.state.expenses[*exp.ClientID]; existing != nil {
		return existing, false, nil
	}
	exp.ID = t.id()
	t.state.expenses[*exp.ClientID] = exp
	for _, sp := range splits {
		sp.ID = t.id()
		sp.ExpenseID = exp.ID
		t.state.splits[exp.ID] = append(t.state.splits[exp.ID], sp)
	}
	for _, it := range items {
		it.ID = t.id()
		it.ExpenseID = exp.ID
		t.state.items[exp.ID] = append(t.state.items[exp.ID], it)
	}
	return exp, true, nil
}

func (t *fakeTxStore) InsertBatchRecord(_ context.Context, rec *BatchRecord) error {
	key := fmt.Sprintf("%d/%s", rec.UserID, rec.BatchID)
	if t.state.batches[key] != nil {
		return ErrBatchAlreadyRecorded
	}
	rec.ID = t.id()
	t.state.batches[key] = rec
	return nil
}

// fakeResolver hands out one account per email.
type fakeResolver struct {
	users  map[string]*user.User
	nextID int64
}

func (r *fakeResolver) ResolveOrCreateByEmail(_ context.Context, email string) (*user.User, error) {
	if u := r.users[email]; u != nil {
		return u, nil
	}
	r.nextID++
	u := &user.User{ID: r.nextID, Email: email}
	r.users[email] = u
	return u, nil
}

type fakeInviter struct {
	sent []string
}

func (f *fakeInviter) SendInvite(_ context.Context, email string, _ int64) {
	f.sent = append(f.sent, email)
}

type captureNotifier struct {
	events []activity.Event
}

func (n *captureNotifier) Notify(_ context.Context, ev activity.Event) {
	n.events = append(n.events, ev)
}

func newTestSyncService() (*Service, *fakeSyncStore, *fakeInviter, *captureNotifier) {
	store := newFakeSyncStore()
	inviter := &fakeInviter{}
	notifier := &captureNotifier{}
	resolver := &fakeResolver{users: map[string]*user.User{}, nextID: 100}
	svc := NewService(store, resolver, split.NewFactory(), notifier, inviter)
	return svc, store, inviter, notifier
}

func fullBatch() *BatchRequest {
	return &BatchRequest{
		BatchID: "batch-1",
		Friends: []FriendEntry{{Email: "ana@example.com"}},
		Groups: []GroupEntry{
			{ClientID: "g-1", Name: "Trip", Description: "weekend"},
		},
		Memberships: []MembershipEntry{
			{GroupClientID: "g-1", MemberEmail: "ana@example.com"},
			{GroupClientID: "g-1", MemberEmail: "bo@example.com"},
		},
		Expenses: []ExpenseEntry{
			{
				ClientID:      "e-1",
				GroupClientID: "g-1",
				Title:         "Dinner",
				Amount:        money.MustParse("100.00"),
				PaidByEmail:   "ana@example.com",
				SplitType:     "equal",
				Participants: []ParticipantEntry{
					{Email: "ana@example.com", Included: true},
					{Email: "bo@example.com", Included: true},
				},
			},
		},
	}
}

func TestProcessBatch(t *testing.T) {
	svc, store, inviter, notifier := newTestSyncService()

	result, err := svc.Process(context.Background(), 1, fullBatch())
	if err != nil {
		t.Fatal(err)
	}

	if result.Replayed {
		t.Error("fresh batch flagged as replayed")
	}
	if len(result.Friends) != 1 || len(result.Groups) != 1 || len(result.Expenses) != 1 {
		t.Fatalf("result sets = %d friends, %d groups, %d expenses",
			len(result.Friends), len(result.Groups), len(result.Expenses))
	}
	if len(result.Memberships) != 2 {
		t.Errorf("got %d memberships, want 2", len(result.Memberships))
	}

	// The syncing user was added to the group they created.
	g := store.state.groups["g-1"]
	creatorKey := fmt.Sprintf("%d/%d", g.ID, int64(1))
	if store.state.memberships[creatorKey] == nil {
		t.Error("creator membership missing")
	}

	// Splits were materialized by the calculator.
	exp := store.state.expenses["e-1"]
	splits := store.state.splits[exp.ID]
	if len(splits) != 2 {
		t.Fatalf("got %d splits, want 2", len(splits))
	}
	total := money.Zero()
	for _, sp := range splits {
		total = total.Add(*sp.Amount)
	}
	if !total.Equal(money.MustParse("100.00")) {
		t.Errorf("splits sum to %s", total)
	}

	if len(inviter.sent) != 1 || inviter.sent[0] != "ana@example.com" {
		t.Errorf("invites = %v", inviter.sent)
	}
	if len(notifier.events) != 1 || notifier.events[0].Kind != activity.EventExpenseCreated {
		t.Errorf("events = %+v", notifier.events)
	}

	rec := store.state.batches["1/batch-1"]
	if rec == nil || !rec.Completed {
		t.Fatal("batch record missing or incomplete")
	}
	if rec.ExpenseCount != 1 || rec.GroupCount != 1 || rec.MembershipCount != 2 || rec.FriendCount != 1 {
		t.Errorf("record counts = %+v", rec)
	}
}

func TestProcessBatchIdempotent(t *testing.T) {
	svc, store, inviter, notifier := newTestSyncService()

	first, err := svc.Process(context.Background(), 1, fullBatch())
	if err != nil {
		t.Fatal(err)
	}

	second, err := svc.Process(context.Background(), 1, fullBatch())
	if err != nil {
		t.Fatal(err)
	}

	if !second.Replayed {
		t.Error("second submission not flagged as replayed")
	}
	if len(store.state.groups) != 1 || len(store.state.expenses) != 1 {
		t.Error("replay created new entities")
	}
	if len(second.Groups) != 1 || second.Groups[0].ID != first.Groups[0].ID {
		t.Error("replay returned a different group")
	}
	if len(second.Expenses) != 1 || second.Expenses[0].ID != first.Expenses[0].ID {
		t.Error("replay returned a different expense")
	}

	// Side effects fire once.
	if len(inviter.sent) != 1 {
		t.Errorf("invites sent %d times", len(inviter.sent))
	}
	if len(notifier.events) != 1 {
		t.Errorf("notifications sent %d times", len(notifier.events))
	}
}

// raceStore simulates losing a concurrent submission: the initial record
// check sees nothing, but the winner's record lands before this transaction
// can write its own.
type raceStore struct {
	*fakeSyncStore
	checked bool
}

func (r *raceStore) FindBatch(ctx context.Context, userID int64, batchID string) (*BatchRecord, error) {
	if !r.checked {
		r.checked = true
		return nil, nil
	}
	return r.fakeSyncStore.FindBatch(ctx, userID, batchID)
}

func TestProcessBatchConcurrentLoserReplays(t *testing.T) {
	store := newFakeSyncStore()
	resolver := &fakeResolver{users: map[string]*user.User{}, nextID: 100}
	inviter := &fakeInviter{}
	notifier := &captureNotifier{}

	winner := NewService(store, resolver, split.NewFactory(), notifier, inviter)
	first, err := winner.Process(context.Background(), 1, fullBatch())
	if err != nil {
		t.Fatal(err)
	}

	loser := NewService(&raceStore{fakeSyncStore: store}, resolver, split.NewFactory(), notifier, inviter)
	result, err := loser.Process(context.Background(), 1, fullBatch())
	if err != nil {
		t.Fatalf("losing a concurrent submission must resolve as a replay, got %v", err)
	}

	if !result.Replayed {
		t.Error("loser's result not flagged as replayed")
	}
	if len(result.Expenses) != 1 || result.Expenses[0].ID != first.Expenses[0].ID {
		t.Error("loser returned a different expense than the winner")
	}
	if len(store.state.groups) != 1 || len(store.state.expenses) != 1 {
		t.Error("losing submission created entities")
	}

	// Side effects stay with the winner.
	if len(inviter.sent) != 1 {
		t.Errorf("invites sent %d times", len(inviter.sent))
	}
	if len(notifier.events) != 1 {
		t.Errorf("notifications sent %d times", len(notifier.events))
	}
}

func TestBatchRecordCountsCreatedEntities(t *testing.T) {
	svc, store, _, _ := newTestSyncService()

	if _, err := svc.Process(context.Background(), 1, fullBatch()); err != nil {
		t.Fatal(err)
	}

	// A second batch carrying the same entities under a new batch id creates
	// nothing, and its record must say so.
	req := fullBatch()
	req.BatchID = "batch-2"
	if _, err := svc.Process(context.Background(), 1, req); err != nil {
		t.Fatal(err)
	}

	rec := store.state.batches["1/batch-2"]
	if rec == nil {
		t.Fatal("second batch not recorded")
	}
	if rec.FriendCount != 0 || rec.GroupCount != 0 || rec.MembershipCount != 0 || rec.ExpenseCount != 0 {
		t.Errorf("record counts = %d/%d/%d/%d, want all zero for an all-existing batch",
			rec.FriendCount, rec.GroupCount, rec.MembershipCount, rec.ExpenseCount)
	}
}

func TestProcessBatchValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(req *BatchRequest)
	}{
		{
			name: "duplicate group keys",
			mutate: func(req *BatchRequest) {
				req.Groups = append(req.Groups, GroupEntry{ClientID: "g-1", Name: "Dup"})
			},
		},
		{
			name: "expense references unknown group key",
			mutate: func(req *BatchRequest) {
				req.Expenses[0].GroupClientID = "g-missing"
			},
		},
		{
			name: "missing batch id",
			mutate: func(req *BatchRequest) {
				req.BatchID = ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _, _ := newTestSyncService()
			req := fullBatch()
			tt.mutate(req)

			_, err := svc.Process(context.Background(), 1, req)
			if !apperr.IsKind(err, apperr.KindValidation) {
				t.Fatalf("error = %v, want validation", err)
			}
			if len(store.state.groups) != 0 || len(store.state.expenses) != 0 || len(store.state.batches) != 0 {
				t.Error("failed batch left writes behind")
			}
		})
	}
}

func TestProcessBatchAbortsAtomically(t *testing.T) {
	svc, store, inviter, notifier := newTestSyncService()

	// The membership references a key only valid in some other batch: the
	// whole transaction must roll back even though earlier entries were fine.
	req := fullBatch()
	req.Memberships[0].GroupClientID = "g-elsewhere"

	_, err := svc.Process(context.Background(), 1, req)
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("error = %v, want not found", err)
	}

	if len(store.state.friends) != 0 || len(store.state.groups) != 0 || len(store.state.batches) != 0 {
		t.Error("aborted batch left writes behind")
	}
	if len(inviter.sent) != 0 || len(notifier.events) != 0 {
		t.Error("aborted batch fired side effects")
	}
}

func TestProcessExpenseValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(req *BatchRequest)
		wantKind apperr.Kind
	}{
		{
			name: "amount below minimum",
			mutate: func(req *BatchRequest) {
				req.Expenses[0].Amount = money.MustParse("0.49")
			},
			wantKind: apperr.KindValidation,
		},
		{
			name: "unknown split type",
			mutate: func(req *BatchRequest) {
				req.Expenses[0].SplitType = "weighted"
			},
			wantKind: apperr.KindValidation,
		},
		{
			name: "unknown category",
			mutate: func(req *BatchRequest) {
				cat := "gadgets"
				req.Expenses[0].Category = &cat
			},
			wantKind: apperr.KindNotFound,
		},
		{
			name: "no included participants",
			mutate: func(req *BatchRequest) {
				req.Expenses[0].Participants = nil
			},
			wantKind: apperr.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _, _ := newTestSyncService()
			req := fullBatch()
			tt.mutate(req)

			_, err := svc.Process(context.Background(), 1, req)
			if !apperr.IsKind(err, tt.wantKind) {
				t.Fatalf("error = %v, want kind %v", err, tt.wantKind)
			}
			if len(store.state.batches) != 0 {
				t.Error("failed batch was recorded")
			}
		})
	}
}

func TestProcessItemizedExpense(t *testing.T) {
	svc, store, _, _ := newTestSyncService()

	cat := "food"
	req := &BatchRequest{
		BatchID: "batch-2",
		Groups:  []GroupEntry{{ClientID: "g-2", Name: "Flat"}},
		Expenses: []ExpenseEntry{
			{
				ClientID:      "e-2",
				GroupClientID: "g-2",
				Title:         "Groceries",
				Amount:        money.MustParse("45.00"),
				PaidByEmail:   "ana@example.com",
				Category:      &cat,
				SplitType:     "itemized",
				Items: []ItemEntry{
					{Title: "veg", Amount: money.MustParse("20.00"), AssigneeEmail: "ana@example.com"},
					{Title: "meat", Amount: money.MustParse("25.00"), AssigneeEmail: "bo@example.com"},
				},
			},
		},
	}

	result, err := svc.Process(context.Background(), 1, req)
	if err != nil {
		t.Fatal(err)
	}

	exp := result.Expenses[0]
	if exp.CategoryID == nil || *exp.CategoryID != 1 {
		t.Errorf("category id = %v, want 1", exp.CategoryID)
	}
	if len(store.state.items[exp.ID]) != 2 {
		t.Errorf("got %d items, want 2", len(store.state.items[exp.ID]))
	}
	if len(store.state.splits[exp.ID]) != 2 {
		t.Errorf("got %d splits, want 2", len(store.state.splits[exp.ID]))
	}
}
