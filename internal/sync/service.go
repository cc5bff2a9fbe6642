package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dotsapp/dots/internal/activity"
	"github.com/dotsapp/dots/internal/expense"
	"github.com/dotsapp/dots/internal/expense/split"
	"github.com/dotsapp/dots/internal/friend"
	"github.com/dotsapp/dots/internal/group"
	"github.com/dotsapp/dots/internal/invite"
	"github.com/dotsapp/dots/internal/user"
	"github.com/dotsapp/dots/pkg/apperr"
	"github.com/dotsapp/dots/pkg/metrics"
	"github.com/dotsapp/dots/pkg/money"
)

// Service is the offline batch reconciler: it merges one client batch of
// friends, groups, memberships and expenses into server state exactly once
// per (user, batch id), in dependency order, inside a single transaction.
type Service struct {
	store    Store
	users    user.Resolver
	factory  *split.Factory
	notifier activity.Notifier
	invites  invite.Sender
}

// NewService creates a new sync service with dependencies injected
func NewService(store Store, users user.Resolver, factory *split.Factory, notifier activity.Notifier, invites invite.Sender) *Service {
	return &Service{store: store, users: users, factory: factory, notifier: notifier, invites: invites}
}

// Process reconciles one batch. A completed record for the same (user, batch
// id) resolves as a replay: the previously materialized entities are
// re-fetched and returned with no mutation, so client retries are safe.
func (s *Service) Process(ctx context.Context, userID int64, req *BatchRequest) (*BatchResult, error) {
	if req.BatchID == "" {
		return nil, apperr.Validation("batch_id", "batch id is required")
	}

	rec, err := s.store.FindBatch(ctx, userID, req.BatchID)
	if err != nil {
		return nil, err
	}
	if rec != nil && rec.Completed {
		result, err := s.replay(ctx, userID, rec)
		if err != nil {
			return nil, err
		}
		metrics.SyncBatches.WithLabelValues("replayed").Inc()
		return result, nil
	}

	if err := validateBatch(req); err != nil {
		return nil, err
	}

	result := &BatchResult{
		Friends:     []*friend.Friend{},
		Groups:      []*group.Group{},
		Memberships: []*group.Member{},
		Expenses:    []*expense.Expense{},
	}

	var inviteEmails []string
	var events []activity.Event

	err = s.store.RunInTx(ctx, func(tx TxStore) error {
		record := &BatchRecord{
			UserID:    userID,
			BatchID:   req.BatchID,
			Completed: true,
		}

		for _, entry := range req.Friends {
			counterpart, err := s.users.ResolveOrCreateByEmail(ctx, entry.Email)
			if err != nil {
				return apperr.ValidationWrap("friends", err)
			}
			f, created, err := tx.UpsertFriend(ctx, userID, counterpart.ID)
			if err != nil {
				return err
			}
			if created {
				f.MemberEmail = counterpart.Email
				result.Friends = append(result.Friends, f)
				record.FriendEmails = append(record.FriendEmails, counterpart.Email)
				inviteEmails = append(inviteEmails, counterpart.Email)
			}
		}

		groupsByKey := make(map[string]*group.Group, len(req.Groups))
		for _, entry := range req.Groups {
			g, created, err := tx.UpsertGroup(ctx, entry.ClientID, entry.Name, entry.Description, userID)
			if err != nil {
				return err
			}
			groupsByKey[entry.ClientID] = g
			if created {
				// The syncing user always belongs to the groups they create.
				if _, _, err := tx.UpsertMembership(ctx, g.ID, userID); err != nil {
					return err
				}
				result.Groups = append(result.Groups, g)
				record.GroupClientIDs = append(record.GroupClientIDs, entry.ClientID)
			}
		}

		for _, entry := range req.Memberships {
			g := groupsByKey[entry.GroupClientID]
			if g == nil {
				return apperr.NotFound("group_members", fmt.Sprintf("unknown group key %q", entry.GroupClientID))
			}
			u, err := s.users.ResolveOrCreateByEmail(ctx, entry.MemberEmail)
			if err != nil {
				return apperr.ValidationWrap("group_members", err)
			}
			m, created, err := tx.UpsertMembership(ctx, g.ID, u.ID)
			if err != nil {
				return err
			}
			if created {
				record.MembershipCount++
			}
			result.Memberships = append(result.Memberships, m)
		}

		for _, entry := range req.Expenses {
			created, exp, shares, err := s.processExpense(ctx, tx, userID, groupsByKey, &entry)
			if err != nil {
				return err
			}
			if created {
				result.Expenses = append(result.Expenses, exp)
				record.ExpenseClientIDs = append(record.ExpenseClientIDs, entry.ClientID)
				events = append(events, activity.Event{
					Kind:      activity.EventExpenseCreated,
					ActorID:   userID,
					GroupID:   exp.GroupID,
					GroupName: groupsByKey[entry.GroupClientID].Name,
					ExpenseID: exp.ID,
					Title:     exp.Title,
					Shares:    shares,
				})
			}
		}

		// Counts record what this batch genuinely created, not what the
		// request carried.
		record.FriendCount = len(record.FriendEmails)
		record.GroupCount = len(record.GroupClientIDs)
		record.ExpenseCount = len(record.ExpenseClientIDs)

		return tx.InsertBatchRecord(ctx, record)
	})
	if errors.Is(err, ErrBatchAlreadyRecorded) {
		// A concurrent submission of the same batch won the record insert.
		// Ours rolled back without creating anything new, so serve the
		// winner's result as a replay.
		rec, findErr := s.store.FindBatch(ctx, userID, req.BatchID)
		if findErr != nil {
			return nil, findErr
		}
		if rec == nil || !rec.Completed {
			return nil, err
		}
		result, replayErr := s.replay(ctx, userID, rec)
		if replayErr != nil {
			return nil, replayErr
		}
		metrics.SyncBatches.WithLabelValues("replayed").Inc()
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	metrics.SyncBatches.WithLabelValues("processed").Inc()

	// Side effects only after the batch is durably committed, and only for
	// entities this batch genuinely created.
	for _, email := range inviteEmails {
		s.invites.SendInvite(ctx, email, userID)
	}
	for _, ev := range events {
		s.notifier.Notify(ctx, ev)
	}

	return result, nil
}

// processExpense merges one expense entry: resolves the payer and every
// participant or assignee to group members, then upserts the expense by its
// client key, materializing splits only on first creation.
func (s *Service) processExpense(ctx context.Context, tx TxStore, userID int64, groupsByKey map[string]*group.Group, entry *ExpenseEntry) (bool, *expense.Expense, map[int64]money.Money, error) {
	g := groupsByKey[entry.GroupClientID]
	if g == nil {
		return false, nil, nil, apperr.NotFound("expenses", fmt.Sprintf("unknown group key %q", entry.GroupClientID))
	}

	splitType := split.Type(entry.SplitType)
	if !splitType.Valid() {
		return false, nil, nil, apperr.Validation("expenses", fmt.Sprintf("invalid split type %q for expense %q", entry.SplitType, entry.ClientID))
	}
	if entry.Amount.LessThan(money.MinExpenseAmount) {
		return false, nil, nil, apperr.Validation("expenses", fmt.Sprintf("amount of expense %q must be at least 0.50", entry.ClientID))
	}

	payer, err := s.resolveMember(ctx, tx, g.ID, entry.PaidByEmail)
	if err != nil {
		return false, nil, nil, err
	}

	var categoryID *int64
	if entry.Category != nil {
		cat, err := tx.FindCategoryByName(ctx, *entry.Category)
		if err != nil {
			return false, nil, nil, err
		}
		if cat == nil {
			return false, nil, nil, apperr.NotFound("category", fmt.Sprintf("category %q not found", *entry.Category))
		}
		categoryID = &cat.ID
	}

	var shareInputs []split.ShareInput
	var items []split.Item
	userByMember := map[int64]int64{}

	switch splitType {
	case split.TypeItemized:
		for _, it := range entry.Items {
			m, err := s.resolveMember(ctx, tx, g.ID, it.AssigneeEmail)
			if err != nil {
				return false, nil, nil, err
			}
			userByMember[m.ID] = m.UserID
			items = append(items, split.Item{Title: it.Title, Amount: it.Amount, AssigneeID: m.ID})
		}
	default:
		for _, p := range entry.Participants {
			m, err := s.resolveMember(ctx, tx, g.ID, p.Email)
			if err != nil {
				return false, nil, nil, err
			}
			userByMember[m.ID] = m.UserID
			shareInputs = append(shareInputs, split.ShareInput{
				MemberID:   m.ID,
				Percentage: p.Percentage,
				Included:   p.Included,
			})
		}
		sort.Slice(shareInputs, func(i, j int) bool { return shareInputs[i].MemberID < shareInputs[j].MemberID })
	}

	strategy, err := s.factory.Create(splitType)
	if err != nil {
		return false, nil, nil, apperr.ValidationWrap("expenses", err)
	}
	results, err := strategy.Calculate(entry.Amount, shareInputs, items)
	if err != nil {
		return false, nil, nil, apperr.ValidationWrap("expenses", err)
	}

	clientID := entry.ClientID
	exp := &expense.Expense{
		GroupID:    g.ID,
		ClientID:   &clientID,
		Title:      entry.Title,
		Amount:     entry.Amount,
		PaidBy:     payer.ID,
		CategoryID: categoryID,
		Notes:      entry.Notes,
		SplitType:  splitType,
		CreatedBy:  userID,
	}

	var splitRows []*expense.Split
	for _, res := range results {
		splitRows = append(splitRows, &expense.Split{
			ParticipantID: res.MemberID,
			Amount:        res.Amount,
			Percentage:    res.Percentage,
			Included:      res.Included,
		})
	}
	var itemRows []*expense.Item
	for _, it := range items {
		itemRows = append(itemRows, &expense.Item{Title: it.Title, Amount: it.Amount, AssigneeID: it.AssigneeID})
	}

	persisted, created, err := tx.UpsertExpense(ctx, exp, splitRows, itemRows)
	if err != nil {
		return false, nil, nil, err
	}
	if !created {
		return false, persisted, nil, nil
	}

	shares := make(map[int64]money.Money)
	for _, res := range results {
		if !res.Included || res.Amount == nil {
			continue
		}
		shares[userByMember[res.MemberID]] = *res.Amount
	}

	return true, persisted, shares, nil
}

// resolveMember turns an email into a membership of the group, creating the
// account and the membership on first sight.
func (s *Service) resolveMember(ctx context.Context, tx TxStore, groupID int64, email string) (*group.Member, error) {
	u, err := s.users.ResolveOrCreateByEmail(ctx, email)
	if err != nil {
		return nil, apperr.ValidationWrap("expenses", err)
	}
	m, _, err := tx.UpsertMembership(ctx, groupID, u.ID)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// replay re-materializes a previously processed batch from its record.
func (s *Service) replay(ctx context.Context, userID int64, rec *BatchRecord) (*BatchResult, error) {
	friends, err := s.store.FriendsByEmails(ctx, userID, rec.FriendEmails)
	if err != nil {
		return nil, err
	}
	groups, err := s.store.GroupsByClientIDs(ctx, rec.GroupClientIDs)
	if err != nil {
		return nil, err
	}

	groupIDs := make([]int64, 0, len(groups))
	for _, g := range groups {
		groupIDs = append(groupIDs, g.ID)
	}
	memberships, err := s.store.MembershipsInGroups(ctx, groupIDs)
	if err != nil {
		return nil, err
	}

	expenses, err := s.store.ExpensesByClientIDs(ctx, rec.ExpenseClientIDs)
	if err != nil {
		return nil, err
	}

	return &BatchResult{
		Replayed:    true,
		Friends:     friends,
		Groups:      groups,
		Memberships: memberships,
		Expenses:    expenses,
	}, nil
}

// validateBatch checks the whole batch before any write: group keys must be
// unique within the batch and every expense must reference a group key from
// the same batch. Offending keys are named in the error.
func validateBatch(req *BatchRequest) error {
	seen := make(map[string]bool, len(req.Groups))
	var dups []string
	for _, g := range req.Groups {
		if seen[g.ClientID] {
			dups = append(dups, g.ClientID)
		}
		seen[g.ClientID] = true
	}
	if len(dups) > 0 {
		return apperr.Validation("groups", "duplicate group keys in batch: "+strings.Join(dups, ", "))
	}

	var unknown []string
	for _, e := range req.Expenses {
		if !seen[e.GroupClientID] {
			unknown = append(unknown, e.GroupClientID)
		}
	}
	if len(unknown) > 0 {
		return apperr.Validation("expenses", "unknown group keys in batch: "+strings.Join(unknown, ", "))
	}

	return nil
}
