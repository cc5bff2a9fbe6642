package expense

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dotsapp/dots/internal/activity"
	"github.com/dotsapp/dots/internal/expense/split"
	"github.com/dotsapp/dots/pkg/apperr"
	"github.com/dotsapp/dots/pkg/metrics"
	"github.com/dotsapp/dots/pkg/money"
)

// Service is the expense mutation engine: it validates create/update
// requests, runs the split calculator and persists the result atomically.
type Service struct {
	store    Store
	factory  *split.Factory
	notifier activity.Notifier
}

// NewService creates a new expense service with dependencies injected
func NewService(store Store, factory *split.Factory, notifier activity.Notifier) *Service {
	return &Service{store: store, factory: factory, notifier: notifier}
}

// Create validates the request, computes the splits for the chosen policy and
// persists the expense transactionally. Affected participants are notified
// after the write succeeds.
func (s *Service) Create(ctx context.Context, actorID int64, req *CreateRequest) (*Detail, error) {
	splitType := split.Type(req.SplitType)
	if !splitType.Valid() {
		return nil, apperr.Validation("split_type", "split type must be equal, percentage or itemized")
	}
	if req.Amount.LessThan(money.MinExpenseAmount) {
		return nil, apperr.Validation("amount", "amount must be at least 0.50")
	}

	grp, err := s.store.GetGroup(ctx, req.GroupID)
	if err != nil {
		return nil, err
	}
	if grp == nil {
		return nil, apperr.NotFound("group", "group not found")
	}

	isMember, err := s.store.IsGroupMember(ctx, req.GroupID, actorID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, apperr.PermissionDenied("you must be a member of this group to add expenses")
	}

	if req.CategoryID != nil {
		exists, err := s.store.CategoryExists(ctx, *req.CategoryID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, apperr.NotFound("category", "category not found")
		}
	}

	var shares []split.ShareInput
	var items []split.Item

	switch splitType {
	case split.TypeItemized:
		if len(req.Items) == 0 {
			return nil, apperr.Validation("items", "at least one item is required")
		}
		for _, it := range req.Items {
			items = append(items, split.Item{Title: it.Title, Amount: it.Amount, AssigneeID: it.Assignee})
		}
	default:
		if len(req.Splits) == 0 {
			return nil, apperr.Validation("splits", "at least one participant is required")
		}
		shares, err = shareInputs(req.Splits)
		if err != nil {
			return nil, err
		}
	}

	members, err := s.resolveMembers(ctx, req.GroupID, req.PaidBy, shares, items)
	if err != nil {
		return nil, err
	}

	strategy, err := s.factory.Create(splitType)
	if err != nil {
		return nil, apperr.ValidationWrap("split_type", err)
	}
	results, err := strategy.Calculate(req.Amount, shares, items)
	if err != nil {
		return nil, apperr.ValidationWrap("splits", err)
	}

	exp := &Expense{
		GroupID:    req.GroupID,
		ClientID:   req.ClientID,
		Title:      req.Title,
		Amount:     req.Amount,
		PaidBy:     req.PaidBy,
		CategoryID: req.CategoryID,
		Notes:      req.Notes,
		SplitType:  splitType,
		CreatedBy:  actorID,
	}

	detail, err := s.store.InsertExpense(ctx, exp, splitRows(results), itemRows(items))
	if err != nil {
		return nil, err
	}

	metrics.ExpensesCreated.WithLabelValues(string(splitType)).Inc()
	s.notifier.Notify(ctx, activity.Event{
		Kind:      activity.EventExpenseCreated,
		ActorID:   actorID,
		GroupID:   grp.ID,
		GroupName: grp.Name,
		ExpenseID: detail.Expense.ID,
		Title:     detail.Expense.Title,
		Shares:    shareMap(results, members),
	})

	return detail, nil
}

// Update applies field changes and reconciles the expense's splits. Any of
// amount change, split payload or item change forces a full recomputation
// over the union of known and supplied participants; participants dropped
// from the payload are retained as excluded rather than deleted.
func (s *Service) Update(ctx context.Context, actorID, expenseID int64, req *UpdateRequest) (*Detail, error) {
	exp, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return nil, apperr.NotFound("expense", "expense not found")
	}

	grp, err := s.store.GetGroup(ctx, exp.GroupID)
	if err != nil {
		return nil, err
	}

	isMember, err := s.store.IsGroupMember(ctx, exp.GroupID, actorID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, apperr.PermissionDenied("you must be a member of this group to update expenses")
	}

	if req.PaidBy != nil {
		found, err := s.store.MembersByID(ctx, exp.GroupID, []int64{*req.PaidBy})
		if err != nil {
			return nil, err
		}
		if found[*req.PaidBy] == nil {
			return nil, apperr.Validation("paid_by", "payer must belong to this group")
		}
		exp.PaidBy = *req.PaidBy
	}
	if req.CategoryID != nil {
		exists, err := s.store.CategoryExists(ctx, *req.CategoryID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, apperr.NotFound("category", "category not found")
		}
		exp.CategoryID = req.CategoryID
	}
	if req.Title != nil {
		exp.Title = *req.Title
	}
	if req.Notes != nil {
		exp.Notes = req.Notes
	}

	amountChanged := false
	if req.Amount != nil {
		if req.Amount.LessThan(money.MinExpenseAmount) {
			return nil, apperr.Validation("amount", "amount must be at least 0.50")
		}
		amountChanged = !req.Amount.Equal(exp.Amount)
		exp.Amount = *req.Amount
	}

	var detail *Detail
	var results []split.ShareResult
	if exp.SplitType == split.TypeItemized {
		detail, results, err = s.updateItemized(ctx, exp, req, amountChanged)
	} else {
		detail, results, err = s.updateShared(ctx, exp, req, amountChanged)
	}
	if err != nil {
		return nil, err
	}

	metrics.ExpensesUpdated.Inc()

	// The update is committed at this point; the share lookup only feeds the
	// notification, so a failure here is logged and the event goes out without
	// per-user amounts.
	var shares map[int64]money.Money
	if results != nil {
		participantIDs := make([]int64, 0, len(results))
		for _, res := range results {
			participantIDs = append(participantIDs, res.MemberID)
		}
		members, err := s.store.MembersByID(ctx, exp.GroupID, participantIDs)
		if err != nil {
			slog.Error("share lookup for update notification failed",
				"expense_id", exp.ID,
				"group_id", exp.GroupID,
				"err", err,
			)
		} else {
			shares = shareMap(results, members)
		}
	}

	groupName := ""
	if grp != nil {
		groupName = grp.Name
	}
	s.notifier.Notify(ctx, activity.Event{
		Kind:      activity.EventExpenseUpdated,
		ActorID:   actorID,
		GroupID:   exp.GroupID,
		GroupName: groupName,
		ExpenseID: exp.ID,
		Title:     exp.Title,
		Shares:    shares,
	})

	return detail, nil
}

// updateShared handles equal and percentage expenses: any amount change or
// split payload triggers recomputation over the union of existing and
// supplied participants.
func (s *Service) updateShared(ctx context.Context, exp *Expense, req *UpdateRequest, amountChanged bool) (*Detail, []split.ShareResult, error) {
	if req.hasItemChanges() {
		return nil, nil, apperr.Validation("items", "item changes are only valid for itemized expenses")
	}

	if !amountChanged && req.Splits == nil {
		detail, err := s.store.ApplyUpdate(ctx, exp, nil, nil, nil, nil)
		return detail, nil, err
	}

	existing, err := s.store.GetSplits(ctx, exp.ID)
	if err != nil {
		return nil, nil, err
	}

	union := make(map[int64]split.ShareInput, len(existing))
	for _, sp := range existing {
		union[sp.ParticipantID] = split.ShareInput{
			MemberID:   sp.ParticipantID,
			Percentage: sp.Percentage,
			Included:   sp.Included,
		}
	}

	if req.Splits != nil {
		payload, err := shareInputs(req.Splits)
		if err != nil {
			return nil, nil, err
		}

		var newIDs []int64
		for _, in := range payload {
			if _, known := union[in.MemberID]; !known {
				newIDs = append(newIDs, in.MemberID)
			}
		}
		if len(newIDs) > 0 {
			members, err := s.store.MembersByID(ctx, exp.GroupID, newIDs)
			if err != nil {
				return nil, nil, err
			}
			for _, id := range newIDs {
				if members[id] == nil {
					return nil, nil, apperr.Validation("splits", "all members in splits must belong to this group")
				}
			}
		}

		inPayload := make(map[int64]bool, len(payload))
		for _, in := range payload {
			inPayload[in.MemberID] = true
			merged := in
			if merged.Percentage == nil {
				if prev, ok := union[in.MemberID]; ok {
					merged.Percentage = prev.Percentage
				}
			}
			union[in.MemberID] = merged
		}

		// Participants dropped from the payload become excluded; their rows
		// survive so re-inclusion later restores a computed amount.
		for id, in := range union {
			if !inPayload[id] {
				in.Included = false
				union[id] = in
			}
		}
	}

	inputs := make([]split.ShareInput, 0, len(union))
	for _, in := range union {
		inputs = append(inputs, in)
	}
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].MemberID < inputs[j].MemberID })

	strategy, err := s.factory.Create(exp.SplitType)
	if err != nil {
		return nil, nil, apperr.ValidationWrap("split_type", err)
	}
	results, err := strategy.Calculate(exp.Amount, inputs, nil)
	if err != nil {
		return nil, nil, apperr.ValidationWrap("splits", err)
	}

	detail, err := s.store.ApplyUpdate(ctx, exp, splitRows(results), nil, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	return detail, results, nil
}

// updateItemized handles itemized expenses: item changes are applied to a
// working copy, the new item total must match the (possibly changed) expense
// amount, and per-assignee splits are reconciled without deleting rows.
func (s *Service) updateItemized(ctx context.Context, exp *Expense, req *UpdateRequest, amountChanged bool) (*Detail, []split.ShareResult, error) {
	if req.Splits != nil {
		return nil, nil, apperr.Validation("splits", "split payloads are only valid for equal and percentage expenses")
	}

	if !req.hasItemChanges() && !amountChanged {
		detail, err := s.store.ApplyUpdate(ctx, exp, nil, nil, nil, nil)
		return detail, nil, err
	}

	existingItems, err := s.store.GetItems(ctx, exp.ID)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[int64]*Item, len(existingItems))
	for _, it := range existingItems {
		byID[it.ID] = it
	}

	// Every referenced item id must belong to this expense and appear at
	// most once across the update and delete lists.
	seen := make(map[int64]bool)
	for _, upd := range req.UpdateItems {
		if seen[upd.ID] {
			return nil, nil, apperr.Validation("items", fmt.Sprintf("item %d referenced more than once", upd.ID))
		}
		seen[upd.ID] = true
		if byID[upd.ID] == nil {
			return nil, nil, apperr.Conflict("items", fmt.Sprintf("item %d does not belong to this expense", upd.ID))
		}
	}
	for _, id := range req.DeleteItemIDs {
		if seen[id] {
			return nil, nil, apperr.Validation("items", fmt.Sprintf("item %d referenced more than once", id))
		}
		seen[id] = true
		if byID[id] == nil {
			return nil, nil, apperr.Conflict("items", fmt.Sprintf("item %d does not belong to this expense", id))
		}
	}

	// Build the post-update item list.
	working := make(map[int64]*Item, len(existingItems))
	for id, it := range byID {
		copied := *it
		working[id] = &copied
	}
	for _, id := range req.DeleteItemIDs {
		delete(working, id)
	}
	var updatedItems []*Item
	for _, upd := range req.UpdateItems {
		it := working[upd.ID]
		if it == nil {
			continue // deleted in the same payload; delete wins
		}
		if upd.Title != nil {
			it.Title = *upd.Title
		}
		if upd.Amount != nil {
			it.Amount = *upd.Amount
		}
		if upd.Assignee != nil {
			it.AssigneeID = *upd.Assignee
		}
		updatedItems = append(updatedItems, it)
	}
	var newItems []*Item
	for _, in := range req.NewItems {
		newItems = append(newItems, &Item{
			ExpenseID:  exp.ID,
			Title:      in.Title,
			Amount:     in.Amount,
			AssigneeID: in.Assignee,
		})
	}

	finalItems := make([]split.Item, 0, len(working)+len(newItems))
	assigneeIDs := make(map[int64]bool)
	for _, it := range existingItems {
		w := working[it.ID]
		if w == nil {
			continue
		}
		finalItems = append(finalItems, split.Item{Title: w.Title, Amount: w.Amount, AssigneeID: w.AssigneeID})
		assigneeIDs[w.AssigneeID] = true
	}
	for _, it := range newItems {
		finalItems = append(finalItems, split.Item{Title: it.Title, Amount: it.Amount, AssigneeID: it.AssigneeID})
		assigneeIDs[it.AssigneeID] = true
	}

	ids := make([]int64, 0, len(assigneeIDs))
	for id := range assigneeIDs {
		ids = append(ids, id)
	}
	members, err := s.store.MembersByID(ctx, exp.GroupID, ids)
	if err != nil {
		return nil, nil, err
	}
	for _, id := range ids {
		if members[id] == nil {
			return nil, nil, apperr.Validation("items", "all assignees must belong to this group")
		}
	}

	strategy, err := s.factory.Create(split.TypeItemized)
	if err != nil {
		return nil, nil, apperr.ValidationWrap("split_type", err)
	}
	results, err := strategy.Calculate(exp.Amount, nil, finalItems)
	if err != nil {
		return nil, nil, apperr.ValidationWrap("items", err)
	}

	// Reconcile splits against existing rows: vanished assignees become
	// excluded, new assignees get fresh rows, nothing is deleted.
	existingSplits, err := s.store.GetSplits(ctx, exp.ID)
	if err != nil {
		return nil, nil, err
	}
	desired := make(map[int64]*money.Money, len(results))
	for _, res := range results {
		desired[res.MemberID] = res.Amount
	}

	var upserts []*Split
	for _, sp := range existingSplits {
		if amount, ok := desired[sp.ParticipantID]; ok {
			upserts = append(upserts, &Split{ExpenseID: exp.ID, ParticipantID: sp.ParticipantID, Amount: amount, Included: true})
			delete(desired, sp.ParticipantID)
		} else {
			upserts = append(upserts, &Split{ExpenseID: exp.ID, ParticipantID: sp.ParticipantID, Included: false})
		}
	}
	for _, res := range results {
		if amount, ok := desired[res.MemberID]; ok {
			upserts = append(upserts, &Split{ExpenseID: exp.ID, ParticipantID: res.MemberID, Amount: amount, Included: true})
		}
	}

	detail, err := s.store.ApplyUpdate(ctx, exp, upserts, newItems, updatedItems, req.DeleteItemIDs)
	if err != nil {
		return nil, nil, err
	}
	return detail, results, nil
}

// Get retrieves an expense with its splits and items.
func (s *Service) Get(ctx context.Context, actorID, expenseID int64) (*Detail, error) {
	exp, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return nil, apperr.NotFound("expense", "expense not found")
	}

	isMember, err := s.store.IsGroupMember(ctx, exp.GroupID, actorID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, apperr.PermissionDenied("you must be a member of this group")
	}

	splits, err := s.store.GetSplits(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	var items []*Item
	if exp.SplitType == split.TypeItemized {
		items, err = s.store.GetItems(ctx, expenseID)
		if err != nil {
			return nil, err
		}
	}

	return &Detail{Expense: exp, Splits: splits, Items: items}, nil
}

// ListByGroup retrieves expenses of a group the acting user belongs to.
func (s *Service) ListByGroup(ctx context.Context, actorID, groupID int64, page, perPage int) ([]*Expense, int, error) {
	grp, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, 0, err
	}
	if grp == nil {
		return nil, 0, apperr.NotFound("group", "group not found")
	}

	isMember, err := s.store.IsGroupMember(ctx, groupID, actorID)
	if err != nil {
		return nil, 0, err
	}
	if !isMember {
		return nil, 0, apperr.PermissionDenied("you must be a member of this group")
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	offset := (page - 1) * perPage

	return s.store.ListByGroup(ctx, groupID, perPage, offset)
}

// Delete removes an expense. Only its creator may delete it.
func (s *Service) Delete(ctx context.Context, actorID, expenseID int64) error {
	exp, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return err
	}
	if exp == nil {
		return apperr.NotFound("expense", "expense not found")
	}
	if exp.CreatedBy != actorID {
		return apperr.PermissionDenied("only the expense creator can delete it")
	}

	return s.store.DeleteExpense(ctx, expenseID)
}

// resolveMembers validates that the payer and every participant or assignee
// belong to the group, and returns the member lookup for fan-out.
func (s *Service) resolveMembers(ctx context.Context, groupID, paidBy int64, shares []split.ShareInput, items []split.Item) (map[int64]*MemberRef, error) {
	idSet := map[int64]bool{paidBy: true}
	for _, in := range shares {
		idSet[in.MemberID] = true
	}
	for _, it := range items {
		idSet[it.AssigneeID] = true
	}

	ids := make([]int64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	members, err := s.store.MembersByID(ctx, groupID, ids)
	if err != nil {
		return nil, err
	}

	if members[paidBy] == nil {
		return nil, apperr.Validation("paid_by", "payer must belong to this group")
	}
	for _, in := range shares {
		if members[in.MemberID] == nil {
			return nil, apperr.Validation("splits", "all members in splits must belong to this group")
		}
	}
	for _, it := range items {
		if members[it.AssigneeID] == nil {
			return nil, apperr.Validation("items", "all assignees must belong to this group")
		}
	}

	return members, nil
}

// shareInputs converts the payload entries, rejecting duplicates and fixing
// a deterministic order (ascending member id) so the equal policy's leftover
// cent always lands on the same participant.
func shareInputs(reqs []ShareRequest) ([]split.ShareInput, error) {
	seen := make(map[int64]bool, len(reqs))
	inputs := make([]split.ShareInput, 0, len(reqs))
	for _, sr := range reqs {
		if seen[sr.Participant] {
			return nil, apperr.Validation("splits", "duplicate participants in splits")
		}
		seen[sr.Participant] = true
		inputs = append(inputs, split.ShareInput{
			MemberID:   sr.Participant,
			Percentage: sr.Percentage,
			Included:   sr.Included,
		})
	}
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].MemberID < inputs[j].MemberID })
	return inputs, nil
}

func splitRows(results []split.ShareResult) []*Split {
	rows := make([]*Split, 0, len(results))
	for _, res := range results {
		rows = append(rows, &Split{
			ParticipantID: res.MemberID,
			Amount:        res.Amount,
			Percentage:    res.Percentage,
			Included:      res.Included,
		})
	}
	return rows
}

func itemRows(items []split.Item) []*Item {
	rows := make([]*Item, 0, len(items))
	for _, it := range items {
		rows = append(rows, &Item{Title: it.Title, Amount: it.Amount, AssigneeID: it.AssigneeID})
	}
	return rows
}

// shareMap keys included owed amounts by the participant's user id for
// notification fan-out.
func shareMap(results []split.ShareResult, members map[int64]*MemberRef) map[int64]money.Money {
	shares := make(map[int64]money.Money)
	for _, res := range results {
		if !res.Included || res.Amount == nil {
			continue
		}
		if ref := members[res.MemberID]; ref != nil {
			shares[ref.UserID] = *res.Amount
		}
	}
	return shares
}
