package split

import "github.com/dotsapp/dots/pkg/money"

// ItemizedStrategy derives each participant's share from the items assigned
// to them.
type ItemizedStrategy struct{}

// Type returns the split policy identifier
func (s *ItemizedStrategy) Type() Type {
	return TypeItemized
}

// Validate checks that every item carries a positive amount and that the item
// amounts sum to the expense amount exactly.
func (s *ItemizedStrategy) Validate(amount money.Money, _ []ShareInput, items []Item) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	if len(items) == 0 {
		return ErrNoItems
	}

	total := money.Zero()
	for _, item := range items {
		if !item.Amount.IsPositive() {
			return ErrItemAmountNotPositive
		}
		total = total.Add(item.Amount)
	}

	if !total.Equal(amount) {
		return ErrItemSumMismatch
	}
	return nil
}

// Calculate aggregates items per assignee; the sum of an assignee's items
// becomes their share. Participants with no items get no result row at all,
// in first-appearance order of the assignees.
func (s *ItemizedStrategy) Calculate(amount money.Money, shares []ShareInput, items []Item) ([]ShareResult, error) {
	if err := s.Validate(amount, shares, items); err != nil {
		return nil, err
	}

	totals := make(map[int64]money.Money)
	var order []int64
	for _, item := range items {
		if _, seen := totals[item.AssigneeID]; !seen {
			order = append(order, item.AssigneeID)
		}
		totals[item.AssigneeID] = totals[item.AssigneeID].Add(item.Amount)
	}

	results := make([]ShareResult, 0, len(order))
	for _, memberID := range order {
		share := totals[memberID]
		results = append(results, ShareResult{
			MemberID: memberID,
			Amount:   &share,
			Included: true,
		})
	}

	return results, nil
}
