package split

import "github.com/dotsapp/dots/pkg/money"

// EqualStrategy divides the expense amount evenly among included participants.
type EqualStrategy struct{}

// Type returns the split policy identifier
func (s *EqualStrategy) Type() Type {
	return TypeEqual
}

// Validate checks if the inputs are valid for an equal split
func (s *EqualStrategy) Validate(amount money.Money, shares []ShareInput, _ []Item) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	if countIncluded(shares) == 0 {
		return ErrNoIncludedParticipants
	}
	return nil
}

// Calculate assigns amount/n (truncated to cents) to every included
// participant. Because the division may not come out even, the leftover cents
// (at most n-1) land on the first included participant, so the shares always
// sum back to the expense amount exactly. Excluded participants get a nil
// amount but keep their row.
func (s *EqualStrategy) Calculate(amount money.Money, shares []ShareInput, items []Item) ([]ShareResult, error) {
	if err := s.Validate(amount, shares, items); err != nil {
		return nil, err
	}

	n := countIncluded(shares)
	base, leftover := amount.SplitEven(n)

	results := make([]ShareResult, len(shares))
	first := true
	for i, in := range shares {
		if !in.Included {
			results[i] = ShareResult{MemberID: in.MemberID, Included: false}
			continue
		}

		share := base
		if first {
			share = share.Add(money.FromCents(leftover))
			first = false
		}
		results[i] = ShareResult{MemberID: in.MemberID, Amount: &share, Included: true}
	}

	return results, nil
}

func countIncluded(shares []ShareInput) int {
	n := 0
	for _, in := range shares {
		if in.Included {
			n++
		}
	}
	return n
}
