package split

import (
	"github.com/shopspring/decimal"

	"github.com/dotsapp/dots/pkg/money"
)

var (
	minPercentage = decimal.New(10, -2) // 0.10
	maxPercentage = decimal.New(100, 0) // 100.00
	sumTolerance  = decimal.New(5, -1)  // 0.50
	fullPercent   = decimal.New(100, 0)
)

// PercentageStrategy divides the expense amount by per-participant
// percentages.
type PercentageStrategy struct{}

// Type returns the split policy identifier
func (s *PercentageStrategy) Type() Type {
	return TypePercentage
}

// Validate checks percentages of included participants. The sum must equal
// 100.00 exactly when the included count is even; an odd count tolerates a
// drift of up to 0.5 either way, which accommodates splitting 100% into a
// non-terminating fraction such as 100/3.
func (s *PercentageStrategy) Validate(amount money.Money, shares []ShareInput, _ []Item) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}

	included := 0
	total := decimal.Zero
	for _, in := range shares {
		if !in.Included {
			continue
		}
		if in.Percentage == nil {
			return ErrMissingPercentage
		}
		if in.Percentage.Cmp(minPercentage) < 0 || in.Percentage.Cmp(maxPercentage) > 0 {
			return ErrPercentageOutOfRange
		}
		included++
		total = total.Add(*in.Percentage)
	}

	if included == 0 {
		return ErrNoIncludedParticipants
	}

	if included%2 != 0 {
		if total.Sub(fullPercent).Abs().Cmp(sumTolerance) > 0 {
			return ErrPercentageSum
		}
	} else if !total.Equal(fullPercent) {
		return ErrPercentageSum
	}

	return nil
}

// Calculate computes amount × percentage / 100 rounded to cents for every
// included participant. No cross-participant remainder redistribution is
// performed; residual cent drift is accepted for this policy.
func (s *PercentageStrategy) Calculate(amount money.Money, shares []ShareInput, items []Item) ([]ShareResult, error) {
	if err := s.Validate(amount, shares, items); err != nil {
		return nil, err
	}

	results := make([]ShareResult, len(shares))
	for i, in := range shares {
		if !in.Included {
			results[i] = ShareResult{MemberID: in.MemberID, Included: false}
			continue
		}

		share := amount.MulPercent(*in.Percentage)
		pct := *in.Percentage
		results[i] = ShareResult{
			MemberID:   in.MemberID,
			Amount:     &share,
			Percentage: &pct,
			Included:   true,
		}
	}

	return results, nil
}
