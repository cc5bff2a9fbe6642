package split

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dotsapp/dots/pkg/money"
)

// Type defines the split policy of an expense
type Type string

const (
	TypeEqual      Type = "equal"
	TypePercentage Type = "percentage"
	TypeItemized   Type = "itemized"
)

// Valid reports whether t is a known split policy.
func (t Type) Valid() bool {
	switch t {
	case TypeEqual, TypePercentage, TypeItemized:
		return true
	}
	return false
}

// ShareInput represents one participant in an equal or percentage split.
// Slice order is significant for the equal policy: leftover cents go to the
// first included participant, so callers must supply a deterministic order.
type ShareInput struct {
	MemberID   int64            `json:"participant"`
	Percentage *decimal.Decimal `json:"percentage,omitempty"` // percentage policy only
	Included   bool             `json:"is_included"`
}

// Item represents one line of an itemized expense.
type Item struct {
	Title      string      `json:"title"`
	Amount     money.Money `json:"amount"`
	AssigneeID int64       `json:"assignee"`
}

// ShareResult is the computed obligation of a single participant. Amount and
// Percentage are nil for excluded participants.
type ShareResult struct {
	MemberID   int64
	Amount     *money.Money
	Percentage *decimal.Decimal
	Included   bool
}

// Strategy is the interface that all split policies implement. Strategies are
// pure: they know nothing about persistence.
type Strategy interface {
	// Type returns the policy identifier for this strategy
	Type() Type

	// Validate checks if the inputs are valid for this policy
	Validate(amount money.Money, shares []ShareInput, items []Item) error

	// Calculate computes the per-participant obligations
	Calculate(amount money.Money, shares []ShareInput, items []Item) ([]ShareResult, error)
}

// Factory creates split strategies based on the requested policy
type Factory struct{}

// NewFactory creates a new strategy factory
func NewFactory() *Factory {
	return &Factory{}
}

// Create returns the strategy implementation for the given policy
func (f *Factory) Create(t Type) (Strategy, error) {
	switch t {
	case TypeEqual:
		return &EqualStrategy{}, nil
	case TypePercentage:
		return &PercentageStrategy{}, nil
	case TypeItemized:
		return &ItemizedStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown split type: %s", t)
	}
}

var (
	ErrNegativeAmount         = errors.New("expense amount cannot be negative")
	ErrNoIncludedParticipants = errors.New("at least one participant must be included")
	ErrMissingPercentage      = errors.New("percentage required for all included participants")
	ErrPercentageOutOfRange   = errors.New("percentage must be between 0.10 and 100.00")
	ErrPercentageSum          = errors.New("percentages of included participants must sum to 100")
	ErrNoItems                = errors.New("at least one item is required")
	ErrItemAmountNotPositive  = errors.New("item amounts must be positive")
	ErrItemSumMismatch        = errors.New("item amounts must sum to the expense amount")
)
