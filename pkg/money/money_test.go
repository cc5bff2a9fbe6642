package money

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
)

func TestFromString(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantCents int64
		wantErr   bool
	}{
		{name: "plain amount", input: "12.50", wantCents: 1250},
		{name: "whole number", input: "100", wantCents: 10000},
		{name: "single decimal", input: "0.5", wantCents: 50},
		{name: "zero", input: "0", wantCents: 0},
		{name: "negative", input: "-3.25", wantCents: -325},
		{name: "too precise", input: "1.005", wantErr: true},
		{name: "not a number", input: "abc", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := FromString(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("FromString(%q) expected error, got %v", tt.input, m)
				}
				return
			}
			if err != nil {
				t.Fatalf("FromString(%q) unexpected error: %v", tt.input, err)
			}
			if m.Cents() != tt.wantCents {
				t.Errorf("FromString(%q).Cents() = %d, want %d", tt.input, m.Cents(), tt.wantCents)
			}
		})
	}
}

func TestSplitEven(t *testing.T) {
	tests := []struct {
		name         string
		amount       string
		n            int
		wantBase     int64
		wantLeftover int64
	}{
		{name: "exact division", amount: "90.00", n: 3, wantBase: 3000, wantLeftover: 0},
		{name: "one leftover cent", amount: "100.00", n: 3, wantBase: 3333, wantLeftover: 1},
		{name: "two leftover cents", amount: "0.05", n: 3, wantBase: 1, wantLeftover: 2},
		{name: "single participant", amount: "33.33", n: 1, wantBase: 3333, wantLeftover: 0},
		{name: "zero participants", amount: "10.00", n: 0, wantBase: 0, wantLeftover: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, leftover := MustParse(tt.amount).SplitEven(tt.n)
			if base.Cents() != tt.wantBase {
				t.Errorf("base = %d cents, want %d", base.Cents(), tt.wantBase)
			}
			if leftover != tt.wantLeftover {
				t.Errorf("leftover = %d, want %d", leftover, tt.wantLeftover)
			}
		})
	}
}

func TestSplitEvenSumsBack(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		amount := FromCents(rng.Int63n(1_000_000))
		n := 1 + rng.Intn(10)

		base, leftover := amount.SplitEven(n)
		if leftover < 0 || leftover >= int64(n) {
			t.Fatalf("leftover %d out of range for n=%d", leftover, n)
		}

		total := FromCents(leftover)
		for j := 0; j < n; j++ {
			total = total.Add(base)
		}
		if !total.Equal(amount) {
			t.Fatalf("shares of %s over %d sum to %s", amount, n, total)
		}
	}
}

func TestMulPercent(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		pct    string
		want   string
	}{
		{name: "half", amount: "100.00", pct: "50.00", want: "50.00"},
		{name: "third rounds half up", amount: "100.00", pct: "33.33", want: "33.33"},
		{name: "rounding boundary", amount: "0.01", pct: "50.00", want: "0.01"},
		{name: "full", amount: "42.42", pct: "100.00", want: "42.42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pct, err := decimal.NewFromString(tt.pct)
			if err != nil {
				t.Fatal(err)
			}
			got := MustParse(tt.amount).MulPercent(pct)
			if got.String() != tt.want {
				t.Errorf("%s * %s%% = %s, want %s", tt.amount, tt.pct, got, tt.want)
			}
		})
	}
}

func TestJSONRoundTrip(t *testing.T) {
	m := MustParse("12.50")
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"12.50"` {
		t.Errorf("marshal = %s, want \"12.50\"", data)
	}

	var back Money
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !back.Equal(m) {
		t.Errorf("round trip = %s, want %s", back, m)
	}

	// Bare numbers are accepted too.
	if err := json.Unmarshal([]byte(`7.25`), &back); err != nil {
		t.Fatal(err)
	}
	if back.Cents() != 725 {
		t.Errorf("bare number = %d cents, want 725", back.Cents())
	}
}

func TestComparisons(t *testing.T) {
	a := MustParse("0.49")
	if !a.LessThan(MinExpenseAmount) {
		t.Error("0.49 should be below the expense minimum")
	}
	if MinExpenseAmount.LessThan(MinExpenseAmount) {
		t.Error("minimum is not below itself")
	}
	if MustParse("-1.00").IsNegative() != true {
		t.Error("-1.00 should be negative")
	}
}
