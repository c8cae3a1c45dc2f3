package split

import (
	"errors"
	"testing"

	"conti/internal/core"
)

func shareMap(t *testing.T, splits []core.ExpenseSplit) map[core.MemberID]int64 {
	t.Helper()
	out := make(map[core.MemberID]int64, len(splits))
	for _, s := range splits {
		out[s.Member] = s.Share
	}
	return out
}

func TestEqualSplit(t *testing.T) {
	tests := []struct {
		name    string
		amount  int64
		members []core.MemberID
		want    map[core.MemberID]int64
	}{
		{
			name:    "no remainder",
			amount:  300,
			members: []core.MemberID{"a", "b", "c"},
			want:    map[core.MemberID]int64{"a": 100, "b": 100, "c": 100},
		},
		{
			name:    "remainder to smallest ids",
			amount:  100,
			members: []core.MemberID{"c", "a", "b"},
			want:    map[core.MemberID]int64{"a": 34, "b": 33, "c": 33},
		},
		{
			name:    "two units of remainder",
			amount:  101,
			members: []core.MemberID{"b", "c", "a"},
			want:    map[core.MemberID]int64{"a": 34, "b": 34, "c": 33},
		},
		{
			name:    "single member takes everything",
			amount:  77,
			members: []core.MemberID{"solo"},
			want:    map[core.MemberID]int64{"solo": 77},
		},
		{
			name:    "amount smaller than member count",
			amount:  2,
			members: []core.MemberID{"d", "b", "a", "c"},
			want:    map[core.MemberID]int64{"a": 1, "b": 1, "c": 0, "d": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			splits, err := Compute(tt.amount, "EUR", tt.members, Equal{})
			if err != nil {
				t.Fatalf("Compute() error = %v", err)
			}
			got := shareMap(t, splits)
			var sum int64
			for m, want := range tt.want {
				if got[m] != want {
					t.Errorf("share[%s] = %d, want %d", m, got[m], want)
				}
				sum += got[m]
			}
			if sum != tt.amount {
				t.Errorf("shares sum to %d, want %d", sum, tt.amount)
			}
		})
	}
}

func TestEqualSplitFairness(t *testing.T) {
	// Every share must be floor(A/n) or floor(A/n)+1, whatever A and n.
	members := []core.MemberID{"e", "a", "d", "b", "c", "g", "f"}
	for amount := int64(1); amount <= 500; amount++ {
		splits, err := Compute(amount, "EUR", members, Equal{})
		if err != nil {
			t.Fatalf("amount %d: %v", amount, err)
		}
		base := amount / int64(len(members))
		var sum int64
		for _, s := range splits {
			if s.Share != base && s.Share != base+1 {
				t.Fatalf("amount %d: share %d outside [%d, %d]", amount, s.Share, base, base+1)
			}
			sum += s.Share
		}
		if sum != amount {
			t.Fatalf("amount %d: shares sum to %d", amount, sum)
		}
	}
}

func TestPercentageSplit(t *testing.T) {
	tests := []struct {
		name    string
		amount  int64
		members []core.MemberID
		bps     map[core.MemberID]int64
		want    map[core.MemberID]int64
		wantErr error
	}{
		{
			name:    "thirds with explicit 34",
			amount:  1000,
			members: []core.MemberID{"a", "b", "c"},
			bps:     map[core.MemberID]int64{"a": 3300, "b": 3300, "c": 3400},
			want:    map[core.MemberID]int64{"a": 330, "b": 330, "c": 340},
		},
		{
			name:    "rounding residue to smallest id",
			amount:  100,
			members: []core.MemberID{"a", "b", "c"},
			bps:     map[core.MemberID]int64{"a": 3333, "b": 3333, "c": 3334},
			want:    map[core.MemberID]int64{"a": 34, "b": 33, "c": 33},
		},
		{
			name:    "zero percent member",
			amount:  500,
			members: []core.MemberID{"a", "b"},
			bps:     map[core.MemberID]int64{"a": 10000, "b": 0},
			want:    map[core.MemberID]int64{"a": 500, "b": 0},
		},
		{
			name:    "sum below 100",
			amount:  1000,
			members: []core.MemberID{"a", "b"},
			bps:     map[core.MemberID]int64{"a": 5000, "b": 4900},
			wantErr: ErrPercentSum,
		},
		{
			name:    "sum above 100",
			amount:  1000,
			members: []core.MemberID{"a", "b"},
			bps:     map[core.MemberID]int64{"a": 5000, "b": 5100},
			wantErr: ErrPercentSum,
		},
		{
			name:    "missing member percentage",
			amount:  1000,
			members: []core.MemberID{"a", "b"},
			bps:     map[core.MemberID]int64{"a": 10000},
			wantErr: ErrMemberParams,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			splits, err := Compute(tt.amount, "EUR", tt.members, Percentage{BasisPoints: tt.bps})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Compute() error = %v, want %v", err, tt.wantErr)
				}
				if splits != nil {
					t.Fatalf("Compute() returned partial result on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Compute() error = %v", err)
			}
			got := shareMap(t, splits)
			var sum int64
			for m, want := range tt.want {
				if got[m] != want {
					t.Errorf("share[%s] = %d, want %d", m, got[m], want)
				}
				sum += got[m]
			}
			if sum != tt.amount {
				t.Errorf("shares sum to %d, want %d", sum, tt.amount)
			}
		})
	}
}

func TestPercentageSplitPreservesTotal(t *testing.T) {
	// Awkward percentages across a range of amounts never lose a unit.
	members := []core.MemberID{"a", "b", "c"}
	bps := map[core.MemberID]int64{"a": 3333, "b": 3333, "c": 3334}
	for amount := int64(1); amount <= 1000; amount++ {
		splits, err := Compute(amount, "EUR", members, Percentage{BasisPoints: bps})
		if err != nil {
			t.Fatalf("amount %d: %v", amount, err)
		}
		var sum int64
		for _, s := range splits {
			if s.Share < 0 {
				t.Fatalf("amount %d: negative share %d", amount, s.Share)
			}
			sum += s.Share
		}
		if sum != amount {
			t.Fatalf("amount %d: shares sum to %d", amount, sum)
		}
	}
}

func TestExactSplit(t *testing.T) {
	tests := []struct {
		name    string
		amount  int64
		members []core.MemberID
		amounts map[core.MemberID]int64
		wantErr error
	}{
		{
			name:    "matching sum",
			amount:  100,
			members: []core.MemberID{"a", "b"},
			amounts: map[core.MemberID]int64{"a": 60, "b": 40},
		},
		{
			name:    "zero share allowed",
			amount:  100,
			members: []core.MemberID{"a", "b"},
			amounts: map[core.MemberID]int64{"a": 100, "b": 0},
		},
		{
			name:    "sum mismatch",
			amount:  100,
			members: []core.MemberID{"a", "b"},
			amounts: map[core.MemberID]int64{"a": 60, "b": 39},
			wantErr: ErrExactSum,
		},
		{
			name:    "negative share",
			amount:  100,
			members: []core.MemberID{"a", "b"},
			amounts: map[core.MemberID]int64{"a": 150, "b": -50},
			wantErr: core.ErrNegativeShare,
		},
		{
			name:    "missing member share",
			amount:  100,
			members: []core.MemberID{"a", "b"},
			amounts: map[core.MemberID]int64{"a": 100},
			wantErr: ErrMemberParams,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			splits, err := Compute(tt.amount, "EUR", tt.members, Exact{Amounts: tt.amounts})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Compute() error = %v, want %v", err, tt.wantErr)
				}
				if splits != nil {
					t.Fatalf("Compute() returned partial result on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Compute() error = %v", err)
			}
			for _, s := range splits {
				if s.Share != tt.amounts[s.Member] {
					t.Errorf("share[%s] = %d, want %d", s.Member, s.Share, tt.amounts[s.Member])
				}
			}
		})
	}
}

func TestComputeValidation(t *testing.T) {
	tests := []struct {
		name    string
		amount  int64
		members []core.MemberID
		wantErr error
	}{
		{"zero amount", 0, []core.MemberID{"a"}, core.ErrAmountNotPositive},
		{"negative amount", -5, []core.MemberID{"a"}, core.ErrAmountNotPositive},
		{"no members", 100, nil, ErrNoMembers},
		{"duplicate member", 100, []core.MemberID{"a", "b", "a"}, core.ErrDuplicateMember},
		{"empty member id", 100, []core.MemberID{"a", ""}, core.ErrEmptyMember},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Compute(tt.amount, "EUR", tt.members, Equal{}); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Compute() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := Compute(100, "", []core.MemberID{"a"}, Equal{}); !errors.Is(err, core.ErrEmptyCurrency) {
		t.Fatalf("Compute() with empty currency: error = %v, want %v", err, core.ErrEmptyCurrency)
	}
}

func TestParsePercent(t *testing.T) {
	tests := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"33.33", 3333, true},
		{"100", 10000, true},
		{"0", 0, true},
		{"0.01", 1, true},
		{"50.5", 5050, true},
		{"33.333", 0, false}, // three decimals
		{"-1", 0, false},
		{"100.01", 0, false},
		{"abc", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, err := ParsePercent(tt.in)
		if tt.ok {
			if err != nil || got != tt.out {
				t.Errorf("ParsePercent(%q) = %d, %v, want %d", tt.in, got, err, tt.out)
			}
		} else if err == nil {
			t.Errorf("ParsePercent(%q) expected error", tt.in)
		}
	}
}
