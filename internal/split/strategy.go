package split

import (
	"fmt"

	"conti/internal/core"
)

// Equal divides the amount evenly. The integer-division remainder goes one
// minor unit at a time to the members with the smallest ids, so shares never
// spread by more than one minor unit.
type Equal struct{}

func (Equal) Shares(amount int64, members []core.MemberID) ([]core.ExpenseSplit, error) {
	n := int64(len(members))
	base := amount / n
	shares := make(map[core.MemberID]int64, n)
	for _, m := range members {
		shares[m] = base
	}
	distributeRemainder(shares, members, amount%n)

	splits := make([]core.ExpenseSplit, 0, n)
	for _, m := range members {
		splits = append(splits, core.ExpenseSplit{Member: m, Share: shares[m]})
	}
	return splits, nil
}

// Percentage splits by declared percentages in basis points (one hundredth
// of a percent), which must cover exactly the member list and sum to 10000.
// Shares are truncated toward zero and the rounding residue is distributed
// by the same rule as the equal split.
type Percentage struct {
	BasisPoints map[core.MemberID]int64
}

func (p Percentage) Shares(amount int64, members []core.MemberID) ([]core.ExpenseSplit, error) {
	if len(p.BasisPoints) != len(members) {
		return nil, fmt.Errorf("%w: %d percentages for %d members", ErrMemberParams, len(p.BasisPoints), len(members))
	}
	var total int64
	for _, m := range members {
		bp, ok := p.BasisPoints[m]
		if !ok {
			return nil, fmt.Errorf("%w: no percentage for member %s", ErrMemberParams, m)
		}
		if bp < 0 {
			return nil, fmt.Errorf("%w: negative percentage for member %s", core.ErrValidation, m)
		}
		total += bp
	}
	if total != basisPointsPerCent {
		return nil, fmt.Errorf("%w: got %s", ErrPercentSum, FormatBasisPoints(total))
	}

	shares := make(map[core.MemberID]int64, len(members))
	var allocated int64
	for _, m := range members {
		share := amount * p.BasisPoints[m] / basisPointsPerCent
		shares[m] = share
		allocated += share
	}
	// Truncation under-allocates by less than one unit per member.
	distributeRemainder(shares, members, amount-allocated)

	splits := make([]core.ExpenseSplit, 0, len(members))
	for _, m := range members {
		splits = append(splits, core.ExpenseSplit{Member: m, Share: shares[m], PercentBP: p.BasisPoints[m]})
	}
	return splits, nil
}

// Exact uses caller-supplied shares verbatim. The shares must cover exactly
// the member list and sum to the amount; nothing is auto-corrected.
type Exact struct {
	Amounts map[core.MemberID]int64
}

func (e Exact) Shares(amount int64, members []core.MemberID) ([]core.ExpenseSplit, error) {
	if len(e.Amounts) != len(members) {
		return nil, fmt.Errorf("%w: %d shares for %d members", ErrMemberParams, len(e.Amounts), len(members))
	}
	var sum int64
	splits := make([]core.ExpenseSplit, 0, len(members))
	for _, m := range members {
		share, ok := e.Amounts[m]
		if !ok {
			return nil, fmt.Errorf("%w: no share for member %s", ErrMemberParams, m)
		}
		if share < 0 {
			return nil, core.ErrNegativeShare
		}
		sum += share
		splits = append(splits, core.ExpenseSplit{Member: m, Share: share})
	}
	if sum != amount {
		return nil, fmt.Errorf("%w: shares sum to %d, expense amount is %d", ErrExactSum, sum, amount)
	}
	return splits, nil
}
