// Package split computes per-member shares for a single expense.
//
// Every strategy preserves the expense total exactly: the shares it returns
// always sum to the input amount in minor units. Rounding residue is handed
// out one minor unit at a time to members sorted by id, so the result is
// deterministic for a given input regardless of member order.
package split

import (
	"fmt"

	"conti/internal/core"
)

var (
	ErrNoMembers    = fmt.Errorf("%w: no members to split between", core.ErrValidation)
	ErrPercentSum   = fmt.Errorf("%w: percentages do not sum to 100.00", core.ErrValidation)
	ErrExactSum     = fmt.Errorf("%w: exact shares do not sum to expense amount", core.ErrValidation)
	ErrMemberParams = fmt.Errorf("%w: strategy parameters do not match member list", core.ErrValidation)
)

// Strategy turns an expense total into per-member shares. Implementations
// are pure and must uphold sum(shares) == amount; Compute validates the
// common preconditions before delegating.
type Strategy interface {
	Shares(amount int64, members []core.MemberID) ([]core.ExpenseSplit, error)
}

// Compute validates the expense-level input and applies the strategy.
// It returns no partial result on any error.
func Compute(amount int64, currency string, members []core.MemberID, strategy Strategy) ([]core.ExpenseSplit, error) {
	if amount <= 0 {
		return nil, core.ErrAmountNotPositive
	}
	if currency == "" {
		return nil, core.ErrEmptyCurrency
	}
	if len(members) == 0 {
		return nil, ErrNoMembers
	}
	seen := make(map[core.MemberID]struct{}, len(members))
	for _, m := range members {
		if m == "" {
			return nil, core.ErrEmptyMember
		}
		if _, dup := seen[m]; dup {
			return nil, fmt.Errorf("%w: %s", core.ErrDuplicateMember, m)
		}
		seen[m] = struct{}{}
	}
	if strategy == nil {
		return nil, fmt.Errorf("%w: no split strategy", core.ErrValidation)
	}

	splits, err := strategy.Shares(amount, members)
	if err != nil {
		return nil, err
	}

	// Strategies own the arithmetic; this guard is the last line of
	// defense for the ledger's zero-sum invariant.
	var sum int64
	for _, s := range splits {
		sum += s.Share
	}
	if sum != amount {
		return nil, fmt.Errorf("%w: strategy produced %d for amount %d", core.ErrSplitSum, sum, amount)
	}
	return splits, nil
}

// distributeRemainder adds one minor unit to the shares of the first
// remainder members in id order. shares is keyed by member; remainder must
// satisfy 0 <= remainder < len(members).
func distributeRemainder(shares map[core.MemberID]int64, members []core.MemberID, remainder int64) {
	for _, m := range core.SortMembers(members) {
		if remainder == 0 {
			return
		}
		shares[m]++
		remainder--
	}
}
