// Package core holds the domain types shared by the splitting, ledger,
// settlement and reconciliation packages: members, groups, expenses,
// settlements and the event union that drives balance updates.
//
// All monetary amounts are integer minor units (cents). This is what makes
// the sum-preservation invariants exact instead of approximate; no float64
// ever touches money in this module.
package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

type (
	// MemberID is an opaque member identifier issued by the identity
	// collaborator. It is comparable and totally ordered; remainder
	// distribution and settlement tie-breaking sort on it.
	MemberID string

	Group struct {
		ID      uuid.UUID
		Name    string
		Members []MemberID
	}

	// Expense is a cost paid by one member and shared among the split
	// members. Immutable once accepted; changes arrive as update/delete
	// events carrying full payloads.
	Expense struct {
		ID       uuid.UUID
		GroupID  uuid.UUID
		Amount   int64 // minor units, positive
		Currency string
		PaidBy   MemberID
		Splits   []ExpenseSplit
	}

	// ExpenseSplit is one member's share of an expense. PercentBP keeps the
	// declared percentage (basis points) when the percentage strategy
	// produced the share, zero otherwise.
	ExpenseSplit struct {
		Member    MemberID
		Share     int64 // minor units, never negative
		PercentBP int64
	}

	// Settlement records a real-world payment between two members. Same
	// shape as a planned transaction, but it is an input event.
	Settlement struct {
		ID       uuid.UUID
		GroupID  uuid.UUID
		Currency string
		From     MemberID // payer
		To       MemberID // payee
		Amount   int64    // minor units, positive
	}

	// Balance is one member's net position within a group and currency.
	// Positive means the member is owed money, negative means they owe.
	Balance struct {
		Member MemberID
		Amount int64
	}
)

var (
	ErrEmptyCurrency     = fmt.Errorf("%w: empty currency code", ErrValidation)
	ErrEmptyMember       = fmt.Errorf("%w: empty member id", ErrValidation)
	ErrAmountNotPositive = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrNegativeShare     = fmt.Errorf("%w: share must not be negative", ErrValidation)
	ErrDuplicateMember   = fmt.Errorf("%w: duplicate member", ErrValidation)
	ErrSplitSum          = fmt.Errorf("%w: splits do not sum to expense amount", ErrValidation)
	ErrSelfSettlement    = fmt.Errorf("%w: settlement payer and payee are the same member", ErrValidation)
)

func validCurrency(c string) error {
	if strings.TrimSpace(c) == "" {
		return ErrEmptyCurrency
	}
	return nil
}

func (e Expense) Validate() error {
	if e.ID == uuid.Nil {
		return fmt.Errorf("%w: expense id is nil", ErrValidation)
	}
	if e.Amount <= 0 {
		return ErrAmountNotPositive
	}
	if err := validCurrency(e.Currency); err != nil {
		return err
	}
	if e.PaidBy == "" {
		return ErrEmptyMember
	}
	if len(e.Splits) == 0 {
		return fmt.Errorf("%w: expense has no splits", ErrValidation)
	}
	seen := make(map[MemberID]struct{}, len(e.Splits))
	var sum int64
	for _, s := range e.Splits {
		if s.Member == "" {
			return ErrEmptyMember
		}
		if s.Share < 0 {
			return ErrNegativeShare
		}
		if _, dup := seen[s.Member]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateMember, s.Member)
		}
		seen[s.Member] = struct{}{}
		sum += s.Share
	}
	if sum != e.Amount {
		return fmt.Errorf("%w: got %d, expense amount %d", ErrSplitSum, sum, e.Amount)
	}
	return nil
}

func (s Settlement) Validate() error {
	if s.ID == uuid.Nil {
		return fmt.Errorf("%w: settlement id is nil", ErrValidation)
	}
	if s.Amount <= 0 {
		return ErrAmountNotPositive
	}
	if err := validCurrency(s.Currency); err != nil {
		return err
	}
	if s.From == "" || s.To == "" {
		return ErrEmptyMember
	}
	if s.From == s.To {
		return ErrSelfSettlement
	}
	return nil
}

// SortMembers returns the ids sorted ascending. The deterministic order is
// load-bearing: remainder minor units and settlement tie-breaks follow it.
func SortMembers(members []MemberID) []MemberID {
	sorted := make([]MemberID, len(members))
	copy(sorted, members)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted
}
