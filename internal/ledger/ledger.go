// Package ledger maintains per-group, per-currency member balances as an
// incremental fold over the financial event history.
//
// Positive balance: the member is owed money. Negative: the member owes.
// After every successful apply the balances of one group/currency sum to
// zero; an apply that would break that is rejected wholesale.
package ledger

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"conti/internal/core"
)

// ApplyResult reports what an Apply call did.
type ApplyResult int

const (
	// Applied means the event mutated the ledger.
	Applied ApplyResult = iota
	// Duplicate means the event id was seen before; the ledger was left
	// untouched. Collaborators retry deliveries, so this is routine.
	Duplicate
)

func (r ApplyResult) String() string {
	if r == Duplicate {
		return "duplicate"
	}
	return "applied"
}

type groupState struct {
	mu sync.Mutex

	lastSeq uint64
	applied map[uuid.UUID]struct{}
	// balances by currency, then member. Members stay in the map once
	// referenced, even at zero.
	balances map[string]map[core.MemberID]int64
	version  uint64
}

// Ledger is safe for concurrent use. Applies to the same group serialize on
// that group's lock; applies to different groups do not contend.
type Ledger struct {
	mu     sync.RWMutex
	groups map[uuid.UUID]*groupState
}

func New() *Ledger {
	return &Ledger{groups: make(map[uuid.UUID]*groupState)}
}

func (l *Ledger) group(id uuid.UUID) *groupState {
	l.mu.RLock()
	g, ok := l.groups[id]
	l.mu.RUnlock()
	if ok {
		return g
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if g, ok = l.groups[id]; !ok {
		g = &groupState{
			applied:  make(map[uuid.UUID]struct{}),
			balances: make(map[string]map[core.MemberID]int64),
		}
		l.groups[id] = g
	}
	return g
}

// Apply folds one event into the ledger.
//
// A redelivered event id is a no-op returning Duplicate. A sequence gap or
// regression returns an OutOfOrderError and the caller must reconcile. An
// event whose effect would leave a currency's balances summing to nonzero
// returns an InvariantViolationError with prior state intact.
func (l *Ledger) Apply(ev core.Event) (ApplyResult, error) {
	if err := ev.Validate(); err != nil {
		return 0, err
	}

	g := l.group(ev.GroupID)
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, seen := g.applied[ev.ID]; seen {
		return Duplicate, nil
	}
	if ev.Sequence != g.lastSeq+1 {
		return 0, &core.OutOfOrderError{GroupID: ev.GroupID, LastSequence: g.lastSeq, Got: ev.Sequence}
	}

	deltas, err := eventDeltas(ev)
	if err != nil {
		return 0, err
	}

	// Stage the affected currencies, verify the invariant, then commit.
	staged := make(map[string]map[core.MemberID]int64, len(deltas))
	for currency, delta := range deltas {
		next := copyBalances(g.balances[currency])
		var sum int64
		for member, d := range delta {
			next[member] += d
		}
		for _, amount := range next {
			sum += amount
		}
		if sum != 0 {
			return 0, &core.InvariantViolationError{GroupID: ev.GroupID, Currency: currency, Sum: sum}
		}
		staged[currency] = next
	}

	for currency, next := range staged {
		g.balances[currency] = next
	}
	g.applied[ev.ID] = struct{}{}
	g.lastSeq = ev.Sequence
	g.version++
	return Applied, nil
}

// eventDeltas translates an event into balance deltas per currency. An
// update compensates: the old expense is subtracted, the new one added,
// covering currency changes between the two versions.
func eventDeltas(ev core.Event) (map[string]map[core.MemberID]int64, error) {
	deltas := make(map[string]map[core.MemberID]int64, 2)
	add := func(currency string, member core.MemberID, amount int64) {
		if deltas[currency] == nil {
			deltas[currency] = make(map[core.MemberID]int64)
		}
		deltas[currency][member] += amount
	}
	expense := func(e *core.Expense, sign int64) {
		add(e.Currency, e.PaidBy, sign*e.Amount)
		for _, s := range e.Splits {
			add(e.Currency, s.Member, -sign*s.Share)
		}
	}

	switch ev.Type {
	case core.EventExpenseCreated:
		expense(ev.Expense, 1)
	case core.EventExpenseDeleted:
		expense(ev.Expense, -1)
	case core.EventExpenseUpdated:
		expense(ev.Previous, -1)
		expense(ev.Expense, 1)
	case core.EventSettlementRecorded:
		s := ev.Settlement
		add(s.Currency, s.From, s.Amount)
		add(s.Currency, s.To, -s.Amount)
	default:
		return nil, fmt.Errorf("%w: unknown event type %q", core.ErrValidation, ev.Type)
	}
	return deltas, nil
}

func copyBalances(src map[core.MemberID]int64) map[core.MemberID]int64 {
	dst := make(map[core.MemberID]int64, len(src))
	for m, a := range src {
		dst[m] = a
	}
	return dst
}

// Balances returns a copy of one group/currency balance table. Unknown
// groups and currencies yield an empty map.
func (l *Ledger) Balances(group uuid.UUID, currency string) map[core.MemberID]int64 {
	g := l.group(group)
	g.mu.Lock()
	defer g.mu.Unlock()
	return copyBalances(g.balances[currency])
}

// Balance returns one member's net amount; zero for unknown members.
func (l *Ledger) Balance(group uuid.UUID, currency string, member core.MemberID) int64 {
	g := l.group(group)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balances[currency][member]
}

// Currencies returns the currencies referenced by a group, sorted order not
// guaranteed.
func (l *Ledger) Currencies(group uuid.UUID) []string {
	g := l.group(group)
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.balances))
	for c := range g.balances {
		out = append(out, c)
	}
	return out
}

// Groups returns every group id the ledger has seen.
func (l *Ledger) Groups() []uuid.UUID {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(l.groups))
	for id := range l.groups {
		out = append(out, id)
	}
	return out
}

// LastSequence returns the highest applied sequence for a group, zero when
// the group is unknown.
func (l *Ledger) LastSequence(group uuid.UUID) uint64 {
	g := l.group(group)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastSeq
}

// Version returns the group's mutation counter. It increments exactly once
// per applied (non-duplicate) event and anchors optimistic state swaps.
func (l *Ledger) Version(group uuid.UUID) uint64 {
	g := l.group(group)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.version
}
