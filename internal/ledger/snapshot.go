package ledger

import (
	"github.com/google/uuid"

	"conti/internal/core"
)

// GroupSnapshot is a consistent copy of one group's ledger state, taken
// under the group lock. Version pins the state for later Restore calls.
type GroupSnapshot struct {
	GroupID      uuid.UUID
	LastSequence uint64
	Version      uint64
	Applied      []uuid.UUID
	Balances     map[string]map[core.MemberID]int64
}

// Snapshot copies a group's full state.
func (l *Ledger) Snapshot(group uuid.UUID) GroupSnapshot {
	g := l.group(group)
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := GroupSnapshot{
		GroupID:      group,
		LastSequence: g.lastSeq,
		Version:      g.version,
		Applied:      make([]uuid.UUID, 0, len(g.applied)),
		Balances:     make(map[string]map[core.MemberID]int64, len(g.balances)),
	}
	for id := range g.applied {
		snap.Applied = append(snap.Applied, id)
	}
	for currency, balances := range g.balances {
		snap.Balances[currency] = copyBalances(balances)
	}
	return snap
}

// Restore replaces a group's state with a snapshot, but only if the live
// version still equals expectVersion. A concurrent apply in between fails
// the swap with a ConcurrentModificationError; the caller re-reconciles.
// The version is bumped past both states so stale snapshots cannot win a
// later race.
func (l *Ledger) Restore(snap GroupSnapshot, expectVersion uint64) error {
	g := l.group(snap.GroupID)
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.version != expectVersion {
		return &core.ConcurrentModificationError{
			GroupID:         snap.GroupID,
			ExpectedVersion: expectVersion,
			ActualVersion:   g.version,
		}
	}

	g.lastSeq = snap.LastSequence
	g.applied = make(map[uuid.UUID]struct{}, len(snap.Applied))
	for _, id := range snap.Applied {
		g.applied[id] = struct{}{}
	}
	g.balances = make(map[string]map[core.MemberID]int64, len(snap.Balances))
	for currency, balances := range snap.Balances {
		g.balances[currency] = copyBalances(balances)
	}
	if snap.Version > g.version {
		g.version = snap.Version
	}
	g.version++
	return nil
}
