package eventstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"conti/internal/core"
)

// Memory is an in-memory Store. State is lost on exit; the worker replays
// the history from a durable backend instead when one is configured.
type Memory struct {
	mu        sync.RWMutex
	events    map[uuid.UUID][]core.Event // per group, sorted by sequence
	byID      map[uuid.UUID]struct{}
	snapshots map[snapshotKey]Snapshot
}

type snapshotKey struct {
	group    uuid.UUID
	currency string
}

func NewMemory() *Memory {
	return &Memory{
		events:    make(map[uuid.UUID][]core.Event),
		byID:      make(map[uuid.UUID]struct{}),
		snapshots: make(map[snapshotKey]Snapshot),
	}
}

func (m *Memory) AppendEvent(_ context.Context, ev core.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[ev.ID]; ok {
		return fmt.Errorf("%w: %s", ErrEventExists, ev.ID)
	}
	history := m.events[ev.GroupID]
	idx := sort.Search(len(history), func(i int) bool { return history[i].Sequence >= ev.Sequence })
	if idx < len(history) && history[idx].Sequence == ev.Sequence {
		return fmt.Errorf("%w: group %s sequence %d", ErrSequenceConflict, ev.GroupID, ev.Sequence)
	}

	history = append(history, core.Event{})
	copy(history[idx+1:], history[idx:])
	history[idx] = ev
	m.events[ev.GroupID] = history
	m.byID[ev.ID] = struct{}{}
	return nil
}

func (m *Memory) LoadEvents(_ context.Context, group uuid.UUID, fromSeq uint64) ([]core.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.events[group]
	idx := sort.Search(len(history), func(i int) bool { return history[i].Sequence >= fromSeq })
	out := make([]core.Event, len(history)-idx)
	copy(out, history[idx:])
	return out, nil
}

func (m *Memory) SaveBalanceSnapshot(_ context.Context, group uuid.UUID, currency string, snap Snapshot) error {
	balances := make(map[core.MemberID]int64, len(snap.Balances))
	for member, amount := range snap.Balances {
		balances[member] = amount
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snapshotKey{group, currency}] = Snapshot{Balances: balances, Version: snap.Version}
	return nil
}

func (m *Memory) LoadBalanceSnapshot(_ context.Context, group uuid.UUID, currency string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.snapshots[snapshotKey{group, currency}]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: group %s currency %s", ErrNoSnapshot, group, currency)
	}
	balances := make(map[core.MemberID]int64, len(snap.Balances))
	for member, amount := range snap.Balances {
		balances[member] = amount
	}
	return Snapshot{Balances: balances, Version: snap.Version}, nil
}

func (m *Memory) Groups(_ context.Context) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]uuid.UUID, 0, len(m.events))
	for group := range m.events {
		out = append(out, group)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (m *Memory) Close() error { return nil }
