// Package eventstore persists the financial event history and balance
// snapshots behind a backend-agnostic contract.
//
// The ledger and reconciler only ever see the Store interface; which engine
// sits behind it is the binaries' concern. Two backends ship: an in-memory
// store for tests and ephemeral runs, and a sqlite store for durable local
// state.
package eventstore

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"conti/internal/core"
)

var (
	// ErrEventExists means an event with the same id was appended before.
	// Append is idempotent from the caller's point of view.
	ErrEventExists = errors.New("event already stored")

	// ErrSequenceConflict means another event already holds the
	// group/sequence slot. Two writers raced; the caller must reload.
	ErrSequenceConflict = errors.New("sequence already taken for group")

	// ErrNoSnapshot means no balance snapshot was saved for the key.
	ErrNoSnapshot = errors.New("no balance snapshot")
)

// Snapshot is a persisted balance table for one group/currency, stamped
// with the ledger version it was taken at.
type Snapshot struct {
	Balances map[core.MemberID]int64
	Version  uint64
}

// Store is the persistence contract the core depends on.
type Store interface {
	// AppendEvent stores one event. The event id must be new and the
	// sequence must be free within the group.
	AppendEvent(ctx context.Context, ev core.Event) error

	// LoadEvents returns a group's events with sequence >= fromSeq, in
	// ascending sequence order. fromSeq 0 loads the full history.
	LoadEvents(ctx context.Context, group uuid.UUID, fromSeq uint64) ([]core.Event, error)

	// SaveBalanceSnapshot overwrites the snapshot for one group/currency.
	SaveBalanceSnapshot(ctx context.Context, group uuid.UUID, currency string, snap Snapshot) error

	// LoadBalanceSnapshot returns the stored snapshot or ErrNoSnapshot.
	LoadBalanceSnapshot(ctx context.Context, group uuid.UUID, currency string) (Snapshot, error)

	// Groups lists every group with at least one stored event.
	Groups(ctx context.Context) ([]uuid.UUID, error)

	Close() error
}
