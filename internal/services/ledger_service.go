// Package services wires the core algorithms to their collaborators: the
// event store below and the transports above.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"conti/internal/core"
	"conti/internal/eventstore"
	"conti/internal/ledger"
	"conti/internal/log"
	"conti/internal/reconcile"
	"conti/internal/settle"
	"conti/internal/split"
)

// ApplyOutcome tells the caller what ApplyEvent did.
type ApplyOutcome string

const (
	OutcomeApplied   ApplyOutcome = "applied"
	OutcomeDuplicate ApplyOutcome = "duplicate"
)

// LedgerService is the operation surface exposed to transports. It owns the
// persist-then-apply discipline: an event reaches the live ledger only after
// the store accepted it, so a crash between the two is recoverable by
// replay.
type LedgerService struct {
	store   eventstore.Store
	ledger  *ledger.Ledger
	planner settle.Planner
	rec     *reconcile.Reconciler
}

func NewLedgerService(store eventstore.Store, lgr *ledger.Ledger, planner settle.Planner) *LedgerService {
	if planner == nil {
		planner = settle.Greedy{}
	}
	return &LedgerService{
		store:   store,
		ledger:  lgr,
		planner: planner,
		rec:     reconcile.New(store, lgr),
	}
}

// ComputeSplits validates the input and computes per-member shares. Pure;
// nothing is persisted.
func (s *LedgerService) ComputeSplits(amount int64, currency string, members []core.MemberID, strategy split.Strategy) ([]core.ExpenseSplit, error) {
	return split.Compute(amount, currency, members, strategy)
}

// ApplyEvent persists the event and folds it into the live ledger.
//
// A store-level duplicate is not a failure: the event may have been stored
// by an earlier delivery that crashed before the ledger apply, so the apply
// still runs and the ledger's own idempotency decides the outcome.
func (s *LedgerService) ApplyEvent(ctx context.Context, ev core.Event) (ApplyOutcome, error) {
	if err := ev.Validate(); err != nil {
		return "", err
	}

	// A gapped sequence is rejected before it reaches storage. A persisted
	// gap would be unrecoverable: every later rebuild of the group replays
	// the history in order and dies at the missing sequence, so repair
	// could never converge.
	if last := s.ledger.LastSequence(ev.GroupID); ev.Sequence > last+1 {
		return "", &core.OutOfOrderError{GroupID: ev.GroupID, LastSequence: last, Got: ev.Sequence}
	}

	if err := s.store.AppendEvent(ctx, ev); err != nil {
		if errors.Is(err, eventstore.ErrEventExists) {
			slog.DebugContext(ctx, "Event already stored, re-running ledger apply",
				log.FieldEventID, ev.ID, log.FieldGroupID, ev.GroupID)
		} else {
			return "", fmt.Errorf("store event: %w", err)
		}
	}

	res, err := s.ledger.Apply(ev)
	if err != nil {
		return "", err
	}
	if res == ledger.Duplicate {
		return OutcomeDuplicate, nil
	}

	slog.InfoContext(ctx, "Event applied",
		log.FieldEventID, ev.ID,
		log.FieldGroupID, ev.GroupID,
		log.FieldSequence, ev.Sequence,
		log.FieldEventType, ev.Type)
	return OutcomeApplied, nil
}

// GetBalances returns a copy of one group/currency balance table.
func (s *LedgerService) GetBalances(group uuid.UUID, currency string) map[core.MemberID]int64 {
	return s.ledger.Balances(group, currency)
}

// GetBalance returns one member's net amount, zero when unknown.
func (s *LedgerService) GetBalance(group uuid.UUID, currency string, member core.MemberID) int64 {
	return s.ledger.Balance(group, currency, member)
}

// PlanSettlement computes the payments that zero the group's balances in
// one currency. Read-only; executing the plan means recording settlement
// events through ApplyEvent.
func (s *LedgerService) PlanSettlement(group uuid.UUID, currency string) ([]settle.Transaction, error) {
	return s.planner.Plan(s.ledger.Balances(group, currency))
}

// Reconcile rebuilds the group from the event history and reports drift
// against the live ledger without touching it.
func (s *LedgerService) Reconcile(ctx context.Context, group uuid.UUID) (reconcile.Report, error) {
	return s.rec.Reconcile(ctx, group)
}

// Repair reconciles and installs the rebuilt state when drift was found.
func (s *LedgerService) Repair(ctx context.Context, group uuid.UUID) (reconcile.Report, error) {
	return s.rec.Repair(ctx, group)
}

// Ledger exposes the underlying ledger for read helpers (currencies,
// sequences) used by the worker and the audit command.
func (s *LedgerService) Ledger() *ledger.Ledger { return s.ledger }

// Close releases the store.
func (s *LedgerService) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return fmt.Errorf("close event store: %w", err)
		}
	}
	return nil
}
