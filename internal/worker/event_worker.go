// Package worker runs the event intake and the periodic drift sweep around
// the ledger service.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"conti/internal/core"
	"conti/internal/eventstore"
	"conti/internal/log"
	"conti/internal/services"
)

// EventWorker glues the AMQP consumer to the ledger service and keeps the
// live ledger honest against the stored history.
type EventWorker struct {
	svc      *services.LedgerService
	store    eventstore.Store
	parallel int
}

func NewEventWorker(svc *services.LedgerService, store eventstore.Store, parallel int) *EventWorker {
	if parallel < 1 {
		parallel = 1
	}
	return &EventWorker{svc: svc, store: store, parallel: parallel}
}

// HandleEvent is the AMQP consume callback. An out-of-order event usually
// means this instance missed deliveries, so it repairs the group from the
// stored history and retries once; if the event is still ahead of the
// repaired state the error propagates and the delivery is requeued.
func (w *EventWorker) HandleEvent(ctx context.Context, ev core.Event) error {
	outcome, err := w.svc.ApplyEvent(ctx, ev)
	if errors.Is(err, core.ErrOutOfOrder) {
		slog.WarnContext(ctx, "Event out of order, reconciling group before retry",
			log.FieldEventID, ev.ID,
			log.FieldGroupID, ev.GroupID,
			log.FieldSequence, ev.Sequence)
		if _, repErr := w.svc.Repair(ctx, ev.GroupID); repErr != nil {
			return fmt.Errorf("repair group %s: %w", ev.GroupID, repErr)
		}
		outcome, err = w.svc.ApplyEvent(ctx, ev)
	}
	if err != nil {
		return err
	}

	if outcome == services.OutcomeDuplicate {
		slog.InfoContext(ctx, "Duplicate event delivery ignored",
			log.FieldEventID, ev.ID, log.FieldGroupID, ev.GroupID)
	}
	return nil
}

// WarmStart replays every stored group into the live ledger. Run before
// consuming so sequence checks start from the durable history instead of
// from zero.
func (w *EventWorker) WarmStart(ctx context.Context) error {
	groups, err := w.store.Groups(ctx)
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.parallel)
	for _, group := range groups {
		group := group
		g.Go(func() error {
			events, err := w.store.LoadEvents(ctx, group, 0)
			if err != nil {
				return fmt.Errorf("load events for group %s: %w", group, err)
			}
			for _, ev := range events {
				if _, err := w.svc.Ledger().Apply(ev); err != nil {
					return fmt.Errorf("replay group %s sequence %d: %w", group, ev.Sequence, err)
				}
			}
			slog.InfoContext(ctx, "Group replayed", log.FieldGroupID, group, log.FieldEventCount, len(events))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Warm start complete", "groups", len(groups))
	return nil
}

// DriftSweep reconciles every known group against the stored history and
// persists fresh balance snapshots for the clean ones. Drift is alerted,
// never auto-repaired here; operators decide (or the out-of-order path
// does, where the cause is known to be a missed delivery).
func (w *EventWorker) DriftSweep(ctx context.Context) error {
	groups, err := w.store.Groups(ctx)
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.parallel)
	for _, group := range groups {
		group := group
		g.Go(func() error {
			return w.sweepGroup(ctx, group)
		})
	}
	return g.Wait()
}

func (w *EventWorker) sweepGroup(ctx context.Context, group uuid.UUID) error {
	report, err := w.svc.Reconcile(ctx, group)
	if err != nil {
		return fmt.Errorf("reconcile group %s: %w", group, err)
	}
	if !report.Clean() {
		// The reconciler already logged the drift; keep sweeping the
		// other groups.
		slog.ErrorContext(ctx, "Drift alert",
			log.FieldGroupID, group,
			log.FieldDriftCells, len(report.Drifts),
			log.FieldVersion, report.LiveVersion)
		return nil
	}

	for _, currency := range w.svc.Ledger().Currencies(group) {
		snap := eventstore.Snapshot{
			Balances: w.svc.GetBalances(group, currency),
			Version:  report.LiveVersion,
		}
		if err := w.store.SaveBalanceSnapshot(ctx, group, currency, snap); err != nil {
			return fmt.Errorf("save snapshot for group %s currency %s: %w", group, currency, err)
		}
	}
	return nil
}
