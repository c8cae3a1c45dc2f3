// Package reconcile rebuilds ledger state from the authoritative event
// history and detects drift between the rebuilt and the live balances.
//
// Drift is reported, never silently corrected: a mismatch means either the
// live ledger missed events or storage was corrupted, and an operator (or
// the worker's repair path) decides what wins.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"conti/internal/core"
	"conti/internal/eventstore"
	"conti/internal/ledger"
	"conti/internal/log"
)

// Drift is one mismatched balance cell.
type Drift struct {
	Currency string
	Member   core.MemberID
	Live     int64
	Rebuilt  int64
}

// Report summarizes one reconciliation run for a group.
type Report struct {
	GroupID     uuid.UUID
	EventCount  int
	LiveVersion uint64
	Drifts      []Drift
}

// Clean reports whether live and rebuilt balances agree.
func (r Report) Clean() bool { return len(r.Drifts) == 0 }

// Reconciler replays a group's events against the same apply rules the live
// ledger uses.
type Reconciler struct {
	store eventstore.Store
	live  *ledger.Ledger
}

func New(store eventstore.Store, live *ledger.Ledger) *Reconciler {
	return &Reconciler{store: store, live: live}
}

// Rebuild replays the full event history for a group into a fresh ledger
// and returns its snapshot. Every event is new to the fresh ledger, so
// idempotency never short-circuits; a history that does not apply cleanly
// is corrupt and aborts the rebuild.
func (r *Reconciler) Rebuild(ctx context.Context, group uuid.UUID) (ledger.GroupSnapshot, int, error) {
	events, err := r.store.LoadEvents(ctx, group, 0)
	if err != nil {
		return ledger.GroupSnapshot{}, 0, fmt.Errorf("load events for group %s: %w", group, err)
	}

	fresh := ledger.New()
	for _, ev := range events {
		res, err := fresh.Apply(ev)
		if err != nil {
			return ledger.GroupSnapshot{}, 0, fmt.Errorf("replay event %s (sequence %d): %w", ev.ID, ev.Sequence, err)
		}
		if res != ledger.Applied {
			return ledger.GroupSnapshot{}, 0, fmt.Errorf("replay event %s: stored history contains duplicate id", ev.ID)
		}
	}
	return fresh.Snapshot(group), len(events), nil
}

// Reconcile rebuilds a group and diffs the result against the live ledger.
// The live version recorded in the report pins the state that was compared,
// so a later Repair can detect interleaved writes.
func (r *Reconciler) Reconcile(ctx context.Context, group uuid.UUID) (Report, error) {
	report := Report{GroupID: group}

	rebuilt, count, err := r.Rebuild(ctx, group)
	if err != nil {
		return report, err
	}
	report.EventCount = count

	liveSnap := r.live.Snapshot(group)
	report.LiveVersion = liveSnap.Version
	report.Drifts = diff(liveSnap.Balances, rebuilt.Balances)

	if !report.Clean() {
		slog.WarnContext(ctx, "Balance drift detected",
			log.FieldGroupID, group,
			log.FieldDriftCells, len(report.Drifts),
			log.FieldEventCount, count)
	}
	return report, nil
}

// Repair reconciles and, when drift is found, installs the rebuilt state
// over the live group. The swap is version-checked: an apply that lands
// between the comparison and the install fails the repair with a
// concurrent-modification error, and the caller runs it again.
func (r *Reconciler) Repair(ctx context.Context, group uuid.UUID) (Report, error) {
	report, err := r.Reconcile(ctx, group)
	if err != nil {
		return report, err
	}
	if report.Clean() {
		return report, nil
	}

	rebuilt, _, err := r.Rebuild(ctx, group)
	if err != nil {
		return report, err
	}
	if err := r.live.Restore(rebuilt, report.LiveVersion); err != nil {
		return report, err
	}
	slog.InfoContext(ctx, "Ledger state repaired from event history",
		log.FieldGroupID, group,
		log.FieldEventCount, report.EventCount,
		log.FieldDriftCells, len(report.Drifts))
	return report, nil
}

// diff compares two balance tables over the union of their currencies and
// members, in deterministic order.
func diff(live, rebuilt map[string]map[core.MemberID]int64) []Drift {
	currencies := make(map[string]struct{}, len(live)+len(rebuilt))
	for c := range live {
		currencies[c] = struct{}{}
	}
	for c := range rebuilt {
		currencies[c] = struct{}{}
	}
	sortedCurrencies := make([]string, 0, len(currencies))
	for c := range currencies {
		sortedCurrencies = append(sortedCurrencies, c)
	}
	sort.Strings(sortedCurrencies)

	var drifts []Drift
	for _, currency := range sortedCurrencies {
		members := make(map[core.MemberID]struct{})
		for m := range live[currency] {
			members[m] = struct{}{}
		}
		for m := range rebuilt[currency] {
			members[m] = struct{}{}
		}
		ids := make([]core.MemberID, 0, len(members))
		for m := range members {
			ids = append(ids, m)
		}
		sorted := core.SortMembers(ids)
		for _, m := range sorted {
			lv := live[currency][m]
			rv := rebuilt[currency][m]
			if lv != rv {
				drifts = append(drifts, Drift{Currency: currency, Member: m, Live: lv, Rebuilt: rv})
			}
		}
	}
	return drifts
}
