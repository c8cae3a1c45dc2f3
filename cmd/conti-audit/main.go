// conti-audit rebuilds group balances from the stored event history and
// prints them together with the settlement plan. Read-only: it never
// touches a live worker's state, so it is safe to run against the same
// database at any time.
//
// Exit code is 2 when any rebuilt balance disagrees with the stored
// snapshot, so the command doubles as a drift probe in cron or CI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"conti/internal/config"
	"conti/internal/core"
	"conti/internal/eventstore"
	"conti/internal/ledger"
	"conti/internal/log"
	"conti/internal/reconcile"
	"conti/internal/settle"
)

func main() {
	_ = godotenv.Load()

	dbPath := flag.String("db", "", "sqlite database path (default: SQLITE_DB_PATH)")
	groupFlag := flag.String("group", "", "audit a single group id (default: all groups)")
	flag.Parse()

	logger := log.New(log.Config{Component: log.ComponentReconcile})
	log.SetDefault(logger)

	cfg := config.Load()
	if *dbPath == "" {
		*dbPath = cfg.SQLiteDBPath
	}

	store, err := eventstore.NewSQLite(*dbPath)
	if err != nil {
		logger.Error("Failed to open event store", log.FieldError, err, "db_path", *dbPath)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()

	var groups []uuid.UUID
	if *groupFlag != "" {
		id, err := uuid.Parse(*groupFlag)
		if err != nil {
			logger.Error("Invalid group id", log.FieldError, err, log.FieldGroupID, *groupFlag)
			os.Exit(1)
		}
		groups = []uuid.UUID{id}
	} else {
		groups, err = store.Groups(ctx)
		if err != nil {
			logger.Error("Failed to list groups", log.FieldError, err)
			os.Exit(1)
		}
	}

	drifted := false
	for _, group := range groups {
		if auditGroup(ctx, store, group) {
			drifted = true
		}
	}
	if drifted {
		os.Exit(2)
	}
}

// auditGroup prints one group's rebuilt balances and settlement plan and
// reports whether the stored snapshot disagrees with the rebuild.
func auditGroup(ctx context.Context, store eventstore.Store, group uuid.UUID) bool {
	logger := log.New(log.Config{Component: log.ComponentReconcile})

	rec := reconcile.New(store, ledger.New())
	snap, count, err := rec.Rebuild(ctx, group)
	if err != nil {
		logger.Error("Rebuild failed", log.FieldError, err, log.FieldGroupID, group)
		return true
	}

	fmt.Printf("group %s (%d events)\n", group, count)

	currencies := make([]string, 0, len(snap.Balances))
	for currency := range snap.Balances {
		currencies = append(currencies, currency)
	}
	sort.Strings(currencies)

	drifted := false
	for _, currency := range currencies {
		balances := snap.Balances[currency]
		fmt.Printf("  %s balances:\n", currency)
		for _, member := range sortedMembers(balances) {
			fmt.Printf("    %-20s %+d\n", member, balances[member])
		}

		plan, err := settle.Greedy{}.Plan(balances)
		if err != nil {
			logger.Error("Settlement planning failed", log.FieldError, err,
				log.FieldGroupID, group, log.FieldCurrency, currency)
			drifted = true
			continue
		}
		if len(plan) == 0 {
			fmt.Printf("  %s settled, no payments needed\n", currency)
		} else {
			fmt.Printf("  %s settlement plan:\n", currency)
			for _, tx := range plan {
				fmt.Printf("    %s -> %s  %d\n", tx.From, tx.To, tx.Amount)
			}
		}

		if diffSnapshot(ctx, store, group, currency, balances) {
			drifted = true
			logger.Warn("Stored snapshot disagrees with rebuilt balances",
				log.FieldGroupID, group, log.FieldCurrency, currency)
		}
	}
	return drifted
}

func diffSnapshot(ctx context.Context, store eventstore.Store, group uuid.UUID, currency string, rebuilt map[core.MemberID]int64) bool {
	stored, err := store.LoadBalanceSnapshot(ctx, group, currency)
	if errors.Is(err, eventstore.ErrNoSnapshot) {
		return false // nothing persisted yet, nothing to disagree with
	}
	if err != nil {
		return true
	}
	if len(stored.Balances) != len(rebuilt) {
		return true
	}
	for member, amount := range rebuilt {
		if stored.Balances[member] != amount {
			return true
		}
	}
	return false
}

func sortedMembers(balances map[core.MemberID]int64) []core.MemberID {
	members := make([]core.MemberID, 0, len(balances))
	for member := range balances {
		members = append(members, member)
	}
	return core.SortMembers(members)
}
