// Package settle plans the payments that bring a group's balances to zero.
//
// The default planner is the greedy largest-debtor/largest-creditor match:
// deterministic, O(n log n), and at most n-1 transactions for n nonzero
// balances. It does not guarantee the minimum possible transaction count,
// since true minimal netting is a hard combinatorial problem. A smarter
// planner can be dropped in behind the same interface.
package settle

import (
	"container/heap"
	"fmt"

	"conti/internal/core"
)

// Transaction is one planned payment from a debtor to a creditor.
type Transaction struct {
	From   core.MemberID `json:"from"`
	To     core.MemberID `json:"to"`
	Amount int64         `json:"amount_minor"`
}

// Planner computes a transaction list that zeroes every balance in one
// group/currency snapshot.
type Planner interface {
	Plan(balances map[core.MemberID]int64) ([]Transaction, error)
}

// Greedy implements Planner with largest-creditor/largest-debtor matching.
type Greedy struct{}

// Plan requires the balances to sum to zero; a nonzero total means the
// upstream ledger is corrupt and is reported, never repaired here.
func (Greedy) Plan(balances map[core.MemberID]int64) ([]Transaction, error) {
	var sum int64
	for _, amount := range balances {
		sum += amount
	}
	if sum != 0 {
		return nil, fmt.Errorf("%w: balances sum to %d, want 0", core.ErrPrecondition, sum)
	}

	creditors := &partyHeap{}
	debtors := &partyHeap{}
	for member, amount := range balances {
		switch {
		case amount > 0:
			creditors.parties = append(creditors.parties, party{member, amount})
		case amount < 0:
			debtors.parties = append(debtors.parties, party{member, -amount})
		}
	}
	heap.Init(creditors)
	heap.Init(debtors)

	var plan []Transaction
	for creditors.Len() > 0 && debtors.Len() > 0 {
		cr := &creditors.parties[0]
		db := &debtors.parties[0]

		amount := cr.amount
		if db.amount < amount {
			amount = db.amount
		}
		plan = append(plan, Transaction{From: db.member, To: cr.member, Amount: amount})

		cr.amount -= amount
		db.amount -= amount
		if cr.amount == 0 {
			heap.Pop(creditors)
		} else {
			heap.Fix(creditors, 0)
		}
		if db.amount == 0 {
			heap.Pop(debtors)
		} else {
			heap.Fix(debtors, 0)
		}
	}
	return plan, nil
}

// party is one side of the matching; amount is always the positive
// magnitude, for creditors and debtors alike.
type party struct {
	member core.MemberID
	amount int64
}

// partyHeap is a max-heap on amount with member id ascending as the
// tie-break. The tie-break is what makes plans reproducible: equal balances
// always pair up in the same order.
type partyHeap struct {
	parties []party
}

func (h *partyHeap) Len() int { return len(h.parties) }

func (h *partyHeap) Less(i, j int) bool {
	if h.parties[i].amount != h.parties[j].amount {
		return h.parties[i].amount > h.parties[j].amount
	}
	return h.parties[i].member < h.parties[j].member
}

func (h *partyHeap) Swap(i, j int) {
	h.parties[i], h.parties[j] = h.parties[j], h.parties[i]
}

func (h *partyHeap) Push(x any) { h.parties = append(h.parties, x.(party)) }

func (h *partyHeap) Pop() any {
	last := len(h.parties) - 1
	p := h.parties[last]
	h.parties = h.parties[:last]
	return p
}
