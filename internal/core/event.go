package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType tags the financial event union.
type EventType string

const (
	EventExpenseCreated     EventType = "expense_created"
	EventExpenseUpdated     EventType = "expense_updated"
	EventExpenseDeleted     EventType = "expense_deleted"
	EventSettlementRecorded EventType = "settlement_recorded"
)

// Event is one entry in a group's financial history.
//
// ID is the idempotency key: collaborators may redeliver, and a redelivered
// ID is a no-op. Sequence orders events within a group, starting at 1 with
// no gaps. Exactly one payload pointer is set per type; updates carry both
// the previous and the new expense so the ledger can compensate without
// diffing.
type Event struct {
	ID         uuid.UUID   `json:"id"`
	Type       EventType   `json:"type"`
	GroupID    uuid.UUID   `json:"group_id"`
	Sequence   uint64      `json:"sequence"`
	OccurredAt time.Time   `json:"occurred_at"`
	Expense    *Expense    `json:"expense,omitempty"`
	Previous   *Expense    `json:"previous,omitempty"`
	Settlement *Settlement `json:"settlement,omitempty"`
}

func (ev Event) Validate() error {
	if ev.ID == uuid.Nil {
		return fmt.Errorf("%w: event id is nil", ErrValidation)
	}
	if ev.GroupID == uuid.Nil {
		return fmt.Errorf("%w: event group id is nil", ErrValidation)
	}
	if ev.Sequence == 0 {
		return fmt.Errorf("%w: event sequence must start at 1", ErrValidation)
	}

	switch ev.Type {
	case EventExpenseCreated, EventExpenseDeleted:
		if ev.Expense == nil {
			return fmt.Errorf("%w: %s event without expense payload", ErrValidation, ev.Type)
		}
		if ev.Previous != nil || ev.Settlement != nil {
			return fmt.Errorf("%w: %s event with extra payload", ErrValidation, ev.Type)
		}
		if ev.Expense.GroupID != ev.GroupID {
			return fmt.Errorf("%w: expense group %s does not match event group %s",
				ErrValidation, ev.Expense.GroupID, ev.GroupID)
		}
		return ev.Expense.Validate()

	case EventExpenseUpdated:
		if ev.Expense == nil || ev.Previous == nil {
			return fmt.Errorf("%w: update event needs previous and new expense", ErrValidation)
		}
		if ev.Settlement != nil {
			return fmt.Errorf("%w: update event with extra payload", ErrValidation)
		}
		if ev.Expense.ID != ev.Previous.ID {
			return fmt.Errorf("%w: update changes expense identity", ErrValidation)
		}
		if ev.Expense.GroupID != ev.GroupID || ev.Previous.GroupID != ev.GroupID {
			return fmt.Errorf("%w: update payload group mismatch", ErrValidation)
		}
		if err := ev.Previous.Validate(); err != nil {
			return err
		}
		return ev.Expense.Validate()

	case EventSettlementRecorded:
		if ev.Settlement == nil {
			return fmt.Errorf("%w: settlement event without settlement payload", ErrValidation)
		}
		if ev.Expense != nil || ev.Previous != nil {
			return fmt.Errorf("%w: settlement event with extra payload", ErrValidation)
		}
		if ev.Settlement.GroupID != ev.GroupID {
			return fmt.Errorf("%w: settlement group %s does not match event group %s",
				ErrValidation, ev.Settlement.GroupID, ev.GroupID)
		}
		return ev.Settlement.Validate()

	default:
		return fmt.Errorf("%w: unknown event type %q", ErrValidation, ev.Type)
	}
}
