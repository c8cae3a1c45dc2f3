package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"conti/internal/core"
)

// EventMessage is the wire envelope collaborators publish. Monetary amounts
// are always integer minor units with an explicit currency code; a payload
// carrying a decimal amount is malformed by contract, not a rounding
// question.
type EventMessage struct {
	EventID   uuid.UUID       `json:"event_id"`
	Type      string          `json:"type"`
	GroupID   uuid.UUID       `json:"group_id"`
	Sequence  uint64          `json:"sequence"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type expenseBody struct {
	ID       uuid.UUID   `json:"id"`
	Amount   int64       `json:"amount_minor"`
	Currency string      `json:"currency"`
	PaidBy   string      `json:"paid_by"`
	Splits   []splitBody `json:"splits"`
}

type splitBody struct {
	Member    string `json:"member_id"`
	Share     int64  `json:"share_minor"`
	PercentBP int64  `json:"percent_bp,omitempty"`
}

type updateBody struct {
	Old expenseBody `json:"old"`
	New expenseBody `json:"new"`
}

type settlementBody struct {
	ID       uuid.UUID `json:"id"`
	Currency string    `json:"currency"`
	From     string    `json:"from_member"`
	To       string    `json:"to_member"`
	Amount   int64     `json:"amount_minor"`
}

// ToJSON converts the envelope to wire bytes.
func (m *EventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EventMessageFromJSON parses a wire envelope.
func EventMessageFromJSON(data []byte) (*EventMessage, error) {
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal event message: %w", err)
	}
	return &msg, nil
}

func (b expenseBody) toExpense(group uuid.UUID) *core.Expense {
	splits := make([]core.ExpenseSplit, 0, len(b.Splits))
	for _, s := range b.Splits {
		splits = append(splits, core.ExpenseSplit{
			Member:    core.MemberID(s.Member),
			Share:     s.Share,
			PercentBP: s.PercentBP,
		})
	}
	return &core.Expense{
		ID:       b.ID,
		GroupID:  group,
		Amount:   b.Amount,
		Currency: b.Currency,
		PaidBy:   core.MemberID(b.PaidBy),
		Splits:   splits,
	}
}

// ToEvent decodes the envelope into a domain event. The result still goes
// through core validation before it touches the ledger; this only shapes
// the payload.
func (m *EventMessage) ToEvent() (core.Event, error) {
	ev := core.Event{
		ID:         m.EventID,
		Type:       core.EventType(m.Type),
		GroupID:    m.GroupID,
		Sequence:   m.Sequence,
		OccurredAt: m.Timestamp,
	}

	switch ev.Type {
	case core.EventExpenseCreated, core.EventExpenseDeleted:
		var body expenseBody
		if err := json.Unmarshal(m.Payload, &body); err != nil {
			return core.Event{}, fmt.Errorf("%w: %s payload: %v", core.ErrValidation, m.Type, err)
		}
		ev.Expense = body.toExpense(m.GroupID)

	case core.EventExpenseUpdated:
		var body updateBody
		if err := json.Unmarshal(m.Payload, &body); err != nil {
			return core.Event{}, fmt.Errorf("%w: update payload: %v", core.ErrValidation, err)
		}
		ev.Previous = body.Old.toExpense(m.GroupID)
		ev.Expense = body.New.toExpense(m.GroupID)

	case core.EventSettlementRecorded:
		var body settlementBody
		if err := json.Unmarshal(m.Payload, &body); err != nil {
			return core.Event{}, fmt.Errorf("%w: settlement payload: %v", core.ErrValidation, err)
		}
		ev.Settlement = &core.Settlement{
			ID:       body.ID,
			GroupID:  m.GroupID,
			Currency: body.Currency,
			From:     core.MemberID(body.From),
			To:       core.MemberID(body.To),
			Amount:   body.Amount,
		}

	default:
		return core.Event{}, fmt.Errorf("%w: unknown event type %q", core.ErrValidation, m.Type)
	}
	return ev, nil
}

// NewEventMessage builds the envelope for a domain event. Published by
// tooling and tests; production collaborators speak the same shape.
func NewEventMessage(ev core.Event) (*EventMessage, error) {
	msg := &EventMessage{
		EventID:   ev.ID,
		Type:      string(ev.Type),
		GroupID:   ev.GroupID,
		Sequence:  ev.Sequence,
		Timestamp: ev.OccurredAt,
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	var payload any
	switch ev.Type {
	case core.EventExpenseCreated, core.EventExpenseDeleted:
		payload = fromExpense(ev.Expense)
	case core.EventExpenseUpdated:
		payload = updateBody{Old: fromExpense(ev.Previous), New: fromExpense(ev.Expense)}
	case core.EventSettlementRecorded:
		s := ev.Settlement
		payload = settlementBody{
			ID:       s.ID,
			Currency: s.Currency,
			From:     string(s.From),
			To:       string(s.To),
			Amount:   s.Amount,
		}
	default:
		return nil, fmt.Errorf("%w: unknown event type %q", core.ErrValidation, ev.Type)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	msg.Payload = raw
	return msg, nil
}

func fromExpense(e *core.Expense) expenseBody {
	splits := make([]splitBody, 0, len(e.Splits))
	for _, s := range e.Splits {
		splits = append(splits, splitBody{
			Member:    string(s.Member),
			Share:     s.Share,
			PercentBP: s.PercentBP,
		})
	}
	return expenseBody{
		ID:       e.ID,
		Amount:   e.Amount,
		Currency: e.Currency,
		PaidBy:   string(e.PaidBy),
		Splits:   splits,
	}
}
