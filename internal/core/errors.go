package core

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error taxonomy. Callers branch with errors.Is against the sentinels; the
// structured types carry enough detail for logs and operator alerts.
var (
	// ErrValidation covers malformed input: bad split parameters, bad
	// event payloads. Nothing is mutated when it is returned.
	ErrValidation = errors.New("validation failed")

	// ErrOutOfOrder means an event arrived with a sequence gap or
	// regression. The caller must reconcile before retrying.
	ErrOutOfOrder = errors.New("event out of order")

	// ErrInvariantViolation means a mutation would have broken the
	// zero-sum balance invariant. The mutation was rejected.
	ErrInvariantViolation = errors.New("balance invariant violated")

	// ErrConcurrentModification is a version conflict on an optimistic
	// update. Transient; retry after re-reading.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrPrecondition means the planner input did not sum to zero,
	// indicating upstream ledger corruption.
	ErrPrecondition = errors.New("precondition failed")
)

// OutOfOrderError reports a sequence gap or regression for a group.
type OutOfOrderError struct {
	GroupID      uuid.UUID
	LastSequence uint64
	Got          uint64
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("event out of order for group %s: last applied sequence %d, got %d",
		e.GroupID, e.LastSequence, e.Got)
}

func (e *OutOfOrderError) Is(target error) bool { return target == ErrOutOfOrder }

// InvariantViolationError reports a nonzero balance sum that an apply would
// have produced for one group/currency.
type InvariantViolationError struct {
	GroupID  uuid.UUID
	Currency string
	Sum      int64
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("balance invariant violated for group %s currency %s: sum is %d, want 0",
		e.GroupID, e.Currency, e.Sum)
}

func (e *InvariantViolationError) Is(target error) bool { return target == ErrInvariantViolation }

// ConcurrentModificationError reports a version conflict when installing
// rebuilt state over a live group.
type ConcurrentModificationError struct {
	GroupID         uuid.UUID
	ExpectedVersion uint64
	ActualVersion   uint64
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("concurrent modification of group %s: expected version %d, found %d",
		e.GroupID, e.ExpectedVersion, e.ActualVersion)
}

func (e *ConcurrentModificationError) Is(target error) bool { return target == ErrConcurrentModification }
