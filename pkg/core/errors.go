package core

import (
	"errors"
	"fmt"
)

// User-facing errors. Returned as typed results without engine-state mutation.
var (
	ErrInstrumentNotFound  = errors.New("instrument not found")
	ErrInstrumentExists    = errors.New("instrument already exists")
	ErrInstrumentDelisted  = errors.New("instrument delisted")
	ErrInstrumentHalted    = errors.New("instrument halted")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderNotCancellable = errors.New("order not cancellable")
	ErrUserNotFound        = errors.New("user not found")
	ErrUserExists          = errors.New("username already exists")
	ErrInvalidOrder        = errors.New("invalid order")
)

// ConsistencyError indicates a violated ledger or book invariant. It is never
// expected in correct operation; the engine halts the affected instrument and
// the error must be surfaced, not retried or masked.
type ConsistencyError struct {
	Ticker string
	Detail string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("internal consistency violation [%s]: %s", e.Ticker, e.Detail)
}

// IsConsistency reports whether err is (or wraps) a ConsistencyError
func IsConsistency(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}
