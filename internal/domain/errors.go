package domain

import (
	"errors"
	"fmt"
)

// Error kinds returned by every ledger, registry, market and escrow
// operation. Operations wrap these with context via fmt.Errorf("%w"), so
// callers match with errors.Is or KindOf.
var (
	ErrNotAuthorized       = errors.New("not authorized")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrOverflow            = errors.New("overflow")
	ErrNotOwner            = errors.New("not owner")
	ErrNotListed           = errors.New("not listed")
	ErrInvalidState        = errors.New("invalid state")
	ErrInvalidPrincipal    = errors.New("invalid principal")
	ErrUnknownEscrow       = errors.New("unknown escrow")

	// ErrInvariant marks a commit step that failed after validation passed.
	// It is never expected; seeing it means a capability broke its contract.
	ErrInvariant = errors.New("invariant violated")
)

var kinds = []error{
	ErrNotAuthorized,
	ErrInsufficientBalance,
	ErrInvalidAmount,
	ErrOverflow,
	ErrNotOwner,
	ErrNotListed,
	ErrInvalidState,
	ErrInvalidPrincipal,
	ErrUnknownEscrow,
	ErrInvariant,
}

// KindOf returns the sentinel kind wrapped by err, or nil if err carries none.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Errorf wraps kind with a formatted context message.
func Errorf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// OpError records which engine operation produced an error.
type OpError struct {
	Op  string // e.g. "buy", "escrow.release"
	Seq uint64 // sequence number assigned by the sequencer, 0 if never sequenced
	Err error
}

func (e *OpError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")

	// ErrSequenceGap is returned when a journal replay finds a missing entry.
	ErrSequenceGap = errors.New("sequence gap")
)
