package domain

import (
	"errors"
	"fmt"
)

// Business rule violations. Each one leaves persisted state unchanged.
var (
	ErrInvalidOutcomeSet  = errors.New("invalid outcome set")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrEventNotOpen       = errors.New("event not open")
	ErrUnknownOutcome     = errors.New("unknown outcome")
	ErrAlreadyResolved    = errors.New("event already resolved")
	ErrNotPending         = errors.New("event not pending approval")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrEventNotFound      = errors.New("event not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrAccountExists      = errors.New("account already exists")
	ErrSettlementNotFound = errors.New("settlement not found")
	ErrSupplyExceeded     = errors.New("credit supply limit reached")
)

// ErrStorageFault matches every *StorageError via errors.Is.
var ErrStorageFault = errors.New("storage fault")

// StorageError wraps a failure of the persistence layer (driver, network, constraint
// the domain did not anticipate). It is distinct from the business errors above.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageFault }

// Fault wraps err as a StorageError unless it is nil or already a domain error.
func Fault(op string, err error) error {
	if err == nil || IsBusiness(err) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsBusiness reports whether err is one of the business rule sentinels.
func IsBusiness(err error) bool {
	for _, target := range []error{
		ErrInvalidOutcomeSet, ErrInsufficientFunds, ErrEventNotOpen, ErrUnknownOutcome,
		ErrAlreadyResolved, ErrNotPending, ErrInvalidAmount, ErrInvalidArgument,
		ErrEventNotFound, ErrUserNotFound, ErrAccountExists, ErrSettlementNotFound,
		ErrSupplyExceeded,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
