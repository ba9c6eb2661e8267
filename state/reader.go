package state

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
)

// ErrNotFound is returned by readers when a value is legitimately absent at
// the pinned block: uninitialised storage, an undeployed address or an
// undeclared class. It is never used for transport or availability failures.
var ErrNotFound = errors.New("state value not found")

//go:generate mockgen -destination=../mocks/mock_state_reader.go -package=mocks github.com/NethermindEth/starknet-replay/state StateReader

// StateReader is a read-only view of chain state pinned at a block.
//
// Implementations return ErrNotFound (possibly wrapped) for absent values and
// any other error when the value could not be determined. Readers are shared
// between CachedStates and across goroutines and must be safe for concurrent use.
type StateReader interface {
	NonceAt(addr *felt.Felt) (felt.Felt, error)
	ClassHashAt(addr *felt.Felt) (felt.Felt, error)
	StorageAt(addr, key *felt.Felt) (felt.Felt, error)
	CompiledClassHash(classHash *felt.Felt) (felt.Felt, error)
	CompiledClass(classHash *felt.Felt) (*core.ContractClass, error)
}

// StateReadError is a failure to read state, as opposed to reading an absent
// value. It aborts whatever operation triggered the read.
type StateReadError struct {
	Op        string
	Key       string
	Retryable bool
	Err       error
}

func (e *StateReadError) Error() string {
	return fmt.Sprintf("state read %s(%s) failed: %v", e.Op, e.Key, e.Err)
}

func (e *StateReadError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a StateReadError worth retrying.
func IsRetryable(err error) bool {
	var readErr *StateReadError
	return errors.As(err, &readErr) && readErr.Retryable
}

// wrapReadError leaves StateReadErrors untouched so the innermost operation is reported.
func wrapReadError(op, key string, err error) error {
	var readErr *StateReadError
	if errors.As(err, &readErr) {
		return err
	}
	return &StateReadError{Op: op, Key: key, Err: err}
}
