package transaction

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/NethermindEth/starknet-replay/execution"
	"github.com/holiman/uint256"
)

var (
	ErrInvalidNonce          = errors.New("invalid transaction nonce")
	ErrMaxFeeTooLow          = errors.New("max fee is lower than the minimal transaction cost")
	ErrMaxFeeExceedsBalance  = errors.New("max fee exceeds balance")
	ErrMaxFeeExceeded        = errors.New("actual fee exceeded max fee")
	ErrClassAlreadyDeclared  = errors.New("class is already declared")
	ErrInvalidValidateReturn = errors.New("validation entry point did not return VALID")
)

// Disposition is the final state of a transaction.
type Disposition uint8

const (
	// Committed: every effect of the transaction is applied and the fee charged.
	Committed Disposition = iota
	// Reverted: execution failed. Only the nonce increment and the fee are applied.
	Reverted
	// FeeChargeFailure: the fee could not be charged after execution. Only the
	// nonce increment and the debit allowed by the fee failure policy are applied.
	FeeChargeFailure
	// Rejected: the transaction failed before execution and has no effect.
	Rejected
)

func (d Disposition) String() string {
	switch d {
	case Committed:
		return "COMMITTED"
	case Reverted:
		return "REVERTED"
	case FeeChargeFailure:
		return "FEE_CHARGE_FAILURE"
	case Rejected:
		return "REJECTED"
	default:
		return fmt.Sprintf("Disposition(%d)", uint8(d))
	}
}

func (d Disposition) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Disposition) UnmarshalText(text []byte) error {
	for _, candidate := range []Disposition{Committed, Reverted, FeeChargeFailure, Rejected} {
		if candidate.String() == string(text) {
			*d = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown disposition %q", text)
}

// ValidationFailure is a transaction failing its pre-execution checks or its
// account's validation entry point.
type ValidationFailure struct {
	Reason string
	Err    error
}

func (e *ValidationFailure) Error() string {
	return "validation failed: " + e.Reason
}

func (e *ValidationFailure) Unwrap() error {
	return e.Err
}

func validationFailure(err error) *ValidationFailure {
	return &ValidationFailure{Reason: err.Error(), Err: err}
}

// FeeChargeError is an account unable to pay Fee after execution.
type FeeChargeError struct {
	Fee     *uint256.Int
	Balance *uint256.Int
	Err     error
}

func (e *FeeChargeError) Error() string {
	return fmt.Sprintf("fee charge of %s failed with a balance of %s: %v", e.Fee.Dec(), e.Balance.Dec(), e.Err)
}

func (e *FeeChargeError) Unwrap() error {
	return e.Err
}

// ExecutionInfo is the outcome of a transaction.
type ExecutionInfo struct {
	Type            Type
	TransactionHash felt.Felt

	ValidateCallInfo    *execution.CallInfo
	ExecuteCallInfo     *execution.CallInfo
	FeeTransferCallInfo *execution.CallInfo
	ConstructorCallInfo *execution.CallInfo

	// Resources is what validation, construction and execution consumed. The
	// fee transfer is not included.
	Resources execution.ResourceCounters
	Gas       uint64
	Fee       Fee

	Disposition       Disposition
	RevertReason      string
	ValidationFailure *ValidationFailure
	FeeChargeFailure  *FeeChargeError

	// StateDiff is the change the transaction made to the block state. It is
	// empty for rejected transactions.
	StateDiff *core.StateDiff
}

// Failed reports whether the transaction did not commit in full.
func (info *ExecutionInfo) Failed() bool {
	return info.Disposition != Committed
}

func (info *ExecutionInfo) nonEmptyCallInfos() []*execution.CallInfo {
	var calls []*execution.CallInfo
	for _, c := range []*execution.CallInfo{
		info.ValidateCallInfo, info.ConstructorCallInfo, info.ExecuteCallInfo, info.FeeTransferCallInfo,
	} {
		if c != nil {
			calls = append(calls, c)
		}
	}
	return calls
}

// Events returns the events of the calls that took effect, ordered by call.
func (info *ExecutionInfo) Events() []execution.OrderedEvent {
	var events []execution.OrderedEvent
	for _, root := range info.nonEmptyCallInfos() {
		root.WalkSucceeded(func(c *execution.CallInfo) {
			events = append(events, c.Execution.Events...)
		})
	}
	return events
}
