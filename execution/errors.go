package execution

import (
	"errors"
	"fmt"
	"strings"

	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/NethermindEth/starknet-replay/state"
)

var (
	ErrContractAddressUnavailable = errors.New("requested contract address is unavailable for deployment")
	ErrContractNotDeployed        = errors.New("contract is not deployed")
	ErrEntryPointNotFound         = errors.New("entry point not found")
	ErrInvalidConstructorCalldata = errors.New("cannot pass calldata to a contract without a constructor")
	ErrUnsupportedProgram         = errors.New("program is not supported by the backend")

	// EntryPointNotFoundRetdata is the failure retdata of a call to a missing entry point.
	EntryPointNotFoundRetdata = felt.FromBytes([]byte("ENTRYPOINT_NOT_FOUND"))
)

// ExecutionRevert is a deterministic failure raised by contract code.
type ExecutionRevert struct {
	Reason  string
	Retdata []felt.Felt
	Err     error
}

func NewRevert(reason string, retdata ...felt.Felt) *ExecutionRevert {
	return &ExecutionRevert{Reason: reason, Retdata: retdata}
}

func (e *ExecutionRevert) Error() string {
	if len(e.Retdata) == 0 {
		return "execution reverted: " + e.Reason
	}
	return fmt.Sprintf("execution reverted: %s %s", e.Reason, formatRetdata(e.Retdata))
}

func (e *ExecutionRevert) Unwrap() error {
	return e.Err
}

type Resource string

const (
	ResourceSteps     Resource = "steps"
	ResourceCallDepth Resource = "call_depth"
	ResourceEvents    Resource = "events"
)

type ResourceExhausted struct {
	Resource Resource
	Limit    uint64
	Used     uint64
}

func (e *ResourceExhausted) Error() string {
	return fmt.Sprintf("%s limit exhausted: used %d, limit %d", e.Resource, e.Used, e.Limit)
}

// CallFailure is what a program sees when a contract it called failed. The
// program may handle it and carry on, or return it to fail its own call.
type CallFailure struct {
	ContractAddress felt.Felt
	Selector        felt.Felt
	Retdata         []felt.Felt
	Err             error
}

func (e *CallFailure) Error() string {
	return fmt.Sprintf("call to %s (selector %s) failed: %v", e.ContractAddress, e.Selector, e.Err)
}

func (e *CallFailure) Unwrap() error {
	return e.Err
}

// SyscallError is a syscall rejected for breaking a validity rule.
type SyscallError struct {
	Syscall Syscall
	Reason  string
}

func (e *SyscallError) Error() string {
	return fmt.Sprintf("invalid %s syscall: %s", e.Syscall, e.Reason)
}

// ConfigurationError is raised for a malformed block context or an unsupported
// protocol version. It is fatal to a replay run.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err is an infrastructure or configuration failure
// rather than a deterministic execution outcome.
func IsFatal(err error) bool {
	var (
		readErr   *state.StateReadError
		configErr *ConfigurationError
	)
	return errors.As(err, &readErr) || errors.As(err, &configErr) || errors.Is(err, ErrUnsupportedProgram)
}

// FailureRetdata returns the retdata attached to a deterministic failure, if any.
func FailureRetdata(err error) []felt.Felt {
	var (
		revert      *ExecutionRevert
		callFailure *CallFailure
	)
	switch {
	case errors.As(err, &revert):
		return revert.Retdata
	case errors.As(err, &callFailure):
		return callFailure.Retdata
	default:
		return nil
	}
}

func formatRetdata(retdata []felt.Felt) string {
	parts := make([]string, len(retdata))
	for i, f := range retdata {
		parts[i] = f.ShortString()
		if short := shortString(f); short != "" {
			parts[i] = fmt.Sprintf("%s (%q)", f.ShortString(), short)
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// shortString decodes f as a Cairo short string, returning "" when it is not printable.
func shortString(f felt.Felt) string {
	b := f.Bytes()
	start := 0
	for start < len(b) && b[start] == 0 {
		start++
	}
	if start == len(b) {
		return ""
	}
	for _, c := range b[start:] {
		if c < 0x20 || c > 0x7e {
			return ""
		}
	}
	return string(b[start:])
}
