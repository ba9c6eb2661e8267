package transaction

import (
	"encoding/json"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/NethermindEth/starknet-replay/execution"
)

// TransactionTrace is the call tree of a transaction in the layout of
// starknet_traceTransaction.
type TransactionTrace struct {
	Type                  Type                        `json:"type"`
	ValidateInvocation    *FunctionInvocation         `json:"validate_invocation,omitempty"`
	ExecuteInvocation     *ExecuteInvocation          `json:"execute_invocation,omitempty"`
	FeeTransferInvocation *FunctionInvocation         `json:"fee_transfer_invocation,omitempty"`
	ConstructorInvocation *FunctionInvocation         `json:"constructor_invocation,omitempty"`
	FunctionInvocation    *FunctionInvocation         `json:"function_invocation,omitempty"`
	StateDiff             *core.CanonicalStateDiff    `json:"state_diff,omitempty"`
	ExecutionResources    *execution.ResourceCounters `json:"execution_resources,omitempty"`
}

type FunctionInvocation struct {
	ContractAddress    felt.Felt                        `json:"contract_address"`
	EntryPointSelector felt.Felt                        `json:"entry_point_selector"`
	Calldata           []felt.Felt                      `json:"calldata"`
	CallerAddress      felt.Felt                        `json:"caller_address"`
	ClassHash          felt.Felt                        `json:"class_hash"`
	EntryPointType     core.EntryPointType              `json:"entry_point_type"`
	CallType           execution.CallType               `json:"call_type"`
	Result             []felt.Felt                      `json:"result"`
	Calls              []FunctionInvocation             `json:"calls"`
	Events             []execution.OrderedEvent         `json:"events"`
	Messages           []execution.OrderedL2toL1Message `json:"messages"`
	ExecutionResources execution.ResourceCounters       `json:"execution_resources"`
	IsReverted         bool                             `json:"is_reverted,omitempty"`
}

// ExecuteInvocation is either the execute call tree or, for a reverted
// execution, only the revert reason.
type ExecuteInvocation struct {
	RevertReason        string `json:"revert_reason"`
	*FunctionInvocation `json:",omitempty"`
}

func (e ExecuteInvocation) MarshalJSON() ([]byte, error) {
	if e.FunctionInvocation != nil {
		return json.Marshal(e.FunctionInvocation)
	}
	type alias struct {
		RevertReason string `json:"revert_reason"`
	}
	return json.Marshal(alias{RevertReason: e.RevertReason})
}

func newFunctionInvocation(info *execution.CallInfo) *FunctionInvocation {
	if info == nil {
		return nil
	}
	invocation := &FunctionInvocation{
		ContractAddress:    info.Call.StorageAddress,
		EntryPointSelector: info.Call.Selector,
		Calldata:           info.Call.Calldata,
		CallerAddress:      info.Call.CallerAddress,
		ClassHash:          info.ClassHash,
		EntryPointType:     info.Call.EntryPointType,
		CallType:           info.Call.CallType,
		Result:             info.Execution.Retdata,
		Calls:              make([]FunctionInvocation, 0, len(info.InnerCalls)),
		Events:             info.Execution.Events,
		Messages:           info.Execution.Messages,
		ExecutionResources: info.Resources,
		IsReverted:         info.Execution.Failed,
	}
	for _, inner := range info.InnerCalls {
		invocation.Calls = append(invocation.Calls, *newFunctionInvocation(inner))
	}
	return invocation
}

// Trace builds the call tree view of info.
func (info *ExecutionInfo) Trace() *TransactionTrace {
	trace := &TransactionTrace{
		Type:                  info.Type,
		ValidateInvocation:    newFunctionInvocation(info.ValidateCallInfo),
		FeeTransferInvocation: newFunctionInvocation(info.FeeTransferCallInfo),
		ConstructorInvocation: newFunctionInvocation(info.ConstructorCallInfo),
	}
	resources := info.Resources.Clone()
	trace.ExecutionResources = &resources
	if info.StateDiff != nil {
		trace.StateDiff = info.StateDiff.Canonical()
	}

	execute := newFunctionInvocation(info.ExecuteCallInfo)
	switch {
	case info.Type == TxnL1Handler:
		trace.FunctionInvocation = execute
	case execute != nil && execute.IsReverted:
		trace.ExecuteInvocation = &ExecuteInvocation{RevertReason: info.RevertReason}
	case execute != nil:
		trace.ExecuteInvocation = &ExecuteInvocation{FunctionInvocation: execute}
	case info.Disposition == Reverted:
		trace.ExecuteInvocation = &ExecuteInvocation{RevertReason: info.RevertReason}
	}
	return trace
}

// Messages returns the L2 to L1 messages of the calls that took effect.
func (info *ExecutionInfo) Messages() []execution.OrderedL2toL1Message {
	var messages []execution.OrderedL2toL1Message
	for _, root := range info.nonEmptyCallInfos() {
		root.WalkSucceeded(func(c *execution.CallInfo) {
			messages = append(messages, c.Execution.Messages...)
		})
	}
	return messages
}
