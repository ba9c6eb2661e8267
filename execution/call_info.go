package execution

import (
	"fmt"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
)

// CallType represents the type of call, regular, or delegate
type CallType uint8

const (
	CallTypeCall CallType = iota
	CallTypeDelegate
)

func (c CallType) String() string {
	switch c {
	case CallTypeCall:
		return "CALL"
	case CallTypeDelegate:
		return "DELEGATE"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(c))
	}
}

func (c CallType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Call describes an entry point invocation.
type Call struct {
	// ClassHash is set for library calls. Otherwise the class deployed at
	// StorageAddress is executed.
	ClassHash *felt.Felt

	EntryPointType core.EntryPointType
	Selector       felt.Felt
	Calldata       []felt.Felt
	StorageAddress felt.Felt
	CallerAddress  felt.Felt
	CallType       CallType
}

type OrderedEvent struct {
	Order uint64      `json:"order"`
	Keys  []felt.Felt `json:"keys"`
	Data  []felt.Felt `json:"data"`
}

type OrderedL2toL1Message struct {
	Order   uint64      `json:"order"`
	To      felt.Felt   `json:"to_address"`
	Payload []felt.Felt `json:"payload"`
}

type CallExecution struct {
	Retdata      []felt.Felt
	Events       []OrderedEvent
	Messages     []OrderedL2toL1Message
	Failed       bool
	RevertReason string
}

// CallInfo is a node of the call tree of a transaction.
type CallInfo struct {
	Call      Call
	ClassHash felt.Felt
	Execution CallExecution
	// Resources consumed by this call, excluding its inner calls.
	Resources  ResourceCounters
	InnerCalls []*CallInfo

	StorageReadValues   []felt.Felt
	AccessedStorageKeys map[felt.Felt]struct{}
}

// TotalResources sums the resources of the call and all its inner calls.
func (ci *CallInfo) TotalResources() ResourceCounters {
	total := ci.Resources.Clone()
	for _, inner := range ci.InnerCalls {
		innerTotal := inner.TotalResources()
		total.Add(&innerTotal)
	}
	return total
}

// Walk visits the call tree depth first, parents before children.
func (ci *CallInfo) Walk(visit func(*CallInfo)) {
	if ci == nil {
		return
	}
	visit(ci)
	for _, inner := range ci.InnerCalls {
		inner.Walk(visit)
	}
}

// WalkSucceeded is Walk restricted to the calls whose effects were kept: it
// skips failed calls along with everything they called.
func (ci *CallInfo) WalkSucceeded(visit func(*CallInfo)) {
	if ci == nil || ci.Execution.Failed {
		return
	}
	visit(ci)
	for _, inner := range ci.InnerCalls {
		inner.WalkSucceeded(visit)
	}
}

// MessagesPayloadLength is the payload size of the L2 to L1 messages sent by
// the calls that succeeded.
func (ci *CallInfo) MessagesPayloadLength() uint64 {
	var n uint64
	ci.WalkSucceeded(func(c *CallInfo) {
		for _, m := range c.Execution.Messages {
			n += uint64(len(m.Payload))
		}
	})
	return n
}
