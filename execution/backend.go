package execution

import (
	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
)

//go:generate mockgen -destination=../mocks/mock_backend.go -package=mocks github.com/NethermindEth/starknet-replay/execution Backend

// Backend runs contract code. It reports every side effect through sink and
// returns the retdata of the entry point, or the error that failed it.
// Errors returned by sink must be returned unchanged unless the program
// deliberately handles them.
type Backend interface {
	Name() string
	RunEntryPoint(class *core.ContractClass, entryPoint *core.EntryPoint, call *Call, sink SyscallSink) ([]felt.Felt, error)
}

// CallExecutionInfo is what get_execution_info reports to contracts.
type CallExecutionInfo struct {
	Block           BlockInfo
	Tx              TxInfo
	CallerAddress   felt.Felt
	ContractAddress felt.Felt
	Selector        felt.Felt
}

// SyscallSink is the host environment seen by an executing program.
type SyscallSink interface {
	StorageRead(key *felt.Felt) (felt.Felt, error)
	StorageWrite(key, value *felt.Felt) error
	EmitEvent(keys, data []felt.Felt) error
	CallContract(address, selector *felt.Felt, calldata []felt.Felt) ([]felt.Felt, error)
	LibraryCall(classHash, selector *felt.Felt, calldata []felt.Felt) ([]felt.Felt, error)
	Deploy(classHash, salt *felt.Felt, calldata []felt.Felt, deployFromZero bool) (felt.Felt, []felt.Felt, error)
	GetBlockInfo() (BlockInfo, error)
	GetTxInfo() (TxInfo, error)
	GetExecutionInfo() (CallExecutionInfo, error)
	GetClassHashAt(address *felt.Felt) (felt.Felt, error)
	ReplaceClass(classHash *felt.Felt) error
	SendMessageToL1(to *felt.Felt, payload []felt.Felt) error
	// Keccak hashes input, a sequence of 64 bit words whose length is a
	// multiple of the keccak rate (17 words).
	Keccak(input []uint64) (low, high felt.Felt, err error)

	ConsumeSteps(n uint64) error
	UseBuiltin(b Builtin, n uint64) error
}
