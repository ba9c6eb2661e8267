package execution_test

import (
	"testing"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/NethermindEth/starknet-replay/execution"
	"github.com/NethermindEth/starknet-replay/state"
	"github.com/NethermindEth/starknet-replay/utils"
	"github.com/NethermindEth/starknet-replay/versioned"
	"github.com/NethermindEth/starknet-replay/vm/native"
	"github.com/NethermindEth/starknet-replay/vm/native/contracts"
	"github.com/stretchr/testify/require"
)

var (
	contractA = felt.FromUint64(0xa11ce)
	contractB = felt.FromUint64(0xb0b)
	sequencer = felt.FromUint64(0x5e9)
)

type env struct {
	backend       *native.Backend
	block         *execution.BlockContext
	reader        *state.MemoryReader
	state         *state.CachedState
	testClassHash felt.Felt
	accountHash   felt.Felt
}

func newEnv(t *testing.T, protocolVersion string) *env {
	t.Helper()

	testProgram, accountProgram := contracts.TestContract(), contracts.DummyAccount()
	backend, err := native.New(utils.NewNopZapLogger(), testProgram, accountProgram)
	require.NoError(t, err)

	registry, err := versioned.DefaultRegistry()
	require.NoError(t, err)
	block, err := execution.NewBlockContext(registry, execution.BlockInfo{
		Number:           1234,
		Timestamp:        1700003599,
		SequencerAddress: sequencer,
	}, protocolVersion)
	require.NoError(t, err)

	testClassHash, err := testProgram.ClassHash()
	require.NoError(t, err)
	accountHash, err := accountProgram.ClassHash()
	require.NoError(t, err)

	reader := state.NewMemoryReader().
		WithClass(testClassHash, testProgram.Class()).
		WithClass(accountHash, accountProgram.Class()).
		WithContract(contractA, testClassHash).
		WithContract(contractB, testClassHash)

	return &env{
		backend:       backend,
		block:         block,
		reader:        reader,
		state:         state.NewCachedState(reader),
		testClassHash: testClassHash,
		accountHash:   accountHash,
	}
}

func (e *env) context(mode execution.ExecutionMode) *execution.Context {
	tx := &execution.TxContext{
		Block: e.block,
		Info: execution.TxInfo{
			Version:         felt.FromUint64(1),
			AccountAddress:  contractA,
			TransactionHash: felt.FromUint64(0x7a5),
			Nonce:           felt.FromUint64(5),
		},
	}
	return execution.NewContext(e.backend, tx, mode, execution.PhaseLimits(e.block.Constants, mode))
}

func externalCall(to felt.Felt, name string, calldata ...felt.Felt) *execution.Call {
	return &execution.Call{
		EntryPointType: core.External,
		Selector:       core.SelectorFromName(name),
		Calldata:       calldata,
		StorageAddress: to,
		CallType:       execution.CallTypeCall,
	}
}

// forward encodes the calldata of the call and call_and_catch entry points.
func forward(to felt.Felt, name string, calldata ...felt.Felt) []felt.Felt {
	out := []felt.Felt{to, core.SelectorFromName(name), felt.FromUint64(uint64(len(calldata)))}
	return append(out, calldata...)
}

func (e *env) storageAt(t *testing.T, st *state.CachedState, addr, key felt.Felt) felt.Felt {
	t.Helper()
	v, err := st.StorageAt(&addr, &key)
	require.NoError(t, err)
	return v
}

func u64(v uint64) felt.Felt {
	return felt.FromUint64(v)
}
