package execution_test

import (
	"errors"
	"testing"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/NethermindEth/starknet-replay/execution"
	"github.com/NethermindEth/starknet-replay/mocks"
	"github.com/NethermindEth/starknet-replay/state"
	"github.com/NethermindEth/starknet-replay/vm/native/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestExecuteEntryPoint(t *testing.T) {
	e := newEnv(t, "0.13.1")
	ctx := e.context(execution.ModeExecute)

	info, err := execution.ExecuteEntryPoint(ctx, e.state, externalCall(contractA, "set", u64(1), u64(7)))
	require.NoError(t, err)
	assert.False(t, info.Execution.Failed)
	assert.Equal(t, e.testClassHash, info.ClassHash)
	assert.Equal(t, uint64(1+93), info.Resources.Steps)
	assert.Equal(t, uint64(1), info.Resources.Syscalls[execution.StorageWriteSyscall])
	assert.Contains(t, info.AccessedStorageKeys, u64(1))

	info, err = execution.ExecuteEntryPoint(ctx, e.state, externalCall(contractA, "get", u64(1)))
	require.NoError(t, err)
	assert.Equal(t, []felt.Felt{u64(7)}, info.Execution.Retdata)
	assert.Equal(t, []felt.Felt{u64(7)}, info.StorageReadValues)

	assert.Equal(t, uint64(1+93+1+90), ctx.Total().Steps)
	assert.Equal(t, u64(7), e.storageAt(t, e.state, contractA, u64(1)))
}

func TestExecuteEntryPointFailures(t *testing.T) {
	t.Run("contract not deployed", func(t *testing.T) {
		e := newEnv(t, "0.13.1")
		info, err := execution.ExecuteEntryPoint(e.context(execution.ModeExecute), e.state,
			externalCall(u64(0xdead), "get", u64(1)))
		require.ErrorIs(t, err, execution.ErrContractNotDeployed)
		require.NotNil(t, info)
		assert.True(t, info.Execution.Failed)
	})

	t.Run("entry point not found", func(t *testing.T) {
		e := newEnv(t, "0.13.1")
		info, err := execution.ExecuteEntryPoint(e.context(execution.ModeExecute), e.state,
			externalCall(contractA, "no_such_entry_point"))
		require.ErrorIs(t, err, execution.ErrEntryPointNotFound)
		var revert *execution.ExecutionRevert
		require.ErrorAs(t, err, &revert)
		assert.Equal(t, []felt.Felt{execution.EntryPointNotFoundRetdata}, info.Execution.Retdata)
		assert.False(t, execution.IsFatal(err))
	})

	t.Run("class not declared", func(t *testing.T) {
		e := newEnv(t, "0.13.1")
		_, err := execution.ExecuteEntryPoint(e.context(execution.ModeExecute), e.state,
			externalCall(contractA, "library_set", u64(0xbad), u64(1), u64(2)))
		require.ErrorIs(t, err, state.ErrClassNotDeclared)
		assert.Equal(t, felt.Zero, e.storageAt(t, e.state, contractA, u64(1)))
	})

	t.Run("revert discards writes", func(t *testing.T) {
		e := newEnv(t, "0.13.1")
		info, err := execution.ExecuteEntryPoint(e.context(execution.ModeExecute), e.state,
			externalCall(contractA, "write_and_fail", u64(1), u64(2)))
		require.Error(t, err)
		assert.True(t, info.Execution.Failed)
		assert.Contains(t, info.Execution.RevertReason, "assert false")
		assert.Equal(t, felt.Zero, e.storageAt(t, e.state, contractA, u64(1)))
		assert.Empty(t, e.state.Overlay().Storage)
	})

	t.Run("odd calldata", func(t *testing.T) {
		e := newEnv(t, "0.13.1")
		_, err := execution.ExecuteEntryPoint(e.context(execution.ModeExecute), e.state,
			externalCall(contractA, "set", u64(1)))
		var revert *execution.ExecutionRevert
		require.ErrorAs(t, err, &revert)
	})
}

func TestNestedCalls(t *testing.T) {
	t.Run("uncaught failure fails the caller", func(t *testing.T) {
		e := newEnv(t, "0.13.1")
		call := externalCall(contractA, "call", forward(contractB, "write_and_fail", u64(1), u64(2))...)
		info, err := execution.ExecuteEntryPoint(e.context(execution.ModeExecute), e.state, call)

		var failure *execution.CallFailure
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, contractB, failure.ContractAddress)
		require.Len(t, info.InnerCalls, 1)
		assert.True(t, info.InnerCalls[0].Execution.Failed)
		assert.Equal(t, contractA, info.InnerCalls[0].Call.CallerAddress)
		assert.Equal(t, felt.Zero, e.storageAt(t, e.state, contractB, u64(1)))
	})

	t.Run("caught failure only reverts the callee", func(t *testing.T) {
		e := newEnv(t, "0.13.1")
		call := externalCall(contractA, "call_and_catch", forward(contractB, "write_and_fail", u64(1), u64(2))...)
		info, err := execution.ExecuteEntryPoint(e.context(execution.ModeExecute), e.state, call)
		require.NoError(t, err)

		assert.Equal(t, []felt.Felt{felt.Zero}, info.Execution.Retdata)
		assert.Equal(t, felt.One, e.storageAt(t, e.state, contractA, contracts.CaughtKey))
		assert.Equal(t, felt.Zero, e.storageAt(t, e.state, contractB, u64(1)))
		require.Len(t, info.InnerCalls, 1)
		assert.True(t, info.InnerCalls[0].Execution.Failed)
	})

	t.Run("successful callee commits with the caller", func(t *testing.T) {
		e := newEnv(t, "0.13.1")
		call := externalCall(contractA, "call_and_catch", forward(contractB, "set", u64(1), u64(2))...)
		info, err := execution.ExecuteEntryPoint(e.context(execution.ModeExecute), e.state, call)
		require.NoError(t, err)

		assert.Equal(t, []felt.Felt{felt.One}, info.Execution.Retdata)
		assert.Equal(t, u64(2), e.storageAt(t, e.state, contractB, u64(1)))
		assert.Equal(t, felt.Zero, e.storageAt(t, e.state, contractA, contracts.CaughtKey))
	})

	t.Run("resources are attributed per call", func(t *testing.T) {
		e := newEnv(t, "0.13.1")
		ctx := e.context(execution.ModeExecute)
		call := externalCall(contractA, "call", forward(contractB, "set", u64(1), u64(2))...)
		info, err := execution.ExecuteEntryPoint(ctx, e.state, call)
		require.NoError(t, err)

		assert.Equal(t, uint64(1+903), info.Resources.Steps)
		assert.Equal(t, uint64(1+93), info.InnerCalls[0].Resources.Steps)
		total := info.TotalResources()
		assert.Equal(t, ctx.Total().Steps, total.Steps)
	})

	t.Run("library call writes to the caller's storage", func(t *testing.T) {
		e := newEnv(t, "0.13.1")
		call := externalCall(contractA, "library_set", e.testClassHash, u64(3), u64(4))
		info, err := execution.ExecuteEntryPoint(e.context(execution.ModeExecute), e.state, call)
		require.NoError(t, err)

		assert.Equal(t, u64(4), e.storageAt(t, e.state, contractA, u64(3)))
		require.Len(t, info.InnerCalls, 1)
		assert.Equal(t, execution.CallTypeDelegate, info.InnerCalls[0].Call.CallType)
	})
}

func TestRecursionDepth(t *testing.T) {
	e := newEnv(t, "0.13.1")
	depth := e.block.Constants.MaxRecursionDepth

	_, err := execution.ExecuteEntryPoint(e.context(execution.ModeExecute), e.state,
		externalCall(contractA, "recurse", u64(depth-1)))
	require.NoError(t, err)

	_, err = execution.ExecuteEntryPoint(e.context(execution.ModeExecute), e.state,
		externalCall(contractA, "recurse", u64(depth)))
	var exhausted *execution.ResourceExhausted
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, execution.ResourceCallDepth, exhausted.Resource)
	assert.Equal(t, depth, exhausted.Limit)
}

func TestStepLimit(t *testing.T) {
	e := newEnv(t, "0.13.1")
	ctx := e.context(execution.ModeValidate)
	limit := e.block.Constants.ValidateMaxNSteps

	info, err := execution.ExecuteEntryPoint(ctx, e.state, externalCall(contractA, "burn", u64(limit)))
	var exhausted *execution.ResourceExhausted
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, execution.ResourceSteps, exhausted.Resource)
	assert.True(t, info.Execution.Failed)
	assert.Equal(t, limit+1, ctx.Total().Steps)
}

func TestFatalReadErrorIsLatched(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	t.Cleanup(mockCtrl.Finish)

	e := newEnv(t, "0.13.1")
	class := &core.ContractClass{
		EntryPoints: map[core.EntryPointType][]core.EntryPoint{
			core.External: {{Selector: core.SelectorFromName("swallow")}},
		},
		Program: []byte("opaque"),
	}
	classHash := u64(0xc1a55)
	readFailure := errors.New("connection reset")

	reader := mocks.NewMockStateReader(mockCtrl)
	reader.EXPECT().ClassHashAt(&contractA).Return(classHash, nil)
	reader.EXPECT().CompiledClass(&classHash).Return(class, nil)
	reader.EXPECT().StorageAt(&contractA, gomock.Any()).Return(felt.Zero, readFailure)

	backend := mocks.NewMockBackend(mockCtrl)
	backend.EXPECT().RunEntryPoint(class, gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ *core.ContractClass, _ *core.EntryPoint, _ *execution.Call, sink execution.SyscallSink) ([]felt.Felt, error) {
			key := u64(1)
			// the program ignores the failed read
			_, _ = sink.StorageRead(&key)
			return []felt.Felt{felt.One}, nil
		})

	ctx := execution.NewContext(backend, &execution.TxContext{Block: e.block}, execution.ModeExecute,
		execution.PhaseLimits(e.block.Constants, execution.ModeExecute))
	info, err := execution.ExecuteEntryPoint(ctx, state.NewCachedState(reader), externalCall(contractA, "swallow"))
	assert.Nil(t, info)
	require.ErrorIs(t, err, readFailure)
	assert.True(t, execution.IsFatal(err))
	require.ErrorIs(t, ctx.Fatal(), readFailure)
}

func TestUnsupportedProgramIsFatal(t *testing.T) {
	e := newEnv(t, "0.13.1")
	foreign := &core.ContractClass{
		EntryPoints: map[core.EntryPointType][]core.EntryPoint{
			core.External: {{Selector: core.SelectorFromName("run")}},
		},
		Program: []byte("cairo bytecode"),
	}
	foreignHash := u64(0xf0)
	e.reader.WithClass(foreignHash, foreign).WithContract(u64(0xf1), foreignHash)

	info, err := execution.ExecuteEntryPoint(e.context(execution.ModeExecute), e.state, externalCall(u64(0xf1), "run"))
	assert.Nil(t, info)
	require.ErrorIs(t, err, execution.ErrUnsupportedProgram)
	assert.True(t, execution.IsFatal(err))
}
