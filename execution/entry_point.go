package execution

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/NethermindEth/starknet-replay/state"
)

// ExecuteEntryPoint runs call in a child overlay of st. The overlay is merged
// into st if the call succeeds and discarded otherwise.
//
// A deterministic failure returns the failed CallInfo together with the error.
// Infrastructure failures (see IsFatal) return a nil CallInfo and are latched
// on ctx.
func ExecuteEntryPoint(ctx *Context, st *state.CachedState, call *Call) (*CallInfo, error) {
	info := &CallInfo{
		Call:                *call,
		AccessedStorageKeys: make(map[felt.Felt]struct{}),
	}
	if err := ctx.EnterCall(); err != nil {
		return failCall(info, err)
	}

	callState := st.CreateChild()
	retdata, err := runEntryPoint(ctx, callState, call, info)
	info.Resources = ctx.ExitCall()
	if err == nil {
		// a program may have swallowed a failed read
		err = ctx.Fatal()
	}

	if err != nil {
		if discardErr := st.Discard(callState); discardErr != nil {
			return nil, discardErr
		}
		if IsFatal(err) {
			ctx.SetFatal(err)
			return nil, err
		}
		return failCall(info, err)
	}

	if err = st.MergeChild(callState); err != nil {
		return nil, err
	}
	info.Execution.Retdata = retdata
	return info, nil
}

func failCall(info *CallInfo, err error) (*CallInfo, error) {
	info.Execution.Failed = true
	info.Execution.RevertReason = err.Error()
	info.Execution.Retdata = FailureRetdata(err)
	return info, err
}

func runEntryPoint(ctx *Context, callState *state.CachedState, call *Call, info *CallInfo) ([]felt.Felt, error) {
	storageClassHash, err := callState.ClassHashAt(&call.StorageAddress)
	if err != nil {
		return nil, err
	}

	classHash := storageClassHash
	if call.ClassHash != nil {
		classHash = *call.ClassHash
	} else if storageClassHash.IsZero() {
		return nil, fmt.Errorf("%w: %s", ErrContractNotDeployed, call.StorageAddress)
	}
	info.ClassHash = classHash

	class, err := callState.CompiledClass(&classHash)
	if err != nil {
		if errors.Is(err, state.ErrClassNotDeclared) {
			return nil, fmt.Errorf("class %s: %w", classHash, err)
		}
		return nil, err
	}

	entryPoint, found := class.EntryPoint(call.EntryPointType, &call.Selector)
	if !found {
		return nil, &ExecutionRevert{
			Reason:  fmt.Sprintf("%s entry point %s not found in class %s", call.EntryPointType, call.Selector, classHash),
			Retdata: []felt.Felt{EntryPointNotFoundRetdata},
			Err:     ErrEntryPointNotFound,
		}
	}

	handler := &SyscallHandler{ctx: ctx, state: callState, call: call, info: info}
	return ctx.Backend.RunEntryPoint(class, entryPoint, call, handler)
}
