package execution

import (
	"errors"
	"fmt"
	"slices"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/crypto"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/NethermindEth/starknet-replay/state"
)

// SyscallHandler serves the syscalls of a single call. Each syscall is first
// charged, then checked against the validity rules of the block's constants,
// then applied to the call's overlay.
type SyscallHandler struct {
	ctx   *Context
	state *state.CachedState
	call  *Call
	info  *CallInfo
}

var _ SyscallSink = (*SyscallHandler)(nil)

func (h *SyscallHandler) charge(s Syscall) error {
	h.ctx.CountSyscall(s)
	return h.ctx.ConsumeSteps(h.ctx.Constants().SyscallCosts[string(s)])
}

// check latches infrastructure failures before handing err to the program.
func (h *SyscallHandler) check(err error) error {
	if err != nil && IsFatal(err) {
		h.ctx.SetFatal(err)
	}
	return err
}

func (h *SyscallHandler) externalCallsForbidden() bool {
	return h.ctx.Mode == ModeValidate && h.ctx.Constants().ValidateDisallowsExternalCalls
}

func (h *SyscallHandler) StorageRead(key *felt.Felt) (felt.Felt, error) {
	if err := h.charge(StorageReadSyscall); err != nil {
		return felt.Zero, err
	}
	value, err := h.state.StorageAt(&h.call.StorageAddress, key)
	if err != nil {
		return felt.Zero, h.check(err)
	}
	h.info.StorageReadValues = append(h.info.StorageReadValues, value)
	h.info.AccessedStorageKeys[*key] = struct{}{}
	return value, nil
}

func (h *SyscallHandler) StorageWrite(key, value *felt.Felt) error {
	if err := h.charge(StorageWriteSyscall); err != nil {
		return err
	}
	h.state.SetStorage(&h.call.StorageAddress, key, value)
	h.info.AccessedStorageKeys[*key] = struct{}{}
	return nil
}

func (h *SyscallHandler) EmitEvent(keys, data []felt.Felt) error {
	if err := h.charge(EmitEventSyscall); err != nil {
		return err
	}
	limits := h.ctx.Constants().TxEventLimits
	if uint64(len(keys)) > limits.MaxKeysLength {
		return &SyscallError{
			Syscall: EmitEventSyscall,
			Reason:  fmt.Sprintf("%d keys exceed the limit of %d", len(keys), limits.MaxKeysLength),
		}
	}
	if uint64(len(data)) > limits.MaxDataLength {
		return &SyscallError{
			Syscall: EmitEventSyscall,
			Reason:  fmt.Sprintf("%d data felts exceed the limit of %d", len(data), limits.MaxDataLength),
		}
	}
	order, err := h.ctx.nextEventOrder()
	if err != nil {
		return err
	}
	h.info.Execution.Events = append(h.info.Execution.Events, OrderedEvent{
		Order: order,
		Keys:  slices.Clone(keys),
		Data:  slices.Clone(data),
	})
	return nil
}

func (h *SyscallHandler) CallContract(address, selector *felt.Felt, calldata []felt.Felt) ([]felt.Felt, error) {
	if err := h.charge(CallContractSyscall); err != nil {
		return nil, err
	}
	if h.externalCallsForbidden() {
		return nil, &SyscallError{Syscall: CallContractSyscall, Reason: "calls to other contracts are not allowed in validate mode"}
	}
	return h.executeInner(&Call{
		EntryPointType: core.External,
		Selector:       *selector,
		Calldata:       slices.Clone(calldata),
		StorageAddress: *address,
		CallerAddress:  h.call.StorageAddress,
		CallType:       CallTypeCall,
	}, h.state)
}

func (h *SyscallHandler) LibraryCall(classHash, selector *felt.Felt, calldata []felt.Felt) ([]felt.Felt, error) {
	if err := h.charge(LibraryCallSyscall); err != nil {
		return nil, err
	}
	target := *classHash
	return h.executeInner(&Call{
		ClassHash:      &target,
		EntryPointType: core.External,
		Selector:       *selector,
		Calldata:       slices.Clone(calldata),
		StorageAddress: h.call.StorageAddress,
		CallerAddress:  h.call.CallerAddress,
		CallType:       CallTypeDelegate,
	}, h.state)
}

// executeInner runs a nested call and records it. A deterministic failure is
// reported to the program as a CallFailure.
func (h *SyscallHandler) executeInner(call *Call, st *state.CachedState) ([]felt.Felt, error) {
	inner, err := ExecuteEntryPoint(h.ctx, st, call)
	if inner != nil {
		h.info.InnerCalls = append(h.info.InnerCalls, inner)
	}
	if err != nil {
		if IsFatal(err) {
			return nil, err
		}
		return nil, &CallFailure{
			ContractAddress: call.StorageAddress,
			Selector:        call.Selector,
			Retdata:         FailureRetdata(err),
			Err:             err,
		}
	}
	return inner.Execution.Retdata, nil
}

func (h *SyscallHandler) Deploy(classHash, salt *felt.Felt, calldata []felt.Felt, deployFromZero bool) (felt.Felt, []felt.Felt, error) {
	if err := h.charge(DeploySyscall); err != nil {
		return felt.Zero, nil, err
	}
	if h.externalCallsForbidden() {
		return felt.Zero, nil, &SyscallError{Syscall: DeploySyscall, Reason: "deploy is not allowed in validate mode"}
	}

	deployer := h.call.StorageAddress
	if deployFromZero {
		deployer = felt.Zero
	}
	address := core.ContractAddress(&deployer, classHash, salt, calldata)

	retdata, err := Deploy(h.ctx, h.state, &deployer, classHash, &address, calldata, func(ctor *CallInfo) {
		h.info.InnerCalls = append(h.info.InnerCalls, ctor)
	})
	if err != nil {
		return felt.Zero, nil, h.check(err)
	}
	return address, retdata, nil
}

// Deploy assigns classHash to address and runs its constructor, all in one
// child overlay of st. record receives the constructor CallInfo whether the
// constructor succeeded or not.
func Deploy(ctx *Context, st *state.CachedState, deployer, classHash, address *felt.Felt,
	calldata []felt.Felt, record func(*CallInfo),
) ([]felt.Felt, error) {
	class, err := st.CompiledClass(classHash)
	if err != nil {
		if errors.Is(err, state.ErrClassNotDeclared) {
			return nil, fmt.Errorf("deploy class %s: %w", classHash, err)
		}
		return nil, err
	}
	current, err := st.ClassHashAt(address)
	if err != nil {
		return nil, err
	}
	if !current.IsZero() {
		return nil, fmt.Errorf("%w: %s", ErrContractAddressUnavailable, address)
	}

	ctor := &Call{
		EntryPointType: core.Constructor,
		Selector:       core.SelectorFromName(core.ConstructorEntryPointName),
		Calldata:       slices.Clone(calldata),
		StorageAddress: *address,
		CallerAddress:  *deployer,
		CallType:       CallTypeCall,
	}

	deployState := st.CreateChild()
	deployState.SetClassHash(address, classHash)

	if !class.HasConstructor() {
		if len(calldata) > 0 {
			_ = st.Discard(deployState)
			return nil, ErrInvalidConstructorCalldata
		}
		record(&CallInfo{Call: *ctor, ClassHash: *classHash})
		return nil, st.MergeChild(deployState)
	}

	inner, err := ExecuteEntryPoint(ctx, deployState, ctor)
	if inner != nil {
		record(inner)
	}
	if err != nil {
		_ = st.Discard(deployState)
		if IsFatal(err) {
			return nil, err
		}
		return nil, &CallFailure{
			ContractAddress: *address,
			Selector:        ctor.Selector,
			Retdata:         FailureRetdata(err),
			Err:             err,
		}
	}
	return inner.Execution.Retdata, st.MergeChild(deployState)
}

func (h *SyscallHandler) GetBlockInfo() (BlockInfo, error) {
	if err := h.charge(GetBlockInfoSyscall); err != nil {
		return BlockInfo{}, err
	}
	return h.blockInfo(), nil
}

func (h *SyscallHandler) blockInfo() BlockInfo {
	if h.ctx.Mode == ModeValidate {
		return h.ctx.Tx.Block.ValidateBlockInfo()
	}
	return h.ctx.Tx.Block.BlockInfo
}

func (h *SyscallHandler) txInfo() TxInfo {
	info := h.ctx.Tx.Info
	info.Signature = slices.Clone(info.Signature)
	return info
}

func (h *SyscallHandler) GetTxInfo() (TxInfo, error) {
	if err := h.charge(GetTxInfoSyscall); err != nil {
		return TxInfo{}, err
	}
	return h.txInfo(), nil
}

func (h *SyscallHandler) GetExecutionInfo() (CallExecutionInfo, error) {
	if err := h.charge(GetExecutionInfoSyscall); err != nil {
		return CallExecutionInfo{}, err
	}
	return CallExecutionInfo{
		Block:           h.blockInfo(),
		Tx:              h.txInfo(),
		CallerAddress:   h.call.CallerAddress,
		ContractAddress: h.call.StorageAddress,
		Selector:        h.call.Selector,
	}, nil
}

func (h *SyscallHandler) GetClassHashAt(address *felt.Felt) (felt.Felt, error) {
	if err := h.charge(GetClassHashAtSyscall); err != nil {
		return felt.Zero, err
	}
	classHash, err := h.state.ClassHashAt(address)
	return classHash, h.check(err)
}

func (h *SyscallHandler) ReplaceClass(classHash *felt.Felt) error {
	if err := h.charge(ReplaceClassSyscall); err != nil {
		return err
	}
	if _, err := h.state.CompiledClass(classHash); err != nil {
		if errors.Is(err, state.ErrClassNotDeclared) {
			return fmt.Errorf("replace class %s: %w", classHash, err)
		}
		return h.check(err)
	}
	h.state.SetClassHash(&h.call.StorageAddress, classHash)
	return nil
}

func (h *SyscallHandler) SendMessageToL1(to *felt.Felt, payload []felt.Felt) error {
	if err := h.charge(SendMessageToL1Syscall); err != nil {
		return err
	}
	if limit := h.ctx.Constants().MaxL1PayloadLength; limit > 0 && uint64(len(payload)) > limit {
		return &SyscallError{
			Syscall: SendMessageToL1Syscall,
			Reason:  fmt.Sprintf("payload of %d felts exceeds the limit of %d", len(payload), limit),
		}
	}
	h.info.Execution.Messages = append(h.info.Execution.Messages, OrderedL2toL1Message{
		Order:   h.ctx.nextMessageOrder(),
		To:      *to,
		Payload: slices.Clone(payload),
	})
	return nil
}

func (h *SyscallHandler) Keccak(input []uint64) (felt.Felt, felt.Felt, error) {
	if err := h.charge(KeccakSyscall); err != nil {
		return felt.Zero, felt.Zero, err
	}
	if len(input)%crypto.KeccakRateWords != 0 {
		return felt.Zero, felt.Zero, &SyscallError{
			Syscall: KeccakSyscall,
			Reason:  fmt.Sprintf("input length %d is not a multiple of %d", len(input), crypto.KeccakRateWords),
		}
	}
	rounds := uint64(len(input) / crypto.KeccakRateWords)
	if err := h.ctx.ConsumeSteps(rounds * h.ctx.Constants().KeccakRoundCost); err != nil {
		return felt.Zero, felt.Zero, err
	}
	h.ctx.UseBuiltin(Keccak, rounds)
	return crypto.KeccakBlocks(input)
}

func (h *SyscallHandler) ConsumeSteps(n uint64) error {
	return h.ctx.ConsumeSteps(n)
}

func (h *SyscallHandler) UseBuiltin(b Builtin, n uint64) error {
	if b >= NumBuiltins {
		return fmt.Errorf("unknown builtin %d", b)
	}
	h.ctx.UseBuiltin(b, n)
	return nil
}
