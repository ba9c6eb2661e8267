package contracts

import (
	"errors"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/crypto"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/NethermindEth/starknet-replay/execution"
	"github.com/NethermindEth/starknet-replay/vm/native"
)

// CaughtKey is where call_and_catch records that it caught a failure.
var CaughtKey = core.StorageVarAddress("caught")

// TestContract exposes one entry point per syscall plus a few failure modes.
// It is used by tests and by the fuzz harness.
func TestContract() *native.Program {
	ep := func(name string, f native.Func) native.EntryPoint {
		return native.EntryPoint{Name: name, Type: core.External, Steps: 1, Func: f}
	}
	return &native.Program{
		Name:         "test_contract",
		CairoVersion: 1,
		EntryPoints: []native.EntryPoint{
			{Name: core.ConstructorEntryPointName, Type: core.Constructor, Steps: 1, Func: writePairs},
			{Name: "on_message", Type: core.L1Handler, Steps: 1, Func: onMessage},
			ep("set", writePairs),
			ep("get", get),
			ep("fail", fail),
			ep("write_and_fail", writeAndFail),
			ep("call", callContract),
			ep("call_and_catch", callAndCatch),
			ep("burn", burn),
			ep("recurse", recurse),
			ep("emit", emit),
			ep("send_message", sendMessage),
			ep("deploy", deploy),
			ep("library_set", librarySet),
			ep("replace", replace),
			ep("keccak", keccak),
			ep("block_info", blockInfo),
			ep("tx_info", txInfo),
			ep("class_hash_at", classHashAt),
			ep("pedersen", pedersen),
		},
	}
}

// writePairs(key, value, key, value, ...)
func writePairs(sink execution.SyscallSink, call *execution.Call) ([]felt.Felt, error) {
	if len(call.Calldata)%2 != 0 {
		return nil, execution.NewRevert("odd number of key value felts")
	}
	for i := 0; i < len(call.Calldata); i += 2 {
		if err := sink.StorageWrite(&call.Calldata[i], &call.Calldata[i+1]); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func get(sink execution.SyscallSink, call *execution.Call) ([]felt.Felt, error) {
	args, err := native.Args(call, 1)
	if err != nil {
		return nil, err
	}
	value, err := sink.StorageRead(&args[0])
	if err != nil {
		return nil, err
	}
	return []felt.Felt{value}, nil
}

func fail(execution.SyscallSink, *execution.Call) ([]felt.Felt, error) {
	return nil, execution.NewRevert("assert false", felt.FromBytes([]byte("assert false")))
}

func writeAndFail(sink execution.SyscallSink, call *execution.Call) ([]felt.Felt, error) {
	if _, err := writePairs(sink, call); err != nil {
		return nil, err
	}
	return fail(sink, call)
}

func decodeCall(call *execution.Call) (to, selector felt.Felt, calldata []felt.Felt, err error) {
	args, err := native.Args(call, 2)
	if err != nil {
		return felt.Zero, felt.Zero, nil, err
	}
	calldata, _, err = native.Span(call.Calldata, 2)
	return args[0], args[1], calldata, err
}

// call(to, selector, calldata_len, calldata...) propagates failures.
func callContract(sink execution.SyscallSink, call *execution.Call) ([]felt.Felt, error) {
	to, selector, calldata, err := decodeCall(call)
	if err != nil {
		return nil, err
	}
	return sink.CallContract(&to, &selector, calldata)
}

// call_and_catch(to, selector, calldata_len, calldata...) handles a failure of
// the callee by recording it at CaughtKey and returning [0].
func callAndCatch(sink execution.SyscallSink, call *execution.Call) ([]felt.Felt, error) {
	to, selector, calldata, err := decodeCall(call)
	if err != nil {
		return nil, err
	}
	retdata, err := sink.CallContract(&to, &selector, calldata)
	var failure *execution.CallFailure
	if errors.As(err, &failure) {
		if err = sink.StorageWrite(&CaughtKey, &felt.One); err != nil {
			return nil, err
		}
		return []felt.Felt{felt.Zero}, nil
	} else if err != nil {
		return nil, err
	}
	return append([]felt.Felt{felt.One}, retdata...), nil
}

// burn(n) consumes n steps.
func burn(sink execution.SyscallSink, call *execution.Call) ([]felt.Felt, error) {
	args, err := native.Args(call, 1)
	if err != nil {
		return nil, err
	}
	n, err := args[0].Uint64()
	if err != nil {
		return nil, execution.NewRevert("step count does not fit in u64")
	}
	return nil, sink.ConsumeSteps(n)
}

// recurse(depth) calls itself until depth reaches zero.
func recurse(sink execution.SyscallSink, call *execution.Call) ([]felt.Felt, error) {
	args, err := native.Args(call, 1)
	if err != nil {
		return nil, err
	}
	if args[0].IsZero() {
		return nil, nil
	}
	var next felt.Felt
	next.Sub(&args[0], &felt.One)
	info, err := sink.GetExecutionInfo()
	if err != nil {
		return nil, err
	}
	return sink.CallContract(&info.ContractAddress, &info.Selector, []felt.Felt{next})
}

// emit(keys_len, keys..., data_len, data...)
func emit(sink execution.SyscallSink, call *execution.Call) ([]felt.Felt, error) {
	keys, offset, err := native.Span(call.Calldata, 0)
	if err != nil {
		return nil, err
	}
	data, _, err := native.Span(call.Calldata, offset)
	if err != nil {
		return nil, err
	}
	return nil, sink.EmitEvent(keys, data)
}

// send_message(to, payload_len, payload...)
func sendMessage(sink execution.SyscallSink, call *execution.Call) ([]felt.Felt, error) {
	args, err := native.Args(call, 1)
	if err != nil {
		return nil, err
	}
	payload, _, err := native.Span(call.Calldata, 1)
	if err != nil {
		return nil, err
	}
	return nil, sink.SendMessageToL1(&args[0], payload)
}

// deploy(class_hash, salt, from_zero, calldata_len, calldata...) -> [address, retdata...]
func deploy(sink execution.SyscallSink, call *execution.Call) ([]felt.Felt, error) {
	args, err := native.Args(call, 3)
	if err != nil {
		return nil, err
	}
	calldata, _, err := native.Span(call.Calldata, 3)
	if err != nil {
		return nil, err
	}
	address, retdata, err := sink.Deploy(&args[0], &args[1], calldata, !args[2].IsZero())
	if err != nil {
		return nil, err
	}
	return append([]felt.Felt{address}, retdata...), nil
}

// library_set(class_hash, key, value) runs set of class_hash on this contract's storage.
func librarySet(sink execution.SyscallSink, call *execution.Call) ([]felt.Felt, error) {
	args, err := native.Args(call, 3)
	if err != nil {
		return nil, err
	}
	selector := core.SelectorFromName("set")
	return sink.LibraryCall(&args[0], &selector, args[1:3])
}

func replace(sink execution.SyscallSink, call *execution.Call) ([]felt.Felt, error) {
	args, err := native.Args(call, 1)
	if err != nil {
		return nil, err
	}
	return nil, sink.ReplaceClass(&args[0])
}

// keccak(words_len, words...) -> [low, high]
func keccak(sink execution.SyscallSink, call *execution.Call) ([]felt.Felt, error) {
	words, _, err := native.Span(call.Calldata, 0)
	if err != nil {
		return nil, err
	}
	input := make([]uint64, len(words))
	for i := range words {
		if input[i], err = words[i].Uint64(); err != nil {
			return nil, execution.NewRevert("keccak input word does not fit in u64")
		}
	}
	low, high, err := sink.Keccak(input)
	if err != nil {
		return nil, err
	}
	return []felt.Felt{low, high}, nil
}

func blockInfo(sink execution.SyscallSink, _ *execution.Call) ([]felt.Felt, error) {
	info, err := sink.GetBlockInfo()
	if err != nil {
		return nil, err
	}
	return []felt.Felt{felt.FromUint64(info.Number), felt.FromUint64(info.Timestamp), info.SequencerAddress}, nil
}

func txInfo(sink execution.SyscallSink, _ *execution.Call) ([]felt.Felt, error) {
	info, err := sink.GetTxInfo()
	if err != nil {
		return nil, err
	}
	return []felt.Felt{info.Version, info.AccountAddress, info.MaxFee, info.TransactionHash, info.ChainID, info.Nonce}, nil
}

func classHashAt(sink execution.SyscallSink, call *execution.Call) ([]felt.Felt, error) {
	args, err := native.Args(call, 1)
	if err != nil {
		return nil, err
	}
	classHash, err := sink.GetClassHashAt(&args[0])
	if err != nil {
		return nil, err
	}
	return []felt.Felt{classHash}, nil
}

// pedersen(a, b) hashes with the Pedersen builtin.
func pedersen(sink execution.SyscallSink, call *execution.Call) ([]felt.Felt, error) {
	args, err := native.Args(call, 2)
	if err != nil {
		return nil, err
	}
	if err = sink.UseBuiltin(execution.Pedersen, 1); err != nil {
		return nil, err
	}
	return []felt.Felt{*crypto.Pedersen(&args[0], &args[1])}, nil
}

// on_message(from_address, payload...) stores the L1 sender at its own address.
func onMessage(sink execution.SyscallSink, call *execution.Call) ([]felt.Felt, error) {
	args, err := native.Args(call, 1)
	if err != nil {
		return nil, err
	}
	key := core.StorageVarAddress("l1_sender")
	return nil, sink.StorageWrite(&key, &args[0])
}

// All returns every builtin program.
func All(verifier crypto.SignatureVerifier) []*native.Program {
	return []*native.Program{ERC20(), DummyAccount(), Account(verifier), TestContract()}
}
