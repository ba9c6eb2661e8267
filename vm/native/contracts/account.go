package contracts

import (
	"errors"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/crypto"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/NethermindEth/starknet-replay/execution"
	"github.com/NethermindEth/starknet-replay/vm/native"
)

const ExecuteStepCost = 10

var (
	publicKeyXVar = core.StorageVarAddress("Account_public_key_x")
	publicKeyYVar = core.StorageVarAddress("Account_public_key_y")
)

// DummyAccount accepts every transaction without checking signatures.
func DummyAccount() *native.Program {
	return &native.Program{
		Name:         "dummy_account",
		CairoVersion: 1,
		EntryPoints: []native.EntryPoint{
			{Name: core.ValidateEntryPointName, Type: core.External, Func: acceptAll},
			{Name: core.ValidateDeclareEntryPointName, Type: core.External, Func: acceptAll},
			{Name: core.ValidateDeployEntryPointName, Type: core.External, Func: acceptAll},
			{Name: core.ExecuteEntryPointName, Type: core.External, Steps: ExecuteStepCost, Func: executeCalls},
		},
	}
}

// Account checks that transactions are signed by the key pair it was
// deployed with.
func Account(verifier crypto.SignatureVerifier) *native.Program {
	validate := func(sink execution.SyscallSink, _ *execution.Call) ([]felt.Felt, error) {
		return validateSignature(sink, verifier)
	}
	return &native.Program{
		Name:         "account",
		CairoVersion: 1,
		EntryPoints: []native.EntryPoint{
			{Name: core.ConstructorEntryPointName, Type: core.Constructor, Steps: 2, Func: accountConstructor},
			{Name: core.ValidateEntryPointName, Type: core.External, Steps: 5, Func: validate},
			{Name: core.ValidateDeclareEntryPointName, Type: core.External, Steps: 5, Func: validate},
			{Name: core.ValidateDeployEntryPointName, Type: core.External, Steps: 5, Func: validate},
			{Name: core.ExecuteEntryPointName, Type: core.External, Steps: ExecuteStepCost, Func: executeCalls},
			{Name: "get_public_key", Type: core.External, Steps: 1, Func: getPublicKey},
		},
	}
}

func acceptAll(execution.SyscallSink, *execution.Call) ([]felt.Felt, error) {
	return []felt.Felt{core.ValidRetdata}, nil
}

// constructor(public_key_x, public_key_y)
func accountConstructor(sink execution.SyscallSink, call *execution.Call) ([]felt.Felt, error) {
	args, err := native.Args(call, 2)
	if err != nil {
		return nil, err
	}
	if err = sink.StorageWrite(&publicKeyXVar, &args[0]); err != nil {
		return nil, err
	}
	return nil, sink.StorageWrite(&publicKeyYVar, &args[1])
}

func readPublicKey(sink execution.SyscallSink) (crypto.PublicKey, error) {
	x, err := sink.StorageRead(&publicKeyXVar)
	if err != nil {
		return crypto.PublicKey{}, err
	}
	y, err := sink.StorageRead(&publicKeyYVar)
	if err != nil {
		return crypto.PublicKey{}, err
	}
	return crypto.PublicKey{X: x, Y: y}, nil
}

func getPublicKey(sink execution.SyscallSink, _ *execution.Call) ([]felt.Felt, error) {
	key, err := readPublicKey(sink)
	if err != nil {
		return nil, err
	}
	return []felt.Felt{key.X, key.Y}, nil
}

func validateSignature(sink execution.SyscallSink, verifier crypto.SignatureVerifier) ([]felt.Felt, error) {
	txInfo, err := sink.GetTxInfo()
	if err != nil {
		return nil, err
	}
	key, err := readPublicKey(sink)
	if err != nil {
		return nil, err
	}
	if err = sink.UseBuiltin(execution.Ecdsa, 1); err != nil {
		return nil, err
	}
	valid, err := verifier.Verify(key, &txInfo.TransactionHash, txInfo.Signature)
	if err != nil {
		if errors.Is(err, crypto.ErrInvalidSignatureLength) {
			return nil, execution.NewRevert("invalid signature length")
		}
		return nil, execution.NewRevert("signature verification failed: " + err.Error())
	}
	if !valid {
		return nil, execution.NewRevert("invalid signature")
	}
	return []felt.Felt{core.ValidRetdata}, nil
}

// EncodeCalls builds __execute__ calldata:
// [n_calls, (to, selector, calldata_len, calldata...)...].
func EncodeCalls(calls ...AccountCall) []felt.Felt {
	calldata := []felt.Felt{felt.FromUint64(uint64(len(calls)))}
	for _, c := range calls {
		calldata = append(calldata, c.To, c.Selector, felt.FromUint64(uint64(len(c.Calldata))))
		calldata = append(calldata, c.Calldata...)
	}
	return calldata
}

type AccountCall struct {
	To       felt.Felt
	Selector felt.Felt
	Calldata []felt.Felt
}

// executeCalls performs the calls encoded by EncodeCalls in order and returns
// [n_results, (retdata_len, retdata...)...].
func executeCalls(sink execution.SyscallSink, call *execution.Call) ([]felt.Felt, error) {
	if !call.CallerAddress.IsZero() {
		return nil, execution.NewRevert("Account: invalid caller")
	}
	if len(call.Calldata) == 0 {
		return nil, execution.NewRevert("Input too short for arguments")
	}
	nCalls, err := call.Calldata[0].Uint64()
	if err != nil {
		return nil, execution.NewRevert("Account: invalid number of calls")
	}

	result := []felt.Felt{felt.FromUint64(nCalls)}
	offset := 1
	for range nCalls {
		if offset+2 > len(call.Calldata) {
			return nil, execution.NewRevert("Input too short for arguments")
		}
		to, selector := call.Calldata[offset], call.Calldata[offset+1]
		var calldata []felt.Felt
		calldata, offset, err = native.Span(call.Calldata, offset+2)
		if err != nil {
			return nil, err
		}

		retdata, err := sink.CallContract(&to, &selector, calldata)
		if err != nil {
			return nil, err
		}
		result = append(result, felt.FromUint64(uint64(len(retdata))))
		result = append(result, retdata...)
	}
	return result, nil
}
