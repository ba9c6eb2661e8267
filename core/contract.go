package core

import (
	"github.com/NethermindEth/starknet-replay/core/crypto"
	"github.com/NethermindEth/starknet-replay/core/felt"
)

const (
	DefaultEntryPointName         = "__default__"
	DefaultL1EntryPointName       = "__l1_default__"
	ValidateEntryPointName        = "__validate__"
	ValidateDeclareEntryPointName = "__validate_declare__"
	ValidateDeployEntryPointName  = "__validate_deploy__"
	ExecuteEntryPointName         = "__execute__"
	TransferEntryPointName        = "transfer"
	ConstructorEntryPointName     = "constructor"
)

// AddressBound is the exclusive upper bound of contract addresses and
// storage keys, 2^251 - 256.
var AddressBound = func() felt.Felt {
	bound, err := felt.NewFromHex("0x7ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff00")
	if err != nil {
		panic(err)
	}
	return *bound
}()

// ReduceAddress maps a hash into the address range. Field elements are below
// twice the bound, so one subtraction suffices.
func ReduceAddress(f felt.Felt) felt.Felt {
	if f.Cmp(&AddressBound) >= 0 {
		f.Sub(&f, &AddressBound)
	}
	return f
}

// ValidRetdata is the felt Cairo 1 account validation entry points must return.
var ValidRetdata = felt.FromBytes([]byte("VALID"))

// SelectorFromName returns the entry point selector of a function name.
func SelectorFromName(name string) felt.Felt {
	if name == DefaultEntryPointName || name == DefaultL1EntryPointName {
		return felt.Zero
	}
	selector, err := crypto.StarknetKeccak([]byte(name))
	if err != nil {
		// keccak writes into an in-memory buffer and cannot fail
		panic(err)
	}
	return *selector
}

// ContractAddress computes the address of a contract deployed by
// callerAddress, see [contract address].
//
// [contract address]: https://docs.starknet.io/documentation/architecture_and_concepts/Contracts/contract-address
func ContractAddress(callerAddress, classHash, salt *felt.Felt, constructorCallData []felt.Felt) felt.Felt {
	prefix := new(felt.Felt).SetBytes([]byte("STARKNET_CONTRACT_ADDRESS"))

	calldata := make([]*felt.Felt, len(constructorCallData))
	for i := range constructorCallData {
		calldata[i] = &constructorCallData[i]
	}
	callDataHash := crypto.PedersenArray(calldata...)

	return ReduceAddress(*crypto.PedersenArray(
		prefix,
		callerAddress,
		salt,
		classHash,
		callDataHash,
	))
}
