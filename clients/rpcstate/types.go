package rpcstate

import (
	"encoding/json"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/NethermindEth/starknet-replay/execution"
)

type ResourcePrice struct {
	PriceInFri felt.Felt `json:"price_in_fri"`
	PriceInWei felt.Felt `json:"price_in_wei"`
}

type BlockHeader struct {
	BlockHash        felt.Felt     `json:"block_hash"`
	ParentHash       felt.Felt     `json:"parent_hash"`
	BlockNumber      uint64        `json:"block_number"`
	NewRoot          felt.Felt     `json:"new_root"`
	Timestamp        uint64        `json:"timestamp"`
	SequencerAddress felt.Felt     `json:"sequencer_address"`
	L1GasPrice       ResourcePrice `json:"l1_gas_price"`
	L1DataGasPrice   ResourcePrice `json:"l1_data_gas_price"`
	L1DAMode         string        `json:"l1_da_mode"`
	StarknetVersion  string        `json:"starknet_version"`
	Status           string        `json:"status"`
}

type FeePayment struct {
	Amount felt.Felt `json:"amount"`
	Unit   string    `json:"unit"`
}

type Event struct {
	FromAddress felt.Felt   `json:"from_address"`
	Keys        []felt.Felt `json:"keys"`
	Data        []felt.Felt `json:"data"`
}

type MessageToL1 struct {
	FromAddress felt.Felt   `json:"from_address"`
	ToAddress   felt.Felt   `json:"to_address"`
	Payload     []felt.Felt `json:"payload"`
}

type ExecutionResources struct {
	Steps       uint64 `json:"steps"`
	MemoryHoles uint64 `json:"memory_holes"`
	Pedersen    uint64 `json:"pedersen_builtin_applications"`
	RangeCheck  uint64 `json:"range_check_builtin_applications"`
	Ecdsa       uint64 `json:"ecdsa_builtin_applications"`
	Bitwise     uint64 `json:"bitwise_builtin_applications"`
	EcOp        uint64 `json:"ec_op_builtin_applications"`
	Keccak      uint64 `json:"keccak_builtin_applications"`
	Poseidon    uint64 `json:"poseidon_builtin_applications"`
}

// Counters converts the receipt's resources to engine counters. Receipts
// carry no syscall counts.
func (r *ExecutionResources) Counters() execution.ResourceCounters {
	counters := execution.ResourceCounters{Steps: r.Steps, MemoryHoles: r.MemoryHoles}
	counters.Builtins[execution.Pedersen] = r.Pedersen
	counters.Builtins[execution.RangeCheck] = r.RangeCheck
	counters.Builtins[execution.Ecdsa] = r.Ecdsa
	counters.Builtins[execution.Bitwise] = r.Bitwise
	counters.Builtins[execution.EcOp] = r.EcOp
	counters.Builtins[execution.Keccak] = r.Keccak
	counters.Builtins[execution.Poseidon] = r.Poseidon
	return counters
}

const (
	ExecutionSucceeded = "SUCCEEDED"
	ExecutionReverted  = "REVERTED"
)

type Receipt struct {
	Type               string              `json:"type"`
	TransactionHash    felt.Felt           `json:"transaction_hash"`
	ActualFee          FeePayment          `json:"actual_fee"`
	ExecutionStatus    string              `json:"execution_status"`
	FinalityStatus     string              `json:"finality_status"`
	RevertReason       string              `json:"revert_reason,omitempty"`
	Events             []Event             `json:"events"`
	MessagesSent       []MessageToL1       `json:"messages_sent"`
	ExecutionResources *ExecutionResources `json:"execution_resources,omitempty"`
}

type TransactionWithReceipt struct {
	// Transaction is kept raw; its layout depends on type and version.
	Transaction json.RawMessage `json:"transaction"`
	Receipt     Receipt         `json:"receipt"`
}

type BlockWithReceipts struct {
	BlockHeader
	Transactions []TransactionWithReceipt `json:"transactions"`
}

type StorageDiff struct {
	Address        felt.Felt           `json:"address"`
	StorageEntries []core.StorageEntry `json:"storage_entries"`
}

type DeployedContract struct {
	Address   felt.Felt `json:"address"`
	ClassHash felt.Felt `json:"class_hash"`
}

type ReplacedClass struct {
	ContractAddress felt.Felt `json:"contract_address"`
	ClassHash       felt.Felt `json:"class_hash"`
}

type NonceUpdate struct {
	ContractAddress felt.Felt `json:"contract_address"`
	Nonce           felt.Felt `json:"nonce"`
}

type StateDiff struct {
	StorageDiffs              []StorageDiff        `json:"storage_diffs"`
	DeprecatedDeclaredClasses []felt.Felt          `json:"deprecated_declared_classes"`
	DeclaredClasses           []core.DeclaredClass `json:"declared_classes"`
	DeployedContracts         []DeployedContract   `json:"deployed_contracts"`
	ReplacedClasses           []ReplacedClass      `json:"replaced_classes"`
	Nonces                    []NonceUpdate        `json:"nonces"`
}

// Core converts the diff. Deprecated declared classes have no compiled
// class hash and are recorded with a zero one.
func (d *StateDiff) Core() *core.StateDiff {
	diff := core.EmptyStateDiff()
	for _, storage := range d.StorageDiffs {
		entries := diff.StorageDiffs[storage.Address]
		if entries == nil {
			entries = make(map[felt.Felt]felt.Felt, len(storage.StorageEntries))
			diff.StorageDiffs[storage.Address] = entries
		}
		for _, entry := range storage.StorageEntries {
			entries[entry.Key] = entry.Value
		}
	}
	for _, classHash := range d.DeprecatedDeclaredClasses {
		diff.DeclaredClasses[classHash] = felt.Zero
	}
	for _, declared := range d.DeclaredClasses {
		diff.DeclaredClasses[declared.ClassHash] = declared.CompiledClassHash
	}
	for _, deployed := range d.DeployedContracts {
		diff.DeployedContracts[deployed.Address] = deployed.ClassHash
	}
	for _, replaced := range d.ReplacedClasses {
		diff.ReplacedClasses[replaced.ContractAddress] = replaced.ClassHash
	}
	for _, nonce := range d.Nonces {
		diff.Nonces[nonce.ContractAddress] = nonce.Nonce
	}
	return diff
}

type StateUpdate struct {
	BlockHash felt.Felt `json:"block_hash"`
	NewRoot   felt.Felt `json:"new_root"`
	OldRoot   felt.Felt `json:"old_root"`
	StateDiff StateDiff `json:"state_diff"`
}
