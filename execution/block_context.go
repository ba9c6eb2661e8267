package execution

import (
	"github.com/Masterminds/semver/v3"
	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/NethermindEth/starknet-replay/versioned"
)

type BlockInfo struct {
	Number           uint64    `json:"block_number"`
	Timestamp        uint64    `json:"timestamp"`
	SequencerAddress felt.Felt `json:"sequencer_address"`
}

// GasPrices are the L1 gas prices of a block, in wei (ETH) and fri (STRK).
type GasPrices struct {
	ETH  felt.Felt `json:"price_in_wei"`
	STRK felt.Felt `json:"price_in_fri"`
}

// FeeTokens are the addresses of the fee token contracts.
type FeeTokens struct {
	ETH  felt.Felt `json:"eth_fee_token_address"`
	STRK felt.Felt `json:"strk_fee_token_address"`
}

// BlockContext holds the read-only parameters of the block being executed.
// Constants is resolved from the protocol version once, on construction.
type BlockContext struct {
	BlockInfo
	ProtocolVersion *semver.Version
	ChainID         felt.Felt
	GasPrices       GasPrices
	FeeTokens       FeeTokens
	Constants       *versioned.Constants
}

type BlockContextOption func(*BlockContext)

func WithChainID(chainID felt.Felt) BlockContextOption {
	return func(bc *BlockContext) {
		bc.ChainID = chainID
	}
}

func WithGasPrices(prices GasPrices) BlockContextOption {
	return func(bc *BlockContext) {
		bc.GasPrices = prices
	}
}

func WithFeeTokens(tokens FeeTokens) BlockContextOption {
	return func(bc *BlockContext) {
		bc.FeeTokens = tokens
	}
}

// NewBlockContext resolves the constants table for protocolVersion. Any
// failure to do so is a ConfigurationError.
func NewBlockContext(registry *versioned.Registry, info BlockInfo, protocolVersion string,
	opts ...BlockContextOption,
) (*BlockContext, error) {
	version, err := core.ParseBlockVersion(protocolVersion)
	if err != nil {
		return nil, &ConfigurationError{Reason: "malformed protocol version " + protocolVersion, Err: err}
	}
	constants, err := registry.Resolve(version)
	if err != nil {
		return nil, &ConfigurationError{Reason: "no constants table", Err: err}
	}
	for _, s := range AllSyscalls {
		if _, ok := constants.SyscallCosts[string(s)]; !ok {
			return nil, &ConfigurationError{Reason: "constants " + constants.Version + " lack a cost for " + string(s)}
		}
	}

	bc := &BlockContext{
		BlockInfo:       info,
		ProtocolVersion: version,
		Constants:       constants,
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc, nil
}

// ValidateBlockInfo is the block info seen by validation entry points.
func (bc *BlockContext) ValidateBlockInfo() BlockInfo {
	info := bc.BlockInfo
	if r := bc.Constants.ValidateBlockNumberRounding; r > 0 {
		info.Number = info.Number / r * r
	}
	if r := bc.Constants.ValidateTimestampRounding; r > 0 {
		info.Timestamp = info.Timestamp / r * r
	}
	return info
}

// TxInfo is what get_tx_info reports to contracts.
type TxInfo struct {
	Version         felt.Felt
	AccountAddress  felt.Felt
	MaxFee          felt.Felt
	Signature       []felt.Felt
	TransactionHash felt.Felt
	ChainID         felt.Felt
	Nonce           felt.Felt
}

// TxContext binds a transaction to the block it executes in.
type TxContext struct {
	Block *BlockContext
	Info  TxInfo
}

var version3 = felt.FromUint64(3)

func (tc *TxContext) usesSTRK() bool {
	return tc.Info.Version.Cmp(&version3) >= 0
}

// FeeTokenAddress returns the token fees are paid in: STRK from version 3, ETH before.
func (tc *TxContext) FeeTokenAddress() felt.Felt {
	if tc.usesSTRK() {
		return tc.Block.FeeTokens.STRK
	}
	return tc.Block.FeeTokens.ETH
}

func (tc *TxContext) GasPrice() felt.Felt {
	if tc.usesSTRK() {
		return tc.Block.GasPrices.STRK
	}
	return tc.Block.GasPrices.ETH
}
