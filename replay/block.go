package replay

import (
	"fmt"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/NethermindEth/starknet-replay/execution"
	"github.com/NethermindEth/starknet-replay/transaction"
)

// Block is a block to replay together with what the chain recorded for it.
type Block struct {
	execution.BlockInfo
	ProtocolVersion string                 `json:"starknet_version"`
	ChainID         felt.Felt              `json:"chain_id"`
	GasPrices       execution.GasPrices    `json:"l1_gas_price"`
	FeeTokens       execution.FeeTokens    `json:"fee_tokens"`
	Transactions    []transaction.Envelope `json:"transactions"`
	Expected        *ExpectedOutcome       `json:"expected,omitempty"`
}

// ExpectedOutcome is the recorded result of a block. Transactions is indexed
// like Block.Transactions. A nil StateDiff is not compared.
type ExpectedOutcome struct {
	Transactions []ExpectedTransaction `json:"transactions"`
	StateDiff    *core.StateDiff       `json:"state_diff,omitempty"`
}

// ExpectedTransaction is a recorded receipt. Fee and Resources are compared
// only when recorded.
type ExpectedTransaction struct {
	TransactionHash felt.Felt                   `json:"transaction_hash"`
	Disposition     transaction.Disposition     `json:"disposition"`
	Fee             *transaction.Fee            `json:"fee,omitempty"`
	Resources       *execution.ResourceCounters `json:"resources,omitempty"`
	RevertReason    string                      `json:"revert_reason,omitempty"`
}

// Divergence is the first point where a replay disagrees with the record.
// TxIndex is -1 for block level fields.
type Divergence struct {
	TxIndex  int       `json:"tx_index"`
	TxHash   felt.Felt `json:"tx_hash"`
	Field    string    `json:"field"`
	Expected string    `json:"expected"`
	Actual   string    `json:"actual"`
}

func (d *Divergence) String() string {
	if d.TxIndex < 0 {
		return fmt.Sprintf("block %s: expected %s, got %s", d.Field, d.Expected, d.Actual)
	}
	return fmt.Sprintf("transaction %d (%s) %s: expected %s, got %s",
		d.TxIndex, d.TxHash.String(), d.Field, d.Expected, d.Actual)
}

// BlockResult is the outcome of replaying one block. Err is set when the
// block could not be replayed at all, for instance because the node kept
// failing.
type BlockResult struct {
	Number     uint64                       `json:"block_number"`
	Infos      []*transaction.ExecutionInfo `json:"-"`
	StateDiff  *core.StateDiff              `json:"state_diff"`
	Divergence *Divergence                  `json:"divergence,omitempty"`
	Err        error                        `json:"-"`
}

func (r *BlockResult) Matches() bool {
	return r.Err == nil && r.Divergence == nil
}
