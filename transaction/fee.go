package transaction

import (
	"fmt"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/NethermindEth/starknet-replay/execution"
	"github.com/NethermindEth/starknet-replay/versioned"
	"github.com/holiman/uint256"
)

// FeeToken represents the token used for fees
type FeeToken uint8

const (
	ETH FeeToken = iota
	STRK
)

// String returns the string representation of the fee token
func (ft FeeToken) String() string {
	switch ft {
	case ETH:
		return "ETH"
	case STRK:
		return "STRK"
	default:
		return "UNKNOWN"
	}
}

func (ft FeeToken) MarshalText() ([]byte, error) {
	return []byte(ft.String()), nil
}

// UnmarshalText accepts the token names and the RPC price units.
func (ft *FeeToken) UnmarshalText(text []byte) error {
	switch string(text) {
	case "ETH", "WEI":
		*ft = ETH
	case "STRK", "FRI":
		*ft = STRK
	default:
		return fmt.Errorf("invalid fee token: %s", text)
	}
	return nil
}

func feeTokenOf(tx *execution.TxContext) FeeToken {
	if tx.Info.Version.Cmp(&version3) >= 0 {
		return STRK
	}
	return ETH
}

// Fee represents the transaction fee in units of the relevant fee token.
type Fee struct {
	Amount felt.Felt `json:"amount"`
	Unit   FeeToken  `json:"unit"`
}

// Gas is the L1 gas a transaction is charged for: the most expensive of its
// VM resources under the table's weights plus a fixed amount per felt sent
// to L1.
func Gas(c *versioned.Constants, resources *execution.ResourceCounters, messagesPayloadLength uint64) uint64 {
	return resources.L1Gas(c.VMResourceFeeCost) + c.L2ToL1MessageGas*messagesPayloadLength
}

// FeeOf is gas * price. A fee that does not fit in a felt can only come
// from a malformed gas price and is a ConfigurationError.
func FeeOf(gas uint64, price *felt.Felt) (*uint256.Int, error) {
	fee, overflow := new(uint256.Int).MulOverflow(core.FeltToU256(price), uint256.NewInt(gas))
	if !overflow {
		if _, err := core.U256ToFelt(fee); err == nil {
			return fee, nil
		}
	}
	return nil, &execution.ConfigurationError{
		Reason: fmt.Sprintf("fee of %d gas at price %s", gas, price.String()),
		Err:    core.ErrFeltOverflow,
	}
}

// MinimalFee is the lowest max fee a transaction may declare.
func MinimalFee(c *versioned.Constants, price *felt.Felt) (*uint256.Int, error) {
	return FeeOf(c.MinimalL1Gas, price)
}
