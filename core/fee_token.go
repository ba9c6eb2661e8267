package core

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/starknet-replay/core/crypto"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
	"github.com/holiman/uint256"
)

var ErrFeltOverflow = errors.New("value does not fit in a felt")

// Storage variable holding ERC20 balances in the fee token contracts.
const BalancesStorageVar = "ERC20_balances"

// StorageVarAddress returns the storage key of a Cairo storage variable
// mapping indexed by keys, reduced into the address range.
func StorageVarAddress(name string, keys ...felt.Felt) felt.Felt {
	addr, err := crypto.StarknetKeccak([]byte(name))
	if err != nil {
		panic(err)
	}
	for i := range keys {
		addr = crypto.Pedersen(addr, &keys[i])
	}
	return ReduceAddress(*addr)
}

// FeeTokenBalanceKeys returns the storage keys of the low and high 128 bit
// halves of account's balance.
func FeeTokenBalanceKeys(account *felt.Felt) (low, high felt.Felt) {
	low = StorageVarAddress(BalancesStorageVar, *account)
	high = low
	high.Add(&high, &felt.One)
	return low, high
}

var (
	two128      = new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	feltModulus = uint256.MustFromBig(fp.Modulus())
)

// U256FromHalves joins the two 128 bit halves of a Cairo u256.
func U256FromHalves(low, high *felt.Felt) *uint256.Int {
	l := FeltToU256(low)
	h := FeltToU256(high)
	return h.Lsh(h, 128).Or(h, l)
}

// U256ToHalves splits v into its low and high 128 bit halves.
func U256ToHalves(v *uint256.Int) (low, high felt.Felt) {
	var lo, hi uint256.Int
	lo.Mod(v, two128)
	hi.Rsh(v, 128)
	loBytes, hiBytes := lo.Bytes32(), hi.Bytes32()
	low.SetBytes(loBytes[:])
	high.SetBytes(hiBytes[:])
	return low, high
}

func FeltToU256(f *felt.Felt) *uint256.Int {
	b := f.Bytes()
	return new(uint256.Int).SetBytes32(b[:])
}

// U256ToFelt converts v, failing with ErrFeltOverflow when v is not below
// the field prime.
func U256ToFelt(v *uint256.Int) (felt.Felt, error) {
	if !v.Lt(feltModulus) {
		return felt.Zero, fmt.Errorf("%w: %s", ErrFeltOverflow, v.Dec())
	}
	b := v.Bytes32()
	return felt.FromBytes(b[:]), nil
}
