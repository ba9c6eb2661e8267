package core_test

import (
	"testing"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestU256ToFelt(t *testing.T) {
	modulus := uint256.MustFromBig(fp.Modulus())
	var maxFelt felt.Felt
	maxFelt.Sub(&felt.Zero, &felt.One)

	t.Run("below modulus", func(t *testing.T) {
		got, err := core.U256ToFelt(uint256.NewInt(42))
		require.NoError(t, err)
		assert.Equal(t, felt.FromUint64(42), got)

		got, err = core.U256ToFelt(new(uint256.Int).SubUint64(modulus, 1))
		require.NoError(t, err)
		assert.Equal(t, maxFelt, got)
	})

	for name, v := range map[string]*uint256.Int{
		"modulus":     modulus,
		"max uint256": new(uint256.Int).SetAllOne(),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := core.U256ToFelt(v)
			assert.ErrorIs(t, err, core.ErrFeltOverflow)
		})
	}
}
