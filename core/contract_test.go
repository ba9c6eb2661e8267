package core_test

import (
	"testing"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/NethermindEth/starknet-replay/utils"
	"github.com/stretchr/testify/assert"
)

func TestContractAddress(t *testing.T) {
	salt := utils.HexToFelt(t, "0x5bebda1b28ba6daa824126577b9fbc984033e8b18360f5e1ef694cb172c7aa5")
	classHash := utils.HexToFelt(t, "0x0439218681f9108b470d2379cf589ef47e60dc5888ee49ec70071671d74ca9c6")

	address := core.ContractAddress(&felt.Zero, classHash, salt, nil)
	assert.Equal(t, *utils.HexToFelt(t, "0x43c6817e70b3fd99a4f120790b2e82c6843df62b573fdadf9e2d677b60ac5eb"), address)

	withCalldata := core.ContractAddress(&felt.Zero, classHash, salt, []felt.Felt{felt.One})
	assert.NotEqual(t, address, withCalldata)

	fromDeployer := core.ContractAddress(felt.NewFromUint64(7), classHash, salt, nil)
	assert.NotEqual(t, address, fromDeployer)
}

func TestReduceAddress(t *testing.T) {
	belowBound := core.AddressBound
	belowBound.Sub(&belowBound, &felt.One)

	aboveBound := core.AddressBound
	aboveBound.Add(&aboveBound, felt.NewFromUint64(5))

	// the largest field element, p - 1
	maxFelt := felt.Zero
	maxFelt.Sub(&maxFelt, &felt.One)

	tests := map[string]struct {
		in, want felt.Felt
	}{
		"zero":        {felt.Zero, felt.Zero},
		"below bound": {belowBound, belowBound},
		"bound":       {core.AddressBound, felt.Zero},
		"above bound": {aboveBound, felt.FromUint64(5)},
		"max felt": {
			maxFelt,
			*utils.HexToFelt(t, "0x11000000000000000000000000000000000000000000000100"),
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.want, core.ReduceAddress(test.in))
		})
	}

	key := core.StorageVarAddress(core.BalancesStorageVar, felt.FromUint64(0xa11ce))
	assert.Negative(t, key.Cmp(&core.AddressBound))
}

func TestSelectorFromName(t *testing.T) {
	assert.Equal(t,
		*utils.HexToFelt(t, "0x83afd3f4caedc6eebf44246fe54e38c95e3179a5ec9ea81740eca5b482d12e"),
		core.SelectorFromName(core.TransferEntryPointName),
	)
	assert.Equal(t, felt.Zero, core.SelectorFromName(core.DefaultEntryPointName))
	assert.Equal(t, felt.Zero, core.SelectorFromName(core.DefaultL1EntryPointName))
}
