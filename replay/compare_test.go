package replay

import (
	"testing"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/NethermindEth/starknet-replay/execution"
	"github.com/NethermindEth/starknet-replay/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareTransaction(t *testing.T) {
	info := &transaction.ExecutionInfo{
		TransactionHash: felt.FromUint64(0xabc),
		Disposition:     transaction.Committed,
		Fee:             transaction.Fee{Amount: felt.FromUint64(40), Unit: transaction.ETH},
		Resources:       execution.ResourceCounters{Steps: 20, Syscalls: map[execution.Syscall]uint64{"CallContract": 1}},
	}
	info.Resources.Builtins[execution.RangeCheck] = 3

	tests := map[string]struct {
		expected ExpectedTransaction
		field    string
	}{
		"match": {
			expected: ExpectedTransaction{
				TransactionHash: felt.FromUint64(0xabc),
				Fee:             &transaction.Fee{Amount: felt.FromUint64(40), Unit: transaction.ETH},
				Resources:       &execution.ResourceCounters{Steps: 20, Builtins: info.Resources.Builtins},
			},
		},
		"nothing optional recorded": {
			expected: ExpectedTransaction{TransactionHash: felt.FromUint64(0xabc)},
		},
		"hash": {
			expected: ExpectedTransaction{TransactionHash: felt.FromUint64(0xabd)},
			field:    "transaction_hash",
		},
		"fee unit": {
			expected: ExpectedTransaction{
				TransactionHash: felt.FromUint64(0xabc),
				Fee:             &transaction.Fee{Amount: felt.FromUint64(40), Unit: transaction.STRK},
			},
			field: "fee.unit",
		},
		"steps": {
			expected: ExpectedTransaction{
				TransactionHash: felt.FromUint64(0xabc),
				Resources:       &execution.ResourceCounters{Steps: 21, Builtins: info.Resources.Builtins},
			},
			field: "resources.steps",
		},
		"builtin": {
			expected: ExpectedTransaction{
				TransactionHash: felt.FromUint64(0xabc),
				Resources:       &execution.ResourceCounters{Steps: 20},
			},
			field: "resources." + execution.RangeCheck.String(),
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			d := compareTransaction(4, &test.expected, info)
			if test.field == "" {
				assert.Nil(t, d)
				return
			}
			require.NotNil(t, d)
			assert.Equal(t, test.field, d.Field)
			assert.Equal(t, 4, d.TxIndex)
			assert.Contains(t, d.String(), "transaction 4 (0xabc)")
		})
	}
}

func TestSameDisposition(t *testing.T) {
	assert.True(t, sameDisposition(transaction.Committed, transaction.Committed))
	assert.True(t, sameDisposition(transaction.Reverted, transaction.FeeChargeFailure))
	assert.False(t, sameDisposition(transaction.FeeChargeFailure, transaction.Reverted))
	assert.False(t, sameDisposition(transaction.Committed, transaction.Rejected))
}

func TestCompareStateDiffs(t *testing.T) {
	addr, key := felt.FromUint64(1), felt.FromUint64(2)
	base := func() *core.StateDiff {
		d := core.EmptyStateDiff()
		d.StorageDiffs[addr] = map[felt.Felt]felt.Felt{key: felt.FromUint64(3)}
		d.Nonces[addr] = felt.FromUint64(1)
		return d
	}

	assert.Nil(t, compareStateDiffs(base(), base()))

	t.Run("missing storage cell", func(t *testing.T) {
		actual := base()
		delete(actual.StorageDiffs, addr)

		d := compareStateDiffs(base(), actual)
		require.NotNil(t, d)
		assert.Equal(t, -1, d.TxIndex)
		assert.Equal(t, "state_diff.storage[0x1/0x2]", d.Field)
		assert.Equal(t, "0x3", d.Expected)
		assert.Equal(t, core.Absent, d.Actual)
		assert.Equal(t, "block state_diff.storage[0x1/0x2]: expected 0x3, got <absent>", d.String())
	})

	t.Run("unexpected deployment", func(t *testing.T) {
		actual := base()
		actual.DeployedContracts[felt.FromUint64(9)] = felt.FromUint64(0xc1a55)

		d := compareStateDiffs(base(), actual)
		require.NotNil(t, d)
		assert.Equal(t, "state_diff.deployed_contracts[0x9]", d.Field)
		assert.Equal(t, core.Absent, d.Expected)
	})

	t.Run("first in numeric key order", func(t *testing.T) {
		expected, actual := base(), base()
		for _, k := range []uint64{0x2, 0x10} {
			expected.StorageDiffs[addr][felt.FromUint64(k)] = felt.FromUint64(1)
			actual.StorageDiffs[addr][felt.FromUint64(k)] = felt.FromUint64(2)
		}

		d := compareStateDiffs(expected, actual)
		require.NotNil(t, d)
		assert.Equal(t, "state_diff.storage[0x1/0x2]", d.Field)
	})

	t.Run("declared class", func(t *testing.T) {
		expected := base()
		expected.DeclaredClasses[felt.FromUint64(7)] = felt.FromUint64(8)

		d := compareStateDiffs(expected, base())
		require.NotNil(t, d)
		assert.Equal(t, "state_diff.declared_classes[0x7]", d.Field)
	})
}
