package core_test

import (
	"encoding/json"
	"testing"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type write struct {
	addr, key, value uint64
}

func diffFrom(writes []write, nonces map[uint64]uint64) *core.StateDiff {
	diff := core.EmptyStateDiff()
	for _, w := range writes {
		addr := felt.FromUint64(w.addr)
		if diff.StorageDiffs[addr] == nil {
			diff.StorageDiffs[addr] = make(map[felt.Felt]felt.Felt)
		}
		diff.StorageDiffs[addr][felt.FromUint64(w.key)] = felt.FromUint64(w.value)
	}
	for addr, nonce := range nonces {
		diff.Nonces[felt.FromUint64(addr)] = felt.FromUint64(nonce)
	}
	return diff
}

func TestStateDiffCanonicalForm(t *testing.T) {
	writes := []write{{3, 1, 10}, {1, 9, 11}, {1, 2, 12}, {2, 5, 13}}
	reversed := []write{{2, 5, 13}, {1, 2, 12}, {1, 9, 11}, {3, 1, 10}}

	a := diffFrom(writes, map[uint64]uint64{1: 1, 2: 4})
	b := diffFrom(reversed, map[uint64]uint64{2: 4, 1: 1})

	canonical := a.Canonical()
	require.Len(t, canonical.StorageDiffs, 3)
	assert.Equal(t, felt.FromUint64(1), canonical.StorageDiffs[0].Address)
	assert.Equal(t, []core.StorageEntry{
		{Key: felt.FromUint64(2), Value: felt.FromUint64(12)},
		{Key: felt.FromUint64(9), Value: felt.FromUint64(11)},
	}, canonical.StorageDiffs[0].Entries)

	cborA, err := a.Marshal()
	require.NoError(t, err)
	cborB, err := b.Marshal()
	require.NoError(t, err)
	assert.Equal(t, cborA, cborB)

	jsonA, err := json.Marshal(a)
	require.NoError(t, err)
	jsonB, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, string(jsonA), string(jsonB))
	assert.Equal(t, jsonA, jsonB)

	assert.Equal(t, a.Commitment(), b.Commitment())
	assert.True(t, a.Equal(b))

	decoded, err := core.UnmarshalStateDiff(cborA)
	require.NoError(t, err)
	assert.True(t, a.Equal(decoded))

	var fromJSON core.StateDiff
	require.NoError(t, json.Unmarshal(jsonA, &fromJSON))
	assert.True(t, a.Equal(&fromJSON))
}

func TestStateDiffFirstDifference(t *testing.T) {
	actual := diffFrom([]write{{1, 1, 1}, {1, 2, 2}}, map[uint64]uint64{1: 1})

	tests := map[string]struct {
		expected *core.StateDiff
		want     *core.Difference
	}{
		"equal": {
			expected: diffFrom([]write{{1, 2, 2}, {1, 1, 1}}, map[uint64]uint64{1: 1}),
		},
		"value differs": {
			expected: diffFrom([]write{{1, 1, 1}, {1, 2, 3}}, map[uint64]uint64{1: 1}),
			want:     &core.Difference{Field: "storage[0x1/0x2]", Expected: "0x3", Actual: "0x2"},
		},
		"missing storage": {
			expected: diffFrom([]write{{1, 1, 1}, {1, 2, 2}, {1, 3, 3}}, map[uint64]uint64{1: 1}),
			want:     &core.Difference{Field: "storage[0x1/0x3]", Expected: "0x3", Actual: core.Absent},
		},
		"unexpected storage": {
			expected: diffFrom([]write{{1, 2, 2}}, map[uint64]uint64{1: 1}),
			want:     &core.Difference{Field: "storage[0x1/0x1]", Expected: core.Absent, Actual: "0x1"},
		},
		"nonce differs": {
			expected: diffFrom([]write{{1, 1, 1}, {1, 2, 2}}, map[uint64]uint64{1: 2}),
			want:     &core.Difference{Field: "nonces[0x1]", Expected: "0x2", Actual: "0x1"},
		},
		"numeric key order": {
			expected: diffFrom([]write{{1, 1, 1}, {1, 2, 9}, {1, 0x10, 9}}, map[uint64]uint64{1: 1}),
			want:     &core.Difference{Field: "storage[0x1/0x2]", Expected: "0x9", Actual: "0x2"},
		},
		"numeric address order": {
			expected: diffFrom([]write{{1, 1, 1}, {1, 2, 2}, {0x10, 1, 1}, {3, 1, 1}}, map[uint64]uint64{1: 1}),
			want:     &core.Difference{Field: "storage[0x3/0x1]", Expected: "0x1", Actual: core.Absent},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.want, actual.FirstDifference(test.expected))
			assert.Equal(t, test.want == nil, actual.Equal(test.expected))
		})
	}
}

func TestStateDiffMerge(t *testing.T) {
	first := diffFrom([]write{{1, 1, 1}}, map[uint64]uint64{1: 1})
	second := diffFrom([]write{{1, 1, 5}, {2, 1, 1}}, map[uint64]uint64{1: 2})
	second.DeployedContracts[felt.FromUint64(2)] = felt.FromUint64(0xc1a55)

	first.Merge(second)
	assert.Equal(t, felt.FromUint64(5), first.StorageDiffs[felt.FromUint64(1)][felt.FromUint64(1)])
	assert.Equal(t, felt.FromUint64(2), first.Nonces[felt.FromUint64(1)])
	assert.Equal(t, 4, first.Length())
	assert.False(t, first.IsEmpty())
	assert.True(t, core.EmptyStateDiff().IsEmpty())
}
