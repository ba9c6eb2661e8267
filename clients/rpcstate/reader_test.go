package rpcstate_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/NethermindEth/starknet-replay/clients/rpcstate"
	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/NethermindEth/starknet-replay/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sierraClass = `{
	"sierra_program": ["0x1", "0x2", "0x3"],
	"contract_class_version": "0.1.0",
	"entry_points_by_type": {
		"EXTERNAL": [{"selector": "0x5", "function_idx": 1}, {"selector": "0x6", "function_idx": 0}],
		"L1_HANDLER": [],
		"CONSTRUCTOR": [{"selector": "0x7", "function_idx": 2}]
	},
	"abi": "[{\"type\":\"function\",\"name\":\"f\"}]"
}`

const legacyClass = `{
	"program": "H4sIAAAAAAAA",
	"entry_points_by_type": {
		"EXTERNAL": [{"selector": "0x5", "offset": "0x3a"}],
		"L1_HANDLER": [{"selector": "0x8", "offset": 12}],
		"CONSTRUCTOR": []
	},
	"abi": [{"type": "function", "name": "f"}]
}`

func TestReader(t *testing.T) {
	addr := felt.NewFromUint64(0xa)
	_, client := newFakeNode(t, func(req rpcRequest, _ int) answer {
		switch req.Method {
		case "starknet_getNonce":
			return answer{result: "0x3"}
		case "starknet_getStorageAt":
			if string(req.Params[0]) == `"0xdead"` {
				return answer{err: &rpcError{Code: rpcstate.CodeContractNotFound, Message: "Contract not found"}}
			}
			return answer{result: "0x64"}
		case "starknet_getClassHashAt":
			return answer{err: &rpcError{Code: rpcstate.CodeBlockNotFound, Message: "Block not found"}}
		case "starknet_getClass":
			if string(req.Params[1]) == `"0xc0"` {
				return answer{result: json.RawMessage(legacyClass)}
			}
			if string(req.Params[1]) == `"0xc1"` {
				return answer{result: json.RawMessage(sierraClass)}
			}
			return answer{err: &rpcError{Code: rpcstate.CodeClassHashNotFound, Message: "Class hash not found"}}
		}
		return answer{status: http.StatusServiceUnavailable}
	})
	client.WithMaxRetries(0)
	reader := rpcstate.NewReader(context.Background(), client, rpcstate.BlockNumber(10))

	t.Run("values", func(t *testing.T) {
		nonce, err := reader.NonceAt(addr)
		require.NoError(t, err)
		assert.Equal(t, felt.FromUint64(3), nonce)

		value, err := reader.StorageAt(addr, felt.NewFromUint64(1))
		require.NoError(t, err)
		assert.Equal(t, felt.FromUint64(100), value)
	})

	t.Run("missing contract is not found", func(t *testing.T) {
		_, err := reader.StorageAt(felt.NewFromUint64(0xdead), felt.NewFromUint64(1))
		require.ErrorIs(t, err, state.ErrNotFound)
	})

	t.Run("missing class is not found", func(t *testing.T) {
		_, err := reader.CompiledClass(felt.NewFromUint64(0xc2))
		require.ErrorIs(t, err, state.ErrNotFound)
	})

	t.Run("node errors are read errors", func(t *testing.T) {
		_, err := reader.ClassHashAt(addr)
		var readErr *state.StateReadError
		require.ErrorAs(t, err, &readErr)
		assert.Equal(t, "ClassHashAt", readErr.Op)
		assert.False(t, readErr.Retryable)
	})

	t.Run("compiled class hashes are not served", func(t *testing.T) {
		_, err := reader.CompiledClassHash(felt.NewFromUint64(0xc1))
		require.ErrorIs(t, err, state.ErrNotFound)
	})

	t.Run("sierra class", func(t *testing.T) {
		class, err := reader.CompiledClass(felt.NewFromUint64(0xc1))
		require.NoError(t, err)
		assert.Equal(t, uint8(1), class.CairoVersion)
		assert.JSONEq(t, `["0x1","0x2","0x3"]`, string(class.Program))
		assert.Equal(t, `[{"type":"function","name":"f"}]`, class.Abi)
		assert.Len(t, class.EntryPoints[core.External], 2)
		ep, ok := class.EntryPoint(core.Constructor, felt.NewFromUint64(7))
		require.True(t, ok)
		assert.Equal(t, uint64(2), ep.Offset)
	})

	t.Run("legacy class", func(t *testing.T) {
		class, err := reader.CompiledClass(felt.NewFromUint64(0xc0))
		require.NoError(t, err)
		assert.Equal(t, uint8(0), class.CairoVersion)
		assert.Equal(t, []byte("H4sIAAAAAAAA"), class.Program)
		ep, ok := class.EntryPoint(core.External, felt.NewFromUint64(5))
		require.True(t, ok)
		assert.Equal(t, uint64(0x3a), ep.Offset)
		ep, ok = class.EntryPoint(core.L1Handler, felt.NewFromUint64(8))
		require.True(t, ok)
		assert.Equal(t, uint64(12), ep.Offset)
	})

	t.Run("overrides are served locally", func(t *testing.T) {
		native := &core.ContractClass{CairoVersion: 1, Program: []byte("native:Test")}
		overridden := rpcstate.NewReader(context.Background(), client, rpcstate.BlockNumber(10),
			rpcstate.WithClassOverrides(map[felt.Felt]*core.ContractClass{felt.FromUint64(0xc1): native}))
		class, err := overridden.CompiledClass(felt.NewFromUint64(0xc1))
		require.NoError(t, err)
		assert.Same(t, native, class)
	})
}

func TestReaderTransientFailure(t *testing.T) {
	_, client := newFakeNode(t, func(rpcRequest, int) answer {
		return answer{status: http.StatusServiceUnavailable}
	})
	client.WithMaxRetries(1)

	_, err := rpcstate.NewReader(context.Background(), client, rpcstate.Latest()).NonceAt(felt.NewFromUint64(1))
	require.True(t, state.IsRetryable(err))
}

func TestUnknownClassFormat(t *testing.T) {
	var definition rpcstate.ClassDefinition
	require.NoError(t, json.Unmarshal([]byte(`{"entry_points_by_type":{}}`), &definition))
	_, err := definition.ContractClass()
	require.ErrorIs(t, err, rpcstate.ErrUnknownClassFormat)
}
