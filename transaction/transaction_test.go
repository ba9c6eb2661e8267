package transaction_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/NethermindEth/starknet-replay/execution"
	"github.com/NethermindEth/starknet-replay/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshal(t *testing.T) {
	tests := map[string]struct {
		json string
		want transaction.Transaction
	}{
		"invoke": {
			json: `{"type":"INVOKE","transaction_hash":"0x1","version":"0x1","nonce":"0x5",
				"max_fee":"0x32","signature":[],"sender_address":"0xa11ce","calldata":["0x1","0x2"]}`,
			want: &transaction.Invoke{
				AccountFields: transaction.AccountFields{
					TransactionHash: felt.FromUint64(1),
					Version:         felt.FromUint64(1),
					Nonce:           felt.FromUint64(5),
					MaxFee:          felt.FromUint64(50),
					Signature:       []felt.Felt{},
				},
				SenderAddress: felt.FromUint64(0xa11ce),
				Calldata:      []felt.Felt{felt.FromUint64(1), felt.FromUint64(2)},
			},
		},
		"legacy invoke name": {
			json: `{"type":"INVOKE_FUNCTION","transaction_hash":"0x2","sender_address":"0xa"}`,
			want: &transaction.Invoke{
				AccountFields: transaction.AccountFields{TransactionHash: felt.FromUint64(2)},
				SenderAddress: felt.FromUint64(0xa),
			},
		},
		"l1 handler": {
			json: `{"type":"L1_HANDLER","transaction_hash":"0x3","contract_address":"0xb0b",
				"entry_point_selector":"0x7","calldata":["0x99"],"nonce":"0x1"}`,
			want: &transaction.L1Handler{
				TransactionHash:    felt.FromUint64(3),
				ContractAddress:    felt.FromUint64(0xb0b),
				EntryPointSelector: felt.FromUint64(7),
				Calldata:           []felt.Felt{felt.FromUint64(0x99)},
				Nonce:              felt.FromUint64(1),
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			tx, err := transaction.Unmarshal([]byte(test.json))
			require.NoError(t, err)
			assert.Equal(t, test.want, tx)
		})
	}

	t.Run("unknown type", func(t *testing.T) {
		_, err := transaction.Unmarshal([]byte(`{"type":"DEPLOY"}`))
		require.ErrorIs(t, err, transaction.ErrUnknownTransactionType)
	})
}

func TestEnvelope(t *testing.T) {
	declare := &transaction.Declare{
		AccountFields: transaction.AccountFields{
			TransactionHash: felt.FromUint64(9),
			Version:         felt.FromUint64(3),
			ResourceBounds: &transaction.ResourceBoundsMapping{
				L1Gas: transaction.ResourceBounds{MaxAmount: felt.FromUint64(10), MaxPricePerUnit: felt.FromUint64(4)},
			},
		},
		SenderAddress: felt.FromUint64(0xa),
		ClassHash:     felt.FromUint64(0xc1a55),
	}

	data, err := json.Marshal(transaction.Envelope{Transaction: declare})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"DECLARE"`)

	var decoded transaction.Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, declare, decoded.Transaction)
	assert.Equal(t, transaction.TxnDeclare, decoded.Type())
}

func TestMaxFeeAmount(t *testing.T) {
	v1 := transaction.AccountFields{
		Version: felt.FromUint64(1),
		MaxFee:  felt.FromUint64(50),
		ResourceBounds: &transaction.ResourceBoundsMapping{
			L1Gas: transaction.ResourceBounds{MaxAmount: felt.FromUint64(10), MaxPricePerUnit: felt.FromUint64(4)},
		},
	}
	assert.Equal(t, uint64(50), v1.MaxFeeAmount().Uint64())

	v3 := v1
	v3.Version = felt.FromUint64(3)
	assert.Equal(t, uint64(40), v3.MaxFeeAmount().Uint64())
}

func TestDispositionText(t *testing.T) {
	for _, d := range []transaction.Disposition{
		transaction.Committed, transaction.Reverted, transaction.FeeChargeFailure, transaction.Rejected,
	} {
		text, err := d.MarshalText()
		require.NoError(t, err)

		var decoded transaction.Disposition
		require.NoError(t, decoded.UnmarshalText(text))
		assert.Equal(t, d, decoded)
	}

	var d transaction.Disposition
	require.Error(t, d.UnmarshalText([]byte("PENDING")))
}

func TestFeeToken(t *testing.T) {
	var token transaction.FeeToken
	require.NoError(t, token.UnmarshalText([]byte("FRI")))
	assert.Equal(t, transaction.STRK, token)
	require.NoError(t, token.UnmarshalText([]byte("WEI")))
	assert.Equal(t, transaction.ETH, token)
	require.Error(t, token.UnmarshalText([]byte("BTC")))
}

func TestFeeOf(t *testing.T) {
	var maxFelt felt.Felt
	maxFelt.Sub(&felt.Zero, &felt.One)

	tests := map[string]struct {
		gas   uint64
		price felt.Felt
		want  uint64
		err   bool
	}{
		"plain":          {gas: 21, price: felt.FromUint64(3), want: 63},
		"zero gas":       {gas: 0, price: maxFelt, want: 0},
		"beyond felt":    {gas: 2, price: maxFelt, err: true},
		"beyond uint256": {gas: math.MaxUint64, price: maxFelt, err: true},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			fee, err := transaction.FeeOf(test.gas, &test.price)
			if !test.err {
				require.NoError(t, err)
				assert.Equal(t, test.want, fee.Uint64())
				return
			}
			require.Nil(t, fee)
			var configErr *execution.ConfigurationError
			require.ErrorAs(t, err, &configErr)
			assert.ErrorIs(t, err, core.ErrFeltOverflow)
		})
	}
}
