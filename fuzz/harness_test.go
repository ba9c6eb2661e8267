package fuzz_test

import (
	"context"
	"testing"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/crypto"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/NethermindEth/starknet-replay/execution"
	"github.com/NethermindEth/starknet-replay/fuzz"
	"github.com/NethermindEth/starknet-replay/mocks"
	"github.com/NethermindEth/starknet-replay/state"
	"github.com/NethermindEth/starknet-replay/transaction"
	"github.com/NethermindEth/starknet-replay/utils"
	"github.com/NethermindEth/starknet-replay/versioned"
	"github.com/NethermindEth/starknet-replay/vm/native"
	"github.com/NethermindEth/starknet-replay/vm/native/contracts"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	token    = felt.FromUint64(0xfee)
	accountA = felt.FromUint64(0xa11ce)
	accountB = felt.FromUint64(0xb0b)
)

const balanceA = 10_000

func blockContext(t testing.TB) *execution.BlockContext {
	t.Helper()
	registry, err := versioned.DefaultRegistry()
	require.NoError(t, err)
	price := felt.FromUint64(1)
	block, err := execution.NewBlockContext(registry,
		execution.BlockInfo{Number: 100, Timestamp: 1700000000, SequencerAddress: felt.FromUint64(0x5e9)},
		"0.13.1",
		execution.WithGasPrices(execution.GasPrices{ETH: price, STRK: price}),
		execution.WithFeeTokens(execution.FeeTokens{ETH: token, STRK: token}),
	)
	require.NoError(t, err)
	return block
}

func snapshot(t testing.TB) *state.MemoryReader {
	t.Helper()
	reader := state.NewMemoryReader()
	hashes := make(map[string]felt.Felt)
	for name, p := range map[string]*native.Program{
		"erc20":   contracts.ERC20(),
		"account": contracts.DummyAccount(),
	} {
		hash, err := p.ClassHash()
		require.NoError(t, err)
		reader.WithClass(hash, p.Class())
		hashes[name] = hash
	}

	lowKey, highKey := core.FeeTokenBalanceKeys(&accountA)
	low, high := core.U256ToHalves(uint256.NewInt(balanceA))
	reader.
		WithContract(token, hashes["erc20"]).
		WithContract(accountA, hashes["account"]).
		WithContract(accountB, hashes["account"]).
		WithNonce(accountA, felt.FromUint64(5)).
		WithStorage(token, lowKey, low).
		WithStorage(token, highKey, high)
	return reader
}

func newHarness(t testing.TB, opts ...fuzz.Option) *fuzz.Harness {
	t.Helper()
	backend, err := native.New(utils.NewNopZapLogger(), contracts.All(crypto.StarkVerifier{})...)
	require.NoError(t, err)
	executor, err := transaction.NewExecutor(backend, utils.NewNopZapLogger())
	require.NoError(t, err)
	return fuzz.New(executor, snapshot(t), blockContext(t), opts...)
}

func transfer(nonce, maxFee, amount uint64) *transaction.Invoke {
	return &transaction.Invoke{
		AccountFields: transaction.AccountFields{
			TransactionHash: felt.FromUint64(nonce),
			Version:         felt.FromUint64(1),
			Nonce:           felt.FromUint64(nonce),
			MaxFee:          felt.FromUint64(maxFee),
		},
		SenderAddress: accountA,
		Calldata: contracts.EncodeCalls(contracts.AccountCall{
			To:       token,
			Selector: core.SelectorFromName(core.TransferEntryPointName),
			Calldata: []felt.Felt{accountB, felt.FromUint64(amount), felt.Zero},
		}),
	}
}

func TestHarness(t *testing.T) {
	tests := map[string]struct {
		txs          []transaction.Transaction
		dispositions []transaction.Disposition
	}{
		"transfers": {
			txs:          []transaction.Transaction{transfer(5, 5000, 100), transfer(6, 5000, 100)},
			dispositions: []transaction.Disposition{transaction.Committed, transaction.Committed},
		},
		"stale nonce": {
			txs:          []transaction.Transaction{transfer(5, 5000, 100), transfer(5, 5000, 100)},
			dispositions: []transaction.Disposition{transaction.Committed, transaction.Rejected},
		},
		"max fee below the minimum": {
			txs:          []transaction.Transaction{transfer(5, 10, 100)},
			dispositions: []transaction.Disposition{transaction.Rejected},
		},
		"balance spent by execution": {
			txs:          []transaction.Transaction{transfer(5, balanceA, balanceA)},
			dispositions: []transaction.Disposition{transaction.FeeChargeFailure},
		},
		"transfer above balance reverts": {
			txs:          []transaction.Transaction{transfer(5, 5000, balanceA+1)},
			dispositions: []transaction.Disposition{transaction.Reverted},
		},
	}

	h := newHarness(t)
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			report, err := h.Run(context.Background(), test.txs)
			require.NoError(t, err)
			assert.True(t, report.OK(), "%v", report.Violations)
			require.Len(t, report.Infos, len(test.txs))
			for i, want := range test.dispositions {
				assert.Equal(t, want, report.Infos[i].Disposition, "transaction %d", i)
			}
		})
	}
}

func TestHarnessRecoversPanics(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockBackend(ctrl)
	backend.EXPECT().Name().Return("panicking").AnyTimes()
	backend.EXPECT().RunEntryPoint(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(*core.ContractClass, *core.EntryPoint, *execution.Call, execution.SyscallSink) ([]felt.Felt, error) {
			panic("unreachable instruction")
		}).AnyTimes()

	executor, err := transaction.NewExecutor(backend, utils.NewNopZapLogger())
	require.NoError(t, err)
	h := fuzz.New(executor, snapshot(t), blockContext(t))

	report, err := h.Run(context.Background(), []transaction.Transaction{transfer(5, 5000, 1)})
	require.NoError(t, err)
	require.NotNil(t, report.Crash)
	assert.False(t, report.OK())
	assert.Equal(t, 0, report.Crash.TxIndex)
	assert.Equal(t, "unreachable instruction", report.Crash.Value)
	assert.NotEmpty(t, report.Crash.Stack)
}

func TestHarnessCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newHarness(t).Run(ctx, []transaction.Transaction{transfer(5, 5000, 1)})
	require.ErrorIs(t, err, context.Canceled)
}
