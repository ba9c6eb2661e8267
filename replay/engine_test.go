package replay_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/crypto"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/NethermindEth/starknet-replay/execution"
	"github.com/NethermindEth/starknet-replay/replay"
	"github.com/NethermindEth/starknet-replay/state"
	"github.com/NethermindEth/starknet-replay/transaction"
	"github.com/NethermindEth/starknet-replay/utils"
	"github.com/NethermindEth/starknet-replay/versioned"
	"github.com/NethermindEth/starknet-replay/vm/native"
	"github.com/NethermindEth/starknet-replay/vm/native/contracts"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	token     = felt.FromUint64(0xfee)
	accountA  = felt.FromUint64(0xa11ce)
	accountB  = felt.FromUint64(0xb0b)
	sequencer = felt.FromUint64(0x5e9)
)

const protocolVersion = "0.13.1"

func newEngine(t *testing.T, opts ...replay.Option) *replay.Engine {
	t.Helper()

	registry, err := versioned.DefaultRegistry()
	require.NoError(t, err)
	backend, err := native.New(utils.NewNopZapLogger(), contracts.All(crypto.StarkVerifier{})...)
	require.NoError(t, err)
	executor, err := transaction.NewExecutor(backend, utils.NewNopZapLogger())
	require.NoError(t, err)
	return replay.NewEngine(executor, registry, utils.NewNopZapLogger(), opts...)
}

func programHash(t *testing.T, p *native.Program) felt.Felt {
	t.Helper()
	hash, err := p.ClassHash()
	require.NoError(t, err)
	return hash
}

// preState deploys the fee token and two dummy accounts, funding the first.
func preState(t *testing.T) *replay.PreState {
	t.Helper()

	pre := &replay.PreState{}
	for _, p := range contracts.All(crypto.StarkVerifier{}) {
		pre.Classes = append(pre.Classes, replay.DeclaredClass{ClassHash: programHash(t, p), Class: p.Class()})
	}

	lowKey, highKey := core.FeeTokenBalanceKeys(&accountA)
	low, high := core.U256ToHalves(uint256.NewInt(1_000_000_000_000_000))
	account := programHash(t, contracts.DummyAccount())
	pre.Contracts = []replay.ContractState{
		{
			Address:   token,
			ClassHash: programHash(t, contracts.ERC20()),
			Storage:   []core.StorageEntry{{Key: lowKey, Value: low}, {Key: highKey, Value: high}},
		},
		{Address: accountA, ClassHash: account, Nonce: felt.FromUint64(5)},
		{Address: accountB, ClassHash: account},
	}
	return pre
}

func transfer(hash, nonce, amount uint64) transaction.Envelope {
	return transaction.Envelope{Transaction: &transaction.Invoke{
		AccountFields: transaction.AccountFields{
			TransactionHash: felt.FromUint64(hash),
			Version:         felt.FromUint64(1),
			Nonce:           felt.FromUint64(nonce),
			MaxFee:          felt.FromUint64(1_000_000_000_000),
		},
		SenderAddress: accountA,
		Calldata: contracts.EncodeCalls(contracts.AccountCall{
			To:       token,
			Selector: core.SelectorFromName(core.TransferEntryPointName),
			Calldata: []felt.Felt{accountB, felt.FromUint64(amount), felt.Zero},
		}),
	}}
}

func newBlock(number uint64, txs ...transaction.Envelope) *replay.Block {
	price := felt.FromUint64(1)
	return &replay.Block{
		BlockInfo: execution.BlockInfo{
			Number:           number,
			Timestamp:        1700000000 + number,
			SequencerAddress: sequencer,
		},
		ProtocolVersion: protocolVersion,
		ChainID:         felt.FromBytes([]byte("SN_MAIN")),
		GasPrices:       execution.GasPrices{ETH: price, STRK: price},
		FeeTokens:       execution.FeeTokens{ETH: token, STRK: token},
		Transactions:    txs,
	}
}

// record replays block once and stores the outcome as its expectation.
func record(t *testing.T, engine *replay.Engine, reader state.StateReader, block *replay.Block) {
	t.Helper()

	result, err := engine.ReplayBlock(context.Background(), reader, block)
	require.NoError(t, err)
	require.True(t, result.Matches())

	expected := &replay.ExpectedOutcome{StateDiff: result.StateDiff}
	for _, info := range result.Infos {
		fee, resources := info.Fee, info.Resources.Clone()
		expected.Transactions = append(expected.Transactions, replay.ExpectedTransaction{
			TransactionHash: info.TransactionHash,
			Disposition:     info.Disposition,
			Fee:             &fee,
			Resources:       &resources,
			RevertReason:    info.RevertReason,
		})
	}
	block.Expected = expected
}

func TestReplayBlock(t *testing.T) {
	engine := newEngine(t)
	pre := preState(t)

	t.Run("matches its own record", func(t *testing.T) {
		block := newBlock(10, transfer(1, 5, 100), transfer(2, 6, 200))
		record(t, engine, pre.Reader(), block)

		result, err := engine.ReplayBlock(context.Background(), pre.Reader(), block)
		require.NoError(t, err)
		assert.True(t, result.Matches())
		assert.Nil(t, result.Divergence)
		require.Len(t, result.Infos, 2)
		assert.Equal(t, felt.FromUint64(7), result.StateDiff.Nonces[accountA])
	})

	t.Run("fee divergence stops the block", func(t *testing.T) {
		block := newBlock(11, transfer(1, 5, 100), transfer(2, 6, 200))
		record(t, engine, pre.Reader(), block)
		wrong := block.Expected.Transactions[0].Fee.Amount
		block.Expected.Transactions[0].Fee.Amount = *new(felt.Felt).Add(&wrong, new(felt.Felt).SetUint64(1))

		result, err := engine.ReplayBlock(context.Background(), pre.Reader(), block)
		require.NoError(t, err)
		require.NotNil(t, result.Divergence)
		assert.Equal(t, 0, result.Divergence.TxIndex)
		assert.Equal(t, "fee.amount", result.Divergence.Field)
		assert.Equal(t, felt.FromUint64(1), result.Divergence.TxHash)
		assert.Len(t, result.Infos, 1)
		assert.Nil(t, result.StateDiff)
	})

	t.Run("disposition divergence", func(t *testing.T) {
		block := newBlock(12, transfer(1, 5, 100))
		record(t, engine, pre.Reader(), block)
		block.Expected.Transactions[0].Disposition = transaction.Reverted

		result, err := engine.ReplayBlock(context.Background(), pre.Reader(), block)
		require.NoError(t, err)
		require.NotNil(t, result.Divergence)
		assert.Equal(t, "disposition", result.Divergence.Field)
		assert.Equal(t, "REVERTED", result.Divergence.Expected)
		assert.Equal(t, "COMMITTED", result.Divergence.Actual)
	})

	t.Run("state diff divergence", func(t *testing.T) {
		block := newBlock(13, transfer(1, 5, 100))
		record(t, engine, pre.Reader(), block)
		block.Expected.StateDiff.Nonces[accountA] = felt.FromUint64(9)

		result, err := engine.ReplayBlock(context.Background(), pre.Reader(), block)
		require.NoError(t, err)
		require.NotNil(t, result.Divergence)
		assert.Equal(t, -1, result.Divergence.TxIndex)
		assert.Equal(t, "state_diff.nonces["+accountA.String()+"]", result.Divergence.Field)
		assert.Equal(t, "0x9", result.Divergence.Expected)
		assert.Equal(t, "0x6", result.Divergence.Actual)
		assert.NotNil(t, result.StateDiff)
	})

	t.Run("receipt count mismatch", func(t *testing.T) {
		block := newBlock(14, transfer(1, 5, 100))
		block.Expected = &replay.ExpectedOutcome{}

		_, err := engine.ReplayBlock(context.Background(), pre.Reader(), block)
		require.Error(t, err)
	})

	t.Run("unknown protocol version", func(t *testing.T) {
		block := newBlock(15, transfer(1, 5, 100))
		block.ProtocolVersion = "0.9.0"

		_, err := engine.ReplayBlock(context.Background(), pre.Reader(), block)
		var configErr *execution.ConfigurationError
		require.ErrorAs(t, err, &configErr)
	})
}

func TestReplayBlockListener(t *testing.T) {
	var txs, blocks atomic.Int32
	engine := newEngine(t, replay.WithListener(&replay.SelectiveListener{
		OnTransactionCb: func(*transaction.ExecutionInfo, time.Duration) { txs.Add(1) },
		OnBlockCb:       func(*replay.BlockResult, time.Duration) { blocks.Add(1) },
	}))

	_, err := engine.ReplayBlock(context.Background(), preState(t).Reader(), newBlock(20, transfer(1, 5, 1), transfer(2, 6, 1)))
	require.NoError(t, err)
	assert.Equal(t, int32(2), txs.Load())
	assert.Equal(t, int32(1), blocks.Load())
}

type fakeSource struct {
	pre    *replay.PreState
	blocks map[uint64]*replay.Block
}

func (s *fakeSource) Block(ctx context.Context, number uint64) (*replay.Block, state.StateReader, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	block, ok := s.blocks[number]
	if !ok {
		return nil, nil, errors.New("node unavailable")
	}
	return block, s.pre.Reader(), nil
}

func TestReplayBlocks(t *testing.T) {
	engine := newEngine(t)
	source := &fakeSource{pre: preState(t), blocks: make(map[uint64]*replay.Block)}
	for n := uint64(30); n < 36; n++ {
		if n == 33 {
			continue
		}
		block := newBlock(n, transfer(n, 5, n))
		record(t, engine, source.pre.Reader(), block)
		source.blocks[n] = block
	}
	source.blocks[35].Expected.Transactions[0].Disposition = transaction.Rejected

	t.Run("per block outcomes", func(t *testing.T) {
		results, err := engine.ReplayBlocks(context.Background(), source, []uint64{35, 34, 33, 32, 31, 30}, 3)
		require.NoError(t, err)
		require.Len(t, results, 6)

		for i, result := range results {
			assert.Equal(t, uint64(30+i), result.Number)
		}
		for _, n := range []int{0, 1, 2, 4} {
			assert.True(t, results[n].Matches(), "block %d", results[n].Number)
		}
		assert.Error(t, results[3].Err)
		assert.False(t, results[3].Matches())
		require.NotNil(t, results[5].Divergence)
		assert.Equal(t, "disposition", results[5].Divergence.Field)
	})

	t.Run("configuration error aborts", func(t *testing.T) {
		bad := newBlock(40, transfer(40, 5, 1))
		bad.ProtocolVersion = "0.9.0"
		source.blocks[40] = bad
		t.Cleanup(func() { delete(source.blocks, 40) })

		_, err := engine.ReplayBlocks(context.Background(), source, []uint64{30, 40, 31}, 2)
		var configErr *execution.ConfigurationError
		require.ErrorAs(t, err, &configErr)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := engine.ReplayBlocks(ctx, source, []uint64{30}, 1)
		require.ErrorIs(t, err, context.Canceled)
	})
}
