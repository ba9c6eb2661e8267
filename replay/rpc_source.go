package replay

import (
	"context"
	"fmt"
	"sync"

	"github.com/NethermindEth/starknet-replay/clients/rpcstate"
	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/NethermindEth/starknet-replay/execution"
	"github.com/NethermindEth/starknet-replay/state"
	"github.com/NethermindEth/starknet-replay/transaction"
	"golang.org/x/sync/errgroup"
)

// Fee token addresses on Starknet mainnet.
var (
	MainnetETH  = mustFelt("0x049d36570d4e46f48e99674bd3fcc84644ddd6b96f7c741b1562b82f9e004dc7")
	MainnetSTRK = mustFelt("0x04718f5a0fc34cc1af16a1cdee98ffb20c31f5cd61d6ab07201858f4287c938d")
)

func mustFelt(s string) felt.Felt {
	f, err := felt.NewFromHex(s)
	if err != nil {
		panic(err)
	}
	return *f
}

var _ BlockSource = (*RPCSource)(nil)

// RPCSource builds blocks from a node: the transactions and receipts of
// starknet_getBlockWithReceipts and the diff of starknet_getStateUpdate.
// Readers are pinned to the parent block.
type RPCSource struct {
	caller    rpcstate.Caller
	api       *rpcstate.API
	feeTokens execution.FeeTokens
	overrides map[felt.Felt]*core.ContractClass

	mu      sync.Mutex
	chainID *felt.Felt
}

type RPCSourceOption func(*RPCSource)

func WithFeeTokens(tokens execution.FeeTokens) RPCSourceOption {
	return func(s *RPCSource) {
		s.feeTokens = tokens
	}
}

// WithClassOverrides is passed on to every reader the source creates.
func WithClassOverrides(classes map[felt.Felt]*core.ContractClass) RPCSourceOption {
	return func(s *RPCSource) {
		s.overrides = classes
	}
}

func NewRPCSource(caller rpcstate.Caller, opts ...RPCSourceOption) *RPCSource {
	s := &RPCSource{
		caller:    caller,
		api:       rpcstate.NewAPI(caller),
		feeTokens: execution.FeeTokens{ETH: MainnetETH, STRK: MainnetSTRK},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// chain fetches the chain id once it is first needed. Failures are not kept.
func (s *RPCSource) chain(ctx context.Context) (felt.Felt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chainID != nil {
		return *s.chainID, nil
	}
	chainID, err := s.api.ChainID(ctx)
	if err != nil {
		return felt.Zero, err
	}
	s.chainID = &chainID
	return chainID, nil
}

func (s *RPCSource) Block(ctx context.Context, number uint64) (*Block, state.StateReader, error) {
	id := rpcstate.BlockNumber(number)

	var (
		rpcBlock *rpcstate.BlockWithReceipts
		update   *rpcstate.StateUpdate
		chainID  felt.Felt
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		rpcBlock, err = s.api.BlockWithReceipts(egCtx, id)
		return err
	})
	eg.Go(func() (err error) {
		update, err = s.api.StateUpdate(egCtx, id)
		return err
	})
	eg.Go(func() (err error) {
		chainID, err = s.chain(egCtx)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}

	block := &Block{
		BlockInfo: execution.BlockInfo{
			Number:           rpcBlock.BlockNumber,
			Timestamp:        rpcBlock.Timestamp,
			SequencerAddress: rpcBlock.SequencerAddress,
		},
		ProtocolVersion: rpcBlock.StarknetVersion,
		ChainID:         chainID,
		GasPrices: execution.GasPrices{
			ETH:  rpcBlock.L1GasPrice.PriceInWei,
			STRK: rpcBlock.L1GasPrice.PriceInFri,
		},
		FeeTokens:    s.feeTokens,
		Transactions: make([]transaction.Envelope, 0, len(rpcBlock.Transactions)),
		Expected: &ExpectedOutcome{
			Transactions: make([]ExpectedTransaction, 0, len(rpcBlock.Transactions)),
			StateDiff:    update.StateDiff.Core(),
		},
	}

	for i := range rpcBlock.Transactions {
		tx, expected, err := s.transaction(ctx, id, &rpcBlock.Transactions[i])
		if err != nil {
			return nil, nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		block.Transactions = append(block.Transactions, transaction.Envelope{Transaction: tx})
		block.Expected.Transactions = append(block.Expected.Transactions, *expected)
	}

	var reader state.StateReader = state.NewMemoryReader()
	if number > 0 {
		reader = rpcstate.NewReader(ctx, s.caller, rpcstate.BlockNumber(number-1),
			rpcstate.WithClassOverrides(s.overrides))
	}
	return block, reader, nil
}

func (s *RPCSource) transaction(ctx context.Context, block rpcstate.BlockID, raw *rpcstate.TransactionWithReceipt,
) (transaction.Transaction, *ExpectedTransaction, error) {
	tx, err := transaction.Unmarshal(raw.Transaction)
	if err != nil {
		return nil, nil, err
	}
	// Declared classes are not part of the transaction, the block they are
	// declared in serves them.
	if declare, ok := tx.(*transaction.Declare); ok && declare.Class == nil {
		if declare.Class, err = s.declaredClass(ctx, block, &declare.ClassHash); err != nil {
			return nil, nil, err
		}
	}

	receipt := &raw.Receipt
	expected := &ExpectedTransaction{
		TransactionHash: receipt.TransactionHash,
		RevertReason:    receipt.RevertReason,
		Fee:             &transaction.Fee{Amount: receipt.ActualFee.Amount},
	}
	if err = expected.Fee.Unit.UnmarshalText([]byte(receipt.ActualFee.Unit)); err != nil {
		return nil, nil, err
	}
	switch receipt.ExecutionStatus {
	case rpcstate.ExecutionSucceeded:
		expected.Disposition = transaction.Committed
	case rpcstate.ExecutionReverted:
		expected.Disposition = transaction.Reverted
	default:
		return nil, nil, fmt.Errorf("unknown execution status %q", receipt.ExecutionStatus)
	}
	if receipt.ExecutionResources != nil {
		counters := receipt.ExecutionResources.Counters()
		expected.Resources = &counters
	}
	return tx, expected, nil
}

func (s *RPCSource) declaredClass(ctx context.Context, block rpcstate.BlockID, classHash *felt.Felt,
) (*core.ContractClass, error) {
	if class, ok := s.overrides[*classHash]; ok {
		return class, nil
	}
	definition, err := s.api.Class(ctx, block, classHash)
	if err != nil {
		return nil, fmt.Errorf("class %s: %w", classHash.String(), err)
	}
	return definition.ContractClass()
}
