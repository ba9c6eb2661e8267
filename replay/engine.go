package replay

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/NethermindEth/starknet-replay/execution"
	"github.com/NethermindEth/starknet-replay/state"
	"github.com/NethermindEth/starknet-replay/transaction"
	"github.com/NethermindEth/starknet-replay/utils"
	"github.com/NethermindEth/starknet-replay/versioned"
	"github.com/sourcegraph/conc/pool"
)

// BlockSource provides blocks to replay, each with a reader pinned to the
// state the block was executed against.
type BlockSource interface {
	Block(ctx context.Context, number uint64) (*Block, state.StateReader, error)
}

type Engine struct {
	executor *transaction.Executor
	registry *versioned.Registry
	flags    transaction.ExecutionFlags
	log      utils.SimpleLogger
	listener EventListener
}

type Option func(*Engine)

func WithListener(listener EventListener) Option {
	return func(e *Engine) {
		e.listener = listener
	}
}

func WithExecutionFlags(flags transaction.ExecutionFlags) Option {
	return func(e *Engine) {
		e.flags = flags
	}
}

func NewEngine(executor *transaction.Executor, registry *versioned.Registry, log utils.SimpleLogger,
	opts ...Option,
) *Engine {
	e := &Engine{
		executor: executor,
		registry: registry,
		flags:    transaction.DefaultExecutionFlags(),
		log:      log,
		listener: &SelectiveListener{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ReplayBlock executes the block's transactions in order on top of reader
// and compares every outcome with block.Expected. It stops at the first
// divergence. Errors are returned only when the block could not be replayed.
func (e *Engine) ReplayBlock(ctx context.Context, reader state.StateReader, block *Block) (*BlockResult, error) {
	blockCtx, err := execution.NewBlockContext(e.registry, block.BlockInfo, block.ProtocolVersion,
		execution.WithChainID(block.ChainID),
		execution.WithGasPrices(block.GasPrices),
		execution.WithFeeTokens(block.FeeTokens),
	)
	if err != nil {
		return nil, err
	}

	expected := block.Expected
	if expected != nil && len(expected.Transactions) != len(block.Transactions) {
		return nil, fmt.Errorf("block %d records %d receipts for %d transactions",
			block.Number, len(expected.Transactions), len(block.Transactions))
	}

	start := time.Now()
	blockState := state.NewCachedState(reader)
	result := &BlockResult{Number: block.Number, Infos: make([]*transaction.ExecutionInfo, 0, len(block.Transactions))}
	for i, tx := range block.Transactions {
		txStart := time.Now()
		info, err := e.executor.Execute(ctx, blockState, blockCtx, tx.Transaction, e.flags)
		if err != nil {
			return nil, fmt.Errorf("block %d transaction %d (%s): %w", block.Number, i, tx.Hash().String(), err)
		}
		e.listener.OnTransaction(info, time.Since(txStart))
		result.Infos = append(result.Infos, info)

		if expected == nil {
			continue
		}
		if result.Divergence = compareTransaction(i, &expected.Transactions[i], info); result.Divergence != nil {
			e.finish(result, start)
			return result, nil
		}
	}

	if result.StateDiff, err = blockState.ToStateDiff(); err != nil {
		return nil, err
	}
	if expected != nil && expected.StateDiff != nil {
		result.Divergence = compareStateDiffs(expected.StateDiff, result.StateDiff)
	}
	e.finish(result, start)
	return result, nil
}

func (e *Engine) finish(result *BlockResult, start time.Time) {
	took := time.Since(start)
	e.listener.OnBlock(result, took)
	if result.Divergence != nil {
		e.log.Warnw("Replay diverged", "block", result.Number, "divergence", result.Divergence.String())
		return
	}
	e.log.Infow("Replayed block", "number", result.Number, "transactions", len(result.Infos), "took", took)
}

// ReplayBlocks replays independent blocks on up to workers goroutines. Each
// block gets its own state, only the source is shared. A block the source or
// the node fails on is reported in its result; configuration errors and
// cancellation stop the whole run.
func (e *Engine) ReplayBlocks(ctx context.Context, source BlockSource, numbers []uint64, workers int,
) ([]*BlockResult, error) {
	p := pool.NewWithResults[*BlockResult]().
		WithContext(ctx).
		WithMaxGoroutines(max(workers, 1)).
		WithCancelOnError().
		WithFirstError()

	for _, number := range numbers {
		p.Go(func(ctx context.Context) (*BlockResult, error) {
			result, err := e.replayFromSource(ctx, source, number)
			if err == nil {
				return result, nil
			}

			var configErr *execution.ConfigurationError
			if errors.As(err, &configErr) || ctx.Err() != nil {
				return nil, err
			}
			e.log.Errorw("Failed to replay block", "number", number, "err", err)
			failed := &BlockResult{Number: number, Err: err}
			e.listener.OnBlock(failed, 0)
			return failed, nil
		})
	}

	results, err := p.Wait()
	if err != nil {
		return nil, err
	}
	slices.SortFunc(results, func(a, b *BlockResult) int { return cmp.Compare(a.Number, b.Number) })
	return results, nil
}

func (e *Engine) replayFromSource(ctx context.Context, source BlockSource, number uint64) (*BlockResult, error) {
	block, reader, err := source.Block(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("fetch block %d: %w", number, err)
	}
	return e.ReplayBlock(ctx, reader, block)
}
