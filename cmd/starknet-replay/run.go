package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/NethermindEth/starknet-replay/clients/rpcstate"
	"github.com/NethermindEth/starknet-replay/core/crypto"
	"github.com/NethermindEth/starknet-replay/db"
	"github.com/NethermindEth/starknet-replay/db/memory"
	"github.com/NethermindEth/starknet-replay/db/pebble"
	"github.com/NethermindEth/starknet-replay/execution"
	"github.com/NethermindEth/starknet-replay/metrics"
	"github.com/NethermindEth/starknet-replay/replay"
	"github.com/NethermindEth/starknet-replay/transaction"
	"github.com/NethermindEth/starknet-replay/utils"
	"github.com/NethermindEth/starknet-replay/versioned"
	"github.com/NethermindEth/starknet-replay/vm/native"
	"github.com/NethermindEth/starknet-replay/vm/native/contracts"
	"github.com/prometheus/client_golang/prometheus"
)

var ErrDiverged = errors.New("replay diverged from the chain")

// Run replays the configured blocks on the native backend.
func Run(ctx context.Context, cfg *replay.Config, out io.Writer) (err error) {
	log, err := utils.NewZapLogger(cfg.LogLevel, cfg.Colour)
	if err != nil {
		return err
	}

	var registry *prometheus.Registry
	if cfg.Metrics != "" {
		registry = metrics.Registry()
		srv := &http.Server{Addr: cfg.Metrics, Handler: metrics.Handler(registry), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if serveErr := srv.ListenAndServe(); !errors.Is(serveErr, http.ErrServerClosed) {
				log.Errorw("Metrics server failed", "err", serveErr)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			err = errors.Join(err, srv.Shutdown(shutdownCtx))
		}()
	}

	source, closer, err := newSource(ctx, cfg, log, registry)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, closer())
	}()

	engine, err := newEngine(log, registry)
	if err != nil {
		return err
	}
	results, err := engine.ReplayBlocks(ctx, source, cfg.Blocks(), cfg.Workers)
	if err != nil {
		return err
	}
	return report(out, results)
}

func newEngine(log utils.SimpleLogger, registry *prometheus.Registry) (*replay.Engine, error) {
	backend, err := native.New(log, contracts.All(crypto.StarkVerifier{})...)
	if err != nil {
		return nil, err
	}
	executor, err := transaction.NewExecutor(backend, log)
	if err != nil {
		return nil, err
	}
	constants, err := versioned.DefaultRegistry()
	if err != nil {
		return nil, err
	}

	var opts []replay.Option
	if registry != nil {
		opts = append(opts, replay.WithListener(metrics.NewReplayListener(registry)))
	}
	return replay.NewEngine(executor, constants, log, opts...), nil
}

// openCacheDB opens the on-disk response cache. Pebble only logs errors.
func openCacheDB(cfg *replay.Config) (*pebble.DB, error) {
	dbLog, err := utils.NewZapLogger(utils.ERROR, cfg.Colour)
	if err != nil {
		return nil, fmt.Errorf("create DB logger: %w", err)
	}
	return pebble.New(cfg.CacheDir, pebble.WithCacheSize(cfg.CacheSizeMB), pebble.WithLogger(dbLog))
}

// newSource serves fixtures when configured and otherwise queries the node
// through the response cache. The returned func releases the source.
func newSource(ctx context.Context, cfg *replay.Config, log utils.SimpleLogger, registry *prometheus.Registry,
) (replay.BlockSource, func() error, error) {
	if cfg.Fixtures != "" {
		return replay.NewFileSource(cfg.Fixtures), func() error { return nil }, nil
	}

	timeouts, err := rpcstate.ParseTimeouts(cfg.Timeouts)
	if err != nil {
		return nil, nil, err
	}
	client, err := rpcstate.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, err
	}
	client.WithLogger(log).WithTimeouts(timeouts).WithMaxRetries(cfg.MaxRetries)

	var store db.KeyValueStore = memory.New()
	if cfg.CacheDir != "" {
		if store, err = openCacheDB(cfg); err != nil {
			client.Close()
			return nil, nil, err
		}
	}

	if listening, ok := store.(db.Listening); ok && registry != nil {
		store = listening.WithListener(metrics.NewDBListener(registry))
	}
	cache, err := rpcstate.NewCache(store, cfg.CacheEntries)
	if err != nil {
		client.Close()
		return nil, nil, errors.Join(err, store.Close())
	}
	cache.WithLogger(log)
	if registry != nil {
		rpcListener := metrics.NewRPCListener(registry)
		client.WithListener(rpcListener)
		cache.WithListener(rpcListener)
	}

	source := replay.NewRPCSource(cache.Caller(client.Endpoint(), client),
		replay.WithFeeTokens(execution.FeeTokens{ETH: cfg.ETHFeeToken, STRK: cfg.STRKFeeToken}))
	closer := func() error {
		client.Close()
		return store.Close()
	}
	return source, closer, nil
}

func report(out io.Writer, results []*replay.BlockResult) error {
	var failed int
	for _, result := range results {
		var err error
		switch {
		case result.Err != nil:
			_, err = fmt.Fprintf(out, "block %d: error: %v\n", result.Number, result.Err)
		case result.Divergence != nil:
			_, err = fmt.Fprintf(out, "block %d: %s\n", result.Number, result.Divergence)
		default:
			_, err = fmt.Fprintf(out, "block %d: ok (%d transactions)\n", result.Number, len(result.Infos))
		}
		if err != nil {
			return err
		}
		if !result.Matches() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d blocks", ErrDiverged, failed, len(results))
	}
	return nil
}
