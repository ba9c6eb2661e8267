package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/NethermindEth/starknet-replay/clients/rpcstate"
	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/replay"
	"github.com/NethermindEth/starknet-replay/utils"
	"github.com/NethermindEth/starknet-replay/versioned"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Version string

const (
	configF       = "config"
	rpcURLF       = "rpc-url"
	fixturesF     = "fixtures"
	fromF         = "from"
	toF           = "to"
	workersF      = "workers"
	cacheDirF     = "cache-dir"
	cacheEntriesF = "cache-entries"
	cacheSizeF    = "cache-size-mb"
	timeoutsF     = "timeouts"
	maxRetriesF   = "max-retries"
	ethFeeTokenF  = "eth-fee-token"
	strkFeeTokenF = "strk-fee-token"
	logLevelF     = "log-level"
	colourF       = "colour"
	metricsF      = "metrics"
	protocolF     = "protocol"

	defaultWorkers    = 4
	defaultCacheSize  = uint(256)
	defaultMaxRetries = 8
	defaultColour     = true

	configFlagUsage   = "The yaml configuration file."
	rpcURLUsage       = "Starknet JSON-RPC endpoint to read blocks and state from."
	fixturesUsage     = "Directory of recorded <number>.json blocks, replayed instead of querying a node."
	fromUsage         = "First block to replay."
	toUsage           = "Last block to replay, inclusive."
	workersUsage      = "Number of blocks replayed concurrently."
	cacheDirUsage     = "Directory of the persistent response cache. Responses are only kept in memory if unset."
	cacheEntriesUsage = "Number of responses kept in memory."
	cacheSizeUsage    = "Block cache size of the persistent response cache, in megabytes."
	timeoutsUsage     = "Request timeouts as a comma separated list of durations. " +
		"A single value grows on timeouts, a trailing comma keeps the list fixed."
	maxRetriesUsage   = "Retries of a failed request before the block fails."
	ethFeeTokenUsage  = "Address of the ETH fee token."
	strkFeeTokenUsage = "Address of the STRK fee token."
	logLevelUsage     = "Options: debug, info, warn, error."
	colourUsage       = "Uses --colour=false command to disable colourized outputs (ANSI Escape Codes)."
	metricsUsage      = "Serves prometheus metrics on the given host:port."
	protocolUsage     = "Protocol version whose constants are printed."
)

// RunFn replays the blocks of cfg and reports them to out.
type RunFn func(ctx context.Context, cfg *replay.Config, out io.Writer) error

func NewCmd(run RunFn) *cobra.Command {
	root := &cobra.Command{
		Use:           "starknet-replay",
		Short:         "Re-executes Starknet blocks and compares the outcome with the chain.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newReplayCmd(run), newConstantsCmd())
	return root
}

func newReplayCmd(run RunFn) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "replay [flags]",
		Short: "Replays a range of blocks.",
		Args:  cobra.NoArgs,
	}

	cmd.Flags().StringVar(&cfgFile, configF, "", configFlagUsage)
	cmd.Flags().String(rpcURLF, "", rpcURLUsage)
	cmd.Flags().String(fixturesF, "", fixturesUsage)
	cmd.Flags().Uint64(fromF, 0, fromUsage)
	cmd.Flags().Uint64(toF, 0, toUsage)
	cmd.Flags().Int(workersF, defaultWorkers, workersUsage)
	cmd.Flags().String(cacheDirF, "", cacheDirUsage)
	cmd.Flags().Int(cacheEntriesF, rpcstate.DefaultMemoryEntries, cacheEntriesUsage)
	cmd.Flags().Uint(cacheSizeF, defaultCacheSize, cacheSizeUsage)
	cmd.Flags().String(timeoutsF, rpcstate.DefaultTimeouts, timeoutsUsage)
	cmd.Flags().Int(maxRetriesF, defaultMaxRetries, maxRetriesUsage)
	cmd.Flags().String(ethFeeTokenF, replay.MainnetETH.String(), ethFeeTokenUsage)
	cmd.Flags().String(strkFeeTokenF, replay.MainnetSTRK.String(), strkFeeTokenUsage)
	cmd.Flags().Var(utils.NewLogLevel(utils.INFO), logLevelF, logLevelUsage)
	cmd.Flags().Bool(colourF, defaultColour, colourUsage)
	cmd.Flags().String(metricsF, "", metricsUsage)

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		v := viper.New()
		if cfgFile != "" {
			v.SetConfigType("yaml")
			v.SetConfigFile(cfgFile)
			if err := v.ReadInConfig(); err != nil {
				return err
			}
		}
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return err
		}

		cfg := new(replay.Config)
		if err := v.Unmarshal(cfg, viper.DecodeHook(replay.DecodeHook())); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return run(cmd.Context(), cfg, cmd.OutOrStdout())
	}
	return cmd
}

func newConstantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "constants",
		Short: "Prints the constants table a protocol version resolves to.",
		Args:  cobra.NoArgs,
	}
	protocol := cmd.Flags().String(protocolF, "", protocolUsage)
	if err := cmd.MarkFlagRequired(protocolF); err != nil {
		panic(err)
	}

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		version, err := core.ParseBlockVersion(*protocol)
		if err != nil {
			return err
		}
		registry, err := versioned.DefaultRegistry()
		if err != nil {
			return err
		}
		constants, err := registry.Resolve(version)
		if err != nil {
			return err
		}

		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		if err = encoder.Encode(constants); err != nil {
			return fmt.Errorf("encode constants %s: %w", constants.Version, err)
		}
		return nil
	}
	return cmd
}
