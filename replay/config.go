package replay

import (
	"fmt"

	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/NethermindEth/starknet-replay/utils"
	"github.com/NethermindEth/starknet-replay/validator"
	"github.com/mitchellh/mapstructure"
)

// Config is a replay run. Keys match the command line flags.
type Config struct {
	RPCURL   string `mapstructure:"rpc-url" validate:"required_without=Fixtures,omitempty,url"`
	Fixtures string `mapstructure:"fixtures" validate:"required_without=RPCURL"`

	From    uint64 `mapstructure:"from"`
	To      uint64 `mapstructure:"to" validate:"gtefield=From"`
	Workers int    `mapstructure:"workers" validate:"min=1,max=256"`

	CacheDir     string `mapstructure:"cache-dir"`
	CacheEntries int    `mapstructure:"cache-entries" validate:"min=1"`
	CacheSizeMB  uint   `mapstructure:"cache-size-mb"`
	Timeouts     string `mapstructure:"timeouts" validate:"timeouts"`
	MaxRetries   int    `mapstructure:"max-retries" validate:"min=0"`

	ETHFeeToken  felt.Felt `mapstructure:"eth-fee-token"`
	STRKFeeToken felt.Felt `mapstructure:"strk-fee-token"`

	LogLevel utils.LogLevel `mapstructure:"log-level" validate:"min=0,max=3"`
	Colour   bool           `mapstructure:"colour"`
	Metrics  string         `mapstructure:"metrics" validate:"omitempty,hostname_port"`
}

func (c *Config) Validate() error {
	if err := validator.Validator().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Blocks lists the block numbers of the run, From to To inclusive.
func (c *Config) Blocks() []uint64 {
	numbers := make([]uint64, 0, c.To-c.From+1)
	for n := c.From; n <= c.To; n++ {
		numbers = append(numbers, n)
	}
	return numbers
}

// DecodeHook decodes felts, log levels and durations from their text form.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	)
}
