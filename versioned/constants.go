package versioned

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
)

// FeeFailurePolicy decides what is debited from an account that cannot pay the
// full fee of a transaction after execution.
type FeeFailurePolicy string

const (
	// ChargeNothing commits the nonce increment only.
	ChargeNothing FeeFailurePolicy = "charge_nothing"
	// ChargeAvailable debits min(fee, balance) in addition to the nonce increment.
	ChargeAvailable FeeFailurePolicy = "charge_available"
)

var ErrUnknownFeeFailurePolicy = errors.New("unknown fee failure policy")

func (p *FeeFailurePolicy) UnmarshalText(text []byte) error {
	switch FeeFailurePolicy(text) {
	case ChargeNothing, ChargeAvailable:
		*p = FeeFailurePolicy(text)
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFeeFailurePolicy, text)
	}
}

// Ratio is an exact non-negative rational number, encoded as [numerator, denominator].
type Ratio struct {
	Num uint64
	Den uint64
}

func (r Ratio) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]uint64{r.Num, r.Den})
}

func (r *Ratio) UnmarshalJSON(data []byte) error {
	var pair [2]uint64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if pair[1] == 0 {
		return errors.New("ratio with zero denominator")
	}
	r.Num, r.Den = pair[0], pair[1]
	return nil
}

type EventLimits struct {
	MaxKeysLength    uint64 `json:"max_keys_length"`
	MaxDataLength    uint64 `json:"max_data_length"`
	MaxEmittedEvents uint64 `json:"max_n_emitted_events"`
}

// Constants holds every execution parameter that changed across protocol
// versions. A table is resolved once per block and is read-only afterwards.
type Constants struct {
	// Version is the lowest protocol version this table applies to.
	Version string `json:"version"`

	MaxRecursionDepth uint64 `json:"max_recursion_depth"`
	InvokeTxMaxNSteps uint64 `json:"invoke_tx_max_n_steps"`
	ValidateMaxNSteps uint64 `json:"validate_max_n_steps"`

	TxEventLimits      EventLimits `json:"tx_event_limits"`
	MaxL1PayloadLength uint64      `json:"max_l1_payload_length"`

	EnableReverts                  bool `json:"enable_reverts"`
	RejectOnValidateFailure        bool `json:"reject_on_validate_failure"`
	ValidateDisallowsExternalCalls bool `json:"validate_disallows_external_calls"`
	RequireValidRetdata            bool `json:"require_valid_retdata"`

	// Block info seen by validation entry points is rounded down to these
	// multiples. Zero disables rounding.
	ValidateBlockNumberRounding uint64 `json:"validate_block_number_rounding"`
	ValidateTimestampRounding   uint64 `json:"validate_timestamp_rounding"`

	// SyscallCosts maps syscall names to their base step cost.
	SyscallCosts    map[string]uint64 `json:"syscall_costs"`
	KeccakRoundCost uint64            `json:"keccak_round_cost"`

	// VMResourceFeeCost maps "n_steps" and builtin names to their L1 gas weight.
	VMResourceFeeCost map[string]Ratio `json:"vm_resource_fee_cost"`
	// L2ToL1MessageGas is charged per payload felt of every message sent to L1.
	L2ToL1MessageGas uint64 `json:"l2_to_l1_message_gas"`
	// MinimalL1Gas is the lowest gas amount a max fee must cover.
	MinimalL1Gas uint64 `json:"minimal_l1_gas"`

	FeeFailurePolicy FeeFailurePolicy `json:"fee_failure_policy"`
}

// Clone returns a deep copy that can be altered without affecting c.
func (c *Constants) Clone() *Constants {
	cp := *c
	cp.SyscallCosts = maps.Clone(c.SyscallCosts)
	cp.VMResourceFeeCost = maps.Clone(c.VMResourceFeeCost)
	return &cp
}

// Validate checks the table is complete enough to execute with.
func (c *Constants) Validate() error {
	switch {
	case c.MaxRecursionDepth == 0:
		return errors.New("max_recursion_depth must be positive")
	case c.InvokeTxMaxNSteps == 0 || c.ValidateMaxNSteps == 0:
		return errors.New("step limits must be positive")
	case c.VMResourceFeeCost["n_steps"].Den == 0:
		return errors.New("vm_resource_fee_cost is missing n_steps")
	case c.FeeFailurePolicy == "":
		return errors.New("fee_failure_policy is not set")
	}
	return nil
}

// LoadFile loads a Constants table from a JSON file
func LoadFile(filePath string) (*Constants, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read constants file: %w", err)
	}

	var constants Constants
	if err := json.Unmarshal(data, &constants); err != nil {
		return nil, fmt.Errorf("failed to parse constants file: %w", err)
	}
	if err := constants.Validate(); err != nil {
		return nil, fmt.Errorf("invalid constants file %s: %w", filePath, err)
	}
	return &constants, nil
}
