package transaction

// ExecutionFlags controls transaction execution behavior
type ExecutionFlags struct {
	// OnlyQuery computes the outcome without committing it to the block state.
	OnlyQuery bool
	ChargeFee bool
	Validate  bool

	// Simulation switches.
	SkipNonceCheck bool
	SkipExecute    bool
	// IgnoreMaxFee disables the max fee checks before and after execution.
	IgnoreMaxFee bool
}

// DefaultExecutionFlags returns execution flags with standard settings
func DefaultExecutionFlags() ExecutionFlags {
	return ExecutionFlags{
		OnlyQuery: false,
		ChargeFee: true,
		Validate:  true,
	}
}
