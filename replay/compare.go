package replay

import (
	"fmt"
	"strconv"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/execution"
	"github.com/NethermindEth/starknet-replay/transaction"
)

func compareTransaction(index int, expected *ExpectedTransaction, info *transaction.ExecutionInfo) *Divergence {
	diverged := func(field string, want, got fmt.Stringer) *Divergence {
		return &Divergence{
			TxIndex:  index,
			TxHash:   info.TransactionHash,
			Field:    field,
			Expected: want.String(),
			Actual:   got.String(),
		}
	}

	if expected.TransactionHash != info.TransactionHash {
		return diverged("transaction_hash", expected.TransactionHash, info.TransactionHash)
	}
	if !sameDisposition(expected.Disposition, info.Disposition) {
		return diverged("disposition", expected.Disposition, info.Disposition)
	}
	if expected.Fee != nil {
		if expected.Fee.Unit != info.Fee.Unit {
			return diverged("fee.unit", expected.Fee.Unit, info.Fee.Unit)
		}
		if expected.Fee.Amount != info.Fee.Amount {
			return diverged("fee.amount", expected.Fee.Amount, info.Fee.Amount)
		}
	}
	if expected.Resources != nil {
		if field, want, got, ok := resourcesDiffer(expected.Resources, &info.Resources); ok {
			return &Divergence{
				TxIndex:  index,
				TxHash:   info.TransactionHash,
				Field:    field,
				Expected: strconv.FormatUint(want, 10),
				Actual:   strconv.FormatUint(got, 10),
			}
		}
	}
	return nil
}

// resourcesDiffer compares the VM counters. Syscall counts are not part of
// receipts and are skipped.
func resourcesDiffer(expected, actual *execution.ResourceCounters) (string, uint64, uint64, bool) {
	if expected.Steps != actual.Steps {
		return "resources.steps", expected.Steps, actual.Steps, true
	}
	if expected.MemoryHoles != actual.MemoryHoles {
		return "resources.memory_holes", expected.MemoryHoles, actual.MemoryHoles, true
	}
	for b := range execution.NumBuiltins {
		if expected.Builtins[b] != actual.Builtins[b] {
			return "resources." + b.String(), expected.Builtins[b], actual.Builtins[b], true
		}
	}
	return "", 0, 0, false
}

// compareStateDiffs names the first entry, in canonical order, where the
// diffs disagree. Equal commitments short-circuit the walk.
func compareStateDiffs(expected, actual *core.StateDiff) *Divergence {
	if expected.Equal(actual) {
		return nil
	}
	diff := actual.FirstDifference(expected)
	if diff == nil {
		return nil
	}
	return &Divergence{TxIndex: -1, Field: "state_diff." + diff.Field, Expected: diff.Expected, Actual: diff.Actual}
}

// sameDisposition matches a recorded disposition with ours. Receipts have no
// fee charge failure status, the chain reports one as a reverted execution.
func sameDisposition(recorded, actual transaction.Disposition) bool {
	return recorded == actual || recorded == transaction.Reverted && actual == transaction.FeeChargeFailure
}
