// Package fuzz runs arbitrary transactions through the executor and checks
// the properties every execution must keep, whatever its input.
package fuzz

import (
	"bytes"
	"context"
	"fmt"
	"runtime/debug"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/NethermindEth/starknet-replay/encoder"
	"github.com/NethermindEth/starknet-replay/execution"
	"github.com/NethermindEth/starknet-replay/state"
	"github.com/NethermindEth/starknet-replay/transaction"
	"github.com/NethermindEth/starknet-replay/utils"
)

const (
	CheckDeterminism    = "determinism"
	CheckResources      = "resource_monotonicity"
	CheckNonceOnce      = "nonce_once"
	CheckFeeContainment = "fee_failure_containment"
)

// Violation is a broken property. TxIndex is -1 for properties of the whole run.
type Violation struct {
	TxIndex int
	Check   string
	Detail  string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s at transaction %d: %s", v.Check, v.TxIndex, v.Detail)
}

// Crash is a panic raised while executing a transaction.
type Crash struct {
	TxIndex int
	Value   string
	Stack   []byte
}

type Report struct {
	Infos      []*transaction.ExecutionInfo
	StateDiff  *core.StateDiff
	Crash      *Crash
	Violations []Violation
}

func (r *Report) OK() bool {
	return r.Crash == nil && len(r.Violations) == 0
}

type Harness struct {
	executor *transaction.Executor
	reader   state.StateReader
	block    *execution.BlockContext
	flags    transaction.ExecutionFlags
	log      utils.SimpleLogger
}

type Option func(*Harness)

func WithExecutionFlags(flags transaction.ExecutionFlags) Option {
	return func(h *Harness) {
		h.flags = flags
	}
}

func WithLogger(log utils.SimpleLogger) Option {
	return func(h *Harness) {
		h.log = log
	}
}

// New returns a harness executing on top of reader, which every run starts
// from unchanged.
func New(executor *transaction.Executor, reader state.StateReader, block *execution.BlockContext,
	opts ...Option,
) *Harness {
	h := &Harness{
		executor: executor,
		reader:   reader,
		block:    block,
		flags:    transaction.DefaultExecutionFlags(),
		log:      utils.NewNopZapLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes txs in order twice, each time on a fresh state, and reports
// crashes and broken properties. Errors are returned only for executions
// that could not complete, such as failing state reads.
func (h *Harness) Run(ctx context.Context, txs []transaction.Transaction) (*Report, error) {
	report := &Report{}
	first, err := h.run(ctx, txs, report)
	if err != nil || report.Crash != nil {
		return report, err
	}
	report.Infos, report.StateDiff = first.infos, first.diff

	second, err := h.run(ctx, txs, &Report{})
	if err != nil {
		return report, err
	}
	h.checkDeterminism(report, first, second)

	if !report.OK() {
		h.log.Warnw("Fuzz run broke a property", "transactions", len(txs), "violations", len(report.Violations))
	}
	return report, nil
}

type runResult struct {
	infos []*transaction.ExecutionInfo
	diff  *core.StateDiff
}

func (h *Harness) run(ctx context.Context, txs []transaction.Transaction, report *Report) (*runResult, error) {
	blockState := state.NewCachedState(h.reader)
	result := &runResult{infos: make([]*transaction.ExecutionInfo, 0, len(txs))}
	for i, tx := range txs {
		sender, hasSender := senderOf(tx)
		var nonceBefore felt.Felt
		if hasSender {
			var err error
			if nonceBefore, err = blockState.NonceAt(&sender); err != nil {
				return nil, err
			}
		}

		info, crash, err := h.execute(ctx, blockState, tx)
		if crash != nil {
			crash.TxIndex = i
			report.Crash = crash
			h.log.Errorw("Execution panicked", "index", i, "panic", crash.Value)
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		result.infos = append(result.infos, info)

		h.checkResources(report, i, info)
		h.checkFeeContainment(report, i, tx, info)
		if hasSender {
			nonceAfter, err := blockState.NonceAt(&sender)
			if err != nil {
				return nil, err
			}
			h.checkNonceOnce(report, i, info, &nonceBefore, &nonceAfter)
		}
	}

	var err error
	if result.diff, err = blockState.ToStateDiff(); err != nil {
		return nil, err
	}
	return result, nil
}

func (h *Harness) execute(ctx context.Context, blockState *state.CachedState, tx transaction.Transaction,
) (info *transaction.ExecutionInfo, crash *Crash, err error) {
	defer func() {
		if r := recover(); r != nil {
			crash = &Crash{Value: fmt.Sprint(r), Stack: debug.Stack()}
		}
	}()
	info, err = h.executor.Execute(ctx, blockState, h.block, tx, h.flags)
	return info, nil, err
}

func senderOf(tx transaction.Transaction) (felt.Felt, bool) {
	switch t := tx.(type) {
	case *transaction.Invoke:
		return t.SenderAddress, true
	case *transaction.Declare:
		return t.SenderAddress, true
	case *transaction.DeployAccount:
		return t.ContractAddress(), true
	default:
		return felt.Zero, false
	}
}

func accountFieldsOf(tx transaction.Transaction) *transaction.AccountFields {
	switch t := tx.(type) {
	case *transaction.Invoke:
		return &t.AccountFields
	case *transaction.Declare:
		return &t.AccountFields
	case *transaction.DeployAccount:
		return &t.AccountFields
	default:
		return nil
	}
}

func violate(report *Report, index int, check, format string, args ...any) {
	report.Violations = append(report.Violations, Violation{TxIndex: index, Check: check, Detail: fmt.Sprintf(format, args...)})
}

// checkResources requires the transaction's counters to cover every call
// tree it ran, and every call to cover its inner calls.
func (h *Harness) checkResources(report *Report, index int, info *transaction.ExecutionInfo) {
	roots := []struct {
		name string
		root *execution.CallInfo
	}{
		{"validate", info.ValidateCallInfo},
		{"constructor", info.ConstructorCallInfo},
		{"execute", info.ExecuteCallInfo},
	}
	for _, r := range roots {
		name, root := r.name, r.root
		if root == nil {
			continue
		}
		total := root.TotalResources()
		if !info.Resources.Covers(&total) {
			violate(report, index, CheckResources, "%s call tree used %d steps, transaction reports %d",
				name, total.Steps, info.Resources.Steps)
		}
		root.Walk(func(c *execution.CallInfo) {
			callTotal := c.TotalResources()
			for _, inner := range c.InnerCalls {
				innerTotal := inner.TotalResources()
				if !callTotal.Covers(&innerTotal) {
					violate(report, index, CheckResources, "call to %s does not cover its inner call to %s",
						c.Call.StorageAddress.String(), inner.Call.StorageAddress.String())
				}
			}
		})
	}
}

// checkNonceOnce requires a committed account transaction to bump its
// sender's nonce by exactly one, and a rejected one to leave it alone.
func (h *Harness) checkNonceOnce(report *Report, index int, info *transaction.ExecutionInfo, before, after *felt.Felt) {
	if h.flags.OnlyQuery {
		return
	}
	want := *before
	if info.Disposition != transaction.Rejected {
		want.Add(&want, &felt.One)
	}
	if *after != want {
		violate(report, index, CheckNonceOnce, "%s transaction moved the nonce from %s to %s",
			info.Disposition, before.String(), after.String())
	}
}

// checkFeeContainment requires rejected transactions to leave no trace, and
// transactions that failed to pay to change nothing but the sender's nonce,
// its own deployment and fee token balances.
func (h *Harness) checkFeeContainment(report *Report, index int, tx transaction.Transaction,
	info *transaction.ExecutionInfo,
) {
	if fields := accountFieldsOf(tx); fields != nil && info.Disposition != transaction.Rejected &&
		h.flags.ChargeFee && !h.flags.IgnoreMaxFee {
		if core.FeltToU256(&info.Fee.Amount).Gt(fields.MaxFeeAmount()) {
			violate(report, index, CheckFeeContainment, "charged %s above the max fee %s",
				info.Fee.Amount.String(), fields.MaxFeeAmount().Dec())
		}
	}

	if info.StateDiff == nil {
		return
	}
	diff := info.StateDiff.Canonical()
	switch info.Disposition {
	case transaction.Rejected:
		if !isEmpty(diff) {
			violate(report, index, CheckFeeContainment, "rejected transaction changed state")
		}
	case transaction.FeeChargeFailure:
		sender, _ := senderOf(tx)
		for _, storage := range diff.StorageDiffs {
			if storage.Address != h.block.FeeTokens.ETH && storage.Address != h.block.FeeTokens.STRK {
				violate(report, index, CheckFeeContainment, "unpaid transaction wrote to %s", storage.Address.String())
			}
		}
		for _, nonce := range diff.Nonces {
			if nonce.Address != sender {
				violate(report, index, CheckFeeContainment, "unpaid transaction bumped the nonce of %s", nonce.Address.String())
			}
		}
		for _, deployed := range diff.DeployedContracts {
			if deployed.Address != sender {
				violate(report, index, CheckFeeContainment, "unpaid transaction deployed %s", deployed.Address.String())
			}
		}
		if len(diff.ReplacedClasses)+len(diff.DeclaredClasses) > 0 {
			violate(report, index, CheckFeeContainment, "unpaid transaction declared or replaced classes")
		}
	}
}

func isEmpty(diff *core.CanonicalStateDiff) bool {
	return len(diff.StorageDiffs)+len(diff.Nonces)+len(diff.DeployedContracts)+
		len(diff.ReplacedClasses)+len(diff.DeclaredClasses) == 0
}

// outcome is the part of an ExecutionInfo two runs must agree on.
type outcome struct {
	Disposition  transaction.Disposition
	RevertReason string
	Fee          transaction.Fee
	Gas          uint64
	Resources    execution.ResourceCounters
	Events       []execution.OrderedEvent
	StateDiff    *core.CanonicalStateDiff
}

func digest(info *transaction.ExecutionInfo) ([]byte, error) {
	o := outcome{
		Disposition:  info.Disposition,
		RevertReason: info.RevertReason,
		Fee:          info.Fee,
		Gas:          info.Gas,
		Resources:    info.Resources,
		Events:       info.Events(),
	}
	if info.StateDiff != nil {
		o.StateDiff = info.StateDiff.Canonical()
	}
	return encoder.Marshal(o)
}

func (h *Harness) checkDeterminism(report *Report, first, second *runResult) {
	if len(first.infos) != len(second.infos) {
		violate(report, -1, CheckDeterminism, "runs executed %d and %d transactions", len(first.infos), len(second.infos))
		return
	}
	for i := range first.infos {
		a, errA := digest(first.infos[i])
		b, errB := digest(second.infos[i])
		if errA != nil || errB != nil {
			violate(report, i, CheckDeterminism, "outcome does not encode: %v %v", errA, errB)
			continue
		}
		if !bytes.Equal(a, b) {
			violate(report, i, CheckDeterminism, "runs disagree on the outcome")
		}
	}

	a, errA := encoder.Marshal(first.diff.Canonical())
	b, errB := encoder.Marshal(second.diff.Canonical())
	if errA != nil || errB != nil || !bytes.Equal(a, b) {
		violate(report, -1, CheckDeterminism, "runs disagree on the block state diff")
	}
}
