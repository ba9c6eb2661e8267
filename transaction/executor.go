package transaction

import (
	"context"
	"errors"
	"fmt"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/crypto"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/NethermindEth/starknet-replay/execution"
	"github.com/NethermindEth/starknet-replay/state"
	"github.com/NethermindEth/starknet-replay/utils"
	"github.com/NethermindEth/starknet-replay/versioned"
	"github.com/holiman/uint256"
)

var (
	balancesVar      = core.StorageVarAddress(core.BalancesStorageVar)
	transferSelector = core.SelectorFromName(core.TransferEntryPointName)
	executeSelector  = core.SelectorFromName(core.ExecuteEntryPointName)
)

// Executor runs transactions through validate, execute and fee charging.
// It is safe for concurrent use as long as every goroutine works on its own
// block state.
type Executor struct {
	backend execution.Backend
	log     utils.SimpleLogger
	hasher  *crypto.Hasher
}

type Option func(*Executor)

// WithHasher shares a Pedersen hash cache between executors.
func WithHasher(hasher *crypto.Hasher) Option {
	return func(e *Executor) {
		e.hasher = hasher
	}
}

func NewExecutor(backend execution.Backend, log utils.SimpleLogger, opts ...Option) (*Executor, error) {
	e := &Executor{
		backend: backend,
		log:     log,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.hasher == nil {
		hasher, err := crypto.NewHasher(crypto.DefaultHasherCacheSize)
		if err != nil {
			return nil, err
		}
		e.hasher = hasher
	}
	return e, nil
}

func (e *Executor) Backend() execution.Backend {
	return e.backend
}

func (e *Executor) balanceKeys(account *felt.Felt) (low, high felt.Felt) {
	low = *e.hasher.Pedersen(&balancesVar, account)
	high.Add(&low, &felt.One)
	return low, high
}

// Balance reads account's balance of the fee token at token.
func (e *Executor) Balance(st *state.CachedState, token, account *felt.Felt) (*uint256.Int, error) {
	lowKey, highKey := e.balanceKeys(account)
	low, err := st.StorageAt(token, &lowKey)
	if err != nil {
		return nil, err
	}
	high, err := st.StorageAt(token, &highKey)
	if err != nil {
		return nil, err
	}
	return core.U256FromHalves(&low, &high), nil
}

// Execute runs tx on top of blockState and, unless flags.OnlyQuery is set,
// commits its effects into blockState.
//
// Execution outcomes, including rejections and reverts, are reported in the
// returned ExecutionInfo. An error is returned only when the outcome could
// not be determined: state read failures, configuration errors and backend
// failures. blockState is left untouched in that case.
func (e *Executor) Execute(ctx context.Context, blockState *state.CachedState, blockCtx *execution.BlockContext,
	tx Transaction, flags ExecutionFlags,
) (*ExecutionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := &txRun{
		e:          e,
		blockState: blockState,
		blockCtx:   blockCtx,
		flags:      flags,
		info: &ExecutionInfo{
			Type:            tx.Type(),
			TransactionHash: tx.Hash(),
		},
	}

	var err error
	switch t := tx.(type) {
	case *Invoke:
		err = r.invoke(t)
	case *DeployAccount:
		err = r.deployAccount(t)
	case *Declare:
		err = r.declare(t)
	case *L1Handler:
		err = r.l1Handler(t)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownTransactionType, tx)
	}

	if err = r.settle(err); err != nil {
		r.abort()
		return nil, err
	}

	e.log.Debugw("Executed transaction",
		"hash", r.info.TransactionHash,
		"type", r.info.Type,
		"disposition", r.info.Disposition,
		"gas", r.info.Gas,
		"fee", r.info.Fee.Amount,
	)
	return r.info, nil
}

// rejection is a failure that discards the whole transaction.
type rejection struct {
	err error
}

func (e *rejection) Error() string {
	return e.err.Error()
}

func (e *rejection) Unwrap() error {
	return e.err
}

// txRun holds the state of one transaction going through Execute.
type txRun struct {
	e          *Executor
	blockState *state.CachedState
	blockCtx   *execution.BlockContext
	flags      ExecutionFlags

	tx      *execution.TxContext
	txState *state.CachedState
	// account pays the fee and owns the nonce
	account felt.Felt
	maxFee  *uint256.Int

	info *ExecutionInfo
}

func (r *txRun) constants() *versioned.Constants {
	return r.blockCtx.Constants
}

func (r *txRun) begin(fields *AccountFields, account felt.Felt) {
	r.account = account
	r.maxFee = fields.MaxFeeAmount()
	r.tx = &execution.TxContext{
		Block: r.blockCtx,
		Info: execution.TxInfo{
			Version:         fields.Version,
			AccountAddress:  account,
			MaxFee:          fields.MaxFee,
			Signature:       fields.Signature,
			TransactionHash: fields.TransactionHash,
			ChainID:         r.blockCtx.ChainID,
			Nonce:           fields.Nonce,
		},
	}
	r.txState = r.blockState.CreateChild()
}

// settle turns deterministic pre-execution failures into a Rejected outcome
// and passes everything else through.
func (r *txRun) settle(err error) error {
	var (
		failure  *ValidationFailure
		rejected *rejection
	)
	switch {
	case err == nil:
		return nil
	case errors.As(err, &failure):
		r.info.ValidationFailure = failure
		return r.reject(failure.Error())
	case errors.As(err, &rejected):
		return r.reject(rejected.Error())
	default:
		return err
	}
}

func (r *txRun) reject(reason string) error {
	r.info.Disposition = Rejected
	r.info.RevertReason = reason
	r.info.StateDiff = core.EmptyStateDiff()
	r.info.Fee = Fee{Unit: feeTokenOf(r.tx)}
	r.info.Gas = 0
	r.info.FeeTransferCallInfo = nil
	return r.discardTxState()
}

func (r *txRun) revert(err error) {
	r.info.Disposition = Reverted
	r.info.RevertReason = err.Error()
}

func (r *txRun) discardTxState() error {
	if r.txState == nil {
		return nil
	}
	txState := r.txState
	r.txState = nil
	return r.blockState.Discard(txState)
}

// abort drops every effect of the transaction after an infrastructure failure.
func (r *txRun) abort() {
	if err := r.discardTxState(); err != nil {
		r.e.log.Warnw("Failed to discard transaction state", "hash", r.info.TransactionHash, "err", err)
	}
}

func (r *txRun) commit() error {
	diff, err := r.txState.ToStateDiff()
	if err != nil {
		return err
	}
	r.info.StateDiff = diff

	txState := r.txState
	r.txState = nil
	if r.flags.OnlyQuery {
		return r.blockState.Discard(txState)
	}
	return r.blockState.MergeChild(txState)
}

func (r *txRun) addResources(ctx *execution.Context) {
	total := ctx.Total()
	r.info.Resources.Add(&total)
}

func (r *txRun) checkNonce(nonce *felt.Felt) error {
	if r.flags.SkipNonceCheck {
		return nil
	}
	current, err := r.txState.NonceAt(&r.account)
	if err != nil {
		return err
	}
	if current != *nonce {
		return validationFailure(fmt.Errorf("%w: account nonce is %s, transaction nonce is %s", ErrInvalidNonce, current, nonce))
	}
	return nil
}

// checkMaxFee rejects a max fee that could not cover the cheapest transaction
// or that the account could not pay.
func (r *txRun) checkMaxFee() error {
	if !r.flags.ChargeFee || r.flags.IgnoreMaxFee {
		return nil
	}
	price := r.tx.GasPrice()
	minimal, err := MinimalFee(r.constants(), &price)
	if err != nil {
		return err
	}
	if r.maxFee.Lt(minimal) {
		return validationFailure(fmt.Errorf("%w: max fee %s, minimal fee %s", ErrMaxFeeTooLow, r.maxFee.Dec(), minimal.Dec()))
	}
	token := r.tx.FeeTokenAddress()
	balance, err := r.e.Balance(r.txState, &token, &r.account)
	if err != nil {
		return err
	}
	if balance.Lt(r.maxFee) {
		return validationFailure(fmt.Errorf("%w: max fee %s, balance %s", ErrMaxFeeExceedsBalance, r.maxFee.Dec(), balance.Dec()))
	}
	return nil
}

func (r *txRun) preValidate(fields *AccountFields) error {
	if err := r.checkNonce(&fields.Nonce); err != nil {
		return err
	}
	return r.checkMaxFee()
}

// validate runs the account's validation entry point. It reports whether the
// transaction may go on to execution. A validation failure either rejects
// the transaction or, when the table allows it, only skips execution.
func (r *txRun) validate(entryPointName string, calldata []felt.Felt) (bool, error) {
	if !r.flags.Validate {
		return true, nil
	}

	ctx := execution.NewContext(r.e.backend, r.tx, execution.ModeValidate,
		execution.PhaseLimits(r.constants(), execution.ModeValidate))
	info, err := execution.ExecuteEntryPoint(ctx, r.txState, &execution.Call{
		EntryPointType: core.External,
		Selector:       core.SelectorFromName(entryPointName),
		Calldata:       calldata,
		StorageAddress: r.account,
		CallType:       execution.CallTypeCall,
	})
	r.addResources(ctx)
	r.info.ValidateCallInfo = info
	if err == nil {
		err = r.checkValidateRetdata(info)
	}

	switch {
	case err == nil:
		return true, nil
	case execution.IsFatal(err):
		return false, err
	case r.constants().RejectOnValidateFailure:
		return false, validationFailure(err)
	default:
		r.info.ValidationFailure = validationFailure(err)
		r.revert(r.info.ValidationFailure)
		return false, nil
	}
}

func (r *txRun) checkValidateRetdata(info *execution.CallInfo) error {
	if !r.constants().RequireValidRetdata {
		return nil
	}
	class, err := r.txState.CompiledClass(&info.ClassHash)
	if err != nil {
		return err
	}
	if class.CairoVersion == 0 {
		return nil
	}
	if len(info.Execution.Retdata) != 1 || info.Execution.Retdata[0] != core.ValidRetdata {
		return fmt.Errorf("%w: got %v", ErrInvalidValidateReturn, info.Execution.Retdata)
	}
	return nil
}

// execute runs call in a child of the transaction state and returns the child
// holding its effects, still open. A failed execution returns a nil state.
func (r *txRun) execute(call *execution.Call) (*state.CachedState, error) {
	execState := r.txState.CreateChild()
	ctx := execution.NewContext(r.e.backend, r.tx, execution.ModeExecute,
		execution.PhaseLimits(r.constants(), execution.ModeExecute))
	info, err := execution.ExecuteEntryPoint(ctx, execState, call)
	r.addResources(ctx)
	r.info.ExecuteCallInfo = info
	if err == nil {
		return execState, nil
	}

	if discardErr := r.txState.Discard(execState); discardErr != nil {
		return nil, discardErr
	}
	switch {
	case execution.IsFatal(err):
		return nil, err
	case !r.constants().EnableReverts:
		return nil, &rejection{err: err}
	default:
		r.revert(err)
		return nil, nil
	}
}

func (r *txRun) messagesPayloadLength() uint64 {
	var n uint64
	for _, c := range []*execution.CallInfo{r.info.ValidateCallInfo, r.info.ConstructorCallInfo, r.info.ExecuteCallInfo} {
		if c != nil {
			n += c.MessagesPayloadLength()
		}
	}
	return n
}

// chargeFee prices the transaction, settles execState against the max fee and
// charges the fee. It commits the transaction state in every case.
func (r *txRun) chargeFee(execState *state.CachedState) error {
	r.info.Gas = Gas(r.constants(), &r.info.Resources, r.messagesPayloadLength())
	price := r.tx.GasPrice()
	fee, err := FeeOf(r.info.Gas, &price)
	if err != nil {
		return err
	}

	if r.flags.ChargeFee && !r.flags.IgnoreMaxFee && fee.Gt(r.maxFee) {
		if execState != nil {
			if err := r.txState.Discard(execState); err != nil {
				return err
			}
			execState = nil
			r.revert(fmt.Errorf("%w: fee %s, max fee %s", ErrMaxFeeExceeded, fee.Dec(), r.maxFee.Dec()))
		}
		fee = new(uint256.Int).Set(r.maxFee)
	}
	amount, err := core.U256ToFelt(fee)
	if err != nil {
		return err
	}
	r.info.Fee = Fee{Amount: amount, Unit: feeTokenOf(r.tx)}

	if execState != nil {
		if err := r.txState.MergeChild(execState); err != nil {
			return err
		}
	}
	if !r.flags.ChargeFee || fee.IsZero() {
		return r.commit()
	}

	info, err := r.transferFee(r.txState, fee)
	r.info.FeeTransferCallInfo = info
	if err != nil {
		if execution.IsFatal(err) {
			return err
		}
		return r.feeChargeFailure(fee, err)
	}
	return r.commit()
}

// transferFee calls transfer on the fee token from the account to the sequencer.
func (r *txRun) transferFee(st *state.CachedState, amount *uint256.Int) (*execution.CallInfo, error) {
	low, high := core.U256ToHalves(amount)
	ctx := execution.NewContext(r.e.backend, r.tx, execution.ModeExecute,
		execution.PhaseLimits(r.constants(), execution.ModeExecute))
	return execution.ExecuteEntryPoint(ctx, st, &execution.Call{
		EntryPointType: core.External,
		Selector:       transferSelector,
		Calldata:       []felt.Felt{r.blockCtx.SequencerAddress, low, high},
		StorageAddress: r.tx.FeeTokenAddress(),
		CallerAddress:  r.account,
		CallType:       execution.CallTypeCall,
	})
}

// feeChargeFailure drops everything the transaction did and starts over from
// the block state with the nonce increment and the debit the fee failure
// policy allows.
func (r *txRun) feeChargeFailure(fee *uint256.Int, cause error) error {
	token := r.tx.FeeTokenAddress()
	balance, err := r.e.Balance(r.txState, &token, &r.account)
	if err != nil {
		return err
	}
	failure := &FeeChargeError{Fee: fee, Balance: balance, Err: cause}
	r.info.FeeChargeFailure = failure
	r.info.Disposition = FeeChargeFailure
	r.info.RevertReason = failure.Error()

	if err = r.discardTxState(); err != nil {
		return err
	}
	r.txState = r.blockState.CreateChild()
	if err = r.txState.IncrementNonce(&r.account); err != nil {
		return err
	}

	charged := new(uint256.Int)
	if r.constants().FeeFailurePolicy == versioned.ChargeAvailable {
		available, err := r.e.Balance(r.txState, &token, &r.account)
		if err != nil {
			return err
		}
		charged.Set(fee)
		if available.Lt(charged) {
			charged.Set(available)
		}
	}

	r.info.FeeTransferCallInfo = nil
	if !charged.IsZero() {
		info, err := r.transferFee(r.txState, charged)
		switch {
		case err == nil:
			r.info.FeeTransferCallInfo = info
		case execution.IsFatal(err):
			return err
		default:
			r.e.log.Warnw("Partial fee transfer failed", "hash", r.info.TransactionHash, "err", err)
			charged.Clear()
		}
	}
	if r.info.Fee.Amount, err = core.U256ToFelt(charged); err != nil {
		return err
	}
	return r.commit()
}

func (r *txRun) invoke(tx *Invoke) error {
	r.begin(&tx.AccountFields, tx.SenderAddress)
	if err := r.preValidate(&tx.AccountFields); err != nil {
		return err
	}

	executable, err := r.validate(core.ValidateEntryPointName, tx.Calldata)
	if err != nil {
		return err
	}
	if err = r.txState.IncrementNonce(&r.account); err != nil {
		return err
	}

	var execState *state.CachedState
	if executable && !r.flags.SkipExecute {
		execState, err = r.execute(&execution.Call{
			EntryPointType: core.External,
			Selector:       executeSelector,
			Calldata:       tx.Calldata,
			StorageAddress: r.account,
			CallType:       execution.CallTypeCall,
		})
		if err != nil {
			return err
		}
	}
	return r.chargeFee(execState)
}

// deployAccount deploys the account and runs its constructor before
// validating, since the validation entry point lives in the new account.
func (r *txRun) deployAccount(tx *DeployAccount) error {
	r.begin(&tx.AccountFields, tx.ContractAddress())
	if err := r.preValidate(&tx.AccountFields); err != nil {
		return err
	}

	ctx := execution.NewContext(r.e.backend, r.tx, execution.ModeValidate,
		execution.PhaseLimits(r.constants(), execution.ModeValidate))
	_, err := execution.Deploy(ctx, r.txState, &felt.Zero, &tx.ClassHash, &r.account, tx.ConstructorCalldata,
		func(ctor *execution.CallInfo) {
			r.info.ConstructorCallInfo = ctor
		})
	r.addResources(ctx)
	if err != nil {
		if execution.IsFatal(err) {
			return err
		}
		return validationFailure(err)
	}

	calldata := make([]felt.Felt, 0, 2+len(tx.ConstructorCalldata))
	calldata = append(calldata, tx.ClassHash, tx.ContractAddressSalt)
	calldata = append(calldata, tx.ConstructorCalldata...)
	executable, err := r.validate(core.ValidateDeployEntryPointName, calldata)
	if err != nil {
		return err
	}
	if !executable {
		// the account that would pay for a reverted deployment does not exist
		return r.info.ValidationFailure
	}
	if err = r.txState.IncrementNonce(&r.account); err != nil {
		return err
	}
	return r.chargeFee(nil)
}

func (r *txRun) declare(tx *Declare) error {
	r.begin(&tx.AccountFields, tx.SenderAddress)
	if err := r.preValidate(&tx.AccountFields); err != nil {
		return err
	}
	if tx.Class == nil {
		return validationFailure(errors.New("declare transaction carries no class"))
	}

	_, err := r.txState.CompiledClass(&tx.ClassHash)
	switch {
	case err == nil:
		return validationFailure(fmt.Errorf("%w: %s", ErrClassAlreadyDeclared, tx.ClassHash))
	case !errors.Is(err, state.ErrClassNotDeclared):
		return err
	}

	executable, err := r.validate(core.ValidateDeclareEntryPointName, []felt.Felt{tx.ClassHash})
	if err != nil {
		return err
	}
	if executable && !r.flags.SkipExecute {
		r.txState.SetCompiledClass(&tx.ClassHash, tx.Class)
		r.txState.SetCompiledClassHash(&tx.ClassHash, &tx.CompiledClassHash)
	}
	if err = r.txState.IncrementNonce(&r.account); err != nil {
		return err
	}
	return r.chargeFee(nil)
}

// l1Handler runs a message from L1. It has no validation, no nonce and no
// fee transfer: the fee was paid on L1. Its fee is still computed and reported.
func (r *txRun) l1Handler(tx *L1Handler) error {
	r.account = tx.ContractAddress
	r.tx = &execution.TxContext{
		Block: r.blockCtx,
		Info: execution.TxInfo{
			Version:         tx.Version,
			AccountAddress:  tx.ContractAddress,
			TransactionHash: tx.TransactionHash,
			ChainID:         r.blockCtx.ChainID,
			Nonce:           tx.Nonce,
		},
	}
	r.txState = r.blockState.CreateChild()

	var execState *state.CachedState
	if !r.flags.SkipExecute {
		var err error
		execState, err = r.execute(&execution.Call{
			EntryPointType: core.L1Handler,
			Selector:       tx.EntryPointSelector,
			Calldata:       tx.Calldata,
			StorageAddress: tx.ContractAddress,
			CallType:       execution.CallTypeCall,
		})
		if err != nil {
			return err
		}
	}

	r.info.Gas = Gas(r.constants(), &r.info.Resources, r.messagesPayloadLength())
	price := r.tx.GasPrice()
	fee, err := FeeOf(r.info.Gas, &price)
	if err != nil {
		return err
	}
	amount, err := core.U256ToFelt(fee)
	if err != nil {
		return err
	}
	r.info.Fee = Fee{Amount: amount, Unit: feeTokenOf(r.tx)}
	if execState != nil {
		if err := r.txState.MergeChild(execState); err != nil {
			return err
		}
	}
	return r.commit()
}
