package contracts

import (
	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/NethermindEth/starknet-replay/execution"
	"github.com/NethermindEth/starknet-replay/vm/native"
	"github.com/holiman/uint256"
)

const (
	TransferStepCost  = 10
	BalanceOfStepCost = 2
)

var (
	transferEventKey = core.SelectorFromName("Transfer")
	successRetdata   = []felt.Felt{felt.One}
)

// ERC20 is a fee token. Balances are u256 values stored under the
// ERC20_balances storage variable, as the fee token contracts do.
func ERC20() *native.Program {
	return &native.Program{
		Name:         "erc20",
		CairoVersion: 1,
		EntryPoints: []native.EntryPoint{
			{Name: core.ConstructorEntryPointName, Type: core.Constructor, Steps: TransferStepCost, Func: erc20Constructor},
			{Name: core.TransferEntryPointName, Type: core.External, Steps: TransferStepCost, Func: erc20Transfer},
			{Name: "balanceOf", Type: core.External, Steps: BalanceOfStepCost, Func: erc20BalanceOf},
		},
	}
}

func readBalance(sink execution.SyscallSink, account *felt.Felt) (*uint256.Int, error) {
	lowKey, highKey := core.FeeTokenBalanceKeys(account)
	low, err := sink.StorageRead(&lowKey)
	if err != nil {
		return nil, err
	}
	high, err := sink.StorageRead(&highKey)
	if err != nil {
		return nil, err
	}
	return core.U256FromHalves(&low, &high), nil
}

func writeBalance(sink execution.SyscallSink, account *felt.Felt, balance *uint256.Int) error {
	lowKey, highKey := core.FeeTokenBalanceKeys(account)
	low, high := core.U256ToHalves(balance)
	if err := sink.StorageWrite(&lowKey, &low); err != nil {
		return err
	}
	return sink.StorageWrite(&highKey, &high)
}

// constructor(recipient, initial_supply: u256)
func erc20Constructor(sink execution.SyscallSink, call *execution.Call) ([]felt.Felt, error) {
	args, err := native.Args(call, 3)
	if err != nil {
		return nil, err
	}
	supply := core.U256FromHalves(&args[1], &args[2])
	if err := writeBalance(sink, &args[0], supply); err != nil {
		return nil, err
	}
	return nil, nil
}

// transfer(recipient, amount: u256) -> bool
func erc20Transfer(sink execution.SyscallSink, call *execution.Call) ([]felt.Felt, error) {
	args, err := native.Args(call, 3)
	if err != nil {
		return nil, err
	}
	sender, recipient := call.CallerAddress, args[0]
	if sender.IsZero() {
		return nil, execution.NewRevert("ERC20: transfer from 0")
	}
	if recipient.IsZero() {
		return nil, execution.NewRevert("ERC20: transfer to 0")
	}
	amount := core.U256FromHalves(&args[1], &args[2])

	senderBalance, err := readBalance(sink, &sender)
	if err != nil {
		return nil, err
	}
	if senderBalance.Lt(amount) {
		return nil, execution.NewRevert("ERC20: insufficient balance", felt.FromBytes([]byte("u256_sub Overflow")))
	}
	if err = writeBalance(sink, &sender, senderBalance.Sub(senderBalance, amount)); err != nil {
		return nil, err
	}

	recipientBalance, err := readBalance(sink, &recipient)
	if err != nil {
		return nil, err
	}
	newBalance, overflow := new(uint256.Int).AddOverflow(recipientBalance, amount)
	if overflow {
		return nil, execution.NewRevert("ERC20: balance overflow", felt.FromBytes([]byte("u256_add Overflow")))
	}
	if err = writeBalance(sink, &recipient, newBalance); err != nil {
		return nil, err
	}

	if err = sink.EmitEvent(
		[]felt.Felt{transferEventKey},
		[]felt.Felt{sender, recipient, args[1], args[2]},
	); err != nil {
		return nil, err
	}
	return successRetdata, nil
}

// balanceOf(account) -> u256
func erc20BalanceOf(sink execution.SyscallSink, call *execution.Call) ([]felt.Felt, error) {
	args, err := native.Args(call, 1)
	if err != nil {
		return nil, err
	}
	balance, err := readBalance(sink, &args[0])
	if err != nil {
		return nil, err
	}
	low, high := core.U256ToHalves(balance)
	return []felt.Felt{low, high}, nil
}
