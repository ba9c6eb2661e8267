package rpcstate

import (
	"context"

	"github.com/NethermindEth/starknet-replay/core/felt"
)

// Caller performs a JSON-RPC call. block is the block the call is answered
// against and args the full positional parameter list, block included.
type Caller interface {
	Call(ctx context.Context, result any, block BlockID, method string, args ...any) error
}

// API is the typed set of Starknet JSON-RPC queries the replay needs.
type API struct {
	caller Caller
}

func NewAPI(caller Caller) *API {
	return &API{caller: caller}
}

func (a *API) ChainID(ctx context.Context) (felt.Felt, error) {
	var chainID felt.Felt
	err := a.caller.Call(ctx, &chainID, Latest(), "starknet_chainId")
	return chainID, err
}

func (a *API) Nonce(ctx context.Context, block BlockID, addr *felt.Felt) (felt.Felt, error) {
	var nonce felt.Felt
	err := a.caller.Call(ctx, &nonce, block, "starknet_getNonce", block, addr)
	return nonce, err
}

func (a *API) StorageAt(ctx context.Context, block BlockID, addr, key *felt.Felt) (felt.Felt, error) {
	var value felt.Felt
	err := a.caller.Call(ctx, &value, block, "starknet_getStorageAt", addr, key, block)
	return value, err
}

func (a *API) ClassHashAt(ctx context.Context, block BlockID, addr *felt.Felt) (felt.Felt, error) {
	var classHash felt.Felt
	err := a.caller.Call(ctx, &classHash, block, "starknet_getClassHashAt", block, addr)
	return classHash, err
}

func (a *API) Class(ctx context.Context, block BlockID, classHash *felt.Felt) (*ClassDefinition, error) {
	class := new(ClassDefinition)
	if err := a.caller.Call(ctx, class, block, "starknet_getClass", block, classHash); err != nil {
		return nil, err
	}
	return class, nil
}

func (a *API) BlockHeader(ctx context.Context, block BlockID) (*BlockHeader, error) {
	header := new(BlockHeader)
	if err := a.caller.Call(ctx, header, block, "starknet_getBlockWithTxHashes", block); err != nil {
		return nil, err
	}
	return header, nil
}

func (a *API) BlockWithReceipts(ctx context.Context, block BlockID) (*BlockWithReceipts, error) {
	result := new(BlockWithReceipts)
	if err := a.caller.Call(ctx, result, block, "starknet_getBlockWithReceipts", block); err != nil {
		return nil, err
	}
	return result, nil
}

func (a *API) StateUpdate(ctx context.Context, block BlockID) (*StateUpdate, error) {
	update := new(StateUpdate)
	if err := a.caller.Call(ctx, update, block, "starknet_getStateUpdate", block); err != nil {
		return nil, err
	}
	return update, nil
}
