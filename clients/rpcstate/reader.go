package rpcstate

import (
	"context"
	"fmt"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/NethermindEth/starknet-replay/state"
)

var _ state.StateReader = (*Reader)(nil)

// Reader answers state reads from a node, pinned to one block. It carries
// the context its reads run under since state.StateReader has none.
type Reader struct {
	ctx       context.Context
	api       *API
	block     BlockID
	overrides map[felt.Felt]*core.ContractClass
}

type ReaderOption func(*Reader)

// WithClassOverrides serves the given classes instead of fetching them.
// Backends that cannot run the node's programs register their own
// implementation of a class hash this way.
func WithClassOverrides(classes map[felt.Felt]*core.ContractClass) ReaderOption {
	return func(r *Reader) {
		r.overrides = classes
	}
}

func NewReader(ctx context.Context, caller Caller, block BlockID, opts ...ReaderOption) *Reader {
	r := &Reader{ctx: ctx, api: NewAPI(caller), block: block}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reader) Block() BlockID {
	return r.block
}

func (r *Reader) NonceAt(addr *felt.Felt) (felt.Felt, error) {
	nonce, err := r.api.Nonce(r.ctx, r.block, addr)
	return nonce, r.readError("NonceAt", addr.String(), err)
}

func (r *Reader) ClassHashAt(addr *felt.Felt) (felt.Felt, error) {
	classHash, err := r.api.ClassHashAt(r.ctx, r.block, addr)
	return classHash, r.readError("ClassHashAt", addr.String(), err)
}

func (r *Reader) StorageAt(addr, key *felt.Felt) (felt.Felt, error) {
	value, err := r.api.StorageAt(r.ctx, r.block, addr, key)
	return value, r.readError("StorageAt", addr.String()+"/"+key.String(), err)
}

// CompiledClassHash is not served by the node's JSON-RPC API, so declared
// classes always resolve to a zero compiled class hash.
func (r *Reader) CompiledClassHash(classHash *felt.Felt) (felt.Felt, error) {
	return felt.Zero, fmt.Errorf("%w: compiled class hash of %s", state.ErrNotFound, classHash.String())
}

func (r *Reader) CompiledClass(classHash *felt.Felt) (*core.ContractClass, error) {
	if class, ok := r.overrides[*classHash]; ok {
		return class, nil
	}

	definition, err := r.api.Class(r.ctx, r.block, classHash)
	if err != nil {
		return nil, r.readError("CompiledClass", classHash.String(), err)
	}
	class, err := definition.ContractClass()
	if err != nil {
		return nil, &state.StateReadError{Op: "CompiledClass", Key: classHash.String(), Err: err}
	}
	return class, nil
}

func (r *Reader) readError(op, key string, err error) error {
	switch {
	case err == nil:
		return nil
	case isNotFound(err):
		return fmt.Errorf("%w: %v", state.ErrNotFound, err)
	default:
		return &state.StateReadError{Op: op, Key: key, Retryable: IsTransient(err), Err: err}
	}
}
