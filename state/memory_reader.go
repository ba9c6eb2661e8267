package state

import (
	"sync"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
)

// MemoryReader is a StateReader over in-memory maps. Values that were never
// set are reported as ErrNotFound.
type MemoryReader struct {
	mu sync.RWMutex
	StateMaps
}

var _ StateReader = (*MemoryReader)(nil)

func NewMemoryReader() *MemoryReader {
	return &MemoryReader{StateMaps: NewStateMaps()}
}

func (r *MemoryReader) NonceAt(addr *felt.Felt) (felt.Felt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.Nonces[*addr]; ok {
		return v, nil
	}
	return felt.Zero, ErrNotFound
}

func (r *MemoryReader) ClassHashAt(addr *felt.Felt) (felt.Felt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.ClassHashes[*addr]; ok {
		return v, nil
	}
	return felt.Zero, ErrNotFound
}

func (r *MemoryReader) StorageAt(addr, key *felt.Felt) (felt.Felt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.Storage[StorageEntry{ContractAddress: *addr, Key: *key}]; ok {
		return v, nil
	}
	return felt.Zero, ErrNotFound
}

func (r *MemoryReader) CompiledClassHash(classHash *felt.Felt) (felt.Felt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.CompiledClassHashes[*classHash]; ok {
		return v, nil
	}
	return felt.Zero, ErrNotFound
}

func (r *MemoryReader) CompiledClass(classHash *felt.Felt) (*core.ContractClass, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if class, ok := r.DeclaredClasses[*classHash]; ok {
		return class, nil
	}
	return nil, ErrNotFound
}

func (r *MemoryReader) WithNonce(addr, nonce felt.Felt) *MemoryReader {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Nonces[addr] = nonce
	return r
}

func (r *MemoryReader) WithStorage(addr, key, value felt.Felt) *MemoryReader {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Storage[StorageEntry{ContractAddress: addr, Key: key}] = value
	return r
}

// WithClass declares class under classHash.
func (r *MemoryReader) WithClass(classHash felt.Felt, class *core.ContractClass) *MemoryReader {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.DeclaredClasses[classHash] = class
	r.CompiledClassHashes[classHash] = classHash
	return r
}

// WithContract deploys classHash at addr.
func (r *MemoryReader) WithContract(addr, classHash felt.Felt) *MemoryReader {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ClassHashes[addr] = classHash
	return r
}

// Apply writes every change of diff into the reader.
func (r *MemoryReader) Apply(diff *core.StateDiff) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for addr, storage := range diff.StorageDiffs {
		for key, value := range storage {
			r.Storage[StorageEntry{ContractAddress: addr, Key: key}] = value
		}
	}
	for addr, nonce := range diff.Nonces {
		r.Nonces[addr] = nonce
	}
	for addr, classHash := range diff.DeployedContracts {
		r.ClassHashes[addr] = classHash
	}
	for addr, classHash := range diff.ReplacedClasses {
		r.ClassHashes[addr] = classHash
	}
	for classHash, compiledClassHash := range diff.DeclaredClasses {
		r.CompiledClassHashes[classHash] = compiledClassHash
	}
}
