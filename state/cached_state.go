package state

import (
	"errors"
	"sync"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
)

var (
	ErrClassNotDeclared = errors.New("class is not declared")
	ErrForeignChild     = errors.New("state is not a child of this state")
	ErrChildClosed      = errors.New("child state was already merged or discarded")
)

// CachedState buffers writes on top of a StateReader (for a block-level
// state) or on top of a parent CachedState (for a transaction or call
// overlay). The wrapped reader is never written to.
type CachedState struct {
	reader StateReader
	parent *CachedState

	mu sync.RWMutex
	// values read from below, kept for the lifetime of the state
	cache StateMaps
	// overlay
	writes StateMaps

	closed bool
}

var _ StateReader = (*CachedState)(nil)

func NewCachedState(reader StateReader) *CachedState {
	return &CachedState{
		reader: reader,
		cache:  NewStateMaps(),
		writes: NewStateMaps(),
	}
}

// CreateChild returns an overlay whose reads fall through to this state.
// Its writes become visible here only after MergeChild.
func (s *CachedState) CreateChild() *CachedState {
	return &CachedState{
		reader: s,
		parent: s,
		cache:  NewStateMaps(),
		writes: NewStateMaps(),
	}
}

// MergeChild applies every write of child to this state's overlay.
func (s *CachedState) MergeChild(child *CachedState) error {
	if err := s.closeChild(child); err != nil {
		return err
	}

	child.mu.RLock()
	writes := child.writes.Clone()
	child.mu.RUnlock()

	s.mu.Lock()
	s.writes.Extend(&writes)
	s.mu.Unlock()
	return nil
}

// Discard drops child, leaving this state untouched.
func (s *CachedState) Discard(child *CachedState) error {
	return s.closeChild(child)
}

func (s *CachedState) closeChild(child *CachedState) error {
	if child.parent != s {
		return ErrForeignChild
	}

	child.mu.Lock()
	defer child.mu.Unlock()
	if child.closed {
		return ErrChildClosed
	}
	child.closed = true
	return nil
}

// Overlay returns a copy of the buffered writes.
func (s *CachedState) Overlay() StateMaps {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes.Clone()
}

// lookup resolves a single value: overlay, then the value below.
func lookup[K comparable](s *CachedState, overlay, cache func(*StateMaps) map[K]felt.Felt, key K,
	read func() (felt.Felt, error), op, keyDesc string,
) (felt.Felt, error) {
	s.mu.RLock()
	v, ok := overlay(&s.writes)[key]
	s.mu.RUnlock()
	if ok {
		return v, nil
	}
	return initial(s, cache, key, read, op, keyDesc)
}

// initial resolves the value below the overlay. The first answer from below is
// cached and served for the lifetime of the state. ErrNotFound resolves to the
// zero felt, which is cached like any other value.
func initial[K comparable](s *CachedState, cache func(*StateMaps) map[K]felt.Felt, key K,
	read func() (felt.Felt, error), op, keyDesc string,
) (felt.Felt, error) {
	s.mu.RLock()
	v, ok := cache(&s.cache)[key]
	s.mu.RUnlock()
	if ok {
		return v, nil
	}

	v, err := read()
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return felt.Zero, wrapReadError(op, keyDesc, err)
		}
		v = felt.Zero
	}

	s.mu.Lock()
	if cached, ok := cache(&s.cache)[key]; ok {
		v = cached
	} else {
		cache(&s.cache)[key] = v
	}
	s.mu.Unlock()
	return v, nil
}

func nonces(sm *StateMaps) map[felt.Felt]felt.Felt              { return sm.Nonces }
func classHashes(sm *StateMaps) map[felt.Felt]felt.Felt         { return sm.ClassHashes }
func storage(sm *StateMaps) map[StorageEntry]felt.Felt          { return sm.Storage }
func compiledClassHashes(sm *StateMaps) map[felt.Felt]felt.Felt { return sm.CompiledClassHashes }

func (s *CachedState) NonceAt(addr *felt.Felt) (felt.Felt, error) {
	return lookup(s, nonces, nonces, *addr, func() (felt.Felt, error) {
		return s.reader.NonceAt(addr)
	}, "NonceAt", addr.String())
}

func (s *CachedState) ClassHashAt(addr *felt.Felt) (felt.Felt, error) {
	return lookup(s, classHashes, classHashes, *addr, func() (felt.Felt, error) {
		return s.reader.ClassHashAt(addr)
	}, "ClassHashAt", addr.String())
}

func (s *CachedState) StorageAt(addr, key *felt.Felt) (felt.Felt, error) {
	entry := StorageEntry{ContractAddress: *addr, Key: *key}
	return lookup(s, storage, storage, entry, func() (felt.Felt, error) {
		return s.reader.StorageAt(addr, key)
	}, "StorageAt", addr.String()+"/"+key.String())
}

func (s *CachedState) CompiledClassHash(classHash *felt.Felt) (felt.Felt, error) {
	return lookup(s, compiledClassHashes, compiledClassHashes, *classHash, func() (felt.Felt, error) {
		return s.reader.CompiledClassHash(classHash)
	}, "CompiledClassHash", classHash.String())
}

// CompiledClass returns the class declared under classHash, or ErrClassNotDeclared.
func (s *CachedState) CompiledClass(classHash *felt.Felt) (*core.ContractClass, error) {
	s.mu.RLock()
	if class, ok := s.writes.DeclaredClasses[*classHash]; ok {
		s.mu.RUnlock()
		return class, nil
	}
	if class, ok := s.cache.DeclaredClasses[*classHash]; ok {
		s.mu.RUnlock()
		if class == nil {
			return nil, ErrClassNotDeclared
		}
		return class, nil
	}
	s.mu.RUnlock()

	class, err := s.reader.CompiledClass(classHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrClassNotDeclared) {
			class = nil
		} else {
			return nil, wrapReadError("CompiledClass", classHash.String(), err)
		}
	}

	s.mu.Lock()
	s.cache.DeclaredClasses[*classHash] = class
	s.mu.Unlock()

	if class == nil {
		return nil, ErrClassNotDeclared
	}
	return class, nil
}

func (s *CachedState) SetStorage(addr, key, value *felt.Felt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes.Storage[StorageEntry{ContractAddress: *addr, Key: *key}] = *value
}

func (s *CachedState) SetNonce(addr, nonce *felt.Felt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes.Nonces[*addr] = *nonce
}

func (s *CachedState) IncrementNonce(addr *felt.Felt) error {
	nonce, err := s.NonceAt(addr)
	if err != nil {
		return err
	}
	s.SetNonce(addr, new(felt.Felt).Add(&nonce, &felt.One))
	return nil
}

func (s *CachedState) SetClassHash(addr, classHash *felt.Felt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes.ClassHashes[*addr] = *classHash
}

func (s *CachedState) SetCompiledClassHash(classHash, compiledClassHash *felt.Felt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes.CompiledClassHashes[*classHash] = *compiledClassHash
}

func (s *CachedState) SetCompiledClass(classHash *felt.Felt, class *core.ContractClass) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes.DeclaredClasses[*classHash] = class
}

// ToStateDiff returns the canonical changes of the overlay relative to the
// values below it, as first observed by this state. Writes that restore that
// value are not changes.
func (s *CachedState) ToStateDiff() (*core.StateDiff, error) {
	writes := s.Overlay()
	diff := core.EmptyStateDiff()

	for entry, value := range writes.Storage {
		addr, key := entry.ContractAddress, entry.Key
		before, err := initial(s, storage, entry, func() (felt.Felt, error) {
			return s.reader.StorageAt(&addr, &key)
		}, "StorageAt", addr.String()+"/"+key.String())
		if err != nil {
			return nil, err
		}
		if before == value {
			continue
		}
		if diff.StorageDiffs[addr] == nil {
			diff.StorageDiffs[addr] = make(map[felt.Felt]felt.Felt)
		}
		diff.StorageDiffs[addr][key] = value
	}

	for addr, nonce := range writes.Nonces {
		before, err := initial(s, nonces, addr, func() (felt.Felt, error) {
			return s.reader.NonceAt(&addr)
		}, "NonceAt", addr.String())
		if err != nil {
			return nil, err
		}
		if before != nonce {
			diff.Nonces[addr] = nonce
		}
	}

	for addr, classHash := range writes.ClassHashes {
		before, err := initial(s, classHashes, addr, func() (felt.Felt, error) {
			return s.reader.ClassHashAt(&addr)
		}, "ClassHashAt", addr.String())
		if err != nil {
			return nil, err
		}
		switch {
		case before == classHash:
		case before.IsZero():
			diff.DeployedContracts[addr] = classHash
		default:
			diff.ReplacedClasses[addr] = classHash
		}
	}

	for classHash, compiledClassHash := range writes.CompiledClassHashes {
		diff.DeclaredClasses[classHash] = compiledClassHash
	}
	return diff, nil
}
