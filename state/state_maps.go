package state

import (
	"maps"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
)

const (
	DefaultNonceMapCapacity     = 16
	DefaultClassHashMapCapacity = 16
	DefaultStorageMapCapacity   = 64
)

// StorageEntry identifies a storage cell of a contract.
type StorageEntry struct {
	ContractAddress felt.Felt
	Key             felt.Felt
}

// StateMaps holds one value per state key. CachedState keeps one as the write
// overlay and one as the cache of values read from below.
type StateMaps struct {
	Nonces              map[felt.Felt]felt.Felt
	ClassHashes         map[felt.Felt]felt.Felt
	Storage             map[StorageEntry]felt.Felt
	CompiledClassHashes map[felt.Felt]felt.Felt
	DeclaredClasses     map[felt.Felt]*core.ContractClass
}

func NewStateMaps() StateMaps {
	return StateMaps{
		Nonces:              make(map[felt.Felt]felt.Felt, DefaultNonceMapCapacity),
		ClassHashes:         make(map[felt.Felt]felt.Felt, DefaultClassHashMapCapacity),
		Storage:             make(map[StorageEntry]felt.Felt, DefaultStorageMapCapacity),
		CompiledClassHashes: make(map[felt.Felt]felt.Felt),
		DeclaredClasses:     make(map[felt.Felt]*core.ContractClass),
	}
}

// Clone copies the maps. Classes are immutable and shared.
func (sm *StateMaps) Clone() StateMaps {
	return StateMaps{
		Nonces:              maps.Clone(sm.Nonces),
		ClassHashes:         maps.Clone(sm.ClassHashes),
		Storage:             maps.Clone(sm.Storage),
		CompiledClassHashes: maps.Clone(sm.CompiledClassHashes),
		DeclaredClasses:     maps.Clone(sm.DeclaredClasses),
	}
}

// Extend writes every entry of other into sm, overriding existing keys.
func (sm *StateMaps) Extend(other *StateMaps) {
	maps.Copy(sm.Nonces, other.Nonces)
	maps.Copy(sm.ClassHashes, other.ClassHashes)
	maps.Copy(sm.Storage, other.Storage)
	maps.Copy(sm.CompiledClassHashes, other.CompiledClassHashes)
	maps.Copy(sm.DeclaredClasses, other.DeclaredClasses)
}

func (sm *StateMaps) Len() int {
	return len(sm.Nonces) + len(sm.ClassHashes) + len(sm.Storage) + len(sm.CompiledClassHashes) + len(sm.DeclaredClasses)
}
