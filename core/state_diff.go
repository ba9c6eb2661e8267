package core

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/NethermindEth/starknet-replay/core/crypto"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/NethermindEth/starknet-replay/encoder"
)

// StateDiff is the set of state changes of a transaction or a block. Its
// maps carry no order, every serialised form goes through Canonical so two
// diffs built from the same writes in different orders encode identically.
type StateDiff struct {
	StorageDiffs      map[felt.Felt]map[felt.Felt]felt.Felt // address -> key -> value
	Nonces            map[felt.Felt]felt.Felt               // address -> nonce
	DeployedContracts map[felt.Felt]felt.Felt               // address -> class hash
	ReplacedClasses   map[felt.Felt]felt.Felt               // address -> class hash
	DeclaredClasses   map[felt.Felt]felt.Felt               // class hash -> compiled class hash
}

func EmptyStateDiff() *StateDiff {
	return &StateDiff{
		StorageDiffs:      make(map[felt.Felt]map[felt.Felt]felt.Felt),
		Nonces:            make(map[felt.Felt]felt.Felt),
		DeployedContracts: make(map[felt.Felt]felt.Felt),
		ReplacedClasses:   make(map[felt.Felt]felt.Felt),
		DeclaredClasses:   make(map[felt.Felt]felt.Felt),
	}
}

func (d *StateDiff) Length() int {
	length := len(d.Nonces) + len(d.DeployedContracts) + len(d.ReplacedClasses) + len(d.DeclaredClasses)
	for _, storage := range d.StorageDiffs {
		length += len(storage)
	}
	return length
}

func (d *StateDiff) IsEmpty() bool {
	return d.Length() == 0
}

// Merge applies other on top of d, later writes win.
func (d *StateDiff) Merge(other *StateDiff) {
	for addr, storage := range other.StorageDiffs {
		if d.StorageDiffs[addr] == nil {
			d.StorageDiffs[addr] = make(map[felt.Felt]felt.Felt, len(storage))
		}
		maps.Copy(d.StorageDiffs[addr], storage)
	}
	maps.Copy(d.Nonces, other.Nonces)
	maps.Copy(d.ReplacedClasses, other.ReplacedClasses)
	maps.Copy(d.DeclaredClasses, other.DeclaredClasses)
	for addr, classHash := range other.DeployedContracts {
		d.DeployedContracts[addr] = classHash
		delete(d.ReplacedClasses, addr)
	}
}

type StorageEntry struct {
	Key   felt.Felt `json:"key"`
	Value felt.Felt `json:"value"`
}

type ContractStorageDiff struct {
	Address felt.Felt      `json:"address"`
	Entries []StorageEntry `json:"storage_entries"`
}

type AddressValue struct {
	Address felt.Felt `json:"address"`
	Value   felt.Felt `json:"value"`
}

type DeclaredClass struct {
	ClassHash         felt.Felt `json:"class_hash"`
	CompiledClassHash felt.Felt `json:"compiled_class_hash"`
}

// CanonicalStateDiff is a StateDiff with every collection sorted by address, then key.
type CanonicalStateDiff struct {
	StorageDiffs      []ContractStorageDiff `json:"storage_diffs"`
	Nonces            []AddressValue        `json:"nonces"`
	DeployedContracts []AddressValue        `json:"deployed_contracts"`
	ReplacedClasses   []AddressValue        `json:"replaced_classes"`
	DeclaredClasses   []DeclaredClass       `json:"declared_classes"`
}

func sortedKeys[V any](m map[felt.Felt]V) []felt.Felt {
	keys := slices.Collect(maps.Keys(m))
	slices.SortFunc(keys, func(a, b felt.Felt) int { return a.Cmp(&b) })
	return keys
}

func sortedAddressValues(m map[felt.Felt]felt.Felt) []AddressValue {
	result := make([]AddressValue, 0, len(m))
	for _, k := range sortedKeys(m) {
		result = append(result, AddressValue{Address: k, Value: m[k]})
	}
	return result
}

func (d *StateDiff) Canonical() *CanonicalStateDiff {
	canonical := &CanonicalStateDiff{
		StorageDiffs:      make([]ContractStorageDiff, 0, len(d.StorageDiffs)),
		Nonces:            sortedAddressValues(d.Nonces),
		DeployedContracts: sortedAddressValues(d.DeployedContracts),
		ReplacedClasses:   sortedAddressValues(d.ReplacedClasses),
		DeclaredClasses:   make([]DeclaredClass, 0, len(d.DeclaredClasses)),
	}
	for _, addr := range sortedKeys(d.StorageDiffs) {
		storage := d.StorageDiffs[addr]
		if len(storage) == 0 {
			continue
		}
		entries := make([]StorageEntry, 0, len(storage))
		for _, key := range sortedKeys(storage) {
			entries = append(entries, StorageEntry{Key: key, Value: storage[key]})
		}
		canonical.StorageDiffs = append(canonical.StorageDiffs, ContractStorageDiff{Address: addr, Entries: entries})
	}
	for _, classHash := range sortedKeys(d.DeclaredClasses) {
		canonical.DeclaredClasses = append(canonical.DeclaredClasses, DeclaredClass{
			ClassHash:         classHash,
			CompiledClassHash: d.DeclaredClasses[classHash],
		})
	}
	return canonical
}

func (c *CanonicalStateDiff) StateDiff() *StateDiff {
	diff := EmptyStateDiff()
	for _, storage := range c.StorageDiffs {
		entries := make(map[felt.Felt]felt.Felt, len(storage.Entries))
		for _, e := range storage.Entries {
			entries[e.Key] = e.Value
		}
		diff.StorageDiffs[storage.Address] = entries
	}
	for _, n := range c.Nonces {
		diff.Nonces[n.Address] = n.Value
	}
	for _, dc := range c.DeployedContracts {
		diff.DeployedContracts[dc.Address] = dc.Value
	}
	for _, rc := range c.ReplacedClasses {
		diff.ReplacedClasses[rc.Address] = rc.Value
	}
	for _, dc := range c.DeclaredClasses {
		diff.DeclaredClasses[dc.ClassHash] = dc.CompiledClassHash
	}
	return diff
}

// Marshal returns the canonical CBOR encoding of the diff.
func (d *StateDiff) Marshal() ([]byte, error) {
	return encoder.Marshal(d.Canonical())
}

func UnmarshalStateDiff(data []byte) (*StateDiff, error) {
	var canonical CanonicalStateDiff
	if err := encoder.Unmarshal(data, &canonical); err != nil {
		return nil, err
	}
	return canonical.StateDiff(), nil
}

func (d *StateDiff) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Canonical())
}

func (d *StateDiff) UnmarshalJSON(data []byte) error {
	var canonical CanonicalStateDiff
	if err := json.Unmarshal(data, &canonical); err != nil {
		return err
	}
	*d = *canonical.StateDiff()
	return nil
}

// Commitment hashes the canonical form of the diff into a single felt.
func (d *StateDiff) Commitment() *felt.Felt {
	c := d.Canonical()
	var digest crypto.PedersenDigest

	digest.Update(felt.NewFromUint64(uint64(len(c.StorageDiffs))))
	for i := range c.StorageDiffs {
		digest.Update(&c.StorageDiffs[i].Address, felt.NewFromUint64(uint64(len(c.StorageDiffs[i].Entries))))
		for j := range c.StorageDiffs[i].Entries {
			digest.Update(&c.StorageDiffs[i].Entries[j].Key, &c.StorageDiffs[i].Entries[j].Value)
		}
	}
	for _, list := range [][]AddressValue{c.Nonces, c.DeployedContracts, c.ReplacedClasses} {
		digest.Update(felt.NewFromUint64(uint64(len(list))))
		for i := range list {
			digest.Update(&list[i].Address, &list[i].Value)
		}
	}
	digest.Update(felt.NewFromUint64(uint64(len(c.DeclaredClasses))))
	for i := range c.DeclaredClasses {
		digest.Update(&c.DeclaredClasses[i].ClassHash, &c.DeclaredClasses[i].CompiledClassHash)
	}
	return digest.Finish()
}

// Equal reports whether both diffs describe the same set of changes.
func (d *StateDiff) Equal(other *StateDiff) bool {
	return d.Commitment().Equal(other.Commitment())
}

// Absent stands for a missing entry in a Difference.
const Absent = "<absent>"

// Difference is an entry on which two diffs disagree. Field names the
// collection and its key, as in "storage[0x1/0x2]" or "nonces[0x1]".
type Difference struct {
	Field    string
	Expected string
	Actual   string
}

// FirstDifference returns the first entry, in canonical order, where d
// disagrees with expected, or nil when both describe the same changes.
func (d *StateDiff) FirstDifference(expected *StateDiff) *Difference {
	actual, want := d.Canonical(), expected.Canonical()

	if diff := firstDifference("storage", true, storageCells(want), storageCells(actual)); diff != nil {
		return diff
	}
	lists := []struct {
		name           string
		expected, list []AddressValue
	}{
		{"nonces", want.Nonces, actual.Nonces},
		{"deployed_contracts", want.DeployedContracts, actual.DeployedContracts},
		{"replaced_classes", want.ReplacedClasses, actual.ReplacedClasses},
	}
	for _, l := range lists {
		if diff := firstDifference(l.name, false, addressCells(l.expected), addressCells(l.list)); diff != nil {
			return diff
		}
	}
	return firstDifference("declared_classes", false, declaredCells(want.DeclaredClasses), declaredCells(actual.DeclaredClasses))
}

// cell is one entry of a canonical collection, ordered by address then key.
type cell struct {
	address, key, value felt.Felt
}

func (c *cell) cmp(o *cell) int {
	if r := c.address.Cmp(&o.address); r != 0 {
		return r
	}
	return c.key.Cmp(&o.key)
}

func storageCells(c *CanonicalStateDiff) []cell {
	var cells []cell
	for _, contract := range c.StorageDiffs {
		for _, e := range contract.Entries {
			cells = append(cells, cell{address: contract.Address, key: e.Key, value: e.Value})
		}
	}
	return cells
}

func addressCells(list []AddressValue) []cell {
	cells := make([]cell, len(list))
	for i, av := range list {
		cells[i] = cell{address: av.Address, value: av.Value}
	}
	return cells
}

func declaredCells(list []DeclaredClass) []cell {
	cells := make([]cell, len(list))
	for i, dc := range list {
		cells[i] = cell{address: dc.ClassHash, value: dc.CompiledClassHash}
	}
	return cells
}

// firstDifference walks two sorted cell lists in step.
func firstDifference(name string, keyed bool, expected, actual []cell) *Difference {
	field := func(c *cell) string {
		if keyed {
			return fmt.Sprintf("%s[%s/%s]", name, c.address.String(), c.key.String())
		}
		return fmt.Sprintf("%s[%s]", name, c.address.String())
	}

	for i, j := 0, 0; i < len(expected) || j < len(actual); i, j = i+1, j+1 {
		switch {
		case j == len(actual) || i < len(expected) && expected[i].cmp(&actual[j]) < 0:
			return &Difference{Field: field(&expected[i]), Expected: expected[i].value.String(), Actual: Absent}
		case i == len(expected) || expected[i].cmp(&actual[j]) > 0:
			return &Difference{Field: field(&actual[j]), Expected: Absent, Actual: actual[j].value.String()}
		case expected[i].value != actual[j].value:
			return &Difference{
				Field:    field(&expected[i]),
				Expected: expected[i].value.String(),
				Actual:   actual[j].value.String(),
			}
		}
	}
	return nil
}
