package core

import (
	"errors"
	"fmt"
	"slices"

	"github.com/NethermindEth/starknet-replay/core/crypto"
	"github.com/NethermindEth/starknet-replay/core/felt"
)

type EntryPointType uint8

const (
	External EntryPointType = iota
	Constructor
	L1Handler
)

var ErrUnknownEntryPointType = errors.New("unknown entry point type")

func (t EntryPointType) String() string {
	switch t {
	case External:
		return "EXTERNAL"
	case Constructor:
		return "CONSTRUCTOR"
	case L1Handler:
		return "L1_HANDLER"
	default:
		return "UNKNOWN"
	}
}

func (t EntryPointType) MarshalText() ([]byte, error) {
	if t > L1Handler {
		return nil, ErrUnknownEntryPointType
	}
	return []byte(t.String()), nil
}

func (t *EntryPointType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "EXTERNAL":
		*t = External
	case "CONSTRUCTOR":
		*t = Constructor
	case "L1_HANDLER":
		*t = L1Handler
	default:
		return fmt.Errorf("%w: %s", ErrUnknownEntryPointType, text)
	}
	return nil
}

// EntryPoint uniquely identifies a function of a class.
type EntryPoint struct {
	// Starknet keccak of the function name.
	Selector felt.Felt `json:"selector"`
	// Offset of the function in the class's program.
	Offset uint64 `json:"offset"`
}

// ContractClass is a compiled class as the execution backend consumes it.
// CairoVersion is 0 for legacy classes and 1 for Sierra classes. Program is
// opaque to the engine and interpreted by the backend. Classes are immutable
// once declared.
type ContractClass struct {
	CairoVersion uint8                           `json:"cairo_version"`
	EntryPoints  map[EntryPointType][]EntryPoint `json:"entry_points_by_type"`
	Program      []byte                          `json:"program"`
	Abi          string                          `json:"abi,omitempty"`
}

// EntryPoint looks up the entry point with the given type and selector.
func (c *ContractClass) EntryPoint(t EntryPointType, selector *felt.Felt) (*EntryPoint, bool) {
	for i := range c.EntryPoints[t] {
		if c.EntryPoints[t][i].Selector == *selector {
			return &c.EntryPoints[t][i], true
		}
	}
	return nil, false
}

func (c *ContractClass) HasConstructor() bool {
	return len(c.EntryPoints[Constructor]) > 0
}

// Hash is the class hash: the Pedersen hash of the version, the sorted
// entry point tables and the keccak of program and abi.
func (c *ContractClass) Hash() (*felt.Felt, error) {
	programHash, err := crypto.StarknetKeccak(c.Program)
	if err != nil {
		return nil, err
	}
	abiHash, err := crypto.StarknetKeccak([]byte(c.Abi))
	if err != nil {
		return nil, err
	}

	var digest crypto.PedersenDigest
	digest.Update(felt.NewFromUint64(uint64(c.CairoVersion)))
	for _, t := range []EntryPointType{External, L1Handler, Constructor} {
		eps := slices.Clone(c.EntryPoints[t])
		slices.SortFunc(eps, func(a, b EntryPoint) int { return a.Selector.Cmp(&b.Selector) })

		var epDigest crypto.PedersenDigest
		for i := range eps {
			epDigest.Update(&eps[i].Selector, felt.NewFromUint64(eps[i].Offset))
		}
		digest.Update(epDigest.Finish())
	}
	return digest.Update(abiHash, programHash).Finish(), nil
}
