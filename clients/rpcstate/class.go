package rpcstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
)

var ErrUnknownClassFormat = errors.New("class is neither a sierra nor a legacy class")

// ClassDefinition is a class as starknet_getClass returns it, either a
// sierra class or a legacy (Cairo 0) class.
type ClassDefinition struct {
	SierraProgram        []felt.Felt     `json:"sierra_program,omitempty"`
	ContractClassVersion string          `json:"contract_class_version,omitempty"`
	EntryPointsByType    json.RawMessage `json:"entry_points_by_type"`
	Abi                  json.RawMessage `json:"abi,omitempty"`
	Program              json.RawMessage `json:"program,omitempty"`
}

type sierraEntryPoint struct {
	Selector    felt.Felt `json:"selector"`
	FunctionIdx uint64    `json:"function_idx"`
}

type legacyEntryPoint struct {
	Selector felt.Felt       `json:"selector"`
	Offset   json.RawMessage `json:"offset"`
}

func (c *ClassDefinition) IsSierra() bool {
	return len(c.SierraProgram) > 0
}

// ContractClass converts the definition into the class the engine executes.
// The program is carried as the node returned it; running it is up to the
// backend.
func (c *ClassDefinition) ContractClass() (*core.ContractClass, error) {
	abi, err := abiString(c.Abi)
	if err != nil {
		return nil, fmt.Errorf("abi: %w", err)
	}

	switch {
	case c.IsSierra():
		var eps map[core.EntryPointType][]sierraEntryPoint
		if err = json.Unmarshal(c.EntryPointsByType, &eps); err != nil {
			return nil, fmt.Errorf("entry points: %w", err)
		}
		program, err := json.Marshal(c.SierraProgram)
		if err != nil {
			return nil, err
		}
		class := &core.ContractClass{
			CairoVersion: 1,
			EntryPoints:  make(map[core.EntryPointType][]core.EntryPoint, len(eps)),
			Program:      program,
			Abi:          abi,
		}
		for t, list := range eps {
			for _, ep := range list {
				class.EntryPoints[t] = append(class.EntryPoints[t], core.EntryPoint{Selector: ep.Selector, Offset: ep.FunctionIdx})
			}
		}
		return class, nil
	case len(c.Program) > 0:
		var eps map[core.EntryPointType][]legacyEntryPoint
		if err = json.Unmarshal(c.EntryPointsByType, &eps); err != nil {
			return nil, fmt.Errorf("entry points: %w", err)
		}
		var program string
		if err = json.Unmarshal(c.Program, &program); err != nil {
			return nil, fmt.Errorf("program: %w", err)
		}
		class := &core.ContractClass{
			EntryPoints: make(map[core.EntryPointType][]core.EntryPoint, len(eps)),
			Program:     []byte(program),
			Abi:         abi,
		}
		for t, list := range eps {
			for _, ep := range list {
				offset, err := parseOffset(ep.Offset)
				if err != nil {
					return nil, fmt.Errorf("entry point %s offset: %w", ep.Selector.String(), err)
				}
				class.EntryPoints[t] = append(class.EntryPoints[t], core.EntryPoint{Selector: ep.Selector, Offset: offset})
			}
		}
		return class, nil
	default:
		return nil, ErrUnknownClassFormat
	}
}

// abiString accepts a sierra abi, which is a JSON string, or a legacy abi,
// which is a JSON array.
func abiString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var abi string
		err := json.Unmarshal(raw, &abi)
		return abi, err
	}
	return string(raw), nil
}

// parseOffset accepts both hex strings and plain numbers.
func parseOffset(raw json.RawMessage) (uint64, error) {
	text := strings.Trim(string(raw), `"`)
	if strings.HasPrefix(text, "0x") {
		return strconv.ParseUint(text[2:], 16, 64)
	}
	return strconv.ParseUint(text, 10, 64)
}
