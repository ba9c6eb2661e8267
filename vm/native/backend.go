// Package native is an execution backend whose programs are Go functions.
// It stands in for a Cairo VM wherever the contracts are known in advance:
// the builtin fee token and account contracts, tests and fuzzing.
package native

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/NethermindEth/starknet-replay/execution"
	"github.com/NethermindEth/starknet-replay/utils"
)

const programPrefix = "native:"

var ErrDuplicateProgram = errors.New("program already registered")

// Func implements an entry point.
type Func func(sink execution.SyscallSink, call *execution.Call) ([]felt.Felt, error)

type EntryPoint struct {
	Name string
	Type core.EntryPointType
	// Steps are charged before Func runs.
	Steps uint64
	Func  Func
}

type Program struct {
	Name         string
	CairoVersion uint8
	EntryPoints  []EntryPoint
}

// Class returns the contract class of the program. Entry point offsets index
// p.EntryPoints.
func (p *Program) Class() *core.ContractClass {
	class := &core.ContractClass{
		CairoVersion: p.CairoVersion,
		EntryPoints:  make(map[core.EntryPointType][]core.EntryPoint),
		Program:      []byte(programPrefix + p.Name),
	}
	for i, ep := range p.EntryPoints {
		class.EntryPoints[ep.Type] = append(class.EntryPoints[ep.Type], core.EntryPoint{
			Selector: core.SelectorFromName(ep.Name),
			Offset:   uint64(i),
		})
	}
	return class
}

func (p *Program) ClassHash() (felt.Felt, error) {
	hash, err := p.Class().Hash()
	if err != nil {
		return felt.Zero, err
	}
	return *hash, nil
}

type Backend struct {
	mu       sync.RWMutex
	programs map[string]*Program
	log      utils.SimpleLogger
}

var _ execution.Backend = (*Backend)(nil)

func New(log utils.SimpleLogger, programs ...*Program) (*Backend, error) {
	b := &Backend{
		programs: make(map[string]*Program, len(programs)),
		log:      log,
	}
	for _, p := range programs {
		if err := b.Register(p); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *Backend) Register(p *Program) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, found := b.programs[p.Name]; found {
		return fmt.Errorf("%w: %s", ErrDuplicateProgram, p.Name)
	}
	b.programs[p.Name] = p
	return nil
}

func (b *Backend) Name() string {
	return "native"
}

func (b *Backend) RunEntryPoint(class *core.ContractClass, entryPoint *core.EntryPoint,
	call *execution.Call, sink execution.SyscallSink,
) ([]felt.Felt, error) {
	name, ok := strings.CutPrefix(string(class.Program), programPrefix)
	if !ok {
		return nil, fmt.Errorf("%w: not a native program", execution.ErrUnsupportedProgram)
	}
	b.mu.RLock()
	program, found := b.programs[name]
	b.mu.RUnlock()
	if !found {
		return nil, fmt.Errorf("%w: %s is not registered", execution.ErrUnsupportedProgram, name)
	}
	if entryPoint.Offset >= uint64(len(program.EntryPoints)) {
		return nil, execution.NewRevert(fmt.Sprintf("%s has no entry point at offset %d", name, entryPoint.Offset))
	}

	ep := &program.EntryPoints[entryPoint.Offset]
	b.log.Debugw("Running entry point", "program", name, "entryPoint", ep.Name, "address", call.StorageAddress)
	if err := sink.ConsumeSteps(ep.Steps); err != nil {
		return nil, err
	}
	return ep.Func(sink, call)
}

// Args returns the first n calldata felts, failing the call when there are fewer.
func Args(call *execution.Call, n int) ([]felt.Felt, error) {
	if len(call.Calldata) < n {
		return nil, execution.NewRevert("Input too short for arguments")
	}
	return call.Calldata[:n], nil
}

// Span decodes a length-prefixed array starting at calldata[offset] and
// returns it along with the offset following it.
func Span(calldata []felt.Felt, offset int) ([]felt.Felt, int, error) {
	if offset >= len(calldata) {
		return nil, 0, execution.NewRevert("Input too short for arguments")
	}
	n, err := calldata[offset].Uint64()
	if err != nil || n > uint64(len(calldata)-offset-1) {
		return nil, 0, execution.NewRevert("Input too short for arguments")
	}
	start := offset + 1
	end := start + int(n)
	return calldata[start:end], end, nil
}
