package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/NethermindEth/starknet-replay/state"
)

// ContractState is a deployed contract of a recorded pre-state.
type ContractState struct {
	Address   felt.Felt           `json:"address"`
	ClassHash felt.Felt           `json:"class_hash"`
	Nonce     felt.Felt           `json:"nonce"`
	Storage   []core.StorageEntry `json:"storage,omitempty"`
}

type DeclaredClass struct {
	ClassHash felt.Felt           `json:"class_hash"`
	Class     *core.ContractClass `json:"class"`
}

// PreState is the state a recorded block was executed against.
type PreState struct {
	Contracts []ContractState `json:"contracts"`
	Classes   []DeclaredClass `json:"classes"`
}

func (p *PreState) Reader() *state.MemoryReader {
	reader := state.NewMemoryReader()
	for _, c := range p.Classes {
		reader.WithClass(c.ClassHash, c.Class)
	}
	for _, c := range p.Contracts {
		reader.WithContract(c.Address, c.ClassHash).WithNonce(c.Address, c.Nonce)
		for _, entry := range c.Storage {
			reader.WithStorage(c.Address, entry.Key, entry.Value)
		}
	}
	return reader
}

// Fixture is a recorded block with its pre-state, as stored by FileSource.
type Fixture struct {
	Block    Block    `json:"block"`
	PreState PreState `json:"pre_state"`
}

var _ BlockSource = (*FileSource)(nil)

// FileSource serves fixtures stored as <number>.json in a directory.
type FileSource struct {
	dir string
}

func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

func (s *FileSource) path(number uint64) string {
	return filepath.Join(s.dir, strconv.FormatUint(number, 10)+".json")
}

func (s *FileSource) Block(ctx context.Context, number uint64) (*Block, state.StateReader, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(s.path(number))
	if err != nil {
		return nil, nil, err
	}

	var fixture Fixture
	if err = json.Unmarshal(data, &fixture); err != nil {
		return nil, nil, fmt.Errorf("decode fixture %d: %w", number, err)
	}
	if fixture.Block.Number != number {
		return nil, nil, fmt.Errorf("fixture %s holds block %d", s.path(number), fixture.Block.Number)
	}
	return &fixture.Block, fixture.PreState.Reader(), nil
}

// Write stores fixture under its block number.
func (s *FileSource) Write(fixture *Fixture) error {
	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(fixture.Block.Number), data, 0o600)
}
