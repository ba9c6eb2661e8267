package versioned

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"slices"

	"github.com/Masterminds/semver/v3"
)

//go:embed tables/*.json
var tables embed.FS

var ErrUnsupportedVersion = errors.New("unsupported protocol version")

type entry struct {
	version   *semver.Version
	constants *Constants
}

// Registry resolves protocol versions to Constants tables. A version maps to
// the table with the highest version not above it.
type Registry struct {
	entries   []entry
	supported *semver.Constraints
}

func NewRegistry(supported string) (*Registry, error) {
	constraint, err := semver.NewConstraint(supported)
	if err != nil {
		return nil, fmt.Errorf("parse supported versions %q: %w", supported, err)
	}
	return &Registry{supported: constraint}, nil
}

// DefaultRegistry returns a registry with the tables shipped in this package.
func DefaultRegistry() (*Registry, error) {
	r, err := NewRegistry(">= 0.12.0, < 0.14.0")
	if err != nil {
		return nil, err
	}

	files, err := tables.ReadDir("tables")
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		data, err := tables.ReadFile(path.Join("tables", f.Name()))
		if err != nil {
			return nil, err
		}
		var c Constants
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", f.Name(), err)
		}
		if err := r.Register(&c); err != nil {
			return nil, fmt.Errorf("register %s: %w", f.Name(), err)
		}
	}
	return r, nil
}

// Register adds a table for c.Version, replacing any table already registered for it.
func (r *Registry) Register(c *Constants) error {
	if err := c.Validate(); err != nil {
		return err
	}
	v, err := semver.NewVersion(c.Version)
	if err != nil {
		return err
	}

	idx, found := slices.BinarySearchFunc(r.entries, v, func(e entry, target *semver.Version) int {
		return e.version.Compare(target)
	})
	if found {
		r.entries[idx].constants = c
		return nil
	}
	r.entries = slices.Insert(r.entries, idx, entry{version: v, constants: c})
	return nil
}

func (r *Registry) Resolve(v *semver.Version) (*Constants, error) {
	if !r.supported.Check(v) {
		return nil, fmt.Errorf("%w: %s (supported: %s)", ErrUnsupportedVersion, v, r.supported)
	}
	for i := len(r.entries) - 1; i >= 0; i-- {
		if !r.entries[i].version.GreaterThan(v) {
			return r.entries[i].constants, nil
		}
	}
	return nil, fmt.Errorf("%w: %s predates every known table", ErrUnsupportedVersion, v)
}

// Versions lists the registered table versions in ascending order.
func (r *Registry) Versions() []string {
	versions := make([]string, len(r.entries))
	for i, e := range r.entries {
		versions[i] = e.version.String()
	}
	return versions
}
