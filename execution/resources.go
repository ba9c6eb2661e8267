package execution

import (
	"encoding/json"
	"fmt"
	"maps"
	"math/big"

	"github.com/NethermindEth/starknet-replay/versioned"
)

type Builtin uint8

const (
	Pedersen Builtin = iota
	RangeCheck
	Ecdsa
	Bitwise
	EcOp
	Keccak
	Poseidon
	NumBuiltins
)

// String returns the name used for the builtin in constants tables.
func (b Builtin) String() string {
	switch b {
	case Pedersen:
		return "pedersen_builtin"
	case RangeCheck:
		return "range_check_builtin"
	case Ecdsa:
		return "ecdsa_builtin"
	case Bitwise:
		return "bitwise_builtin"
	case EcOp:
		return "ec_op_builtin"
	case Keccak:
		return "keccak_builtin"
	case Poseidon:
		return "poseidon_builtin"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(b))
	}
}

func builtinFromString(s string) (Builtin, bool) {
	for b := range NumBuiltins {
		if b.String() == s {
			return b, true
		}
	}
	return 0, false
}

// Syscall names match the syscall_costs keys of constants tables.
type Syscall string

const (
	CallContractSyscall     Syscall = "call_contract"
	DeploySyscall           Syscall = "deploy"
	EmitEventSyscall        Syscall = "emit_event"
	GetBlockInfoSyscall     Syscall = "get_block_info"
	GetTxInfoSyscall        Syscall = "get_tx_info"
	GetExecutionInfoSyscall Syscall = "get_execution_info"
	GetClassHashAtSyscall   Syscall = "get_class_hash_at"
	KeccakSyscall           Syscall = "keccak"
	LibraryCallSyscall      Syscall = "library_call"
	ReplaceClassSyscall     Syscall = "replace_class"
	SendMessageToL1Syscall  Syscall = "send_message_to_l1"
	StorageReadSyscall      Syscall = "storage_read"
	StorageWriteSyscall     Syscall = "storage_write"
)

var AllSyscalls = []Syscall{
	CallContractSyscall, DeploySyscall, EmitEventSyscall, GetBlockInfoSyscall, GetTxInfoSyscall,
	GetExecutionInfoSyscall, GetClassHashAtSyscall, KeccakSyscall, LibraryCallSyscall,
	ReplaceClassSyscall, SendMessageToL1Syscall, StorageReadSyscall, StorageWriteSyscall,
}

// ResourceCounters counts what a call, a phase or a transaction consumed.
// Counters only ever grow.
type ResourceCounters struct {
	Steps       uint64
	MemoryHoles uint64
	Builtins    [NumBuiltins]uint64
	Syscalls    map[Syscall]uint64
}

func (r *ResourceCounters) Add(other *ResourceCounters) {
	r.Steps += other.Steps
	r.MemoryHoles += other.MemoryHoles
	for i := range r.Builtins {
		r.Builtins[i] += other.Builtins[i]
	}
	if len(other.Syscalls) == 0 {
		return
	}
	if r.Syscalls == nil {
		r.Syscalls = make(map[Syscall]uint64, len(other.Syscalls))
	}
	for s, n := range other.Syscalls {
		r.Syscalls[s] += n
	}
}

func (r *ResourceCounters) Clone() ResourceCounters {
	cp := *r
	cp.Syscalls = maps.Clone(r.Syscalls)
	return cp
}

// Covers reports whether every counter of r is at least the matching counter of other.
func (r *ResourceCounters) Covers(other *ResourceCounters) bool {
	if r.Steps < other.Steps || r.MemoryHoles < other.MemoryHoles {
		return false
	}
	for i := range r.Builtins {
		if r.Builtins[i] < other.Builtins[i] {
			return false
		}
	}
	for s, n := range other.Syscalls {
		if r.Syscalls[s] < n {
			return false
		}
	}
	return true
}

func (r *ResourceCounters) IsZero() bool {
	if r.Steps != 0 || r.MemoryHoles != 0 {
		return false
	}
	for _, n := range r.Builtins {
		if n != 0 {
			return false
		}
	}
	for _, n := range r.Syscalls {
		if n != 0 {
			return false
		}
	}
	return true
}

// L1Gas converts the counters to gas: the most expensive resource under
// weights decides, rounded up.
func (r *ResourceCounters) L1Gas(weights map[string]versioned.Ratio) uint64 {
	maxGas := new(big.Rat)
	consider := func(name string, usage uint64) {
		w, ok := weights[name]
		if !ok || usage == 0 {
			return
		}
		gas := new(big.Rat).SetFrac(
			new(big.Int).Mul(new(big.Int).SetUint64(usage), new(big.Int).SetUint64(w.Num)),
			new(big.Int).SetUint64(w.Den),
		)
		if gas.Cmp(maxGas) > 0 {
			maxGas = gas
		}
	}

	consider("n_steps", r.Steps+r.MemoryHoles)
	for b := range NumBuiltins {
		consider(b.String(), r.Builtins[b])
	}

	num, den := maxGas.Num(), maxGas.Denom()
	quo, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Sign() != 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return quo.Uint64()
}

type resourcesJSON struct {
	Steps       uint64             `json:"steps"`
	MemoryHoles uint64             `json:"memory_holes,omitempty"`
	Builtins    map[string]uint64  `json:"builtins,omitempty"`
	Syscalls    map[Syscall]uint64 `json:"syscalls,omitempty"`
}

func (r ResourceCounters) MarshalJSON() ([]byte, error) {
	out := resourcesJSON{Steps: r.Steps, MemoryHoles: r.MemoryHoles, Syscalls: r.Syscalls}
	for b := range NumBuiltins {
		if r.Builtins[b] == 0 {
			continue
		}
		if out.Builtins == nil {
			out.Builtins = make(map[string]uint64)
		}
		out.Builtins[b.String()] = r.Builtins[b]
	}
	return json.Marshal(out)
}

func (r *ResourceCounters) UnmarshalJSON(data []byte) error {
	var in resourcesJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = ResourceCounters{Steps: in.Steps, MemoryHoles: in.MemoryHoles, Syscalls: in.Syscalls}
	for name, n := range in.Builtins {
		b, ok := builtinFromString(name)
		if !ok {
			return fmt.Errorf("unknown builtin %q", name)
		}
		r.Builtins[b] = n
	}
	return nil
}
