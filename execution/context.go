package execution

import "github.com/NethermindEth/starknet-replay/versioned"

type ExecutionMode uint8

const (
	ModeExecute ExecutionMode = iota
	ModeValidate
)

func (m ExecutionMode) String() string {
	if m == ModeValidate {
		return "validate"
	}
	return "execute"
}

type Limits struct {
	MaxSteps     uint64
	MaxCallDepth uint64
	MaxEvents    uint64
}

// PhaseLimits returns the limits of the given mode under constants.
func PhaseLimits(c *versioned.Constants, mode ExecutionMode) Limits {
	limits := Limits{
		MaxSteps:     c.InvokeTxMaxNSteps,
		MaxCallDepth: c.MaxRecursionDepth,
		MaxEvents:    c.TxEventLimits.MaxEmittedEvents,
	}
	if mode == ModeValidate {
		limits.MaxSteps = c.ValidateMaxNSteps
	}
	return limits
}

type frame struct {
	own       ResourceCounters
	inclusive ResourceCounters
}

// Context is the call stack and resource accounting of one execution phase
// of a transaction. Call depth is bounded here rather than by the Go stack.
type Context struct {
	Backend Backend
	Tx      *TxContext
	Mode    ExecutionMode
	limits  Limits

	frames []frame
	total  ResourceCounters

	nEvents   uint64
	nMessages uint64

	// first infrastructure failure, latched so that programs cannot swallow it
	fatal error
}

func NewContext(backend Backend, tx *TxContext, mode ExecutionMode, limits Limits) *Context {
	return &Context{
		Backend: backend,
		Tx:      tx,
		Mode:    mode,
		limits:  limits,
		frames:  make([]frame, 0, 8),
	}
}

func (c *Context) Constants() *versioned.Constants {
	return c.Tx.Block.Constants
}

func (c *Context) Depth() int {
	return len(c.frames)
}

// EnterCall pushes a frame for a new call.
func (c *Context) EnterCall() error {
	depth := uint64(len(c.frames)) + 1
	if depth > c.limits.MaxCallDepth {
		return &ResourceExhausted{Resource: ResourceCallDepth, Limit: c.limits.MaxCallDepth, Used: depth}
	}
	c.frames = append(c.frames, frame{})
	return nil
}

// ExitCall pops the current frame and returns what the call itself consumed.
// The usage is folded into the caller's frame whatever the call's outcome.
func (c *Context) ExitCall() ResourceCounters {
	top := c.frames[len(c.frames)-1]
	c.frames = c.frames[:len(c.frames)-1]
	if len(c.frames) > 0 {
		c.frames[len(c.frames)-1].inclusive.Add(&top.inclusive)
	}
	return top.own
}

func (c *Context) charge(apply func(*ResourceCounters)) {
	apply(&c.total)
	if len(c.frames) > 0 {
		top := &c.frames[len(c.frames)-1]
		apply(&top.own)
		apply(&top.inclusive)
	}
}

// ConsumeSteps bills n steps. It fails exactly when the phase total first
// goes over the step limit, and on every call after that.
func (c *Context) ConsumeSteps(n uint64) error {
	c.charge(func(r *ResourceCounters) { r.Steps += n })
	if c.total.Steps > c.limits.MaxSteps {
		return &ResourceExhausted{Resource: ResourceSteps, Limit: c.limits.MaxSteps, Used: c.total.Steps}
	}
	return nil
}

func (c *Context) UseBuiltin(b Builtin, n uint64) {
	c.charge(func(r *ResourceCounters) { r.Builtins[b] += n })
}

func (c *Context) CountSyscall(s Syscall) {
	c.charge(func(r *ResourceCounters) {
		if r.Syscalls == nil {
			r.Syscalls = make(map[Syscall]uint64)
		}
		r.Syscalls[s]++
	})
}

// Total returns everything consumed in this phase so far.
func (c *Context) Total() ResourceCounters {
	return c.total.Clone()
}

func (c *Context) nextEventOrder() (uint64, error) {
	if c.limits.MaxEvents > 0 && c.nEvents >= c.limits.MaxEvents {
		return 0, &ResourceExhausted{Resource: ResourceEvents, Limit: c.limits.MaxEvents, Used: c.nEvents + 1}
	}
	c.nEvents++
	return c.nEvents - 1, nil
}

func (c *Context) nextMessageOrder() uint64 {
	c.nMessages++
	return c.nMessages - 1
}

// SetFatal records err if no failure was recorded yet.
func (c *Context) SetFatal(err error) {
	if c.fatal == nil {
		c.fatal = err
	}
}

func (c *Context) Fatal() error {
	return c.fatal
}
