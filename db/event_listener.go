package db

import "time"

// Op is the kind of store access an EventListener is told about.
type Op uint8

const (
	OpRead Op = iota
	OpWrite
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// EventListener observes every access to a KeyValueStore. size is the
// length of the value read or written, zero for misses and deletions.
type EventListener interface {
	OnIO(op Op, size int, took time.Duration)
}

type SelectiveListener struct {
	OnIOCb func(op Op, size int, took time.Duration)
}

func (l *SelectiveListener) OnIO(op Op, size int, took time.Duration) {
	if l.OnIOCb != nil {
		l.OnIOCb(op, size, took)
	}
}
