package rpcstate

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

const (
	growthFactorFast    = 2
	growthFactorSlow    = 1.2
	fastGrowThreshold   = 30 * time.Second
	maxTimeout          = 2 * time.Minute
	timeoutsCount       = 20
	DefaultTimeouts     = "10s"
	slowTimeoutWarnMark = time.Minute
)

// Timeouts is a ladder of per-attempt timeouts. A failed attempt climbs one
// rung, a successful one steps back down.
type Timeouts struct {
	mu         sync.RWMutex
	timeouts   []time.Duration
	curTimeout int
}

func (t *Timeouts) Current() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.timeouts[t.curTimeout]
}

func (t *Timeouts) Decrease() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.curTimeout > 0 {
		t.curTimeout--
	}
}

func (t *Timeouts) Increase() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.curTimeout = min(t.curTimeout+1, len(t.timeouts)-1)
}

func (t *Timeouts) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	values := make([]string, len(t.timeouts))
	for i, timeout := range t.timeouts {
		values[i] = timeout.String()
	}
	return strings.Join(values, ",")
}

// DynamicTimeouts grows geometrically from initial: doubling below 30s, then
// by 20% per rung, capped at two minutes.
func DynamicTimeouts(initial time.Duration) *Timeouts {
	timeouts := make([]time.Duration, 1, timeoutsCount)
	timeouts[0] = initial
	for len(timeouts) < timeoutsCount {
		prev := timeouts[len(timeouts)-1]
		factor := growthFactorSlow
		if prev < fastGrowThreshold {
			factor = growthFactorFast
		}
		next := time.Duration(math.Ceil(prev.Seconds()*factor)) * time.Second
		timeouts = append(timeouts, min(next, maxTimeout))
	}
	return &Timeouts{timeouts: timeouts}
}

func FixedTimeouts(timeouts ...time.Duration) *Timeouts {
	return &Timeouts{timeouts: timeouts}
}

// ParseTimeouts parses a comma separated list of durations. A single value
// yields a dynamic ladder starting at it unless followed by a trailing comma,
// several values are used as given and must be ascending.
func ParseTimeouts(value string) (*Timeouts, error) {
	values := strings.Split(value, ",")
	fixed := len(values) > 1 && strings.TrimSpace(values[len(values)-1]) == ""
	if fixed {
		values = values[:len(values)-1]
	}
	if len(values) == 0 || strings.TrimSpace(values[0]) == "" {
		return nil, errors.New("timeouts are not set")
	}
	if len(values) > timeoutsCount {
		return nil, fmt.Errorf("at most %d timeouts are allowed, got %d", timeoutsCount, len(values))
	}

	timeouts := make([]time.Duration, 0, len(values))
	for i, v := range values {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("parsing timeout number %d: %w", i+1, err)
		}
		if i > 0 && d <= timeouts[i-1] {
			return nil, fmt.Errorf("timeouts must be ascending, got %v after %v", d, timeouts[i-1])
		}
		timeouts = append(timeouts, d)
	}

	if len(timeouts) == 1 && !fixed {
		return DynamicTimeouts(timeouts[0]), nil
	}
	return FixedTimeouts(timeouts...), nil
}
