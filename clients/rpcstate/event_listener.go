package rpcstate

import "time"

// CacheOutcome is where a cached call was answered from.
type CacheOutcome string

const (
	CacheMemory CacheOutcome = "memory"
	CacheDisk   CacheOutcome = "disk"
	CacheMiss   CacheOutcome = "miss"
	// CacheBypass is a call for a block that is never cached.
	CacheBypass CacheOutcome = "bypass"
)

type EventListener interface {
	OnResponse(method string, err error, took time.Duration)
	OnCacheLookup(method string, outcome CacheOutcome)
}

type SelectiveListener struct {
	OnResponseCb    func(method string, err error, took time.Duration)
	OnCacheLookupCb func(method string, outcome CacheOutcome)
}

func (l *SelectiveListener) OnResponse(method string, err error, took time.Duration) {
	if l.OnResponseCb != nil {
		l.OnResponseCb(method, err, took)
	}
}

func (l *SelectiveListener) OnCacheLookup(method string, outcome CacheOutcome) {
	if l.OnCacheLookupCb != nil {
		l.OnCacheLookupCb(method, outcome)
	}
}
