package rpcstate

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/NethermindEth/starknet-replay/utils"
	"github.com/ethereum/go-ethereum/rpc"
)

type Backoff func(wait time.Duration) time.Duration

func ExponentialBackoff(wait time.Duration) time.Duration {
	return wait * 2
}

func NopBackoff(time.Duration) time.Duration {
	return 0
}

var _ Caller = (*Client)(nil)

// Client talks Starknet JSON-RPC to a single node. Transient failures are
// retried with backoff, everything else is returned to the caller as a
// *CallError.
type Client struct {
	url        string
	rpc        *rpc.Client
	backoff    Backoff
	maxRetries int
	maxWait    time.Duration
	minWait    time.Duration
	log        utils.SimpleLogger
	listener   EventListener
	timeouts   atomic.Pointer[Timeouts]
}

// NewClient connects to url. HTTP endpoints are dialled lazily.
func NewClient(ctx context.Context, url string) (*Client, error) {
	rpcClient, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(&http.Client{}))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	client := &Client{
		url:        url,
		rpc:        rpcClient,
		backoff:    ExponentialBackoff,
		maxRetries: 8,
		maxWait:    4 * time.Second,
		minWait:    250 * time.Millisecond,
		log:        utils.NewNopZapLogger(),
		listener:   &SelectiveListener{},
	}
	timeouts, err := ParseTimeouts(DefaultTimeouts)
	if err != nil {
		return nil, err
	}
	client.timeouts.Store(timeouts)
	return client, nil
}

func (c *Client) WithListener(l EventListener) *Client {
	c.listener = l
	return c
}

func (c *Client) WithBackoff(b Backoff) *Client {
	c.backoff = b
	return c
}

func (c *Client) WithMaxRetries(num int) *Client {
	c.maxRetries = num
	return c
}

func (c *Client) WithMaxWait(d time.Duration) *Client {
	c.maxWait = d
	return c
}

func (c *Client) WithMinWait(d time.Duration) *Client {
	c.minWait = d
	return c
}

func (c *Client) WithLogger(log utils.SimpleLogger) *Client {
	c.log = log
	return c
}

func (c *Client) WithTimeouts(timeouts *Timeouts) *Client {
	c.timeouts.Store(timeouts)
	return c
}

func (c *Client) Endpoint() string {
	return c.url
}

func (c *Client) Close() {
	c.rpc.Close()
}

// Call performs method with args, retrying transient failures. Every attempt
// runs under the current rung of the timeout ladder.
func (c *Client) Call(ctx context.Context, result any, _ BlockID, method string, args ...any) error {
	var err error
	wait := time.Duration(0)
	for attempt := range c.maxRetries + 1 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		timeouts := c.timeouts.Load()
		attemptCtx, cancel := context.WithTimeout(ctx, timeouts.Current())
		start := time.Now()
		err = c.rpc.CallContext(attemptCtx, result, method, args...)
		cancel()
		c.listener.OnResponse(method, err, time.Since(start))
		if err == nil {
			timeouts.Decrease()
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		callErr := newCallError(method, err)
		if !callErr.Transient {
			return callErr
		}
		err = callErr
		// a throttled node is not a slow one
		if callErr.Code != http.StatusTooManyRequests {
			timeouts.Increase()
		}

		if wait < c.minWait {
			wait = c.minWait
		} else {
			wait = min(c.backoff(wait), c.maxWait)
		}

		logFn := c.log.Debugw
		if timeouts.Current() >= slowTimeoutWarnMark {
			logFn = c.log.Warnw
		}
		logFn("Failed JSON-RPC call, retrying",
			"method", method,
			"attempt", attempt+1,
			"retryAfter", wait.String(),
			"timeout", timeouts.Current().String(),
			"err", err,
		)
	}
	return err
}
