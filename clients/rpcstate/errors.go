package rpcstate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/ethereum/go-ethereum/rpc"
)

// Starknet JSON-RPC error codes the reader distinguishes.
const (
	CodeContractNotFound  = 20
	CodeBlockNotFound     = 24
	CodeClassHashNotFound = 28
	codeLimitExceeded     = -32005
)

// CallError is a failed JSON-RPC call. Code is the JSON-RPC error code, or
// the HTTP status when the node answered with a non 2xx status.
type CallError struct {
	Method    string
	Code      int
	Transient bool
	Err       error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %v", e.Method, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// NotFound reports whether the node answered that the contract or class does not exist.
func (e *CallError) NotFound() bool {
	return e.Code == CodeContractNotFound || e.Code == CodeClassHashNotFound
}

func newCallError(method string, err error) *CallError {
	callErr := &CallError{Method: method, Err: err}

	var (
		httpErr rpc.HTTPError
		rpcErr  rpc.Error
		netErr  net.Error
	)
	switch {
	case errors.As(err, &httpErr):
		callErr.Code = httpErr.StatusCode
		callErr.Transient = httpErr.StatusCode >= http.StatusInternalServerError ||
			httpErr.StatusCode == http.StatusTooManyRequests
	case errors.As(err, &rpcErr):
		callErr.Code = rpcErr.ErrorCode()
		callErr.Transient = callErr.Code == codeLimitExceeded
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.As(err, &netErr):
		callErr.Transient = true
	}
	return callErr
}

// IsTransient reports whether err is a CallError worth retrying.
func IsTransient(err error) bool {
	var callErr *CallError
	return errors.As(err, &callErr) && callErr.Transient
}

func isNotFound(err error) bool {
	var callErr *CallError
	return errors.As(err, &callErr) && callErr.NotFound()
}
