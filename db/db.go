package db

import (
	"errors"
	"io"
)

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrClosed      = errors.New("database closed")
)

// KeyValueStore is a flat byte keyed store. Implementations are safe for
// concurrent use.
type KeyValueStore interface {
	Has(key []byte) (bool, error)
	// Get calls cb with the value stored under key, or returns ErrKeyNotFound.
	// The value is only valid for the duration of cb.
	Get(key []byte, cb func(value []byte) error) error
	Put(key, value []byte) error
	Delete(key []byte) error
	io.Closer
}

// Listening is implemented by stores that report IO to an EventListener.
type Listening interface {
	WithListener(listener EventListener) KeyValueStore
}
