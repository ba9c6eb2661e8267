package pebble

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NethermindEth/starknet-replay/db"
	"github.com/NethermindEth/starknet-replay/utils"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

var _ db.KeyValueStore = (*DB)(nil)

type DB struct {
	pebble   *pebble.DB
	closed   atomic.Bool
	listener db.EventListener
}

// New opens a new database at the given path
func New(path string, opts ...Option) (*DB, error) {
	options := &pebble.Options{}
	for _, opt := range opts {
		opt(options)
	}
	return newPebble(path, options)
}

// NewMem opens a new in-memory database
func NewMem() (*DB, error) {
	return newPebble("", &pebble.Options{
		FS: vfs.NewMem(),
	})
}

// NewMemTest opens a new in-memory database, failing the test on error
func NewMemTest(t *testing.T) *DB {
	memDB, err := NewMem()
	if err != nil {
		t.Fatalf("create in-memory db: %v", err)
	}
	t.Cleanup(func() {
		if err := memDB.Close(); err != nil {
			t.Errorf("close in-memory db: %v", err)
		}
	})
	return memDB
}

func newPebble(path string, options *pebble.Options) (*DB, error) {
	pDB, err := pebble.Open(path, options)
	if err != nil {
		return nil, err
	}
	return &DB{pebble: pDB, listener: &db.SelectiveListener{}}, nil
}

// WithListener registers an EventListener
func (d *DB) WithListener(listener db.EventListener) db.KeyValueStore {
	d.listener = listener
	return d
}

func (d *DB) Has(key []byte) (bool, error) {
	err := d.Get(key, func([]byte) error { return nil })
	if errors.Is(err, db.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (d *DB) Get(key []byte, cb func(value []byte) error) error {
	if d.closed.Load() {
		return db.ErrClosed
	}
	start := time.Now()
	val, closer, err := d.pebble.Get(key)
	d.listener.OnIO(db.OpRead, len(val), time.Since(start))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return db.ErrKeyNotFound
		}
		return err
	}
	return utils.RunAndWrapOnError(closer.Close, cb(val))
}

func (d *DB) Put(key, value []byte) error {
	if d.closed.Load() {
		return db.ErrClosed
	}
	start := time.Now()
	err := d.pebble.Set(key, value, pebble.NoSync)
	d.listener.OnIO(db.OpWrite, len(value), time.Since(start))
	return err
}

func (d *DB) Delete(key []byte) error {
	if d.closed.Load() {
		return db.ErrClosed
	}
	start := time.Now()
	err := d.pebble.Delete(key, pebble.NoSync)
	d.listener.OnIO(db.OpDelete, 0, time.Since(start))
	return err
}

// Close flushes pending writes and closes the database
func (d *DB) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	return utils.RunAndWrapOnError(d.pebble.Close, d.pebble.Flush())
}
