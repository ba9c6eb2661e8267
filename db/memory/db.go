package memory

import (
	"slices"
	"sync"
	"time"

	"github.com/NethermindEth/starknet-replay/db"
)

var _ db.KeyValueStore = (*Database)(nil)

// Database is a key-value store held in a map, safe for concurrent use.
// It backs the RPC cache when no cache directory is configured.
type Database struct {
	db       map[string][]byte
	lock     sync.RWMutex
	listener db.EventListener
}

func New() *Database {
	return &Database{
		db:       make(map[string][]byte),
		listener: &db.SelectiveListener{},
	}
}

func (d *Database) WithListener(listener db.EventListener) db.KeyValueStore {
	d.listener = listener
	return d
}

func (d *Database) Has(key []byte) (bool, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()

	if d.db == nil {
		return false, db.ErrClosed
	}

	_, ok := d.db[string(key)]
	return ok, nil
}

func (d *Database) Get(key []byte, cb func(value []byte) error) error {
	d.lock.RLock()
	defer d.lock.RUnlock()

	if d.db == nil {
		return db.ErrClosed
	}

	start := time.Now()
	val, ok := d.db[string(key)]
	d.listener.OnIO(db.OpRead, len(val), time.Since(start))
	if !ok {
		return db.ErrKeyNotFound
	}

	return cb(val)
}

func (d *Database) Put(key, value []byte) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	if d.db == nil {
		return db.ErrClosed
	}

	start := time.Now()
	d.db[string(key)] = slices.Clone(value)
	d.listener.OnIO(db.OpWrite, len(value), time.Since(start))
	return nil
}

func (d *Database) Delete(key []byte) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	if d.db == nil {
		return db.ErrClosed
	}

	start := time.Now()
	delete(d.db, string(key))
	d.listener.OnIO(db.OpDelete, 0, time.Since(start))
	return nil
}

func (d *Database) Close() error {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.db = nil
	return nil
}
