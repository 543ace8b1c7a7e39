package docstore

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/magnolia/driver"
)

// Memory is a process-local store. Databases live as long as the Memory
// value, so separate connections dialled from it see each other's writes.
type Memory struct {
	mu     sync.Mutex
	dbs    map[string]map[string]*memCollection
	logger *slog.Logger
}

// NewMemory returns an empty in-memory store.
func NewMemory(logger *slog.Logger) *Memory {
	return &Memory{dbs: map[string]map[string]*memCollection{}, logger: logger}
}

// Dial implements driver.Dialer.
func (m *Memory) Dial(_ context.Context, target driver.Target) (driver.Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.dbs[target.Database]; !ok {
		m.dbs[target.Database] = map[string]*memCollection{}
	}
	return NewConn(&memBackend{store: m, db: target.Database}, m.logger), nil
}

type memCollection struct {
	keys []string
	docs map[string][]byte
}

func (c *memCollection) clone() *memCollection {
	out := &memCollection{keys: slices.Clone(c.keys), docs: make(map[string][]byte, len(c.docs))}
	for k, v := range c.docs {
		out.docs[k] = v
	}
	return out
}

type memBackend struct {
	store *Memory
	db    string
}

func (b *memBackend) Begin(_ context.Context, collection string, writable bool) (Txn, error) {
	b.store.mu.Lock()
	cur, ok := b.store.dbs[b.db][collection]
	if !ok {
		cur = &memCollection{docs: map[string][]byte{}}
	}
	work := cur
	if writable {
		work = cur.clone()
	}
	b.store.mu.Unlock()
	return &memTxn{backend: b, collection: collection, work: work, writable: writable}, nil
}

func (b *memBackend) Close() error {
	return nil
}

type memTxn struct {
	backend    *memBackend
	collection string
	work       *memCollection
	writable   bool
}

func (t *memTxn) Scan(fn func(key string, raw []byte) error) error {
	for _, k := range t.work.keys {
		if err := fn(k, t.work.docs[k]); err != nil {
			return err
		}
	}
	return nil
}

func (t *memTxn) Insert(key string, raw []byte) error {
	if _, ok := t.work.docs[key]; ok {
		return ErrDuplicateKey
	}
	t.work.keys = append(t.work.keys, key)
	t.work.docs[key] = raw
	return nil
}

func (t *memTxn) Replace(key string, raw []byte) error {
	if _, ok := t.work.docs[key]; !ok {
		return ErrNotFound
	}
	t.work.docs[key] = raw
	return nil
}

func (t *memTxn) Delete(key string) error {
	if _, ok := t.work.docs[key]; !ok {
		return ErrNotFound
	}
	delete(t.work.docs, key)
	t.work.keys = slices.DeleteFunc(t.work.keys, func(k string) bool { return k == key })
	return nil
}

func (t *memTxn) Commit() error {
	if !t.writable {
		return nil
	}
	t.backend.store.mu.Lock()
	defer t.backend.store.mu.Unlock()
	t.backend.store.dbs[t.backend.db][t.collection] = t.work
	return nil
}

func (t *memTxn) Rollback() error {
	return nil
}
