package doc

import (
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"
)

var errReadOnlyTx = errors.New("doc: write in a read-only storage transaction")

// memBucket maps keys to values. Committed buckets are never modified; a
// write transaction edits its own copy.
type memBucket map[string][]byte

// memStore keeps committed state as an immutable set of buckets keyed by
// path. Readers share it without copying; writers are serialized and swap
// in a new set on commit.
type memStore struct {
	writer sync.Mutex

	mu      sync.Mutex
	buckets map[string]memBucket
	closed  bool
}

// NewMemStorage returns a transient in-memory Storage intended for tests.
// Closing it discards everything.
func NewMemStorage() *KVStorage {
	return newKVStorage(&memStore{buckets: make(map[string]memBucket)})
}

func memPath(name, sub string) string {
	if sub == "" {
		return name
	}
	return name + "\x00" + sub
}

func (s *memStore) BeginTx(writable bool) (kvTx, error) {
	if writable {
		s.writer.Lock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		if writable {
			s.writer.Unlock()
		}
		return nil, ErrClosed
	}
	tx := &memTx{store: s, writable: writable, buckets: s.buckets}
	if writable {
		tx.buckets = maps.Clone(s.buckets)
		tx.owned = make(map[string]bool)
	}
	return tx, nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.buckets = nil
	return nil
}

type memTx struct {
	store    *memStore
	writable bool
	done     bool

	buckets map[string]memBucket
	// owned marks buckets already copied by this transaction.
	owned map[string]bool
}

func (tx *memTx) Bucket(name, sub string) kvBucket {
	path := memPath(name, sub)
	if _, ok := tx.buckets[path]; !ok {
		return nil
	}
	return memRef{tx, path}
}

func (tx *memTx) CreateBucket(name, sub string) (kvBucket, error) {
	if !tx.writable {
		return nil, errReadOnlyTx
	}
	for _, path := range []string{name, memPath(name, sub)} {
		if _, ok := tx.buckets[path]; !ok {
			tx.buckets[path] = memBucket{}
			tx.owned[path] = true
		}
	}
	return memRef{tx, memPath(name, sub)}, nil
}

func (tx *memTx) DeleteBucket(name, sub string) error {
	if !tx.writable {
		return errReadOnlyTx
	}
	path := memPath(name, sub)
	if _, ok := tx.buckets[path]; !ok {
		return errBucketNotFound
	}
	delete(tx.buckets, path)
	if sub == "" {
		maps.DeleteFunc(tx.buckets, func(p string, _ memBucket) bool {
			return strings.HasPrefix(p, name+"\x00")
		})
	}
	return nil
}

// mutable returns the transaction's own copy of a bucket.
func (tx *memTx) mutable(path string) (memBucket, error) {
	if !tx.writable {
		return nil, errReadOnlyTx
	}
	b, ok := tx.buckets[path]
	if !ok {
		return nil, errBucketNotFound
	}
	if !tx.owned[path] {
		b = maps.Clone(b)
		tx.buckets[path] = b
		tx.owned[path] = true
	}
	return b, nil
}

func (tx *memTx) Commit() error {
	if tx.done {
		return nil
	}
	if !tx.writable {
		return errReadOnlyTx
	}
	tx.done = true
	defer tx.store.writer.Unlock()

	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	if tx.store.closed {
		return ErrClosed
	}
	tx.store.buckets = tx.buckets
	return nil
}

func (tx *memTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	if tx.writable {
		tx.store.writer.Unlock()
	}
	return nil
}

type memRef struct {
	tx   *memTx
	path string
}

func (r memRef) Get(key []byte) []byte {
	return r.tx.buckets[r.path][string(key)]
}

func (r memRef) Put(key, value []byte) error {
	b, err := r.tx.mutable(r.path)
	if err != nil {
		return err
	}
	b[string(key)] = slices.Clone(value)
	return nil
}

func (r memRef) Delete(key []byte) error {
	b, err := r.tx.mutable(r.path)
	if err != nil {
		return err
	}
	delete(b, string(key))
	return nil
}

// Cursor iterates over the keys present when it was created.
func (r memRef) Cursor() kvCursor {
	b := r.tx.buckets[r.path]
	return &memCursor{b: b, keys: slices.Sorted(maps.Keys(b)), i: -1}
}

type memCursor struct {
	b    memBucket
	keys []string
	i    int
}

func (c *memCursor) item() ([]byte, []byte) {
	if c.i < 0 || c.i >= len(c.keys) {
		return nil, nil
	}
	k := c.keys[c.i]
	return []byte(k), c.b[k]
}

func (c *memCursor) First() ([]byte, []byte) {
	c.i = 0
	return c.item()
}

func (c *memCursor) Last() ([]byte, []byte) {
	c.i = len(c.keys) - 1
	return c.item()
}

func (c *memCursor) Seek(seek []byte) ([]byte, []byte) {
	c.i, _ = slices.BinarySearch(c.keys, string(seek))
	return c.item()
}

func (c *memCursor) Next() ([]byte, []byte) {
	c.i++
	return c.item()
}
