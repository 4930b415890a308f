package doc

import "errors"

// errBucketNotFound is returned by kvTx.DeleteBucket when the bucket doesn't exist.
var errBucketNotFound = errors.New("bucket not found")

// kvStore is a sorted key-value backend (Bolt or in-memory) underneath
// KVStorage.
type kvStore interface {
	BeginTx(writable bool) (kvTx, error)
	Close() error
}

type kvTx interface {
	// Bucket returns a bucket. Use sub="" for a root bucket, non-empty for a nested bucket.
	// Returns nil if the bucket doesn't exist.
	Bucket(name, sub string) kvBucket

	// CreateBucket creates a bucket if it doesn't exist.
	// For sub != "", it must also ensure the root bucket exists.
	CreateBucket(name, sub string) (kvBucket, error)

	// DeleteBucket deletes a bucket and, for a root bucket, all of its nested buckets.
	DeleteBucket(name, sub string) error

	Commit() error

	// Rollback aborts the transaction. It should be safe to call multiple times.
	Rollback() error
}

// kvBucket is a sorted key-value collection.
type kvBucket interface {
	// Get retrieves a value by key. Returns nil if not found. The returned slice
	// is only valid until the end of the transaction.
	Get(key []byte) []byte
	Put(key, value []byte) error
	Delete(key []byte) error
	Cursor() kvCursor
}

type kvCursor interface {
	First() (key, value []byte)
	Last() (key, value []byte)
	// Seek moves to the first key >= seek.
	Seek(seek []byte) (key, value []byte)
	Next() (key, value []byte)
}

func kvView(s kvStore, f func(tx kvTx) error) error {
	tx, err := s.BeginTx(false)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return f(tx)
}

func kvUpdate(s kvStore, f func(tx kvTx) error) error {
	tx, err := s.BeginTx(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := f(tx); err != nil {
		return err
	}
	return tx.Commit()
}
