package doc

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// DocumentID identifies a document within a Repo.
type DocumentID uuid.UUID

func NewDocumentID() DocumentID {
	return DocumentID(uuid.New())
}

func ParseDocumentID(s string) (DocumentID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return DocumentID{}, err
	}
	return DocumentID(u), nil
}

func (id DocumentID) String() string {
	return uuid.UUID(id).String()
}

// StoredDoc is the persisted form of a document: the latest snapshot plus
// the encoded changes committed after it, in order.
type StoredDoc struct {
	Snapshot []byte
	Changes  [][]byte
}

// Storage persists documents as a snapshot plus an append-only change log.
type Storage interface {
	// Load returns ErrDocumentNotFound for unknown documents.
	Load(id DocumentID) (*StoredDoc, error)
	List() ([]DocumentID, error)
	Append(id DocumentID, seq uint64, change []byte) error
	// Compact stores a snapshot taken at seq and drops the changes it covers.
	// Compacting an unknown document creates it.
	Compact(id DocumentID, snapshot []byte, seq uint64) error
	Delete(id DocumentID) error
	Close() error
}

const (
	registryBucket = "documents"
	changesBucket  = "changes"
)

var snapshotKey = []byte("snapshot")

// KVStorage is a Storage over a sorted key-value store. The registry bucket
// maps each document ID to the seq of its latest snapshot; every document has
// a root bucket named after its ID holding the snapshot, and a nested bucket
// holding changes keyed by big-endian seq.
type KVStorage struct {
	kv kvStore
}

var (
	_ Storage = (*KVStorage)(nil)
	_ Storage = NoopStorage{}
)

func newKVStorage(kv kvStore) *KVStorage {
	return &KVStorage{kv: kv}
}

func seqKey(seq uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, seq)
}

func registeredSeq(tx kvTx, id DocumentID) (uint64, bool) {
	reg := tx.Bucket(registryBucket, "")
	if reg == nil {
		return 0, false
	}
	v := reg.Get(id[:])
	if len(v) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(v), true
}

func (s *KVStorage) Load(id DocumentID) (*StoredDoc, error) {
	var result *StoredDoc
	err := kvView(s.kv, func(tx kvTx) error {
		snapSeq, ok := registeredSeq(tx, id)
		if !ok {
			return ErrDocumentNotFound
		}
		name := id.String()
		sd := &StoredDoc{}
		if b := tx.Bucket(name, ""); b != nil {
			sd.Snapshot = slices.Clone(b.Get(snapshotKey))
		}
		if b := tx.Bucket(name, changesBucket); b != nil {
			c := b.Cursor()
			for k, v := c.Seek(seqKey(snapSeq + 1)); k != nil; k, v = c.Next() {
				sd.Changes = append(sd.Changes, slices.Clone(v))
			}
		}
		result = sd
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("doc: loading %v: %w", id, err)
	}
	return result, nil
}

func (s *KVStorage) List() ([]DocumentID, error) {
	var ids []DocumentID
	err := kvView(s.kv, func(tx kvTx) error {
		reg := tx.Bucket(registryBucket, "")
		if reg == nil {
			return nil
		}
		c := reg.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if len(k) == len(DocumentID{}) {
				ids = append(ids, DocumentID(k))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("doc: listing documents: %w", err)
	}
	return ids, nil
}

func (s *KVStorage) Append(id DocumentID, seq uint64, change []byte) error {
	err := kvUpdate(s.kv, func(tx kvTx) error {
		last, ok := registeredSeq(tx, id)
		if !ok {
			return ErrDocumentNotFound
		}
		b, err := tx.CreateBucket(id.String(), changesBucket)
		if err != nil {
			return err
		}
		if k, _ := b.Cursor().Last(); len(k) == 8 {
			last = max(last, binary.BigEndian.Uint64(k))
		}
		if seq != last+1 {
			return fmt.Errorf("%w: expected seq %d, got %d", ErrCorruptedChange, last+1, seq)
		}
		return b.Put(seqKey(seq), change)
	})
	if err != nil {
		return fmt.Errorf("doc: appending change #%d to %v: %w", seq, id, err)
	}
	return nil
}

func (s *KVStorage) Compact(id DocumentID, snapshot []byte, seq uint64) error {
	err := kvUpdate(s.kv, func(tx kvTx) error {
		reg, err := tx.CreateBucket(registryBucket, "")
		if err != nil {
			return err
		}
		if err := reg.Put(id[:], seqKey(seq)); err != nil {
			return err
		}
		name := id.String()
		root, err := tx.CreateBucket(name, "")
		if err != nil {
			return err
		}
		if err := root.Put(snapshotKey, snapshot); err != nil {
			return err
		}

		b := tx.Bucket(name, changesBucket)
		if b == nil {
			return nil
		}
		var covered [][]byte
		c := b.Cursor()
		for k, _ := c.First(); k != nil && binary.BigEndian.Uint64(k) <= seq; k, _ = c.Next() {
			covered = append(covered, slices.Clone(k))
		}
		for _, k := range covered {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("doc: compacting %v at #%d: %w", id, seq, err)
	}
	return nil
}

func (s *KVStorage) Delete(id DocumentID) error {
	err := kvUpdate(s.kv, func(tx kvTx) error {
		if _, ok := registeredSeq(tx, id); !ok {
			return ErrDocumentNotFound
		}
		if err := tx.Bucket(registryBucket, "").Delete(id[:]); err != nil {
			return err
		}
		err := tx.DeleteBucket(id.String(), "")
		if err == errBucketNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("doc: deleting %v: %w", id, err)
	}
	return nil
}

func (s *KVStorage) Close() error {
	return s.kv.Close()
}

// NoopStorage keeps nothing. Documents of a Repo over NoopStorage live only
// in memory.
type NoopStorage struct{}

func (NoopStorage) Load(id DocumentID) (*StoredDoc, error) {
	return nil, fmt.Errorf("doc: loading %v: %w", id, ErrDocumentNotFound)
}

func (NoopStorage) List() ([]DocumentID, error)              { return nil, nil }
func (NoopStorage) Append(DocumentID, uint64, []byte) error  { return nil }
func (NoopStorage) Compact(DocumentID, []byte, uint64) error { return nil }
func (NoopStorage) Delete(DocumentID) error                  { return nil }
func (NoopStorage) Close() error                             { return nil }
