/*
Package doc implements an in-process hierarchical document: a tree of map and
list objects rooted at a map, mutated through single-writer transactions.

A Doc holds committed state only. All writes go through a Tx, which keeps
a private copy-on-write overlay of the objects it touches and records the
operations it performs. Committing a Tx swaps the overlay into the document
and produces a Change (message, timestamp, operations, content hash);
rolling back simply drops the overlay. Readers of the Doc therefore never
observe a partially applied transaction.

# Persistence

Changes are persisted through a Storage: an append-only log of encoded
changes per document plus an occasional snapshot that replaces the log
(compaction). Repo and Handle tie a Doc to its storage and provide the
locking discipline: Handle.WithDoc takes a shared lock, Handle.WithDocMut
takes an exclusive one for the entire callback.

# Encoding

Changes and snapshots are encoded with msgpack. A change hash is the xxhash
of its encoding (with the hash field zeroed); each change records the hash of
its predecessor, and the hash of the last change is the document's heads.
*/
package doc

import "slices"

// Reader is a read-only view of a document.
type Reader interface {
	// Get returns the value of a map property. For object values, the returned
	// ObjID identifies the nested object. ok is false if the property is absent.
	Get(obj ObjID, prop string) (v Value, child ObjID, ok bool, err error)

	// Keys returns the property names of a map in lexicographic order.
	Keys(obj ObjID) ([]string, error)

	// Length returns the number of properties of a map or elements of a list.
	Length(obj ObjID) (int, error)

	// ListGet returns the list element at the given index.
	ListGet(obj ObjID, index int) (v Value, child ObjID, ok bool, err error)

	// ObjectType returns the type of an existing object.
	ObjectType(obj ObjID) (ObjType, error)
}

// Writer is a mutable view of a document, implemented by Tx.
type Writer interface {
	Reader

	// Put sets a map property to a scalar value, replacing whatever was there.
	Put(obj ObjID, prop string, v any) error

	// PutObject creates a new empty object at a map property and returns its ID.
	PutObject(obj ObjID, prop string, t ObjType) (ObjID, error)

	// Delete removes a map property. Deleting an absent property is a no-op.
	Delete(obj ObjID, prop string) error

	// Insert inserts a scalar into a list at the given index.
	Insert(obj ObjID, index int, v any) error

	// InsertObject inserts a new empty object into a list at the given index.
	InsertObject(obj ObjID, index int, t ObjType) (ObjID, error)

	// ListDelete removes the list element at the given index.
	ListDelete(obj ObjID, index int) error
}

type source interface {
	lookup(id ObjID) *object
}

// Doc is a document. A Doc is not safe for concurrent use; see Handle.
type Doc struct {
	objects map[ObjID]*object
	nextID  ObjID
	seq     uint64
	heads   uint64

	changes []*Change
	pending []*Change

	tx *Tx
}

var (
	_ Reader = (*Doc)(nil)
	_ Writer = (*Tx)(nil)
)

// New returns an empty document.
func New() *Doc {
	return &Doc{
		objects: map[ObjID]*object{Root: newObject(Map)},
		nextID:  Root + 1,
	}
}

func (d *Doc) lookup(id ObjID) *object {
	return d.objects[id]
}

// Seq returns the sequence number of the last committed change.
func (d *Doc) Seq() uint64 {
	return d.seq
}

// Heads returns the hash of the last committed change, or 0 for a document
// without changes.
func (d *Doc) Heads() uint64 {
	return d.heads
}

// Changes returns the changes committed or loaded since the last snapshot.
func (d *Doc) Changes() []*Change {
	return slices.Clone(d.changes)
}

// LastChange returns the most recent change, or nil.
func (d *Doc) LastChange() *Change {
	if len(d.changes) == 0 {
		return nil
	}
	return d.changes[len(d.changes)-1]
}

// InTransaction reports whether a transaction is currently open.
func (d *Doc) InTransaction() bool {
	return d.tx != nil
}

// Transaction opens a write transaction. Only one transaction may be open
// at a time.
func (d *Doc) Transaction() (*Tx, error) {
	if d.tx != nil {
		return nil, ErrTxInProgress
	}
	d.tx = newTx(d)
	return d.tx, nil
}

func (d *Doc) takePending() []*Change {
	p := d.pending
	d.pending = nil
	return p
}

// requeuePending puts back changes that failed to persist, ahead of any
// committed since.
func (d *Doc) requeuePending(p []*Change) {
	d.pending = append(slices.Clone(p), d.pending...)
}

func (d *Doc) Get(obj ObjID, prop string) (Value, ObjID, bool, error) {
	return get(d, obj, prop)
}

func (d *Doc) Keys(obj ObjID) ([]string, error) {
	return keys(d, obj)
}

func (d *Doc) Length(obj ObjID) (int, error) {
	return length(d, obj)
}

func (d *Doc) ListGet(obj ObjID, index int) (Value, ObjID, bool, error) {
	return listGet(d, obj, index)
}

func (d *Doc) ObjectType(obj ObjID) (ObjType, error) {
	return objectType(d, obj)
}

func lookupMap(src source, obj ObjID) (*object, error) {
	o := src.lookup(obj)
	if o == nil {
		return nil, objErr(obj, ErrObjectNotFound)
	}
	if o.typ != Map {
		return nil, objErr(obj, ErrNotMap)
	}
	return o, nil
}

func lookupList(src source, obj ObjID) (*object, error) {
	o := src.lookup(obj)
	if o == nil {
		return nil, objErr(obj, ErrObjectNotFound)
	}
	if o.typ != List {
		return nil, objErr(obj, ErrNotList)
	}
	return o, nil
}

func slotResult(src source, s slot) (Value, ObjID, bool, error) {
	if s.isObj {
		return s.value(src.lookup), s.child, true, nil
	}
	return Value{scalar: s.scalar}, 0, true, nil
}

func get(src source, obj ObjID, prop string) (Value, ObjID, bool, error) {
	o, err := lookupMap(src, obj)
	if err != nil {
		return Value{}, 0, false, err
	}
	s, ok := o.props[prop]
	if !ok {
		return Value{}, 0, false, nil
	}
	return slotResult(src, s)
}

func keys(src source, obj ObjID) ([]string, error) {
	o, err := lookupMap(src, obj)
	if err != nil {
		return nil, err
	}
	return o.sortedKeys(), nil
}

func length(src source, obj ObjID) (int, error) {
	o := src.lookup(obj)
	if o == nil {
		return 0, objErr(obj, ErrObjectNotFound)
	}
	if o.typ == Map {
		return len(o.props), nil
	}
	return len(o.items), nil
}

func listGet(src source, obj ObjID, index int) (Value, ObjID, bool, error) {
	o, err := lookupList(src, obj)
	if err != nil {
		return Value{}, 0, false, err
	}
	if index < 0 || index >= len(o.items) {
		return Value{}, 0, false, nil
	}
	return slotResult(src, o.items[index])
}

func objectType(src source, obj ObjID) (ObjType, error) {
	o := src.lookup(obj)
	if o == nil {
		return 0, objErr(obj, ErrObjectNotFound)
	}
	return o.typ, nil
}
