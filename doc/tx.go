package doc

import (
	"fmt"
	"maps"
	"slices"
)

// Tx is a write transaction over a Doc. Reads through a Tx observe its own
// uncommitted writes; readers of the Doc do not.
//
// A Tx is finished by exactly one call to CommitWith or Rollback. Any call
// after that fails with ErrTxClosed.
type Tx struct {
	doc     *Doc
	base    map[ObjID]*object
	overlay map[ObjID]*object
	removed map[ObjID]struct{}
	nextID  ObjID
	ops     []Op
	closed  bool
}

// CommitOptions annotate the change produced by a commit.
type CommitOptions struct {
	Message string
	// Time is in seconds since the Unix epoch.
	Time int64
}

func newTx(d *Doc) *Tx {
	return &Tx{
		doc:     d,
		base:    d.objects,
		overlay: make(map[ObjID]*object),
		removed: make(map[ObjID]struct{}),
		nextID:  d.nextID,
	}
}

func (tx *Tx) lookup(id ObjID) *object {
	if _, gone := tx.removed[id]; gone {
		return nil
	}
	if o, ok := tx.overlay[id]; ok {
		return o
	}
	return tx.base[id]
}

// IsClosed reports whether the transaction has been committed or rolled back.
func (tx *Tx) IsClosed() bool {
	return tx.closed
}

// OpCount returns the number of operations recorded so far.
func (tx *Tx) OpCount() int {
	return len(tx.ops)
}

func (tx *Tx) Get(obj ObjID, prop string) (Value, ObjID, bool, error) {
	if tx.closed {
		return Value{}, 0, false, ErrTxClosed
	}
	return get(tx, obj, prop)
}

func (tx *Tx) Keys(obj ObjID) ([]string, error) {
	if tx.closed {
		return nil, ErrTxClosed
	}
	return keys(tx, obj)
}

func (tx *Tx) Length(obj ObjID) (int, error) {
	if tx.closed {
		return 0, ErrTxClosed
	}
	return length(tx, obj)
}

func (tx *Tx) ListGet(obj ObjID, index int) (Value, ObjID, bool, error) {
	if tx.closed {
		return Value{}, 0, false, ErrTxClosed
	}
	return listGet(tx, obj, index)
}

func (tx *Tx) ObjectType(obj ObjID) (ObjType, error) {
	if tx.closed {
		return 0, ErrTxClosed
	}
	return objectType(tx, obj)
}

func (tx *Tx) mutable(id ObjID) *object {
	if o, ok := tx.overlay[id]; ok {
		return o
	}
	o := tx.base[id].clone()
	tx.overlay[id] = o
	return o
}

func (tx *Tx) record(op Op) {
	tx.ops = append(tx.ops, op)
}

func (tx *Tx) Put(obj ObjID, prop string, v any) error {
	if tx.closed {
		return ErrTxClosed
	}
	s, err := normalizeScalar(v)
	if err != nil {
		return err
	}
	o, err := lookupMap(tx, obj)
	if err != nil {
		return err
	}
	if old, ok := o.props[prop]; ok && !old.isObj && scalarsEqual(old.scalar, s) {
		return nil
	}
	m := tx.mutable(obj)
	old, ok := m.props[prop]
	m.props[prop] = slot{scalar: s}
	if ok && old.isObj {
		tx.removeSubtree(old.child)
	}
	tx.record(Op{Action: OpPut, Obj: obj, Prop: prop, Value: s})
	return nil
}

func (tx *Tx) PutObject(obj ObjID, prop string, t ObjType) (ObjID, error) {
	if tx.closed {
		return 0, ErrTxClosed
	}
	id := tx.nextID
	if err := tx.putObject(obj, prop, t, id); err != nil {
		return 0, err
	}
	return id, nil
}

func (tx *Tx) putObject(obj ObjID, prop string, t ObjType, id ObjID) error {
	if t != Map && t != List {
		return fmt.Errorf("doc: cannot create object of type %v", t)
	}
	if _, err := lookupMap(tx, obj); err != nil {
		return err
	}
	if id < tx.nextID {
		return objErr(id, ErrCorruptedChange)
	}
	tx.nextID = id + 1
	m := tx.mutable(obj)
	old, ok := m.props[prop]
	tx.overlay[id] = newObject(t)
	m.props[prop] = slot{child: id, isObj: true}
	if ok && old.isObj {
		tx.removeSubtree(old.child)
	}
	tx.record(Op{Action: OpPutObject, Obj: obj, Prop: prop, Child: id, ObjType: t})
	return nil
}

func (tx *Tx) Delete(obj ObjID, prop string) error {
	if tx.closed {
		return ErrTxClosed
	}
	o, err := lookupMap(tx, obj)
	if err != nil {
		return err
	}
	if _, ok := o.props[prop]; !ok {
		return nil
	}
	m := tx.mutable(obj)
	old := m.props[prop]
	delete(m.props, prop)
	if old.isObj {
		tx.removeSubtree(old.child)
	}
	tx.record(Op{Action: OpDelete, Obj: obj, Prop: prop})
	return nil
}

func (tx *Tx) Insert(obj ObjID, index int, v any) error {
	if tx.closed {
		return ErrTxClosed
	}
	s, err := normalizeScalar(v)
	if err != nil {
		return err
	}
	o, err := lookupList(tx, obj)
	if err != nil {
		return err
	}
	if index < 0 || index > len(o.items) {
		return objErr(obj, ErrIndexOutOfRange)
	}
	m := tx.mutable(obj)
	m.items = slices.Insert(m.items, index, slot{scalar: s})
	tx.record(Op{Action: OpInsert, Obj: obj, Index: index, Value: s})
	return nil
}

func (tx *Tx) InsertObject(obj ObjID, index int, t ObjType) (ObjID, error) {
	if tx.closed {
		return 0, ErrTxClosed
	}
	id := tx.nextID
	if err := tx.insertObject(obj, index, t, id); err != nil {
		return 0, err
	}
	return id, nil
}

func (tx *Tx) insertObject(obj ObjID, index int, t ObjType, id ObjID) error {
	if t != Map && t != List {
		return fmt.Errorf("doc: cannot create object of type %v", t)
	}
	o, err := lookupList(tx, obj)
	if err != nil {
		return err
	}
	if index < 0 || index > len(o.items) {
		return objErr(obj, ErrIndexOutOfRange)
	}
	if id < tx.nextID {
		return objErr(id, ErrCorruptedChange)
	}
	tx.nextID = id + 1
	m := tx.mutable(obj)
	tx.overlay[id] = newObject(t)
	m.items = slices.Insert(m.items, index, slot{child: id, isObj: true})
	tx.record(Op{Action: OpInsertObject, Obj: obj, Index: index, Child: id, ObjType: t})
	return nil
}

func (tx *Tx) ListDelete(obj ObjID, index int) error {
	if tx.closed {
		return ErrTxClosed
	}
	o, err := lookupList(tx, obj)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(o.items) {
		return objErr(obj, ErrIndexOutOfRange)
	}
	m := tx.mutable(obj)
	old := m.items[index]
	m.items = slices.Delete(m.items, index, index+1)
	if old.isObj {
		tx.removeSubtree(old.child)
	}
	tx.record(Op{Action: OpListDelete, Obj: obj, Index: index})
	return nil
}

func (tx *Tx) removeSubtree(id ObjID) {
	stack := []ObjID{id}
	for len(stack) > 0 {
		n := len(stack) - 1
		cur := stack[n]
		stack = stack[:n]
		o := tx.lookup(cur)
		if o == nil {
			continue
		}
		stack = o.children(stack)
		delete(tx.overlay, cur)
		tx.removed[cur] = struct{}{}
	}
}

// CommitWith finishes the transaction, making its writes visible in the
// document. A transaction without operations commits nothing and returns
// a nil change.
func (tx *Tx) CommitWith(opt CommitOptions) (*Change, error) {
	if tx.closed {
		return nil, ErrTxClosed
	}
	tx.close()
	if len(tx.ops) == 0 {
		return nil, nil
	}

	d := tx.doc
	ch := &Change{
		Seq:     d.seq + 1,
		Deps:    d.heads,
		Message: opt.Message,
		Time:    opt.Time,
		Ops:     tx.ops,
	}
	hash, err := ch.computeHash()
	if err != nil {
		return nil, err
	}
	ch.Hash = hash
	tx.apply(ch, true)
	return ch, nil
}

// Rollback discards all writes made by the transaction.
func (tx *Tx) Rollback() error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.close()
	return nil
}

func (tx *Tx) close() {
	tx.closed = true
	if tx.doc.tx == tx {
		tx.doc.tx = nil
	}
}

func (tx *Tx) apply(ch *Change, fresh bool) {
	d := tx.doc
	objects := maps.Clone(tx.base)
	for id, o := range tx.overlay {
		objects[id] = o
	}
	for id := range tx.removed {
		delete(objects, id)
	}
	d.objects = objects
	d.nextID = tx.nextID
	d.seq = ch.Seq
	d.heads = ch.Hash
	d.changes = append(d.changes, ch)
	if fresh {
		d.pending = append(d.pending, ch)
	}
}

func (tx *Tx) replay(op Op) error {
	switch op.Action {
	case OpPut:
		return tx.Put(op.Obj, op.Prop, op.Value)
	case OpPutObject:
		return tx.putObject(op.Obj, op.Prop, op.ObjType, op.Child)
	case OpDelete:
		return tx.Delete(op.Obj, op.Prop)
	case OpInsert:
		return tx.Insert(op.Obj, op.Index, op.Value)
	case OpInsertObject:
		return tx.insertObject(op.Obj, op.Index, op.ObjType, op.Child)
	case OpListDelete:
		return tx.ListDelete(op.Obj, op.Index)
	default:
		return fmt.Errorf("%w: unknown op %v", ErrCorruptedChange, op.Action)
	}
}
