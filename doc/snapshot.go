package doc

import (
	"fmt"
	"slices"
)

type snapshotSlot struct {
	Child ObjID `msgpack:"c,omitempty"`
	IsObj bool  `msgpack:"o,omitempty"`
	Value any   `msgpack:"v,omitempty"`
}

type snapshotObject struct {
	ID    ObjID                   `msgpack:"id"`
	Type  ObjType                 `msgpack:"t"`
	Props map[string]snapshotSlot `msgpack:"p,omitempty"`
	Items []snapshotSlot          `msgpack:"i,omitempty"`
}

type snapshot struct {
	Seq     uint64           `msgpack:"seq"`
	Heads   uint64           `msgpack:"heads"`
	NextID  ObjID            `msgpack:"next"`
	Objects []snapshotObject `msgpack:"objects"`
}

func toSnapshotSlot(s slot) snapshotSlot {
	return snapshotSlot{Child: s.child, IsObj: s.isObj, Value: s.scalar}
}

func (s snapshotSlot) slot() (slot, error) {
	if s.IsObj {
		return slot{child: s.Child, isObj: true}, nil
	}
	v, err := normalizeScalar(s.Value)
	if err != nil {
		return slot{}, err
	}
	return slot{scalar: v}, nil
}

// Save encodes the committed state of the document. The change history is
// not included; a document loaded from a snapshot starts with no changes.
func (d *Doc) Save() ([]byte, error) {
	ids := make([]ObjID, 0, len(d.objects))
	for id := range d.objects {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	snap := snapshot{
		Seq:     d.seq,
		Heads:   d.heads,
		NextID:  d.nextID,
		Objects: make([]snapshotObject, 0, len(ids)),
	}
	for _, id := range ids {
		o := d.objects[id]
		so := snapshotObject{ID: id, Type: o.typ}
		if o.typ == Map {
			so.Props = make(map[string]snapshotSlot, len(o.props))
			for k, s := range o.props {
				so.Props[k] = toSnapshotSlot(s)
			}
		} else {
			so.Items = make([]snapshotSlot, len(o.items))
			for i, s := range o.items {
				so.Items[i] = toSnapshotSlot(s)
			}
		}
		snap.Objects = append(snap.Objects, so)
	}

	raw, err := encodeMsgpack(&snap)
	if err != nil {
		return nil, fmt.Errorf("doc: encoding snapshot: %w", err)
	}
	return raw, nil
}

// Load rebuilds a document from a snapshot (nil means an empty document)
// followed by encoded changes.
func Load(snap []byte, changes [][]byte) (*Doc, error) {
	d := New()
	if snap != nil {
		if err := d.restore(snap); err != nil {
			return nil, err
		}
	}
	for _, raw := range changes {
		ch, err := DecodeChange(raw)
		if err != nil {
			return nil, err
		}
		if err := d.ApplyChange(ch); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Doc) restore(raw []byte) error {
	var snap snapshot
	if err := decodeMsgpack(raw, &snap); err != nil {
		return fmt.Errorf("%w: snapshot: %v", ErrCorruptedChange, err)
	}
	objects := make(map[ObjID]*object, len(snap.Objects))
	for _, so := range snap.Objects {
		if so.Type != Map && so.Type != List {
			return fmt.Errorf("%w: snapshot: %v has type %v", ErrCorruptedChange, so.ID, so.Type)
		}
		o := newObject(so.Type)
		for k, ss := range so.Props {
			s, err := ss.slot()
			if err != nil {
				return fmt.Errorf("%w: snapshot: %v[%q]: %v", ErrCorruptedChange, so.ID, k, err)
			}
			o.props[k] = s
		}
		for i, ss := range so.Items {
			s, err := ss.slot()
			if err != nil {
				return fmt.Errorf("%w: snapshot: %v[%d]: %v", ErrCorruptedChange, so.ID, i, err)
			}
			o.items = append(o.items, s)
		}
		objects[so.ID] = o
	}
	if root := objects[Root]; root == nil || root.typ != Map {
		return fmt.Errorf("%w: snapshot: missing root map", ErrCorruptedChange)
	}
	d.objects = objects
	d.nextID = snap.NextID
	d.seq = snap.Seq
	d.heads = snap.Heads
	d.changes = nil
	d.pending = nil
	return nil
}
