package doc

import (
	"maps"
	"slices"
)

// slot is a single property or list element: either a child object reference
// or a scalar.
type slot struct {
	child  ObjID
	isObj  bool
	scalar any
}

func (s slot) value(objects func(ObjID) *object) Value {
	if s.isObj {
		if o := objects(s.child); o != nil {
			return ObjectValue(o.typ)
		}
	}
	return Value{scalar: s.scalar}
}

// object is immutable once it is part of a committed document. Transactions
// clone objects before modifying them.
type object struct {
	typ   ObjType
	props map[string]slot
	items []slot
}

func newObject(typ ObjType) *object {
	o := &object{typ: typ}
	if typ == Map {
		o.props = make(map[string]slot)
	}
	return o
}

func (o *object) clone() *object {
	return &object{
		typ:   o.typ,
		props: maps.Clone(o.props),
		items: slices.Clone(o.items),
	}
}

func (o *object) sortedKeys() []string {
	keys := make([]string, 0, len(o.props))
	for k := range o.props {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// children appends the IDs of all direct child objects.
func (o *object) children(buf []ObjID) []ObjID {
	for _, s := range o.props {
		if s.isObj {
			buf = append(buf, s.child)
		}
	}
	for _, s := range o.items {
		if s.isObj {
			buf = append(buf, s.child)
		}
	}
	return buf
}
