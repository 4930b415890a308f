package doc

import (
	"fmt"
	"strings"
)

// Materialize converts an object subtree into plain Go values: maps become
// map[string]any, lists become []any, scalars are returned as stored.
func Materialize(r Reader, obj ObjID) (any, error) {
	t, err := r.ObjectType(obj)
	if err != nil {
		return nil, err
	}
	switch t {
	case Map:
		keys, err := r.Keys(obj)
		if err != nil {
			return nil, err
		}
		m := make(map[string]any, len(keys))
		for _, k := range keys {
			v, child, _, err := r.Get(obj, k)
			if err != nil {
				return nil, err
			}
			m[k], err = materializeValue(r, v, child)
			if err != nil {
				return nil, err
			}
		}
		return m, nil
	case List:
		n, err := r.Length(obj)
		if err != nil {
			return nil, err
		}
		items := make([]any, n)
		for i := range n {
			v, child, _, err := r.ListGet(obj, i)
			if err != nil {
				return nil, err
			}
			items[i], err = materializeValue(r, v, child)
			if err != nil {
				return nil, err
			}
		}
		return items, nil
	default:
		return nil, objErr(obj, fmt.Errorf("doc: cannot materialize %v", t))
	}
}

func materializeValue(r Reader, v Value, child ObjID) (any, error) {
	if v.IsObject() {
		return Materialize(r, child)
	}
	return v.Scalar(), nil
}

// Dump returns an indented human-readable rendition of an object subtree,
// with map keys sorted.
func Dump(r Reader, obj ObjID) string {
	var buf strings.Builder
	dumpObject(&buf, r, obj, 0)
	return buf.String()
}

func dumpObject(buf *strings.Builder, r Reader, obj ObjID, depth int) {
	t, err := r.ObjectType(obj)
	if err != nil {
		fmt.Fprintf(buf, "<%v>", err)
		return
	}
	indent := strings.Repeat("  ", depth+1)
	switch t {
	case Map:
		keys, _ := r.Keys(obj)
		if len(keys) == 0 {
			buf.WriteString("{}")
			return
		}
		buf.WriteString("{\n")
		for _, k := range keys {
			v, child, _, _ := r.Get(obj, k)
			fmt.Fprintf(buf, "%s%q: ", indent, k)
			dumpValue(buf, r, v, child, depth+1)
			buf.WriteString("\n")
		}
		buf.WriteString(indent[2:])
		buf.WriteString("}")
	case List:
		n, _ := r.Length(obj)
		if n == 0 {
			buf.WriteString("[]")
			return
		}
		buf.WriteString("[\n")
		for i := range n {
			v, child, _, _ := r.ListGet(obj, i)
			buf.WriteString(indent)
			dumpValue(buf, r, v, child, depth+1)
			buf.WriteString("\n")
		}
		buf.WriteString(indent[2:])
		buf.WriteString("]")
	}
}

func dumpValue(buf *strings.Builder, r Reader, v Value, child ObjID, depth int) {
	if v.IsObject() {
		dumpObject(buf, r, child, depth)
		return
	}
	buf.WriteString(v.String())
}
