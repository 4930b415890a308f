package docorm

import (
	"bytes"
	"errors"
	"reflect"
	"slices"
	"time"

	"github.com/andreyvit/docorm/doc"
	"github.com/vmihailenco/msgpack/v5"
)

// Entities cross into the document through msgpack. A value is encoded the
// way msgpack encodes it (struct tags, BinaryMarshaler and all), decoded into
// generic maps, lists and scalars, and those are written as document
// properties. Hydration goes the opposite way.

func encodeMsgpack(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(v)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeMsgpack(raw []byte, v any) error {
	dec := msgpack.GetDecoder()
	dec.Reset(bytes.NewReader(raw))
	dec.UseLooseInterfaceDecoding(true)
	err := dec.Decode(v)
	msgpack.PutDecoder(dec)
	return err
}

// toProps converts a value into the generic form written to the document.
func toProps(v any) (map[string]any, error) {
	raw, err := encodeMsgpack(v)
	if err != nil {
		return nil, reconcileErrf(err, "encoding %T", v)
	}
	var generic any
	if err := decodeMsgpack(raw, &generic); err != nil {
		return nil, reconcileErrf(err, "decoding %T", v)
	}
	m, ok := generic.(map[string]any)
	if !ok {
		return nil, unsupportedTypeErrf(reflect.TypeOf(v), "encodes to %T, wanted a map", generic)
	}
	return m, nil
}

// Reconcile writes v into the map property prop of obj, changing only what
// differs from the current content.
func Reconcile(w doc.Writer, obj doc.ObjID, prop string, v any) error {
	props, err := toProps(v)
	if err != nil {
		return err
	}
	return reconcileProp(w, obj, prop, props)
}

// Hydrate reads the map property prop of obj into a new T.
func Hydrate[T any](r doc.Reader, obj doc.ObjID, prop string) (*T, error) {
	v, child, found, err := r.Get(obj, prop)
	if err != nil {
		return nil, docErr(err)
	}
	if !found {
		return nil, hydrateErrf(nil, "%v[%q] is missing", obj, prop)
	}
	if !v.IsMap() {
		return nil, hydrateErrf(&doc.InvalidValueTypeError{Expected: "map", Unexpected: v.Kind()}, "%v[%q]", obj, prop)
	}
	return hydrateObject[T](r, child)
}

func hydrateObject[T any](r doc.Reader, obj doc.ObjID) (*T, error) {
	generic, err := doc.Materialize(r, obj)
	if err != nil {
		return nil, docErr(err)
	}
	raw, err := encodeMsgpack(generic)
	if err != nil {
		return nil, hydrateErrf(err, "encoding %v", obj)
	}
	result := new(T)
	if err := decodeMsgpack(raw, result); err != nil {
		return nil, hydrateErrf(err, "decoding %v into %T", obj, result)
	}
	return result, nil
}

func reconcileProp(w doc.Writer, obj doc.ObjID, prop string, v any) error {
	switch v := v.(type) {
	case map[string]any:
		cur, child, found, err := w.Get(obj, prop)
		if err != nil {
			return err
		}
		if !found || !cur.IsMap() {
			child, err = w.PutObject(obj, prop, doc.Map)
			if err != nil {
				return err
			}
		}
		return reconcileMap(w, child, v)
	case []any:
		cur, child, found, err := w.Get(obj, prop)
		if err != nil {
			return err
		}
		if found && cur.IsList() {
			existing, err := doc.Materialize(w, child)
			if err != nil {
				return err
			}
			if valuesEqual(existing, v) {
				return nil
			}
		}
		child, err = w.PutObject(obj, prop, doc.List)
		if err != nil {
			return err
		}
		return fillList(w, child, v)
	default:
		return putScalar(w.Put(obj, prop, v), obj, prop)
	}
}

func reconcileMap(w doc.Writer, obj doc.ObjID, m map[string]any) error {
	existing, err := w.Keys(obj)
	if err != nil {
		return err
	}
	for _, k := range existing {
		if _, ok := m[k]; !ok {
			if err := w.Delete(obj, k); err != nil {
				return err
			}
		}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if err := reconcileProp(w, obj, k, m[k]); err != nil {
			return err
		}
	}
	return nil
}

func fillList(w doc.Writer, list doc.ObjID, items []any) error {
	for i, item := range items {
		switch item := item.(type) {
		case map[string]any:
			child, err := w.InsertObject(list, i, doc.Map)
			if err != nil {
				return err
			}
			if err := reconcileMap(w, child, item); err != nil {
				return err
			}
		case []any:
			child, err := w.InsertObject(list, i, doc.List)
			if err != nil {
				return err
			}
			if err := fillList(w, child, item); err != nil {
				return err
			}
		default:
			if err := putScalar(w.Insert(list, i, item), list, i); err != nil {
				return err
			}
		}
	}
	return nil
}

func putScalar(err error, obj doc.ObjID, prop any) error {
	if errors.Is(err, doc.ErrUnsupportedScalar) {
		return reconcileErrf(err, "%v[%v]", obj, prop)
	}
	return err
}

// valuesEqual compares materialized document content with encoded content.
func valuesEqual(a, b any) bool {
	switch a := a.(type) {
	case map[string]any:
		b, ok := b.(map[string]any)
		if !ok || len(a) != len(b) {
			return false
		}
		for k, av := range a {
			bv, ok := b[k]
			if !ok || !valuesEqual(av, bv) {
				return false
			}
		}
		return true
	case []any:
		b, ok := b.([]any)
		if !ok || len(a) != len(b) {
			return false
		}
		for i := range a {
			if !valuesEqual(a[i], b[i]) {
				return false
			}
		}
		return true
	case []byte:
		b, ok := b.([]byte)
		return ok && bytes.Equal(a, b)
	case time.Time:
		b, ok := b.(time.Time)
		return ok && a.Equal(b)
	default:
		return isComparable(a) && isComparable(b) && a == b
	}
}

func isComparable(v any) bool {
	return v == nil || reflect.TypeOf(v).Comparable()
}
