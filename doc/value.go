package doc

import (
	"bytes"
	"fmt"
	"time"
)

// ObjID identifies an object (map or list) within a document.
type ObjID uint64

// Root is the root map of every document.
const Root ObjID = 0

func (id ObjID) String() string {
	if id == Root {
		return "_root"
	}
	return fmt.Sprintf("obj%d", uint64(id))
}

type ObjType uint8

const (
	Map ObjType = iota + 1
	List
)

func (t ObjType) String() string {
	switch t {
	case Map:
		return "map"
	case List:
		return "list"
	default:
		return fmt.Sprintf("invalid object type %d", uint8(t))
	}
}

// Value is either a reference to a nested object or a scalar.
//
// Scalars are normalized on the way in: all signed integers become int64,
// unsigned ones become uint64, floats become float64, and []byte is copied.
// Supported scalars are nil, bool, int64, uint64, float64, string, []byte and
// time.Time.
type Value struct {
	objType ObjType
	scalar  any
}

func ObjectValue(t ObjType) Value {
	return Value{objType: t}
}

func ScalarValue(v any) (Value, error) {
	s, err := normalizeScalar(v)
	if err != nil {
		return Value{}, err
	}
	return Value{scalar: s}, nil
}

func (v Value) IsObject() bool   { return v.objType != 0 }
func (v Value) ObjType() ObjType { return v.objType }
func (v Value) Scalar() any      { return v.scalar }

func (v Value) IsMap() bool  { return v.objType == Map }
func (v Value) IsList() bool { return v.objType == List }

// Kind returns a short name of the value type, used in error messages.
func (v Value) Kind() string {
	if v.objType != 0 {
		return v.objType.String()
	}
	return scalarKind(v.scalar)
}

func (v Value) String() string {
	if v.objType != 0 {
		return v.objType.String()
	}
	switch s := v.scalar.(type) {
	case nil:
		return "null"
	case []byte:
		return fmt.Sprintf("bytes(%x)", s)
	case string:
		return fmt.Sprintf("%q", s)
	case time.Time:
		return "timestamp(" + s.UTC().Format(time.RFC3339Nano) + ")"
	default:
		return fmt.Sprint(s)
	}
}

func scalarKind(s any) string {
	switch s.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case int64:
		return "int"
	case uint64:
		return "uint"
	case float64:
		return "f64"
	case string:
		return "str"
	case []byte:
		return "bytes"
	case time.Time:
		return "timestamp"
	default:
		return fmt.Sprintf("%T", s)
	}
}

func normalizeScalar(v any) (any, error) {
	switch s := v.(type) {
	case nil, bool, int64, uint64, float64, string:
		return s, nil
	case int:
		return int64(s), nil
	case int8:
		return int64(s), nil
	case int16:
		return int64(s), nil
	case int32:
		return int64(s), nil
	case uint:
		return uint64(s), nil
	case uint8:
		return uint64(s), nil
	case uint16:
		return uint64(s), nil
	case uint32:
		return uint64(s), nil
	case float32:
		return float64(s), nil
	case []byte:
		return bytes.Clone(s), nil
	case time.Time:
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedScalar, v)
	}
}

func scalarsEqual(a, b any) bool {
	switch a := a.(type) {
	case []byte:
		b, ok := b.([]byte)
		return ok && bytes.Equal(a, b)
	case time.Time:
		b, ok := b.(time.Time)
		return ok && a.Equal(b)
	default:
		return a == b
	}
}
