package docorm

import (
	"github.com/andreyvit/docorm/doc"
)

// These functions address tables and rows directly in a document. Transaction,
// EntityManager and the repositories are built on them; they are exported for
// custom implementations.
//
// A table is a map at Root[TableName()]; a row is a map at Table[key.String()].
// Absence is never an error: lookups return nil, false or an empty map.

// TableResolution tells whether ResolveTable found or created the table.
type TableResolution int

const (
	TableExisting TableResolution = iota + 1
	TableCreated
)

func (r TableResolution) String() string {
	switch r {
	case TableExisting:
		return "existing"
	case TableCreated:
		return "created"
	default:
		return "invalid"
	}
}

// GetTable returns the table object of T. A non-map value under the table
// name is a document error.
func GetTable[T Mapped](r doc.Reader) (doc.ObjID, bool, error) {
	name, err := tableName[T]()
	if err != nil {
		return 0, false, err
	}
	return getTable(r, name)
}

func getTable(r doc.Reader, name string) (doc.ObjID, bool, error) {
	v, obj, found, err := r.Get(doc.Root, name)
	if err != nil {
		return 0, false, docErr(err)
	}
	if !found {
		return 0, false, nil
	}
	if !v.IsMap() {
		return 0, false, docErrf(&doc.InvalidValueTypeError{Expected: doc.Map.String(), Unexpected: v.Kind()}, "table %q", name)
	}
	return obj, true, nil
}

// ResolveTable returns the table object of T, creating it if it does not
// exist yet.
func ResolveTable[T Mapped](w doc.Writer) (doc.ObjID, TableResolution, error) {
	name, err := tableName[T]()
	if err != nil {
		return 0, 0, err
	}
	return resolveTable(w, name)
}

func resolveTable(w doc.Writer, name string) (doc.ObjID, TableResolution, error) {
	obj, found, err := getTable(w, name)
	if err != nil {
		return 0, 0, err
	}
	if found {
		return obj, TableExisting, nil
	}
	obj, err = w.PutObject(doc.Root, name, doc.Map)
	if err != nil {
		return 0, 0, docErr(err)
	}
	return obj, TableCreated, nil
}

// CreateTable returns the table object of T, creating it if needed. It never
// replaces an existing table.
func CreateTable[T Mapped](w doc.Writer) (doc.ObjID, error) {
	obj, _, err := ResolveTable[T](w)
	return obj, err
}

// Find returns the entity stored under id, or nil if there is none.
func Find[T Mapped](r doc.Reader, id Key[T]) (*T, error) {
	table, found, err := GetTable[T](r)
	if err != nil || !found {
		return nil, err
	}
	_, _, found, err = r.Get(table, id.String())
	if err != nil {
		return nil, docErr(err)
	}
	if !found {
		return nil, nil
	}
	return Hydrate[T](r, table, id.String())
}

// FindAll returns all entities of T keyed by their canonical key strings.
func FindAll[T Mapped](r doc.Reader) (*EntityMap[T], error) {
	table, found, err := GetTable[T](r)
	if err != nil {
		return nil, err
	}
	if !found {
		return newEntityMap[T](0), nil
	}
	keys, err := r.Keys(table)
	if err != nil {
		return nil, docErr(err)
	}
	result := newEntityMap[T](len(keys))
	for _, k := range keys {
		entity, err := Hydrate[T](r, table, k)
		if err != nil {
			return nil, err
		}
		result.add(k, *entity)
	}
	return result, nil
}
