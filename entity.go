package docorm

import (
	"reflect"
	"strings"
	"unicode"
)

// Mapped is implemented by types stored in a table. TableName is a property
// of the type: it is called on the zero value and must not depend on the
// receiver.
type Mapped interface {
	TableName() string
}

// Keyed is implemented by entities that know their own key.
type Keyed[T any] interface {
	Key() Key[T]
}

// Entity is the constraint of write operations: a Mapped type that is keyed
// by itself.
//
//	type Book struct {
//		ID    docorm.Key[Book] `msgpack:"id"`
//		Title string           `msgpack:"title"`
//	}
//
//	func (Book) TableName() string       { return docorm.TableNameOf[Book]() }
//	func (b Book) Key() docorm.Key[Book] { return b.ID }
type Entity[T any] interface {
	Mapped
	Keyed[T]
}

// TableNameOf returns the conventional table name of T: its type name in
// snake_case, so Book becomes "book" and BookAuthor becomes "book_author".
func TableNameOf[T any]() string {
	typ := reflect.TypeFor[T]()
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	name := typ.Name()
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	return SnakeCase(name)
}

// SnakeCase converts a Go identifier to snake_case. Acronyms stay together:
// HTTPServer becomes "http_server".
func SnakeCase(s string) string {
	runes := []rune(s)
	var buf strings.Builder
	buf.Grow(len(s) + 4)
	for i, r := range runes {
		if r == '_' || r == '-' || unicode.IsSpace(r) {
			if buf.Len() > 0 && i+1 < len(runes) {
				buf.WriteByte('_')
			}
			continue
		}
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				buf.WriteByte('_')
			}
		}
		buf.WriteRune(unicode.ToLower(r))
	}
	return buf.String()
}

func tableName[T Mapped]() (string, error) {
	var zero T
	name := zero.TableName()
	if name == "" {
		return "", unsupportedTypeErrf(reflect.TypeFor[T](), "empty table name")
	}
	return name, nil
}
