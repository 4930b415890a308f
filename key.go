package docorm

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/google/uuid"
)

// Key identifies an entity of type T. Keys of different entity types are
// distinct Go types even though all of them wrap a UUID; comparison,
// ordering and hashing depend on the UUID only.
//
// The canonical string form (lowercase hyphenated UUID) is the property
// name of the entity within its table.
type Key[T any] struct {
	id uuid.UUID
}

func NewKey[T any](id uuid.UUID) Key[T] {
	return Key[T]{id}
}

// NewRandomKey returns a key wrapping a random (version 4) UUID.
func NewRandomKey[T any]() Key[T] {
	return Key[T]{uuid.New()}
}

// ParseKey parses the canonical string form of a key. Any form accepted by
// uuid.Parse works too.
func ParseKey[T any](s string) (Key[T], error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return Key[T]{}, &Error{Kind: KindInvalidKey, Key: s, Err: err}
	}
	return Key[T]{id}, nil
}

func MustParseKey[T any](s string) Key[T] {
	return must(ParseKey[T](s))
}

func (k Key[T]) String() string {
	return k.id.String()
}

func (k Key[T]) GoString() string {
	return fmt.Sprintf("docorm.Key[%v](%s)", reflect.TypeFor[T](), k.id)
}

func (k Key[T]) UUID() uuid.UUID {
	return k.id
}

func (k Key[T]) IsZero() bool {
	return k.id == uuid.Nil
}

// Compare orders keys by their UUID bytes.
func (k Key[T]) Compare(other Key[T]) int {
	return bytes.Compare(k.id[:], other.id[:])
}

func (k Key[T]) MarshalBinary() ([]byte, error) {
	return k.id.MarshalBinary()
}

func (k *Key[T]) UnmarshalBinary(data []byte) error {
	return k.id.UnmarshalBinary(data)
}

func (k Key[T]) MarshalText() ([]byte, error) {
	return k.id.MarshalText()
}

func (k *Key[T]) UnmarshalText(data []byte) error {
	id, err := uuid.ParseBytes(data)
	if err != nil {
		return &Error{Kind: KindInvalidKey, Key: string(data), Err: err}
	}
	k.id = id
	return nil
}
