package docorm

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/andreyvit/docorm/doc"
	"github.com/google/uuid"
)

func TestErrorMessages(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	other := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	tests := []struct {
		err      *Error
		expected string
	}{
		{&Error{Kind: KindObjectAlreadyExists, Table: "book", ID: id}, `object with id "00000000-0000-0000-0000-00000000000a" already exists in table "book"`},
		{&Error{Kind: KindObjectDoesNotExist, Table: "book", ID: id}, `object with id "00000000-0000-0000-0000-00000000000a" does not exist in table "book"`},
		{&Error{Kind: KindKeyMismatch, Actual: other, Expected: id, Msg: "bad"}, "key mismatch: got 00000000-0000-0000-0000-00000000000b, expected 00000000-0000-0000-0000-00000000000a: bad"},
		{&Error{Kind: KindInvalidKey, Key: "x", Err: errors.New("short")}, `invalid key "x": short`},
		{&Error{Kind: KindUnsupportedType, Type: reflect.TypeFor[Scalar](), Msg: "not a map"}, "unsupported type docorm.Scalar: not a map"},
		{&Error{Kind: KindDocument, Err: doc.ErrTxClosed}, "document: " + doc.ErrTxClosed.Error()},
		{&Error{Kind: KindTransactionAborted, Err: errors.New("boom")}, "transaction aborted: boom"},
		{&Error{Kind: KindManagedTransaction, Msg: "Commit inside Transact"}, "transaction is finished by Transact: Commit inside Transact"},
	}
	for _, tt := range tests {
		deepEqual(t, tt.err.Error(), tt.expected)
	}
}

func TestErrorIs(t *testing.T) {
	inner := &Error{Kind: KindObjectDoesNotExist, Table: "book"}
	err := fmt.Errorf("wrapped: %w", &Error{Kind: KindTransactionAborted, Err: inner})

	isErr(t, err, ErrTransactionAborted)
	isErr(t, err, ErrObjectDoesNotExist)
	if errors.Is(err, ErrObjectAlreadyExists) {
		t.Errorf("** %v matched ErrObjectAlreadyExists", err)
	}

	var e *Error
	if !errors.As(err, &e) || e.Kind != KindTransactionAborted {
		t.Fatalf("** errors.As found %v", e)
	}
}

func TestDocErr(t *testing.T) {
	err := docErr(doc.ErrNotMap)
	isErr(t, err, ErrDocument)
	isErr(t, err, doc.ErrNotMap)

	already := &Error{Kind: KindHydrate}
	deepEqual(t, docErr(already), error(already))
}

func TestIsSerialization(t *testing.T) {
	deepEqual(t, IsSerialization(&Error{Kind: KindHydrate}), true)
	deepEqual(t, IsSerialization(&Error{Kind: KindReconcile}), true)
	deepEqual(t, IsSerialization(&Error{Kind: KindDocument}), false)
	deepEqual(t, IsSerialization(nil), false)
}

func TestErrorKindString(t *testing.T) {
	deepEqual(t, ErrObserver.Error(), "observer error")
	deepEqual(t, ErrorKind(99).Error(), "docorm error kind 99")
}
