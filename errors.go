package docorm

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"
)

// ErrorKind classifies an *Error. Kinds are errors themselves, so callers
// can write errors.Is(err, docorm.ErrObjectAlreadyExists).
type ErrorKind int

const (
	KindDocument ErrorKind = iota + 1
	KindHydrate
	KindReconcile
	KindInvalidKey
	KindKeyMismatch
	KindObjectAlreadyExists
	KindObjectDoesNotExist
	KindObserver
	KindTransactionAborted
	KindUnsupportedType
	KindManagedTransaction
)

var (
	ErrDocument            error = KindDocument
	ErrHydrate             error = KindHydrate
	ErrReconcile           error = KindReconcile
	ErrInvalidKey          error = KindInvalidKey
	ErrKeyMismatch         error = KindKeyMismatch
	ErrObjectAlreadyExists error = KindObjectAlreadyExists
	ErrObjectDoesNotExist  error = KindObjectDoesNotExist
	ErrObserver            error = KindObserver
	ErrTransactionAborted  error = KindTransactionAborted
	ErrUnsupportedType     error = KindUnsupportedType
	ErrManagedTransaction  error = KindManagedTransaction
)

func (k ErrorKind) Error() string {
	switch k {
	case KindDocument:
		return "document error"
	case KindHydrate:
		return "hydrate error"
	case KindReconcile:
		return "reconcile error"
	case KindInvalidKey:
		return "invalid key"
	case KindKeyMismatch:
		return "key mismatch"
	case KindObjectAlreadyExists:
		return "object already exists"
	case KindObjectDoesNotExist:
		return "object does not exist"
	case KindObserver:
		return "observer error"
	case KindTransactionAborted:
		return "transaction aborted"
	case KindUnsupportedType:
		return "unsupported type"
	case KindManagedTransaction:
		return "transaction is finished by Transact"
	default:
		return fmt.Sprintf("docorm error kind %d", int(k))
	}
}

// Error is the single error type returned by this package. Which fields are
// set depends on Kind.
type Error struct {
	Kind ErrorKind

	// ObjectAlreadyExists, ObjectDoesNotExist
	Table string
	ID    uuid.UUID

	// InvalidKey
	Key string

	// KeyMismatch
	Expected uuid.UUID
	Actual   uuid.UUID

	// UnsupportedType
	Type reflect.Type

	Msg string
	Err error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	k, ok := target.(ErrorKind)
	return ok && k == e.Kind
}

func (e *Error) Error() string {
	var buf strings.Builder
	switch e.Kind {
	case KindDocument:
		buf.WriteString("document")
	case KindHydrate:
		buf.WriteString("hydrate")
	case KindReconcile:
		buf.WriteString("reconcile")
	case KindObserver:
		buf.WriteString("observer")
	case KindTransactionAborted:
		buf.WriteString("transaction aborted")
	case KindInvalidKey:
		fmt.Fprintf(&buf, "invalid key %q", e.Key)
	case KindObjectAlreadyExists:
		fmt.Fprintf(&buf, "object with id %q already exists in table %q", e.ID.String(), e.Table)
	case KindObjectDoesNotExist:
		fmt.Fprintf(&buf, "object with id %q does not exist in table %q", e.ID.String(), e.Table)
	case KindKeyMismatch:
		fmt.Fprintf(&buf, "key mismatch: got %v, expected %v", e.Actual, e.Expected)
	case KindUnsupportedType:
		fmt.Fprintf(&buf, "unsupported type %v", e.Type)
	default:
		buf.WriteString(e.Kind.Error())
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// IsSerialization reports whether err is a hydrate or reconcile failure.
func IsSerialization(err error) bool {
	return errors.Is(err, ErrHydrate) || errors.Is(err, ErrReconcile)
}

func docErr(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindDocument, Err: err}
}

func docErrf(err error, format string, args ...any) error {
	return &Error{Kind: KindDocument, Msg: fmt.Sprintf(format, args...), Err: err}
}

func hydrateErrf(err error, format string, args ...any) error {
	return &Error{Kind: KindHydrate, Msg: fmt.Sprintf(format, args...), Err: err}
}

func reconcileErrf(err error, format string, args ...any) error {
	return &Error{Kind: KindReconcile, Msg: fmt.Sprintf(format, args...), Err: err}
}

func unsupportedTypeErrf(typ reflect.Type, format string, args ...any) error {
	return &Error{Kind: KindUnsupportedType, Type: typ, Msg: fmt.Sprintf(format, args...)}
}
