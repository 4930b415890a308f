package doc

import (
	"errors"
	"fmt"
)

var (
	ErrTxClosed          = errors.New("doc: transaction closed")
	ErrTxInProgress      = errors.New("doc: another transaction is in progress")
	ErrObjectNotFound    = errors.New("doc: object not found")
	ErrNotMap            = errors.New("doc: object is not a map")
	ErrNotList           = errors.New("doc: object is not a list")
	ErrIndexOutOfRange   = errors.New("doc: list index out of range")
	ErrUnsupportedScalar = errors.New("doc: unsupported scalar type")
	ErrDocumentNotFound  = errors.New("doc: document not found")
	ErrCorruptedChange   = errors.New("doc: corrupted change")
	ErrClosed            = errors.New("doc: repo closed")
)

// InvalidValueTypeError is returned when a property holds a value of
// a different type than the caller requires.
type InvalidValueTypeError struct {
	Expected   string
	Unexpected string
}

func (e *InvalidValueTypeError) Error() string {
	return fmt.Sprintf("doc: invalid value type: expected %s, got %s", e.Expected, e.Unexpected)
}

type objectError struct {
	obj ObjID
	err error
}

func (e *objectError) Error() string {
	return e.err.Error() + ": " + e.obj.String()
}

func (e *objectError) Unwrap() error {
	return e.err
}

func objErr(obj ObjID, err error) error {
	return &objectError{obj, err}
}
