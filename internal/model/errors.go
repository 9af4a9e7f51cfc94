package model

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// Domain errors. Callers test with errors.Is.
var (
	ErrMissingField             = eris.New("missing field")
	ErrNotFound                 = eris.New("not found")
	ErrConcurrentSourceCreation = eris.New("concurrent source creation")
	ErrStuckProcessing          = eris.New("stuck processing")
	ErrStorageUnavailable       = eris.New("storage unavailable")
	ErrCountryMismatch          = eris.New("country mismatch")
	ErrInvalidField             = eris.New("invalid field")
)

// MissingFieldError names the required field that was blank.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field: %s", e.Field)
}

// Is makes errors.Is(err, ErrMissingField) hold for every MissingFieldError.
func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}

// MissingField returns a MissingFieldError for field.
func MissingField(field string) error {
	return &MissingFieldError{Field: field}
}

// InvalidFieldError names a field whose value is not one of the accepted ones.
type InvalidFieldError struct {
	Field string
	Value string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid field: %s=%q", e.Field, e.Value)
}

// Is makes errors.Is(err, ErrInvalidField) hold for every InvalidFieldError.
func (e *InvalidFieldError) Is(target error) bool {
	return target == ErrInvalidField
}

// InvalidField returns an InvalidFieldError for field.
func InvalidField(field, value string) error {
	return &InvalidFieldError{Field: field, Value: value}
}

// StorageError marks a persistence failure as StorageUnavailable while
// keeping the driver error reachable through Unwrap.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrStorageUnavailable.Error(), e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStorageUnavailable) hold.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

// Unavailable wraps a persistence failure of op.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
