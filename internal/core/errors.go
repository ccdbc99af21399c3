package core

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Kind classifies an error for translation at the transport boundary.
type Kind uint8

const (
	KindInfrastructure Kind = iota
	KindValidation
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// ErrNotFound is returned when no expense matches both id and owner.
var ErrNotFound = errors.New("expense not found")

// Error attaches a Kind and the failing operation to an underlying error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with kind and op. A nil err yields nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the outermost Kind attached to err. Unclassified errors
// are infrastructure failures.
func KindOf(err error) Kind {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		return KindValidation
	}
	var rowErrs RowErrors
	if errors.As(err, &rowErrs) {
		return KindValidation
	}
	return KindInfrastructure
}

// ValidationError reports a single invalid field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + " " + e.Message
}

// RowError reports an invalid record in a bulk import. Row is 1-based and
// counts data rows only.
type RowError struct {
	Row int   `json:"row"`
	Err error `json:"-"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

// RowErrors collects every invalid row of an import.
type RowErrors []RowError

func (r RowErrors) Error() string {
	if len(r) == 1 {
		return r[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", r[0].Error(), len(r)-1)
}
