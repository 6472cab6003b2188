// Package query defines the error taxonomy shared by the translation pipeline.
package query

import (
	"errors"
	"fmt"
)

// Error kinds. A TranslationError always unwraps to exactly one of these.
var (
	ErrNotSupported        = errors.New("not supported")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrNilArgument         = errors.New("argument is nil")
	ErrOutOfRange          = errors.New("argument out of range")
	ErrFieldNotFound       = errors.New("field not found")
	ErrTypeMismatch        = errors.New("type mismatch")
	ErrFeatureNotSupported = errors.New("feature not supported by provider")
)

// TranslationError reports a query that cannot be translated. It is terminal for
// the query shape: retrying the same expression fails the same way.
type TranslationError struct {
	// Op is the operator or stage that failed (e.g. "Where", "normalize").
	Op string
	// Query is a printable form of the offending expression, if known.
	Query string
	// Kind is one of the Err* sentinels above.
	Kind error
	// Err is the specific cause.
	Err error
}

func (e *TranslationError) Error() string {
	msg := fmt.Sprintf("unable to translate %s", e.Op)
	if e.Query != "" {
		msg += fmt.Sprintf(" (%s)", e.Query)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg + ": " + e.Kind.Error()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *TranslationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Errorf builds a TranslationError of the given kind.
func Errorf(op string, kind error, format string, args ...any) *TranslationError {
	return &TranslationError{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches op to err. An existing TranslationError keeps its kind and gains
// the query text if it had none; any other error becomes ErrNotSupported.
func Wrap(op, queryText string, err error) error {
	if err == nil {
		return nil
	}
	var te *TranslationError
	if errors.As(err, &te) {
		if te.Query == "" {
			cp := *te
			cp.Query = queryText
			return &cp
		}
		return te
	}
	return &TranslationError{Op: op, Query: queryText, Kind: ErrNotSupported, Err: err}
}

// IsTranslationError reports whether err is (or wraps) a TranslationError.
func IsTranslationError(err error) bool {
	var te *TranslationError
	return errors.As(err, &te)
}
