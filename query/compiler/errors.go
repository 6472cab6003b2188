package compiler

import "errors"

var (
	// ErrUnsupportedQuery is returned for model nodes or scalars the
	// compiler does not know.
	ErrUnsupportedQuery = errors.New("unsupported query node")
	// ErrInvalidQuery is returned for a malformed query model, such as a
	// column referenced outside the statement producing it.
	ErrInvalidQuery = errors.New("invalid query model")
)
