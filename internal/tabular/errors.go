package tabular

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrColumnNotFound: a transform referenced a column its input does not carry.
	ErrColumnNotFound = errors.New("column not found")
	// ErrSchemaMismatch: the input shape cannot satisfy the transform
	// (duplicate column names, wrong cell types, colliding join columns).
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrDuplicateKey: a key that must be unique appears more than once.
	ErrDuplicateKey = errors.New("duplicate key")
)

func columnNotFound(names ...string) error {
	return fmt.Errorf("%w: %s", ErrColumnNotFound, strings.Join(names, ", "))
}

func schemaMismatch(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSchemaMismatch, fmt.Sprintf(format, args...))
}
