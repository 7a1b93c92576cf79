package store

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates the handle does not resolve to a stored record.
	ErrNotFound = errors.New("record not found")
	// ErrUnavailable indicates the backing medium could not be read or written.
	ErrUnavailable = errors.New("storage unavailable")
	// ErrExists indicates a record with the same id is already stored.
	ErrExists = errors.New("record already exists")
)

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
