package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrAlreadyExists is the "already there" outcome of a create. Callers
	// treat it as a benign race, not a failure.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotFound is returned by deletes and lookups that matched nothing.
	ErrNotFound = errors.New("not found")
)

// isDuplicate recognises unique violations across drivers. TranslateError
// covers most cases; the message checks catch drivers that skip translation.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}

// CanonicalPair orders two user ids so the smaller one comes first.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}
