package store

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrJobNotFound means no job row exists for the requested id.
	ErrJobNotFound = errors.New("video job not found")

	// ErrAnalysisNotFound means no analysis row exists for the video yet.
	ErrAnalysisNotFound = errors.New("analysis not found")

	// ErrSchemaDrift marks a read that failed because the requested
	// relation or columns do not exist. Soft: the next poll after a
	// schema fix can succeed, so pollers log and continue instead of
	// wedging on it.
	ErrSchemaDrift = errors.New("schema drift")
)

// Postgres error codes for missing relations/columns.
const (
	pqUndefinedTable  = "42P01"
	pqUndefinedColumn = "42703"
)

// IsSchemaDrift reports whether err is a shape-mismatch class of
// failure rather than a hard transport or permission error.
func IsSchemaDrift(err error) bool {
	if errors.Is(err, ErrSchemaDrift) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUndefinedTable || pqErr.Code == pqUndefinedColumn
	}
	return false
}
