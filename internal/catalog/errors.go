package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maltedev/parts-catalog-importer/internal/models"
)

var (
	ErrNotFound        = errors.New("no catalog page found for query")
	ErrProductNotFound = errors.New("product not found")
	ErrConflict        = errors.New("article already exists")
	ErrEmptyQuery      = errors.New("empty query")
)

// Reason tags reported on failed and skipped import outcomes.
const (
	KindNotFound    = "not_found"
	KindFetch       = "fetch"
	KindConflict    = "conflict"
	KindPersistence = "persistence"
	KindValidation  = "validation"
	KindCanceled    = "canceled"
	KindInternal    = "internal"
)

// ConflictError reports the record that blocked an insert.
type ConflictError struct {
	Article  string
	Existing *models.ProductRecord
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("article %q already exists", e.Article)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// FetchError is returned when a page could not be loaded after the retry.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps storage failures. The in-flight record, its images
// and its stock entry have been rolled back when this is returned.
type PersistenceError struct {
	Op      string
	Article string
	Err     error
}

func (e *PersistenceError) Error() string {
	if e.Article == "" {
		return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("persistence: %s %q: %v", e.Op, e.Article, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ValidationError lists the fields of an extracted record that failed checks.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid product record: " + strings.Join(e.Fields, ", ")
}

// Kind maps an error to a stable reason tag.
func Kind(err error) string {
	var (
		conflictErr    *ConflictError
		fetchErr       *FetchError
		persistenceErr *PersistenceError
		validationErr  *ValidationError
	)

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.As(err, &conflictErr), errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.As(err, &fetchErr):
		return KindFetch
	case errors.As(err, &persistenceErr):
		return KindPersistence
	case errors.As(err, &validationErr), errors.Is(err, ErrEmptyQuery):
		return KindValidation
	default:
		return KindInternal
	}
}
