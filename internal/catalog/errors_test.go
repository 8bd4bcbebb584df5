package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"Nil", nil, ""},
		{"Not found", fmt.Errorf("resolve: %w", ErrNotFound), KindNotFound},
		{"Conflict", &ConflictError{Article: "2498"}, KindConflict},
		{"Wrapped conflict", fmt.Errorf("create: %w", &ConflictError{Article: "2498"}), KindConflict},
		{"Fetch", &FetchError{URL: "https://x", Attempts: 2, Err: errors.New("boom")}, KindFetch},
		{"Persistence", &PersistenceError{Op: "create", Err: errors.New("disk")}, KindPersistence},
		{"Validation", &ValidationError{Fields: []string{"title"}}, KindValidation},
		{"Empty query", ErrEmptyQuery, KindValidation},
		{"Canceled fetch", &FetchError{URL: "https://x", Attempts: 1, Err: context.Canceled}, KindCanceled},
		{"Other", errors.New("something"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Kind(tt.err))
		})
	}
}

func TestConflictErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("insert: %w", &ConflictError{Article: "2498"})
	assert.True(t, errors.Is(err, ErrConflict))
	assert.Contains(t, err.Error(), "2498")
}

func TestFetchErrorUnwraps(t *testing.T) {
	inner := errors.New("navigation timeout")
	err := &FetchError{URL: "https://snab-lift.ru/catalog/a.html", Attempts: 2, Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "after 2 attempt(s)")
}

func TestValidate(t *testing.T) {
	type patch struct {
		Zone     *string `json:"zone" validate:"omitempty,max=5"`
		Quantity *int    `json:"quantity_actual" validate:"omitempty,min=0"`
	}

	zone := "A"
	ok := 3
	assert.NoError(t, Validate(&patch{Zone: &zone, Quantity: &ok}))

	neg := -1
	err := Validate(&patch{Quantity: &neg})
	var vErr *ValidationError
	if assert.ErrorAs(t, err, &vErr) {
		assert.Equal(t, []string{"quantity_actual must be at least 0"}, vErr.Fields)
	}
	assert.Equal(t, KindValidation, Kind(err))
}
