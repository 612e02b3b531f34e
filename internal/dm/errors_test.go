// ABOUTME: Tests for error classification
// ABOUTME: Ensures store and network errors land in the right user-facing bucket

package dm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/2389/bazaar-gateway/internal/store"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"store not found", store.ErrNotFound, ErrNotFound},
		{"wrapped store not found", fmt.Errorf("querying: %w", store.ErrNotFound), ErrNotFound},
		{"network", errors.New("dial tcp: connection refused"), ErrTransient},
		{"already invalid", fmt.Errorf("empty: %w", ErrInvalidOperation), ErrInvalidOperation},
		{"already forbidden", ErrForbidden, ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, Classify(tt.err), tt.want)
		})
	}
}

func TestClassify_NilAndCanceled(t *testing.T) {
	assert.NoError(t, Classify(nil))
	assert.ErrorIs(t, Classify(context.Canceled), context.Canceled)
	assert.NotErrorIs(t, Classify(context.Canceled), ErrTransient)
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsNotFound(ErrForbidden))
	assert.True(t, IsNotFound(fmt.Errorf("x: %w", ErrNotFound)))
	assert.False(t, IsNotFound(ErrTransient))
	assert.True(t, IsRetryable(Classify(errors.New("timeout"))))
	assert.False(t, IsRetryable(ErrInvalidOperation))
}
