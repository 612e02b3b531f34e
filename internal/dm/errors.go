// ABOUTME: Error taxonomy for direct messaging surfaced to the presentation layer
// ABOUTME: Classify maps store and transport errors onto NotFound/Forbidden/InvalidOperation/Transient

package dm

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/bazaar-gateway/internal/store"
)

// User-facing error kinds. Wrap them with fmt.Errorf("...: %w", Err...) and
// test with errors.Is.
var (
	// ErrNotFound: the referenced actor or conversation does not exist.
	// Not retryable by repeating the same action.
	ErrNotFound = errors.New("not found")

	// ErrForbidden: the actor is not a participant of the conversation.
	// Presented like ErrNotFound (redirect away), see IsNotFound.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidOperation: rejected before any network call, e.g. a
	// self-conversation or an empty message.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrTransient: the store or network is unavailable, or a uniqueness race
	// could not be resolved. Safe to retry.
	ErrTransient = errors.New("temporarily unavailable")
)

// Classify maps an error from a store or remote call onto the taxonomy.
// Errors already classified are returned unchanged.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrForbidden),
		errors.Is(err, ErrInvalidOperation), errors.Is(err, ErrTransient):
		return err
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
}

// IsNotFound reports whether err should send the user away from the view.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden)
}

// IsRetryable reports whether the user should be offered a retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
