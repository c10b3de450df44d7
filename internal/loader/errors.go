package loader

import (
	"errors"
	"fmt"

	"github.com/atnpgo/arwes/internal/model"
)

var (
	// ErrLoadFailed is matched by every error Load returns.
	ErrLoadFailed = errors.New("load failed")
	// ErrTimeout is the cause recorded when the batch deadline fires first.
	ErrTimeout = errors.New("load deadline exceeded")
	// ErrAborted is the cause recorded when a resource signals an abort.
	ErrAborted = errors.New("resource load aborted")
)

// LoadError describes why a batch failed. Resource is the zero Descriptor
// when the failure came from the deadline or the caller's context rather
// than from a resource.
type LoadError struct {
	Resource model.Descriptor
	Err      error
}

func (e *LoadError) Error() string {
	if e.Resource.URL == "" {
		return fmt.Sprintf("%v: %v", ErrLoadFailed, e.Err)
	}
	return fmt.Sprintf("%v: %s: %v", ErrLoadFailed, e.Resource, e.Err)
}

// Unwrap exposes both ErrLoadFailed and the underlying cause.
func (e *LoadError) Unwrap() []error {
	return []error{ErrLoadFailed, e.Err}
}

// TimedOut reports whether the deadline caused the failure.
func (e *LoadError) TimedOut() bool {
	return errors.Is(e.Err, ErrTimeout)
}
