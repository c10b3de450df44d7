package loader

import (
	"time"

	"github.com/atnpgo/arwes/internal/model"
)

// DefaultTimeout bounds a batch when Options.Timeout is not set.
const DefaultTimeout = 3 * time.Second

// Options tunes a single Load call.
type Options struct {
	// Timeout is the batch deadline. Zero or negative selects DefaultTimeout.
	Timeout time.Duration

	// MaxConcurrency caps how many resources load at once. Zero means no cap.
	MaxConcurrency int

	// OnSettle, when set, is called from Load's goroutine for each resource
	// that settles before the batch does. It does not affect the outcome.
	OnSettle func(model.Descriptor, error)
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}
