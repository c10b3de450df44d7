package loader

import (
	"context"
	"sync"
)

// Completion is a single-assignment outcome. The first Resolve or Reject
// settles it; later calls are no-ops that return false.
type Completion struct {
	once sync.Once
	done chan struct{}
	err  error
}

// NewCompletion returns an unsettled Completion.
func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Resolve settles the completion as ready.
func (c *Completion) Resolve() bool {
	return c.settle(nil)
}

// Reject settles the completion as failed. A nil err is recorded as ErrAborted.
func (c *Completion) Reject(err error) bool {
	if err == nil {
		err = ErrAborted
	}
	return c.settle(err)
}

func (c *Completion) settle(err error) bool {
	settled := false
	c.once.Do(func() {
		c.err = err
		settled = true
		close(c.done)
	})
	return settled
}

// Done is closed once the completion settles.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Settled reports whether Resolve or Reject has won.
func (c *Completion) Settled() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Err returns the settled error, or nil while unsettled or when resolved.
func (c *Completion) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Wait blocks until the completion settles or ctx is done.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
