package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/atnpgo/arwes/internal/loader"
	"github.com/atnpgo/arwes/internal/model"
	"github.com/atnpgo/arwes/internal/store"
)

// Loader runs one batch. *loader.Loader satisfies it.
type Loader interface {
	Load(ctx context.Context, req model.Request, opts loader.Options) error
}

// Engine orchestrates load execution.
type Engine struct {
	store    store.Store
	loader   Loader
	logger   *slog.Logger
	defaults loader.Options
	wg       sync.WaitGroup
	broker   *Broker[model.Event]
}

// NewEngine creates a new execution engine. defaults supplies the timeout
// for loads that do not set one and the concurrency cap for every load.
func NewEngine(s store.Store, l Loader, logger *slog.Logger, defaults loader.Options) *Engine {
	if defaults.Timeout <= 0 {
		defaults.Timeout = loader.DefaultTimeout
	}
	defaults.OnSettle = nil
	return &Engine{
		store:    s,
		loader:   l,
		logger:   logger,
		defaults: defaults,
		broker:   NewBroker[model.Event](DefaultRetention),
	}
}

// Broker returns the engine's progress broker for SSE subscription.
func (e *Engine) Broker() *Broker[model.Event] {
	return e.broker
}

// DefaultTimeout is the deadline applied to loads without one.
func (e *Engine) DefaultTimeout() time.Duration {
	return e.defaults.Timeout
}

// Submit stores l as pending and executes it in a goroutine. The goroutine
// operates on a copy of the load to avoid data races with the caller.
func (e *Engine) Submit(ctx context.Context, l *model.Load) error {
	if err := e.create(ctx, l); err != nil {
		return err
	}

	lCopy := *l
	e.wg.Go(func() {
		e.execute(context.Background(), &lCopy)
	})

	return nil
}

// Run stores l and executes it before returning the finished record.
// Cancelling ctx cancels the load.
func (e *Engine) Run(ctx context.Context, l *model.Load) (*model.Load, error) {
	if err := e.create(ctx, l); err != nil {
		return nil, err
	}
	lCopy := *l
	e.execute(ctx, &lCopy)

	got, err := e.store.GetLoad(context.WithoutCancel(ctx), l.ID)
	if err != nil {
		return nil, fmt.Errorf("get finished load: %w", err)
	}
	return got, nil
}

// Wait blocks until all in-flight load goroutines complete.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) create(ctx context.Context, l *model.Load) error {
	if l.TimeoutMS <= 0 {
		l.TimeoutMS = int(e.defaults.Timeout.Milliseconds())
	}
	if err := e.store.CreateLoad(ctx, l); err != nil {
		return fmt.Errorf("create load: %w", err)
	}
	return nil
}

// execute runs the load lifecycle: pending→running→succeeded/failed.
func (e *Engine) execute(ctx context.Context, l *model.Load) {
	// Close the event stream when execution finishes, regardless of outcome.
	defer e.broker.Close(l.ID)

	persist := context.WithoutCancel(ctx)

	if err := e.store.UpdateLoadStatus(persist, l.ID, model.StatusRunning); err != nil {
		e.logger.Error("failed to transition to running", "load_id", l.ID, "error", err)
		e.finish(persist, l.ID, nil, fmt.Errorf("failed to start: %w", err))
		return
	}
	start := time.Now().UTC()

	opts := e.defaults
	opts.Timeout = time.Duration(l.TimeoutMS) * time.Millisecond

	// OnSettle is called from a single goroutine, so seq needs no lock.
	// Each event is persisted for history, then published for live SSE.
	seq := 0
	opts.OnSettle = func(res model.Descriptor, err error) {
		ev := model.Event{
			LoadID:    l.ID,
			Seq:       seq,
			Kind:      res.Kind,
			URL:       res.URL,
			Ready:     err == nil,
			CreatedAt: time.Now().UTC(),
		}
		if err != nil {
			ev.Error = err.Error()
		}
		seq++
		if err := e.store.InsertEvent(persist, &ev); err != nil {
			e.logger.Error("failed to persist event", "load_id", l.ID, "seq", ev.Seq, "error", err)
		}
		e.broker.Publish(l.ID, ev)
	}

	e.logger.Info("load started", "load_id", l.ID, "resources", l.Request.Len(), "timeout_ms", l.TimeoutMS)
	err := e.loader.Load(ctx, l.Request, opts)
	e.finish(persist, l.ID, &start, err)
}

// finish writes the terminal record. startedAt is nil if execution never
// started.
func (e *Engine) finish(ctx context.Context, id string, startedAt *time.Time, loadErr error) {
	now := time.Now().UTC()
	var durationMS int
	if startedAt != nil {
		durationMS = int(now.Sub(*startedAt).Milliseconds())
	}

	l := &model.Load{
		ID:         id,
		Status:     model.StatusSucceeded,
		DurationMS: &durationMS,
		StartedAt:  startedAt,
		FinishedAt: &now,
	}
	if loadErr != nil {
		l.Status = model.StatusFailed
		l.Error = loadErr.Error()
		l.TimedOut = errors.Is(loadErr, loader.ErrTimeout)
		var le *loader.LoadError
		if errors.As(loadErr, &le) {
			l.FailedKind = le.Resource.Kind
			l.FailedURL = le.Resource.URL
		}
	}

	if err := e.store.UpdateLoad(ctx, l); err != nil {
		e.logger.Error("failed to update finished load", "load_id", id, "status", l.Status, "error", err)
		return
	}
	e.logger.Info("load finished", "load_id", id, "status", l.Status, "duration_ms", durationMS,
		"timed_out", l.TimedOut)
}
