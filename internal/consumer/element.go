// Package consumer implements the all-or-nothing state a media element keeps
// while it preloads its resource: it is either waiting, ready, or in error.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/atnpgo/arwes/internal/loader"
	"github.com/atnpgo/arwes/internal/model"
)

// ErrNoResource is returned by Mount when no source matches the viewport.
var ErrNoResource = errors.New("no resource for viewport")

// Loader is the part of *loader.Loader an Element needs.
type Loader interface {
	Load(ctx context.Context, req model.Request, opts loader.Options) error
}

// I18n holds the user-facing messages of an element.
type I18n struct {
	Error string
}

var defaultMessages = map[model.Kind]I18n{
	model.KindImage: {Error: "Image error"},
	model.KindSound: {Error: "Sound error"},
	model.KindVideo: {Error: "Video error"},
}

// State is a snapshot of an element's flags.
type State struct {
	Ready    bool   `json:"ready"`
	Error    bool   `json:"error"`
	Resource string `json:"resource,omitempty"`
}

// Element loads one resource of a fixed kind and tracks whether it is ready.
// It is safe for concurrent use.
type Element struct {
	kind          model.Kind
	sources       Sources
	breakpoints   Breakpoints
	loader        Loader
	timeout       time.Duration
	i18n          I18n
	loadResources bool
	logger        *slog.Logger

	mu     sync.Mutex
	state  State
	gen    uint64
	cancel context.CancelFunc
}

// Option configures an Element.
type Option func(*Element)

// WithLoader sets the loader used on mount.
func WithLoader(l Loader) Option {
	return func(e *Element) {
		e.loader = l
	}
}

// WithTimeout sets the load deadline. Zero keeps loader.DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Element) {
		e.timeout = d
	}
}

// WithI18n replaces the default messages.
func WithI18n(m I18n) Option {
	return func(e *Element) {
		e.i18n = m
	}
}

// WithLoadResources controls whether Mount loads the resource at all. When
// false the element becomes ready as soon as a resource is chosen.
func WithLoadResources(load bool) Option {
	return func(e *Element) {
		e.loadResources = load
	}
}

// WithBreakpoints replaces the viewport breakpoints.
func WithBreakpoints(bp Breakpoints) Option {
	return func(e *Element) {
		e.breakpoints = bp
	}
}

// WithLogger sets the element logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Element) {
		e.logger = logger
	}
}

// New creates an element of kind showing sources.
func New(kind model.Kind, sources Sources, opts ...Option) *Element {
	e := &Element{
		kind:          kind,
		sources:       sources,
		breakpoints:   DefaultBreakpoints,
		i18n:          defaultMessages[kind],
		loadResources: true,
		logger:        slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.loader == nil {
		e.loader = loader.New(loader.Dependencies{}, loader.WithLogger(e.logger))
	}
	return e
}

// State returns the current flags.
func (e *Element) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Message returns the error message while in error and "" otherwise.
func (e *Element) Message() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Error {
		return e.i18n.Error
	}
	return ""
}

// Mount picks the resource for viewportWidth and loads it, blocking until
// the load settles. Any earlier mount still in flight is abandoned. On
// success the element is ready; on failure it is in error. A mount that is
// cancelled by Unmount or a newer Mount leaves the state alone.
func (e *Element) Mount(ctx context.Context, viewportWidth int) error {
	resource := e.sources.Pick(viewportWidth, e.breakpoints)

	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.gen++
	gen := e.gen
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.state = State{Resource: resource}
	e.mu.Unlock()
	defer cancel()

	if resource == "" {
		e.settle(gen, ErrNoResource)
		return ErrNoResource
	}
	if !e.loadResources {
		e.settle(gen, nil)
		return nil
	}

	var req model.Request
	if err := req.Add(e.kind, resource); err != nil {
		e.settle(gen, err)
		return err
	}

	// An unmounted or superseded mount has a stale gen and settle drops it.
	err := e.loader.Load(ctx, req, loader.Options{Timeout: e.timeout})
	e.settle(gen, err)
	return err
}

// Update remounts when the viewport selects a different resource than the
// one mounted, and is a no-op otherwise.
func (e *Element) Update(ctx context.Context, viewportWidth int) error {
	resource := e.sources.Pick(viewportWidth, e.breakpoints)
	e.mu.Lock()
	same := e.gen > 0 && resource == e.state.Resource
	e.mu.Unlock()
	if same {
		return nil
	}
	return e.Mount(ctx, viewportWidth)
}

// Unmount abandons any mount in flight.
func (e *Element) Unmount() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.gen++
}

func (e *Element) settle(gen uint64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		return
	}
	if err != nil {
		e.state.Error = true
		e.logger.Debug("element load failed", "kind", e.kind, "resource", e.state.Resource, "error", err)
		return
	}
	e.state.Ready = true
}
