package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/atnpgo/arwes/internal/media"
	"github.com/atnpgo/arwes/internal/model"
)

const tracerName = "github.com/atnpgo/arwes/internal/loader"

// LoadFunc performs one load attempt for the resource at url. It returns nil
// once the resource is ready and an error if it failed or was aborted. It
// should stop early when ctx is done.
type LoadFunc func(ctx context.Context, url string) error

// Dependencies holds one LoadFunc per resource kind. Nil fields mean "use the
// default".
type Dependencies struct {
	LoadImage LoadFunc
	LoadSound LoadFunc
	LoadVideo LoadFunc
}

// For returns the LoadFunc for kind, or nil for an unknown kind.
func (d Dependencies) For(kind model.Kind) LoadFunc {
	switch kind {
	case model.KindImage:
		return d.LoadImage
	case model.KindSound:
		return d.LoadSound
	case model.KindVideo:
		return d.LoadVideo
	}
	return nil
}

// merge returns d with every non-nil field of over taking precedence.
func (d Dependencies) merge(over Dependencies) Dependencies {
	if over.LoadImage != nil {
		d.LoadImage = over.LoadImage
	}
	if over.LoadSound != nil {
		d.LoadSound = over.LoadSound
	}
	if over.LoadVideo != nil {
		d.LoadVideo = over.LoadVideo
	}
	return d
}

// KindInfo reports which loader serves a kind.
type KindInfo struct {
	Kind       model.Kind `json:"kind"`
	Overridden bool       `json:"overridden"`
}

// Loader loads resource batches. The dependency set is fixed at construction,
// so a Loader is safe for concurrent use.
type Loader struct {
	deps       Dependencies
	overridden map[model.Kind]bool
	source     *media.Source
	logger     *slog.Logger
	tracer     trace.Tracer
}

// Option configures a Loader.
type Option func(*Loader)

// WithSource binds the default loaders to src instead of media.DefaultSource.
func WithSource(src *media.Source) Option {
	return func(l *Loader) {
		l.source = src
	}
}

// WithLogger sets the logger used for batch diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithTracerProvider sets the provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(l *Loader) {
		l.tracer = tp.Tracer(tracerName)
	}
}

// New builds a Loader from the default loaders overridden field by field
// with deps.
func New(deps Dependencies, opts ...Option) *Loader {
	l := &Loader{
		source: media.DefaultSource,
		logger: slog.New(slog.DiscardHandler),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.deps = DefaultDependencies(l.source).merge(deps)
	l.overridden = map[model.Kind]bool{
		model.KindImage: deps.LoadImage != nil,
		model.KindSound: deps.LoadSound != nil,
		model.KindVideo: deps.LoadVideo != nil,
	}
	return l
}

// Dependencies returns the merged dependency set.
func (l *Loader) Dependencies() Dependencies {
	return l.deps
}

// Kinds lists every kind in declaration order and whether it is overridden.
func (l *Loader) Kinds() []KindInfo {
	infos := make([]KindInfo, 0, len(model.Kinds))
	for _, k := range model.Kinds {
		infos = append(infos, KindInfo{Kind: k, Overridden: l.overridden[k]})
	}
	return infos
}

type result struct {
	res model.Descriptor
	err error
}

// Load loads every resource in req concurrently and returns nil once all of
// them are ready. It returns a *LoadError as soon as one resource fails, the
// deadline fires, or ctx ends, without waiting for the rest. An empty req
// succeeds immediately.
func (l *Loader) Load(ctx context.Context, req model.Request, opts Options) error {
	resources := req.Descriptors()
	if len(resources) == 0 {
		return nil
	}

	timeout := opts.timeout()
	start := time.Now()
	loadsInFlight.Inc()
	defer loadsInFlight.Dec()

	ctx, span := l.tracer.Start(ctx, "loader.Load", trace.WithAttributes(
		attribute.Int("arwes.images", len(req.Images)),
		attribute.Int("arwes.sounds", len(req.Sounds)),
		attribute.Int("arwes.videos", len(req.Videos)),
		attribute.Int64("arwes.timeout_ms", timeout.Milliseconds()),
	))
	defer span.End()

	ctx, cancel := context.WithTimeoutCause(ctx, timeout, ErrTimeout)
	defer cancel()

	var sem *semaphore.Weighted
	if opts.MaxConcurrency > 0 {
		sem = semaphore.NewWeighted(int64(opts.MaxConcurrency))
	}

	// Buffered so abandoned loads can always deliver and exit.
	results := make(chan result, len(resources))
	for _, res := range resources {
		go func() {
			results <- result{res: res, err: l.loadOne(ctx, sem, res)}
		}()
	}

	err := await(ctx, results, len(resources), opts.OnSettle)
	l.observe(span, start, len(resources), err)
	return err
}

// await collects results until all succeed or the batch fails.
func await(ctx context.Context, results <-chan result, n int, onSettle func(model.Descriptor, error)) error {
	for remaining := n; remaining > 0; remaining-- {
		select {
		case r := <-results:
			if r.err != nil && ctx.Err() != nil {
				// The load only failed because the batch context ended.
				return &LoadError{Err: context.Cause(ctx)}
			}
			if onSettle != nil {
				onSettle(r.res, r.err)
			}
			if r.err != nil {
				return &LoadError{Resource: r.res, Err: r.err}
			}
		case <-ctx.Done():
			return &LoadError{Err: context.Cause(ctx)}
		}
	}
	return nil
}

func (l *Loader) loadOne(ctx context.Context, sem *semaphore.Weighted, res model.Descriptor) (err error) {
	if sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer sem.Release(1)
	}

	fn := l.deps.For(res.Kind)
	if fn == nil {
		return fmt.Errorf("no loader for kind %q", res.Kind)
	}

	ctx, span := l.tracer.Start(ctx, "loader.load_"+string(res.Kind), trace.WithAttributes(
		attribute.String("arwes.url", res.URL),
	))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s loader panicked: %v", res.Kind, r)
		}
		outcome := outcomeSucceeded
		if err != nil {
			outcome = outcomeFailed
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		resourcesTotal.WithLabelValues(string(res.Kind), outcome).Inc()
		span.End()
	}()

	return fn(ctx, res.URL)
}

func (l *Loader) observe(span trace.Span, start time.Time, n int, err error) {
	elapsed := time.Since(start)
	outcome, reason := outcomeSucceeded, reasonNone

	var le *LoadError
	if errors.As(err, &le) {
		outcome = outcomeFailed
		switch {
		case le.TimedOut():
			reason = reasonTimeout
		case le.Resource.URL == "":
			reason = reasonCanceled
		default:
			reason = reasonResource
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
	}

	loadsTotal.WithLabelValues(outcome, reason).Inc()
	loadDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	l.logger.Debug("batch settled",
		"resources", n,
		"outcome", outcome,
		"reason", reason,
		"duration_ms", elapsed.Milliseconds(),
		"error", err,
	)
}
