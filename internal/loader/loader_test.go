package loader_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/atnpgo/arwes/internal/loader"
	"github.com/atnpgo/arwes/internal/media"
	"github.com/atnpgo/arwes/internal/media/mediatest"
	"github.com/atnpgo/arwes/internal/model"
)

var errMock = errors.New("mock load error")

// after returns a LoadFunc that settles with err once d has elapsed, or with
// the context error if the batch ends first.
func after(d time.Duration, err error) loader.LoadFunc {
	return func(ctx context.Context, _ string) error {
		select {
		case <-time.After(d):
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// never returns a LoadFunc that only returns when the batch context ends.
func never() loader.LoadFunc {
	return func(ctx context.Context, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	}
}

func timedLoad(t *testing.T, l *loader.Loader, req model.Request, opts loader.Options) (time.Duration, error) {
	t.Helper()
	start := time.Now()
	err := l.Load(context.Background(), req, opts)
	return time.Since(start), err
}

func TestLoadSucceedsBeforeDeadline(t *testing.T) {
	l := loader.New(loader.Dependencies{LoadImage: after(50*time.Millisecond, nil)})

	elapsed, err := timedLoad(t, l, model.Request{Images: []string{"a"}}, loader.Options{Timeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if elapsed < 40*time.Millisecond || elapsed > 95*time.Millisecond {
		t.Errorf("settled after %v, want about 50ms", elapsed)
	}
}

func TestLoadTimesOut(t *testing.T) {
	l := loader.New(loader.Dependencies{LoadImage: after(200*time.Millisecond, nil)})

	elapsed, err := timedLoad(t, l, model.Request{Images: []string{"a"}}, loader.Options{Timeout: 100 * time.Millisecond})
	if !errors.Is(err, loader.ErrLoadFailed) {
		t.Fatalf("Load error = %v, want ErrLoadFailed", err)
	}
	if !errors.Is(err, loader.ErrTimeout) {
		t.Errorf("Load error = %v, want ErrTimeout cause", err)
	}

	var le *loader.LoadError
	if !errors.As(err, &le) {
		t.Fatalf("Load error %T is not *LoadError", err)
	}
	if !le.TimedOut() {
		t.Error("TimedOut() = false, want true")
	}
	if le.Resource != (model.Descriptor{}) {
		t.Errorf("Resource = %v, want zero descriptor for a deadline failure", le.Resource)
	}
	if elapsed < 90*time.Millisecond || elapsed > 180*time.Millisecond {
		t.Errorf("settled after %v, want about 100ms", elapsed)
	}
}

func TestLoadFailsOnResourceError(t *testing.T) {
	l := loader.New(loader.Dependencies{LoadSound: after(0, errMock)})

	elapsed, err := timedLoad(t, l, model.Request{Sounds: []string{"x"}}, loader.Options{})
	if !errors.Is(err, loader.ErrLoadFailed) {
		t.Fatalf("Load error = %v, want ErrLoadFailed", err)
	}
	if !errors.Is(err, errMock) {
		t.Errorf("Load error = %v, want it to wrap the resource error", err)
	}
	if errors.Is(err, loader.ErrTimeout) {
		t.Error("resource failure must not report ErrTimeout")
	}

	var le *loader.LoadError
	if errors.As(err, &le) {
		want := model.Descriptor{Kind: model.KindSound, URL: "x"}
		if le.Resource != want {
			t.Errorf("Resource = %v, want %v", le.Resource, want)
		}
	}
	if elapsed > 50*time.Millisecond {
		t.Errorf("settled after %v, want immediately", elapsed)
	}
}

func TestLoadEmptySucceedsImmediately(t *testing.T) {
	l := loader.New(loader.Dependencies{
		LoadImage: never(),
		LoadSound: never(),
		LoadVideo: never(),
	})

	for _, opts := range []loader.Options{{}, {Timeout: time.Nanosecond}, {Timeout: time.Hour}} {
		elapsed, err := timedLoad(t, l, model.Request{}, opts)
		if err != nil {
			t.Errorf("Load(empty, %v): %v", opts.Timeout, err)
		}
		if elapsed > 10*time.Millisecond {
			t.Errorf("Load(empty, %v) took %v, want immediate", opts.Timeout, elapsed)
		}
	}
}

func TestLoadMixedKindsWaitsForSlowest(t *testing.T) {
	l := loader.New(loader.Dependencies{
		LoadImage: after(10*time.Millisecond, nil),
		LoadVideo: after(40*time.Millisecond, nil),
	})

	req := model.Request{Images: []string{"a"}, Videos: []string{"v"}}
	elapsed, err := timedLoad(t, l, req, loader.Options{Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if elapsed < 35*time.Millisecond {
		t.Errorf("settled after %v, want about 40ms", elapsed)
	}
}

func TestLoadFailsAtFirstErrorNotDeadline(t *testing.T) {
	l := loader.New(loader.Dependencies{
		LoadImage: after(500*time.Millisecond, nil),
		LoadSound: after(20*time.Millisecond, errMock),
	})

	req := model.Request{Images: []string{"a"}, Sounds: []string{"s"}}
	elapsed, err := timedLoad(t, l, req, loader.Options{Timeout: time.Second})
	if !errors.Is(err, errMock) {
		t.Fatalf("Load error = %v, want errMock", err)
	}
	if elapsed > 200*time.Millisecond {
		t.Errorf("settled after %v, want about 20ms", elapsed)
	}
}

func TestLoadCancelsInFlightOnSettle(t *testing.T) {
	stopped := make(chan struct{}, 1)
	l := loader.New(loader.Dependencies{
		LoadImage: func(ctx context.Context, _ string) error {
			<-ctx.Done()
			stopped <- struct{}{}
			return ctx.Err()
		},
	})

	err := l.Load(context.Background(), model.Request{Images: []string{"a"}}, loader.Options{Timeout: 30 * time.Millisecond})
	if !errors.Is(err, loader.ErrTimeout) {
		t.Fatalf("Load error = %v, want ErrTimeout", err)
	}

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("in-flight load was not cancelled after the deadline")
	}
}

func TestLoadDoesNotWaitForUncooperativeLoader(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	l := loader.New(loader.Dependencies{
		LoadVideo: func(context.Context, string) error {
			<-release
			return nil
		},
	})

	elapsed, err := timedLoad(t, l, model.Request{Videos: []string{"v"}}, loader.Options{Timeout: 50 * time.Millisecond})
	if !errors.Is(err, loader.ErrTimeout) {
		t.Fatalf("Load error = %v, want ErrTimeout", err)
	}
	if elapsed > 150*time.Millisecond {
		t.Errorf("settled after %v, want about 50ms", elapsed)
	}
}

func TestLoadCallerCancel(t *testing.T) {
	l := loader.New(loader.Dependencies{LoadImage: never()})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := l.Load(ctx, model.Request{Images: []string{"a"}}, loader.Options{Timeout: time.Second})
	if !errors.Is(err, loader.ErrLoadFailed) || !errors.Is(err, context.Canceled) {
		t.Errorf("Load error = %v, want ErrLoadFailed wrapping context.Canceled", err)
	}
	if errors.Is(err, loader.ErrTimeout) {
		t.Error("caller cancellation must not report ErrTimeout")
	}
}

func TestLoadCallsEveryResource(t *testing.T) {
	var mu sync.Mutex
	seen := map[model.Descriptor]int{}
	record := func(kind model.Kind) loader.LoadFunc {
		return func(_ context.Context, url string) error {
			mu.Lock()
			seen[model.Descriptor{Kind: kind, URL: url}]++
			mu.Unlock()
			return nil
		}
	}
	l := loader.New(loader.Dependencies{
		LoadImage: record(model.KindImage),
		LoadSound: record(model.KindSound),
		LoadVideo: record(model.KindVideo),
	})

	req := model.Request{
		Images: []string{"i1", "i2"},
		Sounds: []string{"s1"},
		Videos: []string{"v1", "v2", "v3"},
	}
	if err := l.Load(context.Background(), req, loader.Options{}); err != nil {
		t.Fatalf("Load: %v", err)
	}

	for _, d := range req.Descriptors() {
		if seen[d] != 1 {
			t.Errorf("%v loaded %d times, want 1", d, seen[d])
		}
	}
}

func TestLoadMaxConcurrency(t *testing.T) {
	var active, peak atomic.Int32
	l := loader.New(loader.Dependencies{
		LoadImage: func(ctx context.Context, _ string) error {
			n := active.Add(1)
			defer active.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			return nil
		},
	})

	req := model.Request{Images: []string{"1", "2", "3", "4", "5", "6"}}
	if err := l.Load(context.Background(), req, loader.Options{MaxConcurrency: 2, Timeout: time.Second}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p := peak.Load(); p > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", p)
	}
}

func TestLoadMaxConcurrencyHonoursDeadline(t *testing.T) {
	l := loader.New(loader.Dependencies{LoadImage: never()})

	req := model.Request{Images: []string{"1", "2", "3"}}
	elapsed, err := timedLoad(t, l, req, loader.Options{MaxConcurrency: 1, Timeout: 40 * time.Millisecond})
	if !errors.Is(err, loader.ErrTimeout) {
		t.Fatalf("Load error = %v, want ErrTimeout", err)
	}
	if elapsed > 150*time.Millisecond {
		t.Errorf("settled after %v, want about 40ms", elapsed)
	}
}

func TestLoadOnSettle(t *testing.T) {
	l := loader.New(loader.Dependencies{
		LoadImage: after(0, nil),
		LoadSound: after(0, nil),
	})

	var settled []model.Descriptor
	opts := loader.Options{OnSettle: func(d model.Descriptor, err error) {
		if err != nil {
			t.Errorf("OnSettle(%v) err = %v", d, err)
		}
		settled = append(settled, d)
	}}
	if err := l.Load(context.Background(), model.Request{Images: []string{"a"}, Sounds: []string{"b"}}, opts); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(settled) != 2 {
		t.Errorf("OnSettle called %d times, want 2", len(settled))
	}
}

func TestLoadRecoversPanickingLoader(t *testing.T) {
	l := loader.New(loader.Dependencies{
		LoadImage: func(context.Context, string) error { panic("decoder exploded") },
	})

	err := l.Load(context.Background(), model.Request{Images: []string{"a"}}, loader.Options{})
	if !errors.Is(err, loader.ErrLoadFailed) {
		t.Errorf("Load error = %v, want ErrLoadFailed", err)
	}
}

// signalling mimics a platform primitive that may fire several terminal
// events, wired through a Completion the way the default loaders are.
func signalling(events ...error) loader.LoadFunc {
	return func(ctx context.Context, _ string) error {
		c := loader.NewCompletion()
		go func() {
			for _, ev := range events {
				if ev == nil {
					c.Resolve()
				} else {
					c.Reject(ev)
				}
			}
		}()
		return c.Wait(ctx)
	}
}

func TestLoadFirstSignalWins(t *testing.T) {
	l := loader.New(loader.Dependencies{
		LoadImage: signalling(errMock, loader.ErrAborted, nil),
		LoadSound: signalling(nil, errMock, loader.ErrAborted),
	})

	err := l.Load(context.Background(), model.Request{Images: []string{"a"}}, loader.Options{})
	if !errors.Is(err, errMock) {
		t.Errorf("error then ready: Load error = %v, want errMock", err)
	}

	if err := l.Load(context.Background(), model.Request{Sounds: []string{"s"}}, loader.Options{}); err != nil {
		t.Errorf("ready then error: Load error = %v, want nil", err)
	}
}

func TestLoadConcurrentCallsIndependent(t *testing.T) {
	l := loader.New(loader.Dependencies{
		LoadImage: after(10*time.Millisecond, nil),
		LoadSound: after(10*time.Millisecond, errMock),
	})

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := range errs {
		wg.Go(func() {
			req := model.Request{Images: []string{"a"}}
			if i%2 == 1 {
				req.Sounds = []string{"s"}
			}
			errs[i] = l.Load(context.Background(), req, loader.Options{Timeout: time.Second})
		})
	}
	wg.Wait()

	for i, err := range errs {
		if i%2 == 0 && err != nil {
			t.Errorf("call %d (images only): %v", i, err)
		}
		if i%2 == 1 && !errors.Is(err, errMock) {
			t.Errorf("call %d (with failing sound): %v, want errMock", i, err)
		}
	}
}

func TestOverrideKeepsOtherDefaults(t *testing.T) {
	ts := mediatest.Server(t)

	var imageCalls atomic.Int32
	l := loader.New(loader.Dependencies{
		LoadImage: func(context.Context, string) error {
			imageCalls.Add(1)
			return nil
		},
	}, loader.WithSource(media.NewSource()))

	deps := l.Dependencies()
	if deps.LoadSound == nil || deps.LoadVideo == nil {
		t.Fatal("overriding LoadImage cleared another default")
	}

	req := model.Request{
		Images: []string{"not-a-real-image"},
		Sounds: []string{ts.URL + "/sound.wav"},
		Videos: []string{ts.URL + "/video.mp4"},
	}
	if err := l.Load(context.Background(), req, loader.Options{Timeout: 5 * time.Second}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if imageCalls.Load() != 1 {
		t.Errorf("override called %d times, want 1", imageCalls.Load())
	}

	kinds := l.Kinds()
	want := map[model.Kind]bool{model.KindImage: true, model.KindSound: false, model.KindVideo: false}
	for _, k := range kinds {
		if k.Overridden != want[k.Kind] {
			t.Errorf("Kinds()[%s].Overridden = %v, want %v", k.Kind, k.Overridden, want[k.Kind])
		}
	}
}

func TestDefaultLoaders(t *testing.T) {
	ts := mediatest.Server(t)
	l := loader.New(loader.Dependencies{})

	ok := model.Request{
		Images: []string{ts.URL + "/image.png"},
		Sounds: []string{ts.URL + "/sound.wav"},
		Videos: []string{ts.URL + "/video.mp4", ts.URL + "/video.webm"},
	}
	if err := l.Load(context.Background(), ok, loader.Options{Timeout: 5 * time.Second}); err != nil {
		t.Fatalf("Load(valid media): %v", err)
	}

	for _, bad := range []model.Request{
		{Images: []string{ts.URL + "/missing"}},
		{Sounds: []string{ts.URL + "/garbage"}},
		{Videos: []string{ts.URL + "/image.png"}},
	} {
		err := l.Load(context.Background(), bad, loader.Options{Timeout: 5 * time.Second})
		if !errors.Is(err, loader.ErrLoadFailed) {
			t.Errorf("Load(%v) error = %v, want ErrLoadFailed", bad.Descriptors(), err)
		}
	}
}

func TestDefaultLoaderTimesOutOnSlowServer(t *testing.T) {
	ts := mediatest.Server(t)
	l := loader.New(loader.Dependencies{})

	elapsed, err := timedLoad(t, l, model.Request{Videos: []string{ts.URL + "/slow"}}, loader.Options{Timeout: 50 * time.Millisecond})
	if !errors.Is(err, loader.ErrTimeout) {
		t.Fatalf("Load error = %v, want ErrTimeout", err)
	}
	if elapsed > time.Second {
		t.Errorf("settled after %v, want about 50ms", elapsed)
	}
}

func TestPackageDefaultLoaders(t *testing.T) {
	ts := mediatest.Server(t)
	ctx := context.Background()

	if err := loader.LoadImage(ctx, ts.URL+"/image.png"); err != nil {
		t.Errorf("LoadImage: %v", err)
	}
	if err := loader.LoadSound(ctx, ts.URL+"/sound.wav"); err != nil {
		t.Errorf("LoadSound: %v", err)
	}
	if err := loader.LoadVideo(ctx, ts.URL+"/video.webm"); err != nil {
		t.Errorf("LoadVideo: %v", err)
	}
	if err := loader.LoadSound(ctx, ts.URL+"/missing"); !errors.Is(err, media.ErrHTTPStatus) {
		t.Errorf("LoadSound(/missing) = %v, want ErrHTTPStatus", err)
	}
}
