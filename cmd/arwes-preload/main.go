// arwes-preload loads a batch of images, sounds and videos and reports
// whether every one of them became ready before the deadline.
//
// Usage:
//
//	arwes-preload [flags] [url...]
//
// Positional URLs are classified by extension. With -manifest the batch is
// read from a TOML file, and with -watch it is reloaded and run again every
// time that file changes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/atnpgo/arwes/internal/config"
	"github.com/atnpgo/arwes/internal/loader"
	"github.com/atnpgo/arwes/internal/manifest"
	"github.com/atnpgo/arwes/internal/media"
	"github.com/atnpgo/arwes/internal/model"
)

const (
	exitOK      = 0
	exitFailed  = 1
	exitUsage   = 2
	programName = "arwes-preload"
)

var errUsage = errors.New("usage error")

type options struct {
	manifest    string
	root        string
	timeout     time.Duration
	concurrency int
	watch       bool
	logFormat   string
	logLevel    string

	timeoutSet     bool
	concurrencySet bool
	urls           []string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet(programName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [flags] [url...]\n\nFlags:\n", programName)
		fs.PrintDefaults()
	}

	opts := &options{}
	fs.StringVar(&opts.manifest, "manifest", "", "TOML manifest listing the resources to preload")
	fs.StringVar(&opts.root, "root", "", "directory relative paths resolve against (default: manifest directory, else .)")
	fs.DurationVar(&opts.timeout, "timeout", loader.DefaultTimeout, "deadline for the whole batch")
	fs.IntVar(&opts.concurrency, "concurrency", 0, "maximum resources loading at once (0 = unlimited)")
	fs.BoolVar(&opts.watch, "watch", false, "re-run whenever the manifest changes")
	fs.StringVar(&opts.logFormat, "log-format", config.FormatText, "log format: text or json")
	fs.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")

	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "timeout":
			opts.timeoutSet = true
		case "concurrency":
			opts.concurrencySet = true
		}
	})
	opts.urls = fs.Args()

	switch {
	case opts.manifest == "" && len(opts.urls) == 0:
		fs.Usage()
		return nil, fmt.Errorf("%w: nothing to preload", errUsage)
	case opts.watch && opts.manifest == "":
		return nil, fmt.Errorf("%w: -watch requires -manifest", errUsage)
	case opts.timeout < 0:
		return nil, fmt.Errorf("%w: -timeout must not be negative", errUsage)
	case opts.concurrency < 0:
		return nil, fmt.Errorf("%w: -concurrency must not be negative", errUsage)
	case opts.logFormat != config.FormatText && opts.logFormat != config.FormatJSON:
		return nil, fmt.Errorf("%w: unknown -log-format %q", errUsage, opts.logFormat)
	}
	if opts.root == "" {
		opts.root = "."
		if opts.manifest != "" {
			opts.root = filepath.Dir(opts.manifest)
		}
	}
	return opts, nil
}

// batch merges the manifest (if any) with the positional URLs and applies
// flag overrides to the manifest options.
func (o *options) batch(m *manifest.Manifest) (model.Request, loader.Options, error) {
	var req model.Request
	var lo loader.Options
	if m != nil {
		req = m.Request()
		lo = m.Options()
	}
	for _, u := range o.urls {
		kind, ok := model.KindFromURL(u)
		if !ok {
			return req, lo, fmt.Errorf("%w: cannot tell the kind of %q from its extension", errUsage, u)
		}
		if err := req.Add(kind, u); err != nil {
			return req, lo, fmt.Errorf("%w: %v", errUsage, err)
		}
	}
	if o.timeoutSet || lo.Timeout == 0 {
		lo.Timeout = o.timeout
	}
	if o.concurrencySet {
		lo.MaxConcurrency = o.concurrency
	}
	return req, lo, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "%s: %v\n", programName, err)
		}
		return exitUsage
	}

	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(opts.logLevel)); err != nil {
		fmt.Fprintf(stderr, "%s: %v: unknown -log-level %q\n", programName, errUsage, opts.logLevel)
		return exitUsage
	}
	logger := config.NewLogger(stderr, level, opts.logFormat)

	p := &preloader{
		opts:   opts,
		logger: logger,
		stdout: stdout,
		loader: loader.New(loader.Dependencies{},
			loader.WithSource(media.NewSource(media.WithRoot(opts.root))),
			loader.WithLogger(logger),
		),
	}

	m, err := p.loadManifest()
	if err != nil {
		logger.Error("invalid manifest", "path", opts.manifest, "error", err)
		return exitFailed
	}
	code := p.runOnce(ctx, m)
	if !opts.watch {
		return code
	}

	logger.Info("watching manifest", "path", opts.manifest)
	err = manifest.Watch(ctx, opts.manifest, func(m *manifest.Manifest, err error) {
		if err != nil {
			logger.Error("manifest changed but could not be loaded", "path", opts.manifest, "error", err)
			return
		}
		logger.Info("manifest changed", "path", opts.manifest)
		p.runOnce(ctx, m)
	})
	if err != nil {
		logger.Error("watch manifest", "error", err)
		return exitFailed
	}
	return exitOK
}

type preloader struct {
	opts   *options
	logger *slog.Logger
	stdout io.Writer
	loader *loader.Loader
}

func (p *preloader) loadManifest() (*manifest.Manifest, error) {
	if p.opts.manifest == "" {
		return nil, nil
	}
	return manifest.Load(p.opts.manifest)
}

// runOnce loads one batch and prints its outcome.
func (p *preloader) runOnce(ctx context.Context, m *manifest.Manifest) int {
	req, lo, err := p.opts.batch(m)
	if err != nil {
		p.logger.Error("invalid batch", "error", err)
		return exitUsage
	}
	lo.OnSettle = func(res model.Descriptor, err error) {
		if err != nil {
			p.logger.Warn("resource failed", "kind", res.Kind, "url", res.URL, "error", err)
			return
		}
		p.logger.Debug("resource ready", "kind", res.Kind, "url", res.URL)
	}

	start := time.Now()
	err = p.loader.Load(ctx, req, lo)
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		fmt.Fprintf(p.stdout, "FAIL %d resources in %v: %v\n", req.Len(), elapsed, err)
		return exitFailed
	}
	fmt.Fprintf(p.stdout, "OK %d resources in %v\n", req.Len(), elapsed)
	return exitOK
}
