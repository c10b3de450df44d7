package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultMaxBytes caps how much of a single resource is read.
const DefaultMaxBytes int64 = 256 << 20

var (
	// ErrHTTPStatus is returned when an HTTP fetch answers with a non-2xx status.
	ErrHTTPStatus = errors.New("unexpected http status")
	// ErrTooLarge is returned when a resource exceeds the source byte cap.
	ErrTooLarge = errors.New("resource exceeds size limit")
	// ErrIncomplete is returned when fewer bytes arrive than were announced.
	ErrIncomplete = errors.New("resource truncated")
)

// DefaultSource is used by the default loaders when no Source is supplied.
var DefaultSource = NewSource()

// Source opens resources by URL. http and https URLs go through Client;
// file URLs and bare paths are read from disk, relative paths under Root.
type Source struct {
	Client    *http.Client
	Root      string
	MaxBytes  int64
	UserAgent string
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) SourceOption {
	return func(s *Source) {
		s.Client = c
	}
}

// WithRoot sets the directory relative paths are resolved against.
func WithRoot(root string) SourceOption {
	return func(s *Source) {
		s.Root = root
	}
}

// WithMaxBytes sets the per-resource byte cap.
func WithMaxBytes(n int64) SourceOption {
	return func(s *Source) {
		s.MaxBytes = n
	}
}

// WithUserAgent sets the User-Agent header sent on HTTP fetches.
func WithUserAgent(ua string) SourceOption {
	return func(s *Source) {
		s.UserAgent = ua
	}
}

// NewSource creates a Source with an instrumented HTTP client.
func NewSource(opts ...SourceOption) *Source {
	s := &Source{
		Client:   &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Root:     ".",
		MaxBytes: DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open starts reading the resource at rawURL. The returned size is -1 when
// the length is not known in advance.
func (s *Source) Open(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, 0, fmt.Errorf("parse url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return s.openHTTP(ctx, rawURL)
	case "file":
		return s.openFile(ctx, u.Path)
	case "":
		return s.openFile(ctx, rawURL)
	default:
		return nil, 0, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
}

// ReadAll opens rawURL and reads it fully, enforcing MaxBytes and the
// announced length.
func (s *Source) ReadAll(ctx context.Context, rawURL string) ([]byte, error) {
	rc, size, err := s.Open(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	limit := s.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	if size > limit {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	if size >= 0 && int64(len(data)) < size {
		return nil, fmt.Errorf("%w: got %d of %d bytes", ErrIncomplete, len(data), size)
	}
	return data, nil
}

func (s *Source) openHTTP(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("%w: %d", ErrHTTPStatus, resp.StatusCode)
	}
	return resp.Body, resp.ContentLength, nil
}

func (s *Source) openFile(ctx context.Context, path string) (io.ReadCloser, int64, error) {
	if !filepath.IsAbs(path) && s.Root != "" {
		path = filepath.Join(s.Root, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open file: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat file: %w", err)
	}
	if fi.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("open file: %s is a directory", path)
	}
	return &ctxReader{ctx: ctx, rc: f}, fi.Size(), nil
}

// ctxReader stops a file read once its context is done.
type ctxReader struct {
	ctx context.Context
	rc  io.ReadCloser
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.rc.Read(p)
}

func (r *ctxReader) Close() error {
	return r.rc.Close()
}
