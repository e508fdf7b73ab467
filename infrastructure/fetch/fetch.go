// Package fetch downloads wasm modules named by url sources in a manifest.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/plugwire/plugwire-go/domain/entities"
)

const (
	// DefaultTimeout bounds a single download.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxModuleSize caps the number of bytes read for one module.
	DefaultMaxModuleSize = 256 * 1024 * 1024
)

// HTTPFetcher implements ports.ModuleFetcher over net/http.
type HTTPFetcher struct {
	client  *http.Client
	maxSize int64
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *HTTPFetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithMaxModuleSize caps the module size in bytes.
func WithMaxModuleSize(n int64) Option {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxSize = n
		}
	}
}

// New creates an HTTPFetcher.
func New(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client:  &http.Client{Timeout: DefaultTimeout},
		maxSize: DefaultMaxModuleSize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads src.URL with src.Method (GET by default) and src.Headers.
func (f *HTTPFetcher) Fetch(ctx context.Context, src entities.WasmSource) ([]byte, error) {
	if src.URL == "" {
		return nil, fmt.Errorf("fetch: source has no url")
	}
	method := strings.ToUpper(src.Method)
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: invalid request for %s: %w", src.URL, err)
	}
	for k, v := range src.Headers {
		req.Header.Set(k, v)
	}

	slog.DebugContext(ctx, "fetch: downloading module", "url", src.URL, "method", method)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %s: %w", src.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch: %s: unexpected status %s", src.URL, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("fetch: reading %s: %w", src.URL, err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, fmt.Errorf("fetch: %s exceeds %d bytes", src.URL, f.maxSize)
	}
	return data, nil
}
