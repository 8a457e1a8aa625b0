package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// ErrUnavailable wraps every failed asset check.
var ErrUnavailable = errors.New("assets: image unavailable")

// DefaultConcurrency bounds simultaneous checks per Preloader.
const DefaultConcurrency = 4

// Checker confirms that an image can be loaded.
type Checker interface {
	Check(ctx context.Context, rawURL string) error
}

// HTTPChecker checks images with a HEAD request, falling back to a one-byte
// ranged GET for servers that refuse HEAD. Relative URLs are served by the
// viewer's own origin and are not checked.
type HTTPChecker struct {
	client *http.Client
}

// NewHTTPChecker creates a checker whose requests time out after timeout.
func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPChecker{client: &http.Client{Timeout: timeout}}
}

// Check implements Checker.
func (c *HTTPChecker) Check(ctx context.Context, rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("%w: empty url", ErrUnavailable)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if !u.IsAbs() {
		return nil
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrUnavailable, u.Scheme)
	}

	status, err := c.do(ctx, http.MethodHead, rawURL)
	if err == nil && (status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) {
		status, err = c.do(ctx, http.MethodGet, rawURL)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, status)
	}
	return nil
}

func (c *HTTPChecker) do(ctx context.Context, method, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0, err
	}
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024)) //nolint:errcheck // drain for connection reuse
	return resp.StatusCode, nil
}

// Preloader runs asset checks in the background with bounded concurrency.
type Preloader struct {
	checker Checker
	sem     chan struct{}
	wg      sync.WaitGroup
}

// NewPreloader creates a preloader. A non-positive concurrency uses
// DefaultConcurrency.
func NewPreloader(checker Checker, concurrency int) *Preloader {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Preloader{
		checker: checker,
		sem:     make(chan struct{}, concurrency),
	}
}

// Preload checks rawURL in the background and calls done with the result.
// done is called exactly once, also when ctx is cancelled first.
func (p *Preloader) Preload(ctx context.Context, rawURL string, done func(error)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		select {
		case p.sem <- struct{}{}:
		case <-ctx.Done():
			done(fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err()))
			return
		}
		defer func() { <-p.sem }()

		done(p.checker.Check(ctx, rawURL))
	}()
}

// Wait blocks until every started preload has finished.
func (p *Preloader) Wait() {
	p.wg.Wait()
}
