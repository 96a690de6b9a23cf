// Package executor performs the HTTP GETs against a WCS endpoint.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mohammed-shakir/simple-wcs/internal/core/observability"
)

const errBodyLimit = 8 << 10

// Fetcher retrieves WCS documents and coverage payloads.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
	Download(ctx context.Context, rawURL string, w io.Writer) (int64, error)
}

// TransportError reports a failed request. HTTP error statuses and
// connection failures are both reported through it; StatusCode is 0
// for the latter.
type TransportError struct {
	Op         string
	URL        string
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		if e.Message != "" {
			return fmt.Sprintf("wcs %s: upstream status %d: %s", e.Op, e.StatusCode, e.Message)
		}
		return fmt.Sprintf("wcs %s: upstream status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("wcs %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type Executor struct {
	logger   *slog.Logger
	client   *http.Client
	startNow func() time.Time // for tests
}

var _ Fetcher = (*Executor)(nil)

func New(logger *slog.Logger, client *http.Client) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Executor{logger: logger, client: client, startNow: time.Now}
}

// Fetch reads the whole response body.
func (e *Executor) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	op := Operation(rawURL)
	resp, err := e.do(ctx, op, rawURL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.IncUpstreamError(op, "read")
		return nil, &TransportError{Op: op, URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}
	return b, nil
}

// Download streams the response body into w and returns the byte count.
func (e *Executor) Download(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	op := Operation(rawURL)
	resp, err := e.do(ctx, op, rawURL)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		observability.IncUpstreamError(op, "read")
		return n, &TransportError{Op: op, URL: rawURL, Err: fmt.Errorf("copy body: %w", err)}
	}
	e.logger.Debug("download done", "op", op, "bytes", n)
	return n, nil
}

func (e *Executor) do(ctx context.Context, op, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &TransportError{Op: op, URL: rawURL, Err: fmt.Errorf("build request: %w", err)}
	}

	start := e.startNow()
	resp, err := e.client.Do(req)
	dur := time.Since(start)
	observability.ObserveUpstreamLatency(op, dur.Seconds())
	if err != nil {
		cause := "connect"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			cause = "context"
		}
		observability.IncUpstreamError(op, cause)
		e.logger.Warn("wcs request failed", "op", op, "err", err, "duration", dur.String())
		return nil, &TransportError{Op: op, URL: rawURL, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
		_ = resp.Body.Close()
		observability.IncUpstreamError(op, "status")
		e.logger.Warn("wcs upstream status", "op", op, "status", resp.StatusCode, "duration", dur.String())
		return nil, &TransportError{
			Op:         op,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(b)),
			Err:        fmt.Errorf("%s", http.StatusText(resp.StatusCode)),
		}
	}

	e.logger.Debug("wcs request done", "op", op, "status", resp.StatusCode, "duration", dur.String())
	return resp, nil
}

// Operation returns the lower-cased REQUEST parameter of a WCS URL.
func Operation(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "unknown"
	}
	for k, v := range u.Query() {
		if strings.EqualFold(k, "request") && len(v) > 0 && v[0] != "" {
			return strings.ToLower(v[0])
		}
	}
	return "unknown"
}
