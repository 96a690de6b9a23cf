// Package session drives one WCS service connection: capabilities, descriptions
// and GetCoverage requests, with at most one coverage download in flight.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mohammed-shakir/simple-wcs/internal/core/crs"
	"github.com/mohammed-shakir/simple-wcs/internal/core/diag"
	"github.com/mohammed-shakir/simple-wcs/internal/core/executor"
	"github.com/mohammed-shakir/simple-wcs/internal/core/model"
	"github.com/mohammed-shakir/simple-wcs/internal/core/observability"
	"github.com/mohammed-shakir/simple-wcs/internal/core/ogc"
)

var (
	ErrBusy            = errors.New("session: a GetCoverage request is already in progress")
	ErrNotConnected    = errors.New("session: not connected to a service")
	ErrUnknownCoverage = errors.New("session: coverage not offered by service")
)

// CoverageChoice is what the user picked for a GetCoverage request. Empty
// OutputCRS and Format fall back to the coverage CRS and the first tiff format.
type CoverageChoice struct {
	CoverageID string
	OutputCRS  string
	Format     string
}

// forgetter is implemented by caching fetchers that can drop a stored document.
type forgetter interface {
	Forget(ctx context.Context, rawURL string)
}

type Session struct {
	fetcher  executor.Fetcher
	resolver *crs.Resolver
	builder  *ogc.Builder
	sink     diag.Sink
	logger   *slog.Logger

	mu      sync.RWMutex
	baseURL string
	version string
	caps    *ogc.Capabilities
	descs   map[string]*ogc.CoverageDescription

	busy atomic.Bool
}

type Option func(*Session)

func WithResolver(r *crs.Resolver) Option { return func(s *Session) { s.resolver = r } }

func WithSink(sink diag.Sink) Option { return func(s *Session) { s.sink = sink } }

func WithLogger(l *slog.Logger) Option { return func(s *Session) { s.logger = l } }

func New(fetcher executor.Fetcher, opts ...Option) *Session {
	s := &Session{
		fetcher: fetcher,
		sink:    diag.Discard,
		logger:  slog.Default(),
		descs:   make(map[string]*ogc.CoverageDescription),
	}
	for _, o := range opts {
		o(s)
	}
	if s.resolver == nil {
		s.resolver = crs.NewResolver(nil)
	}
	s.builder = ogc.NewBuilder(s.resolver, s.sink)
	return s
}

// Connect loads the capabilities of baseURL. When the server does not offer the
// requested version, the capabilities are fetched again with the negotiated one.
func (s *Session) Connect(ctx context.Context, baseURL, version string) (*ogc.Capabilities, error) {
	if version == "" {
		version = ogc.DefaultVersion
	}
	caps, err := s.fetchCapabilities(ctx, baseURL, version)
	if err != nil {
		return nil, err
	}

	negotiated, err := ogc.NegotiateVersion(version, caps.Versions())
	if err != nil {
		return nil, err
	}
	if negotiated != version {
		diag.Emit(ctx, s.sink, diag.Event{
			Kind:    diag.KindVersionFallback,
			Level:   diag.LevelWarn,
			Message: fmt.Sprintf("service does not offer WCS %s, using %s", version, negotiated),
			Fields:  map[string]any{"requested": version, "negotiated": negotiated},
		})
		if caps, err = s.fetchCapabilities(ctx, baseURL, negotiated); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.baseURL = baseURL
	s.version = negotiated
	s.caps = caps
	s.descs = make(map[string]*ogc.CoverageDescription)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "connected to WCS",
		"url", baseURL, "version", negotiated, "coverages", len(caps.CoverageIDs()))
	return caps, nil
}

func (s *Session) fetchCapabilities(ctx context.Context, baseURL, version string) (*ogc.Capabilities, error) {
	u, err := ogc.GetCapabilitiesURL(baseURL, version)
	if err != nil {
		return nil, err
	}
	b, err := s.fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	caps, err := ogc.ParseCapabilitiesBytes(b)
	observability.ObserveParse("capabilities", err)
	if err != nil {
		s.forget(ctx, u)
		return nil, err
	}
	return caps, nil
}

// Describe returns the description of coverageID, fetching it once per connection.
func (s *Session) Describe(ctx context.Context, coverageID string) (*ogc.CoverageDescription, error) {
	s.mu.RLock()
	caps, version := s.caps, s.version
	desc := s.descs[coverageID]
	s.mu.RUnlock()

	if caps == nil {
		return nil, ErrNotConnected
	}
	if desc != nil {
		return desc, nil
	}
	if !caps.HasCoverage(coverageID) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCoverage, coverageID)
	}

	u, err := ogc.DescribeCoverageURL(caps, version, coverageID)
	if err != nil {
		return nil, err
	}
	b, err := s.fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	desc, err = ogc.ParseCoverageDescriptionBytes(b)
	observability.ObserveParse("description", err)
	if err != nil {
		s.forget(ctx, u)
		return nil, err
	}

	s.mu.Lock()
	if s.caps == caps {
		s.descs[coverageID] = desc
	}
	s.mu.Unlock()
	return desc, nil
}

// PrepareGetCoverage builds the GetCoverage URL for choice and the current map view.
func (s *Session) PrepareGetCoverage(ctx context.Context, choice CoverageChoice, view model.MapView) (string, error) {
	desc, err := s.Describe(ctx, choice.CoverageID)
	if err != nil {
		return "", err
	}
	s.mu.RLock()
	caps, version := s.caps, s.version
	s.mu.RUnlock()
	if caps == nil {
		return "", ErrNotConnected
	}

	u, err := s.builder.BuildGetCoverageURL(ctx, caps, desc, ogc.GetCoverageRequest{
		Version:    version,
		CoverageID: choice.CoverageID,
		OutputCRS:  choice.OutputCRS,
		Format:     choice.Format,
		View:       view,
	})
	observability.ObserveCoverageURL(err)
	return u, err
}

// FetchCoverage downloads the coverage into w. A call made while another download
// is running returns ErrBusy without touching the network.
func (s *Session) FetchCoverage(ctx context.Context, choice CoverageChoice, view model.MapView, w io.Writer) (int64, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return 0, ErrBusy
	}
	defer s.busy.Store(false)

	u, err := s.PrepareGetCoverage(ctx, choice, view)
	if err != nil {
		return 0, err
	}
	n, err := s.fetcher.Download(ctx, u, w)
	if err != nil {
		diag.Emit(ctx, s.sink, diag.Event{
			Kind:    diag.KindFetchFailed,
			Level:   diag.LevelWarn,
			Message: "GetCoverage request failed",
			Fields:  map[string]any{"url": u, "coverage_id": choice.CoverageID, "err": err},
		})
		return n, err
	}
	diag.Emit(ctx, s.sink, diag.Event{
		Kind:    diag.KindCoverageStored,
		Level:   diag.LevelInfo,
		Message: fmt.Sprintf("coverage %s received", choice.CoverageID),
		Fields:  map[string]any{"url": u, "coverage_id": choice.CoverageID, "bytes": n},
	})
	return n, nil
}

// Busy reports whether a coverage download is in flight.
func (s *Session) Busy() bool { return s.busy.Load() }

func (s *Session) Capabilities() *ogc.Capabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caps
}

func (s *Session) Version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Session) BaseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseURL
}

func (s *Session) fetch(ctx context.Context, u string) ([]byte, error) {
	b, err := s.fetcher.Fetch(ctx, u)
	if err != nil {
		diag.Emit(ctx, s.sink, diag.Event{
			Kind:    diag.KindFetchFailed,
			Level:   diag.LevelWarn,
			Message: fmt.Sprintf("WCS %s request failed", executor.Operation(u)),
			Fields:  map[string]any{"url": u, "err": err},
		})
		return nil, err
	}
	return b, nil
}

func (s *Session) forget(ctx context.Context, u string) {
	if f, ok := s.fetcher.(forgetter); ok {
		f.Forget(ctx, u)
	}
}
