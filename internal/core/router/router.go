// Package router exposes the WCS client operations over HTTP.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/simple-wcs/internal/core/config"
	"github.com/mohammed-shakir/simple-wcs/internal/core/crs"
	"github.com/mohammed-shakir/simple-wcs/internal/core/executor"
	"github.com/mohammed-shakir/simple-wcs/internal/core/observability"
	"github.com/mohammed-shakir/simple-wcs/internal/core/ogc"
	"github.com/mohammed-shakir/simple-wcs/internal/footprint"
	"github.com/mohammed-shakir/simple-wcs/internal/logger"
	"github.com/mohammed-shakir/simple-wcs/internal/session"
)

// SessionFactory returns a fresh, unconnected session for one request.
type SessionFactory func() *session.Session

type Handlers struct {
	logger     *slog.Logger
	cfg        config.Config
	newSession SessionFactory
	resolver   *crs.Resolver
}

func New(logger *slog.Logger, cfg config.Config, newSession SessionFactory, resolver *crs.Resolver) *Handlers {
	if resolver == nil {
		resolver = crs.NewResolver(nil)
	}
	return &Handlers{logger: logger, cfg: cfg, newSession: newSession, resolver: resolver}
}

// Mount registers the WCS routes on r.
func (h *Handlers) Mount(r chi.Router) {
	r.Get("/capabilities", observe("/capabilities", h.Capabilities))
	r.Get("/coverages/{id}", observe("/coverages/{id}", h.Coverage))
	r.Get("/coverages/{id}/getcoverage-url", observe("/coverages/{id}/getcoverage-url", h.GetCoverageURL))
}

type capabilitiesResponse struct {
	URL                 string   `json:"url"`
	Version             string   `json:"version"`
	Title               string   `json:"title"`
	Provider            string   `json:"provider"`
	Fees                string   `json:"fees"`
	Constraints         string   `json:"constraints"`
	Versions            []string `json:"versions"`
	CRS                 []string `json:"crs"`
	Formats             []string `json:"formats"`
	TiffFormats         []string `json:"tiff_formats"`
	CoverageIDs         []string `json:"coverage_ids"`
	DescribeCoverageURL string   `json:"describe_coverage_url"`
	GetCoverageURL      string   `json:"get_coverage_url"`
}

func (h *Handlers) Capabilities(w http.ResponseWriter, r *http.Request) {
	sp, err := parseServiceParams(r, h.cfg)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	ctx := logger.WithServiceURL(r.Context(), sp.URL)
	s := h.newSession()
	caps, err := s.Connect(ctx, sp.URL, sp.Version)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, capabilitiesResponse{
		URL:                 sp.URL,
		Version:             s.Version(),
		Title:               ogc.OrUnknown(caps.Title()),
		Provider:            ogc.OrUnknown(caps.Provider()),
		Fees:                ogc.OrUnknown(caps.Fees()),
		Constraints:         ogc.OrUnknown(caps.Constraints()),
		Versions:            caps.Versions(),
		CRS:                 caps.CRSs(),
		Formats:             caps.Formats(),
		TiffFormats:         caps.TiffFormats(),
		CoverageIDs:         caps.CoverageIDs(),
		DescribeCoverageURL: caps.DescribeCoverageURL(),
		GetCoverageURL:      caps.GetCoverageURL(),
	})
}

type coverageResponse struct {
	CoverageID  string          `json:"coverage_id"`
	CRS         string          `json:"crs"`
	BoundingBox [4]float64      `json:"bbox"`
	AxisLabels  [2]string       `json:"axis_labels"`
	RangeFields []string        `json:"range_fields"`
	Footprint   json.RawMessage `json:"footprint,omitempty"`
}

func (h *Handlers) Coverage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, ctx, ok := h.connect(w, r, id)
	if !ok {
		return
	}
	desc, err := s.Describe(ctx, id)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	out := coverageResponse{
		CoverageID:  desc.CoverageID(),
		CRS:         desc.BoundingBoxCRS(),
		BoundingBox: desc.BoundingBox(),
		AxisLabels:  desc.AxisLabels(),
		RangeFields: desc.RangeFields(),
	}
	if fp, err := footprint.FromDescription(desc, h.resolver); err == nil {
		if b, err := fp.MarshalJSON(); err == nil {
			out.Footprint = b
		}
	} else {
		h.logger.DebugContext(ctx, "no footprint", "err", err)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) GetCoverageURL(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view, err := parseMapView(r, h.cfg.MapCRS)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	s, ctx, ok := h.connect(w, r, id)
	if !ok {
		return
	}
	q := r.URL.Query()
	u, err := s.PrepareGetCoverage(ctx, session.CoverageChoice{
		CoverageID: id,
		OutputCRS:  strings.TrimSpace(q.Get("output_crs")),
		Format:     strings.TrimSpace(q.Get("format")),
	}, view)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"coverage_id": id, "url": u})
}

func (h *Handlers) connect(w http.ResponseWriter, r *http.Request, coverageID string) (*session.Session, context.Context, bool) {
	sp, err := parseServiceParams(r, h.cfg)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return nil, nil, false
	}
	ctx := logger.WithCoverageID(logger.WithServiceURL(r.Context(), sp.URL), coverageID)
	s := h.newSession()
	if _, err := s.Connect(ctx, sp.URL, sp.Version); err != nil {
		h.writeError(ctx, w, err)
		return nil, nil, false
	}
	return s, ctx, true
}

// StatusFor maps client errors onto HTTP statuses.
func StatusFor(err error) int {
	var (
		te  *executor.TransportError
		nc  *ogc.NoCrsUriError
		cce *crs.CrsConversionError
	)
	switch {
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, session.ErrUnknownCoverage):
		return http.StatusNotFound
	case errors.Is(err, ogc.ErrMalformedCapabilities),
		errors.Is(err, ogc.ErrMalformedDescription),
		errors.Is(err, ogc.ErrUnsupportedCoverage),
		errors.Is(err, ogc.ErrNoSupportedVersion):
		return http.StatusUnprocessableEntity
	case errors.As(err, &te):
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case errors.As(err, &nc), errors.As(err, &cce),
		errors.Is(err, ogc.ErrInvalidRequest), errors.Is(err, errBadParam):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	code := StatusFor(err)
	lvl := slog.LevelInfo
	if code >= http.StatusInternalServerError {
		lvl = slog.LevelWarn
	}
	h.logger.Log(ctx, lvl, "request failed", "status", code, "err", err)
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func observe(route string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		fn(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}
