package ogc

import (
	"context"
	"fmt"
	"strings"

	"github.com/mohammed-shakir/simple-wcs/internal/core/crs"
	"github.com/mohammed-shakir/simple-wcs/internal/core/diag"
	"github.com/mohammed-shakir/simple-wcs/internal/core/model"
)

// extentPrecision is the number of decimals kept for every subset coordinate.
const extentPrecision = 7

type GetCoverageRequest struct {
	Version    string
	CoverageID string
	OutputCRS  string
	Format     string
	View       model.MapView
}

// Builder turns parsed service documents plus the current map view into GetCoverage URLs.
// It holds no per-request state and may be shared between goroutines.
type Builder struct {
	resolver *crs.Resolver
	sink     diag.Sink
}

func NewBuilder(resolver *crs.Resolver, sink diag.Sink) *Builder {
	if resolver == nil {
		resolver = crs.NewResolver(nil)
	}
	if sink == nil {
		sink = diag.Discard
	}
	return &Builder{resolver: resolver, sink: sink}
}

func (b *Builder) BuildGetCoverageURL(ctx context.Context, caps *Capabilities, desc *CoverageDescription, req GetCoverageRequest) (string, error) {
	p, err := b.BuildParams(ctx, caps, desc, req)
	if err != nil {
		return "", err
	}
	q := query{}.
		add("REQUEST", "GetCoverage").
		add("SERVICE", "WCS").
		add("VERSION", p.Version).
		add("COVERAGEID", p.CoverageID).
		add("OUTPUTCRS", p.OutputCRS).
		add("SUBSETTINGCRS", p.SubsettingCRS).
		add("FORMAT", p.Format).
		add("SUBSET", p.Subsets[0].String()).
		add("SUBSET", p.Subsets[1].String())

	u := JoinEndpoint(caps.GetCoverageURL()) + q.Encode()
	diag.Emit(ctx, b.sink, diag.Event{
		Kind:    diag.KindRequestBuilt,
		Level:   diag.LevelInfo,
		Message: "GetCoverage request built",
		Fields: map[string]any{
			"url":            u,
			"coverage_id":    p.CoverageID,
			"subsetting_crs": p.SubsettingCRS,
			"subset_0":       p.Subsets[0].String(),
			"subset_1":       p.Subsets[1].String(),
			"extent":         p.Extent,
		},
	})
	return u, nil
}

// BuildParams resolves CRSs, projects the map extent into the coverage CRS and orders
// the subset clauses according to the coverage CRS axis order.
func (b *Builder) BuildParams(ctx context.Context, caps *Capabilities, desc *CoverageDescription, req GetCoverageRequest) (model.CoverageRequestParams, error) {
	if caps == nil || desc == nil {
		return model.CoverageRequestParams{}, fmt.Errorf("%w: capabilities and coverage description are required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.CoverageID) == "" {
		return model.CoverageRequestParams{}, fmt.Errorf("%w: empty coverage id", ErrInvalidRequest)
	}
	if !req.View.Extent.Valid() {
		return model.CoverageRequestParams{}, fmt.Errorf("%w: invalid map extent %v", ErrInvalidRequest, req.View.Extent)
	}

	mapURI, err := b.resolver.ToOgcURI(req.View.CRS)
	if err != nil {
		return model.CoverageRequestParams{}, &NoCrsUriError{CRS: req.View.CRS, Err: err}
	}

	coverageURI := desc.BoundingBoxCRS()
	if !crs.IsCanonical(coverageURI) {
		normalized, err := b.resolver.NormalizeToOpenGisAuthority(coverageURI)
		if err != nil {
			return model.CoverageRequestParams{}, err
		}
		diag.Emit(ctx, b.sink, diag.Event{
			Kind:    diag.KindCRSNormalized,
			Level:   diag.LevelWarn,
			Message: fmt.Sprintf("adjusted %s to point to the www.opengis.net database", coverageURI),
			Fields:  map[string]any{"from": coverageURI, "to": normalized},
		})
		coverageURI = normalized
	}

	ext := req.View.Extent.Rounded(extentPrecision)
	if mapURI != coverageURI {
		lo, err := b.resolver.Transform(model.Point{X: ext.MinX, Y: ext.MinY}, mapURI, coverageURI)
		if err != nil {
			return model.CoverageRequestParams{}, err
		}
		hi, err := b.resolver.Transform(model.Point{X: ext.MaxX, Y: ext.MaxY}, mapURI, coverageURI)
		if err != nil {
			return model.CoverageRequestParams{}, err
		}
		ext = model.ExtentFromCorners(lo, hi).Rounded(extentPrecision)
		diag.Emit(ctx, b.sink, diag.Event{
			Kind:    diag.KindExtentTransformed,
			Level:   diag.LevelInfo,
			Message: fmt.Sprintf("transforming extent coordinates from %s to %s", mapURI, coverageURI),
			Fields:  map[string]any{"from": mapURI, "to": coverageURI, "extent": ext.String()},
		})
	}

	inverted, err := b.resolver.HasInvertedAxisOrder(coverageURI)
	if err != nil {
		return model.CoverageRequestParams{}, err
	}
	labels := desc.AxisLabels()
	xRange := func(axis string) model.Subset { return model.Subset{Axis: axis, Low: ext.MinX, High: ext.MaxX} }
	yRange := func(axis string) model.Subset { return model.Subset{Axis: axis, Low: ext.MinY, High: ext.MaxY} }

	var subsets [2]model.Subset
	if inverted {
		// northing first, e.g. EPSG:4326 Lat/Long or Gauss-Krüger
		subsets = [2]model.Subset{yRange(labels[0]), xRange(labels[1])}
	} else {
		subsets = [2]model.Subset{xRange(labels[0]), yRange(labels[1])}
	}

	version := req.Version
	if version == "" {
		if version, err = NegotiateVersion("", caps.Versions()); err != nil {
			return model.CoverageRequestParams{}, err
		}
	}

	outputCRS := strings.TrimSpace(req.OutputCRS)
	if outputCRS == "" {
		outputCRS = coverageURI
	}
	format := strings.TrimSpace(req.Format)
	if format == "" {
		if format = firstOf(caps.TiffFormats(), caps.Formats()); format == "" {
			return model.CoverageRequestParams{}, fmt.Errorf("%w: no output format given and none advertised", ErrInvalidRequest)
		}
	}

	return model.CoverageRequestParams{
		Version:       version,
		CoverageID:    req.CoverageID,
		OutputCRS:     outputCRS,
		SubsettingCRS: coverageURI,
		Format:        format,
		Subsets:       subsets,
		Extent:        ext,
	}, nil
}

func firstOf(lists ...[]string) string {
	for _, l := range lists {
		if len(l) > 0 {
			return l[0]
		}
	}
	return ""
}
