package ogc

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// CoverageDescription is an immutable view of one coverage from a DescribeCoverage response.
type CoverageDescription struct {
	coverageID string
	crsURI     string
	bbox       [4]float64
	axisLabels [2]string
	fields     []string
}

func ParseCoverageDescriptionBytes(b []byte) (*CoverageDescription, error) {
	return ParseCoverageDescription(bytes.NewReader(b))
}

func ParseCoverageDescription(r io.Reader) (*CoverageDescription, error) {
	root, err := parseTree(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDescription, err)
	}
	if ex := exceptionFrom(root); ex != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDescription, ex)
	}

	cd := root
	if root.name != wcs("CoverageDescription") {
		cd = root.first(wcs("CoverageDescription"))
	}
	if cd == nil {
		return nil, fmt.Errorf("%w: missing wcs:CoverageDescription", ErrMalformedDescription)
	}

	env := cd.first(gml("boundedBy"), gml("Envelope"))
	if env == nil {
		return nil, fmt.Errorf("%w: missing gml:boundedBy/gml:Envelope", ErrMalformedDescription)
	}

	d := &CoverageDescription{}
	d.coverageID, _ = cd.attr(nsGML, "id")
	if id := cd.first(wcs("CoverageId")); id != nil && id.text != "" {
		d.coverageID = id.text
	}

	srs, ok := env.attr("", "srsName")
	srs = strings.TrimSpace(srs)
	if !ok || srs == "" {
		return nil, fmt.Errorf("%w: envelope has no srsName", ErrMalformedDescription)
	}
	if strings.Contains(srs, compoundCRSMarker) {
		return nil, fmt.Errorf("%w: compound CRS %s", ErrUnsupportedCoverage, srs)
	}
	d.crsURI = srs

	rawLabels, _ := env.attr("", "axisLabels")
	labels := strings.Fields(rawLabels)
	switch {
	case len(labels) > 2:
		return nil, fmt.Errorf("%w: more than two axes %v", ErrUnsupportedCoverage, labels)
	case len(labels) < 2:
		return nil, fmt.Errorf("%w: expected two axis labels, got %q", ErrMalformedDescription, rawLabels)
	}
	d.axisLabels = [2]string{labels[0], labels[1]}

	lower, err := corner(env, "lowerCorner")
	if err != nil {
		return nil, err
	}
	upper, err := corner(env, "upperCorner")
	if err != nil {
		return nil, err
	}
	d.bbox = [4]float64{lower[0], lower[1], upper[0], upper[1]}

	for _, f := range cd.findAll(gmlcov("rangeType"), swe("DataRecord"), swe("field")) {
		name, _ := f.attr("", "name")
		d.fields = append(d.fields, name)
	}
	return d, nil
}

const compoundCRSMarker = "crs-compound"

func corner(env *node, local string) ([2]float64, error) {
	n := env.first(gml(local))
	if n == nil {
		return [2]float64{}, fmt.Errorf("%w: missing gml:%s", ErrMalformedDescription, local)
	}
	parts := strings.Fields(n.text)
	if len(parts) != 2 {
		return [2]float64{}, fmt.Errorf("%w: gml:%s needs 2 coordinates, got %q", ErrMalformedDescription, local, n.text)
	}
	var out [2]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return [2]float64{}, fmt.Errorf("%w: gml:%s: %w", ErrMalformedDescription, local, err)
		}
		out[i] = v
	}
	return out, nil
}

// CoverageID is the wcs:CoverageId of the description, or the gml:id when absent.
func (d *CoverageDescription) CoverageID() string     { return d.coverageID }
func (d *CoverageDescription) BoundingBoxCRS() string { return d.crsURI }

// BoundingBox is lowerCorner then upperCorner, in the server's declared axis order.
func (d *CoverageDescription) BoundingBox() [4]float64 { return d.bbox }
func (d *CoverageDescription) AxisLabels() [2]string   { return d.axisLabels }
func (d *CoverageDescription) RangeFields() []string   { return clone(d.fields) }
