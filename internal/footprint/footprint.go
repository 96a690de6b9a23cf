// Package footprint turns a coverage description into a GeoJSON outline and the
// H3 cells it covers.
package footprint

import (
	"errors"
	"fmt"

	geojson "github.com/paulmach/go.geojson"

	"github.com/mohammed-shakir/simple-wcs/internal/core/crs"
	"github.com/mohammed-shakir/simple-wcs/internal/core/model"
	"github.com/mohammed-shakir/simple-wcs/internal/core/ogc"
)

const wgs84 = "http://www.opengis.net/def/crs/OGC/1.3/CRS84"

// ErrNoGeographicExtent means the native bbox could not be brought to lon/lat.
var ErrNoGeographicExtent = errors.New("footprint: no lon/lat extent available")

type Footprint struct {
	CoverageID string
	CRS        string
	// Native is the bounding box in CRS, X/Y order.
	Native model.Extent
	// Geographic is the lon/lat bbox; valid only when HasGeographic is true.
	Geographic    model.Extent
	HasGeographic bool
}

// FromDescription reads the envelope of desc, swapping the corners into X/Y order for
// northing-first CRSs and projecting to lon/lat when a transformation exists.
func FromDescription(desc *ogc.CoverageDescription, r *crs.Resolver) (Footprint, error) {
	if desc == nil {
		return Footprint{}, errors.New("footprint: nil coverage description")
	}
	if r == nil {
		r = crs.NewResolver(nil)
	}
	uri := desc.BoundingBoxCRS()
	if !crs.IsCanonical(uri) {
		n, err := r.NormalizeToOpenGisAuthority(uri)
		if err != nil {
			return Footprint{}, fmt.Errorf("footprint: %w", err)
		}
		uri = n
	}
	inverted, err := r.HasInvertedAxisOrder(uri)
	if err != nil {
		return Footprint{}, fmt.Errorf("footprint: %w", err)
	}

	bb := desc.BoundingBox()
	lo, hi := model.Point{X: bb[0], Y: bb[1]}, model.Point{X: bb[2], Y: bb[3]}
	if inverted {
		lo, hi = model.Point{X: bb[1], Y: bb[0]}, model.Point{X: bb[3], Y: bb[2]}
	}

	fp := Footprint{
		CoverageID: desc.CoverageID(),
		CRS:        uri,
		Native:     model.ExtentFromCorners(lo, hi),
	}
	glo, err1 := r.Transform(lo, uri, wgs84)
	ghi, err2 := r.Transform(hi, uri, wgs84)
	if err1 == nil && err2 == nil {
		fp.Geographic = model.ExtentFromCorners(glo, ghi)
		fp.HasGeographic = true
	}
	return fp, nil
}

// Feature renders the footprint as a GeoJSON polygon; lon/lat when available,
// otherwise native coordinates tagged with their CRS.
func (f Footprint) Feature() *geojson.Feature {
	ext, crsURI := f.Native, f.CRS
	if f.HasGeographic {
		ext, crsURI = f.Geographic, wgs84
	}
	feat := geojson.NewPolygonFeature(ring(ext))
	feat.BoundingBox = []float64{ext.MinX, ext.MinY, ext.MaxX, ext.MaxY}
	feat.SetProperty("coverage_id", f.CoverageID)
	feat.SetProperty("crs", crsURI)
	feat.SetProperty("native_crs", f.CRS)
	return feat
}

func (f Footprint) MarshalJSON() ([]byte, error) {
	b, err := f.Feature().MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("footprint: marshal feature: %w", err)
	}
	return b, nil
}

// Cells returns the sorted H3 cells at res covering the lon/lat footprint.
func (f Footprint) Cells(res int) ([]string, error) {
	if !f.HasGeographic {
		return nil, ErrNoGeographicExtent
	}
	return CellsForExtent(f.Geographic, res)
}

// Collection bundles several footprints into one FeatureCollection.
func Collection(fps ...Footprint) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, fp := range fps {
		fc.AddFeature(fp.Feature())
	}
	return fc
}

// ring is the closed outer ring of ext, counter-clockwise from the lower-left corner.
func ring(ext model.Extent) [][][]float64 {
	return [][][]float64{{
		{ext.MinX, ext.MinY},
		{ext.MaxX, ext.MinY},
		{ext.MaxX, ext.MaxY},
		{ext.MinX, ext.MaxY},
		{ext.MinX, ext.MinY},
	}}
}
