package crs

import (
	"math"

	geo "github.com/paulmach/go.geo"

	"github.com/mohammed-shakir/simple-wcs/internal/core/model"
)

// Provider is the geodesy collaborator. Implementations must be reentrant.
type Provider interface {
	OgcURI(crs string) (string, error)
	AxisInverted(uri string) (bool, error)
	Transform(p model.Point, src, dst string) (model.Point, error)
}

type family int

const (
	familyUnknown family = iota
	familyGeographic
	familyWebMercator
)

// maxMercatorLat keeps the projection finite at the poles.
const maxMercatorLat = 85.0511287798

// Builtin knows WGS84-equivalent geographic CRSs and web mercator. Anything else
// yields a CrsConversionError from Transform.
type Builtin struct{}

func (Builtin) OgcURI(id string) (string, error) {
	ref, err := ParseRef(id)
	if err != nil {
		return "", err
	}
	return ref.URI(), nil
}

func (Builtin) AxisInverted(uri string) (bool, error) {
	ref, err := ParseRef(uri)
	if err != nil {
		return false, err
	}
	return invertedRef(ref), nil
}

func (Builtin) Transform(p model.Point, src, dst string) (model.Point, error) {
	from, err := ParseRef(src)
	if err != nil {
		return model.Point{}, err
	}
	to, err := ParseRef(dst)
	if err != nil {
		return model.Point{}, err
	}
	ff, tf := familyOf(from), familyOf(to)
	if ff == familyUnknown || tf == familyUnknown {
		return model.Point{}, &CrsConversionError{CRS: src, Target: dst, Reason: "no transformation available"}
	}
	if ff == tf {
		return p, nil
	}

	gp := geo.NewPoint(p.X, p.Y)
	switch tf {
	case familyWebMercator:
		gp.SetY(math.Max(-maxMercatorLat, math.Min(maxMercatorLat, gp.Y())))
		geo.Mercator.Project(gp)
	case familyGeographic:
		geo.Mercator.Inverse(gp)
	}
	out := model.Point{X: gp.X(), Y: gp.Y()}
	if math.IsNaN(out.X) || math.IsNaN(out.Y) || math.IsInf(out.X, 0) || math.IsInf(out.Y, 0) {
		return model.Point{}, &CrsConversionError{CRS: src, Target: dst, Reason: "point outside the projection domain"}
	}
	return out, nil
}

func familyOf(r Ref) family {
	if r.isCRS84() {
		return familyGeographic
	}
	if r.Authority != "EPSG" {
		return familyUnknown
	}
	switch r.Code {
	case "4326", "4258":
		return familyGeographic
	case "3857", "900913", "3785", "102100":
		return familyWebMercator
	}
	return familyUnknown
}
