package crs

import "github.com/mohammed-shakir/simple-wcs/internal/core/model"

// Resolver is the CRS facade the request builder talks to.
type Resolver struct {
	p Provider
}

// NewResolver wraps p; a nil provider falls back to Builtin.
func NewResolver(p Provider) *Resolver {
	if p == nil {
		p = Builtin{}
	}
	return &Resolver{p: p}
}

func (r *Resolver) ToOgcURI(id string) (string, error) {
	return r.p.OgcURI(id)
}

func (r *Resolver) NormalizeToOpenGisAuthority(uri string) (string, error) {
	return NormalizeToOpenGisAuthority(uri)
}

func (r *Resolver) HasInvertedAxisOrder(id string) (bool, error) {
	return r.p.AxisInverted(id)
}

func (r *Resolver) Transform(p model.Point, src, dst string) (model.Point, error) {
	return r.p.Transform(p, src, dst)
}
