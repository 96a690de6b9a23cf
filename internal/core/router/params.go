package router

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/simple-wcs/internal/core/config"
	"github.com/mohammed-shakir/simple-wcs/internal/core/model"
)

var errBadParam = errors.New("bad parameter")

// ServiceParams names the WCS endpoint a request is about.
type ServiceParams struct {
	URL     string
	Version string
}

// parseServiceParams only accepts endpoints on hosts the gateway is configured for.
func parseServiceParams(r *http.Request, cfg config.Config) (ServiceParams, error) {
	q := r.URL.Query()
	u := strings.TrimSpace(q.Get("url"))
	if u == "" {
		u = cfg.ServiceURL
	}
	if u == "" {
		return ServiceParams{}, fmt.Errorf("%w: missing required parameter: url", errBadParam)
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return ServiceParams{}, fmt.Errorf("%w: url must start with http:// or https://", errBadParam)
	}
	if !cfg.ServiceAllowed(u) {
		return ServiceParams{}, fmt.Errorf("%w: url host is not an allowed WCS endpoint", errBadParam)
	}
	v := strings.TrimSpace(q.Get("version"))
	if v == "" {
		v = cfg.Version
	}
	return ServiceParams{URL: u, Version: v}, nil
}

// parseMapView reads bbox=minx,miny,maxx,maxy[,crs] and map_crs; a CRS inside
// bbox wins over map_crs.
func parseMapView(r *http.Request, defaultCRS string) (model.MapView, error) {
	q := r.URL.Query()
	raw := strings.TrimSpace(q.Get("bbox"))
	if raw == "" {
		return model.MapView{}, fmt.Errorf("%w: missing required parameter: bbox", errBadParam)
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 4 && len(parts) != 5 {
		return model.MapView{}, fmt.Errorf("%w: bbox expects minx,miny,maxx,maxy[,crs]", errBadParam)
	}
	var v [4]float64
	for i, name := range []string{"minx", "miny", "maxx", "maxy"} {
		f, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return model.MapView{}, fmt.Errorf("%w: bbox %s: %q is not a number", errBadParam, name, parts[i])
		}
		v[i] = f
	}
	ext := model.Extent{MinX: v[0], MinY: v[1], MaxX: v[2], MaxY: v[3]}
	if ext.MaxX <= ext.MinX || ext.MaxY <= ext.MinY {
		return model.MapView{}, fmt.Errorf("%w: bbox must satisfy maxx>minx and maxy>miny", errBadParam)
	}

	crsID := strings.TrimSpace(q.Get("map_crs"))
	if len(parts) == 5 {
		crsID = strings.TrimSpace(parts[4])
	}
	if crsID == "" {
		crsID = defaultCRS
	}
	return model.MapView{Extent: ext, CRS: crsID}, nil
}
