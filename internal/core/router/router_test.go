package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/simple-wcs/internal/core/config"
	"github.com/mohammed-shakir/simple-wcs/internal/core/crs"
	"github.com/mohammed-shakir/simple-wcs/internal/core/executor"
	"github.com/mohammed-shakir/simple-wcs/internal/core/ogc"
	"github.com/mohammed-shakir/simple-wcs/internal/session"
)

func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/broken":
			http.Error(w, "down", http.StatusInternalServerError)
			return
		case "/html":
			_, _ = io.WriteString(w, "<html><body>portal</body></html>")
			return
		}
		switch r.URL.Query().Get("REQUEST") {
		case "GetCapabilities":
			href := srv.URL + "/wcs?"
			_, _ = fmt.Fprintf(w, `<wcs:Capabilities xmlns:wcs="http://www.opengis.net/wcs/2.0"
    xmlns:ows="http://www.opengis.net/ows/2.0" xmlns:xlink="http://www.w3.org/1999/xlink">
  <ows:ServiceIdentification><ows:ServiceTypeVersion>2.0.1</ows:ServiceTypeVersion></ows:ServiceIdentification>
  <ows:OperationsMetadata>
    <ows:Operation name="DescribeCoverage"><ows:DCP><ows:HTTP><ows:Get xlink:href="%s"/></ows:HTTP></ows:DCP></ows:Operation>
    <ows:Operation name="GetCoverage"><ows:DCP><ows:HTTP><ows:Get xlink:href="%s"/></ows:HTTP></ows:DCP></ows:Operation>
  </ows:OperationsMetadata>
  <wcs:ServiceMetadata><wcs:formatSupported>image/tiff</wcs:formatSupported></wcs:ServiceMetadata>
  <wcs:Contents><wcs:CoverageSummary><wcs:CoverageId>dgm_1</wcs:CoverageId></wcs:CoverageSummary></wcs:Contents>
</wcs:Capabilities>`, href, href)
		case "DescribeCoverage":
			_, _ = io.WriteString(w, `<wcs:CoverageDescriptions xmlns:wcs="http://www.opengis.net/wcs/2.0" xmlns:gml="http://www.opengis.net/gml/3.2">
  <wcs:CoverageDescription gml:id="dgm_1">
    <gml:boundedBy><gml:Envelope srsName="http://www.opengis.net/def/crs/EPSG/0/4326" axisLabels="Lat Long" srsDimension="2">
      <gml:lowerCorner>52 13</gml:lowerCorner><gml:upperCorner>53 14</gml:upperCorner>
    </gml:Envelope></gml:boundedBy>
    <wcs:CoverageId>dgm_1</wcs:CoverageId>
  </wcs:CoverageDescription>
</wcs:CoverageDescriptions>`)
		default:
			http.Error(w, "unexpected", http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newRouter(t *testing.T, defaultURL string, allowed ...string) http.Handler {
	t.Helper()
	cfg := config.Defaults()
	cfg.ServiceURL = defaultURL
	cfg.AllowedServiceURLs = strings.Join(allowed, ",")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	exec := executor.New(logger, nil)
	h := New(logger, cfg, func() *session.Session { return session.New(exec, session.WithLogger(logger)) }, nil)
	r := chi.NewRouter()
	h.Mount(r)
	return r
}

func get(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s: %v (body %q)", target, err, rr.Body.String())
	}
	return rr, body
}

func TestCapabilities_UsesDefaultURL(t *testing.T) {
	up := upstream(t)
	rr, body := get(t, newRouter(t, up.URL+"/wcs"), "/capabilities")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%v", rr.Code, body)
	}
	if body["version"] != "2.0.1" || body["title"] != ogc.Unknown {
		t.Fatalf("unexpected body %v", body)
	}
	ids, _ := body["coverage_ids"].([]any)
	if len(ids) != 1 || ids[0] != "dgm_1" {
		t.Fatalf("coverage_ids=%v", body["coverage_ids"])
	}
}

func TestCoverage_IncludesFootprint(t *testing.T) {
	up := upstream(t)
	rr, body := get(t, newRouter(t, "", up.URL), "/coverages/dgm_1?url="+url.QueryEscape(up.URL+"/wcs"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%v", rr.Code, body)
	}
	fp, ok := body["footprint"].(map[string]any)
	if !ok || fp["type"] != "Feature" {
		t.Fatalf("footprint=%v", body["footprint"])
	}
	labels, _ := body["axis_labels"].([]any)
	if len(labels) != 2 || labels[0] != "Lat" {
		t.Fatalf("axis_labels=%v", body["axis_labels"])
	}
}

func TestGetCoverageURL(t *testing.T) {
	up := upstream(t)
	target := "/coverages/dgm_1/getcoverage-url?url=" + url.QueryEscape(up.URL+"/wcs") +
		"&bbox=13.1,52.1,13.2,52.2&map_crs=EPSG:4326"
	rr, body := get(t, newRouter(t, "", up.URL), target)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%v", rr.Code, body)
	}
	u, _ := body["url"].(string)
	if !strings.HasPrefix(u, up.URL+"/wcs?REQUEST=GetCoverage&SERVICE=WCS&VERSION=2.0.1&COVERAGEID=dgm_1") ||
		!strings.HasSuffix(u, "&SUBSET=Lat%2852.1%2C52.2%29&SUBSET=Long%2813.1%2C13.2%29") {
		t.Fatalf("url=%s", u)
	}
}

func TestErrorMapping_Routes(t *testing.T) {
	up := upstream(t)
	cases := []struct {
		name   string
		target string
		want   int
	}{
		{"no url", "/capabilities", http.StatusBadRequest},
		{"bad scheme", "/capabilities?url=ftp://x", http.StatusBadRequest},
		{"upstream 500", "/capabilities?url=" + url.QueryEscape(up.URL+"/broken"), http.StatusBadGateway},
		{"not capabilities", "/capabilities?url=" + url.QueryEscape(up.URL+"/html"), http.StatusUnprocessableEntity},
		{"unknown coverage", "/coverages/nope?url=" + url.QueryEscape(up.URL+"/wcs"), http.StatusNotFound},
		{"missing bbox", "/coverages/dgm_1/getcoverage-url?url=" + url.QueryEscape(up.URL+"/wcs"), http.StatusBadRequest},
		{"host not allowed", "/capabilities?url=" + url.QueryEscape("http://127.0.0.1:1/wcs"), http.StatusBadRequest},
		{"bad map crs", "/coverages/dgm_1/getcoverage-url?url=" + url.QueryEscape(up.URL+"/wcs") + "&bbox=1,2,3,4,FOO:1", http.StatusBadRequest},
	}
	h := newRouter(t, "", up.URL)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr, body := get(t, h, tc.target)
			if rr.Code != tc.want {
				t.Fatalf("status=%d want %d body=%v", rr.Code, tc.want, body)
			}
			if _, ok := body["error"]; !ok {
				t.Fatalf("missing error field: %v", body)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{session.ErrBusy, http.StatusConflict},
		{fmt.Errorf("%w: x", ogc.ErrMalformedDescription), http.StatusUnprocessableEntity},
		{ogc.ErrNoSupportedVersion, http.StatusUnprocessableEntity},
		{&ogc.NoCrsUriError{CRS: "USER:1", Err: &crs.CrsConversionError{CRS: "USER:1"}}, http.StatusBadRequest},
		{&executor.TransportError{Op: "getcapabilities", StatusCode: 404}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.err); got != tc.want {
			t.Fatalf("StatusFor(%v)=%d want %d", tc.err, got, tc.want)
		}
	}
}
