package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mohammed-shakir/simple-wcs/internal/core/diag"
	"github.com/mohammed-shakir/simple-wcs/internal/core/diag/diagtest"
	"github.com/mohammed-shakir/simple-wcs/internal/core/executor"
	"github.com/mohammed-shakir/simple-wcs/internal/core/model"
	"github.com/mohammed-shakir/simple-wcs/internal/core/ogc"
)

type fakeWCS struct {
	t        *testing.T
	srv      *httptest.Server
	versions []string
	describe string
	gate     chan struct{} // when set, GetCoverage blocks until closed
	started  chan struct{}

	mu       sync.Mutex
	requests []string
}

func newFakeWCS(t *testing.T, versions ...string) *fakeWCS {
	t.Helper()
	f := &fakeWCS{t: t, versions: versions, describe: describeDoc("http://www.opengis.net/def/crs/EPSG/0/4326", "Lat Long")}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeWCS) serve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f.mu.Lock()
	f.requests = append(f.requests, q.Get("REQUEST")+" "+q.Get("VERSION"))
	f.mu.Unlock()

	switch q.Get("REQUEST") {
	case "GetCapabilities":
		_, _ = io.WriteString(w, f.capabilities())
	case "DescribeCoverage":
		if q.Get("COVERAGEID") != "dgm_1" {
			http.Error(w, "no such coverage", http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, f.describe)
	case "GetCoverage":
		if f.started != nil {
			f.started <- struct{}{}
		}
		if f.gate != nil {
			<-f.gate
		}
		w.Header().Set("Content-Type", "image/tiff")
		_, _ = w.Write([]byte("II*\x00coverage"))
	default:
		http.Error(w, "bad request", http.StatusBadRequest)
	}
}

func (f *fakeWCS) requestLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *fakeWCS) capabilities() string {
	var v strings.Builder
	for _, s := range f.versions {
		v.WriteString("<ows:ServiceTypeVersion>" + s + "</ows:ServiceTypeVersion>")
	}
	href := f.srv.URL + "/wcs?"
	return fmt.Sprintf(`<wcs:Capabilities xmlns:wcs="http://www.opengis.net/wcs/2.0"
    xmlns:ows="http://www.opengis.net/ows/2.0" xmlns:xlink="http://www.w3.org/1999/xlink">
  <ows:ServiceIdentification><ows:Title>Test</ows:Title>%s</ows:ServiceIdentification>
  <ows:OperationsMetadata>
    <ows:Operation name="DescribeCoverage"><ows:DCP><ows:HTTP><ows:Get xlink:href="%s"/></ows:HTTP></ows:DCP></ows:Operation>
    <ows:Operation name="GetCoverage"><ows:DCP><ows:HTTP><ows:Get xlink:href="%s"/></ows:HTTP></ows:DCP></ows:Operation>
  </ows:OperationsMetadata>
  <wcs:ServiceMetadata><wcs:formatSupported>image/png</wcs:formatSupported><wcs:formatSupported>image/tiff</wcs:formatSupported></wcs:ServiceMetadata>
  <wcs:Contents><wcs:CoverageSummary><wcs:CoverageId>dgm_1</wcs:CoverageId></wcs:CoverageSummary>
  <wcs:CoverageSummary><wcs:CoverageId>dgm_2</wcs:CoverageId></wcs:CoverageSummary></wcs:Contents>
</wcs:Capabilities>`, v.String(), href, href)
}

func describeDoc(srs, labels string) string {
	return `<wcs:CoverageDescriptions xmlns:wcs="http://www.opengis.net/wcs/2.0" xmlns:gml="http://www.opengis.net/gml/3.2">
  <wcs:CoverageDescription gml:id="dgm_1">
    <gml:boundedBy><gml:Envelope srsName="` + srs + `" axisLabels="` + labels + `" srsDimension="2">
      <gml:lowerCorner>50 10</gml:lowerCorner><gml:upperCorner>54 15</gml:upperCorner>
    </gml:Envelope></gml:boundedBy>
    <wcs:CoverageId>dgm_1</wcs:CoverageId>
  </wcs:CoverageDescription>
</wcs:CoverageDescriptions>`
}

var view = model.MapView{
	Extent: model.Extent{MinX: 12, MinY: 51, MaxX: 13, MaxY: 52},
	CRS:    "EPSG:4326",
}

func TestConnect_UsesRequestedVersionWhenOffered(t *testing.T) {
	wcs := newFakeWCS(t, "2.0.0", "2.0.1")
	s := New(executor.New(nil, nil))

	caps, err := s.Connect(context.Background(), wcs.srv.URL+"/wcs", "")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if s.Version() != "2.0.1" || caps != s.Capabilities() {
		t.Fatalf("version=%q", s.Version())
	}
	if got := wcs.requestLog(); len(got) != 1 || got[0] != "GetCapabilities 2.0.1" {
		t.Fatalf("requests=%v", got)
	}
}

func TestConnect_FallsBackToNegotiatedVersion(t *testing.T) {
	wcs := newFakeWCS(t, "1.0.0", "2.0.0")
	rec := &diagtest.Recorder{}
	s := New(executor.New(nil, nil), WithSink(rec))

	if _, err := s.Connect(context.Background(), wcs.srv.URL+"/wcs", "2.0.1"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if s.Version() != "2.0.0" {
		t.Fatalf("version=%q want 2.0.0", s.Version())
	}
	if !rec.Has(diag.KindVersionFallback) {
		t.Fatal("expected version_fallback event")
	}
	got := wcs.requestLog()
	if len(got) != 2 || got[1] != "GetCapabilities 2.0.0" {
		t.Fatalf("requests=%v", got)
	}
}

func TestConnect_NoSupportedVersion(t *testing.T) {
	wcs := newFakeWCS(t, "1.0.0", "1.1.1")
	s := New(executor.New(nil, nil))
	_, err := s.Connect(context.Background(), wcs.srv.URL, "")
	if !errors.Is(err, ogc.ErrNoSupportedVersion) {
		t.Fatalf("err=%v want ErrNoSupportedVersion", err)
	}
	if s.Capabilities() != nil {
		t.Fatal("failed connect must not store capabilities")
	}
}

func TestConnect_TransportErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rec := &diagtest.Recorder{}
	s := New(executor.New(nil, nil), WithSink(rec))
	_, err := s.Connect(context.Background(), srv.URL, "")
	var te *executor.TransportError
	if !errors.As(err, &te) || te.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("err=%v want TransportError 503", err)
	}
	if !rec.Has(diag.KindFetchFailed) {
		t.Fatal("expected fetch_failed event")
	}
}

func TestDescribe(t *testing.T) {
	wcs := newFakeWCS(t, "2.0.1")
	s := New(executor.New(nil, nil))

	if _, err := s.Describe(context.Background(), "dgm_1"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err=%v want ErrNotConnected", err)
	}
	if _, err := s.Connect(context.Background(), wcs.srv.URL+"/wcs", ""); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := s.Describe(context.Background(), "nope"); !errors.Is(err, ErrUnknownCoverage) {
		t.Fatalf("err=%v want ErrUnknownCoverage", err)
	}

	d1, err := s.Describe(context.Background(), "dgm_1")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	d2, _ := s.Describe(context.Background(), "dgm_1")
	if d1 != d2 {
		t.Fatal("description should be reused within a connection")
	}
	n := 0
	for _, r := range wcs.requestLog() {
		if strings.HasPrefix(r, "DescribeCoverage") {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("DescribeCoverage requests=%d want 1", n)
	}
}

func TestDescribe_UnsupportedCoverage(t *testing.T) {
	wcs := newFakeWCS(t, "2.0.1")
	wcs.describe = describeDoc("http://www.opengis.net/def/crs-compound?1=a&amp;2=b", "Lat Long")
	s := New(executor.New(nil, nil))
	if _, err := s.Connect(context.Background(), wcs.srv.URL, ""); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := s.Describe(context.Background(), "dgm_1"); !errors.Is(err, ogc.ErrUnsupportedCoverage) {
		t.Fatalf("err=%v want ErrUnsupportedCoverage", err)
	}
}

func TestPrepareGetCoverage(t *testing.T) {
	wcs := newFakeWCS(t, "2.0.1")
	rec := &diagtest.Recorder{}
	s := New(executor.New(nil, nil), WithSink(rec))
	if _, err := s.Connect(context.Background(), wcs.srv.URL+"/wcs", ""); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	u, err := s.PrepareGetCoverage(context.Background(), CoverageChoice{CoverageID: "dgm_1"}, view)
	if err != nil {
		t.Fatalf("PrepareGetCoverage: %v", err)
	}
	want := wcs.srv.URL + "/wcs?REQUEST=GetCoverage&SERVICE=WCS&VERSION=2.0.1&COVERAGEID=dgm_1" +
		"&OUTPUTCRS=http%3A%2F%2Fwww.opengis.net%2Fdef%2Fcrs%2FEPSG%2F0%2F4326" +
		"&SUBSETTINGCRS=http%3A%2F%2Fwww.opengis.net%2Fdef%2Fcrs%2FEPSG%2F0%2F4326" +
		"&FORMAT=image%2Ftiff&SUBSET=Lat%2851%2C52%29&SUBSET=Long%2812%2C13%29"
	if u != want {
		t.Fatalf("url\n got %s\nwant %s", u, want)
	}
	if !rec.Has(diag.KindRequestBuilt) {
		t.Fatal("expected request_built event")
	}

	var nc *ogc.NoCrsUriError
	_, err = s.PrepareGetCoverage(context.Background(), CoverageChoice{CoverageID: "dgm_1"},
		model.MapView{Extent: view.Extent, CRS: "USER:100001"})
	if !errors.As(err, &nc) {
		t.Fatalf("err=%v want NoCrsUriError", err)
	}
}

func TestFetchCoverage_WritesAndEmits(t *testing.T) {
	wcs := newFakeWCS(t, "2.0.1")
	rec := &diagtest.Recorder{}
	s := New(executor.New(nil, nil), WithSink(rec))
	if _, err := s.Connect(context.Background(), wcs.srv.URL, ""); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	var buf bytes.Buffer
	n, err := s.FetchCoverage(context.Background(), CoverageChoice{CoverageID: "dgm_1"}, view, &buf)
	if err != nil {
		t.Fatalf("FetchCoverage: %v", err)
	}
	if n != int64(buf.Len()) || !strings.HasPrefix(buf.String(), "II*") {
		t.Fatalf("n=%d body=%q", n, buf.String())
	}
	if !rec.Has(diag.KindCoverageStored) || s.Busy() {
		t.Fatal("expected coverage_stored and an idle session")
	}
}

func TestFetchCoverage_SecondConcurrentCallIsBusy(t *testing.T) {
	wcs := newFakeWCS(t, "2.0.1")
	wcs.gate = make(chan struct{})
	wcs.started = make(chan struct{}, 1)
	s := New(executor.New(nil, nil))
	if _, err := s.Connect(context.Background(), wcs.srv.URL, ""); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.FetchCoverage(context.Background(), CoverageChoice{CoverageID: "dgm_1"}, view, io.Discard)
		done <- err
	}()
	<-wcs.started

	if _, err := s.FetchCoverage(context.Background(), CoverageChoice{CoverageID: "dgm_1"}, view, io.Discard); !errors.Is(err, ErrBusy) {
		t.Fatalf("err=%v want ErrBusy", err)
	}
	close(wcs.gate)
	if err := <-done; err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if s.Busy() {
		t.Fatal("session should be idle after the download")
	}
}

type forgettingFetcher struct {
	executor.Fetcher
	forgotten []string
}

func (f *forgettingFetcher) Forget(_ context.Context, u string) { f.forgotten = append(f.forgotten, u) }

func TestConnect_ForgetsDocumentsThatFailToParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "<html>login required</html>")
	}))
	defer srv.Close()

	f := &forgettingFetcher{Fetcher: executor.New(nil, nil)}
	s := New(f)
	_, err := s.Connect(context.Background(), srv.URL, "")
	if !errors.Is(err, ogc.ErrMalformedCapabilities) {
		t.Fatalf("err=%v want ErrMalformedCapabilities", err)
	}
	if len(f.forgotten) != 1 || !strings.Contains(f.forgotten[0], "REQUEST=GetCapabilities") {
		t.Fatalf("forgotten=%v", f.forgotten)
	}
}
