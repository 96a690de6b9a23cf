package invalidation

import (
	"slices"
	"testing"
	"time"
)

func validEvent() Event {
	return Event{
		Version:    1,
		Op:         "update",
		ServiceURL: "https://host/wcs",
		CoverageID: "dgm_1",
		TS:         time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestValidate(t *testing.T) {
	if err := validEvent().Validate(); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}

	cases := map[string]func(*Event){
		"version":     func(e *Event) { e.Version = 2 },
		"op":          func(e *Event) { e.Op = "upsert" },
		"no service":  func(e *Event) { e.ServiceURL = "" },
		"bad scheme":  func(e *Event) { e.ServiceURL = "ftp://host/wcs" },
		"no coverage": func(e *Event) { e.CoverageID = "" },
		"no ts":       func(e *Event) { e.TS = time.Time{} },
	}
	for name, mutate := range cases {
		ev := validEvent()
		mutate(&ev)
		if err := ev.Validate(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	ins := validEvent()
	ins.Op = "insert"
	ins.CoverageID = ""
	if err := ins.Validate(); err != nil {
		t.Fatalf("insert without coverage_id: %v", err)
	}
}

func TestStaleURLs(t *testing.T) {
	ev := validEvent()
	ev.URLs = []string{"https://host/wcs?REQUEST=GetCapabilities&SERVICE=WCS&VERSION=2.0.1", "https://other/x"}
	got := ev.StaleURLs()

	// 3 capabilities + 3 describe + 1 extra; the duplicate explicit URL is folded
	if len(got) != 7 {
		t.Fatalf("StaleURLs len=%d: %v", len(got), got)
	}
	for _, want := range []string{
		"https://host/wcs?REQUEST=GetCapabilities&SERVICE=WCS&VERSION=2.1.0",
		"https://host/wcs?REQUEST=DescribeCoverage&SERVICE=WCS&VERSION=2.0.0&COVERAGEID=dgm_1",
		"https://other/x",
	} {
		if !slices.Contains(got, want) {
			t.Fatalf("missing %q in %v", want, got)
		}
	}

	ev.Op = "insert"
	ev.URLs = nil
	if n := len(ev.StaleURLs()); n != 3 {
		t.Fatalf("insert: %d urls, want capabilities only", n)
	}
}

func TestStaleURLs_AdvertisedDescribeEndpoint(t *testing.T) {
	ev := validEvent()
	ev.ServiceURL = "https://host/geoserver/ows"
	got := ev.StaleURLs("https://host/geoserver/wcs?", "https://host/geoserver/ows")

	want := "https://host/geoserver/wcs?REQUEST=DescribeCoverage&SERVICE=WCS&VERSION=2.0.1&COVERAGEID=dgm_1"
	if !slices.Contains(got, want) {
		t.Fatalf("missing %q in %v", want, got)
	}
	// 3 capabilities + 3 describe per distinct endpoint
	if len(got) != 9 {
		t.Fatalf("StaleURLs len=%d: %v", len(got), got)
	}
}
