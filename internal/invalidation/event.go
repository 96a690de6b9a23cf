// Package invalidation describes upstream change notifications that make cached WCS documents stale.
package invalidation

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mohammed-shakir/simple-wcs/internal/core/ogc"
)

// Event announces that a coverage on a WCS endpoint was added, changed or removed.
type Event struct {
	Version    int       `json:"version"`
	Op         string    `json:"op"`
	ServiceURL string    `json:"service_url"`
	CoverageID string    `json:"coverage_id,omitempty"`
	URLs       []string  `json:"urls,omitempty"`
	TS         time.Time `json:"ts"`
	Source     string    `json:"source,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case "insert", "update", "delete":
	default:
		return fmt.Errorf("op must be insert|update|delete")
	}
	if strings.TrimSpace(e.ServiceURL) == "" {
		return fmt.Errorf("service_url is required")
	}
	if u, err := url.Parse(e.ServiceURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("service_url must be an http(s) URL")
	}
	if e.Op != "insert" && strings.TrimSpace(e.CoverageID) == "" {
		return fmt.Errorf("coverage_id is required for %s", e.Op)
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}

// StaleURLs lists the request URLs whose cached responses the event makes stale:
// GetCapabilities for every accepted version, DescribeCoverage of the touched
// coverage and any explicit URLs the producer named. DescribeCoverage URLs are
// built against the service URL and each of describeEndpoints, the endpoints
// servers advertise in their capabilities.
func (e Event) StaleURLs(describeEndpoints ...string) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(u string) {
		if u = strings.TrimSpace(u); u == "" {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}

	for _, u := range e.CapabilitiesURLs() {
		add(u)
	}
	if e.TouchesDescription() {
		for _, endpoint := range append([]string{e.ServiceURL}, describeEndpoints...) {
			for _, v := range ogc.AcceptedVersions {
				if u, err := ogc.DescribeCoverageURLAt(endpoint, v, e.CoverageID); err == nil {
					add(u)
				}
			}
		}
	}
	for _, u := range e.URLs {
		add(u)
	}
	return out
}

// TouchesDescription is true when an existing coverage changed or went away.
func (e Event) TouchesDescription() bool {
	return e.Op != "insert" && strings.TrimSpace(e.CoverageID) != ""
}

// CapabilitiesURLs are the GetCapabilities requests a session may have cached
// for the service, one per accepted version.
func (e Event) CapabilitiesURLs() []string {
	var out []string
	for _, v := range ogc.AcceptedVersions {
		if u, err := ogc.GetCapabilitiesURL(e.ServiceURL, v); err == nil {
			out = append(out, u)
		}
	}
	return out
}
