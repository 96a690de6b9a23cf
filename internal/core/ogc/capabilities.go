package ogc

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Unknown is shown in place of optional service metadata the server did not send.
const Unknown = "Unknown, not communicated by service"

// Capabilities is an immutable view of a WCS 2.x GetCapabilities response.
type Capabilities struct {
	describeCoverageURL string
	getCoverageURL      string

	title       *string
	provider    *string
	fees        *string
	constraints *string

	versions    []string
	crss        []string
	formats     []string
	coverageIDs []string
}

// crsCandidate is one place a server may advertise its supported CRSs, relative
// to any wcs:Extension below wcs:ServiceMetadata.
type crsCandidate struct {
	name string
	path []xml.Name
}

// Tried in order; the first candidate with entries wins and results are never merged.
var crsCandidates = []crsCandidate{
	{
		name: "wcs-crs",
		path: []xml.Name{{Space: nsCRS, Local: "CrsMetadata"}, {Space: nsCRS, Local: "crsSupported"}},
	},
	{
		name: "service-extension-crs",
		path: []xml.Name{{Space: nsCRSExt, Local: "crsSupported"}},
	},
	{
		// rasdaman
		name: "service-extension-crs-metadata",
		path: []xml.Name{{Space: nsCRSExt, Local: "CrsMetadata"}, {Space: nsCRSExt, Local: "crsSupported"}},
	},
}

func ParseCapabilitiesBytes(b []byte) (*Capabilities, error) {
	return ParseCapabilities(bytes.NewReader(b))
}

func ParseCapabilities(r io.Reader) (*Capabilities, error) {
	root, err := parseTree(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCapabilities, err)
	}
	if ex := exceptionFrom(root); ex != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCapabilities, ex)
	}

	ident := root.first(ows("ServiceIdentification"))
	if ident == nil {
		return nil, fmt.Errorf("%w: missing ows:ServiceIdentification", ErrMalformedCapabilities)
	}
	contents := root.first(wcs("Contents"))
	if contents == nil {
		return nil, fmt.Errorf("%w: missing wcs:Contents", ErrMalformedCapabilities)
	}

	c := &Capabilities{}
	if c.describeCoverageURL, err = operationGetHref(root, "DescribeCoverage"); err != nil {
		return nil, err
	}
	if c.getCoverageURL, err = operationGetHref(root, "GetCoverage"); err != nil {
		return nil, err
	}

	c.title = optionalText(ident, ows("Title"))
	c.fees = optionalText(ident, ows("Fees"))
	c.constraints = optionalText(ident, ows("AccessConstraints"))
	if sp := root.first(ows("ServiceProvider")); sp != nil {
		c.provider = optionalText(sp, ows("ProviderName"))
	}

	c.versions = texts(ident.descendants(ows("ServiceTypeVersion")))

	if sm := root.first(wcs("ServiceMetadata")); sm != nil {
		c.crss = discoverCRSs(sm)
		c.formats = texts(sm.descendants(wcs("formatSupported")))
	}

	c.coverageIDs = texts(contents.findAll(wcs("CoverageSummary"), wcs("CoverageId")))
	return c, nil
}

func operationGetHref(root *node, operation string) (string, error) {
	for _, op := range root.all(ows("OperationsMetadata"), ows("Operation")) {
		if name, _ := op.attr("", "name"); name != operation {
			continue
		}
		get := op.first(ows("DCP"), ows("HTTP"), ows("Get"))
		if get == nil {
			break
		}
		href, ok := get.attr(nsXLink, "href")
		if !ok || strings.TrimSpace(href) == "" {
			break
		}
		return strings.TrimSpace(href), nil
	}
	return "", fmt.Errorf("%w: no HTTP GET endpoint for %s", ErrMalformedCapabilities, operation)
}

func discoverCRSs(serviceMetadata *node) []string {
	for _, cand := range crsCandidates {
		found := texts(serviceMetadata.findAll(wcs("Extension"), cand.path...))
		if len(found) > 0 {
			return found
		}
	}
	return nil
}

func optionalText(parent *node, name xml.Name) *string {
	n := parent.first(name)
	if n == nil || n.text == "" {
		return nil
	}
	s := n.text
	return &s
}

func deref(p *string) (string, bool) {
	if p == nil {
		return "", false
	}
	return *p, true
}

func (c *Capabilities) DescribeCoverageURL() string { return c.describeCoverageURL }
func (c *Capabilities) GetCoverageURL() string      { return c.getCoverageURL }

func (c *Capabilities) Title() (string, bool)       { return deref(c.title) }
func (c *Capabilities) Provider() (string, bool)    { return deref(c.provider) }
func (c *Capabilities) Fees() (string, bool)        { return deref(c.fees) }
func (c *Capabilities) Constraints() (string, bool) { return deref(c.constraints) }

func (c *Capabilities) Versions() []string    { return clone(c.versions) }
func (c *Capabilities) CRSs() []string        { return clone(c.crss) }
func (c *Capabilities) Formats() []string     { return clone(c.formats) }
func (c *Capabilities) CoverageIDs() []string { return clone(c.coverageIDs) }

// TiffFormats keeps the formats that deliver GeoTIFF.
func (c *Capabilities) TiffFormats() []string {
	var out []string
	for _, f := range c.formats {
		if strings.Contains(strings.ToLower(f), "tiff") {
			out = append(out, f)
		}
	}
	return out
}

func (c *Capabilities) HasCoverage(id string) bool {
	for _, cid := range c.coverageIDs {
		if cid == id {
			return true
		}
	}
	return false
}

// OrUnknown turns an optional accessor result into display text.
func OrUnknown(s string, ok bool) string {
	if !ok {
		return Unknown
	}
	return s
}

func clone(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
