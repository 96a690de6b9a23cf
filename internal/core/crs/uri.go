// Package crs maps CRS identifiers to OGC URIs, answers axis order questions and
// transforms points between the CRSs the client knows how to handle.
package crs

import (
	"strings"
)

const (
	// OpenGISPrefix is the canonical prefix every resolved URI starts with.
	OpenGISPrefix = "http://www.opengis.net/def/crs/"

	defCRSSegment  = "/def/crs/"
	openGISHost    = "http://www.opengis.net"
	compoundMarker = "crs-compound"
)

// Ref is a parsed CRS reference (authority, version, code).
type Ref struct {
	Authority string
	Version   string
	Code      string
}

// URI renders the canonical www.opengis.net form.
func (r Ref) URI() string {
	return OpenGISPrefix + r.Authority + "/" + r.Version + "/" + r.Code
}

func (r Ref) isCRS84() bool {
	return r.Authority == "OGC" && (r.Code == "CRS84" || r.Code == "84")
}

// ParseRef understands the identifier forms a host environment commonly hands out:
// EPSG:4326, CRS:84, urn:ogc:def:crs:EPSG::4326, .../def/crs/EPSG/0/4326 and the
// legacy http://www.opengis.net/gml/srs/epsg.xml#4326.
func ParseRef(id string) (Ref, error) {
	s := strings.TrimSpace(id)
	if s == "" {
		return Ref{}, &CrsConversionError{CRS: id, Reason: "empty identifier"}
	}
	if strings.Contains(s, compoundMarker) {
		return Ref{}, &CrsConversionError{CRS: id, Reason: "compound CRS are not supported"}
	}
	lower := strings.ToLower(s)

	switch {
	case lower == "crs:84" || lower == "ogc:crs84" || lower == "crs84":
		return crs84(), nil

	case strings.HasPrefix(lower, "urn:ogc:def:crs:"):
		parts := strings.Split(s[len("urn:ogc:def:crs:"):], ":")
		if len(parts) != 3 {
			return Ref{}, &CrsConversionError{CRS: id, Reason: "malformed URN"}
		}
		return newRef(parts[0], parts[1], parts[2], id)

	case strings.Contains(lower, defCRSSegment):
		i := strings.Index(lower, defCRSSegment)
		rest := strings.Trim(s[i+len(defCRSSegment):], "/")
		parts := strings.Split(rest, "/")
		if len(parts) != 3 {
			return Ref{}, &CrsConversionError{CRS: id, Reason: "expected AUTHORITY/VERSION/CODE after /def/crs/"}
		}
		return newRef(parts[0], parts[1], parts[2], id)

	case strings.Contains(lower, "/gml/srs/epsg.xml#"):
		code := s[strings.LastIndex(s, "#")+1:]
		return newRef("EPSG", "0", code, id)

	case strings.Contains(s, ":") && !strings.Contains(s, "/"):
		auth, code, _ := strings.Cut(s, ":")
		return newRef(auth, "", code, id)
	}
	return Ref{}, &CrsConversionError{CRS: id, Reason: "no OGC URI registration for this CRS"}
}

func newRef(auth, version, code, orig string) (Ref, error) {
	auth = strings.ToUpper(strings.TrimSpace(auth))
	version = strings.TrimSpace(version)
	code = strings.TrimSpace(code)
	if auth == "" || code == "" {
		return Ref{}, &CrsConversionError{CRS: orig, Reason: "missing authority or code"}
	}
	switch auth {
	case "EPSG":
		if !isDigits(code) {
			return Ref{}, &CrsConversionError{CRS: orig, Reason: "EPSG code must be numeric"}
		}
		if version == "" {
			version = "0"
		}
	case "OGC", "CRS":
		if strings.EqualFold(code, "CRS84") || code == "84" {
			return crs84(), nil
		}
		auth = "OGC"
		if version == "" {
			version = "1.3"
		}
	default:
		// USER:, IGNF: and friends have no registration at www.opengis.net
		return Ref{}, &CrsConversionError{CRS: orig, Reason: "authority " + auth + " has no OGC URI registration"}
	}
	return Ref{Authority: auth, Version: version, Code: code}, nil
}

func crs84() Ref {
	return Ref{Authority: "OGC", Version: "1.3", Code: "CRS84"}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IsCanonical reports whether uri already points at the www.opengis.net database.
func IsCanonical(uri string) bool {
	return strings.HasPrefix(uri, OpenGISPrefix)
}

// NormalizeToOpenGisAuthority rewrites URIs served under a different host or path
// prefix (rasdaman and friends publish http://host/rasdaman/def/crs/...) into the
// www.opengis.net form.
func NormalizeToOpenGisAuthority(uri string) (string, error) {
	s := strings.TrimSpace(uri)
	if IsCanonical(s) {
		return s, nil
	}
	if strings.Contains(s, compoundMarker) {
		return "", &CrsConversionError{CRS: uri, Reason: "compound CRS are not supported"}
	}
	if i := strings.Index(s, defCRSSegment); i >= 0 {
		return openGISHost + s[i:], nil
	}
	ref, err := ParseRef(s)
	if err != nil {
		return "", err
	}
	return ref.URI(), nil
}
