package ogc

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// AcceptedVersions are the WCS versions this client speaks, most preferred first.
var AcceptedVersions = []string{"2.1.0", "2.0.1", "2.0.0"}

// DefaultVersion is asked for in GetCapabilities when the caller has no preference.
const DefaultVersion = "2.0.1"

var ErrInvalidRequest = errors.New("invalid request")

type param struct {
	key, value string
}

// query keeps parameter order and repeated keys; url.Values sorts on Encode.
type query []param

func (q query) add(k, v string) query { return append(q, param{key: k, value: v}) }

func (q query) Encode() string {
	var b strings.Builder
	for i, p := range q {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String()
}

// JoinEndpoint makes sure exactly one separator sits between endpoint and query:
// "?" when the endpoint has no query yet, "&" after existing parameters.
func JoinEndpoint(endpoint string) string {
	if !strings.Contains(endpoint, "?") {
		return endpoint + "?"
	}
	if strings.HasSuffix(endpoint, "?") || strings.HasSuffix(endpoint, "&") {
		return endpoint
	}
	return endpoint + "&"
}

func GetCapabilitiesURL(base, version string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", fmt.Errorf("%w: empty service URL", ErrInvalidRequest)
	}
	if version == "" {
		version = DefaultVersion
	}
	q := query{}.
		add("REQUEST", "GetCapabilities").
		add("SERVICE", "WCS").
		add("VERSION", version)
	return JoinEndpoint(base) + q.Encode(), nil
}

func DescribeCoverageURL(caps *Capabilities, version, coverageID string) (string, error) {
	if caps == nil {
		return "", fmt.Errorf("%w: no capabilities", ErrInvalidRequest)
	}
	return DescribeCoverageURLAt(caps.DescribeCoverageURL(), version, coverageID)
}

// DescribeCoverageURLAt builds the request against an explicit endpoint.
func DescribeCoverageURLAt(endpoint, version, coverageID string) (string, error) {
	if strings.TrimSpace(endpoint) == "" {
		return "", fmt.Errorf("%w: empty DescribeCoverage endpoint", ErrInvalidRequest)
	}
	if strings.TrimSpace(coverageID) == "" {
		return "", fmt.Errorf("%w: empty coverage id", ErrInvalidRequest)
	}
	if version == "" {
		version = DefaultVersion
	}
	q := query{}.
		add("REQUEST", "DescribeCoverage").
		add("SERVICE", "WCS").
		add("VERSION", version).
		add("COVERAGEID", coverageID)
	return JoinEndpoint(endpoint) + q.Encode(), nil
}

// NegotiateVersion returns requested when the server offers it, otherwise the first
// server version (in server order) that this client accepts.
func NegotiateVersion(requested string, serverVersions []string) (string, error) {
	if requested != "" && slices.Contains(serverVersions, requested) {
		return requested, nil
	}
	for _, v := range serverVersions {
		if slices.Contains(AcceptedVersions, v) {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: server offers %v, client accepts %v",
		ErrNoSupportedVersion, serverVersions, AcceptedVersions)
}
