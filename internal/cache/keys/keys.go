// Package keys derives cache keys for fetched WCS documents.
package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const prefix = "wcs:doc"

// Document returns "wcs:doc:<kind>:<xxhash64 of the request URL>".
func Document(kind, requestURL string) string {
	kindSafe := sanitize(strings.ToLower(strings.TrimSpace(kind)))
	if kindSafe == "" {
		kindSafe = "unknown"
	}
	sum := xxhash.Sum64String(normalizeURL(requestURL))
	return fmt.Sprintf("%s:%s:%016x", prefix, kindSafe, sum)
}

// Prefix returns the key prefix shared by all documents of kind.
func Prefix(kind string) string {
	return prefix + ":" + sanitize(strings.ToLower(strings.TrimSpace(kind))) + ":"
}

// normalizeURL drops surrounding whitespace and any trailing separator so
// "…&" and "…" address the same document.
func normalizeURL(s string) string {
	s = strings.TrimSpace(s)
	return strings.TrimRight(s, "?&")
}

func sanitize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case unicode.IsSpace(r):
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-':
			out = r
		default:
			// any other rune (including non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
