package ogc

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedCapabilities = errors.New("malformed capabilities")
	ErrMalformedDescription  = errors.New("malformed coverage description")
	ErrUnsupportedCoverage   = errors.New("unsupported coverage")
	ErrNoSupportedVersion    = errors.New("no supported WCS version")
)

// NoCrsUriError means the map CRS has no OGC URI, so no GetCoverage request can be built.
type NoCrsUriError struct {
	CRS string
	Err error
}

func (e *NoCrsUriError) Error() string {
	return fmt.Sprintf("could not create an OGC URI for map CRS %q: %v", e.CRS, e.Err)
}

func (e *NoCrsUriError) Unwrap() error { return e.Err }

// ExceptionReport is an ows:ExceptionReport returned instead of the expected document.
type ExceptionReport struct {
	Code    string
	Locator string
	Text    string
}

func (e *ExceptionReport) Error() string {
	msg := "service exception"
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Locator != "" {
		msg += " (" + e.Locator + ")"
	}
	if e.Text != "" {
		msg += ": " + e.Text
	}
	return msg
}

func exceptionFrom(root *node) error {
	if root.name != (ows("ExceptionReport")) {
		return nil
	}
	rep := &ExceptionReport{}
	if ex := root.first(ows("Exception")); ex != nil {
		rep.Code, _ = ex.attr("", "exceptionCode")
		rep.Locator, _ = ex.attr("", "locator")
		if t := ex.first(ows("ExceptionText")); t != nil {
			rep.Text = t.text
		}
	}
	return rep
}
