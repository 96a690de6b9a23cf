package crs

import "fmt"

// CrsConversionError reports a CRS that cannot be mapped to an OGC URI or transformed.
type CrsConversionError struct {
	CRS    string
	Target string
	Reason string
}

func (e *CrsConversionError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("cannot transform from %q to %q: %s", e.CRS, e.Target, e.Reason)
	}
	return fmt.Sprintf("cannot convert CRS %q: %s", e.CRS, e.Reason)
}
