package crs

import "strconv"

// EPSG 4000-4999 is almost entirely geographic 2D, declared latitude first.
// These are the geocentric or projected exceptions in that block.
var notGeographic = map[int]struct{}{
	4087: {}, 4088: {}, // world equidistant cylindrical
	4328: {}, 4340: {}, 4465: {}, 4468: {}, 4473: {}, 4479: {},
	4481: {}, 4484: {}, 4487: {}, 4936: {}, 4978: {},
}

// projected CRSs whose first axis is northing
var northingFirst = map[int]struct{}{
	3034: {}, 3035: {}, // ETRS89 LCC / LAEA Europe
	31466: {}, 31467: {}, 31468: {}, 31469: {}, // DHDN Gauss-Krüger zones 2-5
}

func invertedRef(r Ref) bool {
	if r.Authority != "EPSG" {
		return false
	}
	code, err := strconv.Atoi(r.Code)
	if err != nil {
		return false
	}
	if _, ok := northingFirst[code]; ok {
		return true
	}
	if code >= 4000 && code < 5000 {
		_, skip := notGeographic[code]
		return !skip
	}
	return false
}
