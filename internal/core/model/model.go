// Package model defines core domain types shared across the client.
package model

import (
	"fmt"
	"math"
	"strconv"
)

// Point in x=easting/longitude, y=northing/latitude order regardless of CRS axis order.
type Point struct {
	X, Y float64
}

type Extent struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// ExtentFromCorners sorts two arbitrary corners into an extent.
func ExtentFromCorners(a, b Point) Extent {
	return Extent{
		MinX: math.Min(a.X, b.X),
		MinY: math.Min(a.Y, b.Y),
		MaxX: math.Max(a.X, b.X),
		MaxY: math.Max(a.Y, b.Y),
	}
}

func (e Extent) Rounded(places int) Extent {
	return Extent{
		MinX: Round(e.MinX, places),
		MinY: Round(e.MinY, places),
		MaxX: Round(e.MaxX, places),
		MaxY: Round(e.MaxY, places),
	}
}

func (e Extent) Center() Point {
	return Point{X: (e.MinX + e.MaxX) / 2, Y: (e.MinY + e.MaxY) / 2}
}

func (e Extent) Valid() bool {
	for _, v := range [...]float64{e.MinX, e.MinY, e.MaxX, e.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return e.MaxX >= e.MinX && e.MaxY >= e.MinY
}

// String matches the comma separated bbox form used by the gateway
func (e Extent) String() string {
	return fmt.Sprintf("%s,%s,%s,%s",
		FormatCoord(e.MinX), FormatCoord(e.MinY), FormatCoord(e.MaxX), FormatCoord(e.MaxY))
}

// MapView is the host map state a GetCoverage request is built from.
type MapView struct {
	Extent Extent
	CRS    string
}

// Round half away from zero at the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	r := math.Round(v*p) / p
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return v
	}
	return r
}

// FormatCoord prints the shortest representation, so 50 stays "50" and not "50.000000".
func FormatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type Subset struct {
	Axis      string
	Low, High float64
}

// String renders the WCS 2.0 KVP subset clause, e.g. Lat(50,52).
func (s Subset) String() string {
	return fmt.Sprintf("%s(%s,%s)", s.Axis, FormatCoord(s.Low), FormatCoord(s.High))
}

// CoverageRequestParams holds everything a single GetCoverage URL is built from.
type CoverageRequestParams struct {
	Version       string
	CoverageID    string
	OutputCRS     string
	SubsettingCRS string
	Format        string
	Subsets       [2]Subset
	// Extent is the rounded request extent in SubsettingCRS, X/Y order.
	Extent Extent
}
