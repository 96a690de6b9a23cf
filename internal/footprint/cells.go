package footprint

import (
	"errors"
	"fmt"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/simple-wcs/internal/core/model"
)

// CellsForExtent polyfills a lon/lat extent at res; the result is sorted and unique.
func CellsForExtent(ext model.Extent, res int) ([]string, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	if !ext.Valid() {
		return nil, fmt.Errorf("invalid extent %v", ext)
	}
	outer := h3.GeoLoop{
		{Lat: ext.MinY, Lng: ext.MinX},
		{Lat: ext.MinY, Lng: ext.MaxX},
		{Lat: ext.MaxY, Lng: ext.MaxX},
		{Lat: ext.MaxY, Lng: ext.MinX},
	}
	return polyfill(outer, res)
}

// CenterCell returns the cell containing the centre of a lon/lat extent.
func CenterCell(ext model.Extent, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	c := ext.Center()
	cell, err := h3.LatLngToCell(h3.LatLng{Lat: c.Y, Lng: c.X}, res)
	if err != nil {
		return "", fmt.Errorf("h3 cell: %w", err)
	}
	return cell.String(), nil
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

func polyfill(outer h3.GeoLoop, res int) ([]string, error) {
	if len(outer) < 4 {
		return nil, errors.New("outer ring has < 4 vertices")
	}
	indexes, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: outer}, res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}

	out := make([]string, 0, len(indexes))
	seen := make(map[string]struct{}, len(indexes))
	for _, idx := range indexes {
		s := idx.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}
