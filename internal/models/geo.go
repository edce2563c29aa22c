// internal/models/geo.go
package models

import "math"

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Polygon is a closed ring of vertices; the closing edge is implicit.
type Polygon []GeoPoint

// Contains uses ray casting with longitude as x and latitude as y.
// Points exactly on an edge may fall either side.
func (p Polygon) Contains(pt GeoPoint) bool {
	if len(p) < 3 {
		return false
	}
	inside := false
	j := len(p) - 1
	for i := 0; i < len(p); i++ {
		xi, yi := p[i].Lon, p[i].Lat
		xj, yj := p[j].Lon, p[j].Lat
		if (yi > pt.Lat) != (yj > pt.Lat) &&
			pt.Lon < (xj-xi)*(pt.Lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}

// Area is the planar shoelace area in square degrees, used only to rank polygons.
func (p Polygon) Area() float64 {
	if len(p) < 3 {
		return 0
	}
	sum := 0.0
	j := len(p) - 1
	for i := 0; i < len(p); i++ {
		sum += (p[j].Lon + p[i].Lon) * (p[j].Lat - p[i].Lat)
		j = i
	}
	return math.Abs(sum) / 2
}
