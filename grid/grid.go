// Package grid divides a large search geometry into a rectangular grid of
// cell-sized fragments so that one oversized spatial query can be fanned
// out as many small ones.
package grid

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/geo"
)

// Unit is a linear distance unit for cell sizing.
type Unit string

const (
	Meters     Unit = "m"
	Kilometers Unit = "km"
	Miles      Unit = "mi"
	Feet       Unit = "ft"
)

// meters converts a value in this unit to meters.
func (u Unit) meters(v float64) (float64, error) {
	switch u {
	case Meters, "":
		return v, nil
	case Kilometers:
		return v * 1000, nil
	case Miles:
		return v * 1609.344, nil
	case Feet:
		return v * 0.3048, nil
	default:
		return 0, fmt.Errorf("grid: unknown unit %q", u)
	}
}

// Divide tiles the geometry's bounding box into cells roughly cellWidth
// wide (in the given unit) and returns the non-empty intersection of the
// geometry with each cell, in column-major cell order.
//
// A cellWidth <= 0 defaults to a quarter of the bounding box diagonal.
// The degree extent of a cell is derived from haversine distance along the
// box's south and west edges; at high latitudes or for very large boxes
// the cells are therefore only approximately cellWidth wide.
func Divide(geom orb.Geometry, cellWidth float64, unit Unit) ([]orb.Geometry, error) {
	if geom == nil {
		return nil, nil
	}
	bound := geom.Bound()
	lonExtent := bound.Max[0] - bound.Min[0]
	latExtent := bound.Max[1] - bound.Min[1]
	if lonExtent <= 0 && latExtent <= 0 {
		// Degenerate box (a point): the geometry is its own single cell.
		return []orb.Geometry{geom}, nil
	}

	widthM, err := unit.meters(cellWidth)
	if err != nil {
		return nil, err
	}
	if widthM <= 0 {
		widthM = geo.DistanceHaversine(bound.Min, bound.Max) / 4
	}

	// Distance along the south edge scales longitude degrees, the west
	// edge scales latitude degrees.
	cellLon := lonExtent
	if d := geo.DistanceHaversine(bound.Min, orb.Point{bound.Max[0], bound.Min[1]}); d > 0 {
		cellLon = lonExtent * widthM / d
	}
	cellLat := latExtent
	if d := geo.DistanceHaversine(bound.Min, orb.Point{bound.Min[0], bound.Max[1]}); d > 0 {
		cellLat = latExtent * widthM / d
	}

	cols := cellCount(lonExtent, cellLon)
	rows := cellCount(latExtent, cellLat)

	// Center the grid: split the slack beyond the box evenly on each side.
	startX := bound.Min[0] + (lonExtent-float64(cols)*cellLon)/2
	startY := bound.Min[1] + (latExtent-float64(rows)*cellLat)/2

	divided := make([]orb.Geometry, 0, cols*rows)
	for i := 0; i < cols; i++ {
		for j := 0; j < rows; j++ {
			cell := orb.Bound{
				Min: orb.Point{startX + float64(i)*cellLon, startY + float64(j)*cellLat},
				Max: orb.Point{startX + float64(i+1)*cellLon, startY + float64(j+1)*cellLat},
			}
			part := clipCell(cell, geom)
			if part == nil {
				slog.Debug("grid: empty intersection, cell dropped", "col", i, "row", j)
				continue
			}
			divided = append(divided, part)
		}
	}
	return divided, nil
}

func cellCount(extent, cell float64) int {
	if extent <= 0 || cell <= 0 || cell >= extent {
		return 1
	}
	return int(math.Ceil(extent / cell))
}

// clipCell intersects the geometry with one cell. Clipping never fails on
// well-formed input, but a malformed geometry must cost only its own cell,
// not the whole division.
func clipCell(cell orb.Bound, geom orb.Geometry) (part orb.Geometry) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("grid: intersection failed, cell dropped", "cell", cell, "cause", r)
			part = nil
		}
	}()
	return clip.Geometry(cell, geom)
}
