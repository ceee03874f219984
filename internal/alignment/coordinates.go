// Package alignment estimates the affine transform between the fluorescence
// and FIB-SEM images from picked control points, warps the fluorescence image
// into the FIB-SEM frame and blends the two into an overlay.
package alignment

import (
	"errors"
	"fmt"
	"math"

	"fib-correlate/internal/controlpoint"
	"fib-correlate/pkg/geometry"
)

var (
	// ErrEmptyInput is returned when the pipeline is given no control points.
	ErrEmptyInput = errors.New("no control points selected")

	// ErrIncompletePair is returned for a record that lacks one of its sides.
	ErrIncompletePair = errors.New("control point is missing a coordinate")
)

// RowCol is an image coordinate in (row, column) order, the axis order the
// estimator and warp work in. Picking happens in (x, y).
type RowCol struct {
	Row float64
	Col float64
}

// FromXY converts a picked (x, y) coordinate.
func FromXY(p geometry.Point2D) RowCol {
	return RowCol{Row: p.Y, Col: p.X}
}

func (rc RowCol) point() geometry.Point2D {
	return geometry.Point2D{X: rc.Row, Y: rc.Col}
}

func toPoints(rcs []RowCol) []geometry.Point2D {
	pts := make([]geometry.Point2D, len(rcs))
	for i, rc := range rcs {
		pts[i] = rc.point()
	}
	return pts
}

// ExtractCoordinates splits complete control points into matching source and
// destination coordinate lists, flipped to (row, column). src[i] and dst[i]
// belong to records[i].
func ExtractCoordinates(records []controlpoint.Record) (src, dst []RowCol, err error) {
	if len(records) == 0 {
		return nil, nil, ErrEmptyInput
	}

	src = make([]RowCol, len(records))
	dst = make([]RowCol, len(records))
	for i, r := range records {
		if !r.Complete() {
			return nil, nil, fmt.Errorf("point %d: %w", r.ID, ErrIncompletePair)
		}
		src[i] = FromXY(*r.Source)
		dst[i] = FromXY(*r.Target)
	}
	return src, dst, nil
}

// Coverage returns the fraction of a width x height image covered by the
// convex hull of points.
func Coverage(points []RowCol, width, height int) float64 {
	if width <= 0 || height <= 0 {
		return 0
	}
	area := geometry.PolygonArea(geometry.ConvexHull(toPoints(points)))
	return math.Min(area/float64(width*height), 1)
}
