// Package controlpoint tracks the control points a user picks between the
// source (fluorescence) and target (FIB-SEM) image views.
package controlpoint

import (
	"fmt"

	"fib-correlate/pkg/geometry"
)

// View identifies which image view a pointer event happened in.
type View int

const (
	ViewNone   View = iota // Pointer is not over an image
	ViewSource             // Image 1, the fluorescence image
	ViewTarget             // Image 2, the FIB-SEM image
)

func (v View) String() string {
	switch v {
	case ViewSource:
		return "Image 1"
	case ViewTarget:
		return "Image 2"
	default:
		return "None"
	}
}

// Other returns the view a pending point still needs a click in.
func (v View) Other() View {
	switch v {
	case ViewSource:
		return ViewTarget
	case ViewTarget:
		return ViewSource
	default:
		return ViewNone
	}
}

// ControlPoint is a landmark picked in both images. Each side is assigned at
// most once.
type ControlPoint struct {
	ID     int
	Source *geometry.Point2D
	Target *geometry.Point2D
}

// Complete reports whether both sides have been picked.
func (cp *ControlPoint) Complete() bool {
	return cp.Source != nil && cp.Target != nil
}

// Has reports whether the side for view has been picked.
func (cp *ControlPoint) Has(view View) bool {
	switch view {
	case ViewSource:
		return cp.Source != nil
	case ViewTarget:
		return cp.Target != nil
	}
	return false
}

func (cp *ControlPoint) assign(view View, p geometry.Point2D) {
	switch view {
	case ViewSource:
		cp.Source = &p
	case ViewTarget:
		cp.Target = &p
	}
}

// Record is a detached copy of a control point for display and export.
type Record struct {
	ID     int
	Source *geometry.Point2D
	Target *geometry.Point2D
}

// Complete reports whether both coordinates are present.
func (r Record) Complete() bool {
	return r.Source != nil && r.Target != nil
}

// Coord returns the coordinate picked in view, if any.
func (r Record) Coord(view View) (geometry.Point2D, bool) {
	switch view {
	case ViewSource:
		if r.Source != nil {
			return *r.Source, true
		}
	case ViewTarget:
		if r.Target != nil {
			return *r.Target, true
		}
	}
	return geometry.Point2D{}, false
}

func (r Record) String() string {
	return fmt.Sprintf("CP %d: img1=%s img2=%s", r.ID, fmtCoord(r.Source), fmtCoord(r.Target))
}

func fmtCoord(p *geometry.Point2D) string {
	if p == nil {
		return "-"
	}
	return p.String()
}

func (cp *ControlPoint) record() Record {
	r := Record{ID: cp.ID}
	if cp.Source != nil {
		s := *cp.Source
		r.Source = &s
	}
	if cp.Target != nil {
		t := *cp.Target
		r.Target = &t
	}
	return r
}

// Completed returns only the complete records, preserving order.
func Completed(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Complete() {
			out = append(out, r)
		}
	}
	return out
}
