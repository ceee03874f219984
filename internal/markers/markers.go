// Package markers draws control-point markers onto image previews.
package markers

import (
	"image"
	"math"
	"strconv"

	"fib-correlate/internal/controlpoint"
	"fib-correlate/pkg/colorutil"

	"github.com/fogleman/gg"
)

// Style controls marker geometry. Sizes are multiples of Unit, which is a
// fraction of the visible width so markers look the same at any zoom.
type Style struct {
	UnitFraction float64 // Unit as a fraction of the visible width
	Ring         float64 // Outer ring radius in units
	Dot          float64 // Centre dot radius in units
	LabelOffset  float64 // Label offset from the centre in units
	LineWidth    float64 // Ring stroke in pixels
}

// DefaultStyle matches the on-screen markers of the correlation window.
func DefaultStyle() Style {
	return Style{
		UnitFraction: 0.003,
		Ring:         8,
		Dot:          1,
		LabelOffset:  5,
		LineWidth:    1.5,
	}
}

// Unit returns the marker unit in pixels for a visible width.
func (s Style) Unit(visibleWidth float64) float64 {
	return math.Max(visibleWidth*s.UnitFraction, 1)
}

// Marker is one drawable point.
type Marker struct {
	ID       int
	X, Y     float64
	Complete bool
}

// ForView returns the markers of records that have a coordinate in view.
func ForView(records []controlpoint.Record, view controlpoint.View) []Marker {
	var out []Marker
	for _, r := range records {
		p, ok := r.Coord(view)
		if !ok {
			continue
		}
		out = append(out, Marker{ID: r.ID, X: p.X, Y: p.Y, Complete: r.Complete()})
	}
	return out
}

// Render returns a copy of img with a ring, a dot and the id label drawn at
// every record's coordinate in view.
func Render(img image.Image, records []controlpoint.Record, view controlpoint.View, style Style) *image.RGBA {
	b := img.Bounds()
	dc := gg.NewContext(b.Dx(), b.Dy())
	dc.DrawImage(img, -b.Min.X, -b.Min.Y)
	Draw(dc, ForView(records, view), style.Unit(float64(b.Dx())), style)

	out, ok := dc.Image().(*image.RGBA)
	if !ok {
		out = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	}
	return out
}

// Draw paints markers onto dc.
func Draw(dc *gg.Context, markers []Marker, unit float64, style Style) {
	dc.SetLineWidth(style.LineWidth)
	for _, m := range markers {
		c := colorutil.MarkerColor(m.Complete)

		dc.SetColor(c)
		dc.DrawCircle(m.X, m.Y, unit*style.Ring)
		dc.Stroke()
		dc.DrawCircle(m.X, m.Y, unit*style.Dot)
		dc.Fill()

		dc.SetColor(colorutil.White)
		dc.DrawString(strconv.Itoa(m.ID), m.X+unit*style.LabelOffset, m.Y+unit*style.LabelOffset)
	}
}
