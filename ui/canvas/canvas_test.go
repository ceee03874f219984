package canvas

import (
	"image"
	"image/color"
	"testing"

	"fib-correlate/internal/markers"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gray(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.Gray{Y: 100})
		}
	}
	return img
}

func TestTapDeliversImageCoordinates(t *testing.T) {
	test.NewApp()
	ic := NewImageCanvas()
	ic.SetImage(gray(50, 40))
	ic.SetZoom(2)

	var gotX, gotY float64
	calls := 0
	ic.OnLeftClick(func(x, y float64) {
		gotX, gotY = x, y
		calls++
	})

	ic.content.Tapped(&fyne.PointEvent{Position: fyne.NewPos(20, 30)})
	require.Equal(t, 1, calls)
	assert.InDelta(t, 10.0, gotX, 1e-6)
	assert.InDelta(t, 15.0, gotY, 1e-6)

	// Outside the content
	ic.content.Tapped(&fyne.PointEvent{Position: fyne.NewPos(500, 30)})
	assert.Equal(t, 1, calls)

	// Panning swallows clicks
	ic.SetTool(ToolPan)
	ic.content.Tapped(&fyne.PointEvent{Position: fyne.NewPos(20, 30)})
	assert.Equal(t, 1, calls)
}

func TestZoomIsClamped(t *testing.T) {
	test.NewApp()
	ic := NewImageCanvas()
	ic.SetImage(gray(10, 10))

	var reported float64
	ic.OnZoomChange(func(z float64) { reported = z })

	ic.SetZoom(1000)
	assert.Equal(t, maxZoom, ic.GetZoom())
	assert.Equal(t, maxZoom, reported)
	ic.SetZoom(0)
	assert.Equal(t, minZoom, ic.GetZoom())

	ic.SetZoom(1)
	ic.ZoomIn()
	assert.InDelta(t, zoomStep, ic.GetZoom(), 1e-9)
	ic.ZoomOut()
	assert.InDelta(t, 1.0, ic.GetZoom(), 1e-9)
}

func TestPointerAndCursor(t *testing.T) {
	test.NewApp()
	ic := NewImageCanvas()

	var events []string
	ic.OnPointer(func() { events = append(events, "in") }, func() { events = append(events, "out") })
	ic.content.MouseIn(&desktop.MouseEvent{})
	ic.content.MouseOut()
	assert.Equal(t, []string{"in", "out"}, events)

	assert.Equal(t, desktop.DefaultCursor, ic.content.Cursor())
	ic.SetCrosshair(true)
	assert.Equal(t, desktop.CrosshairCursor, ic.content.Cursor())
}

func TestDrawScalesImageAndMarkers(t *testing.T) {
	test.NewApp()
	ic := NewImageCanvas()
	ic.SetImage(gray(20, 20))
	ic.SetMarkers([]markers.Marker{{ID: 1, X: 10, Y: 10, Complete: true}})

	out := ic.draw(40, 40).(*image.RGBA)
	assert.Equal(t, image.Rect(0, 0, 40, 40), out.Bounds())
	assert.Equal(t, color.RGBA{R: 100, G: 100, B: 100, A: 255}, out.RGBAAt(1, 1))

	// The marker dot sits at the scaled position
	c := out.RGBAAt(20, 20)
	assert.Greater(t, c.R, c.G)
}
