package markers

import (
	"image"
	"image/draw"
	"testing"

	"fib-correlate/internal/controlpoint"
	"fib-correlate/pkg/colorutil"
	"fib-correlate/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func records() []controlpoint.Record {
	a := geometry.NewPoint2D(100, 100)
	b := geometry.NewPoint2D(30, 40)
	c := geometry.NewPoint2D(150, 60)
	return []controlpoint.Record{
		{ID: 1, Source: &a, Target: &b},
		{ID: 2, Source: &c},
	}
}

func TestForView(t *testing.T) {
	src := ForView(records(), controlpoint.ViewSource)
	require.Len(t, src, 2)
	assert.Equal(t, Marker{ID: 1, X: 100, Y: 100, Complete: true}, src[0])
	assert.Equal(t, Marker{ID: 2, X: 150, Y: 60, Complete: false}, src[1])

	dst := ForView(records(), controlpoint.ViewTarget)
	require.Len(t, dst, 1)
	assert.Equal(t, 1, dst[0].ID)

	assert.Empty(t, ForView(records(), controlpoint.ViewNone))
}

func TestRenderDrawsMarkerColors(t *testing.T) {
	bg := image.NewRGBA(image.Rect(0, 0, 200, 200))
	draw.Draw(bg, bg.Bounds(), image.NewUniform(colorutil.Black), image.Point{}, draw.Src)

	style := DefaultStyle()
	style.UnitFraction = 0.02 // 4px units, so the centre dot covers whole pixels

	out := Render(bg, records(), controlpoint.ViewSource, style)
	require.Equal(t, bg.Bounds(), out.Bounds())

	assert.Equal(t, colorutil.Red, out.RGBAAt(100, 100))
	assert.Equal(t, colorutil.Yellow, out.RGBAAt(150, 60))
	assert.Equal(t, colorutil.Black, out.RGBAAt(2, 198))

	// The input is left untouched.
	assert.Equal(t, colorutil.Black, bg.RGBAAt(100, 100))
}

func TestUnitHasFloor(t *testing.T) {
	assert.Equal(t, 1.0, DefaultStyle().Unit(10))
	assert.InDelta(t, 3.0, DefaultStyle().Unit(1000), 1e-9)
}
