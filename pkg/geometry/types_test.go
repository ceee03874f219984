package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInverseRoundTrip(t *testing.T) {
	tr := Translation(12, -3).Compose(Rotation(math.Pi / 7)).Compose(Scale(1.5, 0.8))

	inv, ok := tr.Inverse()
	require.True(t, ok)

	p := NewPoint2D(17.25, -4.5)
	back := inv.Apply(tr.Apply(p))
	assert.InDelta(t, p.X, back.X, 1e-9)
	assert.InDelta(t, p.Y, back.Y, 1e-9)
}

func TestInverseSingular(t *testing.T) {
	_, ok := Scale(0, 1).Inverse()
	assert.False(t, ok)
}

func TestSwapAxesMatchesSwappedPoints(t *testing.T) {
	tr := AffineTransform{A: 1.2, B: 0.3, TX: 5, C: -0.4, D: 0.9, TY: -7}
	p := NewPoint2D(3, 11)

	want := tr.Apply(p).Swap()
	got := tr.SwapAxes().Apply(p.Swap())
	assert.InDelta(t, want.X, got.X, 1e-12)
	assert.InDelta(t, want.Y, got.Y, 1e-12)

	assert.Equal(t, tr, tr.SwapAxes().SwapAxes())
}

func TestMatrixLayout(t *testing.T) {
	tr := AffineTransform{A: 1, B: 2, TX: 3, C: 4, D: 5, TY: 6}
	m := tr.Matrix()
	assert.Equal(t, [3]float64{0, 0, 1}, m[2])
	assert.Equal(t, [3]float64{1, 2, 3}, m[0])
	assert.Equal(t, [3]float64{4, 5, 6}, m[1])
}

func TestRectContains(t *testing.T) {
	r := NewRect(0, 0, 10, 5)
	assert.True(t, r.Contains(NewPoint2D(0, 0)))
	assert.True(t, r.Contains(NewPoint2D(9.99, 4.99)))
	assert.False(t, r.Contains(NewPoint2D(10, 1)))
	assert.False(t, r.Contains(NewPoint2D(1, 5)))
	assert.False(t, r.Empty())
	assert.True(t, Rect{}.Empty())
}

func TestConvexHull(t *testing.T) {
	pts := []Point2D{{0, 0}, {4, 0}, {2, 1}, {4, 4}, {0, 4}, {2, 2}, {0, 0}}
	hull := ConvexHull(pts)
	assert.Equal(t, []Point2D{{0, 0}, {4, 0}, {4, 4}, {0, 4}}, hull)
	assert.InDelta(t, 16.0, PolygonArea(hull), 1e-12)

	// Collinear sets collapse to their end points
	line := ConvexHull([]Point2D{{0, 0}, {1, 1}, {2, 2}, {3, 3}})
	assert.Len(t, line, 2)
	assert.Zero(t, PolygonArea(line))
}
