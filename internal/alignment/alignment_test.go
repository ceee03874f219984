package alignment

import (
	"errors"
	"image"
	"image/color"
	"io"
	"math"
	"testing"

	"fib-correlate/internal/controlpoint"
	"fib-correlate/pkg/geometry"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pair(id int, sx, sy, tx, ty float64) controlpoint.Record {
	s := geometry.NewPoint2D(sx, sy)
	t := geometry.NewPoint2D(tx, ty)
	return controlpoint.Record{ID: id, Source: &s, Target: &t}
}

func quietOptions() Options {
	log := logrus.New()
	log.SetOutput(io.Discard)
	opts := DefaultOptions()
	opts.Log = log
	return opts
}

// pattern is a deterministic test card with distinct values per channel.
func pattern(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8((x * 7) % 256),
				G: uint8((y * 11) % 256),
				B: uint8((x*y + 3) % 256),
				A: 0xff,
			})
		}
	}
	return img
}

func assertTransformNear(t *testing.T, want, got geometry.AffineTransform, tol float64) {
	t.Helper()
	w, g := want.Matrix(), got.Matrix()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			assert.InDelta(t, w[r][c], g[r][c], tol, "matrix[%d][%d]", r, c)
		}
	}
}

func TestExtractCoordinatesFlipsAxes(t *testing.T) {
	src, dst, err := ExtractCoordinates([]controlpoint.Record{pair(1, 10, 20, 30, 40)})
	require.NoError(t, err)
	assert.Equal(t, []RowCol{{Row: 20, Col: 10}}, src)
	assert.Equal(t, []RowCol{{Row: 40, Col: 30}}, dst)
}

func TestExtractCoordinatesErrors(t *testing.T) {
	_, _, err := ExtractCoordinates(nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	s := geometry.NewPoint2D(1, 1)
	_, _, err = ExtractCoordinates([]controlpoint.Record{pair(1, 0, 0, 0, 0), {ID: 2, Source: &s}})
	assert.ErrorIs(t, err, ErrIncompletePair)
}

func TestEstimateAffineIdentity(t *testing.T) {
	tests := []struct {
		name string
		pts  []RowCol
	}{
		{"minimal", []RowCol{{0, 0}, {1, 0}, {0, 1}}},
		{"overdetermined", []RowCol{{0, 0}, {1, 0}, {0, 1}, {4, 7}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transform, err := EstimateAffine(tt.pts, tt.pts)
			require.NoError(t, err)
			assertTransformNear(t, geometry.Identity(), transform, 1e-9)
		})
	}
}

func TestEstimateAffineRecoversKnownTransform(t *testing.T) {
	want := geometry.Translation(12, -3).Compose(geometry.Rotation(0.3)).Compose(geometry.Scale(1.5, 0.8))
	src := []RowCol{{0, 0}, {100, 0}, {0, 80}, {60, 40}, {25, 90}}
	dst := make([]RowCol, len(src))
	for i, p := range src {
		q := want.Apply(p.point())
		dst[i] = RowCol{Row: q.X, Col: q.Y}
	}

	got, err := EstimateAffine(src, dst)
	require.NoError(t, err)
	assertTransformNear(t, want, got, 1e-6)

	stats := Residuals(src, dst, got)
	assert.Equal(t, len(src), stats.Count)
	assert.Less(t, stats.Max, 1e-6)
}

func TestEstimateAffineRejectsDegenerateInput(t *testing.T) {
	tests := []struct {
		name string
		src  []RowCol
	}{
		{"two points", []RowCol{{0, 0}, {1, 1}}},
		{"collinear", []RowCol{{0, 0}, {1, 1}, {2, 2}, {5, 5}}},
		{"coincident", []RowCol{{3, 3}, {3, 3}, {3, 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EstimateAffine(tt.src, tt.src)
			assert.ErrorIs(t, err, ErrInsufficientPoints)
		})
	}

	_, err := EstimateAffine([]RowCol{{0, 0}}, nil)
	assert.ErrorIs(t, err, ErrPointCountMismatch)
}

func TestEstimateAffineRANSACIgnoresOutlier(t *testing.T) {
	want := geometry.Translation(4, 9)
	src := []RowCol{{0, 0}, {50, 0}, {0, 50}, {50, 50}, {25, 10}, {10, 40}}
	dst := make([]RowCol, len(src))
	for i, p := range src {
		q := want.Apply(p.point())
		dst[i] = RowCol{Row: q.X, Col: q.Y}
	}
	dst[5] = RowCol{Row: 300, Col: -200}

	got, inliers, err := EstimateAffineRANSAC(src, dst, 200, 1.0, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, inliers)
	assertTransformNear(t, want, got, 1e-6)
}

func TestTranslationScenario(t *testing.T) {
	records := []controlpoint.Record{
		pair(1, 10, 10, 15, 15),
		pair(2, 40, 10, 45, 15),
		pair(3, 10, 30, 15, 35),
	}
	src, dst, err := ExtractCoordinates(records)
	require.NoError(t, err)

	transform, err := EstimateAffine(src, dst)
	require.NoError(t, err)
	assertTransformNear(t, geometry.Translation(5, 5), transform, 1e-9)

	source := image.NewRGBA(image.Rect(0, 0, 64, 48))
	source.SetRGBA(20, 12, color.RGBA{R: 255, G: 128, B: 7, A: 255})

	aligned, err := Warp(source, transform, DefaultWarpOptions())
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 255, G: 128, B: 7, A: 255}, aligned.RGBAAt(25, 17))
	assert.Equal(t, color.RGBA{A: 255}, aligned.RGBAAt(20, 12))
}

func TestWarpZeroFillsOutside(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for i := range src.Pix {
		src.Pix[i] = 0xff
	}
	out, err := Warp(src, geometry.Translation(0, 4), WarpOptions{Inverse: true, Interpolation: InterpNearest})
	require.NoError(t, err)

	assert.Equal(t, src.Bounds(), out.Bounds())
	assert.Equal(t, color.RGBA{A: 255}, out.RGBAAt(2, 5))
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, out.RGBAAt(6, 5))
}

func TestWarpRoundTrip(t *testing.T) {
	src := pattern(40, 30)
	forward := geometry.Translation(3, -4)
	back, ok := forward.Inverse()
	require.True(t, ok)

	for _, interp := range []Interpolation{InterpNearest, InterpBilinear, InterpCatmullRom} {
		t.Run(string(interp), func(t *testing.T) {
			opts := WarpOptions{Inverse: true, Interpolation: interp}
			moved, err := Warp(src, forward, opts)
			require.NoError(t, err)
			restored, err := Warp(moved, back, opts)
			require.NoError(t, err)

			// Rows and columns shifted out of frame are lost; compare the rest.
			for y := 5; y < 25; y++ {
				for x := 5; x < 35; x++ {
					want, got := src.RGBAAt(x, y), restored.RGBAAt(x, y)
					assert.InDelta(t, want.R, got.R, 2, "R at %d,%d", x, y)
					assert.InDelta(t, want.G, got.G, 2, "G at %d,%d", x, y)
					assert.InDelta(t, want.B, got.B, 2, "B at %d,%d", x, y)
				}
			}
		})
	}
}

func TestWarpInverseFlag(t *testing.T) {
	src := pattern(20, 20)
	transform := geometry.Translation(2, 1)
	inv, _ := transform.Inverse()

	a, err := Warp(src, transform, WarpOptions{Inverse: false, Interpolation: InterpNearest})
	require.NoError(t, err)
	b, err := Warp(src, inv, WarpOptions{Inverse: true, Interpolation: InterpNearest})
	require.NoError(t, err)
	assert.Equal(t, a.Pix, b.Pix)
}

func TestWarpErrors(t *testing.T) {
	src := pattern(4, 4)
	_, err := Warp(src, geometry.Scale(0, 1), DefaultWarpOptions())
	assert.ErrorIs(t, err, ErrSingularTransform)

	_, err = Warp(src, geometry.Identity(), WarpOptions{Backend: "vulkan"})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestParseInterpolation(t *testing.T) {
	i, err := ParseInterpolation(" Nearest ")
	require.NoError(t, err)
	assert.Equal(t, InterpNearest, i)

	i, err = ParseInterpolation("")
	require.NoError(t, err)
	assert.Equal(t, InterpBilinear, i)

	_, err = ParseInterpolation("lanczos")
	assert.ErrorIs(t, err, ErrUnknownInterpolation)
}

func TestBlendSelfIsIdentity(t *testing.T) {
	a := pattern(16, 9)
	for _, alpha := range []float64{0, 0.25, 0.5, 0.9, 1} {
		out, err := Blend(a, a, alpha)
		require.NoError(t, err)
		assert.Equal(t, a.Pix, out.Pix, "alpha %g", alpha)
	}
}

func TestBlendWeights(t *testing.T) {
	a := image.NewRGBA(image.Rect(0, 0, 1, 1))
	b := image.NewRGBA(image.Rect(0, 0, 1, 1))
	a.SetRGBA(0, 0, color.RGBA{R: 200, G: 0, B: 100, A: 255})
	b.SetRGBA(0, 0, color.RGBA{R: 0, G: 100, B: 100, A: 255})

	out, err := Blend(a, b, 0.25)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 50, G: 75, B: 100, A: 255}, out.RGBAAt(0, 0))
}

func TestBlendErrors(t *testing.T) {
	_, err := Blend(pattern(4, 4), pattern(4, 5), 0.5)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	for _, alpha := range []float64{-0.1, 1.5, math.NaN()} {
		_, err = Blend(pattern(4, 4), pattern(4, 4), alpha)
		assert.ErrorIs(t, err, ErrInvalidAlpha)
	}
}

func TestCorrelate(t *testing.T) {
	source := pattern(60, 40)
	target := pattern(60, 40)
	records := []controlpoint.Record{
		pair(1, 10, 10, 12, 13),
		pair(2, 50, 10, 52, 13),
		pair(3, 10, 30, 12, 33),
		pair(4, 45, 35, 47, 38),
	}

	res, err := Correlate(source, target, records, quietOptions())
	require.NoError(t, err)
	assertTransformNear(t, geometry.Translation(3, 2), res.Transform, 1e-9)
	assert.Equal(t, target.Bounds(), res.Overlay.Bounds())
	assert.Equal(t, 4, res.Residuals.Count)
	assert.Less(t, res.Residuals.RMS, 1e-9)
	assert.InDelta(t, 850.0/2400.0, res.Coverage, 1e-9)
}

func TestCoverage(t *testing.T) {
	square := []RowCol{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {5, 5}}
	assert.InDelta(t, 0.25, Coverage(square, 20, 20), 1e-12)
	assert.Equal(t, 1.0, Coverage(square, 5, 5))

	line := []RowCol{{0, 0}, {5, 5}, {10, 10}}
	assert.Zero(t, Coverage(line, 20, 20))
	assert.Zero(t, Coverage(square, 0, 20))
}

func TestCorrelateErrors(t *testing.T) {
	opts := quietOptions()
	records := []controlpoint.Record{
		pair(1, 0, 0, 0, 0),
		pair(2, 10, 0, 10, 0),
		pair(3, 0, 10, 0, 10),
	}

	_, err := Correlate(pattern(8, 8), pattern(8, 8), nil, opts)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = Correlate(pattern(8, 8), pattern(8, 8), records[:2], opts)
	assert.ErrorIs(t, err, ErrInsufficientPoints)

	_, err = Correlate(pattern(8, 8), pattern(9, 8), records, opts)
	assert.True(t, errors.Is(err, ErrShapeMismatch))

	opts.Alpha = 2
	_, err = Correlate(pattern(8, 8), pattern(8, 8), records, opts)
	assert.ErrorIs(t, err, ErrInvalidAlpha)
}
