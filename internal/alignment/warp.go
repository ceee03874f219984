package alignment

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sort"
	"strings"

	"fib-correlate/pkg/geometry"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

var (
	// ErrSingularTransform is returned when a warp needs the inverse of a
	// transform whose linear part is not invertible.
	ErrSingularTransform = errors.New("transform is not invertible")

	// ErrUnknownBackend is returned for a backend name that is not compiled in.
	ErrUnknownBackend = errors.New("unknown warp backend")

	// ErrUnknownInterpolation is returned by ParseInterpolation.
	ErrUnknownInterpolation = errors.New("unknown interpolation")
)

// Interpolation selects the resampling kernel used by Warp.
type Interpolation string

const (
	InterpNearest    Interpolation = "nearest"
	InterpBilinear   Interpolation = "bilinear"
	InterpCatmullRom Interpolation = "catmullrom"
)

// ParseInterpolation validates an interpolation name from config or flags.
func ParseInterpolation(s string) (Interpolation, error) {
	switch i := Interpolation(strings.ToLower(strings.TrimSpace(s))); i {
	case InterpNearest, InterpBilinear, InterpCatmullRom:
		return i, nil
	case "":
		return InterpBilinear, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownInterpolation, s)
}

func (i Interpolation) interpolator() draw.Interpolator {
	switch i {
	case InterpNearest:
		return draw.NearestNeighbor
	case InterpCatmullRom:
		return draw.CatmullRom
	default:
		return draw.BiLinear
	}
}

// BackendNative resamples with golang.org/x/image/draw and is always available.
const BackendNative = "native"

// backend implements the pixel work of the pipeline. warp receives a
// transform in (x, y) pixel-index coordinates that maps source pixels to
// output pixels.
type backend struct {
	warp  func(src *image.RGBA, s2d geometry.AffineTransform, interp Interpolation) (*image.RGBA, error)
	blend func(a, b *image.RGBA, alpha float64) (*image.RGBA, error)
}

var backends = map[string]backend{
	BackendNative: {warp: warpNative, blend: blendNative},
}

// Backends lists the compiled-in backend names.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupBackend(name string) (backend, error) {
	if name == "" {
		name = BackendNative
	}
	b, ok := backends[name]
	if !ok {
		return backend{}, fmt.Errorf("%w: %q (available: %s)", ErrUnknownBackend, name, strings.Join(Backends(), ", "))
	}
	return b, nil
}

// WarpOptions controls Warp.
type WarpOptions struct {
	// Inverse moves the image forward along the transform: a source pixel at
	// p lands at transform(p) in the output. When false the transform is
	// used as the output-to-input mapping.
	Inverse       bool
	Interpolation Interpolation
	Backend       string
}

// DefaultWarpOptions returns the options the correlation pipeline uses.
func DefaultWarpOptions() WarpOptions {
	return WarpOptions{
		Inverse:       true,
		Interpolation: InterpBilinear,
		Backend:       BackendNative,
	}
}

// Warp resamples img through transform, which is expressed in (row, column)
// coordinates as returned by EstimateAffine. The output has the size of img;
// pixels that map outside img are opaque black. Every channel is resampled
// with the same mapping.
func Warp(img image.Image, transform geometry.AffineTransform, opts WarpOptions) (*image.RGBA, error) {
	b, err := lookupBackend(opts.Backend)
	if err != nil {
		return nil, err
	}

	s2d := transform.SwapAxes()
	if !opts.Inverse {
		inv, ok := s2d.Inverse()
		if !ok {
			return nil, ErrSingularTransform
		}
		s2d = inv
	} else if _, ok := s2d.Inverse(); !ok {
		return nil, ErrSingularTransform
	}

	return b.warp(opaqueRGBA(img), s2d, opts.Interpolation)
}

// warpNative maps pixel-index coordinates onto the continuous coordinates
// x/image/draw samples in, where pixel i covers [i, i+1).
func warpNative(src *image.RGBA, s2d geometry.AffineTransform, interp Interpolation) (*image.RGBA, error) {
	half := geometry.Translation(0.5, 0.5)
	cont := half.Compose(s2d).Compose(geometry.Translation(-0.5, -0.5))

	bounds := image.Rect(0, 0, src.Bounds().Dx(), src.Bounds().Dy())
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, image.NewUniform(color.RGBA{A: 0xff}), image.Point{}, draw.Src)

	aff := f64.Aff3{
		cont.A, cont.B, cont.TX,
		cont.C, cont.D, cont.TY,
	}
	interp.interpolator().Transform(dst, aff, src, src.Bounds(), draw.Src, nil)
	return dst, nil
}

// opaqueRGBA returns img as an 8-bit RGBA image with origin (0, 0),
// flattened over black.
func opaqueRGBA(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), image.NewUniform(color.RGBA{A: 0xff}), image.Point{}, draw.Src)
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Over)
	return rgba
}
