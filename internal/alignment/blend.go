package alignment

import (
	"errors"
	"fmt"
	"image"
	"math"
)

var (
	// ErrShapeMismatch is returned when the images to blend differ in size.
	ErrShapeMismatch = errors.New("image sizes differ")

	// ErrInvalidAlpha is returned for a blend weight outside [0, 1].
	ErrInvalidAlpha = errors.New("alpha must be within [0, 1]")
)

// Blend computes alpha*a + (1-alpha)*b per channel, clipped to the 8-bit
// range. The result is opaque.
func Blend(a, b image.Image, alpha float64) (*image.RGBA, error) {
	if err := checkBlend(a, b, alpha); err != nil {
		return nil, err
	}
	return blendNative(opaqueRGBA(a), opaqueRGBA(b), alpha)
}

// ValidAlpha reports whether alpha is a usable blend weight in [0, 1].
func ValidAlpha(alpha float64) bool {
	return !math.IsNaN(alpha) && alpha >= 0 && alpha <= 1
}

func checkBlend(a, b image.Image, alpha float64) error {
	if sa, sb := a.Bounds().Size(), b.Bounds().Size(); sa != sb {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrShapeMismatch, sa.X, sa.Y, sb.X, sb.Y)
	}
	if !ValidAlpha(alpha) {
		return fmt.Errorf("%w: %g", ErrInvalidAlpha, alpha)
	}
	return nil
}

func blendNative(a, b *image.RGBA, alpha float64) (*image.RGBA, error) {
	out := image.NewRGBA(a.Bounds())
	w, h := a.Bounds().Dx(), a.Bounds().Dy()
	beta := 1 - alpha

	for y := 0; y < h; y++ {
		ra := a.Pix[y*a.Stride : y*a.Stride+w*4]
		rb := b.Pix[y*b.Stride : y*b.Stride+w*4]
		ro := out.Pix[y*out.Stride : y*out.Stride+w*4]
		for i := 0; i < w*4; i += 4 {
			for c := 0; c < 3; c++ {
				ro[i+c] = clip8(alpha*float64(ra[i+c]) + beta*float64(rb[i+c]))
			}
			ro[i+3] = 0xff
		}
	}
	return out, nil
}

func clip8(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
