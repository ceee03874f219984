// Package image provides image loading and the layers the correlation works on.
package image

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

// ErrMalformedImage is returned for an input that cannot be read or decoded,
// or that has no pixels.
var ErrMalformedImage = errors.New("malformed image")

// Role indicates which side of the correlation an image is on.
type Role int

const (
	RoleUnknown      Role = iota
	RoleFluorescence      // Image 1, warped onto the FIB-SEM frame
	RoleFIBSEM            // Image 2, the reference frame
)

func (r Role) String() string {
	switch r {
	case RoleFluorescence:
		return "Fluorescence"
	case RoleFIBSEM:
		return "FIB-SEM"
	default:
		return "Unknown"
	}
}

// Input is an image given either as a file path or as decoded pixels.
// Image takes precedence when both are set.
type Input struct {
	Path  string
	Image image.Image
}

// InMemory reports whether the input carries decoded pixels.
func (in Input) InMemory() bool {
	return in.Image != nil
}

func (in Input) String() string {
	if in.InMemory() {
		b := in.Image.Bounds()
		return fmt.Sprintf("in-memory %dx%d", b.Dx(), b.Dy())
	}
	return in.Path
}

// Layer is one loaded image, promoted to 8-bit RGB.
type Layer struct {
	Path      string      // Original file path, empty for in-memory input
	Image     *image.RGBA // Opaque RGB pixels, origin (0, 0)
	Role      Role        // Fluorescence or FIB-SEM
	NameRole  Role        // Modality suggested by the file name
	DPI       float64     // From TIFF resolution tags, 0 when unknown
	Grayscale bool        // Source was single channel
	Resized   bool        // Resampled to match the other layer
}

// Load loads an image from the specified path and returns a Layer.
func Load(path string) (*Layer, error) {
	if !IsSupportedFormat(path) {
		return nil, fmt.Errorf("%w: %s: unsupported extension", ErrMalformedImage, path)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrMalformedImage, path, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrMalformedImage, path, err)
	}

	layer, err := FromImage(img)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	layer.Path = path

	if _, err := file.Seek(0, io.SeekStart); err == nil {
		if dpi, err := readDPI(file); err == nil {
			layer.DPI = dpi
		}
	}

	layer.NameRole = guessRoleFromFilename(path)
	layer.Role = layer.NameRole
	return layer, nil
}

// RoleMismatch reports whether the file name suggests the other modality
// than the one the layer was opened as.
func (l *Layer) RoleMismatch() bool {
	return l.NameRole != RoleUnknown && l.NameRole != l.Role
}

// PixelSize returns the pixel pitch in micrometres, or 0 when the DPI is
// unknown.
func (l *Layer) PixelSize() float64 {
	if l.DPI <= 0 {
		return 0
	}
	return 25400 / l.DPI
}

// FromImage wraps decoded pixels in a Layer.
func FromImage(img image.Image) (*Layer, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: no pixels", ErrMalformedImage)
	}
	return &Layer{
		Image:     ToRGBA(img),
		Grayscale: isGray(img),
	}, nil
}

// Open loads in as a layer with the given role.
func Open(in Input, role Role) (*Layer, error) {
	var (
		layer *Layer
		err   error
	)
	switch {
	case in.InMemory():
		layer, err = FromImage(in.Image)
	case in.Path != "":
		layer, err = Load(in.Path)
	default:
		err = fmt.Errorf("%w: %s has neither path nor pixels", ErrMalformedImage, role)
	}
	if err != nil {
		return nil, err
	}
	layer.Role = role
	return layer, nil
}

// PrepareInputs opens the fluorescence and FIB-SEM inputs. When both are
// in-memory and their dimensions differ, the fluorescence layer is resampled
// to the FIB-SEM dimensions.
func PrepareInputs(fluorescence, fibsem Input) (*Layer, *Layer, error) {
	src, err := Open(fluorescence, RoleFluorescence)
	if err != nil {
		return nil, nil, fmt.Errorf("image 1: %w", err)
	}
	dst, err := Open(fibsem, RoleFIBSEM)
	if err != nil {
		return nil, nil, fmt.Errorf("image 2: %w", err)
	}

	if fluorescence.InMemory() && fibsem.InMemory() && src.Size() != dst.Size() {
		size := dst.Size()
		src.Image = Resize(src.Image, size.X, size.Y)
		src.Resized = true
	}
	return src, dst, nil
}

// ToRGBA converts img to opaque 8-bit RGBA with origin (0, 0). Grayscale
// input is replicated into all three channels.
func ToRGBA(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Over)
	return rgba
}

// Resize resamples img to width x height with bilinear interpolation.
func Resize(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// Width returns the image width in pixels.
func (l *Layer) Width() int {
	if l.Image == nil {
		return 0
	}
	return l.Image.Bounds().Dx()
}

// Height returns the image height in pixels.
func (l *Layer) Height() int {
	if l.Image == nil {
		return 0
	}
	return l.Image.Bounds().Dy()
}

// Size returns the image dimensions.
func (l *Layer) Size() image.Point {
	return image.Point{X: l.Width(), Y: l.Height()}
}

func isGray(img image.Image) bool {
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		return true
	}
	return false
}

// guessRoleFromFilename attempts to determine the modality from the filename.
func guessRoleFromFilename(path string) Role {
	base := strings.ToLower(filepath.Base(path))

	fluoKeywords := []string{"fluo", "gfp", "dapi", "light"}
	for _, kw := range fluoKeywords {
		if strings.Contains(base, kw) {
			return RoleFluorescence
		}
	}

	fibsemKeywords := []string{"fibsem", "sem", "electron"}
	for _, kw := range fibsemKeywords {
		if strings.Contains(base, kw) {
			return RoleFIBSEM
		}
	}

	return RoleUnknown
}

// readDPI returns the resolution recorded in the TIFF or EXIF tags of r.
func readDPI(r io.Reader) (float64, error) {
	x, err := exif.Decode(r)
	if err != nil {
		return 0, err
	}

	var dpi float64
	for _, name := range []exif.FieldName{exif.XResolution, exif.YResolution} {
		tag, err := x.Get(name)
		if err != nil {
			continue
		}
		if num, denom, err := tag.Rat2(0); err == nil && denom != 0 {
			dpi = float64(num) / float64(denom)
			break
		}
	}
	if dpi == 0 {
		return 0, errors.New("no resolution tags found")
	}

	// Centimetres
	if tag, err := x.Get(exif.ResolutionUnit); err == nil {
		if unit, err := tag.Int(0); err == nil && unit == 3 {
			dpi *= 2.54
		}
	}
	return dpi, nil
}

// SupportedFormats returns the list of supported image formats.
func SupportedFormats() []string {
	return []string{".tiff", ".tif", ".png", ".jpg", ".jpeg"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}
