// Package report writes the correlation outputs: the overlay image, the text
// summary of the transform and the control-point table.
package report

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fib-correlate/internal/alignment"
	"fib-correlate/internal/controlpoint"
	"fib-correlate/internal/version"
	"fib-correlate/pkg/geometry"

	"golang.org/x/image/tiff"
	"gonum.org/v1/gonum/mat"
)

// TimestampLayout is the first line of every text report.
const TimestampLayout = "02-Jan-2006_15-04PM"

// ErrUnsupportedFormat is returned by SaveImage for an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// TextPath returns the report path that belongs to an output image path.
func TextPath(outputImagePath string) string {
	return strings.TrimSuffix(outputImagePath, filepath.Ext(outputImagePath)) + ".txt"
}

// ImageInfo describes one input image in the report.
type ImageInfo struct {
	Role      string
	Path      string // Empty for in-memory input
	Width     int
	Height    int
	Grayscale bool
	DPI       float64 // 0 when unknown
	PixelSize float64 // Micrometres per pixel, 0 when unknown
}

func (i ImageInfo) String() string {
	src := i.Path
	if src == "" {
		src = "(in memory)"
	}
	channels := "rgb"
	if i.Grayscale {
		channels = "gray"
	}
	res := "resolution unknown"
	if i.DPI > 0 {
		res = fmt.Sprintf("%.4g dpi, %.4g um/px", i.DPI, i.PixelSize)
	}
	return fmt.Sprintf("%s: %s %dx%d %s, %s", i.Role, src, i.Width, i.Height, channels, res)
}

// Summary is the content of a text report.
type Summary struct {
	Transform geometry.AffineTransform
	Points    []controlpoint.Record
	Residuals *alignment.ResidualStats
	Images    []ImageInfo
	Time      time.Time
}

// WriteText writes the summary next to outputImagePath, replacing its
// extension with .txt, and returns the path written.
func WriteText(outputImagePath string, s Summary) (string, error) {
	path := TextPath(outputImagePath)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}

	w := bufio.NewWriter(f)
	writeSummary(w, s)
	if err := w.Flush(); err != nil {
		f.Close()
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close report: %w", err)
	}
	return path, nil
}

func writeSummary(w *bufio.Writer, s Summary) {
	ts := s.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	fmt.Fprintln(w, ts.Format(TimestampLayout))
	fmt.Fprintln(w, version.String())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "TRANSFORMATION MATRIX")
	fmt.Fprintln(w, FormatMatrix(s.Transform))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "USER SELECTED CONTROL POINTS")
	for _, p := range s.Points {
		fmt.Fprintln(w, p.String())
	}

	if s.Residuals != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "RESIDUALS")
		fmt.Fprintln(w, s.Residuals.String())
	}

	if len(s.Images) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "INPUT IMAGES")
		for _, img := range s.Images {
			fmt.Fprintln(w, img.String())
		}
	}
}

// FormatMatrix renders the homogeneous 3x3 matrix of t.
func FormatMatrix(t geometry.AffineTransform) string {
	m := t.Matrix()
	dense := mat.NewDense(3, 3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	})
	return fmt.Sprintf("%.8g", mat.Formatted(dense, mat.Squeeze()))
}

// SaveImage encodes img by the extension of path: PNG, JPEG or TIFF.
func SaveImage(path string, img image.Image) error {
	var encode func(*os.File) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		encode = func(f *os.File) error { return png.Encode(f, img) }
	case ".jpg", ".jpeg":
		encode = func(f *os.File) error { return jpeg.Encode(f, img, &jpeg.Options{Quality: 95}) }
	case ".tif", ".tiff":
		encode = func(f *os.File) error {
			return tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate})
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := encode(f); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
