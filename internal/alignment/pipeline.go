package alignment

import (
	"fmt"
	"image"
	"time"

	"fib-correlate/internal/controlpoint"
	"fib-correlate/pkg/geometry"

	"github.com/sirupsen/logrus"
)

// Options configures Correlate.
type Options struct {
	// Alpha weights the aligned source image in the overlay.
	Alpha float64
	Warp  WarpOptions
	Log   logrus.FieldLogger
}

// DefaultOptions returns an even blend with the default warp.
func DefaultOptions() Options {
	return Options{
		Alpha: 0.5,
		Warp:  DefaultWarpOptions(),
	}
}

// Result holds everything the pipeline produced.
type Result struct {
	Transform geometry.AffineTransform
	Aligned   *image.RGBA
	Overlay   *image.RGBA
	Residuals ResidualStats
	// Coverage is the share of the target image inside the hull of the
	// picked target coordinates.
	Coverage float64
	Points   []controlpoint.Record
}

// lowCoverage is the hull share below which the overlay is mostly extrapolated.
const lowCoverage = 0.1

// Correlate estimates the transform taking source coordinates to target
// coordinates from records, warps source into the target frame and blends
// the two. Every record must be complete; filter with controlpoint.Completed.
func Correlate(source, target image.Image, records []controlpoint.Record, opts Options) (*Result, error) {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	start := time.Now()

	src, dst, err := ExtractCoordinates(records)
	if err != nil {
		return nil, err
	}

	transform, err := EstimateAffine(src, dst)
	if err != nil {
		return nil, fmt.Errorf("estimate transform: %w", err)
	}
	residuals := Residuals(src, dst, transform)
	log.WithFields(logrus.Fields{
		"points":    len(records),
		"residuals": residuals.String(),
	}).Info("transform estimated")

	if err := checkBlend(source, target, opts.Alpha); err != nil {
		return nil, err
	}

	tb := target.Bounds()
	coverage := Coverage(dst, tb.Dx(), tb.Dy())
	if coverage < lowCoverage {
		log.WithField("coverage", fmt.Sprintf("%.1f%%", coverage*100)).
			Warn("control points span a small part of the image, spread them out for a better fit")
	}

	b, err := lookupBackend(opts.Warp.Backend)
	if err != nil {
		return nil, err
	}

	aligned, err := Warp(source, transform, opts.Warp)
	if err != nil {
		return nil, fmt.Errorf("warp: %w", err)
	}

	overlay, err := b.blend(aligned, opaqueRGBA(target), opts.Alpha)
	if err != nil {
		return nil, fmt.Errorf("blend: %w", err)
	}

	log.WithFields(logrus.Fields{
		"backend":  opts.Warp.Backend,
		"interp":   opts.Warp.Interpolation,
		"alpha":    opts.Alpha,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Info("images correlated")

	return &Result{
		Transform: transform,
		Aligned:   aligned,
		Overlay:   overlay,
		Residuals: residuals,
		Coverage:  coverage,
		Points:    records,
	}, nil
}
