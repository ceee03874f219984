package alignment

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"fib-correlate/pkg/geometry"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrInsufficientPoints is returned when fewer than three non-collinear
	// pairs are available, which leaves the affine fit underdetermined.
	ErrInsufficientPoints = errors.New("need at least 3 non-collinear control points")

	// ErrPointCountMismatch is returned when src and dst differ in length.
	ErrPointCountMismatch = errors.New("point count mismatch")
)

// collinearTolerance is the smallest normalised spread (determinant of the
// scatter matrix over its squared trace) accepted as two-dimensional.
const collinearTolerance = 1e-9

// EstimateAffine computes the least-squares affine transform mapping src onto
// dst. The transform operates in (row, column) space, so TX is the row offset
// and TY the column offset.
func EstimateAffine(src, dst []RowCol) (geometry.AffineTransform, error) {
	if len(src) != len(dst) {
		return geometry.AffineTransform{}, fmt.Errorf("%w: %d vs %d", ErrPointCountMismatch, len(src), len(dst))
	}
	s := toPoints(src)
	d := toPoints(dst)
	if err := checkSpread(s); err != nil {
		return geometry.AffineTransform{}, err
	}
	return computeAffineLeastSquares(s, d)
}

// EstimateAffineRANSAC fits an affine transform that ignores pairs whose
// reprojection error exceeds threshold, for point sets with stray picks.
// It returns the transform and the indices of the inlier pairs.
func EstimateAffineRANSAC(src, dst []RowCol, iterations int, threshold float64, seed int64) (geometry.AffineTransform, []int, error) {
	if len(src) != len(dst) {
		return geometry.AffineTransform{}, nil, fmt.Errorf("%w: %d vs %d", ErrPointCountMismatch, len(src), len(dst))
	}
	s := toPoints(src)
	d := toPoints(dst)
	if err := checkSpread(s); err != nil {
		return geometry.AffineTransform{}, nil, err
	}

	rng := rand.New(rand.NewSource(seed))
	n := len(s)
	var bestInliers []int
	var bestTransform geometry.AffineTransform

	for iter := 0; iter < iterations; iter++ {
		// Randomly sample 3 points
		indices := rng.Perm(n)[:3]

		sample := make([]geometry.Point2D, 3)
		target := make([]geometry.Point2D, 3)
		for i, idx := range indices {
			sample[i] = s[idx]
			target[i] = d[idx]
		}

		transform, err := computeAffineFromPoints(sample, target)
		if err != nil {
			continue
		}

		var inliers []int
		for i := range s {
			if transform.Apply(s[i]).Distance(d[i]) < threshold {
				inliers = append(inliers, i)
			}
		}

		if len(inliers) > len(bestInliers) {
			bestInliers = inliers
			bestTransform = transform
		}
	}

	if len(bestInliers) < 3 {
		return geometry.AffineTransform{}, nil, fmt.Errorf("RANSAC found %d inliers: %w", len(bestInliers), ErrInsufficientPoints)
	}

	// Recompute transform using all inliers
	inlierSrc := make([]geometry.Point2D, len(bestInliers))
	inlierDst := make([]geometry.Point2D, len(bestInliers))
	for i, idx := range bestInliers {
		inlierSrc[i] = s[idx]
		inlierDst[i] = d[idx]
	}
	if checkSpread(inlierSrc) != nil {
		return bestTransform, bestInliers, nil
	}

	finalTransform, err := computeAffineLeastSquares(inlierSrc, inlierDst)
	if err != nil {
		return bestTransform, bestInliers, nil
	}
	return finalTransform, bestInliers, nil
}

// checkSpread rejects point sets that cannot determine an affine transform:
// fewer than three points, or all points on one line.
func checkSpread(points []geometry.Point2D) error {
	if len(points) < 3 {
		return fmt.Errorf("got %d: %w", len(points), ErrInsufficientPoints)
	}

	c := geometry.Centroid(points)
	var sxx, syy, sxy float64
	for _, p := range points {
		dx, dy := p.X-c.X, p.Y-c.Y
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}
	trace := sxx + syy
	if trace == 0 || (sxx*syy-sxy*sxy)/(trace*trace) < collinearTolerance {
		return fmt.Errorf("points are collinear: %w", ErrInsufficientPoints)
	}
	return nil
}

// computeAffineFromPoints computes an affine transform from exactly 3 point pairs.
func computeAffineFromPoints(src, dst []geometry.Point2D) (geometry.AffineTransform, error) {
	if len(src) != 3 || len(dst) != 3 {
		return geometry.AffineTransform{}, fmt.Errorf("need exactly 3 points")
	}

	// [x', y'] = [a, b, tx; c, d, ty] * [x, y, 1]
	A := mat.NewDense(6, 6, nil)
	B := mat.NewVecDense(6, nil)

	for i := 0; i < 3; i++ {
		x, y := src[i].X, src[i].Y
		xp, yp := dst[i].X, dst[i].Y

		A.Set(i*2, 0, x)
		A.Set(i*2, 1, y)
		A.Set(i*2, 2, 1)
		B.SetVec(i*2, xp)

		A.Set(i*2+1, 3, x)
		A.Set(i*2+1, 4, y)
		A.Set(i*2+1, 5, 1)
		B.SetVec(i*2+1, yp)
	}

	var params mat.VecDense
	if err := params.SolveVec(A, B); err != nil {
		return geometry.AffineTransform{}, err
	}
	return paramsToTransform(&params), nil
}

// computeAffineLeastSquares solves the overdetermined 2n x 6 system with QR.
func computeAffineLeastSquares(src, dst []geometry.Point2D) (geometry.AffineTransform, error) {
	n := len(src)

	A := mat.NewDense(n*2, 6, nil)
	B := mat.NewVecDense(n*2, nil)

	for i := 0; i < n; i++ {
		x, y := src[i].X, src[i].Y
		xp, yp := dst[i].X, dst[i].Y

		A.Set(i*2, 0, x)
		A.Set(i*2, 1, y)
		A.Set(i*2, 2, 1)
		B.SetVec(i*2, xp)

		A.Set(i*2+1, 3, x)
		A.Set(i*2+1, 4, y)
		A.Set(i*2+1, 5, 1)
		B.SetVec(i*2+1, yp)
	}

	var qr mat.QR
	qr.Factorize(A)

	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, B); err != nil {
		return geometry.AffineTransform{}, fmt.Errorf("least squares: %w", err)
	}
	return paramsToTransform(&params), nil
}

func paramsToTransform(params *mat.VecDense) geometry.AffineTransform {
	return geometry.AffineTransform{
		A:  params.AtVec(0),
		B:  params.AtVec(1),
		TX: params.AtVec(2),
		C:  params.AtVec(3),
		D:  params.AtVec(4),
		TY: params.AtVec(5),
	}
}

// ResidualStats summarises how far transformed source points land from their
// picked targets, in pixels.
type ResidualStats struct {
	Count   int
	Mean    float64
	RMS     float64
	Max     float64
	PerPair []float64
}

func (r ResidualStats) String() string {
	return fmt.Sprintf("n=%d mean=%.3fpx rms=%.3fpx max=%.3fpx", r.Count, r.Mean, r.RMS, r.Max)
}

// Residuals computes the reprojection error of transform over the pairs.
func Residuals(src, dst []RowCol, transform geometry.AffineTransform) ResidualStats {
	if len(src) != len(dst) || len(src) == 0 {
		return ResidualStats{Mean: math.Inf(1), RMS: math.Inf(1), Max: math.Inf(1)}
	}

	errs := make([]float64, len(src))
	sq := make([]float64, len(src))
	for i := range src {
		e := transform.Apply(src[i].point()).Distance(dst[i].point())
		errs[i] = e
		sq[i] = e * e
	}

	return ResidualStats{
		Count:   len(errs),
		Mean:    stat.Mean(errs, nil),
		RMS:     math.Sqrt(stat.Mean(sq, nil)),
		Max:     floats.Max(errs),
		PerPair: errs,
	}
}
