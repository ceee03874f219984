//go:build gocv

package alignment

import (
	"image"
	"image/color"
	"runtime"
	"sync"

	"fib-correlate/pkg/geometry"

	"gocv.io/x/gocv"
)

// BackendOpenCV resamples and blends with OpenCV through gocv.
const BackendOpenCV = "opencv"

func init() {
	backends[BackendOpenCV] = backend{warp: warpOpenCV, blend: blendOpenCV}
}

func warpOpenCV(src *image.RGBA, s2d geometry.AffineTransform, interp Interpolation) (*image.RGBA, error) {
	mat := rgbaToMat(src)
	defer mat.Close()

	transformMat := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	defer transformMat.Close()
	transformMat.SetDoubleAt(0, 0, s2d.A)
	transformMat.SetDoubleAt(0, 1, s2d.B)
	transformMat.SetDoubleAt(0, 2, s2d.TX)
	transformMat.SetDoubleAt(1, 0, s2d.C)
	transformMat.SetDoubleAt(1, 1, s2d.D)
	transformMat.SetDoubleAt(1, 2, s2d.TY)

	flags := gocv.InterpolationLinear
	switch interp {
	case InterpNearest:
		flags = gocv.InterpolationNearestNeighbor
	case InterpCatmullRom:
		flags = gocv.InterpolationCubic
	}

	dst := gocv.NewMat()
	defer dst.Close()
	size := image.Point{X: src.Bounds().Dx(), Y: src.Bounds().Dy()}
	gocv.WarpAffineWithParams(mat, &dst, transformMat, size, flags, gocv.BorderConstant, color.RGBA{})

	return matToRGBA(dst), nil
}

func blendOpenCV(a, b *image.RGBA, alpha float64) (*image.RGBA, error) {
	ma := rgbaToMat(a)
	defer ma.Close()
	mb := rgbaToMat(b)
	defer mb.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.AddWeighted(ma, alpha, mb, 1.0-alpha, 0, &dst)
	return matToRGBA(dst), nil
}

// rgbaToMat converts to a BGR Mat, in horizontal stripes across workers.
func rgbaToMat(img *image.RGBA) gocv.Mat {
	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)

	stripes(height, func(yStart, yEnd int) {
		for y := yStart; y < yEnd; y++ {
			row := img.Pix[y*img.Stride:]
			for x := 0; x < width; x++ {
				mat.SetUCharAt(y, x*3+0, row[x*4+2])
				mat.SetUCharAt(y, x*3+1, row[x*4+1])
				mat.SetUCharAt(y, x*3+2, row[x*4+0])
			}
		}
	})
	return mat
}

func matToRGBA(mat gocv.Mat) *image.RGBA {
	h, w := mat.Rows(), mat.Cols()
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	stripes(h, func(yStart, yEnd int) {
		for y := yStart; y < yEnd; y++ {
			off := y * img.Stride
			for x := 0; x < w; x++ {
				p := off + x*4
				img.Pix[p+0] = mat.GetUCharAt(y, x*3+2)
				img.Pix[p+1] = mat.GetUCharAt(y, x*3+1)
				img.Pix[p+2] = mat.GetUCharAt(y, x*3+0)
				img.Pix[p+3] = 0xff
			}
		}
	})
	return img
}

func stripes(height int, fn func(yStart, yEnd int)) {
	numWorkers := runtime.NumCPU()
	rowsPerWorker := (height + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		startY := w * rowsPerWorker
		endY := startY + rowsPerWorker
		if endY > height {
			endY = height
		}
		if startY >= height {
			break
		}
		wg.Add(1)
		go func(yStart, yEnd int) {
			defer wg.Done()
			fn(yStart, yEnd)
		}(startY, endY)
	}
	wg.Wait()
}
