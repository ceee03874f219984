package report

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fib-correlate/internal/alignment"
	"fib-correlate/internal/controlpoint"
	"fib-correlate/internal/version"
	"fib-correlate/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []controlpoint.Record {
	a, b := geometry.NewPoint2D(10, 20), geometry.NewPoint2D(15.5, 25.25)
	c := geometry.NewPoint2D(7, 8)
	return []controlpoint.Record{
		{ID: 1, Source: &a, Target: &b},
		{ID: 3, Target: &c},
	}
}

func TestTextPath(t *testing.T) {
	assert.Equal(t, "/tmp/out/overlay.txt", TextPath("/tmp/out/overlay.png"))
	assert.Equal(t, "overlay.txt", TextPath("overlay"))
}

func TestWriteText(t *testing.T) {
	dir := t.TempDir()
	records := sampleRecords()[:1]
	stats := alignment.ResidualStats{Count: 1, Mean: 0.5, RMS: 0.5, Max: 0.5}

	path, err := WriteText(filepath.Join(dir, "result.tif"), Summary{
		Transform: geometry.Translation(5, 5),
		Points:    records,
		Residuals: &stats,
		Images: []ImageInfo{
			{Role: "Fluorescence", Path: "cell.tif", Width: 40, Height: 30, Grayscale: true, DPI: 254, PixelSize: 100},
			{Role: "FIB-SEM", Width: 80, Height: 60},
		},
		Time: time.Date(2024, time.March, 5, 14, 7, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "result.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(string(data), "\n")

	require.GreaterOrEqual(t, len(lines), 10)
	assert.Equal(t, "05-Mar-2024_14-07PM", lines[0])
	assert.Equal(t, version.String(), lines[1])
	assert.Equal(t, "", lines[2])
	assert.Equal(t, "TRANSFORMATION MATRIX", lines[3])
	assert.Contains(t, lines[4], "5")
	assert.Equal(t, "", lines[7])
	assert.Equal(t, "USER SELECTED CONTROL POINTS", lines[8])
	assert.Equal(t, records[0].String(), lines[9])
	assert.Contains(t, string(data), "RESIDUALS\n"+stats.String())
	assert.Contains(t, string(data), "INPUT IMAGES\n"+
		"Fluorescence: cell.tif 40x30 gray, 254 dpi, 100 um/px\n"+
		"FIB-SEM: (in memory) 80x60 rgb, resolution unknown\n")
}

func TestFormatMatrixHasThreeRows(t *testing.T) {
	out := FormatMatrix(geometry.Identity())
	assert.Len(t, strings.Split(out, "\n"), 3)
}

func TestPointsRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePoints(&buf, sampleRecords()))

	header := strings.SplitN(buf.String(), "\n", 2)[0]
	assert.Equal(t, "point_id,img1_x,img1_y,img2_x,img2_y", header)

	got, err := ReadPoints(&buf)
	require.NoError(t, err)
	assert.Equal(t, sampleRecords(), got)
}

func TestReadPointsErrors(t *testing.T) {
	got, err := ReadPoints(strings.NewReader("  \n"))
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ReadPoints(strings.NewReader("point_id,img1_x,img1_y,img2_x,img2_y\n1,3,,4,5\n"))
	assert.Error(t, err)

	_, err = ReadPoints(strings.NewReader("point_id,img1_x,img1_y,img2_x,img2_y\nx,1,2,3,4\n"))
	assert.Error(t, err)
}

func TestSavePointsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.csv")
	require.NoError(t, SavePoints(path, sampleRecords()))

	got, err := LoadPoints(path)
	require.NoError(t, err)
	assert.Equal(t, sampleRecords(), got)
}

func TestSaveImage(t *testing.T) {
	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.SetRGBA(1, 1, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	for _, name := range []string{"a.png", "b.tif", "c.jpg"} {
		path := filepath.Join(dir, name)
		require.NoError(t, SaveImage(path, img), name)

		f, err := os.Open(path)
		require.NoError(t, err)
		decoded, _, err := image.Decode(f)
		f.Close()
		require.NoError(t, err, name)
		assert.Equal(t, img.Bounds(), decoded.Bounds(), name)
	}

	err := SaveImage(filepath.Join(dir, "d.bmp"), img)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
