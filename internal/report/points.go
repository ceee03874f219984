package report

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"fib-correlate/internal/controlpoint"
	"fib-correlate/pkg/geometry"

	"github.com/jszwec/csvutil"
)

// pointRow is one line of the control-point CSV. An empty cell means the
// point has no coordinate in that image.
type pointRow struct {
	ID    int      `csv:"point_id"`
	Img1X *float64 `csv:"img1_x,omitempty"`
	Img1Y *float64 `csv:"img1_y,omitempty"`
	Img2X *float64 `csv:"img2_x,omitempty"`
	Img2Y *float64 `csv:"img2_y,omitempty"`
}

// WritePoints writes records as CSV with a header line.
func WritePoints(w io.Writer, records []controlpoint.Record) error {
	rows := make([]pointRow, len(records))
	for i, r := range records {
		row := pointRow{ID: r.ID}
		if r.Source != nil {
			x, y := r.Source.X, r.Source.Y
			row.Img1X, row.Img1Y = &x, &y
		}
		if r.Target != nil {
			x, y := r.Target.X, r.Target.Y
			row.Img2X, row.Img2Y = &x, &y
		}
		rows[i] = row
	}

	b, err := csvutil.Marshal(rows)
	if err != nil {
		return fmt.Errorf("marshal points: %w", err)
	}
	_, err = w.Write(b)
	return err
}

// ReadPoints parses a CSV written by WritePoints.
func ReadPoints(r io.Reader) ([]controlpoint.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var rows []pointRow
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse points: %w", err)
	}

	records := make([]controlpoint.Record, len(rows))
	for i, row := range rows {
		src, err := coord(row.Img1X, row.Img1Y)
		if err != nil {
			return nil, fmt.Errorf("point %d image 1: %w", row.ID, err)
		}
		dst, err := coord(row.Img2X, row.Img2Y)
		if err != nil {
			return nil, fmt.Errorf("point %d image 2: %w", row.ID, err)
		}
		records[i] = controlpoint.Record{ID: row.ID, Source: src, Target: dst}
	}
	return records, nil
}

func coord(x, y *float64) (*geometry.Point2D, error) {
	if x == nil && y == nil {
		return nil, nil
	}
	if x == nil || y == nil {
		return nil, fmt.Errorf("only one of x and y given")
	}
	p := geometry.NewPoint2D(*x, *y)
	return &p, nil
}

// SavePoints writes records to a CSV file.
func SavePoints(path string, records []controlpoint.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WritePoints(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadPoints reads a CSV file written by SavePoints.
func LoadPoints(path string) ([]controlpoint.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadPoints(f)
}
