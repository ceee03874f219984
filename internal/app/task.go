// Package app holds the correlation task: the loaded images, the control-point
// session, the configuration and the last result, plus the application events.
package app

import (
	"errors"
	"fmt"
	goimage "image"
	"path/filepath"
	"strings"
	"sync"

	"fib-correlate/internal/alignment"
	"fib-correlate/internal/config"
	"fib-correlate/internal/controlpoint"
	"fib-correlate/internal/image"
	"fib-correlate/internal/markers"
	"fib-correlate/internal/report"

	"github.com/sirupsen/logrus"
)

// ErrNoImages is returned when the task is run before LoadImages.
var ErrNoImages = errors.New("images not loaded")

// ErrNotCorrelated is returned by Export before a successful Correlate.
var ErrNotCorrelated = errors.New("images not correlated yet")

// EventType identifies different application events.
type EventType int

const (
	EventImagesLoaded EventType = iota
	EventPointsLoaded
	EventCorrelated
	EventExported
	EventError
)

// EventListener is called when an event occurs. data is the *alignment.Result
// for EventCorrelated, the Exported for EventExported and the error for
// EventError.
type EventListener func(data interface{})

// Exported lists the files written by Export.
type Exported struct {
	Overlay  string
	Report   string
	Points   string
	Previews []string
}

// Task is one correlation between a fluorescence and a FIB-SEM image.
type Task struct {
	mu sync.RWMutex

	cfg config.Config
	log logrus.FieldLogger

	// Session receives the clicks from both image views.
	Session *controlpoint.Session

	source     *image.Layer
	target     *image.Layer
	outputPath string
	result     *alignment.Result

	listeners map[EventType][]EventListener
}

// NewTask creates a task with an empty session.
func NewTask(cfg config.Config, log logrus.FieldLogger) *Task {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Task{
		cfg:       cfg,
		log:       log,
		Session:   controlpoint.NewSession(log),
		listeners: make(map[EventType][]EventListener),
	}
}

// On registers an event listener for the specified event type.
func (t *Task) On(event EventType, listener EventListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners[event] = append(t.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (t *Task) Emit(event EventType, data interface{}) {
	t.mu.RLock()
	listeners := t.listeners[event]
	t.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// Config returns the configuration the task runs with.
func (t *Task) Config() config.Config {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cfg
}

// SetAlpha changes the overlay weight used by the next Correlate.
func (t *Task) SetAlpha(alpha float64) error {
	if !alignment.ValidAlpha(alpha) {
		return alignment.ErrInvalidAlpha
	}
	t.mu.Lock()
	t.cfg.Alignment.Alpha = alpha
	t.mu.Unlock()
	return nil
}

// LoadImages opens both inputs and limits clicks to their extents. Any
// previous result is discarded; picked points are kept.
func (t *Task) LoadImages(fluorescence, fibsem image.Input) error {
	src, dst, err := image.PrepareInputs(fluorescence, fibsem)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.source, t.target = src, dst
	t.result = nil
	t.mu.Unlock()

	t.Session.SetViewBounds(controlpoint.ViewSource, src.Width(), src.Height())
	t.Session.SetViewBounds(controlpoint.ViewTarget, dst.Width(), dst.Height())

	for _, l := range []struct {
		in    image.Input
		layer *image.Layer
	}{{fluorescence, src}, {fibsem, dst}} {
		entry := t.log.WithFields(logrus.Fields{
			"image":     l.in.String(),
			"role":      l.layer.Role,
			"grayscale": l.layer.Grayscale,
			"dpi":       l.layer.DPI,
			"resized":   l.layer.Resized,
		})
		if l.layer.RoleMismatch() {
			entry.WithField("name_role", l.layer.NameRole).Warn("file name suggests the other modality, inputs may be swapped")
		}
		entry.Info("image loaded")
	}
	t.Emit(EventImagesLoaded, nil)
	return nil
}

// Source returns the fluorescence layer.
func (t *Task) Source() *image.Layer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.source
}

// Target returns the FIB-SEM layer.
func (t *Task) Target() *image.Layer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.target
}

// SetOutputPath sets where Export writes the overlay image. A path without an
// extension gets the configured output format.
func (t *Task) SetOutputPath(path string) {
	if path != "" && filepath.Ext(path) == "" {
		path += "." + t.cfg.Output.Format
	}
	t.mu.Lock()
	t.outputPath = path
	t.mu.Unlock()
}

// OutputPath returns the overlay image path.
func (t *Task) OutputPath() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.outputPath
}

// Result returns the last correlation result, or nil.
func (t *Task) Result() *alignment.Result {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.result
}

// LoadPoints replaces the session's points with a CSV dump.
func (t *Task) LoadPoints(path string) error {
	records, err := report.LoadPoints(path)
	if err != nil {
		return fmt.Errorf("load points: %w", err)
	}
	if err := t.Session.Load(records); err != nil {
		return fmt.Errorf("load points: %w", err)
	}
	t.Emit(EventPointsLoaded, len(records))
	return nil
}

// Correlate runs the pipeline on the complete control points. Pending points
// are ignored.
func (t *Task) Correlate() (*alignment.Result, error) {
	src, dst := t.Source(), t.Target()
	if src == nil || dst == nil {
		return nil, ErrNoImages
	}

	records := controlpoint.Completed(t.Session.Points())
	if len(records) == 0 {
		t.log.Warn("no control points selected")
		return nil, alignment.ErrEmptyInput
	}

	opts := t.Config().PipelineOptions()
	opts.Log = t.log
	res, err := alignment.Correlate(src.Image, dst.Image, records, opts)
	if err != nil {
		t.Emit(EventError, err)
		return nil, err
	}

	t.mu.Lock()
	t.result = res
	t.mu.Unlock()

	t.Emit(EventCorrelated, res)
	return res, nil
}

// Export writes the overlay image, its text report and, as configured, the
// control-point CSV and annotated previews of both inputs.
func (t *Task) Export() (*Exported, error) {
	res := t.Result()
	if res == nil {
		return nil, ErrNotCorrelated
	}
	out := t.OutputPath()
	if out == "" {
		return nil, errors.New("no output path set")
	}

	if err := report.SaveImage(out, res.Overlay); err != nil {
		return nil, fmt.Errorf("save overlay: %w", err)
	}
	exported := &Exported{Overlay: out}

	path, err := report.WriteText(out, report.Summary{
		Transform: res.Transform,
		Points:    res.Points,
		Residuals: &res.Residuals,
		Images:    []report.ImageInfo{layerInfo(t.Source()), layerInfo(t.Target())},
	})
	if err != nil {
		return nil, err
	}
	exported.Report = path

	base := strings.TrimSuffix(out, filepath.Ext(out))
	if t.cfg.Output.WritePoints {
		exported.Points = base + "_points.csv"
		if err := report.SavePoints(exported.Points, t.Session.Points()); err != nil {
			return nil, fmt.Errorf("save points: %w", err)
		}
	}

	if t.cfg.Output.Annotate {
		previews := []struct {
			suffix string
			img    goimage.Image
			view   controlpoint.View
		}{
			{"_img1_points.png", t.Source().Image, controlpoint.ViewSource},
			{"_img2_points.png", t.Target().Image, controlpoint.ViewTarget},
		}
		points := t.Session.Points()
		for _, p := range previews {
			path := base + p.suffix
			annotated := markers.Render(p.img, points, p.view, markers.DefaultStyle())
			if err := report.SaveImage(path, annotated); err != nil {
				return nil, fmt.Errorf("save preview: %w", err)
			}
			exported.Previews = append(exported.Previews, path)
		}
	}

	t.log.WithFields(logrus.Fields{
		"overlay": exported.Overlay,
		"report":  exported.Report,
	}).Info("correlation exported")
	t.Emit(EventExported, exported)
	return exported, nil
}

func layerInfo(l *image.Layer) report.ImageInfo {
	return report.ImageInfo{
		Role:      l.Role.String(),
		Path:      l.Path,
		Width:     l.Width(),
		Height:    l.Height(),
		Grayscale: l.Grayscale,
		DPI:       l.DPI,
		PixelSize: l.PixelSize(),
	}
}

// Run correlates and exports, the action behind the window's return button.
func (t *Task) Run() (*Exported, error) {
	if _, err := t.Correlate(); err != nil {
		return nil, err
	}
	return t.Export()
}
