// Package canvas provides an image view with pan, zoom, click delivery and
// control-point markers.
package canvas

import (
	"image"
	"image/color"

	"fib-correlate/internal/markers"

	"fyne.io/fyne/v2"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
)

const (
	minZoom  = 0.05
	maxZoom  = 20.0
	zoomStep = 1.25
)

// Tool represents the current interaction tool.
type Tool int

const (
	ToolPick Tool = iota // Clicks are delivered to OnLeftClick
	ToolPan              // Drags scroll the view, clicks are swallowed
)

// ImageCanvas displays one image with markers drawn over it.
type ImageCanvas struct {
	widget.BaseWidget

	img     *image.RGBA
	markers []markers.Marker
	style   markers.Style

	// Display state
	raster *fynecanvas.Raster
	zoom   float64

	// Interaction state
	tool      Tool
	crosshair bool
	hovering  bool

	// Container
	scroll  *zoomScroll
	content *draggableContent
	imgSize fyne.Size

	// Fit to window
	fitToWindow    bool
	lastScrollSize fyne.Size

	// Callbacks
	onZoomChange   func(zoom float64)
	onLeftClick    func(x, y float64) // Left click at image coordinates
	onPointerEnter func()
	onPointerLeave func()
}

// zoomScroll is a widget that wraps a scroll container but intercepts wheel for zoom.
type zoomScroll struct {
	widget.BaseWidget
	scroll *container.Scroll
	canvas *ImageCanvas
}

func newZoomScroll(content fyne.CanvasObject, canvas *ImageCanvas) *zoomScroll {
	scroll := container.NewScroll(content)
	scroll.Direction = container.ScrollBoth
	zs := &zoomScroll{scroll: scroll, canvas: canvas}
	zs.ExtendBaseWidget(zs)
	return zs
}

func (zs *zoomScroll) Scrolled(ev *fyne.ScrollEvent) {
	// Use wheel for zoom, not scroll
	if ev.Scrolled.DY > 0 {
		zs.canvas.ZoomIn()
	} else if ev.Scrolled.DY < 0 {
		zs.canvas.ZoomOut()
	}
}

func (zs *zoomScroll) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(zs.scroll)
}

// Offset returns the scroll container's current offset.
func (zs *zoomScroll) Offset() fyne.Position {
	return zs.scroll.Offset
}

// Size returns the scroll container's size.
func (zs *zoomScroll) Size() fyne.Size {
	return zs.scroll.Size()
}

// Refresh refreshes the scroll container.
func (zs *zoomScroll) Refresh() {
	zs.scroll.Refresh()
	zs.BaseWidget.Refresh()
}

// Resize sets the size of the scroll container.
func (zs *zoomScroll) Resize(size fyne.Size) {
	zs.scroll.Resize(size)
	zs.BaseWidget.Resize(size)
}

// draggableContent wraps the raster to handle mouse events.
type draggableContent struct {
	widget.BaseWidget
	canvas *ImageCanvas
	raster *fynecanvas.Raster
}

var (
	_ fyne.Tappable     = (*draggableContent)(nil)
	_ fyne.Draggable    = (*draggableContent)(nil)
	_ desktop.Hoverable = (*draggableContent)(nil)
	_ desktop.Cursorable = (*draggableContent)(nil)
)

func newDraggableContent(ic *ImageCanvas, raster *fynecanvas.Raster) *draggableContent {
	dc := &draggableContent{
		canvas: ic,
		raster: raster,
	}
	dc.ExtendBaseWidget(dc)
	return dc
}

func (dc *draggableContent) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(dc.raster)
}

func (dc *draggableContent) MinSize() fyne.Size {
	return dc.raster.MinSize()
}

// Dragged pans the view while the pan tool is active.
func (dc *draggableContent) Dragged(ev *fyne.DragEvent) {
	if dc.canvas.tool != ToolPan {
		return
	}
	s := dc.canvas.scroll.scroll
	s.Offset = fyne.NewPos(s.Offset.X-ev.Dragged.DX, s.Offset.Y-ev.Dragged.DY)
	s.Refresh()
}

func (dc *draggableContent) DragEnd() {}

func (dc *draggableContent) Scrolled(ev *fyne.ScrollEvent) {
	// Use mouse wheel for zooming
	if ev.Scrolled.DY > 0 {
		dc.canvas.ZoomIn()
	} else if ev.Scrolled.DY < 0 {
		dc.canvas.ZoomOut()
	}
}

// Tapped handles left-click events.
func (dc *draggableContent) Tapped(ev *fyne.PointEvent) {
	if dc.canvas.onLeftClick == nil || dc.canvas.tool != ToolPick {
		return
	}

	// Workaround for Fyne bug: reject clicks outside widget bounds
	size := dc.Size()
	if ev.Position.X < 0 || ev.Position.Y < 0 ||
		ev.Position.X > size.Width || ev.Position.Y > size.Height {
		return
	}

	// ev.Position is relative to the content, which already scrolls with the view
	imgX, imgY := dc.canvas.CanvasToImage(float64(ev.Position.X), float64(ev.Position.Y))
	dc.canvas.onLeftClick(imgX, imgY)
}

func (dc *draggableContent) MouseIn(*desktop.MouseEvent) {
	dc.canvas.hovering = true
	if dc.canvas.onPointerEnter != nil {
		dc.canvas.onPointerEnter()
	}
}

func (dc *draggableContent) MouseMoved(*desktop.MouseEvent) {}

func (dc *draggableContent) MouseOut() {
	dc.canvas.hovering = false
	if dc.canvas.onPointerLeave != nil {
		dc.canvas.onPointerLeave()
	}
}

// Cursor shows a cross-hair while picking.
func (dc *draggableContent) Cursor() desktop.Cursor {
	if dc.canvas.crosshair {
		return desktop.CrosshairCursor
	}
	return desktop.DefaultCursor
}

// NewImageCanvas creates a new image canvas.
func NewImageCanvas() *ImageCanvas {
	ic := &ImageCanvas{
		zoom:    1.0,
		tool:    ToolPick,
		style:   markers.DefaultStyle(),
		imgSize: fyne.NewSize(400, 300),
	}

	// Create the raster for drawing
	ic.raster = fynecanvas.NewRaster(ic.draw)
	ic.raster.ScaleMode = fynecanvas.ImageScalePixels
	ic.raster.SetMinSize(ic.imgSize)

	// Wrap raster in draggable content for mouse events
	ic.content = newDraggableContent(ic, ic.raster)

	// Create zoomable scroll container (wheel = zoom, drag = pan)
	ic.scroll = newZoomScroll(ic.content, ic)

	ic.ExtendBaseWidget(ic)
	return ic
}

// SetImage sets the image to display.
func (ic *ImageCanvas) SetImage(img *image.RGBA) {
	ic.img = img
	ic.updateContentSize()
}

// Image returns the displayed image.
func (ic *ImageCanvas) Image() *image.RGBA {
	return ic.img
}

// SetMarkers replaces the control-point markers.
func (ic *ImageCanvas) SetMarkers(m []markers.Marker) {
	ic.markers = m
	ic.Refresh()
}

// SetCrosshair switches the pointer between an arrow and a cross-hair.
func (ic *ImageCanvas) SetCrosshair(on bool) {
	ic.crosshair = on
}

// SetZoom sets the zoom level.
func (ic *ImageCanvas) SetZoom(zoom float64) {
	if zoom < minZoom {
		zoom = minZoom
	}
	if zoom > maxZoom {
		zoom = maxZoom
	}
	ic.zoom = zoom
	ic.updateContentSize()

	if ic.onZoomChange != nil {
		ic.onZoomChange(zoom)
	}
}

// GetZoom returns the current zoom level.
func (ic *ImageCanvas) GetZoom() float64 {
	return ic.zoom
}

// ZoomIn increases the zoom level.
func (ic *ImageCanvas) ZoomIn() {
	ic.SetZoom(ic.zoom * zoomStep)
}

// ZoomOut decreases the zoom level.
func (ic *ImageCanvas) ZoomOut() {
	ic.SetZoom(ic.zoom / zoomStep)
}

// FitToWindow adjusts zoom to fit the image in the visible area.
func (ic *ImageCanvas) FitToWindow() {
	if ic.img == nil {
		return
	}
	bounds := ic.img.Bounds()
	viewSize := ic.scroll.Size()
	if viewSize.Width <= 0 || viewSize.Height <= 0 || bounds.Empty() {
		return
	}

	zoomX := float64(viewSize.Width) / float64(bounds.Dx())
	zoomY := float64(viewSize.Height) / float64(bounds.Dy())

	zoom := zoomX
	if zoomY < zoomX {
		zoom = zoomY
	}
	ic.SetZoom(zoom * 0.95) // Leave a small margin
}

// SetFitToWindow enables or disables auto-fit on resize.
func (ic *ImageCanvas) SetFitToWindow(fit bool) {
	ic.fitToWindow = fit
	if fit {
		ic.FitToWindow()
	}
}

// CheckResize checks if scroll container was resized and auto-fits if enabled.
func (ic *ImageCanvas) CheckResize(size fyne.Size) {
	if !ic.fitToWindow {
		return
	}
	if size.Width > 0 && size.Height > 0 && size != ic.lastScrollSize {
		ic.lastScrollSize = size
		ic.FitToWindow()
	}
}

// SetTool sets the current interaction tool.
func (ic *ImageCanvas) SetTool(tool Tool) {
	ic.tool = tool
}

// Tool returns the current interaction tool.
func (ic *ImageCanvas) Tool() Tool {
	return ic.tool
}

// OnZoomChange sets a callback for zoom changes.
func (ic *ImageCanvas) OnZoomChange(callback func(zoom float64)) {
	ic.onZoomChange = callback
}

// OnLeftClick sets a callback for left-click events while picking.
// Coordinates are in image space (not zoomed).
func (ic *ImageCanvas) OnLeftClick(callback func(x, y float64)) {
	ic.onLeftClick = callback
}

// OnPointer sets callbacks for the pointer entering and leaving the image.
func (ic *ImageCanvas) OnPointer(enter, leave func()) {
	ic.onPointerEnter = enter
	ic.onPointerLeave = leave
}

// Refresh refreshes the canvas display.
func (ic *ImageCanvas) Refresh() {
	ic.raster.Refresh()
}

// updateContentSize updates the content size based on image and zoom.
func (ic *ImageCanvas) updateContentSize() {
	if ic.img == nil || ic.img.Bounds().Empty() {
		ic.imgSize = fyne.NewSize(400, 300)
	} else {
		b := ic.img.Bounds()
		ic.imgSize = fyne.NewSize(float32(float64(b.Dx())*ic.zoom), float32(float64(b.Dy())*ic.zoom))
	}

	ic.raster.SetMinSize(ic.imgSize)
	ic.raster.Resize(ic.imgSize)
	if ic.content != nil {
		ic.content.Resize(ic.imgSize)
		ic.content.Refresh()
	}
	ic.raster.Refresh()
	if ic.scroll != nil {
		ic.scroll.Refresh()
	}
}

// visibleImageWidth is the width of the image area in view, in image pixels.
func (ic *ImageCanvas) visibleImageWidth() float64 {
	if ic.img == nil {
		return 0
	}
	w := float64(ic.img.Bounds().Dx())
	if view := float64(ic.scroll.Size().Width) / ic.zoom; view > 0 && view < w {
		return view
	}
	return w
}

// draw is the raster drawing function. w and h are in device pixels.
func (ic *ImageCanvas) draw(w, h int) image.Image {
	// Check for size change and auto-fit if enabled
	currentSize := fyne.NewSize(float32(w), float32(h))
	if ic.fitToWindow && currentSize != ic.lastScrollSize && w > 0 && h > 0 {
		ic.lastScrollSize = currentSize
		go ic.FitToWindow()
	}

	output := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(output, output.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	if ic.img == nil || w == 0 || h == 0 {
		return output
	}

	src := ic.img.Bounds()
	scaler := draw.Interpolator(draw.ApproxBiLinear)
	if float64(w) >= float64(src.Dx()) {
		scaler = draw.NearestNeighbor // Keep pixels crisp when zoomed in
	}
	scaler.Scale(output, output.Bounds(), ic.img, src, draw.Src, nil)

	if len(ic.markers) > 0 {
		sx := float64(w) / float64(src.Dx())
		sy := float64(h) / float64(src.Dy())
		scaled := make([]markers.Marker, len(ic.markers))
		for i, m := range ic.markers {
			m.X *= sx
			m.Y *= sy
			scaled[i] = m
		}
		unit := ic.style.Unit(ic.visibleImageWidth()) * sx
		markers.Draw(gg.NewContextForRGBA(output), scaled, unit, ic.style)
	}
	return output
}

// ImageToCanvas converts image coordinates to canvas coordinates.
func (ic *ImageCanvas) ImageToCanvas(imgX, imgY float64) (canvasX, canvasY float64) {
	canvasX = imgX * ic.zoom
	canvasY = imgY * ic.zoom
	return
}

// CanvasToImage converts canvas coordinates to image coordinates.
func (ic *ImageCanvas) CanvasToImage(canvasX, canvasY float64) (imgX, imgY float64) {
	imgX = canvasX / ic.zoom
	imgY = canvasY / ic.zoom
	return
}

// CreateRenderer implements fyne.Widget.
func (ic *ImageCanvas) CreateRenderer() fyne.WidgetRenderer {
	return &imageCanvasRenderer{canvas: ic}
}

type imageCanvasRenderer struct {
	canvas *ImageCanvas
}

func (r *imageCanvasRenderer) Layout(size fyne.Size) {
	r.canvas.scroll.Resize(size)
	r.canvas.CheckResize(size)
}

func (r *imageCanvasRenderer) MinSize() fyne.Size {
	return fyne.NewSize(100, 100)
}

func (r *imageCanvasRenderer) Refresh() {
	r.canvas.raster.Refresh()
}

func (r *imageCanvasRenderer) Objects() []fyne.CanvasObject {
	return []fyne.CanvasObject{r.canvas.scroll}
}

func (r *imageCanvasRenderer) Destroy() {}
