// Package mainwindow provides the correlation window.
package mainwindow

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"fib-correlate/internal/app"
	"fib-correlate/internal/controlpoint"
	"fib-correlate/internal/image"
	"fib-correlate/internal/markers"
	"fib-correlate/internal/report"
	"fib-correlate/internal/version"
	"fib-correlate/pkg/colorutil"
	"fib-correlate/ui/canvas"
	"fib-correlate/ui/prefs"

	"fyne.io/fyne/v2"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
)

var tableHeaders = []string{"ID", "Image 1", "Image 2"}

// MainWindow is the correlation window: both image views side by side with
// the control-point table and the pick, delete and return buttons.
type MainWindow struct {
	fyne.Window
	app   fyne.App
	task  *app.Task
	prefs *prefs.Prefs

	views     [2]*canvas.ImageCanvas // Indexed like viewOrder
	table     *widget.Table
	records   []controlpoint.Record
	selected  map[int]bool
	pickBtn   *widget.Button
	pickBg    *fynecanvas.Rectangle
	panBtn    *widget.Button
	alpha     *widget.Slider
	alphaText *widget.Label
	statusBar *widget.Label

	navigating bool
	fit        bool

	fitToWindowItem *fyne.MenuItem

	onReturn func(*app.Exported)
}

var viewOrder = [2]controlpoint.View{controlpoint.ViewSource, controlpoint.ViewTarget}

// New creates the window for task.
func New(fyneApp fyne.App, task *app.Task, p *prefs.Prefs) *MainWindow {
	win := fyneApp.NewWindow(version.Name)

	mw := &MainWindow{
		Window:   win,
		app:      fyneApp,
		task:     task,
		prefs:    p,
		selected: make(map[int]bool),
		fit:      p.Bool(prefs.KeyFitToWindow, true),
	}

	mw.setupUI()
	mw.setupMenus()
	mw.setupEventHandlers()
	mw.syncImages()
	mw.syncPoints()
	mw.syncPickButton()

	win.SetOnClosed(func() {
		_ = mw.prefs.Save()
	})
	return mw
}

// OnReturn sets the callback run after the return button exported a result.
func (mw *MainWindow) OnReturn(callback func(*app.Exported)) {
	mw.onReturn = callback
}

// setupUI creates the main UI layout.
func (mw *MainWindow) setupUI() {
	for i, view := range viewOrder {
		view := view
		ic := canvas.NewImageCanvas()
		ic.OnLeftClick(func(x, y float64) {
			mw.handleClick(view, x, y)
		})
		ic.OnPointer(func() {
			mw.task.Session.PointerEntered(view)
		}, mw.task.Session.PointerLeft)
		mw.views[i] = ic
	}

	mw.statusBar = widget.NewLabel("Ready")
	mw.table = mw.createTable()

	viewArea := container.NewGridWithColumns(2,
		container.NewBorder(widget.NewLabelWithStyle("Image 1: fluorescence", fyne.TextAlignCenter, fyne.TextStyle{Bold: true}), nil, nil, nil, mw.views[0]),
		container.NewBorder(widget.NewLabelWithStyle("Image 2: FIB-SEM", fyne.TextAlignCenter, fyne.TextStyle{Bold: true}), nil, nil, nil, mw.views[1]),
	)

	pointArea := container.NewBorder(
		widget.NewLabelWithStyle("Control points", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		container.NewGridWithColumns(2,
			widget.NewButton("Delete", mw.onDelete),
			widget.NewButton("Return", mw.onReturnTapped),
		),
		nil, nil,
		mw.table,
	)

	split := container.NewHSplit(viewArea, pointArea)
	split.SetOffset(0.78) // Table takes the right fifth

	content := container.NewBorder(
		mw.createToolbar(),                // top
		container.NewPadded(mw.statusBar), // bottom
		nil,                               // left
		nil,                               // right
		split,                             // center
	)

	mw.SetContent(content)
	mw.Resize(fyne.NewSize(1400, 800))
}

// createToolbar creates the toolbar with pick, navigation and zoom controls.
func (mw *MainWindow) createToolbar() fyne.CanvasObject {
	mw.pickBtn = widget.NewButton("Pick", mw.onTogglePick)
	mw.pickBtn.Importance = widget.LowImportance
	mw.pickBg = fynecanvas.NewRectangle(colorutil.PickButtonColor(false))
	mw.pickBg.CornerRadius = 4

	mw.panBtn = widget.NewButton("Pan", mw.onTogglePan)

	cfgAlpha := mw.task.Config().Alignment.Alpha
	mw.alphaText = widget.NewLabel("")
	mw.alpha = widget.NewSlider(0, 1)
	mw.alpha.Step = 0.05
	mw.alpha.SetValue(mw.prefs.FloatWithFallback(prefs.KeyAlpha, cfgAlpha))
	mw.alpha.OnChanged = mw.onAlphaChanged
	mw.onAlphaChanged(mw.alpha.Value)

	return container.NewHBox(
		container.NewStack(mw.pickBg, mw.pickBtn),
		mw.panBtn,
		widget.NewSeparator(),
		widget.NewLabel("Zoom:"),
		widget.NewButton("-", mw.onZoomOut),
		widget.NewButton("+", mw.onZoomIn),
		widget.NewButton("Fit", mw.onToggleFitToWindow),
		widget.NewButton("1:1", mw.onActualSize),
		widget.NewSeparator(),
		mw.alphaText,
		container.NewGridWrap(fyne.NewSize(160, 36), mw.alpha),
	)
}

func (mw *MainWindow) createTable() *widget.Table {
	t := widget.NewTable(
		func() (int, int) {
			return len(mw.records), len(tableHeaders)
		},
		func() fyne.CanvasObject {
			return widget.NewLabel("(0000.0, 0000.0)")
		},
		func(id widget.TableCellID, o fyne.CanvasObject) {
			label := o.(*widget.Label)
			if id.Row >= len(mw.records) {
				label.SetText("")
				return
			}
			rec := mw.records[id.Row]
			label.TextStyle.Bold = mw.selected[rec.ID]
			label.SetText(cellText(rec, id.Col))
		},
	)
	t.ShowHeaderRow = true
	t.CreateHeader = func() fyne.CanvasObject {
		return widget.NewLabelWithStyle("", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	}
	t.UpdateHeader = func(id widget.TableCellID, o fyne.CanvasObject) {
		if id.Col >= 0 && id.Col < len(tableHeaders) {
			o.(*widget.Label).SetText(tableHeaders[id.Col])
		}
	}
	t.SetColumnWidth(0, 40)
	t.SetColumnWidth(1, 130)
	t.SetColumnWidth(2, 130)

	// Tapping a row toggles it in the delete selection
	t.OnSelected = func(id widget.TableCellID) {
		if id.Row >= 0 && id.Row < len(mw.records) {
			mw.toggleSelected(mw.records[id.Row].ID)
		}
		t.Unselect(id)
	}
	return t
}

func cellText(rec controlpoint.Record, col int) string {
	if col == 0 {
		return fmt.Sprintf("%d", rec.ID)
	}
	view := viewOrder[col-1]
	p, ok := rec.Coord(view)
	if !ok {
		return "-"
	}
	return fmt.Sprintf("(%.1f, %.1f)", p.X, p.Y)
}

// setupMenus creates the application menus.
func (mw *MainWindow) setupMenus() {
	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("Open Fluorescence Image...", func() { mw.onOpenImage(controlpoint.ViewSource) }),
		fyne.NewMenuItem("Open FIB-SEM Image...", func() { mw.onOpenImage(controlpoint.ViewTarget) }),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Load Points...", mw.onLoadPoints),
		fyne.NewMenuItem("Save Points...", mw.onSavePoints),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Quit", func() { mw.app.Quit() }),
	)

	mw.fitToWindowItem = fyne.NewMenuItem("Fit to Window", mw.onToggleFitToWindow)
	mw.fitToWindowItem.Checked = mw.fit

	viewMenu := fyne.NewMenu("View",
		fyne.NewMenuItem("Zoom In", mw.onZoomIn),
		fyne.NewMenuItem("Zoom Out", mw.onZoomOut),
		mw.fitToWindowItem,
		fyne.NewMenuItem("Actual Size", mw.onActualSize),
	)

	pointsMenu := fyne.NewMenu("Points",
		fyne.NewMenuItem("Pick Mode", mw.onTogglePick),
		fyne.NewMenuItem("Delete Selected", mw.onDelete),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Correlate and Return", mw.onReturnTapped),
	)

	helpMenu := fyne.NewMenu("Help",
		fyne.NewMenuItem("About", mw.onAbout),
	)

	mw.SetMainMenu(fyne.NewMainMenu(fileMenu, viewMenu, pointsMenu, helpMenu))
}

// setupEventHandlers registers for session and task events.
func (mw *MainWindow) setupEventHandlers() {
	mw.task.Session.On(func(ev controlpoint.Event) {
		switch ev.Type {
		case controlpoint.EventPointsChanged:
			mw.syncPoints()
		case controlpoint.EventPickModeChanged:
			mw.syncPickButton()
			mw.syncCursor()
		case controlpoint.EventCursorChanged:
			mw.syncCursor()
		}
		if ev.Message != "" {
			mw.updateStatus(ev.Message)
		}
	})

	mw.task.On(app.EventImagesLoaded, func(interface{}) {
		mw.syncImages()
		mw.updateStatus("Images loaded")
	})

	mw.task.On(app.EventCorrelated, func(data interface{}) {
		mw.updateStatus("Correlation complete")
	})

	mw.task.On(app.EventError, func(data interface{}) {
		if err, ok := data.(error); ok {
			mw.updateStatus("Correlation failed: " + err.Error())
		}
	})
}

// updateStatus updates the status bar text.
func (mw *MainWindow) updateStatus(text string) {
	mw.statusBar.SetText(text)
}

func (mw *MainWindow) handleClick(view controlpoint.View, x, y float64) {
	err := mw.task.Session.RegisterClick(view, x, y)
	if err != nil && !errors.Is(err, controlpoint.ErrDuplicateSide) {
		dialog.ShowError(err, mw.Window)
	}
}

func (mw *MainWindow) syncImages() {
	layers := [2]*image.Layer{mw.task.Source(), mw.task.Target()}
	for i, l := range layers {
		if l == nil {
			continue
		}
		mw.views[i].SetImage(l.Image)
		mw.views[i].SetFitToWindow(mw.fit)
	}
}

func (mw *MainWindow) syncPoints() {
	mw.records = mw.task.Session.Points()

	present := make(map[int]bool, len(mw.records))
	for _, rec := range mw.records {
		present[rec.ID] = true
	}
	for id := range mw.selected {
		if !present[id] {
			delete(mw.selected, id)
		}
	}

	for i, view := range viewOrder {
		mw.views[i].SetMarkers(markers.ForView(mw.records, view))
	}
	mw.table.Refresh()
}

func (mw *MainWindow) syncPickButton() {
	picking := mw.task.Session.PickMode()
	mw.pickBg.FillColor = colorutil.PickButtonColor(picking)
	mw.pickBg.Refresh()
}

func (mw *MainWindow) syncCursor() {
	cross := mw.task.Session.Cursor() == controlpoint.CursorCross
	for _, v := range mw.views {
		v.SetCrosshair(cross)
	}
}

func (mw *MainWindow) toggleSelected(id int) {
	if mw.selected[id] {
		delete(mw.selected, id)
	} else {
		mw.selected[id] = true
	}
	mw.table.Refresh()
}

func (mw *MainWindow) selectedIDs() []int {
	ids := make([]int, 0, len(mw.selected))
	for id := range mw.selected {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Button and menu handlers

func (mw *MainWindow) onTogglePick() {
	// A refused request already produced a status message
	_ = mw.task.Session.SetPickMode(!mw.task.Session.PickMode())
}

func (mw *MainWindow) onTogglePan() {
	mw.navigating = !mw.navigating
	mw.task.Session.SetNavigating(mw.navigating)

	tool := canvas.ToolPick
	mw.panBtn.Importance = widget.MediumImportance
	if mw.navigating {
		tool = canvas.ToolPan
		mw.panBtn.Importance = widget.HighImportance
	}
	for _, v := range mw.views {
		v.SetTool(tool)
	}
	mw.panBtn.Refresh()
}

func (mw *MainWindow) onDelete() {
	ids := mw.selectedIDs()
	if len(ids) == 0 {
		mw.updateStatus("Select points in the table first.")
		return
	}
	mw.task.Session.DeletePoints(ids...)
}

func (mw *MainWindow) onAlphaChanged(v float64) {
	if err := mw.task.SetAlpha(v); err != nil {
		return
	}
	mw.prefs.SetFloat(prefs.KeyAlpha, v)
	mw.alphaText.SetText(fmt.Sprintf("Alpha: %.2f", v))
}

// onReturnTapped correlates, exports and hands the result to the caller.
func (mw *MainWindow) onReturnTapped() {
	if mw.task.OutputPath() == "" {
		mw.chooseOutput(mw.onReturnTapped)
		return
	}

	mw.updateStatus("Correlating...")
	exported, err := mw.task.Run()
	if err != nil {
		dialog.ShowError(err, mw.Window)
		return
	}
	mw.updateStatus("Saved " + exported.Overlay)
	if mw.onReturn != nil {
		mw.onReturn(exported)
	}
}

func (mw *MainWindow) chooseOutput(then func()) {
	fd := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil || writer == nil {
			return
		}
		writer.Close()
		path := writer.URI().Path()
		mw.prefs.SetDirOf(prefs.KeyLastImageDir, path)
		mw.task.SetOutputPath(path)
		then()
	}, mw.Window)
	fd.SetFileName("overlay." + mw.task.Config().Output.Format)
	if loc := mw.lastDir(prefs.KeyLastImageDir); loc != nil {
		fd.SetLocation(loc)
	}
	fd.Show()
}

func (mw *MainWindow) onOpenImage(view controlpoint.View) {
	fd := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		reader.Close()
		path := reader.URI().Path()
		mw.prefs.SetDirOf(prefs.KeyLastImageDir, path)

		src, dst := layerInput(mw.task.Source()), layerInput(mw.task.Target())
		if view == controlpoint.ViewSource {
			src = image.Input{Path: path}
		} else {
			dst = image.Input{Path: path}
		}
		if err := mw.task.LoadImages(src, dst); err != nil {
			dialog.ShowError(err, mw.Window)
		}
	}, mw.Window)

	fd.SetFilter(storage.NewExtensionFileFilter(image.SupportedFormats()))
	if loc := mw.lastDir(prefs.KeyLastImageDir); loc != nil {
		fd.SetLocation(loc)
	}
	fd.Show()
}

// layerInput reopens a loaded layer from its file, or from memory when it
// never had one.
func layerInput(l *image.Layer) image.Input {
	if l == nil {
		return image.Input{}
	}
	if l.Path != "" {
		return image.Input{Path: l.Path}
	}
	return image.Input{Image: l.Image}
}

func (mw *MainWindow) onLoadPoints() {
	fd := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		reader.Close()
		path := reader.URI().Path()
		mw.prefs.SetDirOf(prefs.KeyLastPointsDir, path)
		if err := mw.task.LoadPoints(path); err != nil {
			dialog.ShowError(err, mw.Window)
		}
	}, mw.Window)
	fd.SetFilter(storage.NewExtensionFileFilter([]string{".csv"}))
	if loc := mw.lastDir(prefs.KeyLastPointsDir); loc != nil {
		fd.SetLocation(loc)
	}
	fd.Show()
}

func (mw *MainWindow) onSavePoints() {
	fd := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil || writer == nil {
			return
		}
		writer.Close()
		path := writer.URI().Path()
		if filepath.Ext(path) != ".csv" {
			path += ".csv"
		}
		mw.prefs.SetDirOf(prefs.KeyLastPointsDir, path)
		if err := report.SavePoints(path, mw.task.Session.Points()); err != nil {
			dialog.ShowError(err, mw.Window)
			return
		}
		mw.updateStatus("Points saved to " + path)
	}, mw.Window)
	fd.SetFileName("points.csv")
	if loc := mw.lastDir(prefs.KeyLastPointsDir); loc != nil {
		fd.SetLocation(loc)
	}
	fd.Show()
}

// lastDir returns the directory stored under key as a ListableURI, or nil.
func (mw *MainWindow) lastDir(key string) fyne.ListableURI {
	path := mw.prefs.String(key)
	if path == "" {
		return nil
	}
	listable, err := storage.ListerForURI(storage.NewFileURI(path))
	if err != nil {
		return nil
	}
	return listable
}

func (mw *MainWindow) onZoomIn() {
	mw.disableFitToWindow()
	for _, v := range mw.views {
		v.ZoomIn()
	}
}

func (mw *MainWindow) onZoomOut() {
	mw.disableFitToWindow()
	for _, v := range mw.views {
		v.ZoomOut()
	}
}

func (mw *MainWindow) onToggleFitToWindow() {
	mw.setFit(!mw.fit)
}

func (mw *MainWindow) onActualSize() {
	mw.disableFitToWindow()
	for _, v := range mw.views {
		v.SetZoom(1.0)
	}
}

func (mw *MainWindow) disableFitToWindow() {
	if mw.fit {
		mw.setFit(false)
	}
}

func (mw *MainWindow) setFit(fit bool) {
	mw.fit = fit
	for _, v := range mw.views {
		v.SetFitToWindow(fit)
	}
	mw.prefs.SetBool(prefs.KeyFitToWindow, fit)
	mw.fitToWindowItem.Checked = fit
	if menu := mw.MainMenu(); menu != nil {
		menu.Refresh()
	}
}

func (mw *MainWindow) onAbout() {
	dialog.ShowInformation("About "+version.Name,
		fmt.Sprintf("%s\n\n"+
			"Pick matching landmarks in a fluorescence and a FIB-SEM image,\n"+
			"estimate the affine transform and export the blended overlay.\n\n"+
			"Built: %s\n"+
			"Commit: %s",
			version.String(), version.BuildTime, version.GitCommit),
		mw.Window)
}
