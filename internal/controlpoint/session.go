package controlpoint

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"fib-correlate/pkg/geometry"

	"github.com/sirupsen/logrus"
)

var (
	// ErrDuplicateSide is returned when a pending point is clicked a second
	// time in the image it already has a coordinate for.
	ErrDuplicateSide = errors.New("select control point in the other image")

	// ErrNavigationActive is returned when pick mode is requested while a
	// pan/zoom tool owns the pointer.
	ErrNavigationActive = errors.New("deactivate the navigation tool first")

	// ErrDuplicateID is returned by Load when two records share an id.
	ErrDuplicateID = errors.New("duplicate control point id")
)

// Cursor is the pointer shape the view layer should display.
type Cursor int

const (
	CursorArrow Cursor = iota
	CursorCross
)

func (c Cursor) String() string {
	if c == CursorCross {
		return "cross"
	}
	return "arrow"
}

// EventType identifies session notifications.
type EventType int

const (
	EventPointsChanged EventType = iota
	EventPickModeChanged
	EventCursorChanged
	EventStatus
)

// Event is delivered synchronously to listeners after a session mutation.
type Event struct {
	Type    EventType
	Message string
}

// Listener is called when an event occurs.
type Listener func(Event)

// Session turns click events from the two image views into control points.
// It is mutated from a single input-handling goroutine; the mutex only guards
// listener registration.
type Session struct {
	mu        sync.RWMutex
	listeners []Listener

	points     []*ControlPoint
	active     *ControlPoint
	nextID     int
	pickMode   bool
	navigating bool
	pointer    View
	cursor     Cursor
	bounds     map[View]geometry.Rect

	log logrus.FieldLogger
}

// NewSession creates an empty session with pick mode off.
func NewSession(log logrus.FieldLogger) *Session {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Session{
		nextID: 1,
		bounds: make(map[View]geometry.Rect),
		log:    log.WithField("component", "controlpoint"),
	}
}

// On registers a listener for all session events.
func (s *Session) On(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Session) emit(t EventType, msg string) {
	s.mu.RLock()
	listeners := s.listeners
	s.mu.RUnlock()

	ev := Event{Type: t, Message: msg}
	for _, l := range listeners {
		l(ev)
	}
}

// SetViewBounds limits clicks in view to the image extent width x height.
// Views without bounds accept any finite coordinate.
func (s *Session) SetViewBounds(view View, width, height int) {
	s.bounds[view] = geometry.NewRect(0, 0, float64(width), float64(height))
}

// PickMode reports whether clicks are currently placing points.
func (s *Session) PickMode() bool {
	return s.pickMode
}

// SetPickMode enables or disables point placement. Disabling leaves any
// pending point in the list, waiting for its second click.
func (s *Session) SetPickMode(enabled bool) error {
	if enabled && s.navigating {
		s.emit(EventStatus, "Please, first deactivate the selected navigation tool")
		return ErrNavigationActive
	}
	if s.pickMode == enabled {
		return nil
	}

	s.pickMode = enabled
	s.log.WithField("enabled", enabled).Debug("pick mode changed")
	if enabled {
		s.emit(EventPickModeChanged, "Pick Mode activate. Select Control Points.")
	} else {
		s.emit(EventPickModeChanged, "Pick Mode deactivate.")
	}
	s.updateCursor()
	return nil
}

// SetNavigating records whether a pan/zoom tool is active. Activating one
// force-disables pick mode.
func (s *Session) SetNavigating(active bool) {
	s.navigating = active
	if active && s.pickMode {
		_ = s.SetPickMode(false)
	}
}

// PointerEntered records that the pointer is over view.
func (s *Session) PointerEntered(view View) {
	s.pointer = view
	s.updateCursor()
}

// PointerLeft records that the pointer left the image views.
func (s *Session) PointerLeft() {
	s.pointer = ViewNone
	s.updateCursor()
}

// Cursor returns the cursor the view layer should show.
func (s *Session) Cursor() Cursor {
	return s.cursor
}

func (s *Session) updateCursor() {
	c := CursorArrow
	if s.pickMode && s.pointer != ViewNone {
		c = CursorCross
	}
	if c != s.cursor {
		s.cursor = c
		s.emit(EventCursorChanged, "")
	}
}

// RegisterClick places or completes a control point. Clicks while pick mode
// is off, outside the image views, or outside a view's bounds are ignored.
// A second click in the same view on a pending point returns
// ErrDuplicateSide and leaves the point unchanged.
func (s *Session) RegisterClick(view View, x, y float64) error {
	if !s.pickMode || view == ViewNone {
		return nil
	}
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return nil
	}
	p := geometry.NewPoint2D(x, y)
	if r, ok := s.bounds[view]; ok && !r.Contains(p) {
		return nil
	}

	if s.active == nil {
		cp := &ControlPoint{ID: s.nextID}
		s.nextID++
		cp.assign(view, p)
		s.points = append(s.points, cp)
		s.active = cp
		s.log.WithFields(logrus.Fields{"id": cp.ID, "view": view.String(), "at": p.String()}).Debug("control point started")
		s.emit(EventPointsChanged, fmt.Sprintf("Point %d placed in %s, now pick it in %s.", cp.ID, view, view.Other()))
		return nil
	}

	if s.active.Has(view) {
		s.emit(EventStatus, "Please, select control point in the other image.")
		return fmt.Errorf("point %d already has a coordinate in %s: %w", s.active.ID, view, ErrDuplicateSide)
	}

	cp := s.active
	cp.assign(view, p)
	if cp.Complete() {
		s.active = nil
	}
	s.log.WithFields(logrus.Fields{"id": cp.ID, "view": view.String(), "at": p.String()}).Debug("control point completed")
	s.emit(EventPointsChanged, fmt.Sprintf("Point %d complete.", cp.ID))
	return nil
}

// DeletePoints removes the points with the given ids, complete or not, and
// returns how many were removed. Ids are never handed out again.
func (s *Session) DeletePoints(ids ...int) int {
	if len(ids) == 0 {
		return 0
	}
	drop := make(map[int]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	kept := s.points[:0]
	removed := 0
	for _, cp := range s.points {
		if drop[cp.ID] {
			removed++
			if cp == s.active {
				s.active = nil
			}
			continue
		}
		kept = append(kept, cp)
	}
	for i := len(kept); i < len(s.points); i++ {
		s.points[i] = nil
	}
	s.points = kept

	if removed > 0 {
		s.log.WithField("ids", ids).Debug("control points deleted")
		s.emit(EventPointsChanged, fmt.Sprintf("Deleted %d control point(s).", removed))
	}
	return removed
}

// Points returns a copy of every point in creation order, including the
// pending one.
func (s *Session) Points() []Record {
	out := make([]Record, len(s.points))
	for i, cp := range s.points {
		out[i] = cp.record()
	}
	return out
}

// Active returns the pending point, if one is waiting for its second click.
func (s *Session) Active() (Record, bool) {
	if s.active == nil {
		return Record{}, false
	}
	return s.active.record(), true
}

// Len returns the number of points, complete or not.
func (s *Session) Len() int {
	return len(s.points)
}

// Load replaces the point list with records, for example from a points dump.
// The id counter continues after the largest loaded id and an incomplete
// record becomes the pending point. At most one record may be incomplete.
func (s *Session) Load(records []Record) error {
	pending := 0
	seen := make(map[int]bool, len(records))
	for _, r := range records {
		if r.ID <= 0 {
			return fmt.Errorf("invalid control point id %d", r.ID)
		}
		if seen[r.ID] {
			return fmt.Errorf("control point id %d: %w", r.ID, ErrDuplicateID)
		}
		seen[r.ID] = true
		if (r.Source == nil) != (r.Target == nil) {
			pending++
		}
	}
	if pending > 1 {
		return fmt.Errorf("%d incomplete control points, at most one allowed", pending)
	}

	s.points = nil
	s.active = nil
	for _, r := range records {
		// Empty rows still consume their id
		if r.ID >= s.nextID {
			s.nextID = r.ID + 1
		}
		if r.Source == nil && r.Target == nil {
			continue
		}
		cp := &ControlPoint{ID: r.ID}
		if r.Source != nil {
			cp.assign(ViewSource, *r.Source)
		}
		if r.Target != nil {
			cp.assign(ViewTarget, *r.Target)
		}
		s.points = append(s.points, cp)
		if !cp.Complete() {
			s.active = cp
		}
	}
	s.emit(EventPointsChanged, fmt.Sprintf("Loaded %d control point(s).", len(s.points)))
	return nil
}
