// Package colorutil provides shared color utilities for the correlation tool.
package colorutil

import (
	"image/color"
)

// Common overlay colors used throughout the application.
var (
	Black  = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Red    = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	Green  = color.RGBA{R: 0, G: 200, B: 0, A: 255}
	Yellow = color.RGBA{R: 255, G: 255, B: 0, A: 255}
)

// MarkerColor returns the color used to draw a control point marker.
// Complete points are red, points still waiting for their second click yellow.
func MarkerColor(complete bool) color.RGBA {
	if complete {
		return Red
	}
	return Yellow
}

// PickButtonColor returns the pick-mode button color: green while picking,
// red otherwise.
func PickButtonColor(picking bool) color.RGBA {
	if picking {
		return Green
	}
	return Red
}
