package domain

import "fmt"

// Placement bounds, in PDF points. Coordinates follow the original upload
// widget: bottom-left origin, page 1 only.
const (
	MaxPlacementCoord = 2000
	MinMarkerSize     = 50
	MaxMarkerSize     = 500
)

// Placement is the caller-specified square where the marker image lands.
type Placement struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Size float64 `json:"size"`
}

func (p Placement) Validate() error {
	if p.X < 0 || p.X > MaxPlacementCoord || p.Y < 0 || p.Y > MaxPlacementCoord {
		return fmt.Errorf("%w: placement coordinates out of range [0, %d]", ErrValidation, MaxPlacementCoord)
	}
	if p.Size < MinMarkerSize || p.Size > MaxMarkerSize {
		return fmt.Errorf("%w: marker size must be between %d and %d points", ErrValidation, MinMarkerSize, MaxMarkerSize)
	}
	return nil
}

// Rect is a top-left-origin rectangle for editors that address the page
// from its upper-left corner: (X0, Y0) is the upper-left corner, y grows
// downward.
type Rect struct {
	X0 float64
	Y0 float64
	X1 float64
	Y1 float64
}

func (r Rect) Width() float64  { return r.X1 - r.X0 }
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// RectForPage maps the bottom-left-origin placement onto a page of the
// given height: (x, H-y-size, x+size, H-y).
func (p Placement) RectForPage(pageHeight float64) Rect {
	return Rect{
		X0: p.X,
		Y0: pageHeight - p.Y - p.Size,
		X1: p.X + p.Size,
		Y1: pageHeight - p.Y,
	}
}
