// File: api/schemas/geometry.go
package schemas

import (
	"fmt"
	"time"
)

// -- Geometry Schemas --

// Point is a pixel coordinate on a device screen.
type Point struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Add returns p translated by d.
func (p Point) Add(d Point) Point {
	return Point{X: p.X + d.X, Y: p.Y + d.Y}
}

// Rectangle is an axis-aligned screen region given by its top-left (P1) and
// bottom-right (P2) corners. It is used both as a search scope and as a
// click/tap target.
type Rectangle struct {
	P1 Point `json:"p1" yaml:"p1"`
	P2 Point `json:"p2" yaml:"p2"`
}

// NewRectangle builds a Rectangle from a flat [x1, y1, x2, y2] slice, the form
// used by resource tables. Corners are normalised so that P1 is top-left.
func NewRectangle(coords []int) (Rectangle, error) {
	if len(coords) != 4 {
		return Rectangle{}, fmt.Errorf("rectangle needs 4 coordinates, got %d", len(coords))
	}
	r := Rectangle{
		P1: Point{X: min(coords[0], coords[2]), Y: min(coords[1], coords[3])},
		P2: Point{X: max(coords[0], coords[2]), Y: max(coords[1], coords[3])},
	}
	return r, nil
}

// Center returns the geometric center of the rectangle.
func (r Rectangle) Center() Point {
	return Point{X: (r.P1.X + r.P2.X) / 2, Y: (r.P1.Y + r.P2.Y) / 2}
}

// Width of the rectangle in pixels.
func (r Rectangle) Width() int { return r.P2.X - r.P1.X }

// Height of the rectangle in pixels.
func (r Rectangle) Height() int { return r.P2.Y - r.P1.Y }

// Empty reports whether the rectangle has no area.
func (r Rectangle) Empty() bool { return r.Width() <= 0 || r.Height() <= 0 }

// Contains reports whether p lies inside r (edges inclusive).
func (r Rectangle) Contains(p Point) bool {
	return p.X >= r.P1.X && p.X <= r.P2.X && p.Y >= r.P1.Y && p.Y <= r.P2.Y
}

// Below returns a point dy pixels under the bottom-right corner. Input boxes on
// HMI login forms sit under their text labels, so callers click there.
func (r Rectangle) Below(dy int) Point {
	return r.P2.Add(Point{Y: dy})
}

// Offset translates the rectangle by d.
func (r Rectangle) Offset(d Point) Rectangle {
	return Rectangle{P1: r.P1.Add(d), P2: r.P2.Add(d)}
}

// Swipe is a straight touch gesture from one point to another.
type Swipe struct {
	From     Point         `json:"from" yaml:"from"`
	To       Point         `json:"to" yaml:"to"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// NewSwipe builds a Swipe from a flat [x1, y1, x2, y2] slice with an optional
// fifth element holding the gesture duration in milliseconds.
func NewSwipe(coords []int) (Swipe, error) {
	if len(coords) != 4 && len(coords) != 5 {
		return Swipe{}, fmt.Errorf("swipe needs 4 or 5 values, got %d", len(coords))
	}
	s := Swipe{
		From: Point{X: coords[0], Y: coords[1]},
		To:   Point{X: coords[2], Y: coords[3]},
	}
	if len(coords) == 5 {
		s.Duration = time.Duration(coords[4]) * time.Millisecond
	}
	return s, nil
}

// Signature identifies a reference image template used to locate an on-screen
// element. It is the resolved path of the template file.
type Signature string
