package geom

import (
	"math"

	"github.com/golang/geo/r2"
)

// Position2D is a point on the facility ground plane in metres.
type Position2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Position3D adds height above the ground plane (UWB tags report it).
type Position3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Ground drops the height component.
func (p Position3D) Ground() Position2D {
	return Position2D{X: p.X, Y: p.Y}
}

func (p Position2D) point() r2.Point {
	return r2.Point{X: p.X, Y: p.Y}
}

// IsFinite reports whether both coordinates are real numbers.
func (p Position2D) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// BoundingBox is a pixel rectangle with a top-left origin.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// FootPoint is the bottom-centre of the box, the ground-contact estimate
// for a vehicle or person.
func (b BoundingBox) FootPoint() (u, v float64) {
	return b.X + b.Width/2, b.Y + b.Height
}

// Resolution is an image size in pixels.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// EuclideanDistance returns the straight-line distance between a and b.
func EuclideanDistance(a, b Position2D) float64 {
	return a.point().Sub(b.point()).Norm()
}

// Rect is an axis-aligned zone on the ground plane.
type Rect struct {
	MinX float64 `json:"min_x" yaml:"min_x"`
	MaxX float64 `json:"max_x" yaml:"max_x"`
	MinY float64 `json:"min_y" yaml:"min_y"`
	MaxY float64 `json:"max_y" yaml:"max_y"`
}

func (r Rect) r2() r2.Rect {
	return r2.RectFromPoints(r2.Point{X: r.MinX, Y: r.MinY}, r2.Point{X: r.MaxX, Y: r.MaxY})
}

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Position2D) bool {
	return r.r2().ContainsPoint(p.point())
}

// Center returns the midpoint of r.
func (r Rect) Center() Position2D {
	c := r.r2().Center()
	return Position2D{X: c.X, Y: c.Y}
}

// Area returns the rectangle area in square metres.
func (r Rect) Area() float64 {
	s := r.r2().Size()
	return s.X * s.Y
}

// Overlaps reports whether r and o share interior area. Touching edges do
// not count.
func (r Rect) Overlaps(o Rect) bool {
	return r.r2().InteriorIntersects(o.r2())
}

// Valid reports whether the bounds are ordered and finite.
func (r Rect) Valid() bool {
	for _, v := range []float64{r.MinX, r.MaxX, r.MinY, r.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return r.MinX <= r.MaxX && r.MinY <= r.MaxY
}
