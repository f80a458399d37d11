package geom

import "math"

// headingWindow is how many trailing trajectory points feed the heading.
const headingWindow = 3

// HeadingFromTrajectory estimates travel heading in degrees [0, 360) from the
// oldest and newest of the last three points. Fewer than two points yield 0.
func HeadingFromTrajectory(points []Position2D) float64 {
	if len(points) < 2 {
		return 0
	}
	start := len(points) - headingWindow
	if start < 0 {
		start = 0
	}
	oldest := points[start]
	newest := points[len(points)-1]
	return HeadingBetween(oldest, newest)
}

// HeadingBetween returns the compass heading of the vector from a to b.
func HeadingBetween(a, b Position2D) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	if dx == 0 && dy == 0 {
		return 0
	}
	deg := math.Atan2(dx, dy) * 180 / math.Pi
	return NormalizeDegrees(deg)
}

// NormalizeDegrees wraps an angle into [0, 360).
func NormalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg = 0
	}
	return deg
}
