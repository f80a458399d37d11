package geom

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultYardExtent is the side length in metres assumed by
// EstimateWorldPosition when no calibration is available.
const DefaultYardExtent = 100.0

// degenerateW is the smallest homogeneous scale accepted by the
// perspective divide.
const degenerateW = 1e-9

// Homography is a row-major 3x3 ground-plane projective transform.
type Homography [3][3]float64

func (h Homography) dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		h[0][0], h[0][1], h[0][2],
		h[1][0], h[1][1], h[1][2],
		h[2][0], h[2][1], h[2][2],
	})
}

// IdentityHomography maps pixels straight onto metres.
func IdentityHomography() Homography {
	return Homography{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Apply maps a pixel through h. ok is false when the homogeneous scale is
// zero, near zero or non-finite.
func (h Homography) Apply(u, v float64) (x, y float64, ok bool) {
	var out mat.VecDense
	out.MulVec(h.dense(), mat.NewVecDense(3, []float64{u, v, 1}))

	w := out.AtVec(2)
	if math.IsNaN(w) || math.IsInf(w, 0) || math.Abs(w) < degenerateW {
		return 0, 0, false
	}
	x = out.AtVec(0) / w
	y = out.AtVec(1) / w
	if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, 0, false
	}
	return x, y, true
}

// ProjectPixelToWorld projects the box foot point through the homography and
// offsets it by the camera's world position. A false result means the
// projection was degenerate and the caller should fall back to
// EstimateWorldPosition.
func ProjectPixelToWorld(box BoundingBox, h Homography, cameraPosition Position2D) (Position2D, bool) {
	u, v := box.FootPoint()
	x, y, ok := h.Apply(u, v)
	if !ok {
		return Position2D{}, false
	}
	return Position2D{X: x + cameraPosition.X, Y: y + cameraPosition.Y}, true
}

// EstimateWorldPosition is the calibration-free fallback: the foot point is
// normalised to [0,1] and scaled to a square yard of side extent metres.
// Results are coarse and must be treated as low confidence.
func EstimateWorldPosition(box BoundingBox, res Resolution, extent float64) Position2D {
	if extent <= 0 {
		extent = DefaultYardExtent
	}
	w, h := float64(res.Width), float64(res.Height)
	if w <= 0 || h <= 0 {
		return Position2D{}
	}
	u, v := box.FootPoint()
	return Position2D{
		X: clamp01(u/w) * extent,
		Y: clamp01(v/h) * extent,
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
