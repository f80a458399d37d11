package fusion

import (
	"math"

	"github.com/banshee-data/yard.fusion/internal/yard/geom"
)

const (
	// stationaryWindow is how many trailing points feed the speed estimate.
	stationaryWindow = 5
	// directionWindow is how many trailing points feed the travel direction.
	directionWindow = 10
	// minDirectionPoints is the trajectory length needed to infer direction.
	minDirectionPoints = 3
)

// determineState evaluates the state machine for a fused position. Zones are
// tested in registration order and the first dock, gate or staging zone that
// contains pos decides. Outside those zones the dominant travel axis decides,
// with +y pointing into the facility.
func determineState(pos geom.Position2D, trajectory []WorldCoordinates, zones []Zone, cfg Config) AssetState {
	for _, z := range zones {
		if !z.Bounds.Contains(pos) {
			continue
		}
		switch z.EffectiveKind() {
		case ZoneDock:
			if isStationary(trajectory, cfg.StationarySpeedMps) {
				return StateDocked
			}
			return StateDocking
		case ZoneGate:
			return StateAtGate
		case ZoneStaging:
			return StateStaging
		}
	}

	if len(trajectory) >= minDirectionPoints {
		window := tail(trajectory, directionWindow)
		oldest := window[0].Position
		newest := window[len(window)-1].Position
		dx := newest.X - oldest.X
		dy := newest.Y - oldest.Y
		if math.Abs(dy) > math.Abs(dx) {
			if dy > 0 {
				return StateApproaching
			}
			return StateDeparting
		}
	}
	return StateInYard
}

// isStationary reports whether the speed between the oldest and newest of the
// last few points is below threshold. Too few points or no elapsed time count
// as stationary.
func isStationary(trajectory []WorldCoordinates, threshold float64) bool {
	if len(trajectory) < 2 {
		return true
	}
	window := tail(trajectory, stationaryWindow)
	oldest := window[0]
	newest := window[len(window)-1]
	elapsed := newest.Timestamp.Sub(oldest.Timestamp).Seconds()
	if elapsed <= 0 {
		return true
	}
	speed := geom.EuclideanDistance(oldest.Position, newest.Position) / elapsed
	return speed < threshold
}

func tail(trajectory []WorldCoordinates, n int) []WorldCoordinates {
	if len(trajectory) <= n {
		return trajectory
	}
	return trajectory[len(trajectory)-n:]
}
