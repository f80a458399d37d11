package fusion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/yard.fusion/internal/yard/geom"
)

func path(points ...geom.Position2D) []WorldCoordinates {
	out := make([]WorldCoordinates, len(points))
	for i, p := range points {
		out[i] = WorldCoordinates{Position: p, Timestamp: t0.Add(time.Duration(i) * time.Second)}
	}
	return out
}

func pt(x, y float64) geom.Position2D { return geom.Position2D{X: x, Y: y} }

func TestDetermineState(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	zones := []Zone{
		{Name: "Loading Dock 3", Bounds: geom.Rect{MinX: 0, MaxX: 10, MinY: 0, MaxY: 10}},
		{Name: "north_gate", Bounds: geom.Rect{MinX: 20, MaxX: 30, MinY: 0, MaxY: 10}},
		{Name: "staging_a", Bounds: geom.Rect{MinX: 40, MaxX: 50, MinY: 0, MaxY: 10}},
		{Name: "lot", Kind: ZoneGate, Bounds: geom.Rect{MinX: 60, MaxX: 70, MinY: 0, MaxY: 10}},
		{Name: "workshop", Bounds: geom.Rect{MinX: 80, MaxX: 90, MinY: 0, MaxY: 10}},
	}

	tests := []struct {
		name       string
		pos        geom.Position2D
		trajectory []WorldCoordinates
		want       AssetState
	}{
		{"dock single point is docked", pt(5, 5), path(pt(5, 5)), StateDocked},
		{"dock moving is docking", pt(8, 5), path(pt(2, 5), pt(5, 5), pt(8, 5)), StateDocking},
		{"gate by name", pt(25, 5), path(pt(25, 5)), StateAtGate},
		{"staging by name", pt(45, 5), path(pt(45, 5)), StateStaging},
		{"explicit kind overrides name", pt(65, 5), path(pt(65, 5)), StateAtGate},
		{"other zone falls through", pt(85, 5), path(pt(85, 5)), StateInYard},
		{"approaching on +y", pt(100, 30), path(pt(100, 20), pt(100, 25), pt(100, 30)), StateApproaching},
		{"departing on -y", pt(100, 20), path(pt(100, 30), pt(100, 25), pt(100, 20)), StateDeparting},
		{"x dominant stays in yard", pt(130, 21), path(pt(100, 20), pt(115, 21), pt(130, 21)), StateInYard},
		{"two points is too few", pt(100, 30), path(pt(100, 20), pt(100, 30)), StateInYard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, determineState(tt.pos, tt.trajectory, zones, cfg))
		})
	}
}

func TestDetermineState_DirectionUsesLastTenPoints(t *testing.T) {
	t.Parallel()
	// A long inbound run followed by ten outbound points.
	var pts []geom.Position2D
	for i := 0; i < 20; i++ {
		pts = append(pts, pt(0, float64(i)))
	}
	for i := 0; i < 10; i++ {
		pts = append(pts, pt(0, 19-float64(i+1)))
	}
	traj := path(pts...)
	assert.Equal(t, StateDeparting, determineState(pts[len(pts)-1], traj, nil, DefaultConfig()))
}

func TestDetermineState_FirstRegisteredZoneWins(t *testing.T) {
	t.Parallel()
	zones := []Zone{
		{Name: "gate_a", Bounds: geom.Rect{MinX: 0, MaxX: 10, MinY: 0, MaxY: 10}},
		{Name: "dock_a", Bounds: geom.Rect{MinX: 5, MaxX: 15, MinY: 0, MaxY: 10}},
	}
	assert.Equal(t, StateAtGate, determineState(pt(7, 5), path(pt(7, 5)), zones, DefaultConfig()))
	assert.Equal(t, StateDocked, determineState(pt(12, 5), path(pt(12, 5)), zones, DefaultConfig()))
}

func TestIsStationary(t *testing.T) {
	t.Parallel()

	t.Run("fewer than two points", func(t *testing.T) {
		t.Parallel()
		assert.True(t, isStationary(nil, 0.5))
		assert.True(t, isStationary(path(pt(0, 0)), 0.5))
	})

	t.Run("slow drift", func(t *testing.T) {
		t.Parallel()
		assert.True(t, isStationary(path(pt(0, 0), pt(0.05, 0.02)), 0.5))
	})

	t.Run("moving", func(t *testing.T) {
		t.Parallel()
		assert.False(t, isStationary(path(pt(0, 0), pt(2, 0)), 0.5))
	})

	t.Run("zero elapsed time", func(t *testing.T) {
		t.Parallel()
		traj := []WorldCoordinates{
			{Position: pt(0, 0), Timestamp: t0},
			{Position: pt(50, 0), Timestamp: t0},
		}
		assert.True(t, isStationary(traj, 0.5))
	})

	t.Run("only last five points count", func(t *testing.T) {
		t.Parallel()
		traj := path(pt(0, 0), pt(100, 0), pt(100, 0), pt(100, 0), pt(100, 0), pt(100, 0), pt(100.1, 0))
		assert.True(t, isStationary(traj, 0.5))
	})
}
