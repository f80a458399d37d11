package fusion

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/yard.fusion/internal/yard/geom"
)

var priorityDock = Zone{
	Name:        "dock_1",
	Bounds:      geom.Rect{MinX: 5, MaxX: 15, MinY: 15, MaxY: 25},
	UWBPriority: true,
}

func visionAt(x, y, conf float64) *VisionSnapshot {
	return &VisionSnapshot{Position: geom.Position2D{X: x, Y: y}, Confidence: conf, Calibrated: true}
}

func uwbAt(x, y, accuracy float64) *UWBSnapshot {
	return &UWBSnapshot{Position: geom.Position3D{X: x, Y: y}, Accuracy: accuracy}
}

func TestFuse_SingleSource(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()

	t.Run("neither", func(t *testing.T) {
		t.Parallel()
		_, ok := Fuse(nil, nil, nil, cfg)
		assert.False(t, ok)
	})

	t.Run("uwb only", func(t *testing.T) {
		t.Parallel()
		res, ok := Fuse(nil, uwbAt(3, 4, 0.6), nil, cfg)
		require.True(t, ok)
		assert.Equal(t, SourceUWB, res.Source)
		assert.Equal(t, RuleUWBOnly, res.Rule)
		assert.Equal(t, geom.Position2D{X: 3, Y: 4}, res.Position)
		assert.InDelta(t, 0.5, res.Confidence, 1e-9)
	})

	t.Run("uwb only better than reference caps at one", func(t *testing.T) {
		t.Parallel()
		res, _ := Fuse(nil, uwbAt(0, 0, 0.05), nil, cfg)
		assert.InDelta(t, 1.0, res.Confidence, 1e-9)
	})

	t.Run("vision only is discounted", func(t *testing.T) {
		t.Parallel()
		res, ok := Fuse(visionAt(1, 2, 0.9), nil, nil, cfg)
		require.True(t, ok)
		assert.Equal(t, SourceVision, res.Source)
		assert.Equal(t, RuleVisionOnly, res.Rule)
		assert.InDelta(t, 0.72, res.Confidence, 1e-9)
	})
}

func TestFuse_DockScenario(t *testing.T) {
	t.Parallel()
	res, ok := Fuse(visionAt(10.0, 20.0, 0.9), uwbAt(10.3, 20.2, 0.1), []Zone{priorityDock}, DefaultConfig())
	require.True(t, ok)

	assert.Equal(t, SourceFused, res.Source)
	assert.Equal(t, RulePriorityUWB, res.Rule)
	assert.InDelta(t, 0.36, res.Disagreement, 0.01)
	assert.InDelta(t, 10.27, res.Position.X, 1e-9)
	assert.InDelta(t, 20.18, res.Position.Y, 1e-9)
	assert.InDelta(t, 0.9, res.UWBWeight, 1e-9)
	assert.InDelta(t, 0.1, res.VisionWeight, 1e-9)
}

func TestFuse_PriorityWeightsProperty(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 1000; i++ {
		ux := 5 + rng.Float64()*10
		uy := 15 + rng.Float64()*10
		r := rng.Float64() * 0.99
		theta := rng.Float64() * 2 * math.Pi
		vx := ux + r*math.Cos(theta)
		vy := uy + r*math.Sin(theta)

		res, ok := Fuse(visionAt(vx, vy, 0.5+rng.Float64()*0.5), uwbAt(ux, uy, 0.05+rng.Float64()), []Zone{priorityDock}, cfg)
		require.True(t, ok)
		require.Equal(t, RulePriorityUWB, res.Rule, "iteration %d", i)
		require.InDelta(t, 0.9, res.UWBWeight, 1e-12)
		require.InDelta(t, 0.1, res.VisionWeight, 1e-12)
		require.InDelta(t, 0.1*vx+0.9*ux, res.Position.X, 1e-9)
		require.InDelta(t, 0.1*vy+0.9*uy, res.Position.Y, 1e-9)
	}
}

func TestFuse_Branches(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	plainDock := Zone{Name: "dock_b", Bounds: geom.Rect{MinX: 0, MaxX: 20, MinY: 0, MaxY: 20}}

	tests := []struct {
		name         string
		vision       *VisionSnapshot
		uwb          *UWBSnapshot
		zones        []Zone
		wantRule     FusionRule
		wantVisionW  float64
		wantPosition geom.Position2D
	}{
		{
			name:         "agreement away from docks uses base weights",
			vision:       visionAt(0, 0, 0.9),
			uwb:          uwbAt(0.5, 0, 0.1),
			wantRule:     RuleBaseWeights,
			wantVisionW:  0.4,
			wantPosition: geom.Position2D{X: 0.3, Y: 0},
		},
		{
			name:         "near dock centre without priority flag",
			vision:       visionAt(10, 10.5, 0.9),
			uwb:          uwbAt(10, 10, 0.1),
			zones:        []Zone{plainDock},
			wantRule:     RulePriorityUWB,
			wantVisionW:  0.1,
			wantPosition: geom.Position2D{X: 10, Y: 10.05},
		},
		{
			name:         "inside plain dock but far from centre",
			vision:       visionAt(1, 1.5, 0.9),
			uwb:          uwbAt(1, 1, 0.1),
			zones:        []Zone{plainDock},
			wantRule:     RuleBaseWeights,
			wantVisionW:  0.4,
			wantPosition: geom.Position2D{X: 1, Y: 1.2},
		},
		{
			name:         "conflict with strong uwb",
			vision:       visionAt(0, 0, 0.9),
			uwb:          uwbAt(5, 0, 0.1),
			wantRule:     RuleConflictStrongUWB,
			wantVisionW:  0.2,
			wantPosition: geom.Position2D{X: 4, Y: 0},
		},
		{
			name:         "conflict with strong vision",
			vision:       visionAt(0, 0, 0.9),
			uwb:          uwbAt(5, 0, 1.0),
			wantRule:     RuleConflictStrongVision,
			wantVisionW:  0.8,
			wantPosition: geom.Position2D{X: 1, Y: 0},
		},
		{
			name:         "conflict between weak sources is proportional",
			vision:       visionAt(0, 0, 0.6),
			uwb:          uwbAt(4, 0, 0.8),
			wantRule:     RuleConflictProportional,
			wantVisionW:  0.75,
			wantPosition: geom.Position2D{X: 1, Y: 0},
		},
		{
			name:         "weak sources with zero quality split evenly",
			vision:       visionAt(0, 0, 0),
			uwb:          uwbAt(4, 0, 2.0),
			wantRule:     RuleConflictProportional,
			wantVisionW:  0.5,
			wantPosition: geom.Position2D{X: 2, Y: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, ok := Fuse(tt.vision, tt.uwb, tt.zones, cfg)
			require.True(t, ok)
			assert.Equal(t, tt.wantRule, res.Rule)
			assert.Equal(t, SourceFused, res.Source)
			assert.InDelta(t, tt.wantVisionW, res.VisionWeight, 1e-9)
			assert.InDelta(t, 1.0, res.VisionWeight+res.UWBWeight, 1e-9)
			assert.InDelta(t, tt.wantPosition.X, res.Position.X, 1e-9)
			assert.InDelta(t, tt.wantPosition.Y, res.Position.Y, 1e-9)
		})
	}
}

func TestFuse_ConfidenceBounds(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	rng := rand.New(rand.NewSource(11))
	zones := []Zone{priorityDock}

	for i := 0; i < 2000; i++ {
		var v *VisionSnapshot
		var u *UWBSnapshot
		if rng.Intn(4) != 0 {
			v = visionAt(rng.Float64()*100, rng.Float64()*100, rng.Float64())
		}
		if rng.Intn(4) != 0 {
			u = uwbAt(rng.Float64()*100, rng.Float64()*100, rng.Float64()*3-0.5)
		}
		res, ok := Fuse(v, u, zones, cfg)
		if !ok {
			continue
		}
		require.GreaterOrEqual(t, res.Confidence, 0.0)
		require.LessOrEqual(t, res.Confidence, 1.0)
	}
}
