package fusion

import (
	"math"
	"time"

	"github.com/banshee-data/yard.fusion/internal/yard/geom"
)

// FusionRule names the branch of the weighting scheme that produced a result.
type FusionRule string

const (
	RuleUWBOnly              FusionRule = "uwb_only"
	RuleVisionOnly           FusionRule = "vision_only"
	RulePriorityUWB          FusionRule = "priority_uwb"
	RuleBaseWeights          FusionRule = "base_weights"
	RuleConflictProportional FusionRule = "conflict_proportional"
	RuleConflictStrongUWB    FusionRule = "conflict_strong_uwb"
	RuleConflictStrongVision FusionRule = "conflict_strong_vision"
)

// FusionResult is the authoritative estimate for one asset update.
type FusionResult struct {
	Position     geom.Position2D
	Confidence   float64
	Source       Source
	VisionWeight float64
	UWBWeight    float64
	Disagreement float64 // metres; zero unless both sources are present
	Rule         FusionRule
}

// Fuse combines the latest vision and UWB snapshots of one asset. ok is false
// when neither snapshot is present.
//
// With both sources present the weights are tiered rather than blended:
//   - agreement inside a UWB-priority zone or near a dock centre gives UWB
//     PriorityUWBWeight;
//   - agreement elsewhere uses BaseVisionWeight for vision;
//   - a conflict between two weak sources weights by relative quality;
//   - any other conflict gives ConflictStrongWeight to the strong source,
//     UWB when both are strong.
func Fuse(vision *VisionSnapshot, uwb *UWBSnapshot, zones []Zone, cfg Config) (FusionResult, bool) {
	switch {
	case vision == nil && uwb == nil:
		return FusionResult{}, false
	case vision == nil:
		return FusionResult{
			Position:   uwb.Position.Ground(),
			Confidence: uwbConfidence(uwb, cfg),
			Source:     SourceUWB,
			UWBWeight:  1,
			Rule:       RuleUWBOnly,
		}, true
	case uwb == nil:
		return FusionResult{
			Position:     vision.Position,
			Confidence:   visionConfidence(vision, cfg),
			Source:       SourceVision,
			VisionWeight: 1,
			Rule:         RuleVisionOnly,
		}, true
	}

	uwbPos := uwb.Position.Ground()
	disagreement := geom.EuclideanDistance(vision.Position, uwbPos)

	var wv, wu float64
	var rule FusionRule
	if disagreement < cfg.DisagreementThreshold {
		if inPriorityZone(uwbPos, zones) || isDocking(uwbPos, zones, cfg.DockingProximity) {
			wu = cfg.PriorityUWBWeight
			wv = 1 - wu
			rule = RulePriorityUWB
		} else {
			wv = cfg.BaseVisionWeight
			wu = 1 - wv
			rule = RuleBaseWeights
		}
	} else {
		uwbWeak := uwb.Accuracy > cfg.WeakUWBAccuracy
		visionWeak := vision.Confidence < cfg.WeakVisionConfidence
		switch {
		case uwbWeak && visionWeak:
			vq := math.Max(0, vision.Confidence)
			uq := math.Max(0, 1-uwb.Accuracy)
			if vq+uq == 0 {
				wv = 0.5
			} else {
				wv = vq / (vq + uq)
			}
			wu = 1 - wv
			rule = RuleConflictProportional
		case !uwbWeak:
			wu = cfg.ConflictStrongWeight
			wv = 1 - wu
			rule = RuleConflictStrongUWB
		default:
			wv = cfg.ConflictStrongWeight
			wu = 1 - wv
			rule = RuleConflictStrongVision
		}
	}

	return FusionResult{
		Position: geom.Position2D{
			X: wv*vision.Position.X + wu*uwbPos.X,
			Y: wv*vision.Position.Y + wu*uwbPos.Y,
		},
		Confidence:   clampUnit(wv*visionConfidence(vision, cfg) + wu*uwbConfidence(uwb, cfg)),
		Source:       SourceFused,
		VisionWeight: wv,
		UWBWeight:    wu,
		Disagreement: disagreement,
		Rule:         rule,
	}, true
}

func visionConfidence(v *VisionSnapshot, cfg Config) float64 {
	return clampUnit(v.Confidence * cfg.VisionUncertaintyFactor)
}

func uwbConfidence(u *UWBSnapshot, cfg Config) float64 {
	return clampUnit(uwbQuality(u.Accuracy, cfg.UWBReferenceAccuracy))
}

func inPriorityZone(p geom.Position2D, zones []Zone) bool {
	for _, z := range zones {
		if z.UWBPriority && z.Bounds.Contains(p) {
			return true
		}
	}
	return false
}

// isDocking reports whether p is within proximity of the nearest dock centre.
func isDocking(p geom.Position2D, zones []Zone, proximity float64) bool {
	nearest := math.Inf(1)
	for _, z := range zones {
		if z.EffectiveKind() != ZoneDock {
			continue
		}
		nearest = math.Min(nearest, geom.EuclideanDistance(p, z.Bounds.Center()))
	}
	return nearest < proximity
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// expireSnapshots drops the snapshot of a source that has not reported for
// longer than StaleAfter while the other source keeps the asset alive, so a
// vehicle that left camera view is not pulled back to where it was last
// seen. The fresher snapshot always stays. Caller holds e.mu.
func (e *Engine) expireSnapshots(a *TrackedAsset, ts time.Time) {
	if a.Vision == nil || a.UWB == nil {
		return
	}
	switch {
	case ts.Sub(a.Vision.Timestamp) > e.cfg.StaleAfter && !a.Vision.Timestamp.After(a.UWB.Timestamp):
		a.Vision = nil
	case ts.Sub(a.UWB.Timestamp) > e.cfg.StaleAfter && !a.UWB.Timestamp.After(a.Vision.Timestamp):
		a.UWB = nil
	}
}

// recompute refreshes the asset's fused position, trajectory, heading and
// state at ts. It returns a state_change event when the state moved.
// Caller holds e.mu.
func (e *Engine) recompute(a *TrackedAsset, ts time.Time) (Event, bool) {
	e.expireSnapshots(a, ts)
	res, ok := Fuse(a.Vision, a.UWB, e.zones, e.cfg)
	if !ok {
		return Event{}, false
	}

	coords := WorldCoordinates{
		Position:   res.Position,
		Confidence: res.Confidence,
		Timestamp:  ts,
		Source:     res.Source,
	}
	a.Trajectory = append(a.Trajectory, coords)
	if limit := e.cfg.MaxTrajectoryLength; limit > 0 && len(a.Trajectory) > limit {
		a.Trajectory = a.Trajectory[len(a.Trajectory)-limit:]
	}

	points := make([]geom.Position2D, len(a.Trajectory))
	for i, p := range a.Trajectory {
		points[i] = p.Position
	}
	coords.Heading = geom.HeadingFromTrajectory(points)
	a.Trajectory[len(a.Trajectory)-1].Heading = coords.Heading
	a.Position = coords

	newState := determineState(coords.Position, a.Trajectory, e.zones, e.cfg)
	if newState == a.State {
		return Event{}, false
	}
	old := a.State
	a.State = newState
	a.StateChangedAt = ts
	return Event{
		Type:      EventStateChange,
		AssetID:   a.ID,
		AssetType: a.Type,
		Asset:     a.clone(),
		OldState:  old,
		NewState:  newState,
		Timestamp: ts,
	}, true
}
