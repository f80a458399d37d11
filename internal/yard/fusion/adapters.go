package fusion

import (
	"math"
	"strings"

	"github.com/banshee-data/yard.fusion/internal/monitoring"
	"github.com/banshee-data/yard.fusion/internal/yard/geom"
)

// defaultResolution is assumed when a frame omits its image size.
var defaultResolution = geom.Resolution{Width: 1920, Height: 1080}

// classToAssetType maps detector class labels onto asset types.
var classToAssetType = map[string]AssetType{
	"truck":      AssetTruck,
	"lorry":      AssetTruck,
	"trailer":    AssetTrailer,
	"forklift":   AssetForklift,
	"person":     AssetPerson,
	"pedestrian": AssetPerson,
}

// AssetTypeForClass returns the asset type for a detector class label.
func AssetTypeForClass(class string) AssetType {
	if t, ok := classToAssetType[strings.ToLower(strings.TrimSpace(class))]; ok {
		return t
	}
	return AssetUnknown
}

// visionCandidateID is the alias a persistent vision track is known by.
func visionCandidateID(cameraID, trackID string) string {
	if trackID == "" {
		return ""
	}
	return "vision:" + cameraID + "/" + trackID
}

// uwbCandidateID prefers the tag's bound asset id and falls back to the tag.
func uwbCandidateID(tag UWBTag) string {
	if tag.AssetID != "" {
		return "uwb:" + tag.AssetID
	}
	return "tag:" + tag.TagID
}

// normalizeVision turns a frame into observations. Caller holds e.mu.
func (e *Engine) normalizeVision(frame VisionFrame) []Observation {
	res := frame.Resolution
	if res.Width <= 0 || res.Height <= 0 {
		res = defaultResolution
	}
	cal, calibrated := e.cameras[frame.CameraID]

	out := make([]Observation, 0, len(frame.Detections))
	for i, det := range frame.Detections {
		if math.IsNaN(det.Confidence) || det.Confidence < e.cfg.VisionMinConfidence {
			continue
		}
		quality := math.Min(1, det.Confidence)

		var pos geom.Position2D
		projected := false
		if calibrated {
			pos, projected = geom.ProjectPixelToWorld(det.BoundingBox, cal.Homography, cal.WorldPosition.Ground())
			if !projected {
				monitoring.Warnf("camera %s: degenerate projection for detection %d, using estimate", frame.CameraID, i)
			}
		}
		if !projected {
			pos = geom.EstimateWorldPosition(det.BoundingBox, res, e.cfg.YardExtent)
			quality *= e.cfg.UncalibratedVisionFactor
		}

		snap := &VisionSnapshot{
			Position:    pos,
			Confidence:  quality,
			Class:       det.Class,
			CameraID:    frame.CameraID,
			TrackID:     det.TrackID,
			BoundingBox: det.BoundingBox,
			Calibrated:  projected,
			Timestamp:   frame.Timestamp,
		}
		if det.PixelVelocity != nil {
			pv := *det.PixelVelocity
			snap.PixelVelocity = &pv
		}

		out = append(out, Observation{
			Position:     pos,
			QualityScore: quality,
			Timestamp:    frame.Timestamp,
			Source:       SourceVision,
			AssetType:    AssetTypeForClass(det.Class),
			CandidateID:  visionCandidateID(frame.CameraID, det.TrackID),
			Index:        i,
			vision:       snap,
		})
	}
	return out
}

// normalizeUWB turns a frame into observations, dropping readings from
// unregistered tags. Caller holds e.mu.
func (e *Engine) normalizeUWB(frame UWBFrame) []Observation {
	out := make([]Observation, 0, len(frame.Readings))
	for i, r := range frame.Readings {
		tag, ok := e.tags[r.TagID]
		if !ok {
			e.droppedReadings++
			monitoring.Warnf("uwb reading from unregistered tag %q dropped", r.TagID)
			continue
		}
		ground := r.Position.Ground()
		if !ground.IsFinite() {
			e.droppedReadings++
			monitoring.Warnf("uwb reading from tag %q has non-finite position, dropped", r.TagID)
			continue
		}

		e.tagLastSeen[r.TagID] = frame.Timestamp

		out = append(out, Observation{
			Position:     ground,
			QualityScore: uwbQuality(r.Accuracy, e.cfg.UWBReferenceAccuracy),
			Timestamp:    frame.Timestamp,
			Source:       SourceUWB,
			AssetType:    tag.AssetType,
			CandidateID:  uwbCandidateID(tag),
			Index:        i,
			uwb: &UWBSnapshot{
				Position:       r.Position,
				Accuracy:       r.Accuracy,
				TagID:          r.TagID,
				AnchorsUsed:    append([]string(nil), r.AnchorsUsed...),
				SignalStrength: r.SignalStrength,
				Timestamp:      frame.Timestamp,
			},
		})
	}
	return out
}

// uwbQuality maps accuracy in metres to [0,1]; the reference accuracy and
// anything better scores 1. Non-positive accuracy is treated as reference.
func uwbQuality(accuracy, reference float64) float64 {
	if accuracy <= 0 || math.IsNaN(accuracy) {
		return 1
	}
	return math.Min(1, reference/accuracy)
}
