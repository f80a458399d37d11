package fusion

import (
	"strings"
	"time"

	"github.com/banshee-data/yard.fusion/internal/yard/geom"
)

// AssetType is the category of a tracked object.
type AssetType string

const (
	AssetTruck    AssetType = "truck"
	AssetTrailer  AssetType = "trailer"
	AssetForklift AssetType = "forklift"
	AssetPerson   AssetType = "person"
	AssetUnknown  AssetType = "unknown"
)

// ParseAssetType maps a free-form category onto the asset vocabulary.
// Anything unrecognised becomes AssetUnknown.
func ParseAssetType(s string) AssetType {
	switch AssetType(strings.ToLower(strings.TrimSpace(s))) {
	case AssetTruck:
		return AssetTruck
	case AssetTrailer:
		return AssetTrailer
	case AssetForklift:
		return AssetForklift
	case AssetPerson:
		return AssetPerson
	}
	return AssetUnknown
}

// AssetState is the operational state derived by the state machine.
type AssetState string

const (
	StateApproaching AssetState = "approaching"
	StateAtGate      AssetState = "at_gate"
	StateInYard      AssetState = "in_yard"
	StateStaging     AssetState = "staging"
	StateDocking     AssetState = "docking"
	StateDocked      AssetState = "docked"
	StateDeparting   AssetState = "departing"
	StateUnknown     AssetState = "unknown"
)

// AllStates lists every state in a stable order.
var AllStates = []AssetState{
	StateApproaching, StateAtGate, StateInYard, StateStaging,
	StateDocking, StateDocked, StateDeparting, StateUnknown,
}

// Source identifies where a position estimate came from.
type Source string

const (
	SourceVision Source = "vision"
	SourceUWB    Source = "uwb"
	SourceFused  Source = "fused"
)

// WorldCoordinates is a fused position estimate.
type WorldCoordinates struct {
	Position   geom.Position2D `json:"position"`
	Heading    float64         `json:"heading"`    // degrees [0,360), 0 = north
	Confidence float64         `json:"confidence"` // [0,1]
	Timestamp  time.Time       `json:"timestamp"`
	Source     Source          `json:"source"`
}

// VisionSnapshot is the most recent vision observation of an asset.
type VisionSnapshot struct {
	Position      geom.Position2D  `json:"position"`
	Confidence    float64          `json:"confidence"` // detection confidence, discounted when uncalibrated
	Class         string           `json:"class"`
	CameraID      string           `json:"camera_id"`
	TrackID       string           `json:"track_id,omitempty"`
	BoundingBox   geom.BoundingBox `json:"bbox"`
	PixelVelocity *geom.Position2D `json:"pixel_velocity,omitempty"`
	Calibrated    bool             `json:"calibrated"`
	Timestamp     time.Time        `json:"timestamp"`
}

// UWBSnapshot is the most recent UWB reading of an asset.
type UWBSnapshot struct {
	Position       geom.Position3D `json:"position"`
	Accuracy       float64         `json:"accuracy_m"`
	TagID          string          `json:"tag_id"`
	AnchorsUsed    []string        `json:"anchors_used,omitempty"`
	SignalStrength float64         `json:"signal_strength_dbm"`
	Timestamp      time.Time       `json:"timestamp"`
}

// TrackedAsset is one physical object in the yard.
type TrackedAsset struct {
	ID             string             `json:"id"`
	Type           AssetType          `json:"type"`
	Position       WorldCoordinates   `json:"position"`
	Vision         *VisionSnapshot    `json:"vision,omitempty"`
	UWB            *UWBSnapshot       `json:"uwb,omitempty"`
	State          AssetState         `json:"state"`
	StateChangedAt time.Time          `json:"state_changed_at"`
	Trajectory     []WorldCoordinates `json:"trajectory"`
	FirstSeen      time.Time          `json:"first_seen"`
	Updates        int                `json:"updates"`

	aliases []string
}

// clone returns a deep copy safe to hand outside the engine lock.
func (a *TrackedAsset) clone() *TrackedAsset {
	c := *a
	if a.Vision != nil {
		v := *a.Vision
		if a.Vision.PixelVelocity != nil {
			pv := *a.Vision.PixelVelocity
			v.PixelVelocity = &pv
		}
		c.Vision = &v
	}
	if a.UWB != nil {
		u := *a.UWB
		u.AnchorsUsed = append([]string(nil), a.UWB.AnchorsUsed...)
		c.UWB = &u
	}
	c.Trajectory = append([]WorldCoordinates(nil), a.Trajectory...)
	c.aliases = nil
	return &c
}

// Observation is one normalised per-object measurement from either source.
type Observation struct {
	Position     geom.Position2D
	QualityScore float64 // [0,1]
	Timestamp    time.Time
	Source       Source
	AssetType    AssetType
	// CandidateID is the source's own identity for the object (vision track
	// or the tag's bound asset). Empty when the source has none.
	CandidateID string
	// Index is the detection or reading index inside its frame.
	Index int

	vision *VisionSnapshot
	uwb    *UWBSnapshot
}

// Detection is one object reported by the vision pipeline.
type Detection struct {
	Class         string
	Confidence    float64
	BoundingBox   geom.BoundingBox
	TrackID       string // empty when the detector has no persistent track
	PixelVelocity *geom.Position2D
}

// VisionFrame is one camera frame worth of detections.
type VisionFrame struct {
	CameraID   string
	Timestamp  time.Time
	Resolution geom.Resolution
	Detections []Detection
}

// UWBReading is one tag position already resolved by the UWB system.
type UWBReading struct {
	TagID          string
	Position       geom.Position3D
	Accuracy       float64 // metres
	AnchorsUsed    []string
	SignalStrength float64 // dBm
}

// UWBFrame is one batch of tag readings.
type UWBFrame struct {
	Timestamp time.Time
	Readings  []UWBReading
}

// Assignment links a detection or reading index to the asset it updated.
type Assignment struct {
	Index   int    `json:"index"`
	AssetID string `json:"asset_id"`
}

// CameraCalibration describes one camera. It is immutable once registered.
type CameraCalibration struct {
	CameraID       string          `json:"camera_id"`
	Homography     geom.Homography `json:"homography"`
	FocalLength    float64         `json:"focal_length"`
	PrincipalPoint geom.Position2D `json:"principal_point"`
	Distortion     []float64       `json:"distortion,omitempty"`
	WorldPosition  geom.Position3D `json:"world_position"`
	Heading        float64         `json:"heading"`
}

// UWBTag binds a radio tag to an asset identity and category.
type UWBTag struct {
	TagID        string    `json:"tag_id"`
	AssetType    AssetType `json:"asset_type"`
	AssetID      string    `json:"asset_id"`
	BatteryLevel float64   `json:"battery_level"`
}

// AnchorStatus is the operational status of a UWB anchor.
type AnchorStatus string

const (
	AnchorOnline   AnchorStatus = "online"
	AnchorOffline  AnchorStatus = "offline"
	AnchorDegraded AnchorStatus = "degraded"
)

// ParseAnchorStatus defaults to offline for unknown values.
func ParseAnchorStatus(s string) AnchorStatus {
	switch AnchorStatus(strings.ToLower(strings.TrimSpace(s))) {
	case AnchorOnline:
		return AnchorOnline
	case AnchorDegraded:
		return AnchorDegraded
	}
	return AnchorOffline
}

// UWBAnchor is a fixed radio reference point. Diagnostic only.
type UWBAnchor struct {
	AnchorID string          `json:"anchor_id"`
	Position geom.Position3D `json:"position"`
	Zone     string          `json:"zone"`
	Status   AnchorStatus    `json:"status"`
}

// ZoneKind classifies a zone for the state machine.
type ZoneKind string

const (
	ZoneDock    ZoneKind = "dock"
	ZoneGate    ZoneKind = "gate"
	ZoneStaging ZoneKind = "staging"
	ZoneOther   ZoneKind = "other"
)

// Zone is a named rectangular region of the yard.
type Zone struct {
	Name        string    `json:"name"`
	Bounds      geom.Rect `json:"bounds"`
	UWBPriority bool      `json:"uwb_priority"`
	// Kind overrides the naming convention when set.
	Kind ZoneKind `json:"kind,omitempty"`
}

// EffectiveKind returns Kind, or infers it from the name: names containing
// "dock", "gate" or "staging" (case-insensitive) map to those kinds.
func (z Zone) EffectiveKind() ZoneKind {
	if z.Kind != "" {
		return z.Kind
	}
	name := strings.ToLower(z.Name)
	switch {
	case strings.Contains(name, "dock"):
		return ZoneDock
	case strings.Contains(name, "gate"):
		return ZoneGate
	case strings.Contains(name, "staging"):
		return ZoneStaging
	}
	return ZoneOther
}
