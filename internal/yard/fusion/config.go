package fusion

import (
	"time"

	"github.com/banshee-data/yard.fusion/internal/config"
)

// Config holds the engine's tuning parameters.
type Config struct {
	// Vision adapter
	VisionMinConfidence      float64 // Detections below this are discarded
	VisionUncertaintyFactor  float64 // Discount applied to standalone vision confidence
	UncalibratedVisionFactor float64 // Extra discount when the rough estimator was used
	YardExtent               float64 // Side of the square yard assumed by the estimator (metres)

	// UWB adapter
	UWBReferenceAccuracy float64 // Accuracy that maps to quality 1.0 (metres)

	// Association
	AssociationDistance float64 // Nearest-neighbour acceptance radius (metres)
	InitialConfidence   float64 // Confidence of a freshly created asset

	// Fusion
	DisagreementThreshold float64 // Vision/UWB distance treated as agreement (metres)
	DockingProximity      float64 // Distance to a dock centre that counts as docking (metres)
	PriorityUWBWeight     float64 // UWB weight inside priority zones or near docks
	BaseVisionWeight      float64 // Vision weight when sources agree away from docks
	ConflictStrongWeight  float64 // Weight given to the single strong source in a conflict
	WeakUWBAccuracy       float64 // UWB accuracy worse than this is weak (metres)
	WeakVisionConfidence  float64 // Vision confidence below this is weak

	// State and lifecycle
	MaxTrajectoryLength int
	StationarySpeedMps  float64
	StaleAfter          time.Duration
	ActiveTagWindow     time.Duration
}

// DefaultConfig returns the built-in defaults, identical to
// config/tuning.defaults.json.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		VisionMinConfidence:      cfg.GetVisionMinConfidence(),
		VisionUncertaintyFactor:  cfg.GetVisionUncertaintyFactor(),
		UncalibratedVisionFactor: cfg.GetUncalibratedVisionFactor(),
		YardExtent:               cfg.GetYardExtentMeters(),
		UWBReferenceAccuracy:     cfg.GetUWBReferenceAccuracy(),
		AssociationDistance:      cfg.GetAssociationDistance(),
		InitialConfidence:        cfg.GetInitialConfidence(),
		DisagreementThreshold:    cfg.GetDisagreementThreshold(),
		DockingProximity:         cfg.GetDockingProximity(),
		PriorityUWBWeight:        cfg.GetPriorityUWBWeight(),
		BaseVisionWeight:         cfg.GetBaseVisionWeight(),
		ConflictStrongWeight:     cfg.GetConflictStrongWeight(),
		WeakUWBAccuracy:          cfg.GetWeakUWBAccuracy(),
		WeakVisionConfidence:     cfg.GetWeakVisionConfidence(),
		MaxTrajectoryLength:      cfg.GetMaxTrajectoryLength(),
		StationarySpeedMps:       cfg.GetStationarySpeedMps(),
		StaleAfter:               cfg.GetStaleAfter(),
		ActiveTagWindow:          cfg.GetActiveTagWindow(),
	}
}
