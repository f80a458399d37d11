package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for fusion tuning parameters.
type TuningConfig struct {
	// Vision adapter params
	VisionMinConfidence      *float64 `json:"vision_min_confidence,omitempty"`
	VisionUncertaintyFactor  *float64 `json:"vision_uncertainty_factor,omitempty"`
	UncalibratedVisionFactor *float64 `json:"uncalibrated_vision_factor,omitempty"`
	YardExtentMeters         *float64 `json:"yard_extent_m,omitempty"`

	// UWB adapter params
	UWBReferenceAccuracy *float64 `json:"uwb_reference_accuracy_m,omitempty"`

	// Association params
	AssociationDistance *float64 `json:"association_distance_m,omitempty"`
	InitialConfidence   *float64 `json:"initial_confidence,omitempty"`

	// Fusion params
	DisagreementThreshold *float64 `json:"disagreement_threshold_m,omitempty"`
	DockingProximity      *float64 `json:"docking_proximity_m,omitempty"`
	PriorityUWBWeight     *float64 `json:"priority_uwb_weight,omitempty"`
	BaseVisionWeight      *float64 `json:"base_vision_weight,omitempty"`
	ConflictStrongWeight  *float64 `json:"conflict_strong_weight,omitempty"`
	WeakUWBAccuracy       *float64 `json:"weak_uwb_accuracy_m,omitempty"`
	WeakVisionConfidence  *float64 `json:"weak_vision_confidence,omitempty"`

	// State and lifecycle params
	MaxTrajectoryLength *int     `json:"max_trajectory_length,omitempty"`
	StationarySpeedMps  *float64 `json:"stationary_speed_mps,omitempty"`
	StaleAfter          *string  `json:"stale_after,omitempty"`       // duration string like "30s"
	ActiveTagWindow     *string  `json:"active_tag_window,omitempty"` // duration string like "60s"
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Every Get* accessor falls back to its built-in default.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/yard/fusion/
		"../../../../" + DefaultConfigPath, // from internal/yard/storage/sqlite/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func checkUnit(name string, v *float64) error {
	if v != nil && (*v < 0 || *v > 1) {
		return fmt.Errorf("%s must be between 0 and 1, got %f", name, *v)
	}
	return nil
}

func checkPositive(name string, v *float64) error {
	if v != nil && *v <= 0 {
		return fmt.Errorf("%s must be positive, got %f", name, *v)
	}
	return nil
}

func checkDuration(name string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", name, d)
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	for _, u := range []struct {
		name string
		v    *float64
	}{
		{"vision_min_confidence", c.VisionMinConfidence},
		{"vision_uncertainty_factor", c.VisionUncertaintyFactor},
		{"uncalibrated_vision_factor", c.UncalibratedVisionFactor},
		{"initial_confidence", c.InitialConfidence},
		{"priority_uwb_weight", c.PriorityUWBWeight},
		{"base_vision_weight", c.BaseVisionWeight},
		{"conflict_strong_weight", c.ConflictStrongWeight},
		{"weak_vision_confidence", c.WeakVisionConfidence},
	} {
		if err := checkUnit(u.name, u.v); err != nil {
			return err
		}
	}

	for _, p := range []struct {
		name string
		v    *float64
	}{
		{"yard_extent_m", c.YardExtentMeters},
		{"uwb_reference_accuracy_m", c.UWBReferenceAccuracy},
		{"association_distance_m", c.AssociationDistance},
		{"disagreement_threshold_m", c.DisagreementThreshold},
		{"docking_proximity_m", c.DockingProximity},
		{"weak_uwb_accuracy_m", c.WeakUWBAccuracy},
		{"stationary_speed_mps", c.StationarySpeedMps},
	} {
		if err := checkPositive(p.name, p.v); err != nil {
			return err
		}
	}

	if c.MaxTrajectoryLength != nil && *c.MaxTrajectoryLength < 1 {
		return fmt.Errorf("max_trajectory_length must be at least 1, got %d", *c.MaxTrajectoryLength)
	}

	if err := checkDuration("stale_after", c.StaleAfter); err != nil {
		return err
	}
	return checkDuration("active_tag_window", c.ActiveTagWindow)
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetVisionMinConfidence returns the vision_min_confidence value or the default.
func (c *TuningConfig) GetVisionMinConfidence() float64 {
	if c.VisionMinConfidence == nil {
		return 0.5
	}
	return *c.VisionMinConfidence
}

// GetVisionUncertaintyFactor returns the vision_uncertainty_factor value or the default.
func (c *TuningConfig) GetVisionUncertaintyFactor() float64 {
	if c.VisionUncertaintyFactor == nil {
		return 0.8
	}
	return *c.VisionUncertaintyFactor
}

// GetUncalibratedVisionFactor returns the uncalibrated_vision_factor value or the default.
func (c *TuningConfig) GetUncalibratedVisionFactor() float64 {
	if c.UncalibratedVisionFactor == nil {
		return 0.5
	}
	return *c.UncalibratedVisionFactor
}

// GetYardExtentMeters returns the yard_extent_m value or the default.
func (c *TuningConfig) GetYardExtentMeters() float64 {
	if c.YardExtentMeters == nil {
		return 100.0
	}
	return *c.YardExtentMeters
}

// GetUWBReferenceAccuracy returns the uwb_reference_accuracy_m value or the default.
func (c *TuningConfig) GetUWBReferenceAccuracy() float64 {
	if c.UWBReferenceAccuracy == nil {
		return 0.3
	}
	return *c.UWBReferenceAccuracy
}

// GetAssociationDistance returns the association_distance_m value or the default.
func (c *TuningConfig) GetAssociationDistance() float64 {
	if c.AssociationDistance == nil {
		return 3.0
	}
	return *c.AssociationDistance
}

// GetInitialConfidence returns the initial_confidence value or the default.
func (c *TuningConfig) GetInitialConfidence() float64 {
	if c.InitialConfidence == nil {
		return 0.5
	}
	return *c.InitialConfidence
}

// GetDisagreementThreshold returns the disagreement_threshold_m value or the default.
func (c *TuningConfig) GetDisagreementThreshold() float64 {
	if c.DisagreementThreshold == nil {
		return 1.0
	}
	return *c.DisagreementThreshold
}

// GetDockingProximity returns the docking_proximity_m value or the default.
func (c *TuningConfig) GetDockingProximity() float64 {
	if c.DockingProximity == nil {
		return 5.0
	}
	return *c.DockingProximity
}

// GetPriorityUWBWeight returns the priority_uwb_weight value or the default.
func (c *TuningConfig) GetPriorityUWBWeight() float64 {
	if c.PriorityUWBWeight == nil {
		return 0.9
	}
	return *c.PriorityUWBWeight
}

// GetBaseVisionWeight returns the base_vision_weight value or the default.
func (c *TuningConfig) GetBaseVisionWeight() float64 {
	if c.BaseVisionWeight == nil {
		return 0.4
	}
	return *c.BaseVisionWeight
}

// GetConflictStrongWeight returns the conflict_strong_weight value or the default.
func (c *TuningConfig) GetConflictStrongWeight() float64 {
	if c.ConflictStrongWeight == nil {
		return 0.8
	}
	return *c.ConflictStrongWeight
}

// GetWeakUWBAccuracy returns the weak_uwb_accuracy_m value or the default.
func (c *TuningConfig) GetWeakUWBAccuracy() float64 {
	if c.WeakUWBAccuracy == nil {
		return 0.5
	}
	return *c.WeakUWBAccuracy
}

// GetWeakVisionConfidence returns the weak_vision_confidence value or the default.
func (c *TuningConfig) GetWeakVisionConfidence() float64 {
	if c.WeakVisionConfidence == nil {
		return 0.7
	}
	return *c.WeakVisionConfidence
}

// GetMaxTrajectoryLength returns the max_trajectory_length value or the default.
func (c *TuningConfig) GetMaxTrajectoryLength() int {
	if c.MaxTrajectoryLength == nil {
		return 50
	}
	return *c.MaxTrajectoryLength
}

// GetStationarySpeedMps returns the stationary_speed_mps value or the default.
func (c *TuningConfig) GetStationarySpeedMps() float64 {
	if c.StationarySpeedMps == nil {
		return 0.5
	}
	return *c.StationarySpeedMps
}

// GetStaleAfter parses and returns StaleAfter as a time.Duration.
// 30s suits gate-focused deployments; whole-yard sites usually raise it to 60s.
func (c *TuningConfig) GetStaleAfter() time.Duration {
	return parseDurationOr(c.StaleAfter, 30*time.Second)
}

// GetActiveTagWindow parses and returns ActiveTagWindow as a time.Duration.
func (c *TuningConfig) GetActiveTagWindow() time.Duration {
	return parseDurationOr(c.ActiveTagWindow, 60*time.Second)
}
