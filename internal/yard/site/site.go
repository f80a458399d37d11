// Package site loads the static yard description (zones, cameras, UWB tags
// and anchors) from a YAML file and registers it with an engine.
package site

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/yard.fusion/internal/yard/fusion"
	"github.com/banshee-data/yard.fusion/internal/yard/geom"
)

// SiteYAML represents the YAML file structure
type SiteYAML struct {
	Version string       `yaml:"version"`
	Name    string       `yaml:"name,omitempty"`
	Zones   []ZoneYAML   `yaml:"zones"`
	Cameras []CameraYAML `yaml:"cameras,omitempty"`
	Tags    []TagYAML    `yaml:"tags,omitempty"`
	Anchors []AnchorYAML `yaml:"anchors,omitempty"`
}

// ZoneYAML represents a zone. Order in the file is match precedence.
type ZoneYAML struct {
	Name        string    `yaml:"name"`
	Bounds      geom.Rect `yaml:"bounds"`
	UWBPriority bool      `yaml:"uwb_priority,omitempty"`
	Kind        string    `yaml:"kind,omitempty"`
}

// PointYAML is a 2D or 3D point; Z defaults to 0.
type PointYAML struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z,omitempty"`
}

// CameraYAML represents a camera calibration
type CameraYAML struct {
	ID             string      `yaml:"id"`
	Homography     [][]float64 `yaml:"homography"`
	FocalLength    float64     `yaml:"focal_length,omitempty"`
	PrincipalPoint PointYAML   `yaml:"principal_point,omitempty"`
	Distortion     []float64   `yaml:"distortion,omitempty"`
	Position       PointYAML   `yaml:"position"`
	Heading        float64     `yaml:"heading,omitempty"`
}

// TagYAML represents a UWB tag binding
type TagYAML struct {
	ID        string  `yaml:"id"`
	AssetType string  `yaml:"asset_type"`
	AssetID   string  `yaml:"asset_id,omitempty"`
	Battery   float64 `yaml:"battery,omitempty"`
}

// AnchorYAML represents a UWB anchor
type AnchorYAML struct {
	ID       string    `yaml:"id"`
	Position PointYAML `yaml:"position"`
	Zone     string    `yaml:"zone,omitempty"`
	Status   string    `yaml:"status,omitempty"`
}

// Site is the decoded yard description in engine types.
type Site struct {
	Name    string
	Zones   []fusion.Zone
	Cameras []fusion.CameraCalibration
	Tags    []fusion.UWBTag
	Anchors []fusion.UWBAnchor
}

// Registrar is anything that accepts site registrations. *fusion.Engine
// satisfies it.
type Registrar interface {
	RegisterZone(fusion.Zone) error
	RegisterCamera(fusion.CameraCalibration) error
	RegisterTag(fusion.UWBTag) error
	RegisterAnchor(fusion.UWBAnchor) error
}

// Load loads a site from a YAML file
func Load(path string) (*Site, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read site file: %w", err)
	}
	return Parse(data)
}

// Parse parses a site from YAML bytes
func Parse(data []byte) (*Site, error) {
	var y SiteYAML
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return convert(&y)
}

func convert(y *SiteYAML) (*Site, error) {
	s := &Site{Name: y.Name}
	seen := make(map[string]bool)

	for i, z := range y.Zones {
		if z.Name == "" {
			return nil, fmt.Errorf("zone %d: missing name", i)
		}
		if seen["zone/"+z.Name] {
			return nil, fmt.Errorf("zone %q: duplicate name", z.Name)
		}
		seen["zone/"+z.Name] = true
		if !z.Bounds.Valid() {
			return nil, fmt.Errorf("zone %q: invalid bounds", z.Name)
		}
		kind, err := parseKind(z.Kind)
		if err != nil {
			return nil, fmt.Errorf("zone %q: %w", z.Name, err)
		}
		s.Zones = append(s.Zones, fusion.Zone{
			Name:        z.Name,
			Bounds:      z.Bounds,
			UWBPriority: z.UWBPriority,
			Kind:        kind,
		})
	}

	for i, c := range y.Cameras {
		if c.ID == "" {
			return nil, fmt.Errorf("camera %d: missing id", i)
		}
		if seen["camera/"+c.ID] {
			return nil, fmt.Errorf("camera %q: duplicate id", c.ID)
		}
		seen["camera/"+c.ID] = true
		h, err := homography(c.Homography)
		if err != nil {
			return nil, fmt.Errorf("camera %q: %w", c.ID, err)
		}
		s.Cameras = append(s.Cameras, fusion.CameraCalibration{
			CameraID:       c.ID,
			Homography:     h,
			FocalLength:    c.FocalLength,
			PrincipalPoint: geom.Position2D{X: c.PrincipalPoint.X, Y: c.PrincipalPoint.Y},
			Distortion:     c.Distortion,
			WorldPosition:  geom.Position3D{X: c.Position.X, Y: c.Position.Y, Z: c.Position.Z},
			Heading:        c.Heading,
		})
	}

	for i, t := range y.Tags {
		if t.ID == "" {
			return nil, fmt.Errorf("tag %d: missing id", i)
		}
		s.Tags = append(s.Tags, fusion.UWBTag{
			TagID:        t.ID,
			AssetType:    fusion.ParseAssetType(t.AssetType),
			AssetID:      t.AssetID,
			BatteryLevel: t.Battery,
		})
	}

	for i, a := range y.Anchors {
		if a.ID == "" {
			return nil, fmt.Errorf("anchor %d: missing id", i)
		}
		s.Anchors = append(s.Anchors, fusion.UWBAnchor{
			AnchorID: a.ID,
			Position: geom.Position3D{X: a.Position.X, Y: a.Position.Y, Z: a.Position.Z},
			Zone:     a.Zone,
			Status:   fusion.ParseAnchorStatus(a.Status),
		})
	}

	return s, nil
}

func parseKind(s string) (fusion.ZoneKind, error) {
	switch fusion.ZoneKind(s) {
	case "":
		return "", nil
	case fusion.ZoneDock, fusion.ZoneGate, fusion.ZoneStaging, fusion.ZoneOther:
		return fusion.ZoneKind(s), nil
	}
	return "", fmt.Errorf("unknown zone kind %q", s)
}

func homography(rows [][]float64) (geom.Homography, error) {
	var h geom.Homography
	if len(rows) != 3 {
		return h, fmt.Errorf("homography needs 3 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if len(row) != 3 {
			return h, fmt.Errorf("homography row %d needs 3 values, got %d", i, len(row))
		}
		copy(h[i][:], row)
	}
	return h, nil
}

// Apply registers every zone, camera, tag and anchor with r, zones first
// and in file order.
func (s *Site) Apply(r Registrar) error {
	for _, z := range s.Zones {
		if err := r.RegisterZone(z); err != nil {
			return fmt.Errorf("register zone: %w", err)
		}
	}
	for _, c := range s.Cameras {
		if err := r.RegisterCamera(c); err != nil {
			return fmt.Errorf("register camera: %w", err)
		}
	}
	for _, t := range s.Tags {
		if err := r.RegisterTag(t); err != nil {
			return fmt.Errorf("register tag: %w", err)
		}
	}
	for _, a := range s.Anchors {
		if err := r.RegisterAnchor(a); err != nil {
			return fmt.Errorf("register anchor: %w", err)
		}
	}
	return nil
}
