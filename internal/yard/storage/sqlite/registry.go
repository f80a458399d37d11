package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/banshee-data/yard.fusion/internal/yard/fusion"
	"github.com/banshee-data/yard.fusion/internal/yard/geom"
	"github.com/banshee-data/yard.fusion/internal/yard/site"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// SaveZone inserts or updates a zone. A new zone is appended after the
// existing ones; an updated zone keeps its precedence.
func (s *Store) SaveZone(z fusion.Zone) error {
	return saveZone(s.DB, z)
}

func saveZone(db execer, z fusion.Zone) error {
	_, err := db.Exec(`
		INSERT INTO zones (name, position, min_x, max_x, min_y, max_y, uwb_priority, kind)
		VALUES (?, (SELECT COALESCE(MAX(position), 0) + 1 FROM zones), ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			min_x = excluded.min_x,
			max_x = excluded.max_x,
			min_y = excluded.min_y,
			max_y = excluded.max_y,
			uwb_priority = excluded.uwb_priority,
			kind = excluded.kind,
			updated_at = CURRENT_TIMESTAMP`,
		z.Name, z.Bounds.MinX, z.Bounds.MaxX, z.Bounds.MinY, z.Bounds.MaxY, z.UWBPriority, string(z.Kind),
	)
	if err != nil {
		return fmt.Errorf("failed to save zone %q: %w", z.Name, err)
	}
	return nil
}

// ListZones returns zones in precedence order.
func (s *Store) ListZones() ([]fusion.Zone, error) {
	rows, err := s.Query(`SELECT name, min_x, max_x, min_y, max_y, uwb_priority, kind FROM zones ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var zones []fusion.Zone
	for rows.Next() {
		var z fusion.Zone
		var kind string
		if err := rows.Scan(&z.Name, &z.Bounds.MinX, &z.Bounds.MaxX, &z.Bounds.MinY, &z.Bounds.MaxY, &z.UWBPriority, &kind); err != nil {
			return nil, err
		}
		z.Kind = fusion.ZoneKind(kind)
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

// SaveCamera inserts or replaces a camera calibration.
func (s *Store) SaveCamera(c fusion.CameraCalibration) error {
	return saveCamera(s.DB, c)
}

func saveCamera(db execer, c fusion.CameraCalibration) error {
	h, err := json.Marshal(c.Homography)
	if err != nil {
		return fmt.Errorf("failed to encode homography: %w", err)
	}
	distortion := c.Distortion
	if distortion == nil {
		distortion = []float64{}
	}
	d, err := json.Marshal(distortion)
	if err != nil {
		return fmt.Errorf("failed to encode distortion: %w", err)
	}
	_, err = db.Exec(`
		INSERT OR REPLACE INTO cameras (
			camera_id, homography_json, focal_length, principal_x, principal_y,
			distortion_json, world_x, world_y, world_z, heading
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.CameraID, string(h), c.FocalLength, c.PrincipalPoint.X, c.PrincipalPoint.Y,
		string(d), c.WorldPosition.X, c.WorldPosition.Y, c.WorldPosition.Z, c.Heading,
	)
	if err != nil {
		return fmt.Errorf("failed to save camera %q: %w", c.CameraID, err)
	}
	return nil
}

// ListCameras returns all calibrations ordered by camera id.
func (s *Store) ListCameras() ([]fusion.CameraCalibration, error) {
	rows, err := s.Query(`
		SELECT camera_id, homography_json, focal_length, principal_x, principal_y,
		       distortion_json, world_x, world_y, world_z, heading
		FROM cameras ORDER BY camera_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cams []fusion.CameraCalibration
	for rows.Next() {
		var c fusion.CameraCalibration
		var h, d string
		if err := rows.Scan(&c.CameraID, &h, &c.FocalLength, &c.PrincipalPoint.X, &c.PrincipalPoint.Y,
			&d, &c.WorldPosition.X, &c.WorldPosition.Y, &c.WorldPosition.Z, &c.Heading); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(h), &c.Homography); err != nil {
			return nil, fmt.Errorf("camera %q: bad homography: %w", c.CameraID, err)
		}
		if err := json.Unmarshal([]byte(d), &c.Distortion); err != nil {
			return nil, fmt.Errorf("camera %q: bad distortion: %w", c.CameraID, err)
		}
		if len(c.Distortion) == 0 {
			c.Distortion = nil
		}
		cams = append(cams, c)
	}
	return cams, rows.Err()
}

// SaveTag inserts or replaces a tag binding.
func (s *Store) SaveTag(t fusion.UWBTag) error {
	return saveTag(s.DB, t)
}

func saveTag(db execer, t fusion.UWBTag) error {
	_, err := db.Exec(`INSERT OR REPLACE INTO uwb_tags (tag_id, asset_type, asset_id, battery_level) VALUES (?, ?, ?, ?)`,
		t.TagID, string(t.AssetType), t.AssetID, t.BatteryLevel)
	if err != nil {
		return fmt.Errorf("failed to save tag %q: %w", t.TagID, err)
	}
	return nil
}

// ListTags returns all tags ordered by tag id.
func (s *Store) ListTags() ([]fusion.UWBTag, error) {
	rows, err := s.Query(`SELECT tag_id, asset_type, asset_id, battery_level FROM uwb_tags ORDER BY tag_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []fusion.UWBTag
	for rows.Next() {
		var t fusion.UWBTag
		var assetType string
		if err := rows.Scan(&t.TagID, &assetType, &t.AssetID, &t.BatteryLevel); err != nil {
			return nil, err
		}
		t.AssetType = fusion.ParseAssetType(assetType)
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// SaveAnchor inserts or replaces an anchor.
func (s *Store) SaveAnchor(a fusion.UWBAnchor) error {
	return saveAnchor(s.DB, a)
}

func saveAnchor(db execer, a fusion.UWBAnchor) error {
	_, err := db.Exec(`INSERT OR REPLACE INTO uwb_anchors (anchor_id, x, y, z, zone, status) VALUES (?, ?, ?, ?, ?, ?)`,
		a.AnchorID, a.Position.X, a.Position.Y, a.Position.Z, a.Zone, string(a.Status))
	if err != nil {
		return fmt.Errorf("failed to save anchor %q: %w", a.AnchorID, err)
	}
	return nil
}

// ListAnchors returns all anchors ordered by anchor id.
func (s *Store) ListAnchors() ([]fusion.UWBAnchor, error) {
	rows, err := s.Query(`SELECT anchor_id, x, y, z, zone, status FROM uwb_anchors ORDER BY anchor_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var anchors []fusion.UWBAnchor
	for rows.Next() {
		var a fusion.UWBAnchor
		var p geom.Position3D
		var status string
		if err := rows.Scan(&a.AnchorID, &p.X, &p.Y, &p.Z, &a.Zone, &status); err != nil {
			return nil, err
		}
		a.Position = p
		a.Status = fusion.ParseAnchorStatus(status)
		anchors = append(anchors, a)
	}
	return anchors, rows.Err()
}

// ImportSite saves every registration in st inside one transaction.
func (s *Store) ImportSite(st *site.Site) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, z := range st.Zones {
		if err := saveZone(tx, z); err != nil {
			return err
		}
	}
	for _, c := range st.Cameras {
		if err := saveCamera(tx, c); err != nil {
			return err
		}
	}
	for _, t := range st.Tags {
		if err := saveTag(tx, t); err != nil {
			return err
		}
	}
	for _, a := range st.Anchors {
		if err := saveAnchor(tx, a); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Site reads the stored registrations back as a site description.
func (s *Store) Site() (*site.Site, error) {
	zones, err := s.ListZones()
	if err != nil {
		return nil, fmt.Errorf("failed to list zones: %w", err)
	}
	cams, err := s.ListCameras()
	if err != nil {
		return nil, fmt.Errorf("failed to list cameras: %w", err)
	}
	tags, err := s.ListTags()
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	anchors, err := s.ListAnchors()
	if err != nil {
		return nil, fmt.Errorf("failed to list anchors: %w", err)
	}
	return &site.Site{Zones: zones, Cameras: cams, Tags: tags, Anchors: anchors}, nil
}

// LoadInto registers every stored zone, camera, tag and anchor with r.
func (s *Store) LoadInto(r site.Registrar) error {
	st, err := s.Site()
	if err != nil {
		return err
	}
	return st.Apply(r)
}
