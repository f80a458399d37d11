package fusion

import (
	"fmt"
	"sort"
)

// YardStatus is an aggregate snapshot of the engine.
type YardStatus struct {
	TotalAssets     int                `json:"total_assets"`
	ByType          map[AssetType]int  `json:"by_type"`
	ByState         map[AssetState]int `json:"by_state"`
	OnlineAnchors   int                `json:"online_anchors"`
	TotalAnchors    int                `json:"total_anchors"`
	ActiveTags      int                `json:"active_tags"`
	RegisteredTags  int                `json:"registered_tags"`
	Cameras         int                `json:"cameras"`
	Zones           int                `json:"zones"`
	DroppedReadings int64              `json:"dropped_readings"`
	Running         bool               `json:"running"`
}

// Assets returns copies of all tracked assets ordered by id.
func (e *Engine) Assets() []*TrackedAsset {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.collect(func(*TrackedAsset) bool { return true })
}

// Asset returns a copy of one asset.
func (e *Engine) Asset(id string) (*TrackedAsset, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.assets[id]
	if !ok {
		return nil, fmt.Errorf("asset %q: %w", id, ErrNotFound)
	}
	return a.clone(), nil
}

// AssetsByState returns copies of the assets currently in state.
func (e *Engine) AssetsByState(state AssetState) []*TrackedAsset {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.collect(func(a *TrackedAsset) bool { return a.State == state })
}

// AssetsInZone re-tests every asset's current position against the named
// zone's bounds.
func (e *Engine) AssetsInZone(name string) ([]*TrackedAsset, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, z := range e.zones {
		if z.Name == name {
			bounds := z.Bounds
			return e.collect(func(a *TrackedAsset) bool {
				return bounds.Contains(a.Position.Position)
			}), nil
		}
	}
	return nil, fmt.Errorf("zone %q: %w", name, ErrNotFound)
}

func (e *Engine) collect(keep func(*TrackedAsset) bool) []*TrackedAsset {
	out := make([]*TrackedAsset, 0, len(e.assets))
	for _, a := range e.assets {
		if keep(a) {
			out = append(out, a.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Status returns the aggregate snapshot. Tags count as active when they
// reported within ActiveTagWindow.
func (e *Engine) Status() YardStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := YardStatus{
		TotalAssets:     len(e.assets),
		ByType:          make(map[AssetType]int),
		ByState:         make(map[AssetState]int),
		TotalAnchors:    len(e.anchors),
		RegisteredTags:  len(e.tags),
		Cameras:         len(e.cameras),
		Zones:           len(e.zones),
		DroppedReadings: e.droppedReadings,
		Running:         !e.closed,
	}
	for _, a := range e.assets {
		s.ByType[a.Type]++
		s.ByState[a.State]++
	}
	for _, a := range e.anchors {
		if a.Status == AnchorOnline {
			s.OnlineAnchors++
		}
	}
	now := e.clock.Now()
	for _, seen := range e.tagLastSeen {
		if now.Sub(seen) <= e.cfg.ActiveTagWindow {
			s.ActiveTags++
		}
	}
	return s
}

// Zones returns the registered zones in precedence order.
func (e *Engine) Zones() []Zone {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Zone(nil), e.zones...)
}

// Cameras returns the registered calibrations ordered by camera id.
func (e *Engine) Cameras() []CameraCalibration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]CameraCalibration, 0, len(e.cameras))
	for _, c := range e.cameras {
		c.Distortion = append([]float64(nil), c.Distortion...)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CameraID < out[j].CameraID })
	return out
}

// Tags returns the registered tags ordered by tag id.
func (e *Engine) Tags() []UWBTag {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]UWBTag, 0, len(e.tags))
	for _, t := range e.tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TagID < out[j].TagID })
	return out
}

// Anchors returns the registered anchors ordered by anchor id.
func (e *Engine) Anchors() []UWBAnchor {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]UWBAnchor, 0, len(e.anchors))
	for _, a := range e.anchors {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AnchorID < out[j].AnchorID })
	return out
}
