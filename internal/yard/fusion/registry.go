package fusion

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/yard.fusion/internal/yard/geom"
)

// findOrCreate resolves an observation to an asset: alias lookup first, then
// the nearest same-type asset within AssociationDistance, else a new asset.
// created reports the last case. Caller holds e.mu.
//
// The proximity step is a heuristic. Two same-type objects closer than the
// threshold are merged onto one asset.
func (e *Engine) findOrCreate(obs Observation) (asset *TrackedAsset, created bool) {
	if obs.CandidateID != "" {
		if id, ok := e.aliases[obs.CandidateID]; ok {
			if a, ok := e.assets[id]; ok {
				return a, false
			}
			delete(e.aliases, obs.CandidateID)
		}
	}

	if a := e.nearestOfType(obs.AssetType, obs.Position); a != nil {
		e.addAlias(a, obs.CandidateID)
		return a, false
	}

	return e.createAsset(obs), true
}

// nearestOfType returns the closest asset of type t within the association
// distance. Equal distances resolve to the lower id so results do not depend
// on map iteration order.
func (e *Engine) nearestOfType(t AssetType, p geom.Position2D) *TrackedAsset {
	var best *TrackedAsset
	bestDist := math.Inf(1)
	for _, a := range e.assets {
		if a.Type != t {
			continue
		}
		d := geom.EuclideanDistance(a.Position.Position, p)
		if d > e.cfg.AssociationDistance {
			continue
		}
		if d < bestDist || (d == bestDist && best != nil && a.ID < best.ID) {
			best, bestDist = a, d
		}
	}
	return best
}

func (e *Engine) addAlias(a *TrackedAsset, candidateID string) {
	if candidateID == "" {
		return
	}
	if _, exists := e.aliases[candidateID]; exists {
		return
	}
	e.aliases[candidateID] = a.ID
	a.aliases = append(a.aliases, candidateID)
}

// createAsset seeds a new asset from a single observation. The seed position
// carries InitialConfidence; fusion takes over from the next update.
func (e *Engine) createAsset(obs Observation) *TrackedAsset {
	coords := WorldCoordinates{
		Position:   obs.Position,
		Confidence: e.cfg.InitialConfidence,
		Timestamp:  obs.Timestamp,
		Source:     obs.Source,
	}
	a := &TrackedAsset{
		ID:             fmt.Sprintf("ast_%s", uuid.NewString()),
		Type:           obs.AssetType,
		Position:       coords,
		StateChangedAt: obs.Timestamp,
		Trajectory:     []WorldCoordinates{coords},
		FirstSeen:      obs.Timestamp,
		Updates:        1,
	}
	a.setSnapshot(obs)
	a.State = determineState(a.Position.Position, a.Trajectory, e.zones, e.cfg)

	e.assets[a.ID] = a
	e.addAlias(a, obs.CandidateID)
	return a
}

func (a *TrackedAsset) setSnapshot(obs Observation) {
	switch obs.Source {
	case SourceVision:
		if obs.vision != nil {
			a.Vision = obs.vision
		}
	case SourceUWB:
		if obs.uwb != nil {
			a.UWB = obs.uwb
		}
	}
}

// apply runs one observation through association, fusion and the state
// machine, appending any resulting events. Caller holds e.mu.
func (e *Engine) apply(obs Observation, events []Event) (string, []Event) {
	asset, created := e.findOrCreate(obs)
	if created {
		events = append(events, Event{
			Type:      EventAssetDetected,
			AssetID:   asset.ID,
			AssetType: asset.Type,
			Asset:     asset.clone(),
			NewState:  asset.State,
			Timestamp: obs.Timestamp,
		})
		return asset.ID, events
	}

	// Sources are unordered; never let a late frame move time backwards.
	ts := obs.Timestamp
	if ts.Before(asset.Position.Timestamp) {
		ts = asset.Position.Timestamp
	}

	asset.setSnapshot(obs)
	asset.Updates++
	if ev, changed := e.recompute(asset, ts); changed {
		events = append(events, ev)
	}
	return asset.ID, events
}

// pruneStale evicts assets whose fused position is older than StaleAfter.
// One asset_lost event is appended per evicted asset, ordered by id.
// Caller holds e.mu.
func (e *Engine) pruneStale(now time.Time, events []Event) []Event {
	var lost []string
	for id, a := range e.assets {
		if now.Sub(a.Position.Timestamp) > e.cfg.StaleAfter {
			lost = append(lost, id)
		}
	}
	sort.Strings(lost)

	for _, id := range lost {
		a := e.assets[id]
		for _, alias := range a.aliases {
			delete(e.aliases, alias)
		}
		delete(e.assets, id)
		events = append(events, Event{
			Type:      EventAssetLost,
			AssetID:   id,
			AssetType: a.Type,
			Asset:     a.clone(),
			OldState:  a.State,
			Timestamp: now,
		})
	}
	return events
}
