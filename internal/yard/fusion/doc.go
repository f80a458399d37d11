// Package fusion owns the live yard model: it turns vision detections and
// UWB tag readings into one tracked asset per physical object, fuses the two
// position estimates and derives each asset's operational state.
//
// Responsibilities: source adapters (frame -> Observation), the asset
// registry and its find-or-create association, the tiered fusion rule,
// the zone/trajectory state machine, staleness eviction, and the event and
// query surface.
// Key types: Engine, TrackedAsset, Observation, Event.
//
// Association is proximity based (nearest same-type asset inside
// Config.AssociationDistance). It is a heuristic, not a multi-object
// tracker: two same-type objects closer than the threshold can merge.
//
// No SQL or transport code is allowed in this package; storage and
// network packages depend on fusion, never the other way round.
package fusion
