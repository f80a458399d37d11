package fusion

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/yard.fusion/internal/monitoring"
	"github.com/banshee-data/yard.fusion/internal/timeutil"
)

var (
	// ErrStopped is returned by ingestion after Stop.
	ErrStopped = errors.New("fusion engine stopped")
	// ErrNotFound is returned when a named zone, anchor or asset is absent.
	ErrNotFound = errors.New("not found")
)

// Engine is the live model of one yard. All registries are owned by the
// instance; run one Engine per facility deployment.
type Engine struct {
	mu     sync.RWMutex
	cfg    Config
	clock  timeutil.Clock
	closed bool

	assets  map[string]*TrackedAsset
	aliases map[string]string // candidate id -> asset id

	cameras map[string]CameraCalibration
	tags    map[string]UWBTag
	anchors map[string]UWBAnchor
	// zones keep registration order; the first matching zone wins.
	zones []Zone

	// Per-tag and per-camera buffers, cleared by Stop.
	tagLastSeen     map[string]time.Time
	cameraLastFrame map[string]time.Time

	droppedReadings int64

	subMu       sync.RWMutex
	subscribers []subscriber
	nextSubID   uint64

	// Event batches are delivered in the order their ingest committed.
	// nextTicket is guarded by mu, servedTicket by deliverMu.
	nextTicket   uint64
	deliverMu    sync.Mutex
	deliverCond  *sync.Cond
	servedTicket uint64
}

// NewEngine creates an engine with the given configuration. A nil clock
// uses wall time.
func NewEngine(cfg Config, clock timeutil.Clock) *Engine {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	e := &Engine{
		cfg:             cfg,
		clock:           clock,
		assets:          make(map[string]*TrackedAsset),
		aliases:         make(map[string]string),
		cameras:         make(map[string]CameraCalibration),
		tags:            make(map[string]UWBTag),
		anchors:         make(map[string]UWBAnchor),
		tagLastSeen:     make(map[string]time.Time),
		cameraLastFrame: make(map[string]time.Time),
	}
	e.deliverCond = sync.NewCond(&e.deliverMu)
	return e
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// RegisterCamera adds a camera calibration. Calibrations are immutable, so
// registering the same camera twice is an error.
func (e *Engine) RegisterCamera(cal CameraCalibration) error {
	if cal.CameraID == "" {
		return fmt.Errorf("camera calibration requires a camera id")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.cameras[cal.CameraID]; exists {
		return fmt.Errorf("camera %q already registered", cal.CameraID)
	}
	cal.Distortion = append([]float64(nil), cal.Distortion...)
	e.cameras[cal.CameraID] = cal
	return nil
}

// RegisterTag adds or updates a UWB tag binding.
func (e *Engine) RegisterTag(tag UWBTag) error {
	if tag.TagID == "" {
		return fmt.Errorf("uwb tag requires a tag id")
	}
	tag.AssetType = ParseAssetType(string(tag.AssetType))
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tags[tag.TagID] = tag
	return nil
}

// RegisterAnchor adds or replaces a UWB anchor.
func (e *Engine) RegisterAnchor(anchor UWBAnchor) error {
	if anchor.AnchorID == "" {
		return fmt.Errorf("uwb anchor requires an anchor id")
	}
	anchor.Status = ParseAnchorStatus(string(anchor.Status))
	e.mu.Lock()
	defer e.mu.Unlock()
	e.anchors[anchor.AnchorID] = anchor
	return nil
}

// SetAnchorStatus updates the status of a registered anchor.
func (e *Engine) SetAnchorStatus(anchorID string, status AnchorStatus) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.anchors[anchorID]
	if !ok {
		return fmt.Errorf("anchor %q: %w", anchorID, ErrNotFound)
	}
	a.Status = ParseAnchorStatus(string(status))
	e.anchors[anchorID] = a
	return nil
}

// RegisterZone appends a zone. Zones are matched in registration order, so
// a zone overlapping an earlier one only wins where the earlier one does not
// cover; the overlap is logged rather than rejected.
func (e *Engine) RegisterZone(zone Zone) error {
	if zone.Name == "" {
		return fmt.Errorf("zone requires a name")
	}
	if !zone.Bounds.Valid() {
		return fmt.Errorf("zone %q has invalid bounds %+v", zone.Name, zone.Bounds)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, z := range e.zones {
		if z.Name == zone.Name {
			return fmt.Errorf("zone %q already registered", zone.Name)
		}
		if z.Bounds.Overlaps(zone.Bounds) {
			monitoring.Warnf("zone %q overlaps earlier zone %q; %q takes precedence in the overlap",
				zone.Name, z.Name, z.Name)
		}
	}
	e.zones = append(e.zones, zone)
	return nil
}

// IngestVision processes one camera frame. The returned assignments map
// each surviving detection index to the asset it updated.
func (e *Engine) IngestVision(frame VisionFrame) ([]Assignment, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrStopped
	}
	now := e.clock.Now()
	if frame.Timestamp.IsZero() {
		frame.Timestamp = now
	}

	events := e.pruneStale(now, nil)
	e.cameraLastFrame[frame.CameraID] = frame.Timestamp

	var assignments []Assignment
	for _, obs := range e.normalizeVision(frame) {
		var id string
		id, events = e.apply(obs, events)
		assignments = append(assignments, Assignment{Index: obs.Index, AssetID: id})
	}
	ticket := e.reserveTicket(events)
	e.mu.Unlock()

	e.dispatchInOrder(ticket, events)
	return assignments, nil
}

// IngestUWB processes one batch of tag readings. Readings for unregistered
// tags are logged and skipped.
func (e *Engine) IngestUWB(frame UWBFrame) ([]Assignment, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrStopped
	}
	now := e.clock.Now()
	if frame.Timestamp.IsZero() {
		frame.Timestamp = now
	}

	events := e.pruneStale(now, nil)

	var assignments []Assignment
	for _, obs := range e.normalizeUWB(frame) {
		var id string
		id, events = e.apply(obs, events)
		assignments = append(assignments, Assignment{Index: obs.Index, AssetID: id})
	}
	ticket := e.reserveTicket(events)
	e.mu.Unlock()

	e.dispatchInOrder(ticket, events)
	return assignments, nil
}

// Prune evicts stale assets without ingesting anything. Ingestion already
// prunes; this exists for idle periods when no frames arrive.
func (e *Engine) Prune() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	events := e.pruneStale(e.clock.Now(), nil)
	ticket := e.reserveTicket(events)
	e.mu.Unlock()
	e.dispatchInOrder(ticket, events)
}

// Stop halts ingestion and clears the per-camera and per-tag buffers.
// Registered configuration and the last known assets remain queryable.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.tagLastSeen = make(map[string]time.Time)
	e.cameraLastFrame = make(map[string]time.Time)
}

// Running reports whether the engine still accepts frames.
func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}
