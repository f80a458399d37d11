package fusion

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/yard.fusion/internal/yard/geom"
)

func seededEngine(t *testing.T) (*Engine, *eventRecorder) {
	t.Helper()
	e, clock := newTestEngine(t, DefaultConfig())
	mustRegisterZone(t, e, Zone{Name: "dock_1", Bounds: geom.Rect{MinX: 0, MaxX: 10, MinY: 0, MaxY: 10}, UWBPriority: true})
	mustRegisterZone(t, e, Zone{Name: "main_gate", Bounds: geom.Rect{MinX: 50, MaxX: 60, MinY: 0, MaxY: 10}})
	require.NoError(t, e.RegisterCamera(CameraCalibration{CameraID: "cam-1", Homography: geom.IdentityHomography()}))
	require.NoError(t, e.RegisterCamera(CameraCalibration{CameraID: "cam-2", Homography: geom.IdentityHomography()}))
	require.NoError(t, e.RegisterAnchor(UWBAnchor{AnchorID: "A1", Status: AnchorOnline}))
	require.NoError(t, e.RegisterAnchor(UWBAnchor{AnchorID: "A2", Status: AnchorDegraded}))
	require.NoError(t, e.RegisterAnchor(UWBAnchor{AnchorID: "A3", Status: AnchorOnline}))
	require.NoError(t, e.RegisterTag(UWBTag{TagID: "T-old", AssetType: AssetForklift}))
	require.NoError(t, e.RegisterTag(UWBTag{TagID: "T-dock", AssetType: AssetTrailer}))
	require.NoError(t, e.RegisterTag(UWBTag{TagID: "T-gate", AssetType: AssetTruck}))
	events := recordEvents(t, e)

	_, err := e.IngestUWB(uwbFrame(clock.Now(), "T-old", 30, 30, 0.2))
	require.NoError(t, err)
	clock.Advance(25 * time.Second)
	_, err = e.IngestUWB(UWBFrame{
		Timestamp: clock.Now(),
		Readings: []UWBReading{
			{TagID: "T-dock", Position: geom.Position3D{X: 5, Y: 5}, Accuracy: 0.1},
			{TagID: "T-gate", Position: geom.Position3D{X: 55, Y: 5}, Accuracy: 0.1},
			{TagID: "T-ghost", Position: geom.Position3D{X: 1, Y: 1}, Accuracy: 0.1},
		},
	})
	require.NoError(t, err)
	_, err = e.IngestVision(VisionFrame{
		CameraID:   "cam-1",
		Timestamp:  clock.Now(),
		Detections: []Detection{{Class: "pedestrian", Confidence: 0.8, BoundingBox: boxAt(80, 80)}},
	})
	require.NoError(t, err)

	// Queries do not prune, so T-old stays listed until the next ingestion.
	clock.Advance(15 * time.Second)
	return e, events
}

func TestQueries(t *testing.T) {
	t.Parallel()

	t.Run("assets ordered by id", func(t *testing.T) {
		t.Parallel()
		e, _ := seededEngine(t)
		assets := e.Assets()
		require.Len(t, assets, 4)
		for i := 1; i < len(assets); i++ {
			assert.Less(t, assets[i-1].ID, assets[i].ID)
		}
	})

	t.Run("by state", func(t *testing.T) {
		t.Parallel()
		e, _ := seededEngine(t)
		docked := e.AssetsByState(StateDocked)
		require.Len(t, docked, 1)
		assert.Equal(t, AssetTrailer, docked[0].Type)
		assert.Len(t, e.AssetsByState(StateAtGate), 1)
		assert.Len(t, e.AssetsByState(StateInYard), 2)
		assert.Empty(t, e.AssetsByState(StateDeparting))
	})

	t.Run("in zone", func(t *testing.T) {
		t.Parallel()
		e, _ := seededEngine(t)
		inGate, err := e.AssetsInZone("main_gate")
		require.NoError(t, err)
		require.Len(t, inGate, 1)
		assert.Equal(t, AssetTruck, inGate[0].Type)

		_, err = e.AssetsInZone("nowhere")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("asset by id returns a copy", func(t *testing.T) {
		t.Parallel()
		e, _ := seededEngine(t)
		want := e.Assets()[0]
		got, err := e.Asset(want.ID)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got, cmp.AllowUnexported(TrackedAsset{})); diff != "" {
			t.Errorf("Asset() mismatch (-want +got):\n%s", diff)
		}
		got.Trajectory = nil
		again, _ := e.Asset(want.ID)
		assert.NotEmpty(t, again.Trajectory)

		_, err = e.Asset("ast_missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("status", func(t *testing.T) {
		t.Parallel()
		e, _ := seededEngine(t)
		s := e.Status()

		assert.Equal(t, 4, s.TotalAssets)
		assert.Equal(t, map[AssetType]int{
			AssetForklift: 1,
			AssetTrailer:  1,
			AssetTruck:    1,
			AssetPerson:   1,
		}, s.ByType)
		assert.Equal(t, 1, s.ByState[StateDocked])
		assert.Equal(t, 2, s.OnlineAnchors)
		assert.Equal(t, 3, s.TotalAnchors)
		assert.Equal(t, 3, s.ActiveTags)
		assert.Equal(t, 3, s.RegisteredTags)
		assert.Equal(t, 2, s.Cameras)
		assert.Equal(t, 2, s.Zones)
		assert.Equal(t, int64(1), s.DroppedReadings)
		assert.True(t, s.Running)
	})
}

func TestStatus_ActiveTagWindow(t *testing.T) {
	t.Parallel()
	e, clock := newTestEngine(t, DefaultConfig())
	require.NoError(t, e.RegisterTag(UWBTag{TagID: "T-1", AssetType: AssetTruck}))
	_, err := e.IngestUWB(uwbFrame(clock.Now(), "T-1", 0, 0, 0.2))
	require.NoError(t, err)

	clock.Advance(60 * time.Second)
	assert.Equal(t, 1, e.Status().ActiveTags)
	clock.Advance(time.Second)
	assert.Equal(t, 0, e.Status().ActiveTags)
}
