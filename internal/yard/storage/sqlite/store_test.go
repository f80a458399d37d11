package sqlite

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/yard.fusion/internal/timeutil"
	"github.com/banshee-data/yard.fusion/internal/yard/fusion"
	"github.com/banshee-data/yard.fusion/internal/yard/geom"
	"github.com/banshee-data/yard.fusion/internal/yard/site"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "yard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_MigratesToLatest(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// Re-running is a no-op.
	require.NoError(t, s.MigrateUp())

	for _, table := range []string{"zones", "cameras", "uwb_tags", "uwb_anchors", "yard_events"} {
		var name string
		err := s.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
}

func TestOpen_PragmasOnEveryConnection(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	// Holding the connections open forces the pool to dial new ones.
	for i := 0; i < 3; i++ {
		conn, err := s.Conn(ctx)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })

		var timeout, foreignKeys int
		require.NoError(t, conn.QueryRowContext(ctx, `PRAGMA busy_timeout`).Scan(&timeout))
		require.NoError(t, conn.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&foreignKeys))
		assert.Equal(t, 5000, timeout, "connection %d", i)
		assert.Equal(t, 1, foreignKeys, "connection %d", i)
	}
}

func TestRecordEvent_WaitsForConcurrentWriter(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	writer, err := s.Conn(ctx)
	require.NoError(t, err)
	defer writer.Close()
	_, err = writer.ExecContext(ctx, `BEGIN IMMEDIATE`)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- s.RecordEvent(fusion.Event{Type: fusion.EventAssetLost, AssetID: "ast_busy", Timestamp: time.Unix(100, 0)})
	}()

	time.Sleep(100 * time.Millisecond)
	_, err = writer.ExecContext(ctx, `COMMIT`)
	require.NoError(t, err)

	require.NoError(t, <-done, "journal write should wait out the busy writer")
	events, err := s.RecentEvents(0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ast_busy", events[0].AssetID)
}

func TestZones_KeepRegistrationOrder(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	require.NoError(t, s.SaveZone(fusion.Zone{Name: "gate", Bounds: geom.Rect{MaxX: 10, MaxY: 10}}))
	require.NoError(t, s.SaveZone(fusion.Zone{Name: "dock_1", Bounds: geom.Rect{MinX: 5, MaxX: 15, MaxY: 10}, UWBPriority: true}))
	require.NoError(t, s.SaveZone(fusion.Zone{Name: "bay", Kind: fusion.ZoneStaging, Bounds: geom.Rect{MinX: 50, MaxX: 60, MaxY: 10}}))
	// Updating keeps precedence.
	require.NoError(t, s.SaveZone(fusion.Zone{Name: "gate", Bounds: geom.Rect{MaxX: 12, MaxY: 10}}))

	zones, err := s.ListZones()
	require.NoError(t, err)
	want := []fusion.Zone{
		{Name: "gate", Bounds: geom.Rect{MaxX: 12, MaxY: 10}},
		{Name: "dock_1", Bounds: geom.Rect{MinX: 5, MaxX: 15, MaxY: 10}, UWBPriority: true},
		{Name: "bay", Kind: fusion.ZoneStaging, Bounds: geom.Rect{MinX: 50, MaxX: 60, MaxY: 10}},
	}
	if diff := cmp.Diff(want, zones); diff != "" {
		t.Errorf("ListZones() mismatch (-want +got):\n%s", diff)
	}
}

func TestCamerasTagsAnchors_RoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	cam := fusion.CameraCalibration{
		CameraID:       "cam-north",
		Homography:     geom.Homography{{0.05, 0, -10}, {0, 0.05, -5}, {0, 0.0001, 1}},
		FocalLength:    1400,
		PrincipalPoint: geom.Position2D{X: 960, Y: 540},
		Distortion:     []float64{-0.12, 0.03},
		WorldPosition:  geom.Position3D{X: 10, Y: 0, Z: 8},
		Heading:        12.5,
	}
	require.NoError(t, s.SaveCamera(cam))
	require.NoError(t, s.SaveCamera(fusion.CameraCalibration{CameraID: "cam-east", Homography: geom.IdentityHomography()}))
	require.NoError(t, s.SaveTag(fusion.UWBTag{TagID: "T-1", AssetType: fusion.AssetTrailer, AssetID: "TRL-1", BatteryLevel: 0.8}))
	require.NoError(t, s.SaveAnchor(fusion.UWBAnchor{AnchorID: "A1", Position: geom.Position3D{X: 1, Y: 2, Z: 6}, Zone: "dock_1", Status: fusion.AnchorDegraded}))

	cams, err := s.ListCameras()
	require.NoError(t, err)
	require.Len(t, cams, 2)
	assert.Equal(t, "cam-east", cams[0].CameraID)
	assert.Nil(t, cams[0].Distortion)
	if diff := cmp.Diff(cam, cams[1]); diff != "" {
		t.Errorf("camera mismatch (-want +got):\n%s", diff)
	}

	tags, err := s.ListTags()
	require.NoError(t, err)
	assert.Equal(t, []fusion.UWBTag{{TagID: "T-1", AssetType: fusion.AssetTrailer, AssetID: "TRL-1", BatteryLevel: 0.8}}, tags)

	anchors, err := s.ListAnchors()
	require.NoError(t, err)
	assert.Equal(t, []fusion.UWBAnchor{{AnchorID: "A1", Position: geom.Position3D{X: 1, Y: 2, Z: 6}, Zone: "dock_1", Status: fusion.AnchorDegraded}}, anchors)
}

func TestImportSiteThenLoadInto(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	st, err := site.Load("../../../../config/site.example.yaml")
	require.NoError(t, err)
	require.NoError(t, s.ImportSite(st))
	// Importing twice is idempotent.
	require.NoError(t, s.ImportSite(st))

	e := fusion.NewEngine(fusion.DefaultConfig(), nil)
	require.NoError(t, s.LoadInto(e))

	status := e.Status()
	assert.Equal(t, len(st.Zones), status.Zones)
	assert.Equal(t, len(st.Cameras), status.Cameras)
	assert.Equal(t, len(st.Tags), status.RegisteredTags)
	assert.Equal(t, len(st.Anchors), status.TotalAnchors)

	var names []string
	for _, z := range e.Zones() {
		names = append(names, z.Name)
	}
	var want []string
	for _, z := range st.Zones {
		want = append(want, z.Name)
	}
	assert.Equal(t, want, names)
}

func TestJournal(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	clock := timeutil.NewMockClock(time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC))
	e := fusion.NewEngine(fusion.DefaultConfig(), clock)
	e.Subscribe(s.JournalHandler())
	require.NoError(t, e.RegisterZone(fusion.Zone{Name: "main_gate", Bounds: geom.Rect{MinX: 0, MaxX: 10, MinY: 5, MaxY: 10}}))
	require.NoError(t, e.RegisterTag(fusion.UWBTag{TagID: "T-1", AssetType: fusion.AssetTruck}))

	frame := func(y float64) fusion.UWBFrame {
		return fusion.UWBFrame{Timestamp: clock.Now(), Readings: []fusion.UWBReading{{TagID: "T-1", Position: geom.Position3D{X: 5, Y: y}, Accuracy: 0.2}}}
	}
	_, err := e.IngestUWB(frame(0))
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = e.IngestUWB(frame(6))
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = e.IngestUWB(fusion.UWBFrame{Timestamp: clock.Now()})
	require.NoError(t, err)

	events, err := s.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, string(fusion.EventAssetLost), events[0].Type)
	assert.Equal(t, string(fusion.StateAtGate), events[0].OldState)

	assert.Equal(t, string(fusion.EventStateChange), events[1].Type)
	assert.Equal(t, string(fusion.StateInYard), events[1].OldState)
	assert.Equal(t, string(fusion.StateAtGate), events[1].NewState)
	require.NotNil(t, events[1].Y)
	assert.InDelta(t, 6, *events[1].Y, 1e-9)

	assert.Equal(t, string(fusion.EventAssetDetected), events[2].Type)
	assert.Equal(t, "truck", events[2].AssetType)
	assert.True(t, events[2].Timestamp.Equal(time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)))

	limited, err := s.RecentEvents(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRecordEvent_WithoutAsset(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	require.NoError(t, s.RecordEvent(fusion.Event{Type: fusion.EventAssetLost, AssetID: "ast_x", Timestamp: time.Unix(100, 0)}))

	events, err := s.RecentEvents(0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Nil(t, events[0].X)
	assert.Nil(t, events[0].Confidence)
}

func TestAttachAdminRoutes(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	mux := http.NewServeMux()
	require.NoError(t, s.AttachAdminRoutes(mux))

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/gzip", w.Header().Get("Content-Type"))
	assert.NotZero(t, w.Body.Len())
}
