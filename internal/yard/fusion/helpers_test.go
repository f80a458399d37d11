package fusion

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/yard.fusion/internal/monitoring"
	"github.com/banshee-data/yard.fusion/internal/timeutil"
	"github.com/banshee-data/yard.fusion/internal/yard/geom"
)

var t0 = time.Date(2026, 3, 2, 6, 30, 0, 0, time.UTC)

func newTestEngine(t *testing.T, cfg Config) (*Engine, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(t0)
	return NewEngine(cfg, clock), clock
}

// boxAt returns a bounding box whose foot point is (x, y) in pixels.
func boxAt(x, y float64) geom.BoundingBox {
	return geom.BoundingBox{X: x - 1, Y: y - 10, Width: 2, Height: 10}
}

func uwbFrame(ts time.Time, tagID string, x, y, accuracy float64) UWBFrame {
	return UWBFrame{
		Timestamp: ts,
		Readings: []UWBReading{{
			TagID:    tagID,
			Position: geom.Position3D{X: x, Y: y},
			Accuracy: accuracy,
		}},
	}
}

// warnRecorder captures monitoring.Warnf output for the duration of a test.
// Tests using it must not call t.Parallel.
type warnRecorder struct {
	mu   sync.Mutex
	msgs []string
}

func recordWarnings(t *testing.T) *warnRecorder {
	t.Helper()
	rec := &warnRecorder{}
	prev := monitoring.Warnf
	monitoring.SetWarnLogger(func(format string, v ...interface{}) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.msgs = append(rec.msgs, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() { monitoring.SetWarnLogger(prev) })
	return rec
}

func (r *warnRecorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

// eventRecorder subscribes to an engine and keeps every event.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func recordEvents(t *testing.T, e *Engine) *eventRecorder {
	t.Helper()
	rec := &eventRecorder{}
	unsubscribe := e.Subscribe(func(ev Event) error {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.events = append(rec.events, ev)
		return nil
	})
	t.Cleanup(unsubscribe)
	return rec
}

func (r *eventRecorder) ofType(typ EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func mustRegisterZone(t *testing.T, e *Engine, z Zone) {
	t.Helper()
	require.NoError(t, e.RegisterZone(z))
}
