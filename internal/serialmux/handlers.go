package serialmux

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"tailscale.com/tsweb"

	"github.com/banshee-data/yard.fusion/internal/monitoring"
	"github.com/banshee-data/yard.fusion/internal/yard/frames"
	"github.com/banshee-data/yard.fusion/internal/yard/fusion"
)

// UWBIngester consumes decoded UWB frames.
type UWBIngester interface {
	IngestUWB(frame fusion.UWBFrame) ([]fusion.Assignment, error)
}

// GatewayState holds the most recent values reported on gateway status
// lines, merged key by key.
type GatewayState struct {
	mu      sync.RWMutex
	values  map[string]any
	updated time.Time
}

// Update merges the "gateway" object of a status line.
func (g *GatewayState) Update(payload string) error {
	values, ok := gjson.Get(payload, "gateway").Value().(map[string]any)
	if !ok {
		return fmt.Errorf("status line has no gateway object: %q", payload)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.values == nil {
		g.values = make(map[string]any)
	}
	for k, v := range values {
		g.values[k] = v
	}
	g.updated = time.Now()
	return nil
}

// Snapshot returns a copy of the current values and when they last changed.
func (g *GatewayState) Snapshot() (map[string]any, time.Time) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]any, len(g.values))
	for k, v := range g.values {
		out[k] = v
	}
	return out, g.updated
}

// AttachAdminRoutes exposes the gateway state as JSON at /debug/uwb-gateway.
func (g *GatewayState) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("uwb-gateway", "Latest UWB gateway status", func(w http.ResponseWriter, r *http.Request) {
		values, updated := g.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"updated": updated, "values": values})
	})
}

// HandleLine routes one gateway line: position batches go to the engine and
// status lines update state.
func HandleLine(e UWBIngester, state *GatewayState, line string) error {
	switch ClassifyLine(line) {
	case LineTypeUWBFrame:
		frame, err := frames.ParseUWBFrame([]byte(line))
		if err != nil {
			return err
		}
		if _, err := e.IngestUWB(frame); err != nil {
			return fmt.Errorf("failed to ingest UWB frame: %w", err)
		}
	case LineTypeStatus:
		if state != nil {
			return state.Update(line)
		}
	case LineTypeBlank:
	default:
		monitoring.Logf("ignoring gateway line: %s", line)
	}
	return nil
}

// Consume subscribes to m and handles every line until ctx is cancelled,
// the mux closes, or the engine stops.
func Consume(ctx context.Context, m MuxInterface, e UWBIngester, state *GatewayState) error {
	id, lines := m.Subscribe()
	defer m.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := HandleLine(e, state, line); err != nil {
				if errors.Is(err, fusion.ErrStopped) {
					return err
				}
				monitoring.Warnf("UWB gateway line rejected: %v", err)
			}
		}
	}
}
