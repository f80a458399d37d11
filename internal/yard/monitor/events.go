package monitor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/banshee-data/yard.fusion/internal/httputil"
	"github.com/banshee-data/yard.fusion/internal/monitoring"
	"github.com/banshee-data/yard.fusion/internal/yard/fusion"
)

// streamBuffer is how many events a slow SSE client may fall behind before
// events are dropped for it.
const streamBuffer = 128

// keepAlive is the interval between SSE comment pings.
var keepAlive = 15 * time.Second

// handleEventStream streams engine events as server-sent events. Each event
// is sent with its type as the SSE event name and the JSON event as data.
// ?type= restricts the stream to one event type.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := httputil.StartSSE(w)
	if !ok {
		return
	}
	filter := fusion.EventType(r.URL.Query().Get("type"))

	events := make(chan fusion.Event, streamBuffer)
	unsubscribe := s.yard.Subscribe(func(ev fusion.Event) error {
		if filter != "" && ev.Type != filter {
			return nil
		}
		select {
		case events <- ev:
			return nil
		default:
			return fmt.Errorf("event stream client %s lagging, dropped %s for %s", r.RemoteAddr, ev.Type, ev.AssetID)
		}
	})
	defer unsubscribe()

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				monitoring.Warnf("failed to encode event: %v", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
