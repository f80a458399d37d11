// Package monitor serves the yard's HTTP API: asset and zone queries, a
// live event stream, the event journal and debug visualisations.
package monitor

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/yard.fusion/internal/httputil"
	"github.com/banshee-data/yard.fusion/internal/monitoring"
	"github.com/banshee-data/yard.fusion/internal/yard/fusion"
	"github.com/banshee-data/yard.fusion/internal/yard/storage/sqlite"
)

// Yard is the read side of the fusion engine.
type Yard interface {
	Assets() []*fusion.TrackedAsset
	Asset(id string) (*fusion.TrackedAsset, error)
	AssetsByState(state fusion.AssetState) []*fusion.TrackedAsset
	AssetsInZone(name string) ([]*fusion.TrackedAsset, error)
	Status() fusion.YardStatus
	Zones() []fusion.Zone
	Subscribe(h fusion.EventHandler) (unsubscribe func())
}

// Journal reads persisted events.
type Journal interface {
	RecentEvents(limit int) ([]sqlite.EventRecord, error)
}

// ServerConfig configures a Server. Journal may be nil, in which case
// /api/events/recent answers 503.
type ServerConfig struct {
	Address string
	Yard    Yard
	Journal Journal
}

// Server is the HTTP front end.
type Server struct {
	address string
	yard    Yard
	journal Journal
	mux     *http.ServeMux
	server  *http.Server
}

// NewServer builds the server with the API and yard debug routes mounted.
func NewServer(config ServerConfig) *Server {
	s := &Server{
		address: config.Address,
		yard:    config.Yard,
		journal: config.Journal,
		mux:     http.NewServeMux(),
	}
	s.setupRoutes(s.mux)
	s.AttachDebugRoutes(s.mux)
	s.server = &http.Server{
		Addr:              config.Address,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ServeMux returns the server's mux so other components can mount their
// admin routes alongside the API.
func (s *Server) ServeMux() *http.ServeMux {
	return s.mux
}

func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/assets", s.handleAssets)
	mux.HandleFunc("GET /api/assets/{id}", s.handleAsset)
	mux.HandleFunc("GET /api/zones", s.handleZones)
	mux.HandleFunc("GET /api/zones/{name}/assets", s.handleZoneAssets)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/events", s.handleEventStream)
	mux.HandleFunc("GET /api/events/recent", s.handleRecentEvents)
	mux.HandleFunc("GET /health", s.handleHealth)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("starting HTTP server on %s", s.address)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	monitoring.Logf("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Warnf("HTTP server shutdown error: %v", err)
		if err := s.server.Close(); err != nil {
			monitoring.Warnf("HTTP server force close error: %v", err)
		}
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.yard.Status()
	if !status.Running {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "stopped"})
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
}

// handleAssets lists tracked assets, optionally filtered by ?state=.
func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		httputil.WriteJSONOK(w, nonNil(s.yard.Assets()))
		return
	}
	for _, known := range fusion.AllStates {
		if string(known) == state {
			httputil.WriteJSONOK(w, nonNil(s.yard.AssetsByState(known)))
			return
		}
	}
	httputil.BadRequest(w, "unknown state "+strconv.Quote(state))
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	asset, err := s.yard.Asset(r.PathValue("id"))
	if errors.Is(err, fusion.ErrNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, asset)
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	zones := s.yard.Zones()
	if zones == nil {
		zones = []fusion.Zone{}
	}
	httputil.WriteJSONOK(w, zones)
}

func (s *Server) handleZoneAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.yard.AssetsInZone(r.PathValue("name"))
	if errors.Is(err, fusion.ErrNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, nonNil(assets))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.yard.Status())
}

// handleRecentEvents returns journal entries, newest first. ?limit= caps
// the count (default 100, max 1000).
func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		httputil.ServiceUnavailable(w, "event journal not configured")
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			httputil.BadRequest(w, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	events, err := s.journal.RecentEvents(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if events == nil {
		events = []sqlite.EventRecord{}
	}
	httputil.WriteJSONOK(w, events)
}

func nonNil(assets []*fusion.TrackedAsset) []*fusion.TrackedAsset {
	if assets == nil {
		return []*fusion.TrackedAsset{}
	}
	return assets
}
