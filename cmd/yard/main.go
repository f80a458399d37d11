// Command yard runs the yard asset fusion engine: it ingests vision frames
// over UDP and UWB positions from a serial gateway, fuses them into tracked
// assets and serves the result over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/banshee-data/yard.fusion/internal/config"
	"github.com/banshee-data/yard.fusion/internal/monitoring"
	"github.com/banshee-data/yard.fusion/internal/serialmux"
	"github.com/banshee-data/yard.fusion/internal/version"
	"github.com/banshee-data/yard.fusion/internal/yard/fusion"
	"github.com/banshee-data/yard.fusion/internal/yard/monitor"
	"github.com/banshee-data/yard.fusion/internal/yard/network"
	"github.com/banshee-data/yard.fusion/internal/yard/site"
	"github.com/banshee-data/yard.fusion/internal/yard/storage/sqlite"
)

var (
	showVersion   = flag.Bool("version", false, "Print version and exit")
	debug         = flag.Bool("debug", false, "Enable debug logging")
	tuningPath    = flag.String("tuning", "", "Tuning JSON file (built-in defaults when empty)")
	sitePath      = flag.String("site", "", "Site YAML file with zones, cameras, tags and anchors")
	dbPath        = flag.String("db", "yard.db", "SQLite database path (empty disables persistence)")
	listen        = flag.String("listen", ":8080", "HTTP listen address")
	grpcListen    = flag.String("grpc-listen", ":50051", "gRPC health listen address (empty disables)")
	visionListen  = flag.String("vision-listen", ":5600", "UDP address for vision frames (empty disables)")
	visionRcvBuf  = flag.Int("vision-rcvbuf", 4<<20, "UDP receive buffer size in bytes")
	forwardAddr   = flag.String("forward", "", "Relay annotated vision frames to this host:port")
	pcapFile      = flag.String("pcap", "", "Replay vision frames from a capture instead of listening (requires -tags=pcap)")
	uwbPort       = flag.String("uwb-port", "", "Serial device of the UWB gateway (empty disables)")
	uwbBaud       = flag.Int("uwb-baud", serialmux.DefaultBaudRate, "UWB gateway baud rate")
	uwbInit       = flag.String("uwb-init", "", "Comma-separated commands sent to the gateway after the clock sync")
	pruneInterval = flag.Duration("prune-interval", time.Second, "How often stale assets are pruned without new frames")
	logInterval   = flag.Duration("log-interval", time.Minute, "Interval between traffic statistics log lines")
)

// splitCommands parses the -uwb-init list, dropping empty entries.
func splitCommands(s string) []string {
	var out []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func loadTuning(path string) (fusion.Config, error) {
	if path == "" {
		return fusion.DefaultConfig(), nil
	}
	cfg, err := config.LoadTuningConfig(path)
	if err != nil {
		return fusion.Config{}, err
	}
	return fusion.ConfigFromTuning(cfg), nil
}

// loadRegistry registers zones, cameras, tags and anchors with engine. A
// site file is imported into the store first when both are present, so the
// store always holds the registrations in effect.
func loadRegistry(engine *fusion.Engine, store *sqlite.Store, sitePath string) error {
	var st *site.Site
	if sitePath != "" {
		var err error
		if st, err = site.Load(sitePath); err != nil {
			return err
		}
	}
	switch {
	case store != nil && st != nil:
		if err := store.ImportSite(st); err != nil {
			return fmt.Errorf("failed to import site: %w", err)
		}
		return store.LoadInto(engine)
	case store != nil:
		return store.LoadInto(engine)
	case st != nil:
		return st.Apply(engine)
	}
	monitoring.Warnf("no site configured; zones and tags must be registered before UWB readings are accepted")
	return nil
}

// logEvents is an event handler that logs every engine event.
func logEvents(ev fusion.Event) error {
	switch ev.Type {
	case fusion.EventStateChange:
		monitoring.Logf("%s %s: %s -> %s", ev.AssetType, ev.AssetID, ev.OldState, ev.NewState)
	default:
		monitoring.Logf("%s %s: %s", ev.AssetType, ev.AssetID, ev.Type)
	}
	return nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	monitoring.SetDebug(*debug)
	monitoring.Logf("%s starting", version.String())

	if err := run(); err != nil {
		logrus.Fatal(err)
	}
	monitoring.Logf("graceful shutdown complete")
}

func run() error {
	cfg, err := loadTuning(*tuningPath)
	if err != nil {
		return fmt.Errorf("failed to load tuning: %w", err)
	}
	engine := fusion.NewEngine(cfg, nil)
	engine.Subscribe(logEvents)

	var store *sqlite.Store
	if *dbPath != "" {
		if store, err = sqlite.Open(*dbPath); err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()
		engine.Subscribe(store.JournalHandler())
	}
	if err := loadRegistry(engine, store, *sitePath); err != nil {
		return err
	}

	var uwb serialmux.MuxInterface
	if *uwbPort != "" {
		mux, err := serialmux.Open(*uwbPort, serialmux.PortOptions{BaudRate: *uwbBaud}, nil)
		if err != nil {
			return fmt.Errorf("failed to open UWB gateway: %w", err)
		}
		uwb = mux
		if err := uwb.Initialize(splitCommands(*uwbInit)); err != nil {
			uwb.Close()
			return fmt.Errorf("failed to initialize UWB gateway: %w", err)
		}
		monitoring.Logf("initialized UWB gateway on %s", *uwbPort)
	} else {
		uwb = serialmux.NewDisabledSerialMux()
	}
	var closeOnce sync.Once
	closeUWB := func() {
		closeOnce.Do(func() {
			if err := uwb.Close(); err != nil {
				monitoring.Warnf("failed to close UWB gateway: %v", err)
			}
		})
	}
	defer closeUWB()
	gateway := &serialmux.GatewayState{}

	var forwarder *network.Forwarder
	stats := network.NewFrameStats()
	if *forwardAddr != "" {
		if forwarder, err = network.NewForwarder(*forwardAddr, stats, *logInterval); err != nil {
			return err
		}
		defer forwarder.Close()
	}
	vision := network.NewVisionListener(network.VisionListenerConfig{
		Address:     *visionListen,
		RcvBuf:      *visionRcvBuf,
		LogInterval: *logInterval,
		Engine:      engine,
		Stats:       stats,
		Forwarder:   forwarder,
	})

	serverConfig := monitor.ServerConfig{Address: *listen, Yard: engine}
	if store != nil {
		serverConfig.Journal = store
	}
	server := monitor.NewServer(serverConfig)
	httpMux := server.ServeMux()
	uwb.AttachAdminRoutes(httpMux)
	gateway.AttachAdminRoutes(httpMux)
	if store != nil {
		if err := store.AttachAdminRoutes(httpMux); err != nil {
			return err
		}
	}

	var grpcHealth *healthServer
	if *grpcListen != "" {
		if grpcHealth, err = newHealthServer(*grpcListen); err != nil {
			return fmt.Errorf("failed to start gRPC health service: %w", err)
		}
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := uwb.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Warnf("failed to monitor UWB gateway: %v", err)
		}
		monitoring.Logf("UWB monitor routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		err := serialmux.Consume(ctx, uwb, engine, gateway)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, fusion.ErrStopped) {
			monitoring.Warnf("UWB consumer stopped: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		var err error
		switch {
		case *pcapFile != "":
			err = network.ReadPCAPFile(ctx, *pcapFile, udpPort(*visionListen), vision)
		case *visionListen != "":
			err = vision.Start(ctx)
		default:
			return
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Warnf("vision input stopped: %v", err)
		}
	}()

	// Prune on a timer so assets are lost even when every source goes quiet.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(*pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				engine.Prune()
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(ctx); err != nil {
			monitoring.Warnf("HTTP server failed: %v", err)
			stop()
		}
	}()

	if grpcHealth != nil {
		grpcHealth.setServing(true)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := grpcHealth.serve(); err != nil {
				monitoring.Warnf("gRPC health service stopped: %v", err)
			}
		}()
	}

	<-ctx.Done()
	monitoring.Logf("shutting down")
	engine.Stop()
	if grpcHealth != nil {
		grpcHealth.stop()
	}
	// Closing the gateway unblocks the serial reader.
	closeUWB()
	wg.Wait()
	return nil
}

// defaultVisionPort is used for the PCAP filter when the listen address
// carries no usable port.
const defaultVisionPort = 5600

// udpPort extracts the port of a listen address for the PCAP filter.
func udpPort(addr string) int {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return defaultVisionPort
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 {
		return defaultVisionPort
	}
	return port
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
}
