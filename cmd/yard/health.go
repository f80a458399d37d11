package main

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/yard.fusion/internal/monitoring"
)

// engineService is the health service name reported for the fusion engine.
const engineService = "yard.fusion.Engine"

// healthServer exposes the standard gRPC health service.
type healthServer struct {
	lis    net.Listener
	server *grpc.Server
	health *health.Server
}

func newHealthServer(addr string) (*healthServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	h := &healthServer{
		lis:    lis,
		server: grpc.NewServer(),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(h.server, h.health)
	h.setServing(false)
	return h, nil
}

func (h *healthServer) addr() string { return h.lis.Addr().String() }

// setServing reports both the overall and the engine service status.
func (h *healthServer) setServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(engineService, status)
}

// serve blocks until stop is called.
func (h *healthServer) serve() error {
	monitoring.Logf("gRPC health service listening on %s", h.addr())
	return h.server.Serve(h.lis)
}

// stop marks everything NOT_SERVING and drains open streams.
func (h *healthServer) stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
