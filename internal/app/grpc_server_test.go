package app

import (
	"context"
	"net"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/vladislavdragonenkov/marketplace/internal/version"
)

func TestNewGRPCServer_HealthService(t *testing.T) {
	logger := log.WithField("component", "grpc-test")
	srv, healthServer := newGRPCServer(logger)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := healthpb.NewHealthClient(conn)
	for _, service := range []string{"", version.Service} {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus(), "service %q", service)
	}

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestNewGRPCServer_RepeatedConstruction(t *testing.T) {
	logger := log.WithField("component", "grpc-test")

	first, _ := newGRPCServer(logger)
	second, _ := newGRPCServer(logger)
	require.NotNil(t, first)
	require.NotNil(t, second, "prometheus collectors are reused on the second call")
	first.Stop()
	second.Stop()
}

func TestStopGRPC_ReturnsAfterGracefulStop(t *testing.T) {
	srv, _ := newGRPCServer(log.WithField("component", "grpc-test"))
	lis := bufconn.Listen(1 << 10)
	go func() { _ = srv.Serve(lis) }()

	done := make(chan struct{})
	go func() {
		stopGRPC(srv, log.WithField("component", "grpc-test"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("stopGRPC did not return")
	}
}
