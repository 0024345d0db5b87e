package server

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthServer_Follows_Run(t *testing.T) {
	req := require.New(t)
	h := NewHealthServer(logs.GetLoggerFromLevel(slog.LevelDebug))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	s := grpc.NewServer()
	h.Register(s)
	go func() { _ = s.Serve(listener) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient(listener.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	req.NoError(err)
	t.Cleanup(func() { _ = conn.Close() })
	client := healthpb.NewHealthClient(conn)

	status := func() healthpb.HealthCheckResponse_ServingStatus {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
		if err != nil {
			return healthpb.HealthCheckResponse_UNKNOWN
		}
		return resp.GetStatus()
	}

	// Given the worker is not running yet
	req.Equal(healthpb.HealthCheckResponse_NOT_SERVING, status())

	// When it runs
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	// Then the chat is reported as serving
	req.Eventually(func() bool { return status() == healthpb.HealthCheckResponse_SERVING },
		time.Second, 10*time.Millisecond)

	// When it stops
	cancel()
	req.NoError(<-done)

	// Then it is not serving anymore
	req.Equal(healthpb.HealthCheckResponse_NOT_SERVING, status())
}
