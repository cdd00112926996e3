package grpcserver

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1 << 20

func startProbe(t *testing.T, p *Probe) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	go func() { _ = p.Serve(lis) }()
	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close(); p.Stop(time.Second); _ = lis.Close() })
	return healthpb.NewHealthClient(cc)
}

func statusOf(t *testing.T, c healthpb.HealthClient, svc string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: svc})
	if err != nil {
		t.Fatalf("Check(%q): %v", svc, err)
	}
	return resp.GetStatus()
}

func TestProbe_StartsNotServingAndFlips(t *testing.T) {
	t.Parallel()

	p, err := NewProbe(zaptest.NewLogger(t), Options{Reflection: true})
	if err != nil {
		t.Fatalf("NewProbe: %v", err)
	}
	c := startProbe(t, p)

	if got := statusOf(t, c, Service); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("initial status = %v", got)
	}
	p.SetServing(true)
	if got := statusOf(t, c, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("overall status = %v", got)
	}
	if got := statusOf(t, c, Service); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("service status = %v", got)
	}
}

func TestProbe_WatchFollowsCheck(t *testing.T) {
	t.Parallel()

	p, err := NewProbe(zaptest.NewLogger(t), Options{})
	if err != nil {
		t.Fatalf("NewProbe: %v", err)
	}
	c := startProbe(t, p)

	var healthy atomic.Bool
	healthy.Store(true)
	check := func(context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("db down")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Watch(ctx, 10*time.Millisecond, check)

	waitFor := func(want healthpb.HealthCheckResponse_ServingStatus) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if statusOf(t, c, Service) == want {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
		t.Fatalf("status never became %v", want)
	}
	waitFor(healthpb.HealthCheckResponse_SERVING)
	healthy.Store(false)
	waitFor(healthpb.HealthCheckResponse_NOT_SERVING)
}

func TestNewProbe_BadTLSFiles(t *testing.T) {
	t.Parallel()

	if _, err := NewProbe(nil, Options{CertFile: "missing.pem", KeyFile: "missing.key"}); err == nil {
		t.Fatalf("want error for missing TLS files")
	}
}
