package grpcserver

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type tcpAddr string

func (tcpAddr) Network() string  { return "tcp" }
func (a tcpAddr) String() string { return string(a) }

func fieldsOf(e observer.LoggedEntry) map[string]any { return e.ContextMap() }

func TestProbe_LogsHealthCheckCalls(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	p, err := NewProbe(zap.New(core), Options{})
	if err != nil {
		t.Fatalf("NewProbe: %v", err)
	}
	c := startProbe(t, p)
	p.SetServing(true)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: Service}); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if _, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: "acme.unknown.v1"}); status.Code(err) != codes.NotFound {
		t.Fatalf("unknown service: want NotFound, got %v", err)
	}

	entries := logs.FilterMessage("grpc").All()
	if len(entries) != 2 {
		t.Fatalf("want 2 grpc log entries, got %d", len(entries))
	}
	first, second := fieldsOf(entries[0]), fieldsOf(entries[1])
	if first["method"] != "/grpc.health.v1.Health/Check" || first["code"] != "OK" {
		t.Fatalf("first entry fields: %v", first)
	}
	if second["code"] != "NotFound" {
		t.Fatalf("second entry code: %v", second["code"])
	}
	if _, ok := first["dur"]; !ok {
		t.Fatalf("missing dur field: %v", first)
	}
}

func TestLoggingUnary_RecordsPeer(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	ic := LoggingUnary(zap.New(core))
	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: tcpAddr("10.0.0.7:5100")})
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	resp, err := ic(ctx, nil, info, func(context.Context, any) (any, error) {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if r, _ := resp.(*healthpb.HealthCheckResponse); r.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("response not passed through: %v", resp)
	}
	if got := fieldsOf(logs.All()[0])["peer"]; got != "10.0.0.7:5100" {
		t.Fatalf("peer field = %v", got)
	}

	// no peer in context: empty field, no panic
	_, _ = ic(context.Background(), nil, info, func(context.Context, any) (any, error) { return nil, nil })
	if got := fieldsOf(logs.All()[1])["peer"]; got != "" {
		t.Fatalf("peer without context = %v", got)
	}
}

func TestRecoverUnary_PanicBecomesInternal(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	ic := RecoverUnary(zap.New(core))
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	_, err := ic(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("probe handler exploded")
	})
	if status.Code(err) != codes.Internal {
		t.Fatalf("want codes.Internal, got %v", err)
	}
	entries := logs.FilterMessage("panic").All()
	if len(entries) != 1 || fieldsOf(entries[0])["method"] != info.FullMethod {
		t.Fatalf("panic log entries: %v", entries)
	}

	resp, err := ic(context.Background(), nil, info, func(context.Context, any) (any, error) { return "ok", nil })
	if err != nil || resp != "ok" {
		t.Fatalf("pass through: %v %v", resp, err)
	}
}

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f fakeStream) Context() context.Context { return f.ctx }

func TestLoggingStream_ReturnsHandlerError(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	ic := LoggingStream(zap.New(core))
	ss := fakeStream{ctx: peer.NewContext(context.Background(), &peer.Peer{Addr: tcpAddr("10.0.0.8:5200")})}
	info := &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch"}

	err := ic(nil, ss, info, func(any, grpc.ServerStream) error { return status.Error(codes.Canceled, "gone") })
	if status.Code(err) != codes.Canceled {
		t.Fatalf("want Canceled, got %v", err)
	}
	f := fieldsOf(logs.All()[0])
	if f["method"] != info.FullMethod || f["code"] != "Canceled" || f["peer"] != "10.0.0.8:5200" {
		t.Fatalf("stream log fields: %v", f)
	}
}
