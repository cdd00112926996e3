// Package grpcserver runs the gRPC health probe endpoint.
package grpcserver

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Service is the health service name reported for the account API.
const Service = "acme.accounts.v1.Accounts"

// Probe serves grpc.health.v1 and mirrors the readiness of the HTTP API.
type Probe struct {
	srv    *grpc.Server
	health *health.Server
	log    *zap.Logger
}

// Options configure NewProbe.
type Options struct {
	CertFile, KeyFile string // both empty means plaintext
	Reflection        bool
}

// NewProbe builds a probe server with logging and recovery interceptors.
func NewProbe(log *zap.Logger, opts Options) (*Probe, error) {
	if log == nil {
		log = zap.NewNop()
	}
	so := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(RecoverUnary(log), LoggingUnary(log)),
		grpc.ChainStreamInterceptor(LoggingStream(log)),
	}
	if opts.CertFile != "" && opts.KeyFile != "" {
		creds, err := credentials.NewServerTLSFromFile(opts.CertFile, opts.KeyFile)
		if err != nil {
			return nil, err
		}
		so = append(so, grpc.Creds(creds))
	}
	s := grpc.NewServer(so...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if opts.Reflection {
		reflection.Register(s)
	}
	p := &Probe{srv: s, health: hs, log: log}
	p.SetServing(false)
	return p, nil
}

// SetServing flips both the overall and the per-service status.
func (p *Probe) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	p.health.SetServingStatus("", st)
	p.health.SetServingStatus(Service, st)
}

// Watch polls check every interval and updates the status until ctx is done.
func (p *Probe) Watch(ctx context.Context, interval time.Duration, check func(context.Context) error) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	update := func() {
		cctx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		err := check(cctx)
		if err != nil {
			p.log.Warn("readiness check failed", zap.Error(err))
		}
		p.SetServing(err == nil)
	}
	update()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			update()
		}
	}
}

// Serve blocks until the listener fails or Stop is called.
func (p *Probe) Serve(lis net.Listener) error {
	return p.srv.Serve(lis)
}

// Stop shuts down gracefully, forcing after timeout.
func (p *Probe) Stop(timeout time.Duration) {
	p.health.Shutdown()
	done := make(chan struct{})
	go func() {
		p.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		p.srv.Stop()
	}
}
