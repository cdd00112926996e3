// Command accounts-server starts the account management HTTP API and its gRPC health probe.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/acme-accounts/internal/audit"
	"github.com/and161185/acme-accounts/internal/config"
	"github.com/and161185/acme-accounts/internal/crypto"
	"github.com/and161185/acme-accounts/internal/limiter"
	"github.com/and161185/acme-accounts/internal/metrics"
	"github.com/and161185/acme-accounts/internal/migrate"
	"github.com/and161185/acme-accounts/internal/password"
	"github.com/and161185/acme-accounts/internal/rbac"
	"github.com/and161185/acme-accounts/internal/repository/postgres"
	grpcserver "github.com/and161185/acme-accounts/internal/server/grpc"
	httpserver "github.com/and161185/acme-accounts/internal/server/http"
	"github.com/and161185/acme-accounts/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations, and serves until SIGINT/SIGTERM.
func main() {
	cfgPath := flag.String("config", "", "YAML config file (default "+config.DefaultPath+" if present)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides config)")
	dev := flag.Bool("dev", false, "development mode: debug logging and gRPC reflection")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *dsn != "" {
		cfg.DSN = *dsn
	}
	cfg.Dev = cfg.Dev || *dev

	logger, _ := zap.NewProduction()
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("http", cfg.HTTPAddr),
		zap.String("grpc", cfg.GRPCAddr),
		zap.Bool("tls", cfg.TLSEnabled()),
	)
	if cfg.Security.JWTKey == "" {
		logger.Warn("no jwt signing key configured; bearer tokens are disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !cfg.SkipMigrate {
		files, _ := migrate.Files()
		logger.Info("applying migrations", zap.Strings("files", files))
		if err := migrate.Up(ctx, cfg.DSN); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
	}

	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		logger.Fatal("postgres.New", zap.Error(err))
	}
	defer db.Close()

	// Repositories
	accounts := postgres.NewAccountRepo(db)
	events := postgres.NewEventRepo(db)
	payments := postgres.NewPaymentRepo(db)

	m := metrics.New()
	tracker := limiter.NewMemory(cfg.Security.AttemptCache, cfg.Security.AttemptTTL)
	m.TrackGauge("accounts_tracked_identities", "Identities held by the failed-attempt tracker.",
		func() float64 { return float64(tracker.Len()) })

	breached := password.DefaultBreached()
	if len(cfg.Security.Breached) > 0 {
		breached = password.NewStaticSet(cfg.Security.Breached...)
	}
	policy, err := rbac.NewPolicy(rbac.DefaultRules)
	if err != nil {
		logger.Fatal("rbac policy", zap.Error(err))
	}
	rec := audit.NewLog(events, logger.Named("audit"))

	// Services
	authSvc := service.NewAuthService(accounts, crypto.NewArgon2(cfg.Security.Pepper), tracker, rec,
		service.WithPasswordPolicy(password.NewPolicy(breached)),
		service.WithEmailPattern(regexp.MustCompile(cfg.Security.EmailPattern)),
		service.WithTokens([]byte(cfg.Security.JWTKey), cfg.Security.AccessTTL),
		service.WithLogger(logger.Named("auth")),
		service.WithMetrics(m),
	)
	adminSvc := service.NewAdminService(accounts, tracker, rec, logger.Named("admin"))
	bizSvc := service.NewBusinessService(accounts, payments, rec, cfg.HTTP.MaxBatch)

	router := httpserver.NewRouter(httpserver.Deps{
		Auth:           authSvc,
		Admin:          adminSvc,
		Business:       bizSvc,
		Policy:         policy,
		Audit:          rec,
		Log:            logger.Named("http"),
		Metrics:        m,
		MetricsHandler: m.Handler(),
		Ready:          db.Ping,
	})
	hs := httpserver.New(cfg.HTTPAddr, router, cfg.HTTP.ReadHeaderTimeout)

	var probeOpts grpcserver.Options
	if cfg.TLSEnabled() {
		probeOpts.CertFile, probeOpts.KeyFile = cfg.TLS.CertFile, cfg.TLS.KeyFile
	}
	probeOpts.Reflection = cfg.Dev
	probe, err := grpcserver.NewProbe(logger.Named("grpc"), probeOpts)
	if err != nil {
		logger.Fatal("grpc probe", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening (http)", zap.String("addr", cfg.HTTPAddr))
		var err error
		if cfg.TLSEnabled() {
			err = hs.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			err = hs.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Fatal("listen grpc", zap.Error(err))
		}
		g.Go(func() error {
			logger.Info("listening (grpc health)", zap.String("addr", cfg.GRPCAddr))
			return probe.Serve(lis)
		})
		g.Go(func() error {
			probe.Watch(gctx, 10*time.Second, db.Ping)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		probe.Stop(cfg.HTTP.ShutdownTimeout)
		return hs.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
