package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/haukened/rr-relay/internal/dns/common/clock"
	"github.com/haukened/rr-relay/internal/dns/common/log"
	"github.com/haukened/rr-relay/internal/dns/config"
	"github.com/haukened/rr-relay/internal/dns/gateways/metrics"
	"github.com/haukened/rr-relay/internal/dns/gateways/transport"
	"github.com/haukened/rr-relay/internal/dns/gateways/upstream"
	"github.com/haukened/rr-relay/internal/dns/gateways/wire"
	"github.com/haukened/rr-relay/internal/dns/repos/auditlog"
	"github.com/haukened/rr-relay/internal/dns/repos/authority"
	"github.com/haukened/rr-relay/internal/dns/services/resolver"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "rr-relayd"
)

// Application holds all the components of the relay
type Application struct {
	config    *config.AppConfig
	audit     *auditlog.Log
	registry  *prometheus.Registry
	metrics   *metrics.Server
	transport *transport.UDPTransport
	resolver  *resolver.Resolver

	ready        chan struct{}
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Configure global logging
	err = log.Configure(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"app":            appName,
		"version":        version,
		"env":            cfg.Env,
		"log_level":      cfg.LogLevel,
		"listen":         cfg.ListenAddress(),
		"upstream":       cfg.Upstream,
		"authority_file": cfg.AuthorityFile,
		"audit_log":      cfg.AuditLog,
	}, "Starting RR-Relay")

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Relay failed")
	}

	log.Info(nil, "RR-Relay stopped gracefully")
	_ = log.Sync()
}

// buildApplication constructs all components and wires them together
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	clk := clock.RealClock{}
	logger := log.GetLogger()

	table, err := authority.Load(cfg.AuthorityFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load authority table: %w", err)
	}
	log.Info(map[string]any{
		"file":    cfg.AuthorityFile,
		"entries": table.Len(),
	}, "Authority table loaded")
	log.Debug(map[string]any{"names": table.Names()}, "Authority names")

	registry := prometheus.NewRegistry()
	recorder, err := metrics.NewPrometheus(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	app := &Application{
		config:   cfg,
		audit:    auditlog.New(cfg.AuditLog, clk, logger),
		registry: registry,
		ready:    make(chan struct{}),
	}

	forwarder := upstream.NewForwarder(upstream.Options{
		Timeout: cfg.UpstreamTimeout,
		Logger:  logger,
	})
	log.Info(map[string]any{
		"upstream": cfg.Upstream,
		"timeout":  forwarder.Timeout().String(),
	}, "Upstream forwarder configured")

	app.resolver = resolver.NewResolver(resolver.ResolverOptions{
		Audit:     app.audit,
		Authority: table,
		Clock:     clk,
		Codec:     wire.NewUDPCodec(logger),
		Forwarder: forwarder,
		Logger:    logger,
		Metrics:   recorder,
		Shutdown:  app.Shutdown,
		Upstream:  cfg.Upstream,
	})

	app.transport = transport.NewUDPTransport(cfg.ListenAddress(), logger)

	if cfg.MetricsAddr != "" {
		app.metrics = metrics.NewServer(cfg.MetricsAddr, registry, logger)
	}

	return app, nil
}

// Run starts the relay and blocks until ctx is cancelled or a sentinel query
// asks for shutdown. The audit log is flushed before Run returns.
func (app *Application) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	app.cancel = cancel

	if err := app.transport.Start(ctx, app.resolver); err != nil {
		return fmt.Errorf("failed to start UDP transport: %w", err)
	}

	log.Info(map[string]any{
		"address":   app.transport.Address(),
		"transport": "UDP",
	}, "DNS relay started")
	close(app.ready)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		log.Info(nil, "Shutdown initiated")
		return app.transport.Stop()
	})
	if app.metrics != nil {
		g.Go(func() error {
			return app.metrics.ListenAndServe(gctx)
		})
	}

	runErr := g.Wait()

	// in-flight handlers have drained; persist everything they recorded
	if err := app.audit.Flush(); err != nil {
		log.Error(map[string]any{"error": err}, "Failed to flush audit log")
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

// Shutdown flushes the audit log and stops the relay. It is safe to call
// from a request goroutine and only acts once.
func (app *Application) Shutdown() {
	app.shutdownOnce.Do(func() {
		log.Info(map[string]any{
			"audit_log": app.audit.Path(),
			"lines":     app.audit.Len(),
		}, "Flushing audit log and shutting down")
		if err := app.audit.Flush(); err != nil {
			log.Error(map[string]any{"error": err}, "Failed to flush audit log")
		}
		_ = log.Sync()
		if app.cancel != nil {
			app.cancel()
		}
	})
}

// Ready is closed once the UDP listener is bound.
func (app *Application) Ready() <-chan struct{} {
	return app.ready
}

// Address returns the bound UDP address.
func (app *Application) Address() string {
	return app.transport.Address()
}
