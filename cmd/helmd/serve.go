package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/helmd/internal/capability"
	"github.com/fyrsmithlabs/helmd/internal/config"
	"github.com/fyrsmithlabs/helmd/internal/control"
	"github.com/fyrsmithlabs/helmd/internal/governance"
	helmhttp "github.com/fyrsmithlabs/helmd/internal/http"
	"github.com/fyrsmithlabs/helmd/internal/logging"
	"github.com/fyrsmithlabs/helmd/internal/natsbridge"
	"github.com/fyrsmithlabs/helmd/internal/privacy"
	"github.com/fyrsmithlabs/helmd/internal/telemetry"
	"github.com/fyrsmithlabs/helmd/internal/validation"
)

const (
	governanceScope = "github.com/fyrsmithlabs/helmd/internal/governance"
	httpScope       = "github.com/fyrsmithlabs/helmd/internal/http"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the governance daemon",
		Long: `Start the governance pipeline and its HTTP control surface.

Configuration is read from --config (YAML or TOML) with HELMD_* environment
overrides. When a file is in use, edits to its governance section are applied
to the running pipeline without a restart.

Examples:
  # Start with the default config location
  helmd serve

  # Override the port from the environment
  HELMD_SERVER_HTTP_PORT=8080 helmd serve --config ~/.config/helmd/dev.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			return a.run(ctx)
		},
	}
}

// app holds every long-lived component of a running daemon.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	tel    *telemetry.Telemetry

	registry *prometheus.Registry
	bus      *governance.Bus
	suite    *capability.Suite
	pipeline *governance.Pipeline
	service  *control.Service
	server   *helmhttp.Server

	nc      *nats.Conn
	bridge  *natsbridge.Bridge
	watcher *config.Watcher
}

// newApp builds the daemon from cfg. Nothing is started.
//
// Initialization order:
//  1. Telemetry, so the logger can bridge into its LoggerProvider
//  2. Privacy redactor and logger
//  3. Event bus, capability modules and the governance pipeline
//  4. Control service with the validation ledger
//  5. HTTP server, NATS bridge and config watcher
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	tcfg := telemetry.NewDefaultConfig()
	if err := cfg.Unmarshal("telemetry", tcfg); err != nil {
		return nil, err
	}
	tel, err := telemetry.New(ctx, tcfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.tel = tel

	pcfg := privacy.DefaultConfig()
	if err := cfg.Unmarshal("privacy", pcfg); err != nil {
		return nil, err
	}
	redactor, err := privacy.New(pcfg)
	if err != nil {
		return nil, fmt.Errorf("invalid privacy config: %w", err)
	}

	lcfg := logging.NewDefaultConfig()
	if err := cfg.Unmarshal("logging", lcfg); err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(lcfg, tel.LoggerProvider(), logging.WithContentRedactor(redactor))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger
	zl := logger.Underlying()

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.bus = governance.NewBus(governance.DefaultBusBuffer, zl)
	a.suite = capability.NewSuite(capability.WithLogger(zl), capability.WithRedactor(redactor))
	router := a.suite.Router()

	a.pipeline, err = governance.New(router,
		governance.WithConfig(governanceConfig(cfg.Governance)),
		governance.WithLogger(zl),
		governance.WithBus(a.bus),
		governance.WithMetrics(governance.NewMetrics(a.registry)),
		governance.WithTracer(tel.Tracer(governanceScope)),
	)
	if err != nil {
		a.bus.Close()
		return nil, fmt.Errorf("failed to create governance pipeline: %w", err)
	}
	a.suite.BindLocks(a.pipeline)

	vm, err := validation.NewMetrics(tel.Meter(validation.InstrumentationName))
	if err != nil {
		// Validation still works without its counters.
		zl.Warn("validation metrics unavailable", zap.Error(err))
	}
	a.service, err = control.New(a.pipeline,
		control.WithLedger(validation.NewLedger(validation.WithLedgerMetrics(vm))),
		control.WithStreamMetrics(a.suite.Engagement),
		control.WithRouter(router),
		control.WithLogger(zl),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create control service: %w", err)
	}

	a.server, err = helmhttp.NewServer(a.service, zl, serverConfig(cfg.Server),
		helmhttp.WithEvents(a.bus),
		helmhttp.WithGatherer(a.registry),
		helmhttp.WithHTTPMetrics(helmhttp.NewHTTPMetrics(tel.Meter(httpScope), zl)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http server: %w", err)
	}

	if cfg.NATS.Enabled {
		if err := a.connectNATS(zl); err != nil {
			return nil, err
		}
	}

	if cfg.Path != "" {
		a.watcher, err = config.NewWatcher(cfg.Path, zl, a.applyReload)
		if err != nil {
			// Hot reload is optional; the daemon runs on the loaded config.
			zl.Warn("config hot reload disabled", zap.String("path", cfg.Path), zap.Error(err))
			a.watcher = nil
		}
	}

	logger.Info(ctx, "helmd initialized",
		zap.String("version", version),
		zap.String("config", cfg.Path),
		zap.Bool("telemetry", tel.IsEnabled()),
		zap.Bool("nats", a.bridge != nil),
	)
	return a, nil
}

func (a *app) connectNATS(zl *zap.Logger) error {
	var opts []nats.Option
	if a.cfg.NATS.Token.IsSet() {
		opts = append(opts, nats.Token(a.cfg.NATS.Token.Value()))
	}
	nc, err := natsbridge.Connect(a.cfg.NATS.URL, zl, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to nats: %w", err)
	}
	a.nc = nc

	a.bridge, err = natsbridge.New(nc, a.service,
		natsbridge.WithPrefix(a.cfg.NATS.SubjectPrefix),
		natsbridge.WithLogger(zl),
		natsbridge.WithRequestTimeout(a.cfg.NATS.RequestTimeout.Duration()),
	)
	if err != nil {
		return err
	}
	a.bridge.Mirror(a.bus)
	if err := a.bridge.Serve(); err != nil {
		return fmt.Errorf("failed to serve nats requests: %w", err)
	}
	return nil
}

// applyReload pushes the reloaded governance section into the running
// pipeline. Other sections need a restart.
func (a *app) applyReload(next *config.Config) {
	patch := governance.PatchFrom(governanceConfig(next.Governance))
	cfg, err := a.service.UpdateConfig(context.Background(), patch)
	if err != nil {
		a.logger.Underlying().Warn("reloaded governance config rejected", zap.Error(err))
		return
	}
	a.logger.Underlying().Info("governance config reloaded",
		zap.Float64("auto_approve_threshold", cfg.AutoApproveThreshold),
		zap.Bool("memory_locked", cfg.MemoryLocked),
		zap.Bool("persona_locked", cfg.PersonaLocked),
		zap.Bool("simulation_mode", cfg.SimulationMode),
	)
}

// run starts every component and blocks until ctx is cancelled or one of
// them fails, then shuts everything down.
func (a *app) run(ctx context.Context) error {
	if err := a.pipeline.Start(ctx); err != nil {
		return fmt.Errorf("failed to start governance pipeline: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if a.watcher != nil {
		g.Go(func() error {
			return a.watcher.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})
	return g.Wait()
}

// shutdown stops components in reverse dependency order: intake surfaces
// first, then the pipeline, then the exporters.
func (a *app) shutdown() error {
	timeout := a.cfg.Server.ShutdownTimeout.Duration()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	zl := a.logger.Underlying()
	zl.Info("shutting down", zap.Duration("timeout", timeout))

	var errs []error
	if a.bridge != nil {
		errs = append(errs, a.bridge.Close())
	}
	if err := a.server.Shutdown(ctx); err != nil {
		// Event streams hold their connections open until the deadline.
		zl.Warn("http server did not drain, closing", zap.Error(err))
		errs = append(errs, a.server.Echo().Close())
	}
	errs = append(errs, a.pipeline.Shutdown(ctx))
	if a.nc != nil {
		errs = append(errs, a.nc.Drain())
	}
	errs = append(errs, a.tel.Shutdown(ctx))
	_ = a.logger.Sync()

	return errors.Join(errs...)
}

// governanceConfig converts the file representation into pipeline settings.
func governanceConfig(gc config.GovernanceConfig) governance.Config {
	return governance.Config{
		AutoApproveThreshold: gc.AutoApproveThreshold,
		MemoryLocked:         gc.MemoryLocked,
		PersonaLocked:        gc.PersonaLocked,
		SimulationMode:       gc.SimulationMode,
		AuditEnabled:         gc.AuditEnabled,
		MaxPendingIntents:    gc.MaxPendingIntents,
		IntentTimeout:        gc.IntentTimeout.Duration(),
		ModerationTTL:        gc.ModerationTTL.Duration(),
		WriteTTL:             gc.WriteTTL.Duration(),
		DefaultTTL:           gc.DefaultTTL.Duration(),
		TickInterval:         gc.TickInterval.Duration(),
		BatchSize:            gc.BatchSize,
		AuditCapacity:        gc.AuditCapacity,
		AuditTrimTo:          gc.AuditTrimTo,
		ResolvedRetention:    gc.ResolvedRetention,
		ExecutionTimeout:     gc.ExecutionTimeout.Duration(),
	}
}

func serverConfig(sc config.ServerConfig) *helmhttp.Config {
	return &helmhttp.Config{
		Host:         sc.Host,
		Port:         sc.Port,
		AllowOrigins: sc.AllowOrigins,
		IntakeRate:   sc.IntakeRate,
		IntakeBurst:  sc.IntakeBurst,
		Heartbeat:    sc.Heartbeat.Duration(),
	}
}
