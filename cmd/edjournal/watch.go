package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/checkpoint"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/config"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/consumer"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/dlq"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/extension"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/health"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/loadout"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/logging"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/metrics"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/monitor"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/parser"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/profiling"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/server"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/shutdown"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/tracing"
)

var watchDir string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the journal until interrupted or the harness exits",
	Long: `Follow current.edd and stored.edd in the journal directory.

The stored backlog is replayed first, then live records are applied as they
are written. Every event is passed to the enabled extensions and the ship
loadout is exported on Loadout events when export is enabled.

Examples:
  # Watch the directory from the config file
  edjournal watch -c edjournal.yaml

  # Watch a directory with defaults, exporting loadouts
  EDJOURNAL_EXPORT_ENABLED=true edjournal watch --dir ~/journal`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchDir, "dir", "d", "",
		"Journal directory (overrides watch.dir)")
}

// status is served at the health server's status path.
type status struct {
	consumer.Details
	ShipyardURL string    `json:"shipyard_url,omitempty"`
	Watching    bool      `json:"watching"`
	Watcher     string    `json:"watcher,omitempty"`
	Pending     int       `json:"pending"`
	Since       time.Time `json:"since"`
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if watchDir != "" {
		cfg.Watch.Dir = watchDir
	}

	logger := setupLogging(cfg.Logging)
	logger.Info().Str("version", version).Str("dir", cfg.Watch.Dir).Msg("Starting edjournal")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return watch(ctx, stop, cfg, logger)
}

// watch runs until ctx is done or the harness exits, then shuts down in
// stages.
func watch(ctx context.Context, stop context.CancelFunc, cfg *config.Config, logger *logging.Logger) error {
	mgr := shutdown.New(shutdown.Config{Timeout: cfg.ShutdownTimeout, Logger: logger})
	started := false
	defer func() {
		if !started {
			_ = mgr.Shutdown()
		}
	}()

	collector := metrics.NewCollector()
	collector.Start()
	mgr.Register(shutdown.StageFinal, "metrics", func(context.Context) error {
		collector.Stop()
		return nil
	})

	tp, err := tracing.NewProvider(ctx, tracingConfig(cfg.Tracing))
	if err != nil {
		return fmt.Errorf("failed to create tracing provider: %w", err)
	}
	mgr.Register(shutdown.StageFinal, "tracing", tp.Shutdown)

	profiler := profiling.New(profilingConfig(cfg.Profiling), logger)
	if err := profiler.Start(); err != nil {
		return err
	}
	mgr.RegisterComponent(shutdown.StageFinal, profiler)

	ckpt, err := checkpoint.NewManager(cfg.Watch.CheckpointPath, cfg.Watch.CheckpointInterval)
	if err != nil {
		return err
	}
	ckpt.SetLogger(logger)
	if err := ckpt.Load(); err != nil {
		logger.Warn().Err(err).Msg("Failed to load checkpoints, starting fresh")
	}
	ckpt.Start()
	mgr.Register(shutdown.StageFinal, "checkpoint", func(context.Context) error {
		ckpt.Stop()
		return nil
	})

	parserOpts := []parser.Option{parser.WithLogger(logger), parser.WithMetrics(collector)}
	if cfg.DeadLetter.Enabled {
		q, err := dlq.New(dlqConfig(cfg.DeadLetter))
		if err != nil {
			return fmt.Errorf("failed to open dead letter queue: %w", err)
		}
		collector.DLQSize.Set(float64(q.Size()))
		parserOpts = append(parserOpts, parser.WithDeadLetterQueue(q))
		mgr.Register(shutdown.StageOutput, "dlq", func(context.Context) error { return q.Close() })
	}

	mon, err := monitor.New(monitorConfig(cfg.Watch),
		monitor.WithLogger(logger),
		monitor.WithMetrics(collector),
		monitor.WithTracer(tp.Tracer()),
		monitor.WithParser(parser.New(parserOpts...)),
		monitor.WithCheckpoints(ckpt),
	)
	if err != nil {
		return err
	}

	registry := extension.NewRegistry(
		extension.WithLogger(logger),
		extension.WithMetrics(collector),
		extension.WithTracer(tp.Tracer()),
	)
	exts, err := buildExtensions(ctx, cfg, registry, logger, collector)
	if err != nil {
		return err
	}
	mgr.Register(shutdown.StageOutput, "extensions", func(context.Context) error { return registry.Close() })

	loopOpts := []consumer.Option{consumer.WithLogger(logger), consumer.WithExitHandler(stop)}
	if cfg.Export.Enabled {
		if err := os.MkdirAll(cfg.Export.Dir, 0755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
		loopOpts = append(loopOpts, consumer.WithExporter(loadout.NewExporter(cfg.Export.Dir,
			loadout.WithLogger(logger),
			loadout.WithMetrics(collector),
			loadout.WithTracer(tp.Tracer()),
		)))
	}
	loop := consumer.New(mon, registry, loopOpts...)

	checker := health.NewChecker(cfg.Health.Timeout)
	checker.SetMetrics(collector)
	checker.Register("watcher", health.WatcherCheck(mon.Status))
	checker.Register("queue", health.QueueCheck(mon.QueueUtilization, mon.Pending, cfg.Health.QueueDegradedAt))
	checker.Register("extensions", health.ExtensionsCheck(func() string { return loop.Details().Status }, registry.Len))

	srvCfg := server.Config{
		HealthChecker:   checker,
		MetricsRegistry: collector.Registry(),
		Status: func() any {
			ws := mon.Status()
			s := status{
				Details:  loop.Details(),
				Watching: ws.OK,
				Watcher:  ws.Message,
				Pending:  mon.Pending(),
				Since:    ws.Since,
			}
			if exts.edsy != nil {
				s.ShipyardURL = exts.edsy.URL()
			}
			return s
		},
		Logger: logger,
	}
	if cfg.Metrics.Enabled {
		srvCfg.MetricsAddress = cfg.Metrics.Address
		srvCfg.MetricsPath = cfg.Metrics.Path
	}
	if cfg.Health.Enabled {
		srvCfg.HealthAddress = cfg.Health.Address
		srvCfg.LivenessPath = cfg.Health.LivenessPath
		srvCfg.ReadinessPath = cfg.Health.ReadinessPath
		srvCfg.StatusPath = cfg.Health.StatusPath
	}
	srv := server.New(srvCfg)
	if err := srv.Start(); err != nil {
		return err
	}
	mgr.Register(shutdown.StageFinal, "server", srv.Stop)

	// The consumer runs first: the queue blocks the watcher when full.
	runCtx, cancelRun := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(runCtx) }()
	mgr.Register(shutdown.StageDrain, "consumer", func(ctx context.Context) error {
		cancelRun()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	started = true

	if err := mon.Start(ctx); err != nil {
		return errors.Join(fmt.Errorf("failed to start monitor: %w", err), mgr.Shutdown())
	}
	mgr.Register(shutdown.StageInput, "monitor", func(context.Context) error { return mon.Stop() })

	logger.Info().Msg("Watching journal")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-done:
		done <- runErr
	}
	if errors.Is(runErr, consumer.ErrExited) {
		runErr = nil
	}

	logger.Info().Msg("Stopping edjournal")
	return errors.Join(runErr, mgr.Shutdown())
}
