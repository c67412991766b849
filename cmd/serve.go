package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hacastro22/watibot3-sub002/internal/bus"
	"github.com/hacastro22/watibot3-sub002/internal/channels"
	"github.com/hacastro22/watibot3-sub002/internal/config"
	"github.com/hacastro22/watibot3-sub002/internal/debounce"
	"github.com/hacastro22/watibot3-sub002/internal/gateway"
	httpapi "github.com/hacastro22/watibot3-sub002/internal/http"
	"github.com/hacastro22/watibot3-sub002/internal/metrics"
	"github.com/hacastro22/watibot3-sub002/internal/processor"
	"github.com/hacastro22/watibot3-sub002/internal/tracing"
)

// shutdownTimeout bounds how long in-flight cycles get to finish on SIGTERM.
const shutdownTimeout = 2 * time.Minute

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook gateway (default)",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	setupLogging()
	if err := serve(); err != nil {
		slog.Error("watibot stopped", "error", err)
		os.Exit(1)
	}
}

func serve() error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Buffer.SweepEnabled() {
		if err := debounce.ValidateSweepSchedule(cfg.Buffer.SweepSchedule); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry, Version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			slog.Warn("tracing shutdown", "error", err)
		}
	}()

	stores, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	proc, err := buildProcessor(cfg.Processor)
	if err != nil {
		return err
	}

	var d *debounce.Debouncer
	collector := metrics.New(func() int { return d.Registry().Len() })
	opts := cfg.Buffer.ToOptions()
	opts.Metrics = collector
	d = debounce.New(stores.Buffer, proc, opts)

	// Messages left buffered by a previous process get their timers back
	// before new traffic arrives.
	n, err := d.Recover(ctx)
	if err != nil {
		slog.Warn("startup recovery failed; the sweep will retry", "error", err)
	} else if n > 0 {
		slog.Info("startup recovery resumed conversations", "count", n)
	}

	channelMgr := channels.NewManagerFromConfig(cfg.Channels)
	dedupe := bus.NewDedupeCache(cfg.Gateway.DedupeWindow(), cfg.Gateway.DedupeMax)
	limiter := channels.NewWebhookRateLimiter(cfg.Gateway.RateLimitRPM)

	server := gateway.NewServer(cfg, Version, d)
	server.SetMetricsRegistry(collector.Registry())
	server.SetWebhookHandler(httpapi.NewWebhookHandler(channelMgr, limiter, makeInboundHandler(d, dedupe), collector, cfg.Gateway.MaxBodyBytes))
	server.SetBufferHandler(httpapi.NewBufferHandler(d.Registry(), stores.Buffer, cfg.Gateway.Token))

	slog.Info("watibot starting",
		"version", Version,
		"channels", channelMgr.GetEnabledChannels(),
		"quiet_period", d.QuietPeriod(),
		"processor", proc.Name(),
		"managed", cfg.IsManagedMode(),
	)

	// Only the quiet period is applied on reload; every other section
	// takes effect on restart.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(gctx) })
	if sweep := cfg.Buffer; sweep.SweepEnabled() {
		g.Go(func() error { return d.RunSweep(gctx, sweep.SweepSchedule) })
	}
	g.Go(func() error {
		err := config.Watch(gctx, cfgPath, func(next *config.Config) {
			cfg.ReplaceFrom(next)
			w := cfg.BufferSnapshot().QuietPeriodDuration()
			if w != d.QuietPeriod() {
				d.SetQuietPeriod(w)
				slog.Info("config reloaded: quiet period changed", "quiet_period", w)
			}
		})
		if err != nil {
			// Hot reload is optional; keep serving on the loaded config.
			slog.Warn("config watcher disabled", "error", err)
		}
		return nil
	})

	runErr := g.Wait()

	slog.Info("graceful shutdown: waiting for running cycles")
	cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.Close(cctx); err != nil {
		slog.Warn("debouncer close", "error", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	slog.Info("watibot stopped")
	return nil
}

// namedProcessor is a debounce.Processor with a label for logs.
type namedProcessor interface {
	debounce.Processor
	Name() string
}

func buildProcessor(pc config.ProcessorConfig) (namedProcessor, error) {
	switch pc.Mode {
	case "", "log":
		return processor.Log{}, nil
	case "http":
		if pc.URL == "" {
			return nil, errors.New("processor mode http requires processor.url")
		}
		return processor.NewHTTP(pc.URL, pc.APIKey, pc.TimeoutDuration()), nil
	default:
		return nil, fmt.Errorf("unknown processor mode %q", pc.Mode)
	}
}
