// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/absmach/hullserver"
	"github.com/absmach/hullserver/examples/simple"
	"github.com/absmach/hullserver/pkg/admin"
	"github.com/absmach/hullserver/pkg/alerts"
	"github.com/absmach/hullserver/pkg/graph"
	"github.com/absmach/hullserver/pkg/handler"
	"github.com/absmach/hullserver/pkg/health"
	"github.com/absmach/hullserver/pkg/metrics"
	"github.com/absmach/hullserver/pkg/proactor"
	"github.com/absmach/hullserver/pkg/protocol"
	"github.com/absmach/hullserver/pkg/ratelimit"
	"github.com/absmach/hullserver/pkg/reactor"
	"github.com/absmach/hullserver/pkg/threshold"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const envPrefix = "HULL_"

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "hullserver",
		Short:        "Convex hull TCP server",
		Long:         "hullserver keeps a shared set of 2-D points, answers convex hull queries over a line protocol and raises alerts when the hull area crosses a threshold.",
		Version:      version,
		SilenceUsage: true,
	}
	root.SetVersionTemplate(fmt.Sprintf("hullserver %s\ncommit: %s\nbuilt: %s\n", version, commit, date))

	root.AddCommand(newServeCmd())
	root.AddCommand(newClientCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hullserver %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

type serveOptions struct {
	mode       string
	configFile string
	console    bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the hull server",
		Long: `Runs the hull server in reactor or proactor mode.

Configuration is read from HULL_* environment variables (and a .env file),
then overlaid with the TOML file given by --config. --mode wins over both.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.mode, "mode", "", "serving mode: reactor or proactor")
	cmd.Flags().StringVar(&opts.configFile, "config", "", "TOML configuration file")
	cmd.Flags().BoolVar(&opts.console, "console", false, "read status and quit commands from stdin")
	return cmd
}

func loadConfig(opts serveOptions) (hullserver.Config, error) {
	cfg, err := hullserver.NewConfig(env.Options{Prefix: envPrefix})
	if err != nil {
		return hullserver.Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.LoadFile(opts.configFile); err != nil {
		return hullserver.Config{}, err
	}
	if opts.mode != "" {
		cfg.Mode = opts.mode
	}
	if err := cfg.Validate(); err != nil {
		return hullserver.Config{}, err
	}
	return cfg, nil
}

// lineServer is what both serving modes provide.
type lineServer interface {
	Listen(ctx context.Context) error
	Addr() net.Addr
	ActiveConnections() int
}

func serve(ctx context.Context, opts serveOptions, in io.Reader, out io.Writer) error {
	// .env is optional
	envErr := godotenv.Load()

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, styleError.Render(err.Error()))
		return err
	}

	logger := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Debug("no .env file found, using environment variables")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New("hullserver", reg)

	monitor := threshold.New(cfg.ThresholdArea)
	state := graph.New(monitor, cfg.Algorithm())
	hub := alerts.NewHub(logger)
	defer hub.Close()
	if err := m.RegisterGauge("alert_subscribers", "Number of websocket clients following threshold alerts", func() float64 {
		return float64(hub.Subscribers())
	}); err != nil {
		return err
	}
	if err := m.RegisterCounter("alerts_published_total", "Threshold alerts published to subscribers", func() float64 {
		return float64(hub.Published())
	}); err != nil {
		return err
	}
	interp := protocol.NewInterpreter(&instrumentedGraph{state: state, metrics: m})

	h, err := newHandler(cfg, m, logger)
	if err != nil {
		return err
	}

	var srv lineServer
	switch cfg.Mode {
	case hullserver.ModeProactor:
		p := proactor.NewServer(proactor.ServerConfig{
			Address:         cfg.Address(),
			MaxWorkers:      cfg.MaxWorkers,
			ShutdownTimeout: cfg.ShutdownTimeout,
			WriteTimeout:    cfg.WriteTimeout,
			Logger:          logger,
		}, interp, h)
		if err := m.RegisterGauge("proactor_workers", "Number of running proactor workers", func() float64 {
			return float64(p.ActiveConnections())
		}); err != nil {
			return err
		}
		if err := m.RegisterCounter("proactor_busy_rejections_total", "Connections refused because every worker slot was taken", func() float64 {
			return float64(p.Rejected())
		}); err != nil {
			return err
		}
		srv = p
	default:
		r := reactor.NewServer(reactor.ServerConfig{
			Address:      cfg.Address(),
			PollTimeout:  cfg.PollTimeout,
			WriteTimeout: cfg.WriteTimeout,
			Logger:       logger,
		}, interp, h)
		if err := m.RegisterGauge("reactor_descriptors", "Number of descriptors registered with the reactor", func() float64 {
			return float64(r.Descriptors())
		}); err != nil {
			return err
		}
		srv = r
	}

	checker := health.NewChecker(5*time.Second, logger)
	checker.Register("server", func(context.Context) error {
		if srv.Addr() == nil {
			return errors.New("server is not listening")
		}
		return nil
	})
	checker.Register("graph", func(ctx context.Context) error {
		done := make(chan struct{})
		go func() {
			state.Size()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return errors.New("graph state is not responding")
		}
	})
	checker.Register("goroutines", func(context.Context) error {
		if n := runtime.NumGoroutine(); n > 10*max(cfg.MaxWorkers, 1024) {
			return fmt.Errorf("too many goroutines: %d", n)
		}
		return nil
	})

	logger.Info("starting hull server",
		slog.String("mode", cfg.Mode),
		slog.String("address", cfg.Address()),
		slog.String("algorithm", string(state.Algorithm())),
		slog.Float64("threshold", monitor.Threshold()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Listen(ctx)
	})

	g.Go(func() error {
		onAlert := func(ev threshold.Event) {
			m.ObserveCrossing(ev)
			hub.Publish(ev)
		}
		return monitor.Run(ctx, onAlert, onAlert)
	})

	if cfg.OpsAddress != "" {
		ops := admin.NewServer(cfg.OpsAddress, admin.NewRouter(admin.Deps{
			Checker:   checker,
			Gatherer:  reg,
			Graph:     state,
			Threshold: monitor,
			Alerts:    hub,
			Logger:    logger,
		}), logger)
		g.Go(func() error {
			return ops.Listen(ctx)
		})
	}

	if opts.console {
		c := &console{
			in:      in,
			out:     out,
			state:   state,
			monitor: monitor,
			alerts:  hub,
			conns:   srv.ActiveConnections,
			quit:    cancel,
		}
		g.Go(func() error {
			return c.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("hull server terminated with error: %s", err))
		return err
	}
	logger.Info("hull server stopped")
	return nil
}

func newHandler(cfg hullserver.Config, m *metrics.Metrics, logger *slog.Logger) (handler.Handler, error) {
	var h handler.Handler = simple.New(logger)
	if cfg.RateLimitCapacity > 0 {
		rl := &RateLimitedHandler{
			handler:  h,
			sessions: ratelimit.NewLimiter(cfg.RateLimitCapacity, cfg.RateLimitRefill, 0),
			global:   ratelimit.NewTokenBucket(cfg.RateLimitCapacity*100, cfg.RateLimitRefill*100),
			metrics:  m,
			logger:   logger,
		}
		if err := rl.registerMetrics(); err != nil {
			return nil, err
		}
		h = rl
	}
	return &InstrumentedHandler{
		handler: h,
		metrics: m,
		logger:  logger,
	}, nil
}
