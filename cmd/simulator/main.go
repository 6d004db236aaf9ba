package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/sensornet-simulator/internal/config"
	"github.com/signalsfoundry/sensornet-simulator/internal/driver"
	"github.com/signalsfoundry/sensornet-simulator/internal/logging"
	"github.com/signalsfoundry/sensornet-simulator/internal/observability"
	"github.com/signalsfoundry/sensornet-simulator/internal/report"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configPath  string
	writeConfig string
	rounds      int
	seed        uint64
	metricsAddr string
	csvPath     string
	protocol    string

	set map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("simulator", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "path to a YAML scenario; built-in defaults when empty")
	fs.StringVar(&o.writeConfig, "write-config", "", "write the default scenario to this path and exit")
	fs.IntVar(&o.rounds, "rounds", 0, "rounds to run after initialization; 0 runs until a battery is exhausted")
	fs.Uint64Var(&o.seed, "seed", 0, "seed for placement, speeds and battery drain")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "HTTP address for Prometheus /metrics; disabled when empty")
	fs.StringVar(&o.csvPath, "csv", "", "write per-round battery statistics to this CSV file")
	fs.StringVar(&o.protocol, "protocol", "", "round protocol: explicit or sentinel")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	o.set = map[string]bool{}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	return o, nil
}

func loadConfig(o options) (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	if o.set["rounds"] {
		cfg.Simulation.TotalRounds = o.rounds
	}
	if o.set["seed"] {
		cfg.Simulation.Seed = o.seed
	}
	if o.set["metrics-addr"] {
		cfg.Metrics.Addr = o.metricsAddr
	}
	if o.set["csv"] {
		cfg.Output.RoundsCSV = o.csvPath
	}
	if o.set["protocol"] {
		cfg.Simulation.Protocol = o.protocol
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	if o.writeConfig != "" {
		if err := config.WriteDefault(o.writeConfig); err != nil {
			fmt.Fprintf(stderr, "write config: %v\n", err)
			return exitError
		}
		return exitOK
	}

	cfg, err := loadConfig(o)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	ctx, log := logging.WithRunLogger(ctx, logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Backend: cfg.Logging.Backend,
		Output:  stderr,
	}))

	tracing := observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	}.WithEnv()
	shutdownTracing, err := observability.InitTracing(ctx, tracing, log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		return exitError
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	collector, err := observability.NewSimCollector(reg)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		return exitError
	}
	planner, err := observability.NewDispatchCollector(reg)
	if err != nil {
		log.Error(ctx, "failed to initialise dispatch metrics", logging.Err(err))
		return exitError
	}

	deps := driver.Deps{Log: log, Recorder: collector, Planner: planner}
	if cfg.Output.RoundsCSV != "" {
		f, err := os.Create(cfg.Output.RoundsCSV)
		if err != nil {
			log.Error(ctx, "failed to create rounds CSV", logging.String("path", cfg.Output.RoundsCSV), logging.Err(err))
			return exitError
		}
		defer f.Close()
		deps.Observers = append(deps.Observers, report.NewRoundCSV(f))
	}

	_, drv, err := driver.Setup(cfg, deps)
	if err != nil {
		log.Error(ctx, "failed to set up simulation", logging.Err(err))
		return exitError
	}

	res, err := runWithMetrics(ctx, drv, cfg.Metrics.Addr, collector, log)
	if err != nil {
		log.Error(ctx, "simulation aborted", logging.Int("round", res.Rounds), logging.Err(err))
		return exitError
	}

	if res.Termination != nil {
		log.Info(ctx, "simulation terminated",
			logging.Int("round", res.Termination.Round),
			logging.Int("node_id", res.Termination.Node.ID),
			logging.String("record", res.Termination.String()),
		)
	} else {
		log.Info(ctx, "round limit reached", logging.Int("rounds", res.Rounds))
	}
	if err := report.WriteTermination(stdout, res.Termination, res.Rounds); err != nil {
		log.Error(ctx, "failed to write termination record", logging.Err(err))
		return exitError
	}
	return exitOK
}

// runWithMetrics runs the driver and, when addr is set, a /metrics server
// that lives exactly as long as the run.
func runWithMetrics(ctx context.Context, drv *driver.Driver, addr string, collector *observability.SimCollector, log logging.Logger) (driver.Result, error) {
	g, gctx := errgroup.WithContext(ctx)
	runCtx, done := context.WithCancel(gctx)
	defer done()

	if addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			log.Info(ctx, "serving Prometheus metrics", logging.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	var res driver.Result
	g.Go(func() error {
		defer done()
		var err error
		res, err = drv.Run(runCtx)
		return err
	})

	err := g.Wait()
	return res, err
}
