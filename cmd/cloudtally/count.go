package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"github.com/cloudtally/cloudtally/config"
	"github.com/cloudtally/cloudtally/engine"
	awsprovider "github.com/cloudtally/cloudtally/providers/aws"
	"github.com/cloudtally/cloudtally/telemetry"
	"github.com/cloudtally/cloudtally/types"
)

// CountCommand executes one counting run.
type CountCommand struct {
	Config *config.Config
	Debug  bool
}

// Run wires logging, metrics, the provider, and the engine together.
func (cmd *CountCommand) Run(ctx context.Context) error {
	setupLogging(cmd.Debug)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics, stopMetrics, err := setupMetrics(cmd.Config.MetricsAddr)
	if err != nil {
		return err
	}
	defer stopMetrics()

	stateFilter := types.RunningOnly
	if cmd.Config.IncludeStopped {
		stateFilter = types.RunningAndStopped
	}

	provider, err := awsprovider.New(ctx, awsprovider.Options{
		Region:      cmd.Config.Region,
		RoleName:    cmd.Config.RoleName,
		StateFilter: stateFilter,
		DeepInspect: cmd.Config.DeepInspect,
		MaxAttempts: cmd.Config.MaxAttempts,
		BackoffBase: cmd.Config.BackoffBase,
		CallTimeout: cmd.Config.CallTimeout,
	})
	if err != nil {
		return err
	}

	eng := engine.New(provider, engine.Options{
		Region:           cmd.Config.Region,
		OrgMode:          cmd.Config.OrgMode,
		DSPM:             cmd.Config.DSPM,
		DeepInspect:      cmd.Config.DeepInspect,
		CountUnconfirmed: cmd.Config.CountUnconfirmed,
		ScopeWorkers:     cmd.Config.ScopeWorkers,
		InstanceWorkers:  cmd.Config.InstanceWorkers,
		Pace:             cmd.Config.PaceInterval,
	}, telemetry.NewLogger("engine"), metrics)

	result, err := eng.Run(ctx)
	if err != nil {
		return err
	}

	return engine.WriteReport(os.Stdout, result, cmd.Config.DSPM)
}

func setupLogging(debug bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// setupMetrics wires the OTEL meter to a Prometheus registry and, when
// an address is given, serves it for the duration of the run.
func setupMetrics(addr string) (*telemetry.Metrics, func(), error) {
	registry, err := telemetry.SetupPrometheus()
	if err != nil {
		return nil, nil, err
	}
	metrics, err := telemetry.InitMetrics(otel.Meter("cloudtally"))
	if err != nil {
		return nil, nil, err
	}

	if addr == "" {
		return metrics, func() {}, nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info().Str("addr", addr).Msg("starting metrics server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()

	stop := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
	return metrics, stop, nil
}
