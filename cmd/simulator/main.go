package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/google/uuid"

	"github.com/signalsfoundry/stadium-telemetry/core"
	"github.com/signalsfoundry/stadium-telemetry/internal/engine"
	"github.com/signalsfoundry/stadium-telemetry/internal/logging"
	"github.com/signalsfoundry/stadium-telemetry/internal/observability"
	"github.com/signalsfoundry/stadium-telemetry/internal/report"
)

func main() {
	scenarioPath := flag.String("scenario", "", "YAML scenario file; empty runs the built-in stadium scenario")
	outputDir := flag.String("output-dir", ".", "directory for the CSV streams and handover log")
	eventStore := flag.String("event-store", "", "SQLite file for handover events; empty disables the store")
	metricsAddr := flag.String("metrics-addr", "", "listen address for /metrics; empty disables the endpoint")
	flag.Parse()

	ctx := context.Background()
	log := logging.NewFromEnv()
	runID := uuid.NewString()

	scenario, err := loadScenario(*scenarioPath)
	if err != nil {
		log.Error(ctx, "scenario load failed", logging.String("error", err.Error()))
		os.Exit(1)
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "tracing init failed", logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	metrics, err := observability.NewSimulationCollector(nil)
	if err != nil {
		log.Error(ctx, "metrics init failed", logging.String("error", err.Error()))
		os.Exit(1)
	}
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Warn(ctx, "metrics endpoint stopped", logging.String("error", err.Error()))
			}
		}()
		log.Info(ctx, "metrics endpoint up", logging.String("addr", *metricsAddr))
	}

	setupCtx, setupSpan := observability.StartPhaseSpan(ctx, "setup", runID)
	eng, err := engine.New(engine.Config{
		Scenario:       scenario,
		RunID:          runID,
		OutputDir:      *outputDir,
		EventStorePath: *eventStore,
		Log:            log,
		Metrics:        metrics,
	})
	setupSpan.End()
	if err != nil {
		log.Error(setupCtx, "engine setup failed", logging.String("error", err.Error()))
		os.Exit(1)
	}

	runCtx, runSpan := observability.StartPhaseSpan(ctx, "run", runID)
	summary, runErr := eng.Run(runCtx)
	runSpan.End()
	if closeErr := eng.Close(); closeErr != nil {
		log.Warn(ctx, "closing outputs failed", logging.String("error", closeErr.Error()))
	}

	_, reportSpan := observability.StartPhaseSpan(ctx, "report", runID)
	report.Render(os.Stdout, summary, eng.Collector(), eng.Entities())
	reportSpan.End()

	if runErr != nil {
		log.Error(ctx, "run failed", logging.String("error", runErr.Error()))
		os.Exit(1)
	}
}

func loadScenario(path string) (*core.Scenario, error) {
	if path == "" {
		return core.StadiumScenario(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario %q: %w", path, err)
	}
	defer f.Close()
	return core.LoadScenario(f)
}
