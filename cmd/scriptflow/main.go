// Command scriptflow reconstructs script block artifacts from decoded event
// log records. It is configured entirely through SCRIPTFLOW_* environment
// variables.
//
// In batch mode (the default) it reads the JSONL files named by
// SCRIPTFLOW_INPUTS, reconstructs every stream and exits non-zero when any
// stream or artifact failed. In service mode it consumes records from
// SCRIPTFLOW_RECORD_TOPIC on the configured transport until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/scriptflow"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Stderr))
}

func run(ctx context.Context, stderr io.Writer) int {
	conf, err := scriptflow.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "scriptflow: %v\n", err)
		return exitConfig
	}
	logger := scriptflow.NewSlogServiceLogger(scriptflow.NewLogger(stderr, conf.LogLevel, conf.LogFormat))

	if strings.EqualFold(conf.Mode, "service") {
		return runService(ctx, conf, logger)
	}
	return runBatch(ctx, conf, logger)
}

func runBatch(ctx context.Context, conf *scriptflow.Config, logger scriptflow.ServiceLogger) int {
	sources, err := scriptflow.DiscoverSources(conf.Inputs...)
	if err != nil {
		logger.Error("No record sources", err, scriptflow.LogFields{"inputs": conf.Inputs})
		return exitConfig
	}
	format, err := scriptflow.ParseFormat(conf.OutputFormat)
	if err != nil {
		logger.Error("Invalid output format", err, nil)
		return exitConfig
	}

	sink, err := scriptflow.OpenSink(ctx, conf, nil)
	if err != nil {
		logger.Error("Failed to open artifact sink", err, scriptflow.LogFields{"sink": conf.Sink})
		return exitConfig
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Error("Failed to close artifact sink", err, nil)
		}
	}()

	var metrics *scriptflow.PipelineMetrics
	if conf.MetricsEnabled {
		metrics = scriptflow.NewPipelineMetrics(prometheus.DefaultRegisterer)
		if err := metrics.Register(); err != nil {
			logger.Error("Failed to register metrics", err, nil)
			return exitFailure
		}
		if conf.MetricsPort > 0 {
			go scriptflow.ServeMetrics(ctx, conf.MetricsPort, logger)
		}
	}

	pipeline, err := scriptflow.NewPipeline(sink.Sink, format, logger, scriptflow.PipelineDependencies{
		Metrics: metrics,
		Hooks:   scriptflow.LoggingHooks(logger),
	})
	if err != nil {
		logger.Error("Failed to build pipeline", err, nil)
		return exitConfig
	}

	report := scriptflow.NewBatch(pipeline, conf.EffectiveParallelism()).Run(ctx, sources)

	fields := scriptflow.LogFields{
		"streams":   len(report.Streams),
		"artifacts": report.Artifacts(),
		"failed":    len(report.Failed()),
	}
	if report.HasFailures() {
		logger.Warn("Batch finished with failures", fields)
		return exitFailure
	}
	logger.Info("Batch finished", fields)
	return exitOK
}

func runService(ctx context.Context, conf *scriptflow.Config, logger scriptflow.ServiceLogger) int {
	svc, err := scriptflow.NewService(conf, logger, ctx, scriptflow.ServiceDependencies{
		Hooks: scriptflow.LoggingHooks(logger),
	})
	if err != nil {
		logger.Error("Failed to create service", err, nil)
		return exitConfig
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("Failed to close service", err, nil)
		}
	}()

	if err := svc.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Service stopped", err, nil)
		return exitFailure
	}
	return exitOK
}
