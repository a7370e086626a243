// Command eventgateway subscribes to the repository event topic and routes
// node events to the content handlers and the function sink.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/eventgateway/internal/forward"
	"github.com/drblury/eventgateway/internal/handlers"
	"github.com/drblury/eventgateway/internal/routing"
	runtimepkg "github.com/drblury/eventgateway/internal/runtime"
	configpkg "github.com/drblury/eventgateway/internal/runtime/config"
	errspkg "github.com/drblury/eventgateway/internal/runtime/errors"
	loggingpkg "github.com/drblury/eventgateway/internal/runtime/logging"
	metricspkg "github.com/drblury/eventgateway/internal/runtime/metrics"
	_ "github.com/drblury/eventgateway/transport/transports"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.LookupEnv, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, lookup configpkg.LookupFunc, stdout io.Writer) error {
	flags := flag.NewFlagSet("eventgateway", flag.ContinueOnError)
	configPath := flags.String("config", "", "path to a YAML config file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	conf, err := configpkg.Load(*configPath, lookup)
	if err != nil {
		return err
	}
	if err := conf.Validate(); err != nil {
		return errspkg.ConfigValidationError{Err: err}
	}

	level, err := loggingpkg.ParseLevel(conf.LogLevel)
	if err != nil {
		return err
	}
	logger := loggingpkg.NewJSONLogger(stdout, level)

	var metrics *metricspkg.Metrics
	if conf.MetricsEnabled {
		metrics = metricspkg.New(prometheus.DefaultRegisterer)
		if err := metrics.Register(); err != nil {
			return err
		}
	}

	registry := routing.NewRegistry()
	if err := handlers.Register(registry, logger); err != nil {
		return err
	}

	forwarder, err := forward.New(ctx, conf, logger)
	if err != nil {
		return err
	}
	if closer, ok := forwarder.(io.Closer); ok {
		defer closer.Close()
	}

	pipeline, err := routing.NewPipeline(routing.Route{
		ParentNodeID:    conf.ParentNodeID,
		ContentNodeType: conf.ContentNodeType,
		FolderNodeType:  conf.FolderNodeType,
	}, registry, forwarder, logger,
		routing.WithMetrics(metrics),
		routing.WithForwardConcurrency(conf.ForwardConcurrency),
	)
	if err != nil {
		return err
	}

	svc, err := runtimepkg.NewService(ctx, conf, logger, pipeline, runtimepkg.ServiceDependencies{
		Metrics: metrics,
	})
	if err != nil {
		return err
	}

	logger.Info("Starting event gateway", loggingpkg.LogFields{
		"version":      forward.Version,
		"forward_sink": conf.ForwardSink,
	})
	return svc.Start(ctx)
}
