package main

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	httpHandler "picpic.transcode/internal/adapters/handler/http"
	"picpic.transcode/internal/adapters/handler/mqtt"
	redisAdapter "picpic.transcode/internal/adapters/queue/redis"
	"picpic.transcode/internal/adapters/repository/pg"
	"picpic.transcode/internal/agent"
	"picpic.transcode/internal/config"
	"picpic.transcode/internal/core/logger"
	"picpic.transcode/internal/core/ports"
	"picpic.transcode/internal/core/progress"
	"picpic.transcode/internal/core/services"
	"picpic.transcode/internal/core/tracing"
)

// run wires the configured sinks around the scheduler and blocks until ctx
// is cancelled or the input directory becomes unreadable.
func run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	logger.Info("Starting transcoder",
		"version", version,
		"input", cfg.InputDir,
		"output", cfg.OutputDir,
		"poll_interval", cfg.PollInterval,
		"concurrency", cfg.Concurrency,
		"executor", cfg.Executor,
	)

	if cfg.EnableTracing {
		shutdownTracing, err := tracing.Init(cfg.ServiceName, cfg.OTLPEndpoint)
		if err != nil {
			logger.Error("Failed to initialize tracing", "error", err)
		} else {
			defer func() {
				if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
					logger.Error("Failed to shutdown tracing", "error", err)
				}
			}()
		}
	}

	executor, probe, err := newExecutor(cfg)
	if err != nil {
		return err
	}

	registry := progress.NewRegistry()
	healthOpts := services.HealthOptions{InputDir: cfg.InputDir, Encoder: probe, Version: version}
	notifierOpts := services.NotifierOptions{Publishers: map[string]ports.EventPublisher{}}
	serverOpts := httpHandler.ServerOptions{Progress: registry, Metrics: cfg.EnableMetrics}
	var sinks []ports.ProgressSink

	if cfg.DatabaseURL != "" {
		repo, err := pg.NewRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Error("Failed to init postgres, attempt history disabled", "error", err)
		} else {
			notifierOpts.Repository = repo
			serverOpts.Attempts = repo
			healthOpts.DB = repo.DB()
		}
	}

	if cfg.RedisURL != "" {
		client, err := redisAdapter.NewClient(cfg.RedisURL)
		if err != nil {
			logger.Error("Failed to init redis, redis sinks disabled", "error", err)
		} else {
			defer client.Close()
			ledger := redisAdapter.NewFailureLedger(client)
			notifierOpts.Ledger = ledger
			notifierOpts.Publishers["redis"] = redisAdapter.NewPublisher(client)
			serverOpts.Failures = ledger
			healthOpts.Redis = client
		}
	}

	if cfg.MQTTBroker != "" {
		publisher, err := mqtt.NewPublisher(cfg.MQTTBroker, cfg.MQTTPrefix)
		if err != nil {
			logger.Error("Failed to init MQTT publisher", "error", err)
		} else {
			defer publisher.Close()
			notifierOpts.Publishers["mqtt"] = publisher
		}
	}

	if cfg.EnableMetrics {
		metrics := httpHandler.MetricsObserver{}
		notifierOpts.Observers = append(notifierOpts.Observers, metrics)
		sinks = append(sinks, metrics)
	}

	var hub *httpHandler.Hub
	if cfg.HTTPPort != "" {
		hub = httpHandler.NewHub()
		notifierOpts.Publishers["websocket"] = hub
		serverOpts.Hub = hub
	}

	notifier := services.NewNotifier(notifierOpts)
	sinks = append(sinks, notifier)

	reporter := services.NewReporter(registry, out, cfg.ReportInterval, sinks...)
	status := reporter.StatusWriter()

	transcoder := agent.NewTranscoder(executor, registry, cfg.Profile, notifier, status)
	scheduler := agent.New(transcoder, agent.Options{
		InputDir:     cfg.InputDir,
		OutputDir:    cfg.OutputDir,
		Extensions:   cfg.Profile.ExtensionSet(),
		Concurrency:  cfg.Concurrency,
		PollInterval: cfg.PollInterval,
		Observer:     notifier,
		Out:          status,
	})

	// Background services stop once the scheduler has returned.
	bgCtx, stopBackground := context.WithCancel(context.WithoutCancel(ctx))
	defer stopBackground()

	var bg errgroup.Group
	bg.Go(func() error {
		reporter.Run(bgCtx)
		return nil
	})
	if hub != nil {
		serverOpts.Health = services.NewHealthService(healthOpts)
		server := httpHandler.NewServer(serverOpts)
		bg.Go(func() error {
			hub.Run(bgCtx)
			return nil
		})
		bg.Go(func() error {
			logger.Info("HTTP server starting", "port", cfg.HTTPPort)
			if err := server.Run(bgCtx, ":"+cfg.HTTPPort); err != nil {
				logger.Error("HTTP server failed", "error", err)
			}
			return nil
		})
	}

	err = scheduler.Run(ctx)
	stopBackground()
	bg.Wait()

	if err != nil {
		return err
	}
	logger.Info("Transcoder stopped")
	return nil
}

// newExecutor builds the configured encoder backend and a probe for the
// health service.
func newExecutor(cfg *config.Config) (agent.Executor, services.EncoderProbe, error) {
	switch cfg.Executor {
	case "docker":
		in, err := filepath.Abs(cfg.InputDir)
		if err != nil {
			return nil, nil, err
		}
		out, err := filepath.Abs(cfg.OutputDir)
		if err != nil {
			return nil, nil, err
		}
		d, err := agent.NewDockerExecutor(cfg.DockerImage, cfg.Profile.CPULimit,
			agent.Mount{Host: in, Container: "/input"},
			agent.Mount{Host: out, Container: "/output"},
		)
		if err != nil {
			return nil, nil, fmt.Errorf("docker executor: %w", err)
		}
		return d, d.Ping, nil
	default:
		binary := cfg.Profile.Binary
		probe := func(context.Context) error {
			_, err := exec.LookPath(binary)
			return err
		}
		return agent.NewShellExecutor(cfg.Profile.CPULimit), probe, nil
	}
}
