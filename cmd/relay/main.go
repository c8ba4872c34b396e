// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Command relay streams IoT Hub telemetry to WebSocket dashboards.
package main

import (
	"context"
	e "errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Azure/iot-telemetry-relay/internal/log"
	"github.com/Azure/iot-telemetry-relay/iothub"
	"github.com/Azure/iot-telemetry-relay/relay"
	"github.com/Azure/iot-telemetry-relay/stream"
	"github.com/lmittmann/tint"
)

const (
	resolveTimeout  = time.Minute
	shutdownTimeout = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := run(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	level := new(slog.LevelVar)
	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: level}))
	l := log.Wrap(logger)

	cfg, err := relay.ConfigFromEnv()
	if err != nil {
		l.Err(ctx, err)
		return err
	}
	level.Set(cfg.LogLevel)
	l.Struct(ctx, slog.LevelInfo, "relay configuration", cfg)

	// Only the log level is applied at runtime; other changes need a restart.
	watcher, err := relay.WatchConfig(func(c *relay.Config) {
		level.Set(c.LogLevel)
	}, logger)
	if err != nil {
		l.Err(ctx, err)
		return err
	}
	defer watcher.Close()

	metrics := relay.NewMetrics()
	opts := []relay.Option{
		relay.WithQueueSize(cfg.QueueSize),
		relay.WithWriteTimeout(cfg.WriteTimeout),
		relay.WithPingInterval(cfg.PingInterval),
		relay.WithMetrics{Metrics: metrics},
		relay.WithLogger(logger),
	}
	hub := relay.NewHub(opts...)

	ingestor, err := newIngestor(ctx, cfg, logger)
	if err != nil {
		l.Err(ctx, err)
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           relay.NewServer(hub, opts...),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()
	l.Info(ctx, "server running", slog.Int("port", cfg.Port))

	if err := ingestor.Start(ctx, hub.EventHandler(), hub.ErrorHandler()); err != nil {
		l.Err(ctx, err)
		shutdown(l, srv, ingestor)
		return err
	}

	select {
	case <-ctx.Done():
		l.Info(ctx, "shutting down")
	case err = <-serveErr:
		l.Log(ctx, slog.LevelError, "server stopped",
			slog.String("error", err.Error()),
		)
	}

	shutdown(l, srv, ingestor)
	if err != nil && !e.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newIngestor(
	ctx context.Context,
	cfg *relay.Config,
	logger *slog.Logger,
) (stream.Ingestor, error) {
	opt := stream.WithLogger(logger)

	if cfg.Source == relay.SourceMQTT {
		conn := stream.TCPConnection(cfg.MQTT.Host, cfg.MQTT.Port)
		if cfg.MQTT.UseTLS {
			conn = stream.TLSConnection(cfg.MQTT.Host, cfg.MQTT.Port, nil)
		}
		return stream.NewMQTT(conn, cfg.MQTT.Topic, opt,
			stream.WithUsernamePassword{
				Username: cfg.MQTT.Username,
				Password: cfg.MQTT.Password,
			},
		), nil
	}

	rctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	endpoint, err := iothub.NewResolver(iothub.WithLogger(logger)).
		Resolve(rctx, cfg.ConnectionString)
	if err != nil {
		return nil, err
	}

	if cfg.Source == relay.SourceKafka {
		return stream.NewKafka(stream.KafkaConfigFromEndpoint(
			endpoint,
			cfg.ConsumerGroup,
			cfg.KafkaBrokers...,
		), opt), nil
	}
	return stream.NewEventHubs(endpoint, cfg.ConsumerGroup, opt), nil
}

func shutdown(l log.Logger, srv *http.Server, ingestor stream.Ingestor) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := ingestor.Close(ctx); err != nil {
		l.Warn(ctx, err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		l.Warn(ctx, err)
	}
}
