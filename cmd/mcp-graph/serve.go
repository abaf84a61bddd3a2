package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/gateway"
	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/metric"
	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/natsrpc"
	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the gateway over HTTP and, when NATS_URL is set, NATS",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	var (
		recorder       gateway.Recorder
		requests       server.RequestRecorder
		natsRecorder   natsrpc.RequestRecorder
		metricsHandler http.Handler
	)
	if cfg.HTTP.MetricsEnabled {
		reg := metric.NewRegistry()
		recorder, requests, natsRecorder = reg.Metrics, reg.Metrics, reg.Metrics
		metricsHandler = reg.Handler()
	}

	gw, err := buildGateway(ctx, cfg, recorder)
	if err != nil {
		return err
	}
	defer closePool(gw, cfg.HTTP.ShutdownTimeout)

	if cfg.NATS.URL != "" {
		conn, err := natsrpc.Connect(cfg.NATS.URL, "mcp-graph", logger)
		if err != nil {
			return err
		}
		defer conn.Close()

		responder := natsrpc.NewResponder(conn, gw, natsrpc.Config{
			Subject:     cfg.NATS.Subject,
			Queue:       cfg.NATS.Queue,
			Concurrency: gw.Pool().Size(),
		}, logger.With("transport", "nats"), natsRecorder)
		if err := responder.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := responder.Stop(); err != nil {
				logger.Warn("stopping nats responder failed", "error", err)
			}
		}()
	}

	router := server.NewRouter(logger, server.RouterDependencies{
		Health:           server.GraphHealthService{Graph: gw},
		Query:            server.NewQueryHandlers(logger, gw, requests),
		Metrics:          metricsHandler,
		Recorder:         requests,
		AllowedOrigins:   cfg.HTTP.AllowedOrigins(),
		AllowCredentials: true,
		RateLimit:        cfg.HTTP.RateLimit,
		RateBurst:        cfg.HTTP.RateBurst,
	})
	srv := server.New(logger, cfg.HTTP, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("server stopped unexpectedly", "error", err)
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	return nil
}
