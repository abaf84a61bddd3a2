package main

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/config"
	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/gateway"
	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/graph"
)

const tracerName = "github.com/jrojas-pena/Arquitectura-software-Actividad-3/gateway"

// buildGateway connects to the graph store and assembles the gateway. The
// caller owns the returned pool and must Close it.
func buildGateway(ctx context.Context, cfg config.Config, recorder gateway.Recorder) (*gateway.Gateway, error) {
	mode := graph.AccessModeWrite
	if cfg.Policy.ReadOnly {
		mode = graph.AccessModeRead
	}

	store, err := graph.NewNeo4jStore(ctx, graph.Options{
		URI:                cfg.Graph.URI,
		Database:           cfg.Graph.Database,
		Username:           cfg.Graph.Username,
		Password:           cfg.Graph.Password,
		AccessMode:         mode,
		MaxConnections:     cfg.Graph.PoolSize,
		AcquisitionTimeout: cfg.Graph.AcquisitionTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect graph store: %w", err)
	}

	policy, err := buildPolicy(cfg.Policy)
	if err != nil {
		_ = store.Close(context.WithoutCancel(ctx))
		return nil, err
	}

	pool := gateway.NewSessionPool(store, cfg.Graph.PoolSize)
	opts := []gateway.Option{
		gateway.WithPolicy(policy),
		gateway.WithAcquisitionTimeout(cfg.Graph.AcquisitionTimeout),
		gateway.WithQueryTimeout(cfg.Graph.QueryTimeout),
		gateway.WithTracer(otel.Tracer(tracerName)),
	}
	if recorder != nil {
		opts = append(opts, gateway.WithRecorder(recorder))
	}
	return gateway.New(pool, opts...), nil
}

func buildPolicy(pc config.PolicyConfig) (gateway.Policy, error) {
	allow, deny, err := pc.Resolve()
	if err != nil {
		return nil, err
	}
	if pc.ReadOnly {
		deny = append(deny, gateway.ReadOnlyDenyPatterns...)
	}
	if len(allow) == 0 && len(deny) == 0 {
		return nil, nil
	}
	policy, err := gateway.NewPatternPolicy(allow, deny)
	if err != nil {
		return nil, fmt.Errorf("build query policy: %w", err)
	}
	return policy, nil
}

// closePool drains in-flight work within timeout.
func closePool(gw *gateway.Gateway, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := gw.Pool().Close(ctx); err != nil {
		logger.Warn("closing session pool failed", "error", err)
	}
}
