package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// NewNeo4jStore establishes a Bolt connection using the official Neo4j driver
// and verifies connectivity before returning.
func NewNeo4jStore(ctx context.Context, opts Options) (Store, error) {
	if opts.URI == "" {
		return nil, ErrMissingURI
	}

	auth := neo4j.NoAuth()
	if opts.Username != "" {
		auth = neo4j.BasicAuth(opts.Username, opts.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(opts.URI, auth, func(c *neo4j.Config) {
		if opts.MaxConnections > 0 {
			c.MaxConnectionPoolSize = opts.MaxConnections
		}
		if opts.AcquisitionTimeout > 0 {
			c.ConnectionAcquisitionTimeout = opts.AcquisitionTimeout
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify graph connectivity: %w", translateError(err))
	}

	mode := neo4j.AccessModeWrite
	if opts.AccessMode == AccessModeRead {
		mode = neo4j.AccessModeRead
	}

	return &neo4jStore{
		driver:   driver,
		database: opts.Database,
		mode:     mode,
	}, nil
}

type neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	mode     neo4j.AccessMode
}

func (s *neo4jStore) OpenSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   s.mode,
	})
	return &neo4jSession{session: session}, nil
}

func (s *neo4jStore) VerifyConnectivity(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return translateError(err)
	}
	return nil
}

func (s *neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

type neo4jSession struct {
	session neo4j.SessionWithContext
}

// Run executes an auto-commit query and drains the full result before
// returning, so a failure mid-stream never yields a partial slice.
func (s *neo4jSession) Run(ctx context.Context, cypher string, params map[string]any) ([]Record, error) {
	res, err := s.session.Run(ctx, cypher, params)
	if err != nil {
		return nil, translateError(err)
	}

	records := make([]Record, 0)
	for res.Next(ctx) {
		rec := res.Record()
		record := make(Record, len(rec.Keys))
		for i, key := range rec.Keys {
			record[key] = rec.Values[i]
		}
		records = append(records, record)
	}
	if err := res.Err(); err != nil {
		return nil, translateError(err)
	}
	return records, nil
}

func (s *neo4jSession) Close(ctx context.Context) error {
	if err := s.session.Close(ctx); err != nil {
		return translateError(err)
	}
	return nil
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		return &StoreFailure{
			Code:      neoErr.Code,
			Message:   neoErr.Msg,
			Transient: neo4j.IsRetryable(err),
			cause:     err,
		}
	}
	failure := &StoreFailure{
		Message:   err.Error(),
		Transient: neo4j.IsRetryable(err),
		cause:     err,
	}
	if neo4j.IsConnectivityError(err) {
		failure.Code = "Connectivity"
		failure.Transient = true
	}
	return failure
}
