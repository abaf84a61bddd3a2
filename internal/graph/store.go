package graph

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store is the minimal contract the gateway needs from a graph database driver.
type Store interface {
	// OpenSession leases a new session. The caller owns it until Close.
	OpenSession(ctx context.Context) (Session, error)
	VerifyConnectivity(ctx context.Context) error
	Close(ctx context.Context) error
}

// Session issues queries against the store. A session is not safe for
// concurrent use.
type Session interface {
	Run(ctx context.Context, cypher string, params map[string]any) ([]Record, error)
	Close(ctx context.Context) error
}

// Record groups key-value pairs returned from the graph engine. Values may
// still hold driver types; see NormalizeRecord.
type Record map[string]any

// AccessMode selects the routing mode sessions are opened with.
type AccessMode string

const (
	AccessModeWrite AccessMode = "write"
	AccessModeRead  AccessMode = "read"
)

// Options configures a graph store implementation.
type Options struct {
	URI                string
	Database           string
	Username           string
	Password           string
	AccessMode         AccessMode
	MaxConnections     int
	AcquisitionTimeout time.Duration
}

// ErrMissingURI indicates the graph URI is not provided.
var ErrMissingURI = errors.New("graph URI is required")

// StoreFailure is a driver-neutral description of an error reported by the
// store. Implementations translate their native errors into it so driver types
// never leave this package.
type StoreFailure struct {
	Code      string
	Message   string
	Transient bool
	cause     error
}

func (f *StoreFailure) Error() string {
	if f.Code == "" {
		return f.Message
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// Unwrap exposes context errors only, so callers can detect cancellation
// without reaching driver internals.
func (f *StoreFailure) Unwrap() error {
	switch {
	case errors.Is(f.cause, context.DeadlineExceeded):
		return context.DeadlineExceeded
	case errors.Is(f.cause, context.Canceled):
		return context.Canceled
	default:
		return nil
	}
}
