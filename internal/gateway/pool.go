package gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/graph"
)

const (
	defaultPoolSize = 10
	releaseTimeout  = 5 * time.Second
)

// SessionPool bounds the number of store sessions in use at once. Each lease
// owns exactly one session and must be released exactly once.
type SessionPool struct {
	store graph.Store
	sem   *semaphore.Weighted
	size  int

	mu       sync.Mutex
	closed   bool
	inFlight sync.WaitGroup
	inUse    atomic.Int64
}

// NewSessionPool creates a pool that allows at most size concurrent sessions on store.
func NewSessionPool(store graph.Store, size int) *SessionPool {
	if size <= 0 {
		size = defaultPoolSize
	}
	return &SessionPool{
		store: store,
		sem:   semaphore.NewWeighted(int64(size)),
		size:  size,
	}
}

// Acquire waits up to timeout for a free slot and opens a session in it.
// A non-positive timeout waits only as long as ctx allows.
func (p *SessionPool) Acquire(ctx context.Context, timeout time.Duration) (*Lease, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}

	acquireCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := p.sem.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrAcquireTimeout, ctx.Err())
		}
		return nil, fmt.Errorf("%w after %s", ErrAcquireTimeout, timeout)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, ErrPoolClosed
	}
	p.inFlight.Add(1)
	p.mu.Unlock()
	p.inUse.Add(1)

	session, err := p.store.OpenSession(ctx)
	if err != nil {
		p.free()
		return nil, err
	}
	return &Lease{pool: p, session: session}, nil
}

// InUse reports the number of leases currently held.
func (p *SessionPool) InUse() int {
	return int(p.inUse.Load())
}

// Size returns the maximum number of concurrent leases.
func (p *SessionPool) Size() int {
	return p.size
}

// Ping checks store connectivity without taking a lease.
func (p *SessionPool) Ping(ctx context.Context) error {
	return p.store.VerifyConnectivity(ctx)
}

// Close rejects new acquisitions, waits for outstanding leases to be released
// and closes the store. If ctx expires first the store is closed anyway and
// ctx's error is returned.
func (p *SessionPool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.inFlight.Wait()
		close(drained)
	}()

	var drainErr error
	select {
	case <-drained:
	case <-ctx.Done():
		drainErr = fmt.Errorf("drain session pool: %w", ctx.Err())
	}

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := p.store.Close(closeCtx); err != nil {
		return fmt.Errorf("close graph store: %w", err)
	}
	return drainErr
}

func (p *SessionPool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *SessionPool) free() {
	p.inUse.Add(-1)
	p.sem.Release(1)
	p.inFlight.Done()
}

// Lease is exclusive ownership of one pooled session.
type Lease struct {
	pool    *SessionPool
	session graph.Session
	once    sync.Once
}

// Session returns the leased session.
func (l *Lease) Session() graph.Session {
	return l.session
}

// Release closes the session and returns its slot to the pool. Only the first
// call has any effect. The session is closed even if ctx is already done.
func (l *Lease) Release(ctx context.Context) error {
	var err error
	l.once.Do(func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		err = l.session.Close(closeCtx)
		l.pool.free()
	})
	return err
}
