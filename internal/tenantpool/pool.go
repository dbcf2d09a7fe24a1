package tenantpool

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/caremesh-solutions/caremesh-backend/internal/model"
	"github.com/caremesh-solutions/caremesh-backend/internal/monitoring"
)

// Conn is a live handle to a tenant datasource. The production implementation
// wraps *pgxpool.Pool; tests inject fakes.
type Conn interface {
	Ping(ctx context.Context) error
	Close() error
}

// DialFunc opens a connection to a datasource URL. It must not return a
// half-initialized handle: on error the handle is considered never created.
type DialFunc func(ctx context.Context, url string) (Conn, error)

type pooledConn struct {
	conn     Conn
	url      string
	lastUsed time.Time
	inUse    bool
}

// Options tunes the pool. Zero values fall back to the defaults below.
type Options struct {
	MaxIdleTime   time.Duration
	SweepInterval time.Duration
	DialTimeout   time.Duration
	Dial          DialFunc
}

const (
	defaultMaxIdleTime   = 5 * time.Minute
	defaultSweepInterval = time.Minute
	defaultDialTimeout   = 10 * time.Second
)

// Pool keeps at most one live connection handle per distinct datasource URL.
// Handles are created lazily on first request, shared across concurrent
// requests for the same tenant, and reclaimed by a periodic idle sweep.
type Pool struct {
	mu    sync.Mutex
	conns map[string]*pooledConn

	maxIdleTime   time.Duration
	sweepInterval time.Duration
	dialTimeout   time.Duration
	dial          DialFunc

	done   chan struct{}
	closed bool
}

// Status is the read-only introspection surface of the pool.
type Status struct {
	TotalConnections  int `json:"totalConnections"`
	ActiveConnections int `json:"activeConnections"`
	IdleConnections   int `json:"idleConnections"`
}

// New creates a Pool and starts its idle-eviction sweep.
func New(opts Options) *Pool {
	if opts.MaxIdleTime <= 0 {
		opts.MaxIdleTime = defaultMaxIdleTime
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.Dial == nil {
		opts.Dial = DialPgx
	}
	p := &Pool{
		conns:         make(map[string]*pooledConn),
		maxIdleTime:   opts.MaxIdleTime,
		sweepInterval: opts.SweepInterval,
		dialTimeout:   opts.DialTimeout,
		dial:          opts.Dial,
		done:          make(chan struct{}),
	}
	go p.sweepLoop()
	return p
}

// poolKey normalizes a datasource URL into a stable map key.
func poolKey(url string) string {
	return base64.StdEncoding.EncodeToString([]byte(url))
}

// Get returns the pooled handle for url, dialing it on first use. Concurrent
// calls for the same new URL never create two handles: creation happens under
// the pool lock. A dial failure leaves no entry behind.
func (p *Pool) Get(ctx context.Context, url string) (Conn, error) {
	key := poolKey(url)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("tenant pool is shut down")
	}

	if entry, ok := p.conns[key]; ok {
		entry.lastUsed = time.Now()
		entry.inUse = true
		p.publishGauges()
		return entry.conn, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()

	conn, err := p.dial(dialCtx, url)
	if err != nil {
		monitoring.PoolDials.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", model.ErrDatasourceUnreachable, err)
	}
	monitoring.PoolDials.WithLabelValues("success").Inc()

	p.conns[key] = &pooledConn{
		conn:     conn,
		url:      url,
		lastUsed: time.Now(),
		inUse:    true,
	}
	p.publishGauges()
	log.Debug().Str("pool_key", key).Msg("Created new tenant connection")
	return conn, nil
}

// Release marks the handle for url idle and eligible for eviction. It never
// closes the handle and is a no-op for unknown or already-released keys, so
// calling it more than once per request is safe.
func (p *Pool) Release(url string) {
	key := poolKey(url)

	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.conns[key]; ok {
		entry.inUse = false
		entry.lastUsed = time.Now()
		p.publishGauges()
	}
}

// Status reports the current pool composition without side effects.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Status{TotalConnections: len(p.conns)}
	for _, entry := range p.conns {
		if entry.inUse {
			s.ActiveConnections++
		} else {
			s.IdleConnections++
		}
	}
	return s
}

func (p *Pool) sweepLoop() {
	ticker := time.NewTicker(p.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.evictIdle(time.Now())
		case <-p.done:
			return
		}
	}
}

// evictIdle removes entries idle longer than maxIdleTime. Victims are
// collected and removed under the lock; handles are closed outside it so a
// slow close cannot block acquire/release of other keys.
func (p *Pool) evictIdle(now time.Time) {
	p.mu.Lock()
	var victims []*pooledConn
	for key, entry := range p.conns {
		if !entry.inUse && now.Sub(entry.lastUsed) > p.maxIdleTime {
			victims = append(victims, entry)
			delete(p.conns, key)
		}
	}
	if len(victims) > 0 {
		p.publishGauges()
	}
	p.mu.Unlock()

	for _, entry := range victims {
		if err := entry.conn.Close(); err != nil {
			log.Error().Err(err).Str("pool_key", poolKey(entry.url)).Msg("Failed to close idle tenant connection")
			continue
		}
		monitoring.PoolEvictions.Inc()
		log.Debug().Str("pool_key", poolKey(entry.url)).Msg("Evicted idle tenant connection")
	}
}

// Shutdown stops the sweep and closes every handle, in-use or not. Individual
// close failures are logged and do not stop the drain. Safe to call twice.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)

	entries := make([]*pooledConn, 0, len(p.conns))
	for key, entry := range p.conns {
		entries = append(entries, entry)
		delete(p.conns, key)
	}
	p.publishGauges()
	p.mu.Unlock()

	for _, entry := range entries {
		if err := entry.conn.Close(); err != nil {
			log.Error().Err(err).Str("pool_key", poolKey(entry.url)).Msg("Failed to close tenant connection on shutdown")
		}
	}
	log.Info().Int("connections", len(entries)).Msg("All tenant connections closed")
}

// publishGauges must be called with the lock held.
func (p *Pool) publishGauges() {
	total := len(p.conns)
	active := 0
	for _, entry := range p.conns {
		if entry.inUse {
			active++
		}
	}
	monitoring.SetPoolGauges(total, active, total-active)
}
