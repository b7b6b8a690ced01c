// Package pool bounds the number of concurrently open backend connections
// and lets them be reused across agent invocations. Entries are keyed by
// logical endpoint identity and expire by idle time and by max lifetime.
package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrPoolClosed is returned by Acquire after Close.
	ErrPoolClosed = errors.New("connection pool is closed")
	// ErrPoolExhausted is returned when every slot holds an in-use connection.
	ErrPoolExhausted = errors.New("connection pool exhausted")
)

// Config configures the pool.
type Config struct {
	MaxConnections int           `yaml:"max_connections" json:"max_connections"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxLifetime    time.Duration `yaml:"max_lifetime" json:"max_lifetime"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConnections: 10,
		IdleTimeout:    60 * time.Second,
		MaxLifetime:    300 * time.Second,
	}
}

// Conn is a reusable, cancellation-capable handle to a backend endpoint.
// Its Context is cancelled when the connection is evicted or the pool closes.
type Conn struct {
	id        string
	key       string
	ctx       context.Context
	cancel    context.CancelFunc
	createdAt time.Time
	lastUsed  time.Time
	inUse     bool
}

// ID returns the connection's unique identity.
func (c *Conn) ID() string { return c.id }

// Key returns the endpoint key the connection belongs to.
func (c *Conn) Key() string { return c.key }

// Context returns the cancellation token backend calls should run under.
func (c *Conn) Context() context.Context { return c.ctx }

// Stats reports pool activity counters.
type Stats struct {
	Size    int   `json:"size"`
	InUse   int   `json:"in_use"`
	Created int64 `json:"created"`
	Reused  int64 `json:"reused"`
	Evicted int64 `json:"evicted"`
}

// Pool manages a bounded set of reusable connections keyed by endpoint.
type Pool struct {
	mu     sync.Mutex
	conns  map[string]*Conn
	config Config
	logger *zap.Logger
	closed bool
	stop   chan struct{}

	created int64
	reused  int64
	evicted int64
}

// New creates a pool and starts its background sweep.
func New(config Config, logger *zap.Logger) *Pool {
	if config.MaxConnections < 1 {
		config.MaxConnections = DefaultConfig().MaxConnections
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultConfig().IdleTimeout
	}
	if config.MaxLifetime <= 0 {
		config.MaxLifetime = DefaultConfig().MaxLifetime
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		conns:  make(map[string]*Conn),
		config: config,
		logger: logger.With(zap.String("component", "conn_pool")),
		stop:   make(chan struct{}),
	}

	go p.sweepLoop()

	return p
}

// Acquire returns a connection for the given endpoint key, reusing a valid
// idle entry when one exists. At capacity, the least-recently-used idle
// entry is evicted to make room; if every entry is in use, Acquire fails.
func (p *Pool) Acquire(key string) (*Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	now := time.Now()

	if conn, ok := p.conns[key]; ok {
		if !conn.inUse && p.valid(conn, now) {
			conn.inUse = true
			conn.lastUsed = now
			p.reused++
			p.logger.Debug("connection reused",
				zap.String("key", key),
				zap.String("conn_id", conn.id),
			)
			return conn, nil
		}
		if !conn.inUse {
			// Expired; replace it below.
			p.evictLocked(conn)
		}
	}

	if len(p.conns) >= p.config.MaxConnections {
		if !p.evictLRUIdleLocked() {
			return nil, ErrPoolExhausted
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	conn := &Conn{
		id:        uuid.NewString(),
		key:       key,
		ctx:       ctx,
		cancel:    cancel,
		createdAt: now,
		lastUsed:  now,
		inUse:     true,
	}
	p.conns[key] = conn
	p.created++

	p.logger.Debug("connection created",
		zap.String("key", key),
		zap.String("conn_id", conn.id),
		zap.Int("pool_size", len(p.conns)),
	)

	return conn, nil
}

// Release marks the connection for key idle and stamps its last-used time.
// The connection stays open for reuse.
func (p *Pool) Release(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.conns[key]; ok {
		conn.inUse = false
		conn.lastUsed = time.Now()
	}
}

// Close cancels every open connection and clears the pool.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	close(p.stop)

	for _, conn := range p.conns {
		conn.cancel()
	}
	p.conns = make(map[string]*Conn)

	p.logger.Info("connection pool closed")
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	inUse := 0
	for _, conn := range p.conns {
		if conn.inUse {
			inUse++
		}
	}

	return Stats{
		Size:    len(p.conns),
		InUse:   inUse,
		Created: p.created,
		Reused:  p.reused,
		Evicted: p.evicted,
	}
}

// valid reports whether the connection is still usable.
func (p *Pool) valid(conn *Conn, now time.Time) bool {
	if now.Sub(conn.createdAt) >= p.config.MaxLifetime {
		return false
	}
	if now.Sub(conn.lastUsed) >= p.config.IdleTimeout {
		return false
	}
	return true
}

func (p *Pool) evictLocked(conn *Conn) {
	conn.cancel()
	delete(p.conns, conn.key)
	p.evicted++
}

// evictLRUIdleLocked removes the globally least-recently-used idle entry.
// Returns false when no entry is idle.
func (p *Pool) evictLRUIdleLocked() bool {
	var victim *Conn
	for _, conn := range p.conns {
		if conn.inUse {
			continue
		}
		if victim == nil || conn.lastUsed.Before(victim.lastUsed) {
			victim = conn
		}
	}
	if victim == nil {
		return false
	}

	p.logger.Debug("evicting idle connection",
		zap.String("key", victim.key),
		zap.String("conn_id", victim.id),
	)
	p.evictLocked(victim)
	return true
}

// sweepLoop periodically removes idle connections that have expired.
func (p *Pool) sweepLoop() {
	interval := p.config.IdleTimeout / 2
	if interval > 30*time.Second {
		interval = 30 * time.Second
	}
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

func (p *Pool) sweep() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	now := time.Now()
	for _, conn := range p.conns {
		if !conn.inUse && !p.valid(conn, now) {
			p.evictLocked(conn)
		}
	}
}
