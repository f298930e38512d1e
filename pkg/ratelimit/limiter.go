// pkg/ratelimit/limiter.go
// Per-client token bucket rate limiter with idle eviction

package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per client key
type Limiter struct {
	rate    rate.Limit
	burst   int
	idleTTL time.Duration

	mu      sync.Mutex
	clients map[string]*client
	done    chan struct{}
	stopped sync.Once

	// Statistics
	stats   Stats
	statsMu sync.Mutex
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Stats contains rate limiter statistics
type Stats struct {
	TotalRequests    int64
	RejectedRequests int64
	Clients          int
}

// Config holds rate limiter configuration
type Config struct {
	Rate    float64       // tokens per second per client, <= 0 disables limiting
	Burst   int           // bucket size
	IdleTTL time.Duration // evict clients idle this long (default 10m)
}

// New creates a limiter and starts its eviction loop
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.Rate)
	if r <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	l := &Limiter{
		rate:    r,
		burst:   burst,
		idleTTL: ttl,
		clients: make(map[string]*client),
		done:    make(chan struct{}),
	}

	go l.cleanupLoop()

	return l
}

// Allow consumes one token for key. When the bucket is empty it returns
// false and the delay until the next token.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	return l.allowAt(key, time.Now())
}

func (l *Limiter) allowAt(key string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	l.mu.Unlock()

	r := c.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)

	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	l.stats.TotalRequests++

	if delay == 0 {
		return true, 0
	}

	// Give the token back so a rejected request does not push the
	// client further into debt
	r.CancelAt(now)
	l.stats.RejectedRequests++
	return false, delay
}

// GetStats returns current statistics
func (l *Limiter) GetStats() Stats {
	l.mu.Lock()
	clients := len(l.clients)
	l.mu.Unlock()

	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	s := l.stats
	s.Clients = clients
	return s
}

// Evict drops clients idle since before cutoff and returns how many
func (l *Limiter) Evict(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
			n++
		}
	}
	return n
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.idleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case now := <-ticker.C:
			l.Evict(now.Add(-l.idleTTL))
		}
	}
}

// Stop stops the eviction loop. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopped.Do(func() { close(l.done) })
}
