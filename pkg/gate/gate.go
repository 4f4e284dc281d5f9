package gate

import (
	"sync"
	"time"
)

const DefaultQuietPeriod = 500 * time.Millisecond

type Config struct {
	Now         func() time.Time
	QuietPeriod time.Duration
}

func DefaultConfig() Config {
	return Config{
		Now:         time.Now,
		QuietPeriod: DefaultQuietPeriod,
	}
}

// TestConfig returns a Config driven by a manual clock.
func TestConfig(clock *Clock, quiet time.Duration) Config {
	return Config{
		Now:         clock.Now,
		QuietPeriod: quiet,
	}
}

// Gate allows at most one build at a time and keeps consecutive build starts
// at least QuietPeriod apart. Every successful TryAcquire must be paired with
// exactly one Release.
type Gate struct {
	config  Config
	last    time.Time
	mu      sync.Mutex
	running bool
}

func New(cfg Config) *Gate {
	return &Gate{config: cfg}
}

func (g *Gate) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.config.Now()
	if g.running {
		return false
	}
	if !g.last.IsZero() && now.Sub(g.last) < g.config.QuietPeriod {
		return false
	}
	g.running = true
	g.last = now
	return true
}

func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = false
}

func (g *Gate) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// Clock is a manually advanced time source for tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
