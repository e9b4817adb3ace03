// Package fx provides the time-bounded cache over an external exchange-rate
// source used by short-mode output.
package fx

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Source fetches the current rate for the configured currency pair.
type Source interface {
	Rate(ctx context.Context) (decimal.Decimal, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (decimal.Decimal, error)

func (f SourceFunc) Rate(ctx context.Context) (decimal.Decimal, error) { return f(ctx) }

// Options configures a Cache.
type Options struct {
	// TTL bounds how long a fetched rate is served without refreshing.
	// Defaults to 6 hours.
	TTL time.Duration
	// RefreshTimeout bounds a single refresh attempt. Defaults to 5s.
	RefreshTimeout time.Duration
	// Fallback is served when no rate has ever been fetched and the source is
	// unavailable. Defaults to 100.
	Fallback decimal.Decimal
	// Now is the clock; defaults to time.Now. Injected for tests.
	Now func() time.Time

	Logger *log.Logger
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 6 * time.Hour
	}
	if o.RefreshTimeout <= 0 {
		o.RefreshTimeout = 5 * time.Second
	}
	if o.Fallback.IsZero() {
		o.Fallback = decimal.NewFromInt(100)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Cache serves a cached rate while fresh and refreshes lazily once stale.
// A failed refresh keeps the previous rate; errors never propagate.
type Cache struct {
	source Source
	opts   Options

	mu          sync.Mutex
	rate        decimal.Decimal
	fetched     bool
	lastUpdated time.Time
}

// NewCache constructs a Cache over the source.
func NewCache(source Source, opts Options) *Cache {
	return &Cache{source: source, opts: opts.withDefaults()}
}

// Rate returns the cached rate, refreshing it first when stale. It never
// fails: on refresh failure the previous rate (or the fallback) is served.
func (c *Cache) Rate(ctx context.Context) decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.Now()
	if c.fetched && now.Sub(c.lastUpdated) < c.opts.TTL {
		return c.rate
	}

	rctx, cancel := context.WithTimeout(ctx, c.opts.RefreshTimeout)
	defer cancel()

	rate, err := c.source.Rate(rctx)
	if err != nil {
		if c.opts.Logger != nil {
			c.opts.Logger.Printf("rate refresh failed, serving %s: err=%q", c.describeLocked(), err.Error())
		}
		if !c.fetched {
			return c.opts.Fallback
		}
		return c.rate
	}

	c.rate = rate
	c.fetched = true
	c.lastUpdated = now
	if c.opts.Logger != nil {
		c.opts.Logger.Printf("rate refreshed: rate=%s", rate)
	}
	return c.rate
}

func (c *Cache) describeLocked() string {
	if !c.fetched {
		return "fallback"
	}
	return "stale rate"
}
