package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Gate serializes calls per provider so that consecutive calls to the same
// provider are at least one interval apart. Providers are independent.
type Gate struct {
	mu       sync.Mutex
	interval time.Duration
	gates    map[string]*rate.Limiter
}

// NewGate creates a gate enforcing interval between calls to one provider
func NewGate(interval time.Duration) *Gate {
	return &Gate{
		interval: interval,
		gates:    make(map[string]*rate.Limiter),
	}
}

// Wait blocks until a call to provider may proceed or ctx is done
func (g *Gate) Wait(ctx context.Context, provider string) error {
	if err := g.limiter(provider).Wait(ctx); err != nil {
		return fmt.Errorf("rate gate %s: %w", provider, err)
	}
	return nil
}

// Interval returns the minimum spacing between calls to one provider
func (g *Gate) Interval() time.Duration {
	return g.interval
}

func (g *Gate) limiter(provider string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.gates[provider]
	if !ok {
		limit := rate.Inf
		if g.interval > 0 {
			limit = rate.Every(g.interval)
		}
		l = rate.NewLimiter(limit, 1)
		g.gates[provider] = l
	}
	return l
}
