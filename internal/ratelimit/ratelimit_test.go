package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_AllowWithinBurst(t *testing.T) {
	l := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  3,
		DefaultWindow: time.Hour,
	})
	defer l.Stop()

	for i := 0; i < 3; i++ {
		allowed, info := l.Allow("10.0.0.1", "/runs/abc", "GET")
		assert.True(t, allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 3, info.Limit)
	}

	allowed, info := l.Allow("10.0.0.1", "/runs/abc", "GET")
	assert.False(t, allowed)
	assert.Equal(t, 0, info.Remaining)
	assert.Positive(t, info.RetryAfter)

	// other clients have their own bucket
	allowed, _ = l.Allow("10.0.0.2", "/runs/abc", "GET")
	assert.True(t, allowed)
}

func TestLimiter_EndpointConfig(t *testing.T) {
	l := NewLimiter(&Config{
		Enabled:         true,
		DefaultLimit:    100,
		DefaultWindow:   time.Minute,
		EndpointConfigs: []EndpointConfig{{Path: "/runs", Method: "POST", Limit: 1, Window: time.Hour, Burst: 1}},
	})
	defer l.Stop()

	allowed, _ := l.Allow("c", "/runs", "POST")
	assert.True(t, allowed)
	allowed, _ = l.Allow("c", "/runs", "POST")
	assert.False(t, allowed)

	// GET falls through to the default limit
	allowed, _ = l.Allow("c", "/runs", "GET")
	assert.True(t, allowed)
}

func TestLimiter_DisabledAndWhitelist(t *testing.T) {
	disabled := NewLimiter(&Config{Enabled: false})
	allowed, _ := disabled.Allow("c", "/runs", "POST")
	assert.True(t, allowed)

	l := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1,
		DefaultWindow: time.Hour,
		Whitelist:     map[string]bool{"127.0.0.1": true},
	})
	defer l.Stop()
	for i := 0; i < 5; i++ {
		allowed, _ := l.Allow("127.0.0.1", "/runs", "GET")
		assert.True(t, allowed)
	}
}

func TestMatchEndpoint(t *testing.T) {
	configs := DefaultEndpointConfigs()

	health := MatchEndpoint("/health", "GET", configs)
	require.NotNil(t, health)
	assert.Equal(t, 0, health.Limit)

	exact := MatchEndpoint("/runs", "POST", configs)
	require.NotNil(t, exact)
	assert.Equal(t, "/runs", exact.Path)

	prefix := MatchEndpoint("/runs/123/resume", "POST", configs)
	require.NotNil(t, prefix)
	assert.Equal(t, "/runs/", prefix.Path)

	assert.Nil(t, MatchEndpoint("/runs/123", "GET", configs))
}

func TestGate_SpacesCallsPerProvider(t *testing.T) {
	gate := NewGate(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, gate.Wait(ctx, "search"))
	}
	// first call is immediate, the next two wait one interval each
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestGate_ProvidersAreIndependent(t *testing.T) {
	gate := NewGate(time.Hour)
	ctx := context.Background()

	require.NoError(t, gate.Wait(ctx, "search"))

	var wg sync.WaitGroup
	var err error
	wg.Add(1)
	go func() {
		defer wg.Done()
		err = gate.Wait(ctx, "images")
	}()
	wg.Wait()
	assert.NoError(t, err)
}

func TestGate_WaitHonorsContext(t *testing.T) {
	gate := NewGate(time.Hour)
	require.NoError(t, gate.Wait(context.Background(), "search"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, gate.Wait(ctx, "search"))
}
