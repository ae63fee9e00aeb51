package limiter_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rohmanhakim/spec-harvester/pkg/limiter"
)

func TestResolveDelay_UnknownHostWaitsNothing(t *testing.T) {
	rl := limiter.NewConcurrentRateLimiter()
	rl.SetBaseDelay(time.Second)
	assert.Equal(t, time.Duration(0), rl.ResolveDelay("never-seen.example.com"))
}

func TestResolveDelay_TakesTheMaximumDelaySource(t *testing.T) {
	rl := limiter.NewConcurrentRateLimiter()
	rl.SetBaseDelay(100 * time.Millisecond)
	rl.SetCrawlDelay("a.com", 300*time.Millisecond)
	rl.SetMinDelay("a.com", 200*time.Millisecond)
	rl.MarkLastFetchAsNow("a.com")

	delay := rl.ResolveDelay("a.com")
	assert.Greater(t, delay, 200*time.Millisecond, "crawl delay dominates")
	assert.LessOrEqual(t, delay, 300*time.Millisecond)
}

func TestResolveDelay_ElapsedTimeCounts(t *testing.T) {
	rl := limiter.NewConcurrentRateLimiter()
	rl.SetMinDelay("a.com", 50*time.Millisecond)
	rl.MarkLastFetchAsNow("a.com")

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, time.Duration(0), rl.ResolveDelay("a.com"))
}

func TestBackoff_GrowsAndResets(t *testing.T) {
	rl := limiter.NewConcurrentRateLimiter()
	rl.MarkLastFetchAsNow("a.com")

	rl.Backoff("a.com")
	first := rl.ResolveDelay("a.com")
	rl.Backoff("a.com")
	second := rl.ResolveDelay("a.com")
	assert.Greater(t, second, first)

	rl.ResetBackoff("a.com")
	assert.Less(t, rl.ResolveDelay("a.com"), first)
}

func TestConcurrentAccess(t *testing.T) {
	rl := limiter.NewConcurrentRateLimiter()
	rl.SetBaseDelay(time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				rl.MarkLastFetchAsNow("shared.example.com")
				rl.Backoff("shared.example.com")
				rl.ResolveDelay("shared.example.com")
				rl.ResetBackoff("shared.example.com")
			}
		}()
	}
	wg.Wait()
}
