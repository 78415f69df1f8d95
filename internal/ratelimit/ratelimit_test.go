package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock lets tests move time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(maxAdmissions int, window time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	limiter := NewLimiter(maxAdmissions, window)
	limiter.now = clock.Now
	return limiter, clock
}

func TestAllowUpToLimit(t *testing.T) {
	limiter, _ := newTestLimiter(2, time.Minute)

	assert.True(t, limiter.Allow("u1"))
	assert.True(t, limiter.Allow("u1"))
	assert.False(t, limiter.Allow("u1"), "third admission inside the window must be denied")

	// A different owner has its own window.
	assert.True(t, limiter.Allow("u2"))
}

func TestWindowSlides(t *testing.T) {
	limiter, clock := newTestLimiter(2, time.Minute)

	assert.True(t, limiter.Allow("u1"))
	clock.Advance(30 * time.Second)
	assert.True(t, limiter.Allow("u1"))
	assert.False(t, limiter.Allow("u1"))

	// 60s after the first admission it has aged out, freeing one slot.
	clock.Advance(30 * time.Second)
	assert.True(t, limiter.Allow("u1"))
	assert.False(t, limiter.Allow("u1"))
}

func TestBoundaryExactlyWindowOldExpires(t *testing.T) {
	limiter, clock := newTestLimiter(1, time.Minute)

	assert.True(t, limiter.Allow("u1"))
	clock.Advance(time.Minute)
	// A timestamp exactly window-old no longer counts.
	assert.True(t, limiter.Allow("u1"))
}

func TestRemaining(t *testing.T) {
	limiter, clock := newTestLimiter(3, time.Minute)

	assert.Equal(t, 3, limiter.Remaining("u1"))
	limiter.Allow("u1")
	limiter.Allow("u1")
	assert.Equal(t, 1, limiter.Remaining("u1"))

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 3, limiter.Remaining("u1"))
}

func TestIdleOwnersArePruned(t *testing.T) {
	limiter, clock := newTestLimiter(2, time.Minute)

	limiter.Allow("u1")
	limiter.Allow("u2")
	assert.Len(t, limiter.windows, 2)

	clock.Advance(2 * time.Minute)
	limiter.Remaining("u1")
	limiter.Remaining("u2")
	assert.Empty(t, limiter.windows, "owners with no live admissions must not be retained")
}

func TestConcurrentSameOwner(t *testing.T) {
	limiter, _ := newTestLimiter(10, time.Minute)

	var wg sync.WaitGroup
	allowed := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- limiter.Allow("u1")
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for ok := range allowed {
		if ok {
			count++
		}
	}
	assert.Equal(t, 10, count, "exactly the limit may be admitted under contention")
}
