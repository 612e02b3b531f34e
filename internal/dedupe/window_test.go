// ABOUTME: Tests for the delivery window used to skip repeated feed events.
// ABOUTME: Validates TTL expiry, size eviction, sweeping and concurrent delivery.

package dedupe

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock lets tests move time without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestWindow(ttl time.Duration, size int) (*Window, *fakeClock) {
	w := NewWindow(ttl, size)
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	w.mu.Lock()
	w.now = clock.Now
	w.mu.Unlock()
	return w, clock
}

func TestWindow_FirstDeliveryPasses(t *testing.T) {
	w, _ := newTestWindow(time.Minute, 10)
	defer w.Close()

	assert.False(t, w.Duplicate(Key("messages", "m1")))
	assert.True(t, w.Duplicate(Key("messages", "m1")))
}

func TestWindow_KeysAreScopedByTable(t *testing.T) {
	w, _ := newTestWindow(time.Minute, 10)
	defer w.Close()

	assert.False(t, w.Duplicate(Key("messages", "x")))
	assert.False(t, w.Duplicate(Key("conversations", "x")))
}

func TestWindow_ExpiredKeyPassesAgain(t *testing.T) {
	w, clock := newTestWindow(time.Minute, 10)
	defer w.Close()

	w.Duplicate("k")
	clock.Advance(59 * time.Second)
	assert.True(t, w.Duplicate("k"))

	clock.Advance(time.Minute)
	assert.False(t, w.Duplicate("k"), "outside the window a key is new again")
	assert.True(t, w.Duplicate("k"))
}

func TestWindow_EvictsOldestAtCapacity(t *testing.T) {
	w, _ := newTestWindow(time.Minute, 3)
	defer w.Close()

	for _, k := range []string{"a", "b", "c", "d"} {
		w.Duplicate(k)
	}

	assert.Equal(t, 3, w.Len())
	assert.False(t, w.Duplicate("a"), "a was evicted")
	assert.True(t, w.Duplicate("d"))
}

func TestWindow_ExpireRemovesOnlyStaleKeys(t *testing.T) {
	w, clock := newTestWindow(time.Minute, 10)
	defer w.Close()

	w.Duplicate("old")
	clock.Advance(2 * time.Minute)
	w.Duplicate("fresh")

	w.expire()
	assert.Equal(t, 1, w.Len())
	assert.True(t, w.Duplicate("fresh"))
}

func TestWindow_Defaults(t *testing.T) {
	w := NewWindow(0, 0)
	defer w.Close()

	assert.Equal(t, DefaultTTL, w.ttl)
	assert.Equal(t, DefaultSize, w.maxSize)
}

func TestWindow_CloseIsIdempotent(t *testing.T) {
	w := NewWindow(time.Minute, 10)
	w.Close()
	w.Close()
}

func TestWindow_ConcurrentDeliveryLetsOneThrough(t *testing.T) {
	w, _ := newTestWindow(time.Minute, 1000)
	defer w.Close()

	for i := range 50 {
		key := fmt.Sprintf("evt-%d", i)
		var passed atomic.Int32
		var wg sync.WaitGroup
		for range 8 {
			wg.Go(func() {
				if !w.Duplicate(key) {
					passed.Add(1)
				}
			})
		}
		wg.Wait()
		assert.Equal(t, int32(1), passed.Load(), key)
	}
}
