// ABOUTME: Delivery window that drops repeated realtime events within a TTL
// ABOUTME: Bounded by size; the oldest key is evicted first, expired keys are swept periodically

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Defaults used when NewWindow is given zero values.
const (
	DefaultTTL  = 5 * time.Minute
	DefaultSize = 1024
)

type seenKey struct {
	at   time.Time
	elem *list.Element
}

// Window remembers recently delivered event keys. A feed that delivers
// at-least-once may repeat an event; Window reports the repeat so the
// consumer can skip it.
type Window struct {
	mu      sync.Mutex
	seen    map[string]*seenKey
	order   *list.List // keys, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// NewWindow creates a window and starts its sweeper. Close stops it.
func NewWindow(ttl time.Duration, maxSize int) *Window {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultSize
	}
	w := &Window{
		seen:    make(map[string]*seenKey),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go w.sweep()
	return w
}

// Key builds the window key for a row of a table.
func Key(table, id string) string {
	return table + "/" + id
}

// Duplicate reports whether key was delivered within the TTL. A new key is
// recorded in the same step, so concurrent deliveries of one event let
// exactly one through.
func (w *Window) Duplicate(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if s, ok := w.seen[key]; ok {
		if now.Sub(s.at) < w.ttl {
			return true
		}
		s.at = now
		w.order.MoveToBack(s.elem)
		return false
	}

	if len(w.seen) >= w.maxSize {
		if front := w.order.Front(); front != nil {
			delete(w.seen, front.Value.(string))
			w.order.Remove(front)
		}
	}
	w.seen[key] = &seenKey{at: now, elem: w.order.PushBack(key)}
	return false
}

// Len returns the number of remembered keys, expired ones included until swept.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}

func (w *Window) sweep() {
	ticker := time.NewTicker(min(w.ttl, time.Minute))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.expire()
		case <-w.done:
			return
		}
	}
}

func (w *Window) expire() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	for e := w.order.Front(); e != nil; {
		key := e.Value.(string)
		if now.Sub(w.seen[key].at) < w.ttl {
			break // entries behind are newer
		}
		next := e.Next()
		w.order.Remove(e)
		delete(w.seen, key)
		e = next
	}
}

// Close stops the sweeper. Safe to call multiple times.
func (w *Window) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.closed {
		close(w.done)
		w.closed = true
	}
}
