// Package dedup suppresses repeat notifications for the same condition within
// a fixed time window.
package dedup

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

const (
	DefaultWindow   = 60 * time.Second
	DefaultCapacity = 1024
)

// Deduplicator remembers when each key was last sent. Entries older than the
// window are treated as absent and overwritten lazily on lookup; the LRU bound
// only drops the least recently sent keys once capacity is reached.
type Deduplicator struct {
	mu     sync.Mutex
	window time.Duration
	cache  *lru.Cache
	now    func() time.Time
}

type Option func(*Deduplicator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Deduplicator) { d.now = now }
}

func New(window time.Duration, capacity int, opts ...Option) (*Deduplicator, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	cache, err := lru.New(capacity)
	if err != nil {
		return nil, err
	}
	d := &Deduplicator{
		window: window,
		cache:  cache,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// ShouldSend reports whether a notification for key may go out now, and if so
// records the send.
func (d *Deduplicator) ShouldSend(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if v, ok := d.cache.Get(key); ok {
		if now.Sub(v.(time.Time)) < d.window {
			return false
		}
	}
	d.cache.Add(key, now)
	return true
}

// Evict forgets a key, typically because the condition behind it went away.
func (d *Deduplicator) Evict(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache.Remove(key)
}

func (d *Deduplicator) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache.Purge()
}

func (d *Deduplicator) Len() int {
	return d.cache.Len()
}
