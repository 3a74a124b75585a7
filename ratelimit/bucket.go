// Package ratelimit implements a periodic-reset token bucket: capacity
// tokens become available at the start of every interval and are spent
// down across that interval, rather than trickling back continuously the
// way golang.org/x/time/rate's leaky bucket does. Transfer streaming
// wants "up to N bytes per tick" pacing, matching how the reference
// client throttles uploads/downloads per wall-clock second rather than
// smoothing byte-by-byte.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Bucket grants up to Capacity tokens per Interval. Get blocks until at
// least one token is available, handing back a partial grant (fewer than
// requested) rather than waiting for the full amount, so a caller
// streaming in chunks makes steady progress instead of stalling for a
// full refill on every call.
type Bucket struct {
	mu       sync.Mutex
	capacity int64
	interval time.Duration
	level    int64
	closed   bool

	refill chan struct{} // broadcast-on-refill, swapped out each tick

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewBucket constructs a Bucket that resets to capacity tokens at the
// start of every interval and starts its background ticker. Close must
// be called to stop the ticker goroutine.
func NewBucket(capacity int64, interval time.Duration) *Bucket {
	b := &Bucket{
		capacity: capacity,
		interval: interval,
		level:    capacity,
		refill:   make(chan struct{}),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go b.tick()
	return b
}

func (b *Bucket) tick() {
	defer close(b.doneCh)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.mu.Lock()
			b.level = b.capacity
			old := b.refill
			b.refill = make(chan struct{})
			b.mu.Unlock()
			close(old)
		}
	}
}

// SetCapacity changes the per-interval token grant. The new capacity
// takes effect starting at the next tick; it does not retroactively top
// off the current interval's remaining level.
func (b *Bucket) SetCapacity(capacity int64) {
	b.mu.Lock()
	b.capacity = capacity
	b.mu.Unlock()
}

// Get requests up to n tokens, blocking until at least one token is
// available or ctx is done. It returns the number of tokens actually
// granted, which may be less than n — callers pacing a stream should
// loop, spending exactly what Get returns each call. A request for
// more tokens than Capacity is clamped to Capacity so it can never block
// forever.
func (b *Bucket) Get(ctx context.Context, n int64) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return 0, ErrClosed
		}
		if max := b.capacity; n > max {
			n = max
		}
		if b.level > 0 {
			grant := n
			if grant > b.level {
				grant = b.level
			}
			b.level -= grant
			b.mu.Unlock()
			return grant, nil
		}
		wait := b.refill
		b.mu.Unlock()

		select {
		case <-wait:
			// Bucket refilled; loop around to claim a share.
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-b.stopCh:
			return 0, ErrClosed
		}
	}
}

// Close stops the bucket's background ticker. Outstanding and future
// Get calls return ErrClosed. Safe to call multiple times.
func (b *Bucket) Close() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		close(b.stopCh)
		<-b.doneCh
	})
}
