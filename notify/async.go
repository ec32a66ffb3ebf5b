// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danielhkuo/real-hero/models"
)

// Async queues notifications for a background worker so callers never
// wait on delivery. When the queue is full the notification is dropped.
type Async struct {
	next    Notifier
	queue   chan models.Notification
	timeout time.Duration

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Int64
}

func NewAsync(next Notifier, size int) *Async {
	if size <= 0 {
		size = 256
	}
	a := &Async{
		next:    next,
		queue:   make(chan models.Notification, size),
		timeout: 10 * time.Second,
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for n := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Notify(ctx, n); err != nil {
			slog.Warn("notification delivery failed", "template", n.Template, "user_id", n.UserID, "error", err)
		}
		cancel()
	}
}

// Notify enqueues n. It returns ErrQueueFull instead of blocking.
func (a *Async) Notify(_ context.Context, n models.Notification) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrQueueFull
	}

	select {
	case a.queue <- n:
		return nil
	default:
		a.dropped.Add(1)
		slog.Warn("notification dropped", "template", n.Template, "user_id", n.UserID)
		return ErrQueueFull
	}
}

// Dropped returns how many notifications were discarded.
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops accepting notifications and waits for the queue to drain
// or ctx to end.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
