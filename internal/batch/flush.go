package batch

import (
	"context"
	"time"
)

// StartFlushLoop runs the flush loop in a background goroutine. It flushes on
// the interval ticker and whenever Add reaches the batch size, and exits
// after a final flush when Stop is called, or immediately when ctx is done.
func (b *Batcher) StartFlushLoop(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	go b.runFlushLoop(ctx)
}

func (b *Batcher) runFlushLoop(ctx context.Context) {
	defer close(b.doneCh)

	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flushAndReport(ctx)

		case <-b.flushCh:
			b.flushAndReport(ctx)

		case <-b.stopCh:
			b.flushAndReport(ctx)
			return

		case <-ctx.Done():
			return
		}
	}
}

func (b *Batcher) flushAndReport(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.flushLocked(ctx); err != nil {
		b.logger.Warn("flush failed", "error", err)
		if b.onError != nil {
			b.onError(err)
		}
	}
}
