package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ProbeAll probes every registered dependency concurrently and returns how
// many were reachable.
func (r *Registry) ProbeAll(ctx context.Context) int {
	r.mu.RLock()
	names := make([]string, len(r.depOrder))
	copy(names, r.depOrder)
	r.mu.RUnlock()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		reachable int
	)
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if r.CheckDependency(ctx, name) {
				mu.Lock()
				reachable++
				mu.Unlock()
			}
		}(name)
	}
	wg.Wait()
	return reachable
}

// Poll probes all dependencies once immediately and then on every interval
// until ctx is cancelled.
func (r *Registry) Poll(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		up := r.ProbeAll(ctx)
		r.logger.Debug("dependencies probed", zap.Int("reachable", up))

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
