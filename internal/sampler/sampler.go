// Package sampler reads CPU and memory usage of the current process from
// procfs.
//
// CPU usage is derived from the delta of consumed CPU seconds between two
// samples, so the first sample after construction always reports 0%.
package sampler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/procfs"
	"go.uber.org/zap"
)

// Sample is one reading of process resource usage.
type Sample struct {
	At time.Time

	// CPUPercent is CPU time consumed since the previous sample as a
	// percentage of wall time. A process saturating two cores reports 200.
	CPUPercent float64

	// MemoryBytes is the resident set size.
	MemoryBytes float64
}

// statFunc returns cumulative CPU seconds and resident memory in bytes.
type statFunc func() (cpuSeconds float64, rssBytes int, err error)

// Sampler keeps the previous CPU reading between calls.
//
// Sampler is safe for concurrent use.
type Sampler struct {
	mu      sync.Mutex
	prevCPU float64
	prevAt  time.Time
	primed  bool

	stat   statFunc
	now    func() time.Time
	logger *zap.Logger
}

// New returns a Sampler for the current process.
func New(logger *zap.Logger) *Sampler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sampler{
		stat:   selfStat,
		now:    time.Now,
		logger: logger.Named("sampler"),
	}
}

func selfStat() (float64, int, error) {
	p, err := procfs.Self()
	if err != nil {
		return 0, 0, fmt.Errorf("sampler: open /proc/self: %w", err)
	}
	st, err := p.Stat()
	if err != nil {
		return 0, 0, fmt.Errorf("sampler: read stat: %w", err)
	}
	return st.CPUTime(), st.ResidentMemory(), nil
}

// Sample reads the current usage.
func (s *Sampler) Sample() (Sample, error) {
	cpu, rss, err := s.stat()
	if err != nil {
		return Sample{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := Sample{At: now, MemoryBytes: float64(rss)}
	if s.primed {
		if elapsed := now.Sub(s.prevAt).Seconds(); elapsed > 0 {
			out.CPUPercent = deltaOf(cpu, s.prevCPU) / elapsed * 100
		}
	}
	s.prevCPU, s.prevAt, s.primed = cpu, now, true
	return out, nil
}

// Run samples immediately and then on every interval, passing each reading
// to sink, until ctx is cancelled. Read errors are logged and skipped.
func (s *Sampler) Run(ctx context.Context, interval time.Duration, sink func(Sample)) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		if smp, err := s.Sample(); err != nil {
			s.logger.Warn("process sample failed", zap.Error(err))
		} else {
			sink(smp)
		}

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// deltaOf returns the positive delta between current and previous.
// A decrease, which only happens when the source was reset, yields 0.
func deltaOf(current, previous float64) float64 {
	d := current - previous
	if d < 0 {
		return 0
	}
	return d
}
