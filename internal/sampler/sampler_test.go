package sampler

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// scripted returns a statFunc replaying readings and a clock advancing by
// step per call.
func scripted(cpu []float64, rss []int, step time.Duration) (statFunc, func() time.Time) {
	var mu sync.Mutex
	i, n := 0, 0
	stat := func() (float64, int, error) {
		mu.Lock()
		defer mu.Unlock()
		c, r := cpu[min(i, len(cpu)-1)], rss[min(i, len(rss)-1)]
		i++
		return c, r, nil
	}
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return baseTime.Add(time.Duration(n) * step)
	}
	return stat, clock
}

func TestSample_FirstReadingIsBaseline(t *testing.T) {
	s := New(zaptest.NewLogger(t))
	s.stat, s.now = scripted([]float64{12.5}, []int{4096}, 10*time.Second)

	smp, err := s.Sample()
	require.NoError(t, err)
	assert.Equal(t, 0.0, smp.CPUPercent)
	assert.Equal(t, 4096.0, smp.MemoryBytes)
}

func TestSample_CPUPercentFromDelta(t *testing.T) {
	s := New(zaptest.NewLogger(t))
	s.stat, s.now = scripted([]float64{10, 15, 35}, []int{1, 2, 3}, 10*time.Second)

	_, err := s.Sample()
	require.NoError(t, err)

	smp, err := s.Sample()
	require.NoError(t, err)
	assert.InDelta(t, 50.0, smp.CPUPercent, 1e-9)

	smp, err = s.Sample()
	require.NoError(t, err)
	assert.InDelta(t, 200.0, smp.CPUPercent, 1e-9)
	assert.Equal(t, 3.0, smp.MemoryBytes)
}

func TestSample_CounterResetClampsToZero(t *testing.T) {
	s := New(nil)
	s.stat, s.now = scripted([]float64{100, 5}, []int{1}, time.Second)

	_, _ = s.Sample()
	smp, err := s.Sample()
	require.NoError(t, err)
	assert.Equal(t, 0.0, smp.CPUPercent)
}

func TestSample_ErrorPropagates(t *testing.T) {
	s := New(nil)
	s.stat = func() (float64, int, error) { return 0, 0, errors.New("no procfs") }

	_, err := s.Sample()
	assert.Error(t, err)
}

func TestSample_ReadsProcfs(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("procfs is only available on linux")
	}
	smp, err := New(nil).Sample()
	require.NoError(t, err)
	assert.Greater(t, smp.MemoryBytes, 0.0)
}

func TestRun_DeliversUntilCancelled(t *testing.T) {
	s := New(zaptest.NewLogger(t))
	s.stat, s.now = scripted([]float64{1, 2, 3, 4}, []int{10}, time.Second)

	var (
		mu  sync.Mutex
		got []Sample
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, 5*time.Millisecond, func(smp Sample) {
			mu.Lock()
			got = append(got, smp)
			mu.Unlock()
		})
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0.0, got[0].CPUPercent)
	assert.InDelta(t, 100.0, got[1].CPUPercent, 1e-9)
}

func TestDeltaOf(t *testing.T) {
	assert.Equal(t, 5.0, deltaOf(15, 10))
	assert.Equal(t, 0.0, deltaOf(10, 15))
}
