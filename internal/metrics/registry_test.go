package metrics

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"
)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// steppingClock returns baseTime advanced by one second per call.
func steppingClock() func() time.Time {
	n := 0
	return func() time.Time {
		n++
		return baseTime.Add(time.Duration(n) * time.Second)
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(zaptest.NewLogger(t))
	r.now = steppingClock()
	return r
}

// sampleLines counts exported sample lines for name.
func sampleLines(export, name string) int {
	n := 0
	for _, line := range strings.Split(export, "\n") {
		if strings.HasPrefix(line, name+" ") || strings.HasPrefix(line, name+"{") {
			n++
		}
	}
	return n
}

func TestRegistry_CreateCounter_Idempotent(t *testing.T) {
	r := newTestRegistry(t)

	c1, err := r.CreateCounter("jobs_total", "Jobs run")
	require.NoError(t, err)
	c1.Inc(nil)

	c2, err := r.CreateCounter("jobs_total", "ignored help")
	require.NoError(t, err)
	c2.Inc(nil)

	st, ok := r.Stats("jobs_total")
	require.True(t, ok)
	assert.Equal(t, 2, st.Count, "re-registration must not reset points")
	assert.Equal(t, []string{"jobs_total"}, r.Names())
	assert.Contains(t, r.Export(), "# HELP jobs_total Jobs run\n")
}

func TestRegistry_KindMismatch(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.CreateCounter("queue_depth", "Queue depth")
	require.NoError(t, err)

	_, err = r.CreateGauge("queue_depth", "Queue depth")
	require.ErrorIs(t, err, ErrKindMismatch)

	kind, ok := r.Kind("queue_depth")
	require.True(t, ok)
	assert.Equal(t, KindCounter, kind)
}

func TestRegistry_InvalidName(t *testing.T) {
	r := newTestRegistry(t)

	for _, name := range []string{"", "bad name{x}", "0starts_with_digit", "dash-ed"} {
		_, err := r.CreateGauge(name, "bad")
		require.ErrorIs(t, err, ErrInvalidName, name)
		_, err = r.CreateCounter(name, "bad")
		require.ErrorIs(t, err, ErrInvalidName, name)
	}
	assert.Empty(t, r.Names())
	assert.Empty(t, r.Export())
}

func TestRegistry_DropsPointWithInvalidLabelName(t *testing.T) {
	r := newTestRegistry(t)
	c, err := r.CreateCounter("requests_total", "Requests")
	require.NoError(t, err)

	c.Inc(Labels{"bad-key": "x"})
	c.Inc(Labels{"method": "GET", "0lead": "y"})
	assert.Empty(t, r.Points("requests_total"))

	c.Inc(Labels{"method": "GET"})
	assert.Len(t, r.Points("requests_total"), 1)
	assert.NotContains(t, r.Export(), "bad-key")
}

func TestRegistry_Stats_UnknownOrEmpty(t *testing.T) {
	r := newTestRegistry(t)

	_, ok := r.Stats("missing")
	assert.False(t, ok)

	_, err := r.CreateGauge("idle", "Never set")
	require.NoError(t, err)
	_, ok = r.Stats("idle")
	assert.False(t, ok, "a metric with no points has no stats")
}

func TestCounter_StatsCoverAllPoints(t *testing.T) {
	r := newTestRegistry(t)
	c, err := r.CreateCounter("events_total", "Events")
	require.NoError(t, err)

	for i := 0; i < 150; i++ {
		c.Add(float64(i), nil)
	}

	st, ok := r.Stats("events_total")
	require.True(t, ok)
	assert.Equal(t, 150, st.Count)
	assert.Equal(t, 0.0, st.Min)
	assert.Equal(t, 149.0, st.Max)
	assert.InDelta(t, 74.5, st.Avg, 1e-9)

	assert.Equal(t, ExportLimit, sampleLines(r.Export(), "events_total"))
}

func TestCounter_NegativeIncrementRecorded(t *testing.T) {
	r := newTestRegistry(t)
	c, err := r.CreateCounter("balance_total", "Balance")
	require.NoError(t, err)

	c.Add(-3, nil)

	st, ok := r.Stats("balance_total")
	require.True(t, ok)
	assert.Equal(t, -3.0, st.Min)
}

func TestGauge_ReplacesIdenticalLabelSet(t *testing.T) {
	r := newTestRegistry(t)
	g, err := r.CreateGauge("latency_seconds", "Latency")
	require.NoError(t, err)

	g.Set(1, Labels{"method": "GET", "path": "/a"})
	g.Set(2, Labels{"path": "/a", "method": "GET"})

	pts := r.Points("latency_seconds")
	require.Len(t, pts, 1)
	assert.Equal(t, 2.0, pts[0].Value)

	g.Set(3, Labels{"method": "POST", "path": "/a"})
	assert.Len(t, r.Points("latency_seconds"), 2)
}

func TestGauge_ReplacedPointMovesToEnd(t *testing.T) {
	r := newTestRegistry(t)
	g, err := r.CreateGauge("temp", "Temperature")
	require.NoError(t, err)

	g.Set(1, Labels{"room": "a"})
	g.Set(2, Labels{"room": "b"})
	g.Set(3, Labels{"room": "a"})

	pts := r.Points("temp")
	require.Len(t, pts, 2)
	assert.Equal(t, "b", pts[0].Labels["room"])
	assert.Equal(t, "a", pts[1].Labels["room"])
	assert.Equal(t, 3.0, pts[1].Value)
	assert.True(t, pts[1].Timestamp.After(pts[0].Timestamp))
}

func TestGauge_NilAndEmptyLabelsAreTheSameSet(t *testing.T) {
	r := newTestRegistry(t)
	g, err := r.CreateGauge("cpu", "CPU")
	require.NoError(t, err)

	g.Set(10, nil)
	g.Set(20, Labels{})

	pts := r.Points("cpu")
	require.Len(t, pts, 1)
	assert.Equal(t, 20.0, pts[0].Value)
}

func TestRegistry_LabelsCopiedOnRecord(t *testing.T) {
	r := newTestRegistry(t)
	c, err := r.CreateCounter("hits_total", "Hits")
	require.NoError(t, err)

	labels := Labels{"path": "/x"}
	c.Inc(labels)
	labels["path"] = "/mutated"

	pts := r.Points("hits_total")
	require.Len(t, pts, 1)
	assert.Equal(t, "/x", pts[0].Labels["path"])
}

func TestRegistry_ConcurrentRecording(t *testing.T) {
	r := NewRegistry(nil)
	c, err := r.CreateCounter("requests_total", "Requests")
	require.NoError(t, err)
	g, err := r.CreateGauge("inflight", "In flight")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 20; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c.Inc(Labels{"worker": fmt.Sprint(w)})
				g.Set(float64(i), Labels{"worker": fmt.Sprint(w)})
				_ = r.Export()
			}
		}(w)
	}
	wg.Wait()

	st, ok := r.Stats("requests_total")
	require.True(t, ok)
	assert.Equal(t, 2000, st.Count)
	assert.Len(t, r.Points("inflight"), 20)
}

func TestCounter_StatsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		values := rapid.SliceOfN(rapid.Float64Range(-1e6, 1e6), 1, 300).Draw(t, "values")

		r := NewRegistry(nil)
		c, err := r.CreateCounter("events_total", "Events")
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		lo, hi, sum := values[0], values[0], 0.0
		for _, v := range values {
			c.Add(v, nil)
			lo = min(lo, v)
			hi = max(hi, v)
			sum += v
		}

		st, ok := r.Stats("events_total")
		if !ok {
			t.Fatalf("stats missing")
		}
		if st.Count != len(values) {
			t.Fatalf("Count = %d, want %d", st.Count, len(values))
		}
		if st.Min != lo || st.Max != hi {
			t.Fatalf("Min/Max = %v/%v, want %v/%v", st.Min, st.Max, lo, hi)
		}
		if want := sum / float64(len(values)); math.Abs(st.Avg-want) > 1e-6 {
			t.Fatalf("Avg = %v, want %v", st.Avg, want)
		}
		if got, want := sampleLines(r.Export(), "events_total"), min(len(values), ExportLimit); got != want {
			t.Fatalf("exported %d lines, want %d", got, want)
		}
	})
}

func TestGauge_OnePointPerLabelSetProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		hosts := rapid.SliceOfN(rapid.SampledFrom([]string{"a", "b", "c", "d"}), 1, 50).Draw(t, "hosts")

		r := NewRegistry(nil)
		g, err := r.CreateGauge("load", "Load")
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		distinct := make(map[string]float64)
		for i, h := range hosts {
			g.Set(float64(i), Labels{"host": h})
			distinct[h] = float64(i)
		}

		pts := r.Points("load")
		if len(pts) != len(distinct) {
			t.Fatalf("points = %d, want %d", len(pts), len(distinct))
		}
		for _, p := range pts {
			if want := distinct[p.Labels["host"]]; p.Value != want {
				t.Fatalf("host %s = %v, want latest %v", p.Labels["host"], p.Value, want)
			}
		}
	})
}
