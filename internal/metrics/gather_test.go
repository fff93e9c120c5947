package metrics

import (
	"bytes"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seed registers a counter with repeated label sets and an overwritten gauge.
func seed(t *testing.T) *Registry {
	t.Helper()
	r := newTestRegistry(t)

	c, err := r.CreateCounter("requests_total", "Total requests")
	require.NoError(t, err)
	c.Inc(Labels{"method": "GET"})
	c.Inc(Labels{"method": "GET"})
	c.Add(1, Labels{"method": "GET"})
	c.Inc(Labels{"method": "POST"})

	g, err := r.CreateGauge("agents_active", "Active agents")
	require.NoError(t, err)
	g.Set(4, nil)
	g.Set(7, nil)

	_, err = r.CreateGauge("unused", "Never set")
	require.NoError(t, err)
	return r
}

func TestGather_AggregatesPerLabelSet(t *testing.T) {
	r := seed(t)

	mfs, err := r.Gather()
	require.NoError(t, err)
	require.Len(t, mfs, 2, "metrics without points are skipped")

	assert.Equal(t, "agents_active", mfs[0].GetName())
	require.Len(t, mfs[0].GetMetric(), 1)
	assert.Equal(t, 7.0, mfs[0].GetMetric()[0].GetGauge().GetValue())

	assert.Equal(t, "requests_total", mfs[1].GetName())
	require.Len(t, mfs[1].GetMetric(), 2)
	assert.Equal(t, 3.0, mfs[1].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 1.0, mfs[1].GetMetric()[1].GetCounter().GetValue())
}

func TestGather_ComparesAsGatherer(t *testing.T) {
	r := seed(t)

	expected := `
# HELP requests_total Total requests
# TYPE requests_total counter
requests_total{method="GET"} 3
requests_total{method="POST"} 1
`
	require.NoError(t, testutil.GatherAndCompare(r, strings.NewReader(expected), "requests_total"))
}

func TestWriteText_TextPlain(t *testing.T) {
	r := seed(t)

	var buf bytes.Buffer
	require.NoError(t, r.WriteText(&buf, expfmt.NewFormat(expfmt.TypeTextPlain)))

	out := buf.String()
	assert.Contains(t, out, "# TYPE requests_total counter\n")
	assert.Contains(t, out, `requests_total{method="GET"} 3`)
	assert.Contains(t, out, "agents_active 7")
	assert.NotContains(t, out, "unused")
}

func TestCollector_RegistersWithClientGolang(t *testing.T) {
	r := seed(t)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewCollector(r)))

	expected := `
# HELP agents_active Active agents
# TYPE agents_active gauge
agents_active 7
# HELP requests_total Total requests
# TYPE requests_total counter
requests_total{method="GET"} 3
requests_total{method="POST"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "agents_active", "requests_total"))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
