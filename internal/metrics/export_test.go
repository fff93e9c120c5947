package metrics

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExport_Format(t *testing.T) {
	r := newTestRegistry(t)
	c, err := r.CreateCounter("requests_total", "Total requests")
	require.NoError(t, err)
	_, err = r.CreateGauge("temp", "Temperature")
	require.NoError(t, err)

	c.Inc(Labels{"status": "200", "method": "GET"})
	c.Add(2, nil)

	want := "# HELP requests_total Total requests\n" +
		"# TYPE requests_total counter\n" +
		"requests_total{method=\"GET\",status=\"200\"} 1\n" +
		"requests_total 2\n" +
		"\n" +
		"# HELP temp Temperature\n" +
		"# TYPE temp gauge\n" +
		"\n"
	assert.Equal(t, want, r.Export())
}

func TestExport_EmptyRegistry(t *testing.T) {
	assert.Equal(t, "", NewRegistry(nil).Export())
}

func TestExport_KeepsLastPoints(t *testing.T) {
	r := newTestRegistry(t)
	g, err := r.CreateGauge("queue_len", "Queue length")
	require.NoError(t, err)

	for i := 0; i < 250; i++ {
		g.Set(float64(i), Labels{"queue": fmt.Sprint(i)})
	}

	out := r.Export()
	assert.Equal(t, ExportLimit, sampleLines(out, "queue_len"))
	assert.NotContains(t, out, `queue_len{queue="149"} 149`)
	assert.Contains(t, out, `queue_len{queue="150"} 150`)
	assert.Contains(t, out, `queue_len{queue="249"} 249`)

	st, ok := r.Stats("queue_len")
	require.True(t, ok)
	assert.Equal(t, 250, st.Count)
}

func TestExport_EscapesLabelValuesAndHelp(t *testing.T) {
	r := newTestRegistry(t)
	g, err := r.CreateGauge("info", "line one\nline two")
	require.NoError(t, err)

	g.Set(1, Labels{"v": "a\"b\\c\nd"})

	out := r.Export()
	assert.Contains(t, out, "# HELP info line one\\nline two\n")
	assert.Contains(t, out, `info{v="a\"b\\c\nd"} 1`)
}

func TestExport_ParsesAsTextFormat(t *testing.T) {
	r := newTestRegistry(t)
	g, err := r.CreateGauge("http_request_duration_seconds", "Request duration")
	require.NoError(t, err)

	g.Set(0.045, Labels{"method": "GET", "path": "/x"})
	g.Set(1.5, Labels{"method": "POST", "path": "/y"})

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(strings.NewReader(r.Export()))
	require.NoError(t, err)

	mf, ok := families["http_request_duration_seconds"]
	require.True(t, ok)
	require.Len(t, mf.GetMetric(), 2)
	assert.Equal(t, 0.045, mf.GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 1.5, mf.GetMetric()[1].GetGauge().GetValue())
}

func TestFormatValue(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{math.Copysign(0, -1), "0"},
		{45, "45"},
		{-2.5, "-2.5"},
		{0.045, "0.045"},
		{123456789, "123456789"},
		{1e-6, "0.000001"},
		{1.5e-7, "1.5e-7"},
		{1e20, "100000000000000000000"},
		{1e21, "1e+21"},
		{math.NaN(), "NaN"},
		{math.Inf(1), "+Inf"},
		{math.Inf(-1), "-Inf"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, formatValue(tc.in), "formatValue(%v)", tc.in)
	}
}
