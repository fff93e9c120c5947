package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// collector exposes a Registry to a client_golang registry. It describes
// nothing up front, which makes it an unchecked collector: label sets are
// only known once points have been recorded.
type collector struct {
	reg *Registry
}

// NewCollector wraps reg as a prometheus.Collector.
func NewCollector(reg *Registry) prometheus.Collector {
	return &collector{reg: reg}
}

func (c *collector) Describe(chan<- *prometheus.Desc) {}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	mfs, _ := c.reg.Gather()
	for _, mf := range mfs {
		valueType := prometheus.GaugeValue
		if mf.GetType() == dto.MetricType_COUNTER {
			valueType = prometheus.CounterValue
		}

		for _, m := range mf.GetMetric() {
			names := make([]string, 0, len(m.GetLabel()))
			values := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				names = append(names, lp.GetName())
				values = append(values, lp.GetValue())
			}

			value := m.GetGauge().GetValue()
			if valueType == prometheus.CounterValue {
				value = m.GetCounter().GetValue()
			}

			desc := prometheus.NewDesc(mf.GetName(), mf.GetHelp(), names, nil)
			metric, err := prometheus.NewConstMetric(desc, valueType, value, values...)
			if err != nil {
				ch <- prometheus.NewInvalidMetric(desc, err)
				continue
			}
			ch <- metric
		}
	}
}
