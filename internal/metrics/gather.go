package metrics

import (
	"fmt"
	"io"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Gather returns the registry in the Prometheus data model, one family per
// metric sorted by name. Counter points sharing a label set are summed;
// gauges carry the latest value per label set. Metrics without points are
// left out. Registry satisfies prometheus.Gatherer.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*dto.MetricFamily, 0, len(r.order))
	for _, s := range r.order {
		if len(s.points) == 0 {
			continue
		}
		out = append(out, s.family())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out, nil
}

// family aggregates s by label key, keeping first-seen order.
func (s *series) family() *dto.MetricFamily {
	type agg struct {
		labels Labels
		value  float64
	}
	var (
		order []string
		byKey = make(map[string]*agg)
	)
	for i, p := range s.points {
		key := s.keys[i]
		a, ok := byKey[key]
		if !ok {
			a = &agg{labels: p.Labels}
			byKey[key] = a
			order = append(order, key)
		}
		if s.kind == KindCounter {
			a.value += p.Value
		} else {
			a.value = p.Value
		}
	}

	mf := &dto.MetricFamily{
		Name: ptr(s.name),
		Help: ptr(s.help),
		Type: s.kind.metricType().Enum(),
	}
	for _, key := range order {
		a := byKey[key]
		m := &dto.Metric{Label: labelPairs(a.labels)}
		if s.kind == KindCounter {
			m.Counter = &dto.Counter{Value: ptr(a.value)}
		} else {
			m.Gauge = &dto.Gauge{Value: ptr(a.value)}
		}
		mf.Metric = append(mf.Metric, m)
	}
	return mf
}

// WriteText encodes Gather's output in format, e.g.
// expfmt.NewFormat(expfmt.TypeTextPlain).
func (r *Registry) WriteText(w io.Writer, format expfmt.Format) error {
	mfs, err := r.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, format)
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	if closer, ok := enc.(expfmt.Closer); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("metrics: close encoder: %w", err)
		}
	}
	return nil
}

func (k Kind) metricType() dto.MetricType {
	if k == KindCounter {
		return dto.MetricType_COUNTER
	}
	return dto.MetricType_GAUGE
}

func labelPairs(l Labels) []*dto.LabelPair {
	if len(l) == 0 {
		return nil
	}
	out := make([]*dto.LabelPair, 0, len(l))
	for _, k := range l.names() {
		out = append(out, &dto.LabelPair{Name: ptr(k), Value: ptr(l[k])})
	}
	return out
}

func ptr[T any](v T) *T { return &v }
