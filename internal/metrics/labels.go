package metrics

import (
	"sort"

	"github.com/prometheus/common/model"
)

// Labels is an unordered set of label name/value pairs attached to a point.
type Labels map[string]string

// clone copies l so callers can keep mutating their map after recording.
func (l Labels) clone() Labels {
	if len(l) == 0 {
		return nil
	}
	out := make(Labels, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// key returns the canonical identity of the label set: sorted names with
// quoted values. Two maps with equal contents always produce the same key.
func (l Labels) key() string {
	return l.labelSet().String()
}

func (l Labels) labelSet() model.LabelSet {
	ls := make(model.LabelSet, len(l))
	for k, v := range l {
		ls[model.LabelName(k)] = model.LabelValue(v)
	}
	return ls
}

// invalidName returns the first label name, in sorted order, that is not a
// valid Prometheus label name.
func (l Labels) invalidName() (string, bool) {
	for _, k := range l.names() {
		if !model.LabelName(k).IsValidLegacy() {
			return k, true
		}
	}
	return "", false
}

// names returns the label names in sorted order.
func (l Labels) names() []string {
	out := make([]string, 0, len(l))
	for k := range l {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
