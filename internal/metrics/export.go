package metrics

import (
	"math"
	"strconv"
	"strings"
)

// ExportLimit is the number of most recent points written per metric by
// Export. Older points stay in memory and still count towards Stats.
const ExportLimit = 100

var (
	helpEscaper  = strings.NewReplacer(`\`, `\\`, "\n", `\n`)
	valueEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, `"`, `\"`)
)

// Export renders every metric in registration order:
//
//	# HELP <name> <help>
//	# TYPE <name> <kind>
//	<name>{<k>="<v>",...} <value>
//
// followed by a blank line. The label block is left out for points without
// labels and label names are written in sorted order. Counter increments
// are written one line each, not summed.
func (r *Registry) Export() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	for _, s := range r.order {
		b.WriteString("# HELP ")
		b.WriteString(s.name)
		b.WriteByte(' ')
		b.WriteString(helpEscaper.Replace(s.help))
		b.WriteByte('\n')

		b.WriteString("# TYPE ")
		b.WriteString(s.name)
		b.WriteByte(' ')
		b.WriteString(string(s.kind))
		b.WriteByte('\n')

		start := max(0, len(s.points)-ExportLimit)
		for _, p := range s.points[start:] {
			writeSample(&b, s.name, p)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func writeSample(b *strings.Builder, name string, p Point) {
	b.WriteString(name)
	if len(p.Labels) > 0 {
		b.WriteByte('{')
		for i, k := range p.Labels.names() {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(k)
			b.WriteString(`="`)
			b.WriteString(valueEscaper.Replace(p.Labels[k]))
			b.WriteByte('"')
		}
		b.WriteByte('}')
	}
	b.WriteByte(' ')
	b.WriteString(formatValue(p.Value))
	b.WriteByte('\n')
}

// formatValue writes v the shortest way that round-trips: plain decimal for
// magnitudes in [1e-6, 1e21), exponent form outside it ("1e+21", "1.5e-7").
func formatValue(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	case v == 0:
		return "0"
	}

	if abs := math.Abs(v); abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}

	s := strconv.FormatFloat(v, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	digits := strings.TrimLeft(exp[1:], "0")
	return mant + "e" + exp[:1] + digits
}
