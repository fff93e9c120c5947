// Package metrics holds the in-process metric registry.
//
// registry.go owns named counters and gauges. Every counter increment is kept
// as its own point; a gauge keeps only the latest point per label set.
// Points are never evicted, Stats reads all of them.
//
// export.go renders the registry in the line-oriented exposition format,
// emitting at most the last ExportLimit points per metric.
//
// gather.go and collector.go expose the same data in the Prometheus data
// model (counters summed, gauges latest) so a host process can encode it
// with expfmt or register it with a client_golang registry.
package metrics
