// Package monitoring wires the metric registry, the health registry and the
// alert engine into one Monitor.
//
// New registers the default metric set so an export is never empty.
// Recording helpers such as RecordRequest translate application events into
// metric points. GenerateReport combines all three registries.
//
// Alerts provisioned from config can be bound to a metric statistic;
// Evaluate and RunEvaluation check them against live values.
package monitoring
