// Package health aggregates local health checks and external dependency
// probes into a single healthy / degraded / unhealthy verdict.
//
// Local checks are pushed: RegisterCheck hands out a Reporter and each call
// overwrites the check's status. Dependencies are pulled: CheckDependency
// runs one bounded probe through a Prober (HTTP by default) and records up,
// degraded or down. Poll runs those probes on a ticker for callers that want
// them scheduled.
package health
