// Package observability provides a lifecycle metrics hook that records
// system-wide provisioning counters via OpenTelemetry. Register it on the
// hook registry to automatically track request rates, completion counts,
// failure rates, and per-stage outcomes.
package observability
