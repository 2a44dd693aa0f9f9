// Package provision orchestrates the four-stage provisioning of a remote
// storefront: account creation, credential acquisition, catalog import, and
// ownership transfer. Each stage is driven by a slow, failure-prone external
// automation supplied by the caller as a step handler.
//
// Provision is designed as a library, not a service. Configure a store,
// register the four handlers, and submit jobs; the orchestrator sequences
// stages, threads an authenticated session between them, persists progress
// after every transition, and exposes snapshots for polling clients.
//
// # Architecture
//
// The job store interface has four backends (memory, Postgres via Bun,
// Redis, MongoDB); a single backend is the durable source of truth for job
// records. Stage execution runs through composable middleware (logging,
// panic recovery, timeouts, bounded retry, metrics, tracing). Lifecycle
// extensions observe job and stage events via the hook registry.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package provision
