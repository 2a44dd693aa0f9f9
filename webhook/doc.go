// Package webhook delivers provisioning lifecycle events to an external
// HTTP endpoint, typically the client system that requested the store.
//
// Each lifecycle hook POSTs a JSON envelope to the configured endpoint
// with the event type in the X-Provision-Event header. Delivery failures
// are reported to the hook registry, which logs them; they never block
// the provisioning pipeline.
package webhook
