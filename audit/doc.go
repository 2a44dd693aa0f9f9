// Package audit bridges provisioning lifecycle events to an audit trail
// backend.
//
// Every job and stage lifecycle hook emits a structured audit event
// through the [Recorder] interface. The hook assigns appropriate severity
// levels (info for normal operations, critical for terminal failures) and
// rich metadata (store name, stage, progress, elapsed time, errors).
//
// # Selective filtering
//
//	audit.New(recorder,
//	    audit.WithActions(
//	        audit.ActionStoreFailed,
//	        audit.ActionStageFailed,
//	    ),
//	)
package audit
