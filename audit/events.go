package audit

// Audit event actions. Each constant corresponds to one lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionStoreRequested = "store.requested"
	ActionStoreCompleted = "store.completed"
	ActionStoreFailed    = "store.failed"
	ActionStageStarted   = "stage.started"
	ActionStageCompleted = "stage.completed"
	ActionStageFailed    = "stage.failed"
)

// Audit event categories group related actions.
const (
	CategoryStore = "provision.store"
	CategoryStage = "provision.stage"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceStore = "store_request"
)

// AllActions returns every action this hook can emit.
func AllActions() []string {
	return []string{
		ActionStoreRequested,
		ActionStoreCompleted,
		ActionStoreFailed,
		ActionStageStarted,
		ActionStageCompleted,
		ActionStageFailed,
	}
}
