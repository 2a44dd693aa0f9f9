package webhook

// Provisioning lifecycle event types. Each constant maps to one lifecycle
// hook and is sent as the envelope type and X-Provision-Event header.
const (
	EventStoreRequested = "provision.store.requested"
	EventStoreCompleted = "provision.store.completed"
	EventStoreFailed    = "provision.store.failed"
	EventStageStarted   = "provision.stage.started"
	EventStageCompleted = "provision.stage.completed"
	EventStageFailed    = "provision.stage.failed"
)

// AllEvents returns every event type this hook can emit.
func AllEvents() []string {
	return []string{
		EventStoreRequested,
		EventStoreCompleted,
		EventStoreFailed,
		EventStageStarted,
		EventStageCompleted,
		EventStageFailed,
	}
}
