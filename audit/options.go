package audit

import "log/slog"

// Option configures a Trail.
type Option func(*Trail)

// WithActions restricts the hook to emit only the listed actions.
// By default all actions are enabled. Unknown actions are silently ignored.
//
// Example:
//
//	audit.New(recorder,
//	    audit.WithActions(
//	        audit.ActionStoreCompleted,
//	        audit.ActionStoreFailed,
//	    ),
//	)
func WithActions(actions ...string) Option {
	return func(t *Trail) {
		t.enabled = make(map[string]bool, len(actions))
		for _, a := range actions {
			t.enabled[a] = true
		}
	}
}

// WithLogger sets a custom logger for the hook.
func WithLogger(l *slog.Logger) Option {
	return func(t *Trail) { t.logger = l }
}
