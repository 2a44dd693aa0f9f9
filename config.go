package provision

import "time"

// Config holds tuning knobs shared by the runner and orchestrator.
type Config struct {
	// StageTimeout bounds a single stage's external interaction.
	// Zero disables the deadline.
	StageTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for in-flight jobs
	// during graceful shutdown. Executions are drained, never cancelled
	// mid-stage — external consoles are not interruptible.
	ShutdownTimeout time.Duration

	// ResumeOnStart re-submits every non-terminal job at boot. A resumed
	// execution restarts from the last committed stage with a fresh
	// session.
	ResumeOnStart bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		StageTimeout:    5 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		ResumeOnStart:   false,
	}
}
