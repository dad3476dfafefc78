package metrics

import (
	"time"
)

// Collector records what happens during administration sessions. Session is a
// short label such as "monitor", "add-server" or "start-server".
type Collector interface {
	// CommandSent records a command written to the tool
	CommandSent(session string)

	// PromptSeen records a prompt detected in the tool output
	PromptSeen(session string)

	// RemoteError records an error reported by the tool
	RemoteError(session string)

	// SessionFinished records the outcome and duration of a command sequence
	SessionFinished(session string, duration time.Duration, err error)
}

type noopCollector struct{}

func (n *noopCollector) CommandSent(session string) {}
func (n *noopCollector) PromptSeen(session string) {}
func (n *noopCollector) RemoteError(session string) {}
func (n *noopCollector) SessionFinished(session string, duration time.Duration, err error) {}

// NewNoopCollector creates a collector that drops everything
func NewNoopCollector() Collector {
	return &noopCollector{}
}
