package kernel

import "github.com/tailored-agentic-units/chainspeak/observability"

// Kernel event types emitted during a turn.
const (
	EventTurnStart      observability.EventType = "kernel.turn.start"
	EventTurnComplete   observability.EventType = "kernel.turn.complete"
	EventTurnFailed     observability.EventType = "kernel.turn.failed"
	EventToolCall       observability.EventType = "kernel.tool.call"
	EventToolComplete   observability.EventType = "kernel.tool.complete"
	EventResponse       observability.EventType = "kernel.response"
	EventDeliveryFailed observability.EventType = "kernel.delivery.failed"
	EventPersistFailed  observability.EventType = "kernel.persist.failed"
)
