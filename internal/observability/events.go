package observability

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// Routing keys for the lifecycle event stream.
const (
	RoutingWSEvents   = "ws_events.rooms"
	RoutingModeration = "moderation.actions"
)

// ConnPayload is the identity block attached to ws lifecycle events.
type ConnPayload struct {
	ConnID     string `json:"conn_id"`
	ActorID    string `json:"actor_id"`
	Role       string `json:"role"`
	IP         string `json:"ip,omitempty"`
	Client     string `json:"client,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason,omitempty"`
}
