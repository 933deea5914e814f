package websocket

import (
	"log/slog"
)

// Hub fans events out to every live connection. The event is serialized
// once, the active set is snapshotted before iterating, and one recipient's
// failure never prevents delivery to the rest. No delivery confirmation, no
// retry, no ordering guarantee across recipients.
type Hub struct {
	registry *Registry
	logger   *slog.Logger
}

func NewHub(registry *Registry, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		registry: registry,
		logger:   logger,
	}
}

// Broadcast delivers the event to all currently active connections,
// including the originator if it is registered.
func (h *Hub) Broadcast(event *Event) {
	data, err := event.ToJSON()
	if err != nil {
		return
	}

	for _, client := range h.registry.ListActive() {
		if err := client.Send(data); err != nil {
			h.logger.Warn("broadcast delivery failed",
				"type", event.Type,
				"user_id", client.UserID,
				"client_id", client.ID,
				"error", err.Error(),
			)
		}
	}
}
