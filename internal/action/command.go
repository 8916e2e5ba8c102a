package action

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/gray-logic-advisor/internal/infrastructure/mqtt"
)

// MQTTClient is the interface for publishing action commands.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// CommandHandler publishes an approved action to
// graylogic/advisor/command/{category}, where an external bridge performs
// the effect.
type CommandHandler struct {
	mqtt   MQTTClient
	source string
}

// NewCommandHandler creates a handler publishing through client.
func NewCommandHandler(client MQTTClient, source string) *CommandHandler {
	if source == "" {
		source = "advisor"
	}
	return &CommandHandler{mqtt: client, source: source}
}

// Name implements Handler.
func (h *CommandHandler) Name() string { return "mqtt" }

// Execute implements Handler.
func (h *CommandHandler) Execute(_ context.Context, a Action) error {
	if h.mqtt == nil {
		return ErrMQTTUnavailable
	}

	payload, err := json.Marshal(map[string]any{
		"id":            a.ID,
		"category":      a.Category,
		"type":          a.Type,
		"learning_key":  a.LearningKey,
		"priority":      a.Priority,
		"reason":        a.Reason,
		"modification":  a.Modification,
		"deviation_ref": a.DeviationRef,
		"source":        h.source,
	})
	if err != nil {
		return fmt.Errorf("marshalling command: %w", err)
	}

	topic := mqtt.Topics{}.ActionCommand(string(a.Category))
	if err := h.mqtt.Publish(topic, payload, 1, false); err != nil {
		return fmt.Errorf("publishing to %q: %w", topic, err)
	}
	return nil
}
