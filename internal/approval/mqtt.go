package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-advisor/internal/infrastructure/mqtt"
)

// ErrNoChatID is returned when the MQTT channel has no chat configured.
var ErrNoChatID = errors.New("approval: chat id is required")

// MQTTClient is the subset of the MQTT client used by MQTTChannel.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// MQTTChannel exchanges approval messages with a chat bridge over MQTT.
//
//	graylogic/advisor/approval/{chat}/out   outbound messages with controls
//	graylogic/advisor/approval/{chat}/edit  edits by message ref
//	graylogic/advisor/approval/{chat}/in    callbacks and free text
type MQTTChannel struct {
	client MQTTClient
	chatID string
	topics mqtt.Topics
}

// NewMQTTChannel creates a channel for chatID.
func NewMQTTChannel(client MQTTClient, chatID string) (*MQTTChannel, error) {
	if strings.TrimSpace(chatID) == "" {
		return nil, ErrNoChatID
	}
	return &MQTTChannel{client: client, chatID: chatID}, nil
}

type outboundPayload struct {
	Ref      string    `json:"ref"`
	Text     string    `json:"text"`
	Controls []Control `json:"controls,omitempty"`
}

// Send implements Channel.
func (c *MQTTChannel) Send(_ context.Context, msg Outbound) (string, error) {
	ref := uuid.NewString()
	payload, err := json.Marshal(outboundPayload{Ref: ref, Text: msg.Text, Controls: msg.Controls})
	if err != nil {
		return "", fmt.Errorf("marshalling message: %w", err)
	}
	if err := c.client.Publish(c.topics.ApprovalOutbound(c.chatID), payload, 1, false); err != nil {
		return "", err
	}
	return ref, nil
}

// Edit implements Channel.
func (c *MQTTChannel) Edit(_ context.Context, ref, text string) error {
	payload, err := json.Marshal(outboundPayload{Ref: ref, Text: text})
	if err != nil {
		return fmt.Errorf("marshalling edit: %w", err)
	}
	return c.client.Publish(c.topics.ApprovalEdit(c.chatID), payload, 1, false)
}

// Listen subscribes to inbound messages. Payloads are either JSON
// ({"callback": ..., "text": ...}) or plain text.
func (c *MQTTChannel) Listen(handler func(Inbound)) error {
	return c.client.Subscribe(c.topics.ApprovalInbound(c.chatID), 1, func(_ string, payload []byte) error {
		handler(DecodeInbound(payload))
		return nil
	})
}

// DecodeInbound interprets an inbound payload.
func DecodeInbound(payload []byte) Inbound {
	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "{") {
		var in Inbound
		if err := json.Unmarshal([]byte(trimmed), &in); err == nil {
			return in
		}
	}
	if strings.HasPrefix(trimmed, TokenPrefix) {
		return Inbound{Callback: trimmed}
	}
	return Inbound{Text: trimmed}
}
