package approval

import "context"

// Control is one inline button attached to an outbound message.
type Control struct {
	Label string `json:"label"`
	Token string `json:"token"`
}

// Outbound is a message to the operator.
type Outbound struct {
	Text     string    `json:"text"`
	Controls []Control `json:"controls,omitempty"`
}

// Inbound is a message from the operator: either a callback token from a
// control or free text.
type Inbound struct {
	Callback string `json:"callback,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Channel is the human interaction transport.
type Channel interface {
	// Send delivers msg and returns a reference usable with Edit, or "" if
	// the transport cannot address sent messages.
	Send(ctx context.Context, msg Outbound) (string, error)
	// Edit replaces the text of a previously sent message.
	Edit(ctx context.Context, ref, text string) error
}
