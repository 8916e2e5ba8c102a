package action

import "errors"

var (
	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("action: handler panicked")

	// ErrMQTTUnavailable is returned by the command handler without a client.
	ErrMQTTUnavailable = errors.New("action: MQTT unavailable")
)
