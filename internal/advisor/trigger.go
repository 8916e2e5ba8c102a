package advisor

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-advisor/internal/approval"
	"github.com/nerrad567/gray-logic-advisor/internal/scheduler"
)

// TriggerRunFlag is the trigger name for runs requested over MQTT.
const TriggerRunFlag = "run-flag"

var flagFalse = []byte("false")

// ListenRunFlag subscribes to the run flag. Observing true publishes a
// retained false and starts one run, so every set of the flag triggers at
// most once.
func (a *Advisor) ListenRunFlag(ctx context.Context) error {
	if a.deps.MQTT == nil {
		return nil
	}
	topic := a.deps.RunFlagTopic
	return a.deps.MQTT.Subscribe(topic, 1, func(_ string, payload []byte) error {
		if !parseFlag(payload) {
			return nil
		}
		if err := a.deps.MQTT.Publish(topic, flagFalse, 1, true); err != nil {
			a.logger.Warn("failed to reset run flag", "error", err)
		}
		a.Start(ctx, TriggerRunFlag)
		return nil
	})
}

// parseFlag accepts JSON booleans, quoted or bare, and 1/on.
func parseFlag(payload []byte) bool {
	var b bool
	if err := json.Unmarshal(payload, &b); err == nil {
		return b
	}
	s := strings.Trim(strings.TrimSpace(string(payload)), `"`)
	switch strings.ToLower(s) {
	case "true", "1", "on":
		return true
	}
	return false
}

// ListenApproval routes inbound approval messages from ch to the current
// session.
func (a *Advisor) ListenApproval(ctx context.Context, ch *approval.MQTTChannel) error {
	return ch.Listen(func(in approval.Inbound) {
		a.HandleInbound(ctx, in)
	})
}

// RunPeriodic runs the pipeline every interval until ctx ends.
func (a *Advisor) RunPeriodic(ctx context.Context, interval time.Duration) {
	scheduler.Periodic(ctx, interval, func(ctx context.Context) {
		a.Run(ctx, "timer")
	})
}
