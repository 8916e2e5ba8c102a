package advisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-advisor/internal/approval"
	"github.com/nerrad567/gray-logic-advisor/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-advisor/internal/report"
	"github.com/nerrad567/gray-logic-advisor/internal/store"
)

// ErrNoReportTarget is returned when the report has nowhere to go.
var ErrNoReportTarget = errors.New("advisor: no report channel configured")

// SendReport renders the latest snapshot and delivers it through the
// approval channel and the MQTT report topic. It fails only when every
// configured target failed, so the daily stamp is not written.
func (a *Advisor) SendReport(ctx context.Context) error {
	if a.deps.Renderer == nil {
		return ErrNoReportTarget
	}

	snap, err := a.latestSnapshot(ctx)
	if err != nil {
		return err
	}

	text, err := a.deps.Renderer.Render(snap, a.now())
	if err != nil {
		return err
	}

	var errs []error
	delivered := false

	if a.deps.Channel != nil {
		if _, err := a.deps.Channel.Send(ctx, approval.Outbound{Text: text}); err != nil {
			errs = append(errs, fmt.Errorf("approval channel: %w", err))
		} else {
			delivered = true
		}
	}
	if a.deps.MQTT != nil {
		if err := a.deps.MQTT.Publish(mqtt.Topics{}.Report(), []byte(text), 1, true); err != nil {
			errs = append(errs, fmt.Errorf("mqtt: %w", err))
		} else {
			delivered = true
		}
	}

	if delivered {
		if len(errs) > 0 {
			a.logger.Warn("daily report partially delivered", "error", errors.Join(errs...))
		}
		return nil
	}
	if len(errs) == 0 {
		return ErrNoReportTarget
	}
	return errors.Join(errs...)
}

// latestSnapshot prefers the in-memory snapshot and falls back to the
// persisted one after a restart.
func (a *Advisor) latestSnapshot(ctx context.Context) (report.Snapshot, error) {
	a.mu.RLock()
	snap := a.snapshot
	a.mu.RUnlock()
	if !snap.GeneratedAt.IsZero() {
		return snap, nil
	}

	if _, err := a.deps.Store.Load(ctx, store.KeySnapshot, &snap); err != nil {
		return report.Snapshot{}, fmt.Errorf("loading snapshot: %w", err)
	}
	return snap, nil
}
