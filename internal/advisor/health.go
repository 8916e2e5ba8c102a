package advisor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-advisor/internal/infrastructure/mqtt"
)

// Health states published by HealthReporter.
const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
	HealthStopping = "stopping"
)

// DefaultHealthInterval is how often health is published.
const DefaultHealthInterval = 30 * time.Second

// HealthMessage is the retained health payload.
type HealthMessage struct {
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Site      string    `json:"site"`
	Version   string    `json:"version"`
	Uptime    int64     `json:"uptime_seconds"`
	Run       Status    `json:"run"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthReporter publishes the advisor's run state at a fixed interval.
type HealthReporter struct {
	adv       *Advisor
	publisher MQTTClient
	version   string
	interval  time.Duration
	startTime time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHealthReporter creates a reporter. A zero interval means
// DefaultHealthInterval.
func NewHealthReporter(adv *Advisor, publisher MQTTClient, version string, interval time.Duration) *HealthReporter {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	return &HealthReporter{
		adv:       adv,
		publisher: publisher,
		version:   version,
		interval:  interval,
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
}

// Start begins periodic reporting. Call Stop to shut down.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status. Safe to
// call more than once.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		//nolint:errcheck // Best-effort during shutdown
		h.publish(HealthStopping, "")
	})
}

// PublishNow publishes the current health immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publish(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.adv.logger.Warn("failed to publish initial health", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.adv.logger.Warn("failed to publish health", "error", err)
			}
		}
	}
}

// determineStatus is degraded while the latest run ended in error.
func (h *HealthReporter) determineStatus() (string, string) {
	if st := h.adv.Status(); st.LastError != "" {
		return HealthDegraded, "last run failed"
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) publish(status, reason string) error {
	if h.publisher == nil {
		return nil
	}
	msg := HealthMessage{
		Status:    status,
		Reason:    reason,
		Site:      h.adv.deps.Site,
		Version:   h.version,
		Uptime:    int64(time.Since(h.startTime).Seconds()),
		Run:       h.adv.Status(),
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(mqtt.Topics{}.AdvisorHealth(), payload, 1, true)
}
