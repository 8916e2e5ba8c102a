// Package readings keeps the latest live value of each advisor metric,
// fed from bridge state topics on MQTT.
package readings

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-advisor/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-advisor/internal/infrastructure/mqtt"
)

// ErrNoValue is returned when a payload carries no usable number.
var ErrNoValue = errors.New("readings: payload has no numeric value")

// Readings is a point-in-time snapshot of live values. Nil means unknown.
type Readings struct {
	Consumption *float64  `json:"consumption,omitempty"`
	WaterFlow   *float64  `json:"waterFlow,omitempty"`
	BatterySOC  *float64  `json:"batterySoc,omitempty"`
	OutsideTemp *float64  `json:"outsideTemp,omitempty"`
	GridImport  *float64  `json:"gridImport,omitempty"`
	PVPower     *float64  `json:"pvPower,omitempty"`
	At          time.Time `json:"at"`
}

// Get returns the value for a metric name (see config.Metric*).
func (r Readings) Get(metric string) *float64 {
	switch metric {
	case config.MetricConsumption:
		return r.Consumption
	case config.MetricWaterFlow:
		return r.WaterFlow
	case config.MetricBatterySOC:
		return r.BatterySOC
	case config.MetricOutsideTemp:
		return r.OutsideTemp
	case config.MetricGridImport:
		return r.GridImport
	case config.MetricPVPower:
		return r.PVPower
	}
	return nil
}

func (r *Readings) set(metric string, v float64) {
	p := &v
	switch metric {
	case config.MetricConsumption:
		r.Consumption = p
	case config.MetricWaterFlow:
		r.WaterFlow = p
	case config.MetricBatterySOC:
		r.BatterySOC = p
	case config.MetricOutsideTemp:
		r.OutsideTemp = p
	case config.MetricGridImport:
		r.GridImport = p
	case config.MetricPVPower:
		r.PVPower = p
	}
}

// Map returns the known values keyed by metric name.
func (r Readings) Map() map[string]float64 {
	out := make(map[string]float64)
	for _, m := range []string{
		config.MetricConsumption, config.MetricWaterFlow, config.MetricBatterySOC,
		config.MetricOutsideTemp, config.MetricGridImport, config.MetricPVPower,
	} {
		if v := r.Get(m); v != nil {
			out[m] = *v
		}
	}
	return out
}

// Float returns a pointer to v, for building snapshots in tests and handlers.
func Float(v float64) *float64 {
	return &v
}

// Subscriber is the subset of the MQTT client used to attach the cache.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Cache holds the latest value per metric.
//
// Thread Safety: safe for concurrent use; MQTT handlers write while the
// pipeline takes snapshots.
type Cache struct {
	sources map[string]config.ReadingSource // metric → source
	byTopic map[string][]string             // topic → metrics

	mu      sync.RWMutex
	current Readings
	now     func() time.Time
}

// NewCache creates a cache for the configured sources.
func NewCache(sources config.ReadingsConfig) *Cache {
	c := &Cache{
		sources: make(map[string]config.ReadingSource, len(sources)),
		byTopic: make(map[string][]string),
		now:     time.Now,
	}
	for metric, src := range sources {
		c.sources[metric] = src
		if src.Topic != "" {
			c.byTopic[src.Topic] = append(c.byTopic[src.Topic], metric)
		}
	}
	return c
}

// Attach subscribes to every configured topic.
func (c *Cache) Attach(sub Subscriber, qos byte) error {
	for topic := range c.byTopic {
		if err := sub.Subscribe(topic, qos, c.HandleMessage); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}
	return nil
}

// HandleMessage updates every metric sourced from topic.
func (c *Cache) HandleMessage(topic string, payload []byte) error {
	metrics := c.byTopic[topic]
	if len(metrics) == 0 {
		return nil
	}

	var firstErr error
	for _, metric := range metrics {
		v, err := extractValue(payload, c.sources[metric].Field)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s on %s: %w", metric, topic, err)
			}
			continue
		}
		c.Set(metric, v)
	}
	return firstErr
}

// Set records a value directly.
func (c *Cache) Set(metric string, v float64) {
	c.mu.Lock()
	c.current.set(metric, v)
	c.current.At = c.now().UTC()
	c.mu.Unlock()
}

// Snapshot returns a copy of the current readings.
func (c *Cache) Snapshot() Readings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := c.current
	for _, p := range []**float64{&snap.Consumption, &snap.WaterFlow, &snap.BatterySOC, &snap.OutsideTemp, &snap.GridImport, &snap.PVPower} {
		if *p != nil {
			v := **p
			*p = &v
		}
	}
	return snap
}

// SeriesIDs returns metric → history series id for every configured source.
func (c *Cache) SeriesIDs() map[string]string {
	out := make(map[string]string, len(c.sources))
	for metric, src := range c.sources {
		if src.Series != "" {
			out[metric] = src.Series
		}
	}
	return out
}

// extractValue reads a number from a bare JSON/text number, from
// payload[field], from payload["state"][field], or from payload["value"].
func extractValue(payload []byte, field string) (float64, error) {
	trimmed := strings.TrimSpace(string(payload))
	if v, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return finite(v)
	}

	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNoValue, err)
	}

	keys := []string{"value"}
	if field != "" {
		keys = []string{field}
	}
	for _, key := range keys {
		if v, ok := numberAt(obj, key); ok {
			return finite(v)
		}
		if state, ok := obj["state"].(map[string]any); ok {
			if v, ok := numberAt(state, key); ok {
				return finite(v)
			}
		}
	}
	return 0, ErrNoValue
}

func numberAt(obj map[string]any, key string) (float64, bool) {
	switch v := obj[key].(type) {
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

func finite(v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrNoValue
	}
	return v, nil
}
