package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurements written by the advisor.
const (
	MeasurementAggregate = "advisor_aggregate"
	MeasurementDeviation = "advisor_deviation"
	MeasurementRun       = "advisor_run"
)

// WritePoint writes a point stamped now. Writes are dropped silently when
// the client is closed.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}

// WriteAggregate records a day/night/total aggregate for a series. Nil
// values are omitted; an all-nil aggregate writes nothing.
func (c *Client) WriteAggregate(seriesID string, values map[string]*float64, ts time.Time) {
	fields := make(map[string]any, len(values))
	for k, v := range values {
		if v != nil {
			fields[k] = *v
		}
	}
	c.WritePointWithTime(MeasurementAggregate, map[string]string{"series": seriesID}, fields, ts)
}

// WriteDeviation records a detected deviation.
func (c *Client) WriteDeviation(category, kind, severity string, value, baseline float64, ts time.Time) {
	c.WritePointWithTime(MeasurementDeviation,
		map[string]string{"category": category, "type": kind, "severity": severity},
		map[string]any{"value": value, "baseline": baseline},
		ts,
	)
}

// WriteRunSummary records counts from one analysis run.
func (c *Client) WriteRunSummary(siteID string, deviations, suggested, executed int, duration time.Duration) {
	c.WritePoint(MeasurementRun,
		map[string]string{"site_id": siteID},
		map[string]any{
			"deviations":  deviations,
			"suggested":   suggested,
			"executed":    executed,
			"duration_ms": duration.Milliseconds(),
		},
	)
}
