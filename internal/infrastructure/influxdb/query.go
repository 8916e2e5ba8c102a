package influxdb

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// WindowQuery describes a windowed aggregation over one series.
//
// The series is addressed by its "measurement" tag, optionally prefixed by a
// device id ("battery-01/soc" filters device_id and measurement).
type WindowQuery struct {
	Measurement string // Influx _measurement, e.g. "device_metrics"
	Field       string // Influx _field, e.g. "value"
	SeriesID    string
	Start       time.Time
	End         time.Time
	Every       time.Duration
	Fn          string // mean, max, min, sum, last, or none for raw points
}

// Point is one aggregated value.
type Point struct {
	Time  time.Time
	Value float64
}

var allowedFns = map[string]bool{"mean": true, "max": true, "min": true, "sum": true, "last": true, "none": true}

// buildFluxQuery renders q as a Flux script.
func buildFluxQuery(bucket string, q WindowQuery) (string, error) {
	if q.SeriesID == "" {
		return "", fmt.Errorf("%w: series id is empty", ErrQueryFailed)
	}
	if !q.End.After(q.Start) {
		return "", fmt.Errorf("%w: end must be after start", ErrQueryFailed)
	}
	fn := q.Fn
	if fn == "" {
		fn = "mean"
	}
	if !allowedFns[fn] {
		return "", fmt.Errorf("%w: unsupported aggregation %q", ErrQueryFailed, fn)
	}
	every := q.Every
	if every <= 0 {
		every = time.Hour
	}

	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %q)\n", bucket)
	fmt.Fprintf(&b, "  |> range(start: %s, stop: %s)\n",
		q.Start.UTC().Format(time.RFC3339), q.End.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r._measurement == %q and r._field == %q)\n", q.Measurement, q.Field)

	if device, metric, ok := strings.Cut(q.SeriesID, "/"); ok {
		fmt.Fprintf(&b, "  |> filter(fn: (r) => r.device_id == %q and r.measurement == %q)\n", device, metric)
	} else {
		fmt.Fprintf(&b, "  |> filter(fn: (r) => r.measurement == %q)\n", q.SeriesID)
	}

	if fn != "none" {
		fmt.Fprintf(&b, "  |> aggregateWindow(every: %s, fn: %s, timeSrc: \"_start\", createEmpty: false)\n", fluxDuration(every), fn)
	}
	b.WriteString("  |> keep(columns: [\"_time\", \"_value\"])\n")
	return b.String(), nil
}

// fluxDuration formats d as an exact Flux duration literal in the coarsest
// unit that divides it.
func fluxDuration(d time.Duration) string {
	switch {
	case d%time.Second == 0:
		return fmt.Sprintf("%ds", int64(d/time.Second))
	case d%time.Millisecond == 0:
		return fmt.Sprintf("%dms", int64(d/time.Millisecond))
	case d%time.Microsecond == 0:
		return fmt.Sprintf("%dus", int64(d/time.Microsecond))
	default:
		return fmt.Sprintf("%dns", int64(d))
	}
}

// QueryWindow runs a windowed aggregation and returns the points in time order.
func (c *Client) QueryWindow(ctx context.Context, q WindowQuery) ([]Point, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	flux, err := buildFluxQuery(c.cfg.Bucket, q)
	if err != nil {
		return nil, err
	}

	result, err := c.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer result.Close()

	var points []Point
	for result.Next() {
		rec := result.Record()
		v, ok := toFloat(rec.Value())
		if !ok {
			continue
		}
		points = append(points, Point{Time: rec.Time(), Value: v})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	return points, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
