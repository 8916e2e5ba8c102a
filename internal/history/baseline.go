package history

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-advisor/internal/series"
)

// Baseliner builds per-metric baselines from history.
type Baseliner struct {
	querier  Querier
	boundary series.Boundary
	loc      *time.Location
	lookback time.Duration
	step     time.Duration
	logger   Logger
}

// NewBaseliner creates a Baseliner. lookback and step fall back to seven
// days and one hour when zero.
func NewBaseliner(q Querier, boundary series.Boundary, loc *time.Location, lookback, step time.Duration, logger Logger) *Baseliner {
	if logger == nil {
		logger = noopLogger{}
	}
	if lookback <= 0 {
		lookback = 7 * 24 * time.Hour
	}
	if step <= 0 {
		step = time.Hour
	}
	return &Baseliner{querier: q, boundary: boundary, loc: loc, lookback: lookback, step: step, logger: logger}
}

// Baselines queries each metric's series (metric name → series id) over
// the lookback window ending at now. A failed or empty query leaves the
// metric out of the result; callers treat that as "no baseline".
func (b *Baseliner) Baselines(ctx context.Context, now time.Time, seriesByMetric map[string]string) map[string]series.Aggregate {
	out := make(map[string]series.Aggregate, len(seriesByMetric))

	for metric, seriesID := range seriesByMetric {
		if seriesID == "" {
			continue
		}
		samples, err := b.querier.Query(ctx, Request{
			SeriesID:        seriesID,
			Start:           now.Add(-b.lookback),
			End:             now,
			AggregationMode: ModeMean,
			StepMs:          b.step.Milliseconds(),
		})
		if err != nil {
			b.logger.Warn("baseline query failed", "metric", metric, "series", seriesID, "error", err)
			continue
		}

		agg := series.Summarize(samples, b.boundary, b.loc)
		if agg.Empty() {
			b.logger.Debug("baseline has no data", "metric", metric, "series", seriesID)
			continue
		}
		out[metric] = agg
	}
	return out
}
