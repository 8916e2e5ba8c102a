// Package history queries historical series from the configured
// time-series backend and turns them into baselines.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-advisor/internal/deadline"
	"github.com/nerrad567/gray-logic-advisor/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-advisor/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-advisor/internal/infrastructure/tsdb"
	"github.com/nerrad567/gray-logic-advisor/internal/series"
)

// Backend kinds.
const (
	BackendInfluxDB        = "influxdb"
	BackendVictoriaMetrics = "victoriametrics"
)

// Aggregation modes accepted in a Request.
const (
	ModeMean = "mean"
	ModeMin  = "min"
	ModeMax  = "max"
	ModeLast = "last"
	ModeSum  = "sum"
	ModeNone = "none"
)

// DefaultTimeout bounds every history query.
const DefaultTimeout = 10 * time.Second

var (
	// ErrUnsupportedBackend is returned by the querier built for an unknown backend kind.
	ErrUnsupportedBackend = errors.New("history: unsupported backend")

	// ErrInvalidRequest is returned for malformed requests.
	ErrInvalidRequest = errors.New("history: invalid request")
)

// Request is a generic time-range query for one series.
type Request struct {
	SeriesID        string
	Start           time.Time
	End             time.Time
	AggregationMode string
	StepMs          int64
}

// Validate checks the request shape.
func (r Request) Validate() error {
	switch {
	case r.SeriesID == "":
		return fmt.Errorf("%w: series id is empty", ErrInvalidRequest)
	case !r.End.After(r.Start):
		return fmt.Errorf("%w: end must be after start", ErrInvalidRequest)
	case r.StepMs < 0:
		return fmt.Errorf("%w: negative step", ErrInvalidRequest)
	}
	switch r.mode() {
	case ModeMean, ModeMin, ModeMax, ModeLast, ModeSum, ModeNone:
		return nil
	default:
		return fmt.Errorf("%w: unknown aggregation mode %q", ErrInvalidRequest, r.AggregationMode)
	}
}

func (r Request) mode() string {
	if r.AggregationMode == "" {
		return ModeMean
	}
	return r.AggregationMode
}

func (r Request) step() time.Duration {
	if r.StepMs <= 0 {
		return time.Hour
	}
	return time.Duration(r.StepMs) * time.Millisecond
}

// Querier runs a history request against one backend.
type Querier interface {
	Query(ctx context.Context, req Request) ([]series.Sample, error)
}

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// InfluxWindowQuerier is the subset of *influxdb.Client used here.
type InfluxWindowQuerier interface {
	QueryWindow(ctx context.Context, q influxdb.WindowQuery) ([]influxdb.Point, error)
}

// RangeQuerier is the subset of *tsdb.Client used here.
type RangeQuerier interface {
	QueryRangeSamples(ctx context.Context, query string, start, end time.Time, step time.Duration) ([]tsdb.Sample, error)
}

// Backends carries the connected clients a querier may use. Either may be nil.
type Backends struct {
	Influx   InfluxWindowQuerier
	Victoria RangeQuerier
}

// NewQuerier returns the querier for cfg.Backend. An unsupported kind, or
// a kind whose client is not connected, is logged as a warning and yields a
// querier that always fails with ErrUnsupportedBackend.
func NewQuerier(cfg config.HistoryConfig, b Backends, logger Logger) Querier {
	if logger == nil {
		logger = noopLogger{}
	}

	timeout := DefaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	var q Querier
	switch cfg.Backend {
	case BackendInfluxDB:
		if b.Influx != nil {
			q = &influxQuerier{client: b.Influx, measurement: cfg.Measurement, field: cfg.Field}
		}
	case BackendVictoriaMetrics:
		if b.Victoria != nil {
			q = &victoriaQuerier{client: b.Victoria, measurement: cfg.Measurement, field: cfg.Field}
		}
	}

	if q == nil {
		logger.Warn("history backend unavailable, baselines disabled", "backend", cfg.Backend)
		return unsupported{kind: cfg.Backend}
	}
	return &timed{inner: q, timeout: timeout}
}

type unsupported struct{ kind string }

func (u unsupported) Query(context.Context, Request) ([]series.Sample, error) {
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, u.kind)
}

// timed validates the request and races the backend against the timeout.
type timed struct {
	inner   Querier
	timeout time.Duration
}

func (t *timed) Query(ctx context.Context, req Request) ([]series.Sample, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return deadline.Race(ctx, t.timeout, func(ctx context.Context) ([]series.Sample, error) {
		return t.inner.Query(ctx, req)
	})
}

type influxQuerier struct {
	client      InfluxWindowQuerier
	measurement string
	field       string
}

func (q *influxQuerier) Query(ctx context.Context, req Request) ([]series.Sample, error) {
	points, err := q.client.QueryWindow(ctx, influxdb.WindowQuery{
		Measurement: q.measurement,
		Field:       q.field,
		SeriesID:    req.SeriesID,
		Start:       req.Start,
		End:         req.End,
		Every:       req.step(),
		Fn:          req.mode(),
	})
	if err != nil {
		return nil, fmt.Errorf("querying influxdb for %s: %w", req.SeriesID, err)
	}

	out := make([]series.Sample, 0, len(points))
	for _, p := range points {
		out = append(out, series.Sample{Time: p.Time, Value: p.Value})
	}
	return out, nil
}

type victoriaQuerier struct {
	client      RangeQuerier
	measurement string
	field       string
}

func (q *victoriaQuerier) Query(ctx context.Context, req Request) ([]series.Sample, error) {
	fn := req.mode()
	if fn == ModeNone {
		fn = ""
	}
	step := req.step()
	query := tsdb.Selector(q.measurement, q.field, req.SeriesID, fn, step)

	samples, err := q.client.QueryRangeSamples(ctx, query, req.Start, req.End, step)
	if err != nil {
		return nil, fmt.Errorf("querying victoriametrics for %s: %w", req.SeriesID, err)
	}

	out := make([]series.Sample, 0, len(samples))
	for _, s := range samples {
		out = append(out, series.Sample{Time: s.Time, Value: s.Value})
	}
	return out, nil
}
