package influxdb

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-advisor/internal/infrastructure/config"
)

// testConfig returns a configuration for a local dev InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "graylogic-dev-token",
		Org:           "graylogic",
		Bucket:        "metrics",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// connectOrSkip connects to the dev InfluxDB or skips the test.
func connectOrSkip(t *testing.T) *Client {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		t.Skip("set RUN_INTEGRATION=1 to run against a live InfluxDB")
	}
	client, err := Connect(testConfig())
	if err != nil {
		t.Skipf("InfluxDB not available: %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	if _, err := Connect(cfg); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestClosedClient(t *testing.T) {
	c := &Client{}

	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if _, err := c.QueryWindow(context.Background(), WindowQuery{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("QueryWindow() error = %v, want ErrNotConnected", err)
	}

	// Writes on a closed client are no-ops rather than panics.
	v := 1.0
	c.WriteAggregate("soc", map[string]*float64{"day": &v}, time.Now())
	c.WriteRunSummary("site", 1, 1, 0, time.Second)
	c.Flush()
}

func TestFluxDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{time.Hour, "3600s"},
		{90 * time.Second, "90s"},
		{1500 * time.Millisecond, "1500ms"},
		{250 * time.Millisecond, "250ms"},
		{750 * time.Microsecond, "750us"},
		{42 * time.Nanosecond, "42ns"},
	}
	for _, tt := range tests {
		if got := fluxDuration(tt.in); got != tt.want {
			t.Errorf("fluxDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildFluxQuery(t *testing.T) {
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(7 * 24 * time.Hour)

	t.Run("plain series", func(t *testing.T) {
		flux, err := buildFluxQuery("metrics", WindowQuery{
			Measurement: "device_metrics",
			Field:       "value",
			SeriesID:    "water_flow",
			Start:       start,
			End:         end,
			Every:       time.Hour,
			Fn:          "max",
		})
		if err != nil {
			t.Fatalf("buildFluxQuery() error = %v", err)
		}
		for _, want := range []string{
			`from(bucket: "metrics")`,
			"range(start: 2026-10-01T00:00:00Z, stop: 2026-10-08T00:00:00Z)",
			`r.measurement == "water_flow"`,
			`aggregateWindow(every: 3600s, fn: max, timeSrc: "_start", createEmpty: false)`,
		} {
			if !strings.Contains(flux, want) {
				t.Errorf("flux missing %q:\n%s", want, flux)
			}
		}
	})

	t.Run("device scoped series defaults to mean", func(t *testing.T) {
		flux, err := buildFluxQuery("metrics", WindowQuery{
			Measurement: "device_metrics",
			Field:       "value",
			SeriesID:    "battery-01/soc",
			Start:       start,
			End:         end,
		})
		if err != nil {
			t.Fatalf("buildFluxQuery() error = %v", err)
		}
		if !strings.Contains(flux, `r.device_id == "battery-01" and r.measurement == "soc"`) {
			t.Errorf("device filter missing:\n%s", flux)
		}
		if !strings.Contains(flux, "fn: mean") {
			t.Errorf("default fn should be mean:\n%s", flux)
		}
	})

	t.Run("sub-second step keeps its length", func(t *testing.T) {
		flux, err := buildFluxQuery("metrics", WindowQuery{SeriesID: "soc", Start: start, End: end, Every: 500 * time.Millisecond})
		if err != nil {
			t.Fatalf("buildFluxQuery() error = %v", err)
		}
		if !strings.Contains(flux, "every: 500ms,") {
			t.Errorf("step should render as 500ms:\n%s", flux)
		}
	})

	t.Run("raw points skip aggregation", func(t *testing.T) {
		flux, err := buildFluxQuery("metrics", WindowQuery{SeriesID: "soc", Start: start, End: end, Fn: "none"})
		if err != nil {
			t.Fatalf("buildFluxQuery() error = %v", err)
		}
		if strings.Contains(flux, "aggregateWindow") {
			t.Errorf("raw query should not aggregate:\n%s", flux)
		}
	})

	errCases := []struct {
		name string
		q    WindowQuery
	}{
		{"empty series", WindowQuery{Start: start, End: end}},
		{"inverted range", WindowQuery{SeriesID: "x", Start: end, End: start}},
		{"bad fn", WindowQuery{SeriesID: "x", Start: start, End: end, Fn: "median; drop()"}},
	}
	for _, tt := range errCases {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := buildFluxQuery("metrics", tt.q); !errors.Is(err, ErrQueryFailed) {
				t.Errorf("buildFluxQuery() error = %v, want ErrQueryFailed", err)
			}
		})
	}
}

func TestIntegration_WriteAndQuery(t *testing.T) {
	client := connectOrSkip(t)

	now := time.Now().UTC()
	client.WritePointWithTime("device_metrics",
		map[string]string{"device_id": "it", "measurement": "advisor_it"},
		map[string]any{"value": 42.0}, now.Add(-time.Minute))
	client.Flush()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	points, err := client.QueryWindow(ctx, WindowQuery{
		Measurement: "device_metrics",
		Field:       "value",
		SeriesID:    "it/advisor_it",
		Start:       now.Add(-time.Hour),
		End:         now.Add(time.Minute),
		Every:       time.Hour,
	})
	if err != nil {
		t.Fatalf("QueryWindow() error = %v", err)
	}
	if len(points) == 0 {
		t.Error("expected at least one point")
	}
}
