package deviation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-advisor/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-advisor/internal/readings"
	"github.com/nerrad567/gray-logic-advisor/internal/series"
)

var (
	nightTime = time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC)
	dayTime   = time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)
)

func agg(avg, night float64) series.Aggregate {
	return series.Aggregate{Avg: readings.Float(avg), NightAvg: readings.Float(night)}
}

func newDetector() *Detector {
	return NewDetector(Thresholds{}, series.DefaultBoundary, time.UTC)
}

func TestDetect_AllChecksCoOccur(t *testing.T) {
	live := readings.Readings{
		Consumption: readings.Float(1600),
		WaterFlow:   readings.Float(4),
		BatterySOC:  readings.Float(30),
	}
	baselines := map[string]series.Aggregate{
		config.MetricConsumption: agg(800, 1000),
		config.MetricWaterFlow:   agg(5, 1),
		config.MetricBatterySOC:  agg(55, 50),
	}

	devs := newDetector().Detect(nightTime, live, baselines)

	require.Len(t, devs, 3)
	refs := []string{devs[0].Ref(), devs[1].Ref(), devs[2].Ref()}
	assert.ElementsMatch(t, []string{"energy:peak", "water:night", "energy:anomaly"}, refs)
	for _, d := range devs {
		switch d.Ref() {
		case "energy:anomaly":
			assert.Equal(t, SeverityInfo, d.Severity)
		default:
			assert.Equal(t, SeverityWarn, d.Severity)
		}
		assert.NotEmpty(t, d.Description)
	}
}

func TestDetect_Thresholds(t *testing.T) {
	tests := []struct {
		name     string
		now      time.Time
		live     readings.Readings
		baseline map[string]series.Aggregate
		want     []string
	}{
		{
			name:     "consumption at exactly 1.5x is not a peak",
			now:      dayTime,
			live:     readings.Readings{Consumption: readings.Float(1500)},
			baseline: map[string]series.Aggregate{config.MetricConsumption: agg(0, 1000)},
		},
		{
			name:     "water above night baseline during the day is ignored",
			now:      dayTime,
			live:     readings.Readings{WaterFlow: readings.Float(9)},
			baseline: map[string]series.Aggregate{config.MetricWaterFlow: agg(1, 1)},
		},
		{
			name:     "water above night baseline at night",
			now:      nightTime,
			live:     readings.Readings{WaterFlow: readings.Float(1.1)},
			baseline: map[string]series.Aggregate{config.MetricWaterFlow: agg(1, 1)},
			want:     []string{"water:night"},
		},
		{
			name:     "battery exactly 10 below average is not an anomaly",
			now:      dayTime,
			live:     readings.Readings{BatterySOC: readings.Float(40)},
			baseline: map[string]series.Aggregate{config.MetricBatterySOC: agg(50, 50)},
		},
		{
			name:     "battery more than 10 below average",
			now:      dayTime,
			live:     readings.Readings{BatterySOC: readings.Float(39)},
			baseline: map[string]series.Aggregate{config.MetricBatterySOC: agg(50, 50)},
			want:     []string{"energy:anomaly"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, d := range newDetector().Detect(tt.now, tt.live, tt.baseline) {
				got = append(got, d.Ref())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetect_MissingDataSkipsSilently(t *testing.T) {
	d := newDetector()

	// Live values with no baselines.
	live := readings.Readings{Consumption: readings.Float(5000), WaterFlow: readings.Float(10), BatterySOC: readings.Float(1)}
	assert.Empty(t, d.Detect(nightTime, live, nil))

	// Baselines with no live values.
	baselines := map[string]series.Aggregate{
		config.MetricConsumption: agg(1, 1),
		config.MetricWaterFlow:   agg(0, 0),
		config.MetricBatterySOC:  agg(90, 90),
	}
	assert.Empty(t, d.Detect(nightTime, readings.Readings{}, baselines))

	// Baseline present but the needed bucket is null.
	partial := map[string]series.Aggregate{config.MetricConsumption: {Avg: readings.Float(100)}}
	assert.Empty(t, d.Detect(nightTime, live, partial))
}

func TestDetect_CustomThresholds(t *testing.T) {
	d := NewDetector(Thresholds{PeakFactor: 2, BatteryDropPoints: 5}, series.DefaultBoundary, nil)
	live := readings.Readings{Consumption: readings.Float(1800), BatterySOC: readings.Float(44)}
	baselines := map[string]series.Aggregate{
		config.MetricConsumption: agg(0, 1000),
		config.MetricBatterySOC:  agg(50, 50),
	}

	devs := d.Detect(dayTime, live, baselines)
	require.Len(t, devs, 1)
	assert.Equal(t, "energy:anomaly", devs[0].Ref())
}
