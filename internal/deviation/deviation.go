// Package deviation compares live readings with historical baselines.
package deviation

import (
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-advisor/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-advisor/internal/readings"
	"github.com/nerrad567/gray-logic-advisor/internal/series"
)

// Severity levels.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityCritical Severity = "critical"
)

// Categories and types emitted by the detector.
const (
	CategoryEnergy = "energy"
	CategoryWater  = "water"

	TypePeak    = "peak"
	TypeNight   = "night"
	TypeAnomaly = "anomaly"
)

// Deviation is a detected divergence between a live value and its baseline.
type Deviation struct {
	Category    string   `json:"category"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	Metric      string   `json:"metric,omitempty"`
	Value       float64  `json:"value"`
	Baseline    float64  `json:"baseline"`
}

// Ref is the stable reference used to tie actions back to a deviation.
func (d Deviation) Ref() string {
	return d.Category + ":" + d.Type
}

// Thresholds tune the checks.
type Thresholds struct {
	// PeakFactor multiplies the consumption night average.
	PeakFactor float64
	// BatteryDropPoints is how far SOC may fall below its average.
	BatteryDropPoints float64
}

// DefaultThresholds are 1.5× and 10 points.
var DefaultThresholds = Thresholds{PeakFactor: 1.5, BatteryDropPoints: 10}

// Detector runs the independent threshold checks.
type Detector struct {
	thresholds Thresholds
	boundary   series.Boundary
	loc        *time.Location
}

// NewDetector creates a Detector. Zero thresholds fall back to defaults.
func NewDetector(t Thresholds, boundary series.Boundary, loc *time.Location) *Detector {
	if t.PeakFactor <= 0 {
		t.PeakFactor = DefaultThresholds.PeakFactor
	}
	if t.BatteryDropPoints <= 0 {
		t.BatteryDropPoints = DefaultThresholds.BatteryDropPoints
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Detector{thresholds: t, boundary: boundary, loc: loc}
}

// Detect returns every deviation that applies at now. A check whose live
// value or baseline is missing is skipped. Order follows check order but
// carries no meaning.
func (d *Detector) Detect(now time.Time, live readings.Readings, baselines map[string]series.Aggregate) []Deviation {
	var out []Deviation

	if cur, base := live.Consumption, baselines[config.MetricConsumption].NightAvg; cur != nil && base != nil {
		limit := d.thresholds.PeakFactor * *base
		if *cur > limit {
			out = append(out, Deviation{
				Category:    CategoryEnergy,
				Type:        TypePeak,
				Severity:    SeverityWarn,
				Metric:      config.MetricConsumption,
				Value:       *cur,
				Baseline:    *base,
				Description: fmt.Sprintf("Consumption %.0f W exceeds %.1f× the night baseline (%.0f W)", *cur, d.thresholds.PeakFactor, *base),
			})
		}
	}

	if cur, base := live.WaterFlow, baselines[config.MetricWaterFlow].NightAvg; cur != nil && base != nil && d.boundary.IsNightAt(now, d.loc) {
		if *cur > *base {
			out = append(out, Deviation{
				Category:    CategoryWater,
				Type:        TypeNight,
				Severity:    SeverityWarn,
				Metric:      config.MetricWaterFlow,
				Value:       *cur,
				Baseline:    *base,
				Description: fmt.Sprintf("Night water flow %.2f is above the night baseline %.2f", *cur, *base),
			})
		}
	}

	if cur, base := live.BatterySOC, baselines[config.MetricBatterySOC].Avg; cur != nil && base != nil {
		if *cur < *base-d.thresholds.BatteryDropPoints {
			out = append(out, Deviation{
				Category:    CategoryEnergy,
				Type:        TypeAnomaly,
				Severity:    SeverityInfo,
				Metric:      config.MetricBatterySOC,
				Value:       *cur,
				Baseline:    *base,
				Description: fmt.Sprintf("Battery at %.0f%% is more than %.0f points below its average %.0f%%", *cur, d.thresholds.BatteryDropPoints, *base),
			})
		}
	}

	return out
}
