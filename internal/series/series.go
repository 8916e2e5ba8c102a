// Package series turns raw time-stamped samples into summary statistics.
package series

import (
	"math"
	"time"
)

// Sample is one timestamped reading.
type Sample struct {
	Time  time.Time `json:"timestamp"`
	Value float64   `json:"value"`
}

// Aggregate summarises a window of samples. A nil field means no finite
// sample contributed to it; it is never zero-filled.
type Aggregate struct {
	Avg      *float64 `json:"avg"`
	Min      *float64 `json:"min"`
	Max      *float64 `json:"max"`
	Last     *float64 `json:"last"`
	DayAvg   *float64 `json:"dayAvg"`
	NightAvg *float64 `json:"nightAvg"`
}

// Empty reports whether no field is set.
func (a Aggregate) Empty() bool {
	return a.Avg == nil && a.Min == nil && a.Max == nil && a.Last == nil && a.DayAvg == nil && a.NightAvg == nil
}

// Fields returns the set values keyed by JSON name, for metric write-back.
func (a Aggregate) Fields() map[string]*float64 {
	return map[string]*float64{
		"avg":      a.Avg,
		"min":      a.Min,
		"max":      a.Max,
		"last":     a.Last,
		"dayAvg":   a.DayAvg,
		"nightAvg": a.NightAvg,
	}
}

// Boundary splits the local day into day and night hours.
type Boundary struct {
	DayStartHour   int
	NightStartHour int
}

// DefaultBoundary is 06:00 to 22:00 day.
var DefaultBoundary = Boundary{DayStartHour: 6, NightStartHour: 22}

// IsNight reports whether a local hour falls in the night bucket. Both
// orderings are handled, so a boundary with night before day also works.
func (b Boundary) IsNight(hour int) bool {
	if b.DayStartHour < b.NightStartHour {
		return hour >= b.NightStartHour || hour < b.DayStartHour
	}
	return hour >= b.NightStartHour && hour < b.DayStartHour
}

// IsNightAt reports whether t falls in the night bucket in loc.
func (b Boundary) IsNightAt(t time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	return b.IsNight(t.In(loc).Hour())
}

// Summarize computes summary statistics over samples. Non-finite values are
// ignored. Day and night averages partition by the sample's hour in loc.
func Summarize(samples []Sample, b Boundary, loc *time.Location) Aggregate {
	if loc == nil {
		loc = time.UTC
	}

	var (
		agg               Aggregate
		sum, dSum, nSum   float64
		n, dN, nN         int
		minV, maxV, lastV float64
		lastT             time.Time
	)

	for _, s := range samples {
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			continue
		}
		if n == 0 || s.Value < minV {
			minV = s.Value
		}
		if n == 0 || s.Value > maxV {
			maxV = s.Value
		}
		if n == 0 || !s.Time.Before(lastT) {
			lastT, lastV = s.Time, s.Value
		}
		sum += s.Value
		n++

		if b.IsNight(s.Time.In(loc).Hour()) {
			nSum += s.Value
			nN++
		} else {
			dSum += s.Value
			dN++
		}
	}

	if n == 0 {
		return agg
	}

	agg.Avg = ptr(sum / float64(n))
	agg.Min = ptr(minV)
	agg.Max = ptr(maxV)
	agg.Last = ptr(lastV)
	if dN > 0 {
		agg.DayAvg = ptr(dSum / float64(dN))
	}
	if nN > 0 {
		agg.NightAvg = ptr(nSum / float64(nN))
	}
	return agg
}

func ptr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
