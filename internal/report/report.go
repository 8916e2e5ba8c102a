// Package report renders the daily advisor report from the latest run
// snapshot using a Liquid template.
package report

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/osteele/liquid"

	"github.com/nerrad567/gray-logic-advisor/internal/action"
	"github.com/nerrad567/gray-logic-advisor/internal/deviation"
	"github.com/nerrad567/gray-logic-advisor/internal/learning"
	"github.com/nerrad567/gray-logic-advisor/internal/series"
)

// ErrInvalidTemplate is returned when a template does not parse.
var ErrInvalidTemplate = errors.New("report: invalid template")

// DefaultTemplate is used when no template is configured.
const DefaultTemplate = `Daily advisor report for {{ site }} ({{ date }})
{% if deviations.size > 0 %}
Deviations:
{% for d in deviations %}- [{{ d.severity }}] {{ d.description }}
{% endfor %}{% else %}
No deviations in the latest run.
{% endif %}
Readings:
{% for r in readings %}- {{ r.name }}: {{ r.value | round: 1 }}{% if r.night_avg %} (night avg {{ r.night_avg | round: 1 }}){% endif %}
{% endfor %}
Actions: {{ counts.proposed }} open, {{ counts.approved }} approved, {{ counts.executed }} executed, {{ counts.rejected }} rejected, {{ counts.failed }} failed.
{% if stats.size > 0 %}
Acceptance:
{% for s in stats %}- {{ s.key }}: {{ s.rate | times: 100 | round }}% of {{ s.decided }} decisions
{% endfor %}{% endif %}{% if last_error != "" %}
Last run error: {{ last_error }}
{% endif %}`

// Counts tallies actions by status.
type Counts struct {
	Proposed int `json:"proposed"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Executed int `json:"executed"`
	Failed   int `json:"failed"`
}

// CountActions tallies actions by status.
func CountActions(actions []action.Action) Counts {
	var c Counts
	for _, a := range actions {
		switch a.Status {
		case action.StatusProposed:
			c.Proposed++
		case action.StatusApproved:
			c.Approved++
		case action.StatusRejected:
			c.Rejected++
		case action.StatusExecuted:
			c.Executed++
		case action.StatusFailed:
			c.Failed++
		}
	}
	return c
}

// Snapshot is the state of the latest run, persisted for the report and
// the status API.
type Snapshot struct {
	GeneratedAt time.Time                    `json:"generatedAt"`
	Readings    map[string]float64           `json:"readings"`
	Aggregates  map[string]series.Aggregate  `json:"aggregates"`
	Deviations  []deviation.Deviation        `json:"deviations"`
	Counts      Counts                       `json:"counts"`
	Stats       map[string]learning.KeyStats `json:"stats"`
	LastError   string                       `json:"lastError,omitempty"`
}

// Renderer renders snapshots with a compiled template.
type Renderer struct {
	tpl  *liquid.Template
	site string
	loc  *time.Location
}

// NewRenderer compiles source, or DefaultTemplate when source is empty.
func NewRenderer(source, site string, loc *time.Location) (*Renderer, error) {
	if source == "" {
		source = DefaultTemplate
	}
	if loc == nil {
		loc = time.UTC
	}
	tpl, err := liquid.NewEngine().ParseString(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTemplate, err.Error())
	}
	return &Renderer{tpl: tpl, site: site, loc: loc}, nil
}

// Render produces the report text for snap as of now.
func (r *Renderer) Render(snap Snapshot, now time.Time) (string, error) {
	out, err := r.tpl.RenderString(r.bindings(snap, now))
	if err != nil {
		return "", fmt.Errorf("rendering report: %s", err.Error())
	}
	return out, nil
}

func (r *Renderer) bindings(snap Snapshot, now time.Time) liquid.Bindings {
	names := make([]string, 0, len(snap.Readings))
	for name := range snap.Readings {
		names = append(names, name)
	}
	sort.Strings(names)

	readings := make([]map[string]any, 0, len(names))
	for _, name := range names {
		entry := map[string]any{"name": name, "value": snap.Readings[name]}
		if agg, ok := snap.Aggregates[name]; ok && agg.NightAvg != nil {
			entry["night_avg"] = *agg.NightAvg
		}
		readings = append(readings, entry)
	}

	devs := make([]map[string]any, 0, len(snap.Deviations))
	for _, d := range snap.Deviations {
		devs = append(devs, map[string]any{
			"category":    d.Category,
			"type":        d.Type,
			"severity":    string(d.Severity),
			"description": d.Description,
		})
	}

	keys := make([]string, 0, len(snap.Stats))
	for k := range snap.Stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	stats := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		st := snap.Stats[k]
		decided := st.Approved + st.Rejected
		if decided == 0 {
			continue
		}
		stats = append(stats, map[string]any{
			"key":     k,
			"rate":    st.AcceptanceRate,
			"decided": decided,
		})
	}

	return liquid.Bindings{
		"site":       r.site,
		"date":       now.In(r.loc).Format("2006-01-02"),
		"deviations": devs,
		"readings":   readings,
		"counts": map[string]any{
			"proposed": snap.Counts.Proposed,
			"approved": snap.Counts.Approved,
			"rejected": snap.Counts.Rejected,
			"executed": snap.Counts.Executed,
			"failed":   snap.Counts.Failed,
		},
		"stats":      stats,
		"last_error": snap.LastError,
	}
}
