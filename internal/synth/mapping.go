package synth

import (
	"github.com/nerrad567/gray-logic-advisor/internal/action"
	"github.com/nerrad567/gray-logic-advisor/internal/deviation"
	"github.com/nerrad567/gray-logic-advisor/internal/readings"
)

// template is the action shape a deviation maps to.
type template struct {
	category action.Category
	kind     string
	priority action.Priority
}

// mapping is keyed by deviation category and type. Each entry may look at
// live readings to choose between templates.
var mapping = map[[2]string]func(live readings.Readings) template{
	{deviation.CategoryWater, deviation.TypeNight}: func(readings.Readings) template {
		return template{action.CategoryWater, "check_leak", action.PriorityHigh}
	},
	{deviation.CategoryEnergy, deviation.TypePeak}: func(live readings.Readings) template {
		if live.PVPower != nil && *live.PVPower > 0 {
			return template{action.CategoryEnergy, "shift_load_to_pv", action.PriorityLow}
		}
		return template{action.CategoryEnergy, "reduce_peak_load", action.PriorityMedium}
	},
	{deviation.CategoryEnergy, deviation.TypeAnomaly}: func(readings.Readings) template {
		return template{action.CategoryEnergy, "check_battery", action.PriorityMedium}
	},
}

// FromDeviations maps each deviation to an action template. Unmatched
// deviations become inspect_deviation with priority taken from severity.
// Every mapped action requires approval.
func FromDeviations(devs []deviation.Deviation, live readings.Readings) []action.Action {
	out := make([]action.Action, 0, len(devs))
	for _, d := range devs {
		tpl := fallback(d)
		if fn, ok := mapping[[2]string{d.Category, d.Type}]; ok {
			tpl = fn(live)
		}
		out = append(out, action.Action{
			Category:         tpl.category,
			Type:             tpl.kind,
			LearningKey:      learningKey(tpl.category, tpl.kind),
			Priority:         tpl.priority,
			Reason:           d.Description,
			DeviationRef:     d.Ref(),
			Source:           action.SourceDeviation,
			RequiresApproval: true,
		})
	}
	return out
}

func fallback(d deviation.Deviation) template {
	c, ok := action.ParseCategory(d.Category)
	if !ok {
		c = action.CategoryEnergy
	}
	return template{c, "inspect_deviation", severityPriority(d.Severity)}
}

func severityPriority(s deviation.Severity) action.Priority {
	switch s {
	case deviation.SeverityCritical:
		return action.PriorityHigh
	case deviation.SeverityWarn:
		return action.PriorityMedium
	default:
		return action.PriorityLow
	}
}
