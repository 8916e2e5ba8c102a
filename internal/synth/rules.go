package synth

import (
	"fmt"

	"github.com/nerrad567/gray-logic-advisor/internal/action"
	"github.com/nerrad567/gray-logic-advisor/internal/readings"
)

// RuleThresholds tune the live rules.
type RuleThresholds struct {
	LowSOCPercent        float64
	FrostTempC           float64
	GridImportThresholdW float64
}

// DefaultRuleThresholds are 20 %, 0 °C and 500 W.
var DefaultRuleThresholds = RuleThresholds{LowSOCPercent: 20, FrostTempC: 0, GridImportThresholdW: 500}

// LiveRules evaluates the deterministic thresholds on current readings.
// A missing PV reading counts as no PV production.
func LiveRules(live readings.Readings, t RuleThresholds) []action.Action {
	var out []action.Action

	if soc := live.BatterySOC; soc != nil && *soc < t.LowSOCPercent {
		out = append(out, liveAction(action.CategoryEnergy, "protect_battery", action.PriorityHigh, false,
			fmt.Sprintf("Battery at %.0f%% is below %.0f%%", *soc, t.LowSOCPercent)))
	}

	if temp := live.OutsideTemp; temp != nil && *temp < t.FrostTempC {
		out = append(out, liveAction(action.CategoryHeating, "check_frost_protection", action.PriorityHigh, false,
			fmt.Sprintf("Outside temperature %.1f °C is below %.1f °C", *temp, t.FrostTempC)))
	}

	pv := 0.0
	if live.PVPower != nil {
		pv = *live.PVPower
	}
	if grid := live.GridImport; grid != nil && *grid > t.GridImportThresholdW && pv <= 0 {
		out = append(out, liveAction(action.CategoryEnergy, "reduce_load", action.PriorityMedium, true,
			fmt.Sprintf("Importing %.0f W from the grid with no PV production", *grid)))
	}

	return out
}

func liveAction(c action.Category, kind string, p action.Priority, requiresApproval bool, reason string) action.Action {
	return action.Action{
		Category:         c,
		Type:             kind,
		LearningKey:      learningKey(c, kind),
		Priority:         p,
		Reason:           reason,
		Source:           action.SourceLiveRule,
		RequiresApproval: requiresApproval,
	}
}

func learningKey(c action.Category, kind string) string {
	return string(c) + ":" + kind
}
