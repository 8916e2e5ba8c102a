package synth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-advisor/internal/action"
	"github.com/nerrad567/gray-logic-advisor/internal/deviation"
	"github.com/nerrad567/gray-logic-advisor/internal/learning"
	"github.com/nerrad567/gray-logic-advisor/internal/readings"
)

var f = readings.Float

func types(actions []action.Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = a.Type
	}
	return out
}

func TestLiveRules(t *testing.T) {
	tests := []struct {
		name string
		live readings.Readings
		want []string
	}{
		{"nothing known", readings.Readings{}, []string{}},
		{"low battery", readings.Readings{BatterySOC: f(15)}, []string{"protect_battery"}},
		{"battery at threshold", readings.Readings{BatterySOC: f(20)}, []string{}},
		{"frost", readings.Readings{OutsideTemp: f(-0.5)}, []string{"check_frost_protection"}},
		{"zero degrees", readings.Readings{OutsideTemp: f(0)}, []string{}},
		{"grid import without pv", readings.Readings{GridImport: f(800), PVPower: f(0)}, []string{"reduce_load"}},
		{"grid import without pv sensor", readings.Readings{GridImport: f(800)}, []string{"reduce_load"}},
		{"grid import with pv", readings.Readings{GridImport: f(800), PVPower: f(200)}, []string{}},
		{"all three", readings.Readings{BatterySOC: f(5), OutsideTemp: f(-3), GridImport: f(600)},
			[]string{"protect_battery", "check_frost_protection", "reduce_load"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LiveRules(tt.live, DefaultRuleThresholds)
			assert.Equal(t, tt.want, types(got))
			for _, a := range got {
				assert.Equal(t, action.SourceLiveRule, a.Source)
				assert.Equal(t, string(a.Category)+":"+a.Type, a.LearningKey)
			}
		})
	}
}

func TestLiveRules_ApprovalAndPriority(t *testing.T) {
	got := LiveRules(readings.Readings{BatterySOC: f(15), OutsideTemp: f(-2), GridImport: f(900)}, DefaultRuleThresholds)
	require.Len(t, got, 3)

	assert.Equal(t, action.CategoryEnergy, got[0].Category)
	assert.Equal(t, action.PriorityHigh, got[0].Priority)
	assert.False(t, got[0].RequiresApproval)

	assert.Equal(t, action.CategoryHeating, got[1].Category)
	assert.Equal(t, action.PriorityHigh, got[1].Priority)
	assert.False(t, got[1].RequiresApproval)

	assert.Equal(t, action.PriorityMedium, got[2].Priority)
	assert.True(t, got[2].RequiresApproval)
}

func TestFromDeviations(t *testing.T) {
	devs := []deviation.Deviation{
		{Category: "water", Type: "night", Severity: deviation.SeverityWarn, Description: "night flow"},
		{Category: "energy", Type: "anomaly", Severity: deviation.SeverityInfo},
		{Category: "pv", Type: "degraded", Severity: deviation.SeverityCritical},
		{Category: "garden", Type: "dry", Severity: deviation.SeverityWarn},
		{Category: "safety", Type: "smoke", Severity: deviation.SeverityInfo},
	}

	got := FromDeviations(devs, readings.Readings{})
	require.Len(t, got, 5)

	assert.Equal(t, "check_leak", got[0].Type)
	assert.Equal(t, action.CategoryWater, got[0].Category)
	assert.Equal(t, action.PriorityHigh, got[0].Priority)
	assert.Equal(t, "water:night", got[0].DeviationRef)
	assert.Equal(t, "night flow", got[0].Reason)

	assert.Equal(t, "check_battery", got[1].Type)
	assert.Equal(t, action.PriorityMedium, got[1].Priority)

	assert.Equal(t, "inspect_deviation", got[2].Type)
	assert.Equal(t, action.CategoryPV, got[2].Category)
	assert.Equal(t, action.PriorityHigh, got[2].Priority)

	assert.Equal(t, action.CategoryEnergy, got[3].Category, "unknown deviation category falls back to energy")
	assert.Equal(t, action.PriorityMedium, got[3].Priority)

	assert.Equal(t, action.PriorityLow, got[4].Priority)

	for _, a := range got {
		assert.True(t, a.RequiresApproval)
		assert.Equal(t, action.SourceDeviation, a.Source)
	}
}

func TestFromDeviations_PeakUsesPVToBreakTie(t *testing.T) {
	peak := []deviation.Deviation{{Category: "energy", Type: "peak", Severity: deviation.SeverityWarn}}

	sunny := FromDeviations(peak, readings.Readings{PVPower: f(1200)})
	assert.Equal(t, "shift_load_to_pv", sunny[0].Type)
	assert.Equal(t, action.PriorityLow, sunny[0].Priority)

	dark := FromDeviations(peak, readings.Readings{PVPower: f(0)})
	assert.Equal(t, "reduce_peak_load", dark[0].Type)
	assert.Equal(t, action.PriorityMedium, dark[0].Priority)
}

func TestMerge(t *testing.T) {
	a := action.Action{Category: action.CategoryWater, Type: "check_leak", LearningKey: "k", DeviationRef: "water:night", Reason: "first"}
	b := action.Action{Category: action.CategoryEnergy, Type: "reduce_load", LearningKey: "r"}
	aLater := a
	aLater.Reason = "second"
	withID := action.Action{ID: "m1", Category: action.CategoryWater, Type: "check_leak", LearningKey: "k", DeviationRef: "water:night"}
	withIDLater := withID
	withIDLater.Reason = "updated"

	got := Merge([]action.Action{a, b}, []action.Action{aLater, withID}, []action.Action{withIDLater})

	require.Len(t, got, 3)
	assert.Equal(t, "second", got[0].Reason, "later entry replaces in place")
	assert.Equal(t, "reduce_load", got[1].Type)
	assert.Equal(t, "updated", got[2].Reason)
}

func TestMerge_Idempotent(t *testing.T) {
	input := [][]action.Action{
		LiveRules(readings.Readings{BatterySOC: f(10), GridImport: f(900)}, DefaultRuleThresholds),
		FromDeviations([]deviation.Deviation{
			{Category: "water", Type: "night", Severity: deviation.SeverityWarn},
			{Category: "water", Type: "night", Severity: deviation.SeverityWarn, Description: "second"},
			{Category: "energy", Type: "peak", Severity: deviation.SeverityWarn},
		}, readings.Readings{}),
		{{ID: "x", Type: "a"}, {ID: "x", Type: "b"}},
	}

	once := Merge(input...)
	twice := Merge(once)
	assert.Equal(t, once, twice)
	assert.Equal(t, once, Merge(once, once))
}

// Two deviations of the same category and type collapse into one action.
func TestMerge_SameDeviationTypeCollapses(t *testing.T) {
	mapped := FromDeviations([]deviation.Deviation{
		{Category: "water", Type: "night", Description: "kitchen"},
		{Category: "water", Type: "night", Description: "garden"},
	}, readings.Readings{})

	got := Merge(mapped)
	require.Len(t, got, 1)
	assert.Equal(t, "garden", got[0].Reason)
}

func TestParseSuggestions(t *testing.T) {
	reply := `Sure! Here are my thoughts [not json] and the list:
[
  {"id":"s1","category":"Heating","type":"lower_setpoint","priority":"LOW","reason":"Nobody home","requiresApproval":false,"learningKey":"heating:lower_setpoint"},
  {"category":"garden","type":"water_plants"},
  {"category":"water","type":"  "},
  {"category":"pv","priority":"urgent","type":"clean_panels","reason":"use ] carefully"},
  42
]
Let me know.`

	got, err := ParseSuggestions(reply)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "s1", got[0].ID)
	assert.Equal(t, action.CategoryHeating, got[0].Category)
	assert.Equal(t, action.PriorityLow, got[0].Priority)
	assert.False(t, got[0].RequiresApproval)

	assert.Equal(t, action.CategoryEnergy, got[1].Category, "unknown category falls back to energy")
	assert.Equal(t, action.PriorityMedium, got[1].Priority)
	assert.True(t, got[1].RequiresApproval, "missing requiresApproval defaults to true")
	assert.Equal(t, "energy:water_plants", got[1].LearningKey)

	assert.Equal(t, action.PriorityMedium, got[2].Priority, "unknown priority falls back to medium")
	assert.Equal(t, "use ] carefully", got[2].Reason)

	for _, a := range got {
		assert.Equal(t, action.SourceModelSuggested, a.Source)
	}
}

func TestParseSuggestions_NoArray(t *testing.T) {
	for _, reply := range []string{"", "I have no suggestions.", `{"type":"x"}`, "[unterminated"} {
		_, err := ParseSuggestions(reply)
		assert.ErrorIs(t, err, ErrNoJSONArray, reply)
	}
}

type fakeCompleter struct {
	reply  string
	err    error
	delay  time.Duration
	prompt string
}

func (c *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	c.prompt = prompt
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
		}
	}
	return c.reply, c.err
}

func TestSynthesize_WithoutCompleter(t *testing.T) {
	s := New(DefaultRuleThresholds, nil, 0, nil)
	res := s.Synthesize(context.Background(), Input{Live: readings.Readings{BatterySOC: f(15)}})

	require.Len(t, res.Actions, 1)
	a := res.Actions[0]
	assert.Equal(t, "protect_battery", a.Type)
	assert.Equal(t, action.PriorityHigh, a.Priority)
	assert.False(t, a.RequiresApproval)
	assert.Equal(t, 15.0, a.Context["battery_soc"])
	assert.Equal(t, 1, res.LiveRule)
	assert.Zero(t, res.Suggested)
}

func TestSynthesize_ModelSuggestionsMergedAndContextBundled(t *testing.T) {
	c := &fakeCompleter{reply: `[{"category":"energy","type":"protect_battery","learningKey":"energy:protect_battery","priority":"medium","reason":"refined","requiresApproval":false},{"category":"pv","type":"check_inverter"}]`}
	s := New(DefaultRuleThresholds, c, time.Second, nil)

	res := s.Synthesize(context.Background(), Input{
		Live:  readings.Readings{BatterySOC: f(15)},
		Stats: map[string]learning.KeyStats{"energy:protect_battery": {Approved: 3, AcceptanceRate: 1}},
	})

	require.Len(t, res.Actions, 2)
	assert.Equal(t, "refined", res.Actions[0].Reason, "suggestion with the same identity replaces the rule action")
	assert.Equal(t, action.SourceModelSuggested, res.Actions[0].Source)
	assert.Equal(t, "check_inverter", res.Actions[1].Type)
	assert.Equal(t, 2, res.Suggested)

	assert.Contains(t, c.prompt, `"battery_soc": 15`)
	assert.Contains(t, c.prompt, `"acceptanceRate": 1`)
	assert.Contains(t, c.prompt, "requiresApproval")
	assert.True(t, strings.Contains(c.prompt, `"candidates"`))
}

func TestSynthesize_CompletionFailuresDegrade(t *testing.T) {
	tests := []struct {
		name string
		c    *fakeCompleter
	}{
		{"error", &fakeCompleter{err: errors.New("service unavailable")}},
		{"garbage", &fakeCompleter{reply: "I cannot help with that"}},
		{"timeout", &fakeCompleter{reply: `[{"type":"late"}]`, delay: time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(DefaultRuleThresholds, tt.c, 20*time.Millisecond, nil)
			res := s.Synthesize(context.Background(), Input{
				Live:       readings.Readings{},
				Deviations: []deviation.Deviation{{Category: "water", Type: "night", Severity: deviation.SeverityWarn}},
			})
			assert.Equal(t, []string{"check_leak"}, types(res.Actions))
			assert.Zero(t, res.Suggested)
		})
	}
}
