package synth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-advisor/internal/action"
	"github.com/nerrad567/gray-logic-advisor/internal/deviation"
	"github.com/nerrad567/gray-logic-advisor/internal/learning"
	"github.com/nerrad567/gray-logic-advisor/internal/series"
)

// ErrNoJSONArray is returned when a reply contains no parseable array.
var ErrNoJSONArray = errors.New("synth: no JSON array in reply")

// Bundle is the context sent to the completion service.
type Bundle struct {
	GeneratedAt   time.Time                    `json:"generatedAt"`
	Readings      map[string]float64           `json:"readings"`
	Aggregates    map[string]series.Aggregate  `json:"aggregates"`
	Deviations    []deviation.Deviation        `json:"deviations"`
	Candidates    []action.Action              `json:"candidates"`
	LearningStats map[string]learning.KeyStats `json:"learningStats"`
}

const schema = `Each element must be an object with these fields:
  id               string, optional stable identifier
  category         one of energy, heating, water, pv, safety
  type             short snake_case verb phrase, required
  priority         one of high, medium, low
  reason           one sentence for the home owner
  requiresApproval boolean, true unless the action is a safe safeguard
  learningKey      grouping key, usually "<category>:<type>"`

// BuildPrompt embeds b as JSON together with the reply schema.
func BuildPrompt(b Bundle) (string, error) {
	payload, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding context: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("Current state of the home, as JSON:\n\n")
	sb.Write(payload)
	sb.WriteString("\n\nThe candidates above were produced by fixed rules. Suggest additional actions, or refine a ")
	sb.WriteString("candidate by reusing its category, type and learningKey. Prefer action types with a high ")
	sb.WriteString("acceptance rate in learningStats and avoid ones that are usually rejected.\n\n")
	sb.WriteString("Reply with exactly one JSON array. ")
	sb.WriteString(schema)
	sb.WriteString("\n")
	return sb.String(), nil
}

// suggestion is the wire shape of one model entry. RequiresApproval is a
// pointer so that a missing field can default to true.
type suggestion struct {
	ID               string `json:"id"`
	Category         string `json:"category"`
	Type             string `json:"type"`
	Priority         string `json:"priority"`
	Reason           string `json:"reason"`
	RequiresApproval *bool  `json:"requiresApproval"`
	LearningKey      string `json:"learningKey"`
	DeviationRef     string `json:"deviationRef"`
}

// ParseSuggestions extracts the first JSON array literal from reply and
// validates every element on its own. Elements that are not objects or
// have no type are dropped; unknown categories become energy, unknown
// priorities medium.
func ParseSuggestions(reply string) ([]action.Action, error) {
	raw, err := firstArray(reply)
	if err != nil {
		return nil, err
	}

	out := make([]action.Action, 0, len(raw))
	for _, elem := range raw {
		var s suggestion
		if err := json.Unmarshal(elem, &s); err != nil {
			continue
		}
		if a, ok := s.toAction(); ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s suggestion) toAction() (action.Action, bool) {
	kind := strings.TrimSpace(s.Type)
	if kind == "" {
		return action.Action{}, false
	}

	c, ok := action.ParseCategory(s.Category)
	if !ok {
		c = action.CategoryEnergy
	}
	p, ok := action.ParsePriority(s.Priority)
	if !ok {
		p = action.PriorityMedium
	}
	requires := true
	if s.RequiresApproval != nil {
		requires = *s.RequiresApproval
	}
	key := strings.TrimSpace(s.LearningKey)
	if key == "" {
		key = learningKey(c, kind)
	}

	return action.Action{
		ID:               strings.TrimSpace(s.ID),
		Category:         c,
		Type:             kind,
		LearningKey:      key,
		Priority:         p,
		Reason:           strings.TrimSpace(s.Reason),
		DeviationRef:     strings.TrimSpace(s.DeviationRef),
		Source:           action.SourceModelSuggested,
		RequiresApproval: requires,
	}, true
}

// firstArray scans text for the first balanced [...] span that decodes as
// a JSON array.
func firstArray(text string) ([]json.RawMessage, error) {
	for start := strings.IndexByte(text, '['); start >= 0; {
		if end := matchBracket(text, start); end > start {
			var raw []json.RawMessage
			if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err == nil {
				return raw, nil
			}
		}
		next := strings.IndexByte(text[start+1:], '[')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, ErrNoJSONArray
}

// matchBracket returns the index of the ']' closing the '[' at start, or
// -1. Brackets inside JSON strings are ignored.
func matchBracket(text string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
