package synth

import "github.com/nerrad567/gray-logic-advisor/internal/action"

// Key returns the merge identity of a: its id when present, otherwise the
// (category, type, learningKey, deviationRef) tuple.
func Key(a action.Action) string {
	if a.ID != "" {
		return "id:" + a.ID
	}
	return "key:" + a.IdentityKey()
}

// Merge concatenates lists and collapses entries with the same Key. A later
// entry replaces the earlier one at the earlier one's position.
func Merge(lists ...[]action.Action) []action.Action {
	var out []action.Action
	pos := make(map[string]int)

	for _, list := range lists {
		for _, a := range list {
			k := Key(a)
			if i, ok := pos[k]; ok {
				out[i] = a
				continue
			}
			pos[k] = len(out)
			out = append(out, a)
		}
	}
	return out
}
