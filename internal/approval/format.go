package approval

import (
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-advisor/internal/action"
)

var priorityMarks = map[action.Priority]string{
	action.PriorityHigh:   "🔴",
	action.PriorityMedium: "🟠",
	action.PriorityLow:    "🟢",
}

// FormatBatch renders pending actions with approve/reject/modify controls
// for each.
func FormatBatch(pending []action.Action) Outbound {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d action(s) awaiting approval:\n", len(pending))

	controls := make([]Control, 0, 3*len(pending))
	for i, p := range pending {
		fmt.Fprintf(&sb, "\n%d. %s %s [%s]", i+1, priorityMarks[p.Priority], p.Type, p.Category)
		if p.Reason != "" {
			fmt.Fprintf(&sb, "\n   %s", p.Reason)
		}
		controls = append(controls,
			Control{Label: fmt.Sprintf("✅ %d", i+1), Token: Token(p.ID, CommandApprove)},
			Control{Label: fmt.Sprintf("❌ %d", i+1), Token: Token(p.ID, CommandReject)},
			Control{Label: fmt.Sprintf("✏️ %d", i+1), Token: Token(p.ID, CommandModify)},
		)
	}
	sb.WriteString("\n\nReply JA to approve all or NEIN to reject all.")

	return Outbound{Text: sb.String(), Controls: controls}
}

// label is the short outcome line appended to the batch message.
func label(a action.Action) string {
	var mark string
	switch {
	case a.Status == action.StatusExecuted:
		mark = "✔ executed"
	case a.Status == action.StatusFailed:
		mark = "⚠ failed"
	case a.Status == action.StatusApproved:
		mark = "✅ approved"
	case a.Status == action.StatusRejected:
		mark = "❌ rejected"
	case a.Decision == action.DecisionModified:
		mark = "✏️ modification requested"
	default:
		mark = string(a.Status)
	}
	return a.Type + ": " + mark
}
