package approval

import "strings"

// Command is an operator instruction for a single action.
type Command string

const (
	CommandApprove  Command = "approve"
	CommandReject   Command = "reject"
	CommandModify   Command = "modify"
	CommandExecuted Command = "executed"
)

// TokenPrefix starts every structured callback token.
const TokenPrefix = "action:"

var aliases = map[string]Command{
	"approve":  CommandApprove,
	"approved": CommandApprove,
	"ok":       CommandApprove,
	"yes":      CommandApprove,
	"ja":       CommandApprove,

	"reject":   CommandReject,
	"rejected": CommandReject,
	"no":       CommandReject,
	"nein":     CommandReject,

	"modify":  CommandModify,
	"edit":    CommandModify,
	"change":  CommandModify,
	"aendern": CommandModify,

	"executed": CommandExecuted,
	"done":     CommandExecuted,
	"erledigt": CommandExecuted,
}

// ParseCommand resolves s (case-insensitive, aliases accepted).
func ParseCommand(s string) (Command, bool) {
	c, ok := aliases[strings.ToLower(strings.TrimSpace(s))]
	return c, ok
}

// Token builds the callback token for id and c.
func Token(id string, c Command) string {
	return TokenPrefix + id + ":" + string(c)
}

// ParseToken splits action:<id>:<command>. The command is taken after the
// last colon so ids may contain colons. ok is false when s is not a token;
// a token with an unknown command returns ok true and known false.
func ParseToken(s string) (id string, c Command, ok, known bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, TokenPrefix) {
		return "", "", false, false
	}
	rest := s[len(TokenPrefix):]
	i := strings.LastIndexByte(rest, ':')
	if i <= 0 {
		return "", "", false, false
	}
	id = rest[:i]
	c, known = ParseCommand(rest[i+1:])
	return id, c, true, known
}

// batchReply recognises the whole-batch answers JA and NEIN.
func batchReply(text string) (Command, bool) {
	switch {
	case strings.EqualFold(strings.TrimSpace(text), "JA"):
		return CommandApprove, true
	case strings.EqualFold(strings.TrimSpace(text), "NEIN"):
		return CommandReject, true
	default:
		return "", false
	}
}
