package approval

import (
	"regexp"
	"strings"
)

var replyPattern = regexp.MustCompile(`^(?i)(approve|deny)\s+([a-z0-9]+)$`)

// ParseReply parses "approve <code>" or "deny <code>". Case and surrounding
// whitespace are ignored. ok is false when text is not an approval reply.
func ParseReply(text string) (code string, approve bool, ok bool) {
	m := replyPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", false, false
	}
	return strings.ToLower(m[2]), strings.EqualFold(m[1], "approve"), true
}
