package bashgate

import "strings"

type rawSegment struct {
	text         string
	piped        bool // preceded by a single |
	substitution bool // contains $(, backticks, <( or >( outside single quotes
}

// splitCommand splits on &&, ||, |, ;, & and newlines while respecting
// quotes and backslash escapes.
func splitCommand(command string) []rawSegment {
	var (
		segments []rawSegment
		current  strings.Builder
		cur      rawSegment
		single   bool
		double   bool
	)

	flush := func(nextPiped bool) {
		cur.text = current.String()
		segments = append(segments, cur)
		current.Reset()
		cur = rawSegment{piped: nextPiped}
	}

	runes := []rune(command)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		if ch == '\\' && !single && next != 0 {
			current.WriteRune(ch)
			current.WriteRune(next)
			i++
			continue
		}
		if ch == '\'' && !double {
			single = !single
			current.WriteRune(ch)
			continue
		}
		if ch == '"' && !single {
			double = !double
			current.WriteRune(ch)
			continue
		}
		if single {
			current.WriteRune(ch)
			continue
		}

		if ch == '`' || (ch == '$' && next == '(') || ((ch == '<' || ch == '>') && next == '(') {
			cur.substitution = true
		}
		if double {
			current.WriteRune(ch)
			continue
		}

		switch {
		case ch == '&' && next == '&', ch == '|' && next == '|':
			flush(false)
			i++
		case ch == '|':
			flush(true)
		case ch == '&' && (next == '>' || prevIsRedirect(runes, i)):
			// &> and 2>&1 are redirects, not background operators
			current.WriteRune(ch)
		case ch == ';', ch == '&', ch == '\n':
			flush(false)
		default:
			current.WriteRune(ch)
		}
	}
	if current.Len() > 0 {
		flush(false)
	}
	return segments
}

func prevIsRedirect(runes []rune, i int) bool {
	return i > 0 && (runes[i-1] == '>' || runes[i-1] == '<')
}
