package scenario

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders run results as human-readable text.
func FormatText(results []*RunResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Checking %d scenario file", len(results))
	if len(results) != 1 {
		b.WriteString("s")
	}
	b.WriteString("...\n\n")

	total, passed, failedFiles := 0, 0, 0
	for _, r := range results {
		total += r.Total
		passed += r.Passed

		if r.Failed == 0 {
			fmt.Fprintf(&b, "  PASS  %s (%d/%d)\n", r.Name, r.Passed, r.Total)
			continue
		}
		failedFiles++
		fmt.Fprintf(&b, "  FAIL  %s (%d/%d)\n", r.Name, r.Passed, r.Total)
		for _, s := range r.Steps {
			if s.Passed {
				continue
			}
			target := s.Capability
			if s.Command != "" {
				target = s.Command
			}
			if len(target) > 40 {
				target = target[:37] + "..."
			}
			fmt.Fprintf(&b, "    FAIL  step %d: %-5s %-40s expected %s, got %s (%s)\n",
				s.Index, s.Operation, target, s.Expected, s.Actual, s.Reason)
		}
	}

	fmt.Fprintf(&b, "\n%d of %d steps passed.", passed, total)
	if failedFiles > 0 {
		fmt.Fprintf(&b, " %d of %d scenarios failed.", failedFiles, len(results))
	}
	b.WriteString("\n")
	return b.String()
}

// FormatJSON renders run results as JSON.
func FormatJSON(results []*RunResult) (string, error) {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal results: %w", err)
	}
	return string(data), nil
}

// AnyFailed reports whether any scenario had a failing step.
func AnyFailed(results []*RunResult) bool {
	for _, r := range results {
		if r.Failed > 0 {
			return true
		}
	}
	return false
}
