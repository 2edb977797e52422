package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders records as a human-readable text timeline.
func FormatTimeline(records []Record) string {
	if len(records) == 0 {
		return "No audit records found.\n"
	}

	var b strings.Builder
	sum := summarize(records)
	b.WriteString(fmt.Sprintf("Audit: %s – %s UTC\n",
		formatDateTime(sum.FirstTimestamp), formatDateTime(sum.LastTimestamp)))
	b.WriteString(separator + "\n")

	for _, r := range records {
		code := ""
		if r.ApprovalCode != "" {
			code = "  [" + r.ApprovalCode + "]"
		}
		b.WriteString(fmt.Sprintf("%-10s %-12s %-14s %-16s %-5s %s%s\n",
			formatTimeOnly(r.Timestamp),
			truncate(r.WorkspaceID, 12),
			strings.ToUpper(r.Kind),
			truncate(r.Capability, 16),
			r.Operation,
			truncate(r.Reason, 60),
			code))
	}

	b.WriteString(separator + "\n")
	b.WriteString(FormatSummary(sum))
	return b.String()
}

// FormatSummary renders a Summary as one line.
func FormatSummary(s Summary) string {
	kinds := make([]string, 0, len(s.ByKind))
	for k := range s.ByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%d %s", s.ByKind[k], k))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("Summary: %d records\n", s.Total)
	}
	return fmt.Sprintf("Summary: %d records (%s)\n", s.Total, strings.Join(parts, ", "))
}

// FormatJSON renders any value as indented JSON.
func FormatJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal audit output: %w", err)
	}
	return string(data), nil
}

func formatDateTime(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	if limit <= 3 {
		return s[:limit]
	}
	return s[:limit-3] + "..."
}
