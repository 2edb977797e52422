package audit

import (
	"context"
	"fmt"
)

// Summary holds decision counts for a set of records.
type Summary struct {
	Total          int            `json:"total"`
	ByKind         map[string]int `json:"by_kind"`
	ByCapability   map[string]int `json:"by_capability"`
	Approvals      int            `json:"approvals"`
	ReviewerFlags  int            `json:"reviewer_flags"`
	FirstTimestamp string         `json:"first_timestamp,omitempty"`
	LastTimestamp  string         `json:"last_timestamp,omitempty"`
}

// Summarize counts matching records by kind and capability.
func (s *Store) Summarize(ctx context.Context, f Filter) (Summary, error) {
	records, err := s.Query(ctx, f)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize: %w", err)
	}
	return summarize(records), nil
}

func summarize(records []Record) Summary {
	sum := Summary{ByKind: map[string]int{}, ByCapability: map[string]int{}}
	for _, r := range records {
		sum.Total++
		sum.ByKind[r.Kind]++
		if r.Capability != "" {
			sum.ByCapability[r.Capability]++
		}
		if r.ApprovalCode != "" {
			sum.Approvals++
		}
		if r.ReviewerFlagged != nil && *r.ReviewerFlagged {
			sum.ReviewerFlags++
		}
		if sum.FirstTimestamp == "" {
			sum.FirstTimestamp = r.Timestamp
		}
		sum.LastTimestamp = r.Timestamp
	}
	return sum
}
