package audit

import (
	"context"
	"fmt"
)

// VerifyResult holds the outcome of a hash chain verification.
type VerifyResult struct {
	Valid    bool   `json:"valid"`
	Records  int    `json:"records"`
	Anchor   string `json:"anchor,omitempty"`
	Error    string `json:"error,omitempty"`
	ErrorSeq int64  `json:"error_seq,omitempty"`
}

// Verify walks every record in seq order and checks that each stored hash
// matches its content and that each prev_hash matches the record before it.
// The first remaining record's prev_hash is accepted as the anchor.
func (s *Store) Verify(ctx context.Context) VerifyResult {
	rows, err := s.db.QueryContext(ctx, selectColumns+" ORDER BY seq")
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("query: %v", err)}
	}
	defer rows.Close()

	res := VerifyResult{}
	prev := ""
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return VerifyResult{Error: err.Error(), Records: res.Records}
		}
		res.Records++

		if res.Records == 1 {
			res.Anchor = r.PrevHash
		} else if r.PrevHash != prev {
			return VerifyResult{
				Records:  res.Records,
				Anchor:   res.Anchor,
				Error:    fmt.Sprintf("chain broken: expected prev_hash %s, got %s", prev, r.PrevHash),
				ErrorSeq: r.Seq,
			}
		}

		want, err := ComputeHash(r)
		if err != nil {
			return VerifyResult{Error: err.Error(), Records: res.Records, ErrorSeq: r.Seq}
		}
		if want != r.Hash {
			return VerifyResult{
				Records:  res.Records,
				Anchor:   res.Anchor,
				Error:    fmt.Sprintf("hash mismatch: content hashes to %s, stored %s", want, r.Hash),
				ErrorSeq: r.Seq,
			}
		}
		prev = r.Hash
	}
	if err := rows.Err(); err != nil {
		return VerifyResult{Error: fmt.Sprintf("scan: %v", err), Records: res.Records}
	}

	res.Valid = true
	return res
}
