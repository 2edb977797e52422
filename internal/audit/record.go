// Package audit persists one tamper-evident record per gate decision.
//
// Records live in SQLite. Each row stores the hash of the previous row, so
// editing or deleting a row in the middle of the table breaks the chain.
// Retention pruning only removes the oldest rows; the first remaining row's
// prev_hash becomes the chain's anchor.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// TimestampFormat is the layout used in audit record timestamps. It sorts
// lexicographically, which the SQL range filters rely on.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// GenesisHash is the prev_hash of the first record ever written.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// Record is one audit row. Records are never modified after they are written.
type Record struct {
	Seq             int64  `json:"seq,omitempty"`
	ID              string `json:"id"`
	Timestamp       string `json:"ts"`
	WorkspaceID     string `json:"workspace_id"`
	SessionID       string `json:"session_id"`
	Capability      string `json:"capability"`
	Operation       string `json:"operation"`
	Kind            string `json:"kind"`
	Decision        string `json:"decision"`
	Reason          string `json:"reason"`
	ApprovalCode    string `json:"approval_code,omitempty"`
	ReviewerFlagged *bool  `json:"reviewer_flagged,omitempty"`
	ReviewerReason  string `json:"reviewer_reason,omitempty"`
	ConfigHash      string `json:"config_hash,omitempty"`
	PrevHash        string `json:"prev_hash"`
	Hash            string `json:"hash"`
}

// canonical is the hashed form of a Record. Struct fields (no maps) keep
// json.Marshal output deterministic.
type canonical struct {
	ID              string `json:"id"`
	Timestamp       string `json:"ts"`
	WorkspaceID     string `json:"workspace_id"`
	SessionID       string `json:"session_id"`
	Capability      string `json:"capability"`
	Operation       string `json:"operation"`
	Kind            string `json:"kind"`
	Decision        string `json:"decision"`
	Reason          string `json:"reason"`
	ApprovalCode    string `json:"approval_code"`
	ReviewerFlagged *bool  `json:"reviewer_flagged"`
	ReviewerReason  string `json:"reviewer_reason"`
	ConfigHash      string `json:"config_hash"`
	PrevHash        string `json:"prev_hash"`
}

// ComputeHash returns the hash of r's content including PrevHash.
// Seq and Hash itself are excluded.
func ComputeHash(r Record) (string, error) {
	line, err := json.Marshal(canonical{
		ID:              r.ID,
		Timestamp:       r.Timestamp,
		WorkspaceID:     r.WorkspaceID,
		SessionID:       r.SessionID,
		Capability:      r.Capability,
		Operation:       r.Operation,
		Kind:            r.Kind,
		Decision:        r.Decision,
		Reason:          r.Reason,
		ApprovalCode:    r.ApprovalCode,
		ReviewerFlagged: r.ReviewerFlagged,
		ReviewerReason:  r.ReviewerReason,
		ConfigHash:      r.ConfigHash,
		PrevHash:        r.PrevHash,
	})
	if err != nil {
		return "", fmt.Errorf("audit: marshal record: %w", err)
	}
	return HashLine(line), nil
}

// HashLine returns "sha256:<hex>" of the given bytes.
func HashLine(line []byte) string {
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:])
}

// Sink accepts audit records.
type Sink interface {
	Record(ctx context.Context, r Record) error
}
