package rpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/crypdick/pynchy-gate/internal/approval"
	"github.com/crypdick/pynchy-gate/internal/bashgate"
	"github.com/crypdick/pynchy-gate/internal/model"
)

// Message bodies. Evaluate takes a model.Action and returns a
// model.PolicyResult.

type ReplyRequest struct {
	WorkspaceID string `json:"workspace_id"`
	Text        string `json:"text"`
}

type ReplyResponse struct {
	Matched bool            `json:"matched"`
	Handled bool            `json:"handled"`
	Code    string          `json:"code,omitempty"`
	Status  approval.Status `json:"status,omitempty"`
	Reason  string          `json:"reason,omitempty"`
}

type ListPendingResponse struct {
	Approvals []approval.Approval `json:"approvals"`
}

type ClassifyRequest struct {
	Command string `json:"command"`
}

type ClassifyResponse = bashgate.Result

type SessionRequest struct {
	SessionID   string `json:"session_id"`
	WorkspaceID string `json:"workspace_id,omitempty"`
}

type TaintResponse struct {
	SessionID string `json:"session_id"`
	model.TaintSnapshot
}

// Encode converts v into a Struct through its JSON form.
func Encode(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("rpc: encode: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("rpc: encode: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("rpc: encode: %w", err)
	}
	return s, nil
}

// Decode fills v from s. A nil s leaves v untouched.
func Decode(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("rpc: decode: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("rpc: decode: %w", err)
	}
	return nil
}
