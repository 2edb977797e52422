package mcp

import (
	"context"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/crypdick/pynchy-gate/internal/bashgate"
	"github.com/crypdick/pynchy-gate/internal/logging"
	"github.com/crypdick/pynchy-gate/internal/model"
	"github.com/crypdick/pynchy-gate/internal/policy"
)

// EvaluateInput defines parameters for the gate_evaluate tool.
type EvaluateInput struct {
	Capability  string `json:"capability" jsonschema:"service, MCP tool or shell capability name"`
	Operation   string `json:"operation,omitempty" jsonschema:"read or write (default write)"`
	Payload     string `json:"payload,omitempty" jsonschema:"message body, or the command for the shell capability"`
	Mode        string `json:"mode,omitempty" jsonschema:"fire_and_forget or request_reply"`
	SessionID   string `json:"session_id,omitempty" jsonschema:"session id (defaults to this server's session)"`
	WorkspaceID string `json:"workspace_id,omitempty" jsonschema:"workspace id (defaults to this server's workspace)"`
}

// EvaluateOutput is the gate's answer.
type EvaluateOutput struct {
	Outcome      string `json:"outcome"`
	Decision     string `json:"decision"`
	Reason       string `json:"reason"`
	ApprovalCode string `json:"approval_code,omitempty"`
	Flagged      *bool  `json:"reviewer_flagged,omitempty"`
}

// ClassifyInput defines parameters for the gate_classify tool.
type ClassifyInput struct {
	Command string `json:"command" jsonschema:"shell command line"`
}

// ClassifyOutput is the command's classification.
type ClassifyOutput struct {
	Class    string             `json:"class"`
	Reason   string             `json:"reason"`
	Segments []bashgate.Segment `json:"segments"`
}

// ReplyInput defines parameters for the gate_reply tool.
type ReplyInput struct {
	Text        string `json:"text" jsonschema:"the human's message"`
	WorkspaceID string `json:"workspace_id,omitempty" jsonschema:"workspace the message came from"`
}

// ReplyOutput reports whether the message resolved a code.
type ReplyOutput struct {
	Matched bool   `json:"matched"`
	Handled bool   `json:"handled"`
	Code    string `json:"code,omitempty"`
	Status  string `json:"status,omitempty"`
}

// PendingInput is empty.
type PendingInput struct{}

// PendingOutput lists pending approvals.
type PendingOutput struct {
	Approvals []PendingItem `json:"approvals"`
}

// PendingItem describes one pending approval.
type PendingItem struct {
	Code        string `json:"code"`
	WorkspaceID string `json:"workspace_id"`
	Capability  string `json:"capability"`
	Summary     string `json:"summary"`
	Reason      string `json:"reason"`
	ExpiresAt   string `json:"expires_at"`
}

// TaintInput defines parameters for the gate_taint tool.
type TaintInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"session id (defaults to this server's session)"`
}

// TaintOutput holds a session's flags.
type TaintOutput struct {
	SessionID         string `json:"session_id"`
	CorruptionTainted bool   `json:"corruption_tainted"`
	SecretTainted     bool   `json:"secret_tainted"`
}

func (s *Server) handleEvaluate(ctx context.Context, _ *mcpsdk.CallToolRequest, in EvaluateInput) (*mcpsdk.CallToolResult, EvaluateOutput, error) {
	a := model.Action{
		Capability:  in.Capability,
		Operation:   model.ParseOperation(in.Operation),
		Payload:     in.Payload,
		Mode:        model.ActionMode(in.Mode),
		SessionID:   s.orSession(in.SessionID),
		WorkspaceID: s.orWorkspace(in.WorkspaceID),
	}
	if a.Capability == "" {
		return &mcpsdk.CallToolResult{IsError: true}, EvaluateOutput{
			Outcome: string(model.OutcomeDeny),
			Reason:  "capability is required",
		}, nil
	}

	res := s.engine.Evaluate(ctx, a, policy.OnPending(func(p model.PolicyResult) {
		s.log.WithFields(logging.Fields{"code": p.ApprovalCode, "capability": a.Capability}).
			Info("waiting for human approval")
	}))

	out := EvaluateOutput{
		Outcome:      string(res.Outcome),
		Decision:     string(res.Decision),
		Reason:       res.Reason,
		ApprovalCode: res.ApprovalCode,
	}
	if res.Reviewer != nil {
		flagged := res.Reviewer.Flagged
		out.Flagged = &flagged
	}
	if !res.Allowed() {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleClassify(_ context.Context, _ *mcpsdk.CallToolRequest, in ClassifyInput) (*mcpsdk.CallToolResult, ClassifyOutput, error) {
	r := s.engine.Snapshot().Classifier.Classify(in.Command)
	return nil, ClassifyOutput{Class: string(r.Class), Reason: r.Reason, Segments: r.Segments}, nil
}

func (s *Server) handleReply(_ context.Context, _ *mcpsdk.CallToolRequest, in ReplyInput) (*mcpsdk.CallToolResult, ReplyOutput, error) {
	r := s.engine.Reply(s.orWorkspace(in.WorkspaceID), in.Text)
	out := ReplyOutput{Matched: r.Matched, Code: r.Code}
	if r.Outcome != nil {
		out.Handled = true
		out.Status = string(r.Outcome.Status)
	}
	return nil, out, nil
}

func (s *Server) handlePending(context.Context, *mcpsdk.CallToolRequest, PendingInput) (*mcpsdk.CallToolResult, PendingOutput, error) {
	list := s.engine.Pending()
	out := PendingOutput{Approvals: make([]PendingItem, len(list))}
	for i, a := range list {
		out.Approvals[i] = PendingItem{
			Code:        a.Code,
			WorkspaceID: a.WorkspaceID,
			Capability:  a.Capability,
			Summary:     a.Summary,
			Reason:      a.Reason,
			ExpiresAt:   a.ExpiresAt.Format(time.RFC3339),
		}
	}
	return nil, out, nil
}

func (s *Server) handleTaint(_ context.Context, _ *mcpsdk.CallToolRequest, in TaintInput) (*mcpsdk.CallToolResult, TaintOutput, error) {
	sid := s.orSession(in.SessionID)
	t := s.engine.Taint(sid)
	return nil, TaintOutput{SessionID: sid, CorruptionTainted: t.CorruptionTainted, SecretTainted: t.SecretTainted}, nil
}

func (s *Server) orSession(id string) string {
	if id == "" {
		return s.session
	}
	return id
}

func (s *Server) orWorkspace(id string) string {
	if id == "" {
		return s.workspace
	}
	return id
}
