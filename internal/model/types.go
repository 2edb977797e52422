package model

import (
	"fmt"
	"strings"
)

// TrustLevel is the tri-state value of a single trust attribute.
type TrustLevel string

const (
	Safe      TrustLevel = "safe"
	Risky     TrustLevel = "risky"
	Forbidden TrustLevel = "forbidden"
)

// ParseTrustLevel maps a string to a TrustLevel. Fail-closed: unknown → Risky.
func ParseTrustLevel(s string) TrustLevel {
	switch TrustLevel(strings.ToLower(strings.TrimSpace(s))) {
	case Safe:
		return Safe
	case Forbidden:
		return Forbidden
	default:
		return Risky
	}
}

// TrustDeclaration describes one named external capability (a service or an MCP tool).
type TrustDeclaration struct {
	PublicSource    TrustLevel `yaml:"public_source" json:"public_source"`
	SecretData      TrustLevel `yaml:"secret_data" json:"secret_data"`
	PublicSink      TrustLevel `yaml:"public_sink" json:"public_sink"`
	DangerousWrites TrustLevel `yaml:"dangerous_writes" json:"dangerous_writes"`
}

// CautiousDeclaration is the declaration assumed for any undeclared capability.
func CautiousDeclaration() TrustDeclaration {
	return TrustDeclaration{
		PublicSource:    Risky,
		SecretData:      Risky,
		PublicSink:      Risky,
		DangerousWrites: Risky,
	}
}

// Normalized returns a copy where empty or unrecognized attributes are Risky.
func (d TrustDeclaration) Normalized() TrustDeclaration {
	return TrustDeclaration{
		PublicSource:    ParseTrustLevel(string(d.PublicSource)),
		SecretData:      ParseTrustLevel(string(d.SecretData)),
		PublicSink:      ParseTrustLevel(string(d.PublicSink)),
		DangerousWrites: ParseTrustLevel(string(d.DangerousWrites)),
	}
}

// FirstForbidden returns the name of the first forbidden attribute in
// declaration order, or "" when none is forbidden.
func (d TrustDeclaration) FirstForbidden() string {
	switch {
	case d.PublicSource == Forbidden:
		return "public_source"
	case d.SecretData == Forbidden:
		return "secret_data"
	case d.PublicSink == Forbidden:
		return "public_sink"
	case d.DangerousWrites == Forbidden:
		return "dangerous_writes"
	}
	return ""
}

func (d TrustDeclaration) String() string {
	return fmt.Sprintf("public_source=%s secret_data=%s public_sink=%s dangerous_writes=%s",
		d.PublicSource, d.SecretData, d.PublicSink, d.DangerousWrites)
}

// OperationKind distinguishes reads from writes.
type OperationKind string

const (
	Read  OperationKind = "read"
	Write OperationKind = "write"
)

// ParseOperation maps a string to an OperationKind. Fail-closed: unknown → Write.
func ParseOperation(s string) OperationKind {
	if strings.EqualFold(strings.TrimSpace(s), string(Read)) {
		return Read
	}
	return Write
}

// ActionMode marks whether the agent waits on the action's result.
type ActionMode string

const (
	FireAndForget ActionMode = "fire_and_forget"
	RequestReply  ActionMode = "request_reply"
)

// ParseMode maps a string to an ActionMode. Empty returns def; anything
// unrecognized is RequestReply, the fail-closed mode.
func ParseMode(s string, def ActionMode) ActionMode {
	switch ActionMode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return def
	case FireAndForget:
		return FireAndForget
	default:
		return RequestReply
	}
}

// Action is one inbound action descriptor from the transport layer.
type Action struct {
	Capability  string        `json:"capability"`
	Operation   OperationKind `json:"operation"`
	SessionID   string        `json:"session_id"`
	WorkspaceID string        `json:"workspace_id"`
	Mode        ActionMode    `json:"mode,omitempty"`
	Payload     string        `json:"payload,omitempty"`
}

// Summary is a one-line human-readable description used in prompts and reviews.
func (a Action) Summary() string {
	s := fmt.Sprintf("%s %s (workspace %s)", a.Operation, a.Capability, a.WorkspaceID)
	if a.Payload != "" {
		p := a.Payload
		if len(p) > 200 {
			p = p[:197] + "..."
		}
		s += ": " + p
	}
	return s
}

// TaintSnapshot is a read-only copy of a session's security flags.
type TaintSnapshot struct {
	CorruptionTainted bool `json:"corruption_tainted"`
	SecretTainted     bool `json:"secret_tainted"`
}

// Trifecta reports whether both flags are set.
func (t TaintSnapshot) Trifecta() bool {
	return t.CorruptionTainted && t.SecretTainted
}
