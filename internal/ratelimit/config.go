package ratelimit

import "time"

// DefaultWindow is the width of the sliding window.
const DefaultWindow = time.Hour

// WorkspaceLimit caps calls per window for one workspace.
// Zero values mean no limit.
type WorkspaceLimit struct {
	MaxCalls int            `yaml:"max_calls" json:"max_calls"`
	PerTool  map[string]int `yaml:"per_tool" json:"per_tool,omitempty"`
}

// HasLimits returns true if any cap is configured.
func (w WorkspaceLimit) HasLimits() bool {
	if w.MaxCalls > 0 {
		return true
	}
	for _, n := range w.PerTool {
		if n > 0 {
			return true
		}
	}
	return false
}

// Limits is the full rate-limit configuration, fixed after load.
type Limits struct {
	Window     time.Duration
	Default    WorkspaceLimit
	Workspaces map[string]WorkspaceLimit
}

// For returns the limit that applies to a workspace.
// Lookup order: Workspaces[workspace] → Default.
func (l Limits) For(workspace string) WorkspaceLimit {
	if w, ok := l.Workspaces[workspace]; ok {
		return w
	}
	return l.Default
}

func (l Limits) window() time.Duration {
	if l.Window <= 0 {
		return DefaultWindow
	}
	return l.Window
}
