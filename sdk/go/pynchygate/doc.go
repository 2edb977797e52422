// Package pynchygate lets a Go agent host route its tool calls through the
// gate before running them. A Client evaluates each action either
// in-process, against a trust config loaded from disk, or against a running
// gate server, and Wrap refuses to call a tool the gate denies.
//
// Usage:
//
//	g, err := pynchygate.New(pynchygate.WithConfig("gate.yaml"), pynchygate.WithWorkspace("main"))
//	send := g.Wrap(postToSlack)
//	_, err = send(ctx, pynchygate.Action{Capability: "slack", Operation: "write", Payload: msg})
//	if errors.Is(err, pynchygate.ErrPolicyDenied) { ... }
//
// A Client tracks one agent session: reads it lets through taint the writes
// that follow. Use NewSession for each new conversation.
package pynchygate
