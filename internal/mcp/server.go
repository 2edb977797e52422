// Package mcp exposes the gate as MCP tools over stdio.
package mcp

import (
	"context"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/crypdick/pynchy-gate/internal/logging"
	"github.com/crypdick/pynchy-gate/internal/policy"
)

// Config holds MCP server configuration.
type Config struct {
	WorkspaceID string // default workspace for calls that omit one
	SessionID   string // default session; a random one when empty
	Version     string
}

// Server wraps the MCP SDK server around a policy engine.
type Server struct {
	mcpServer *mcpsdk.Server
	engine    *policy.Engine
	workspace string
	session   string
	log       *logging.Entry
}

// New creates an MCP server with the gate tools registered.
func New(engine *policy.Engine, cfg Config, log *logging.Entry) *Server {
	if cfg.WorkspaceID == "" {
		cfg.WorkspaceID = "default"
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		engine:    engine,
		workspace: cfg.WorkspaceID,
		session:   cfg.SessionID,
		log:       logging.OrDiscard(log),
	}
	s.mcpServer = mcpsdk.NewServer(&mcpsdk.Implementation{Name: "pynchy-gate", Version: cfg.Version}, nil)
	s.registerTools()
	return s
}

// Run serves on stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.log.WithFields(logging.Fields{"workspace": s.workspace, "session": s.session}).Info("mcp server starting")
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "gate_evaluate",
		Description: "Ask the gate whether an action may run. Reads of untrusted or secret capabilities taint the session. Calls needing a human wait for the reply.",
	}, s.handleEvaluate)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "gate_classify",
		Description: "Classify a shell command as local-safe, network-capable or unknown without evaluating it.",
	}, s.handleClassify)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "gate_reply",
		Description: "Forward a human message such as \"approve abc234\" or \"deny abc234\" to the approval manager.",
	}, s.handleReply)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "gate_pending",
		Description: "List approval requests still waiting for a human.",
	}, s.handlePending)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "gate_taint",
		Description: "Show the taint flags of a session.",
	}, s.handleTaint)
}
