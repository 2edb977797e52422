// Package client talks to a running gate server.
package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/crypdick/pynchy-gate/internal/approval"
	"github.com/crypdick/pynchy-gate/internal/bashgate"
	"github.com/crypdick/pynchy-gate/internal/model"
	"github.com/crypdick/pynchy-gate/internal/rpc"
)

// CallTimeout bounds every call except Evaluate, which may wait on a human.
const CallTimeout = 5 * time.Second

// Client connects to a gate server.
type Client struct {
	conn *grpc.ClientConn
	gate *rpc.GateClient
}

// New creates a client for addr. The connection is established lazily.
// Fail-closed: if the server cannot be reached, Evaluate returns deny.
func New(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gate server: %w", err)
	}
	return &Client{conn: conn, gate: rpc.NewGateClient(conn)}, nil
}

// Evaluate asks the server to decide a. It blocks while a human approval is
// pending; ctx bounds the wait. Any RPC error yields a deny.
func (c *Client) Evaluate(ctx context.Context, a model.Action) model.PolicyResult {
	var res model.PolicyResult
	if err := c.call(ctx, rpc.MethodEvaluate, a, &res); err != nil {
		return model.PolicyResult{
			Outcome:  model.OutcomeDeny,
			Decision: model.Blocked,
			Kind:     model.KindBlocked,
			Reason:   fmt.Sprintf("policy server unreachable: %v", err),
			Denial:   model.DenialUnavailable,
		}
	}
	return res
}

// Reply forwards a human message for a workspace.
func (c *Client) Reply(ctx context.Context, workspaceID, text string) (rpc.ReplyResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()
	var resp rpc.ReplyResponse
	err := c.call(ctx, rpc.MethodReply, rpc.ReplyRequest{WorkspaceID: workspaceID, Text: text}, &resp)
	return resp, err
}

// ListPending returns the approvals waiting for a human.
func (c *Client) ListPending(ctx context.Context) ([]approval.Approval, error) {
	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()
	var resp rpc.ListPendingResponse
	if err := c.call(ctx, rpc.MethodListPending, struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.Approvals, nil
}

// Classify classifies a shell command with the server's lists.
func (c *Client) Classify(ctx context.Context, command string) (bashgate.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()
	var resp rpc.ClassifyResponse
	err := c.call(ctx, rpc.MethodClassify, rpc.ClassifyRequest{Command: command}, &resp)
	return resp, err
}

// Taint returns a session's flags.
func (c *Client) Taint(ctx context.Context, sessionID string) (model.TaintSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()
	var resp rpc.TaintResponse
	err := c.call(ctx, rpc.MethodTaint, rpc.SessionRequest{SessionID: sessionID}, &resp)
	return resp.TaintSnapshot, err
}

// EndSession drops a session's taint on the server.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()
	return c.call(ctx, rpc.MethodEndSession, rpc.SessionRequest{SessionID: sessionID}, &struct{}{})
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	in, err := rpc.Encode(req)
	if err != nil {
		return err
	}
	var out *structpb.Struct
	out, err = c.gate.Call(ctx, method, in)
	if err != nil {
		return err
	}
	return rpc.Decode(out, resp)
}
