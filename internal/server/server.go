// Package server exposes the policy engine over gRPC.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/crypdick/pynchy-gate/internal/config"
	"github.com/crypdick/pynchy-gate/internal/logging"
	"github.com/crypdick/pynchy-gate/internal/model"
	"github.com/crypdick/pynchy-gate/internal/policy"
	"github.com/crypdick/pynchy-gate/internal/rpc"
)

// Config holds gRPC server configuration.
type Config struct {
	Listen     string
	ConfigPath string // reloaded by Reload; empty means the default path
}

// Server implements the Gate gRPC service.
type Server struct {
	engine     *policy.Engine
	cfg        Config
	log        *logging.Entry
	grpcServer *grpc.Server
}

// New creates a Server around engine.
func New(engine *policy.Engine, cfg Config, log *logging.Entry) *Server {
	if cfg.Listen == "" {
		cfg.Listen = config.DefaultListen
	}
	s := &Server{
		engine: engine,
		cfg:    cfg,
		log:    logging.OrDiscard(log),
	}
	s.grpcServer = grpc.NewServer(grpc.UnaryInterceptor(s.logCalls))
	rpc.RegisterGateServer(s.grpcServer, s)
	return s
}

// Serve listens on the configured address. Blocks until stopped.
func (s *Server) Serve() error {
	lis, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}
	return s.ServeOn(lis)
}

// ServeOn serves on lis. Blocks until stopped.
func (s *Server) ServeOn(lis net.Listener) error {
	s.log.WithField("addr", lis.Addr().String()).Info("gate server listening")
	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// GracefulStop stops accepting calls and waits for running ones.
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
}

// Stop closes every connection at once, cancelling pending approval waits.
func (s *Server) Stop() {
	s.grpcServer.Stop()
}

// Reload re-reads the config file and swaps the engine's snapshot. A config
// that fails to load leaves the running snapshot in place.
func (s *Server) Reload() error {
	cfg, hash, err := config.LoadWithHash(s.cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}
	s.engine.Reload(policy.NewSnapshot(cfg, hash))
	return nil
}

func (s *Server) logCalls(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := next(ctx, req)
	entry := s.log.WithFields(logging.Fields{
		"method":   info.FullMethod,
		"duration": time.Since(start).Round(time.Microsecond).String(),
	})
	if err != nil {
		entry.WithError(err).Warn("rpc failed")
	} else {
		entry.Debug("rpc")
	}
	return resp, err
}

// Evaluate implements the Evaluate RPC. It blocks while a human approval is
// pending, bounded by the call's deadline.
func (s *Server) Evaluate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var a model.Action
	if err := rpc.Decode(in, &a); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if a.Capability == "" || a.SessionID == "" || a.WorkspaceID == "" {
		return nil, status.Error(codes.InvalidArgument, "capability, session_id and workspace_id are required")
	}
	return encode(s.engine.Evaluate(ctx, a))
}

// Reply implements the Reply RPC.
func (s *Server) Reply(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req rpc.ReplyRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	res := s.engine.Reply(req.WorkspaceID, req.Text)
	resp := rpc.ReplyResponse{Matched: res.Matched, Code: res.Code}
	if res.Outcome != nil {
		resp.Handled = true
		resp.Status = res.Outcome.Status
		resp.Reason = res.Outcome.Reason
	}
	return encode(resp)
}

// ListPending implements the ListPending RPC.
func (s *Server) ListPending(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return encode(rpc.ListPendingResponse{Approvals: s.engine.Pending()})
}

// Classify implements the Classify RPC using the active shell settings.
func (s *Server) Classify(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req rpc.ClassifyRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return encode(s.engine.Snapshot().Classifier.Classify(req.Command))
}

// Taint implements the Taint RPC.
func (s *Server) Taint(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req rpc.SessionRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return encode(rpc.TaintResponse{SessionID: req.SessionID, TaintSnapshot: s.engine.Taint(req.SessionID)})
}

// EndSession implements the EndSession RPC.
func (s *Server) EndSession(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req rpc.SessionRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	s.engine.EndSession(req.SessionID)
	s.log.WithField("session", req.SessionID).Debug("session ended")
	return &structpb.Struct{}, nil
}

func encode(v any) (*structpb.Struct, error) {
	out, err := rpc.Encode(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
