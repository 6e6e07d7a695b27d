package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/golovatskygroup/jira-lens/internal/logging"
	"github.com/golovatskygroup/jira-lens/internal/tools"
	"github.com/golovatskygroup/jira-lens/pkg/mcp"
)

// Server is the jira-lens MCP server.
type Server struct {
	transport *mcp.Transport
	handler   *tools.Handler
	info      mcp.ServerInfo
	logger    *slog.Logger
}

type Options struct {
	In      io.Reader
	Out     io.Writer
	Name    string
	Version string
	Logger  *slog.Logger
}

// New creates a server that speaks line-delimited JSON-RPC on opts.In and opts.Out.
func New(handler *tools.Handler, opts Options) *Server {
	info := mcp.ServerInfo{Name: opts.Name, Version: opts.Version}
	if info.Name == "" {
		info.Name = "jira-lens"
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	return &Server{
		transport: mcp.NewTransport(opts.In, opts.Out),
		handler:   handler,
		info:      info,
		logger:    logging.OrDiscard(opts.Logger),
	}
}

// Run serves requests until the input is exhausted or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server started", "tools", len(s.handler.BuiltinTools()))
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		req, err := s.transport.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Info("mcp client closed input")
				return nil
			}
			if errors.Is(err, mcp.ErrMalformedMessage) {
				s.logger.Warn("malformed message", "error", err)
				s.write(mcp.NewErrorResponse(nil, mcp.ParseError, err.Error()))
				continue
			}
			return fmt.Errorf("read message: %w", err)
		}

		resp := s.handleRequest(ctx, req)
		if resp != nil {
			s.write(resp)
		}
	}
}

func (s *Server) write(resp *mcp.Response) {
	if err := s.transport.WriteResponse(resp); err != nil {
		s.logger.Error("write response failed", "error", err)
	}
}

func (s *Server) handleRequest(ctx context.Context, req *mcp.Request) *mcp.Response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "tools/list":
		return s.handleListTools(req)
	case "tools/call":
		return s.handleCallTool(ctx, req)
	case "ping":
		return s.handlePing(req)
	}
	// notifications/initialized, notifications/cancelled, ...
	if req.IsNotification() {
		return nil
	}
	return mcp.NewErrorResponse(req.ID, mcp.MethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
}

func (s *Server) handleInitialize(req *mcp.Request) *mcp.Response {
	result := mcp.InitializeResult{
		ProtocolVersion: mcp.ProtocolVersion,
		Capabilities: mcp.ServerCapabilities{
			Tools: &mcp.ToolsCapability{},
		},
		ServerInfo:   s.info,
		Instructions: s.buildInstructions(),
	}
	resp, err := mcp.NewResponse(req.ID, result)
	if err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.InternalError, err.Error())
	}
	return resp
}

func (s *Server) handleListTools(req *mcp.Request) *mcp.Response {
	resp, err := mcp.NewResponse(req.ID, mcp.ListToolsResult{Tools: s.handler.BuiltinTools()})
	if err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.InternalError, err.Error())
	}
	return resp
}

func (s *Server) handleCallTool(ctx context.Context, req *mcp.Request) *mcp.Response {
	var params mcp.CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.InvalidParams, "Invalid params: "+err.Error())
	}
	if !s.handler.IsLocalTool(params.Name) {
		return mcp.NewErrorResponse(req.ID, mcp.InvalidParams, fmt.Sprintf("Unknown tool: %s", params.Name))
	}

	result, err := s.handler.Handle(ctx, params.Name, params.Arguments)
	if err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.InternalError, err.Error())
	}
	resp, err := mcp.NewResponse(req.ID, result)
	if err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.InternalError, err.Error())
	}
	return resp
}

func (s *Server) handlePing(req *mcp.Request) *mcp.Response {
	resp, _ := mcp.NewResponse(req.ID, map[string]any{})
	return resp
}

func (s *Server) buildInstructions() string {
	var sb strings.Builder
	sb.WriteString("Jira project resolver.\n\n")
	sb.WriteString("Use jira_find_project to turn a loose project reference (typo, transliteration, partial name) into a Jira project key before calling other Jira tools. Pass '*' to list every project.\n\n")
	sb.WriteString("Tools:\n")
	for _, t := range s.handler.BuiltinTools() {
		fmt.Fprintf(&sb, "- %s: %s\n", t.Name, t.Description)
	}
	return sb.String()
}
