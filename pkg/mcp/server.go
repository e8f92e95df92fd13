// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcp exposes the composed chatbot as Model Context Protocol tools
// and provides a small client for talking to MCP servers.
package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jllopis/neuralchat/pkg/chatbot"
	"github.com/jllopis/neuralchat/pkg/command"
)

// Tool names served by Server.
const (
	ToolChat     = "chat"
	ToolCommands = "commands"
)

// Chatter answers prompts; *chatbot.Adapter implements it.
type Chatter interface {
	Converse(ctx context.Context, session, prompt string) (chatbot.Reply, error)
}

// Server wraps the mcp-go server with the chat and commands tools.
type Server struct {
	mcpServer *server.MCPServer
	tree      *command.Tree
	logger    *slog.Logger

	mu  sync.RWMutex
	gen *generation
}

// generation is one installed chatter and the tool calls still using it.
type generation struct {
	chatter  Chatter
	inflight sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithCommandTree makes the commands tool list the leaves of tree.
func WithCommandTree(tree *command.Tree) ServerOption {
	return func(s *Server) { s.tree = tree }
}

// WithServerLogger sets the server logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// NewServer creates an MCP server answering with chatter.
func NewServer(name, version string, chatter Chatter, opts ...ServerOption) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
		gen:       &generation{chatter: chatter},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcpServer.AddTool(mcp.NewTool(ToolChat,
		mcp.WithDescription("Ask the NeuralChat chatbot a question."),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("Prompt text.")),
		mcp.WithString("session", mcp.Description("Conversation id for multi-turn chat.")),
	), s.handleChat)

	if s.tree != nil {
		s.mcpServer.AddTool(mcp.NewTool(ToolCommands,
			mcp.WithDescription("List the neuralchat commands."),
		), s.handleCommands)
	}
	return s
}

// SetChatter swaps the chatter used by new calls. It returns the previous
// chatter and a function that blocks until no call is still running on it,
// after which the previous chatter can be closed.
func (s *Server) SetChatter(c Chatter) (prev Chatter, idle func()) {
	s.mu.Lock()
	old := s.gen
	s.gen = &generation{chatter: c}
	s.mu.Unlock()
	return old.chatter, old.inflight.Wait
}

// acquire returns the current generation with the call counted in it. The
// caller must call release when a chatter was returned.
func (s *Server) acquire() (Chatter, func()) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g := s.gen
	if g.chatter == nil {
		return nil, func() {}
	}
	g.inflight.Add(1)
	return g.chatter, g.inflight.Done
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

func (s *Server) handleChat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	prompt, _ := args["prompt"].(string)
	session, _ := args["session"].(string)
	if strings.TrimSpace(prompt) == "" {
		return mcp.NewToolResultError("prompt is required"), nil
	}

	chatter, release := s.acquire()
	defer release()
	if chatter == nil {
		return mcp.NewToolResultError("chatbot is not ready"), nil
	}
	reply, err := chatter.Converse(ctx, session, prompt)
	if err != nil {
		s.logger.WarnContext(ctx, "mcp chat failed", "session", session, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.logger.DebugContext(ctx, "mcp chat", "session", session, "cached", reply.Cached, "blocked", reply.Blocked)
	return mcp.NewToolResultText(reply.Content), nil
}

func (s *Server) handleCommands(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var b strings.Builder
	err := s.tree.Walk(func(path string, leaf *command.Leaf) error {
		fmt.Fprintf(&b, "%s\t%s\n", strings.ReplaceAll(path, command.Separator, " "), leaf.Description())
		return nil
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(b.String()), nil
}

// Listen serves on in and out until ctx is done or in is closed.
func (s *Server) Listen(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcpServer).Listen(ctx, in, out)
}
