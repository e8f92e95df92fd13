// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/neuralchat/pkg/resilience"
)

const (
	defaultTimeout = 10 * time.Second
	defaultRetries = 2
	defaultBackoff = 200 * time.Millisecond
)

// ClientOption customizes the MCP client wrapper behavior.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRetry configures retry count and initial backoff.
func WithRetry(retries int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		if retries >= 0 {
			c.policy = c.policy.WithMaxAttempts(retries + 1)
		}
		if backoff > 0 {
			c.policy = c.policy.WithInitialDelay(backoff)
		}
	}
}

// Client calls the tools of an MCP server, retrying transport failures.
type Client struct {
	mcpClient client.MCPClient
	timeout   time.Duration
	policy    resilience.Policy
}

// NewClient wraps an initialized mcp-go client.
func NewClient(c client.MCPClient, opts ...ClientOption) *Client {
	cl := &Client{
		mcpClient: c,
		timeout:   defaultTimeout,
		policy: resilience.DefaultPolicy().
			WithMaxAttempts(defaultRetries + 1).
			WithInitialDelay(defaultBackoff),
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl
}

// NewInProcessClient connects to s without a transport.
func NewInProcessClient(ctx context.Context, s *Server, opts ...ClientOption) (*Client, error) {
	c, err := client.NewInProcessClient(s.MCPServer())
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	return initialize(ctx, c, opts)
}

// NewStdioClient launches command with args and speaks MCP over its stdin
// and stdout. Close stops the process.
func NewStdioClient(ctx context.Context, command string, args []string, opts ...ClientOption) (*Client, error) {
	c, err := client.NewStdioMCPClient(command, nil, args...)
	if err != nil {
		return nil, fmt.Errorf("start mcp server %s: %w", command, err)
	}
	return initialize(ctx, c, opts)
}

func initialize(ctx context.Context, c *client.Client, opts []ClientOption) (*Client, error) {
	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "neuralchat-client",
		Version: "0.1.0",
	}
	if _, err := c.Initialize(ctx, initRequest); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize mcp session: %w", err)
	}
	return NewClient(c, opts...), nil
}

// ListTools retrieves the list of tools available on the server.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	var tools []mcp.Tool
	err := c.retry(ctx, func(ctx context.Context) error {
		resp, err := c.mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
		if err == nil {
			tools = resp.Tools
		}
		return err
	})
	return tools, err
}

// CallTool executes a tool on the server.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	var res *mcp.CallToolResult
	err := c.retry(ctx, func(ctx context.Context) error {
		r, err := c.mcpClient.CallTool(ctx, req)
		if err == nil {
			res = r
		}
		return err
	})
	return res, err
}

// Text joins the text contents of a tool result.
func Text(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	var parts []string
	for _, content := range res.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.mcpClient.Close()
}

func (c *Client) retry(ctx context.Context, call func(context.Context) error) error {
	return c.policy.Do(ctx, func(ctx context.Context) error {
		reqCtx, cancel := c.withTimeout(ctx)
		defer cancel()
		return call(reqCtx)
	})
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
