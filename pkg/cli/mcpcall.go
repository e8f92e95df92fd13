// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jllopis/neuralchat/pkg/command"
	"github.com/jllopis/neuralchat/pkg/mcp"
)

// DialStdio starts the MCP server command line in server and connects to
// it over stdio.
func DialStdio(ctx context.Context, server string, opts ...mcp.ClientOption) (*mcp.Client, error) {
	fields := strings.Fields(server)
	if len(fields) == 0 {
		return nil, errors.New("--server is required")
	}
	return mcp.NewStdioClient(ctx, fields[0], fields[1:], opts...)
}

func (app *App) dialMCP(ctx context.Context, server string, opts ...mcp.ClientOption) (*mcp.Client, error) {
	if app.DialMCP != nil {
		return app.DialMCP(ctx, server, opts...)
	}
	return DialStdio(ctx, server, opts...)
}

// NewMCPCall returns the mcp call executor. It connects to an MCP server,
// usually another "neuralchat mcp serve", and calls one of its tools or
// lists them.
func NewMCPCall(app *App) command.Factory {
	return func(env command.Env) command.Executor {
		return command.ExecutorFunc(func(ctx context.Context, argv []string) bool {
			fs := command.NewFlagSet(env, "neuralchat mcp call")
			server := fs.String("server", "", "Command line that starts the MCP server.")
			tool := fs.String("tool", mcp.ToolChat, "Tool to call.")
			prompt := fs.String("prompt", "", "Prompt argument for the chat tool.")
			session := fs.String("session", "", "Session argument for the chat tool.")
			extra := fs.StringArray("arg", nil, "Extra tool argument as key=value; repeatable.")
			list := fs.Bool("list", false, "List the server tools instead of calling one.")
			timeout := fs.Duration("timeout", 0, "Per-request timeout.")
			retries := fs.Int("retries", -1, "Retries after a failed request.")
			if err := fs.Parse(argv); err != nil {
				return command.FlagResult(err)
			}

			return command.Report(env, "mcp call", func() (any, error) {
				if *server == "" && app.DialMCP == nil {
					return nil, errors.New("--server is required")
				}
				args, err := toolArguments(*prompt, *session, *extra)
				if err != nil {
					return nil, err
				}
				opts := []mcp.ClientOption{mcp.WithTimeout(*timeout)}
				if *retries >= 0 {
					opts = append(opts, mcp.WithRetry(*retries, 0))
				}
				c, err := app.dialMCP(ctx, *server, opts...)
				if err != nil {
					return nil, err
				}
				defer c.Close()

				if *list {
					tools, err := c.ListTools(ctx)
					if err != nil {
						return nil, err
					}
					var b strings.Builder
					for i, t := range tools {
						if i > 0 {
							b.WriteByte('\n')
						}
						fmt.Fprintf(&b, "%s\t%s", t.Name, t.Description)
					}
					return b.String(), nil
				}

				res, err := c.CallTool(ctx, *tool, args)
				if err != nil {
					return nil, err
				}
				text := mcp.Text(res)
				if res.IsError {
					return nil, fmt.Errorf("tool %s: %s", *tool, text)
				}
				return text, nil
			})
		})
	}
}

func toolArguments(prompt, session string, pairs []string) (map[string]any, error) {
	args := make(map[string]any, len(pairs)+2)
	if prompt != "" {
		args["prompt"] = prompt
	}
	if session != "" {
		args["session"] = session
	}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --arg %q, want key=value", p)
		}
		args[k] = v
	}
	return args, nil
}
