// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli holds the neuralchat executors and the table that registers
// them in the command tree. Executors other than help and version are
// deferred: they are named by reference and resolved through the catalog
// on first dispatch.
package cli

import (
	"context"
	"io"
	"os"

	"github.com/jllopis/neuralchat/pkg/chatbot"
	"github.com/jllopis/neuralchat/pkg/command"
	"github.com/jllopis/neuralchat/pkg/config"
	"github.com/jllopis/neuralchat/pkg/mcp"
)

// Program is the name printed in usage lines.
const Program = "neuralchat"

// Locations of the deferred executors.
const (
	LocationTextChat  = "neuralchat.cli.textchat"
	LocationVoiceChat = "neuralchat.cli.voicechat"
	LocationConfig    = "neuralchat.cli.config"
	LocationCache     = "neuralchat.cli.cache"
	LocationMCP       = "neuralchat.cli.mcp"
)

// App is the state shared by executors.
type App struct {
	Config *config.Config
	// ConfigPath and Profile locate the file Config was loaded from; mcp serve
	// watches it.
	ConfigPath string
	Profile    string
	// Args are the process arguments; mcp serve --watch reapplies their
	// --set overrides on every reload.
	Args    []string
	Version string
	Stdin   io.Reader
	// DialMCP connects mcp call to a server. Nil starts the --server
	// command line and talks to it over stdio.
	DialMCP func(ctx context.Context, server string, opts ...mcp.ClientOption) (*mcp.Client, error)
	// Options are appended to every chatbot.Build call.
	Options []chatbot.Option

	catalog *command.Catalog
}

func (app *App) config() config.Config {
	if app.Config == nil {
		return config.Default()
	}
	return *app.Config
}

func (app *App) stdin() io.Reader {
	if app.Stdin == nil {
		return os.Stdin
	}
	return app.Stdin
}

// Registrations is the startup command table.
func Registrations(app *App) []command.Registration {
	return []command.Registration{
		{Path: "help", Target: command.Bound(command.NewHelp(Program)), Description: "Show help for neuralchat commands."},
		{Path: "version", Target: command.Bound(NewVersion(app.Version)), Description: "Show version of current neuralchat package."},
		{Path: "textchat", Target: command.Deferred(LocationTextChat + ".TextChatExecutor"), Description: "Get the response for the text prompt."},
		{Path: "voicechat", Target: command.Deferred(LocationVoiceChat + ".VoiceChatExecutor"), Description: "Get the response for the audio or text input."},
		{Path: "config.validate", Target: command.Deferred(LocationConfig + ".ValidateExecutor"), Description: "Report every configuration violation."},
		{Path: "config.show", Target: command.Deferred(LocationConfig + ".ShowExecutor"), Description: "Print the effective configuration."},
		{Path: "cache.stats", Target: command.Deferred(LocationCache + ".StatsExecutor"), Description: "Initialize the response cache and print its counters."},
		{Path: "mcp.serve", Target: command.Deferred(LocationMCP + ".ServeExecutor"), Description: "Serve the chatbot as an MCP tool over stdio."},
		{Path: "mcp.call", Target: command.Deferred(LocationMCP + ".CallExecutor"), Description: "Call a tool on an MCP server started over stdio."},
	}
}

// Catalog provides every deferred executor named by Registrations.
func Catalog(app *App) *command.Catalog {
	c := command.NewCatalog()
	c.ProvideFactory(LocationTextChat, "TextChatExecutor", NewTextChat(app))
	c.ProvideFactory(LocationVoiceChat, "VoiceChatExecutor", NewVoiceChat(app))
	c.ProvideFactory(LocationConfig, "ValidateExecutor", NewConfigValidate(app))
	c.ProvideFactory(LocationConfig, "ShowExecutor", NewConfigShow(app))
	c.ProvideFactory(LocationCache, "StatsExecutor", NewCacheStats(app))
	c.Provide(LocationMCP, "ServeExecutor", func() (command.Factory, error) {
		return NewMCPServe(app), nil
	})
	c.ProvideFactory(LocationMCP, "CallExecutor", NewMCPCall(app))
	app.catalog = c
	return c
}

// Tree builds the command tree with namespace descriptions.
func Tree(app *App) (*command.Tree, error) {
	tree, err := command.Build(Registrations(app))
	if err != nil {
		return nil, err
	}
	for path, desc := range map[string]string{
		"config": "Inspect the chatbot configuration.",
		"cache":  "Manage the response cache.",
		"mcp":    "Model Context Protocol integration.",
	} {
		if err := tree.Describe(path, desc); err != nil {
			return nil, err
		}
	}
	return tree, nil
}
