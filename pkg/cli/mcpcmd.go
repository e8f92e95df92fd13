// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jllopis/neuralchat/pkg/chatbot"
	"github.com/jllopis/neuralchat/pkg/command"
	"github.com/jllopis/neuralchat/pkg/config"
	"github.com/jllopis/neuralchat/pkg/mcp"
)

// NewMCPServe returns the mcp serve executor. It resolves every deferred
// command up front, composes the chatbot and serves it over stdin/stdout
// until the input closes or the context is cancelled. With --watch the
// chatbot is recomposed whenever the config file changes.
func NewMCPServe(app *App) command.Factory {
	return func(env command.Env) command.Executor {
		return command.ExecutorFunc(func(ctx context.Context, argv []string) bool {
			fs := command.NewFlagSet(env, "neuralchat mcp serve")
			watch := fs.Bool("watch", false, "Recompose the chatbot when the config file changes.")
			interval := fs.Duration("interval", 2*time.Second, "Config polling interval with --watch.")
			if err := fs.Parse(argv); err != nil {
				return command.FlagResult(err)
			}
			if err := serveMCP(ctx, env, app, *watch, *interval); err != nil {
				fmt.Fprintf(env.Stderr, "mcp serve Exception: %v\n", err)
				return false
			}
			return true
		})
	}
}

func serveMCP(ctx context.Context, env command.Env, app *App, watch bool, interval time.Duration) error {
	if env.Tree != nil && app.catalog != nil {
		if err := env.Tree.ResolveAll(app.catalog); err != nil {
			return err
		}
	}

	adapter, err := chatbot.Build(ctx, app.config(), app.Options...)
	if err != nil {
		return err
	}
	version := app.Version
	if version == "" {
		version = "dev"
	}
	srv := mcp.NewServer(Program, version, adapter,
		mcp.WithCommandTree(env.Tree),
		mcp.WithServerLogger(env.Logger))
	var retiring sync.WaitGroup
	defer func() {
		retire(&retiring, srv, nil)
		retiring.Wait()
	}()

	if watch {
		if app.ConfigPath == "" {
			return errors.New("--watch needs --config")
		}
		w, err := config.NewWatcher(app.ConfigPath,
			config.WithWatchInterval(interval),
			config.WithWatchProfile(app.Profile),
			config.WithWatchOverrides(app.Args),
			config.WithWatchLogger(env.Logger))
		if err != nil {
			return err
		}
		w.Subscribe(func(_, cfg *config.Config) {
			next, err := chatbot.Build(ctx, *cfg, app.Options...)
			if err != nil {
				env.Logger.ErrorContext(ctx, "recompose failed, keeping the current chatbot", "error", err)
				return
			}
			retire(&retiring, srv, next)
			env.Logger.InfoContext(ctx, "chatbot recomposed", "plugins", next.Plugins())
		})
		w.Start(ctx)
		defer w.Stop()
	}

	env.Logger.InfoContext(ctx, "mcp server listening on stdio", "plugins", adapter.Plugins())
	err = srv.Listen(ctx, app.stdin(), env.Stdout)
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// retire installs next and closes the previous adapter once the calls still
// running on it have returned.
func retire(wg *sync.WaitGroup, srv *mcp.Server, next *chatbot.Adapter) {
	var c mcp.Chatter
	if next != nil {
		c = next
	}
	prev, idle := srv.SetChatter(c)
	old, ok := prev.(*chatbot.Adapter)
	if !ok {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		idle()
		_ = old.Close()
	}()
}
