// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"

	"github.com/jllopis/neuralchat/pkg/command"
	"github.com/jllopis/neuralchat/pkg/config"
)

// NewConfigValidate reports every violated rule of the loaded configuration.
func NewConfigValidate(app *App) command.Factory {
	return func(env command.Env) command.Executor {
		return command.ExecutorFunc(func(_ context.Context, argv []string) bool {
			fs := command.NewFlagSet(env, "neuralchat config validate")
			if err := fs.Parse(argv); err != nil {
				return command.FlagResult(err)
			}
			res := config.Validate(app.config())
			if res.OK() {
				fmt.Fprintln(env.Stdout, res)
				return true
			}
			for _, v := range res.Violations {
				fmt.Fprintf(env.Stderr, "%-18s %s\n", v.Rule, v.Message)
			}
			return false
		})
	}
}

// NewConfigShow prints the effective configuration as YAML.
func NewConfigShow(app *App) command.Factory {
	return func(env command.Env) command.Executor {
		return command.ExecutorFunc(func(_ context.Context, argv []string) bool {
			fs := command.NewFlagSet(env, "neuralchat config show")
			if err := fs.Parse(argv); err != nil {
				return command.FlagResult(err)
			}
			return command.Report(env, "config show", func() (any, error) {
				out, err := app.config().Marshal()
				if err != nil {
					return nil, err
				}
				return string(out), nil
			})
		})
	}
}
