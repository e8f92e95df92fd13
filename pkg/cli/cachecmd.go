// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"

	"gopkg.in/yaml.v3"

	"github.com/jllopis/neuralchat/pkg/command"
	"github.com/jllopis/neuralchat/pkg/config"
	"github.com/jllopis/neuralchat/pkg/plugins/cache"
)

// NewCacheStats initializes the process-wide cache from cache_chat_config_file
// and prints its counters as YAML.
func NewCacheStats(app *App) command.Factory {
	return func(env command.Env) command.Executor {
		return command.ExecutorFunc(func(ctx context.Context, argv []string) bool {
			fs := command.NewFlagSet(env, "neuralchat cache stats")
			if err := fs.Parse(argv); err != nil {
				return command.FlagResult(err)
			}
			return command.Report(env, "cache stats", func() (any, error) {
				cfg := app.config()
				file := cfg.CacheChatConfigFile
				if file == "" {
					file = config.DefaultCacheConfigFile
				}
				c, err := cache.Init(ctx, file, cfg.CacheEmbeddingModelDir, cache.WithLogger(env.Logger))
				if err != nil {
					return nil, err
				}
				stats, err := c.Stats(ctx)
				if err != nil {
					return nil, err
				}
				out, err := yaml.Marshal(stats)
				if err != nil {
					return nil, err
				}
				return string(out), nil
			})
		})
	}
}
