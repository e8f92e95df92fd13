// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the neuralchat CLI.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jllopis/neuralchat/pkg/cli"
	"github.com/jllopis/neuralchat/pkg/command"
	"github.com/jllopis/neuralchat/pkg/config"
	"github.com/jllopis/neuralchat/pkg/errors"
	"github.com/jllopis/neuralchat/pkg/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run loads the configuration from the --config, --profile and --set flags,
// dispatches the remaining arguments and returns the process exit status.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	path, profile, err := config.FileFromCLI(args)
	if err != nil {
		return printError(stderr, errors.New(errors.CodeConfiguration, "invalid command line", err))
	}
	cfg, err := config.LoadWithCLI(args)
	if err != nil {
		return printError(stderr, errors.New(errors.CodeConfiguration, "load configuration", err).
			WithContext("path", path))
	}

	logger := telemetry.ConfigureSlog(stderr, cfg.Log.Level, cfg.Log.Format)
	shutdown, err := telemetry.InitWithConfig(cli.Program, version, telemetry.Config{
		Exporter:           cfg.Telemetry.Exporter,
		OTLPEndpoint:       cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:       cfg.Telemetry.OTLPInsecure,
		OTLPTimeoutSeconds: cfg.Telemetry.OTLPTimeout,
		SampleRatio:        cfg.Telemetry.SampleRatio,
		Writer:             stderr,
	})
	if err != nil {
		return printError(stderr, errors.New(errors.CodeConfiguration, "initialize telemetry", err))
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	app := &cli.App{
		Config:     cfg,
		ConfigPath: path,
		Profile:    profile,
		Args:       args,
		Version:    version,
		Stdin:      stdin,
	}
	tree, err := cli.Tree(app)
	if err != nil {
		return printError(stderr, err)
	}
	d := command.NewDispatcher(tree, cli.Catalog(app),
		command.WithOutput(stdout, stderr),
		command.WithLogger(logger))

	status, err := d.Execute(ctx, config.StripCLIOverrides(args))
	if err != nil {
		return printError(stderr, err)
	}
	return status
}
