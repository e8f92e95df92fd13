// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"

	"github.com/jllopis/neuralchat/pkg/command"
)

// Unreleased is printed when the binary carries no version.
const Unreleased = "Not an official release"

// NewVersion returns the version executor.
func NewVersion(version string) command.Factory {
	if version == "" || version == "dev" {
		version = Unreleased
	}
	return func(env command.Env) command.Executor {
		return command.ExecutorFunc(func(context.Context, []string) bool {
			fmt.Fprintf(env.Stdout, "Package Version:\n    %s\n\n", version)
			return true
		})
	}
}
