// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"os"

	"github.com/jllopis/neuralchat/pkg/chatbot"
	"github.com/jllopis/neuralchat/pkg/command"
	"github.com/jllopis/neuralchat/pkg/errors"
)

// NewVoiceChat returns the voicechat executor. --input is an audio file when
// it names an existing file and the prompt text otherwise. With --output the
// answer is synthesized to that file and the path is printed; without it the
// answer text is printed.
func NewVoiceChat(app *App) command.Factory {
	return func(env command.Env) command.Executor {
		return command.ExecutorFunc(func(ctx context.Context, argv []string) bool {
			fs := command.NewFlagSet(env, "neuralchat voicechat")
			input := fs.String("input", "", "Input audio or text.")
			output := fs.String("output", "", "Output audio file.")
			if err := fs.Parse(argv); err != nil {
				return command.FlagResult(err)
			}

			return command.Report(env, "VoiceChatExecutor", func() (any, error) {
				out, err := app.VoiceChat(ctx, *input, *output)
				if err != nil {
					return nil, err
				}
				return out, nil
			})
		})
	}
}

// VoiceChat is the direct-call form of voicechat. It returns the answer text,
// or the output path when the answer was synthesized.
func (app *App) VoiceChat(ctx context.Context, input, output string) (string, error) {
	if input == "" {
		return "", errors.Newf(errors.CodeInvalidInput, "--input is required")
	}
	info, err := os.Stat(input)
	audioIn := err == nil && !info.IsDir()

	cfg := app.config()
	cfg.AudioInput = audioIn
	cfg.AudioOutput = output != ""
	if audioIn {
		cfg.AudioInputPath = input
	}
	if output != "" {
		cfg.AudioOutputPath = output
	}

	adapter, err := chatbot.Build(ctx, cfg, app.Options...)
	if err != nil {
		return "", err
	}
	defer adapter.Close()

	prompt := input
	if audioIn {
		if prompt, err = adapter.Transcribe(ctx, input); err != nil {
			return "", err
		}
	}
	reply, err := adapter.Chat(ctx, prompt)
	if err != nil {
		return "", err
	}
	if output == "" {
		return reply.Content, nil
	}
	if err := adapter.Speak(ctx, reply.Content, output); err != nil {
		return "", err
	}
	return output, nil
}
