// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jllopis/neuralchat/pkg/chatbot"
	"github.com/jllopis/neuralchat/pkg/command"
)

// NewTextChat returns the textchat executor. Without --prompt it reads
// prompts from stdin, one per line, keeping the conversation history until
// "exit" or end of input.
func NewTextChat(app *App) command.Factory {
	return func(env command.Env) command.Executor {
		return command.ExecutorFunc(func(ctx context.Context, argv []string) bool {
			fs := command.NewFlagSet(env, "neuralchat textchat")
			prompt := fs.String("prompt", "", "Prompt text.")
			stream := fs.Bool("stream", false, "Write the answer as it is generated.")
			session := fs.String("session", "", "Conversation id for multi-turn chat.")
			if err := fs.Parse(argv); err != nil {
				return command.FlagResult(err)
			}

			adapter, err := chatbot.Build(ctx, app.config(), app.Options...)
			if err != nil {
				fmt.Fprintf(env.Stderr, "TextChatExecutor Exception: %v\n", err)
				return false
			}
			defer adapter.Close()

			if *prompt != "" {
				return chatOnce(ctx, env, adapter, *session, *prompt, *stream)
			}
			return chatLoop(ctx, env, app, adapter, *stream)
		})
	}
}

// TextChat is the direct-call form of textchat: it composes a chatbot for a
// single stateless turn and returns the answer without printing it.
func (app *App) TextChat(ctx context.Context, prompt string) (string, error) {
	adapter, err := chatbot.Build(ctx, app.config(), app.Options...)
	if err != nil {
		return "", err
	}
	defer adapter.Close()
	reply, err := adapter.Chat(ctx, prompt)
	if err != nil {
		return "", err
	}
	return reply.Content, nil
}

func chatOnce(ctx context.Context, env command.Env, a *chatbot.Adapter, session, prompt string, stream bool) bool {
	if stream {
		if _, err := a.ChatStream(ctx, session, prompt, env.Stdout); err != nil {
			fmt.Fprintf(env.Stderr, "\nTextChatExecutor Exception: %v\n", err)
			return false
		}
		fmt.Fprintln(env.Stdout)
		return true
	}
	return command.Report(env, "TextChatExecutor", func() (any, error) {
		reply, err := a.Converse(ctx, session, prompt)
		if err != nil {
			return nil, err
		}
		return reply.Content, nil
	})
}

func chatLoop(ctx context.Context, env command.Env, app *App, a *chatbot.Adapter, stream bool) bool {
	session := uuid.NewString()
	scanner := bufio.NewScanner(app.stdin())
	ok := true
	fmt.Fprint(env.Stdout, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "exit", "quit":
			return ok
		case "/reset":
			if err := a.ResetSession(ctx, session); err != nil {
				fmt.Fprintf(env.Stderr, "TextChatExecutor Exception: %v\n", err)
			}
		default:
			if !chatOnce(ctx, env, a, session, line, stream) {
				ok = false
			}
		}
		if ctx.Err() != nil {
			return false
		}
		fmt.Fprint(env.Stdout, "> ")
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(env.Stderr, "TextChatExecutor Exception: %v\n", err)
		return false
	}
	return ok
}
