// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

// Package audio provides the speech recognition and synthesis plugins. Both
// talk to an HTTP speech service; the general and Chinese variants differ in
// the language tag and voice they request.
package audio

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jllopis/neuralchat/pkg/resilience"
)

// Recognizer turns an audio file into text.
type Recognizer interface {
	Recognize(ctx context.Context, audioPath string) (string, error)
	Name() string
}

// Synthesizer renders text into an audio file at outputPath.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, outputPath string) error
	Name() string
}

// Pair is the recognizer and synthesizer chosen for one language.
type Pair struct {
	Recognizer  Recognizer
	Synthesizer Synthesizer
}

// Languages accepted by NewPair.
const (
	LangEnglish = "english"
	LangChinese = "chinese"
)

// ServiceConfig points the plugins at the speech service.
type ServiceConfig struct {
	BaseURL string
	Timeout time.Duration
	// Client overrides the HTTP client; Timeout is ignored when set.
	Client *http.Client
	// Retry applies to transport failures and 5xx answers. The zero value
	// makes one attempt.
	Retry resilience.Policy
}

func (c ServiceConfig) client() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func (c ServiceConfig) baseURL() string {
	return strings.TrimRight(c.BaseURL, "/")
}

// NewPair returns the Chinese pair for "chinese" (any case) and the general
// pair for anything else.
func NewPair(lang string, cfg ServiceConfig) Pair {
	if strings.EqualFold(strings.TrimSpace(lang), LangChinese) {
		return Pair{
			Recognizer:  NewChineseRecognizer(cfg),
			Synthesizer: NewChineseSynthesizer(cfg),
		}
	}
	return Pair{
		Recognizer:  NewRecognizer(cfg),
		Synthesizer: NewSynthesizer(cfg),
	}
}
