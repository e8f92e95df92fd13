// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/language"

	"github.com/jllopis/neuralchat/pkg/errors"
	"github.com/jllopis/neuralchat/pkg/resilience"
)

// Default voices requested from the speech service.
const (
	DefaultVoice        = "default"
	DefaultChineseVoice = "zh-female"
)

// SpeechSynthesizer posts text to the service's speech endpoint and writes
// the returned audio.
type SpeechSynthesizer struct {
	name    string
	baseURL string
	lang    language.Tag
	voice   string
	client  *http.Client
	retry   resilience.Policy
}

// NewSynthesizer returns the general (English) synthesizer.
func NewSynthesizer(cfg ServiceConfig) *SpeechSynthesizer {
	return &SpeechSynthesizer{name: "tts", baseURL: cfg.baseURL(), lang: language.AmericanEnglish, voice: DefaultVoice, client: cfg.client(), retry: cfg.Retry}
}

// NewChineseSynthesizer returns the synthesizer for Mandarin speech.
func NewChineseSynthesizer(cfg ServiceConfig) *SpeechSynthesizer {
	return &SpeechSynthesizer{name: "tts_chinese", baseURL: cfg.baseURL(), lang: language.SimplifiedChinese, voice: DefaultChineseVoice, client: cfg.client(), retry: cfg.Retry}
}

func (s *SpeechSynthesizer) Name() string { return s.name }

// Language returns the tag sent with every request.
func (s *SpeechSynthesizer) Language() language.Tag { return s.lang }

type speechRequest struct {
	Input    string `json:"input"`
	Language string `json:"language"`
	Voice    string `json:"voice"`
	Format   string `json:"response_format"`
}

// Synthesize implements Synthesizer.
func (s *SpeechSynthesizer) Synthesize(ctx context.Context, text, outputPath string) error {
	if strings.TrimSpace(text) == "" {
		return errors.Newf(errors.CodeInvalidInput, "nothing to synthesize")
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(outputPath)), ".")
	if format == "" {
		format = "wav"
	}

	body, err := json.Marshal(speechRequest{Input: text, Language: s.lang.String(), Voice: s.voice, Format: format})
	if err != nil {
		return fmt.Errorf("failed to marshal speech request: %w", err)
	}
	var audio []byte
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/audio/speech", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create http request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return errors.New(errors.CodeAudioError, "speech synthesis call failed", err).WithRecoverable(true)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return errors.Newf(errors.CodeAudioError, "speech synthesis returned status %d: %s",
				resp.StatusCode, strings.TrimSpace(string(msg))).WithRecoverable(resp.StatusCode >= 500)
		}
		if audio, err = io.ReadAll(resp.Body); err != nil {
			return errors.New(errors.CodeAudioError, "read synthesized audio", err).WithRecoverable(true)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.New(errors.CodeAudioError, "create output directory", err)
		}
	}
	if err := os.WriteFile(outputPath, audio, 0o644); err != nil {
		return errors.New(errors.CodeAudioError, "write audio output", err).WithContext("path", outputPath)
	}
	return nil
}

var _ Synthesizer = (*SpeechSynthesizer)(nil)
