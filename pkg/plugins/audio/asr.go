// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/language"

	"github.com/jllopis/neuralchat/pkg/errors"
	"github.com/jllopis/neuralchat/pkg/resilience"
)

// SpeechRecognizer posts audio to the service's transcription endpoint.
type SpeechRecognizer struct {
	name    string
	baseURL string
	lang    language.Tag
	client  *http.Client
	retry   resilience.Policy
}

// NewRecognizer returns the general (English) recognizer.
func NewRecognizer(cfg ServiceConfig) *SpeechRecognizer {
	return &SpeechRecognizer{name: "asr", baseURL: cfg.baseURL(), lang: language.AmericanEnglish, client: cfg.client(), retry: cfg.Retry}
}

// NewChineseRecognizer returns the recognizer for Mandarin audio.
func NewChineseRecognizer(cfg ServiceConfig) *SpeechRecognizer {
	return &SpeechRecognizer{name: "asr_chinese", baseURL: cfg.baseURL(), lang: language.SimplifiedChinese, client: cfg.client(), retry: cfg.Retry}
}

func (r *SpeechRecognizer) Name() string { return r.name }

// Language returns the tag sent with every request.
func (r *SpeechRecognizer) Language() language.Tag { return r.lang }

type transcription struct {
	Text string `json:"text"`
}

// Recognize implements Recognizer.
func (r *SpeechRecognizer) Recognize(ctx context.Context, audioPath string) (string, error) {
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return "", errors.New(errors.CodeAudioError, "read audio input", err).WithContext("path", audioPath)
	}

	endpoint := r.baseURL + "/v1/audio/transcriptions?" + url.Values{"language": {r.lang.String()}}.Encode()
	var out transcription
	err = r.retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to create http request: %w", err)
		}
		req.Header.Set("Content-Type", contentType(audioPath))

		resp, err := r.client.Do(req)
		if err != nil {
			return errors.New(errors.CodeAudioError, "speech recognition call failed", err).WithRecoverable(true)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return errors.Newf(errors.CodeAudioError, "speech recognition returned status %d: %s",
				resp.StatusCode, strings.TrimSpace(string(body))).WithRecoverable(resp.StatusCode >= 500)
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return errors.New(errors.CodeAudioError, "decode transcription", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Text), nil
}

func contentType(path string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		return t
	}
	return "application/octet-stream"
}

var _ Recognizer = (*SpeechRecognizer)(nil)
