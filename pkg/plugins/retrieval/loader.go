// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package retrieval

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jllopis/neuralchat/pkg/errors"
)

// DefaultChunkSize is the passage length in runes.
const DefaultChunkSize = 1000

// Chunk is a slice of a loaded document.
type Chunk struct {
	Source string
	Index  int
	Text   string
}

// SupportedExt reports whether files with path's extension are indexed.
func SupportedExt(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".txt", ".rst", ".adoc", ".html", ".htm",
		".yaml", ".yml", ".json", ".csv", ".jsonl":
		return true
	default:
		return false
	}
}

// LoadDocuments reads path, a file or a directory walked recursively, and
// splits every supported file into chunks of at most size runes. A single
// file is loaded whatever its extension.
func LoadDocuments(path string, size int) ([]Chunk, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.New(errors.CodeConfiguration, "document path is not readable", err).
			WithContext("document_path", path)
	}

	var files []string
	if info.IsDir() {
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p != path && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if SupportedExt(p) {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, errors.New(errors.CodeExecutionFailure, "walk document path", err).
				WithContext("document_path", path)
		}
		sort.Strings(files)
	} else {
		files = []string{path}
	}

	var chunks []Chunk
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, errors.New(errors.CodeExecutionFailure, "read document", err).
				WithContext("file", f)
		}
		for i, text := range chunkText(string(data), size) {
			chunks = append(chunks, Chunk{Source: f, Index: i, Text: text})
		}
	}
	return chunks, nil
}

// chunkText splits text into pieces of at most size runes, preferring to
// cut at paragraph and then line boundaries.
func chunkText(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	runes := []rune(strings.TrimSpace(text))
	var chunks []string
	for len(runes) > 0 {
		end := len(runes)
		if end > size {
			end = cutPoint(runes[:size])
		}
		if piece := strings.TrimSpace(string(runes[:end])); piece != "" {
			chunks = append(chunks, piece)
		}
		runes = runes[end:]
	}
	return chunks
}

func cutPoint(window []rune) int {
	s := string(window)
	for _, sep := range []string{"\n\n", "\n", ". ", " "} {
		if i := strings.LastIndex(s, sep); i > 0 {
			cut := len([]rune(s[:i+len(sep)]))
			if cut > len(window)/2 {
				return cut
			}
		}
	}
	return len(window)
}
