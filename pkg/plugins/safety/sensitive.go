// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package safety

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SensitiveCheckerID identifies the sensitive-word checker.
const SensitiveCheckerID = "sensitive_words"

// defaultSensitiveWords is the built-in dictionary used when no word file
// is configured.
var defaultSensitiveWords = []string{
	"bomb making", "build a bomb", "make a bomb",
	"credit card dump", "stolen credit card",
	"child abuse", "human trafficking",
	"kill yourself", "suicide method",
	"ransomware", "keylogger",
	"炸弹", "自杀", "毒品", "枪支",
}

// SensitiveChecker blocks prompts containing dictionary terms and masks them
// in model output. Matching is case-insensitive.
type SensitiveChecker struct {
	words []string
	mask  rune
}

// SensitiveOption configures a SensitiveChecker.
type SensitiveOption func(*SensitiveChecker)

// WithWords replaces the dictionary.
func WithWords(words ...string) SensitiveOption {
	return func(c *SensitiveChecker) { c.words = normalizeWords(words) }
}

// WithMask sets the rune that replaces each masked character (default '*').
func WithMask(r rune) SensitiveOption {
	return func(c *SensitiveChecker) { c.mask = r }
}

// NewSensitiveChecker returns a checker over the built-in dictionary.
func NewSensitiveChecker(opts ...SensitiveOption) *SensitiveChecker {
	c := &SensitiveChecker{words: normalizeWords(defaultSensitiveWords), mask: '*'}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadWords reads one term per line; blank lines and lines starting with #
// are skipped.
func LoadWords(r io.Reader) ([]string, error) {
	var words []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return words, sc.Err()
}

// NewSensitiveCheckerFromFile builds a checker over the dictionary at path.
func NewSensitiveCheckerFromFile(path string, opts ...SensitiveOption) (*SensitiveChecker, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sensitive words: %w", err)
	}
	defer f.Close()

	words, err := LoadWords(f)
	if err != nil {
		return nil, fmt.Errorf("read sensitive words %s: %w", path, err)
	}
	return NewSensitiveChecker(append([]SensitiveOption{WithWords(words...)}, opts...)...), nil
}

// normalizeWords lower-cases, dedupes and orders longest first so that
// overlapping terms mask the widest span.
func normalizeWords(words []string) []string {
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

func (c *SensitiveChecker) ID() string { return SensitiveCheckerID }

// Sensitive reports whether text contains any dictionary term.
func (c *SensitiveChecker) Sensitive(text string) bool {
	return len(c.find(text)) > 0
}

// CheckInput implements InputChecker.
func (c *SensitiveChecker) CheckInput(_ context.Context, input string) CheckResult {
	matches := c.find(input)
	if len(matches) == 0 {
		return CheckResult{}
	}
	terms := make([]string, 0, len(matches))
	for _, m := range matches {
		terms = append(terms, m.term)
	}
	return CheckResult{
		Blocked:   true,
		Reason:    "The input contains sensitive content and cannot be processed.",
		CheckerID: SensitiveCheckerID,
		Matches:   terms,
	}
}

// FilterOutput implements OutputFilter.
func (c *SensitiveChecker) FilterOutput(_ context.Context, output string) FilterResult {
	matches := c.find(output)
	if len(matches) == 0 {
		return FilterResult{Content: output}
	}

	var (
		sb         strings.Builder
		last       int
		redactions []Redaction
	)
	for _, m := range matches {
		original := output[m.start:m.end]
		replacement := strings.Repeat(string(c.mask), utf8.RuneCountInString(original))
		sb.WriteString(output[last:m.start])
		redactions = append(redactions, Redaction{
			Type:        SensitiveCheckerID,
			Original:    original,
			Replacement: replacement,
			Position:    sb.Len(),
		})
		sb.WriteString(replacement)
		last = m.end
	}
	sb.WriteString(output[last:])
	return FilterResult{Content: sb.String(), Modified: true, Redactions: redactions}
}

type match struct {
	start, end int
	term       string
}

// find returns non-overlapping matches ordered by position. Offsets index
// text; lower-casing is applied per rune so offsets stay aligned.
func (c *SensitiveChecker) find(text string) []match {
	lower := lowerAligned(text)
	var found []match
	for _, w := range c.words {
		for from := 0; from < len(lower); {
			i := strings.Index(lower[from:], w)
			if i < 0 {
				break
			}
			start := from + i
			end := start + len(w)
			if !overlaps(found, start, end) {
				found = append(found, match{start: start, end: end, term: w})
			}
			from = end
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].start < found[j].start })
	return found
}

func overlaps(ms []match, start, end int) bool {
	for _, m := range ms {
		if start < m.end && m.start < end {
			return true
		}
	}
	return false
}

// lowerAligned lower-cases runes whose lower-case form has the same encoded
// length, copying everything else byte for byte, so offsets match the input.
func lowerAligned(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if l := unicode.ToLower(r); r != utf8.RuneError && utf8.RuneLen(l) == size {
			sb.WriteRune(l)
		} else {
			sb.WriteString(s[i : i+size])
		}
		i += size
	}
	return sb.String()
}

var (
	_ InputChecker = (*SensitiveChecker)(nil)
	_ OutputFilter = (*SensitiveChecker)(nil)
)
