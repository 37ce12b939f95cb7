// Package scoring converts raw model responses into normalized scores and
// verdicts. Parsing is tolerant of formatting noise: models wrap JSON in
// prose and code fences, so extraction tries progressively looser
// strategies before falling back to the raw string.
package scoring

import (
	"encoding/json"
	"regexp"
	"strings"
)

// fencePattern matches the first fenced code block, with an optional
// language tag.
var fencePattern = regexp.MustCompile("(?s)```(?:[a-zA-Z]+)?\\s*\\n?(.*?)```")

// ParseResponse extracts structured content from a raw model response.
// Stages, first success wins:
//  1. parse the entire response as JSON
//  2. extract the first fenced code block and parse its contents as JSON
//  3. scan for the first balanced {...} or [...] span and parse that
//  4. fall back to the trimmed raw string
//
// The returned structured flag reports whether a JSON stage succeeded.
func ParseResponse(raw string) (parsed any, structured bool) {
	trimmed := strings.TrimSpace(raw)

	if v, ok := tryJSON(trimmed); ok {
		return v, true
	}

	if m := fencePattern.FindStringSubmatch(raw); m != nil {
		inner := strings.TrimSpace(m[1])
		if v, ok := tryJSON(inner); ok {
			return v, true
		}
		// A fenced block that isn't JSON is still the model's intended
		// payload; prefer it over the surrounding prose.
		if inner != "" {
			return inner, false
		}
	}

	if span := firstBalancedSpan(raw); span != "" {
		if v, ok := tryJSON(span); ok {
			return v, true
		}
	}

	return trimmed, false
}

// tryJSON attempts strict JSON parsing; malformed input is a clean failure.
func tryJSON(s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	first := s[0]
	// Accept scalars too: exact_match expectations are often bare
	// numbers or quoted strings.
	if first != '{' && first != '[' && first != '"' &&
		!(first >= '0' && first <= '9') && first != '-' &&
		s != "true" && s != "false" && s != "null" {
		return nil, false
	}
	var v any
	dec := json.NewDecoder(strings.NewReader(s))
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	// Reject trailing garbage so prose starting with a digit doesn't
	// parse as a number.
	if dec.More() {
		return nil, false
	}
	return v, true
}

// firstBalancedSpan returns the first balanced {...} or [...] span,
// respecting string literals and escapes. Returns "" when no balanced
// span exists.
func firstBalancedSpan(s string) string {
	start := -1
	var open, close byte
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if start == -1 {
			if c == '{' || c == '[' {
				start = i
				open = c
				if c == '{' {
					close = '}'
				} else {
					close = ']'
				}
				depth = 1
			}
			continue
		}

		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// Brackets inside string literals don't count.
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
