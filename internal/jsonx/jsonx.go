// Package jsonx extracts and repairs JSON payloads embedded in raw
// LLM text responses. It follows the same "try a strict parse, fall
// back to looser text extraction" idiom as the teacher's
// internal/signals.SignalParser, generalized from regex symbol
// extraction to brace-balanced JSON object scanning plus a
// third-party repair pass for near-miss payloads.
package jsonx

import (
	"encoding/json"
	"regexp"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
)

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// StripFences removes the first markdown code fence wrapping text, if
// any, and returns its interior; otherwise returns text unchanged.
func StripFences(text string) string {
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// ExtractObjects scans text for top-level balanced-brace JSON object
// substrings, in order of appearance. This supports providers that
// wrap a single object in prose, or emit several objects back to back
// instead of the contracted array (peer review's degraded shape).
func ExtractObjects(text string) []string {
	var out []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, r := range text {
		switch {
		case inString:
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		case r == '"':
			inString = true
			continue
		case r == '{':
			if depth == 0 {
				start = i
			}
			depth++
		case r == '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					out = append(out, text[start:i+1])
					start = -1
				}
			}
		}
	}
	return out
}

// ExtractArray scans text for the first top-level balanced-bracket
// JSON array substring, returning "" if none is found.
func ExtractArray(text string) string {
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, r := range text {
		switch {
		case inString:
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		case r == '"':
			inString = true
			continue
		case r == '[':
			if depth == 0 {
				start = i
			}
			depth++
		case r == ']':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}

// Repair attempts to heal a near-miss JSON payload (trailing commas,
// unquoted keys, truncated structures) via json-repair before the
// caller re-attempts a strict unmarshal.
func Repair(raw string) (string, error) {
	return jsonrepair.RepairJSON(raw)
}

// ParseStrict unmarshals raw directly into v, with no repair pass.
func ParseStrict(raw string, v any) error {
	return json.Unmarshal([]byte(raw), v)
}

// ParseLenient runs the full recovery chain over a raw model
// response: strip fences, try a strict parse, then fall back to one
// repair round before giving up. It is the single entry point stages
// use to turn provider text into a typed payload.
func ParseLenient(rawText string, v any) error {
	stripped := StripFences(rawText)

	if err := json.Unmarshal([]byte(stripped), v); err == nil {
		return nil
	}

	repaired, err := Repair(stripped)
	if err == nil {
		if uerr := json.Unmarshal([]byte(repaired), v); uerr == nil {
			return nil
		}
	}

	return json.Unmarshal([]byte(stripped), v)
}
