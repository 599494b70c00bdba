package jsonutil

import (
	"encoding/json"
	"strings"
)

// StripFences removes a Markdown code-fence wrapper from an LLM reply.
// Handles ```json ... ``` and bare ``` ... ``` blocks; anything outside the
// fences is discarded. Input without fences is returned trimmed.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	rest := s[start+3:]
	// Drop an optional language tag on the opening fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine == "" || isFenceTag(firstLine) {
			rest = rest[nl+1:]
		}
	}
	if end := strings.LastIndex(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

func isFenceTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// UnmarshalFlex unmarshals LLM output into v with best effort:
//  1. direct unmarshal of the fence-stripped text
//  2. unmarshal of the first JSON array or object found in the text
//
// LLMs asked for "JSON only" still wrap answers in fences or prose often
// enough that callers should not see those as structural failures.
func UnmarshalFlex(raw string, v any) error {
	s := StripFences(raw)
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}
	if sub, ok := firstJSONValue(s); ok {
		return json.Unmarshal([]byte(sub), v)
	}
	return json.Unmarshal([]byte(s), v)
}

// firstJSONValue extracts the first balanced top-level JSON array or object.
func firstJSONValue(s string) (string, bool) {
	start := -1
	var open, close byte
	for i := 0; i < len(s); i++ {
		if s[i] == '[' || s[i] == '{' {
			start = i
			open = s[i]
			if open == '[' {
				close = ']'
			} else {
				close = '}'
			}
			break
		}
	}
	if start < 0 {
		return "", false
	}
	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch c {
			case '\\':
				i++
			case '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
