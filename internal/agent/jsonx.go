package agent

import (
	"encoding/json"
	"errors"
	"strings"
)

var errNoJSON = errors.New("no JSON object in response")

// extractFirstJSON returns the first balanced top-level JSON object or
// array in s. Braces inside string literals are ignored and markdown code
// fences are tolerated.
func extractFirstJSON(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	var open byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if start == -1 {
			if ch == '{' || ch == '[' {
				start, open, depth = i, ch, 1
			}
			continue
		}
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				if (open == '{' && ch == '}') || (open == '[' && ch == ']') {
					return s[start : i+1], true
				}
				return "", false
			}
		}
	}
	return "", false
}

// decodeJSON parses the first JSON value found in text into out.
func decodeJSON(text string, out any) error {
	text = strings.TrimSpace(text)
	if err := json.Unmarshal([]byte(text), out); err == nil {
		return nil
	}
	raw, ok := extractFirstJSON(text)
	if !ok {
		return errNoJSON
	}
	return json.Unmarshal([]byte(raw), out)
}
