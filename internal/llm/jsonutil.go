package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	fencedObject  = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
)

// ErrNoJSON is returned when a reply holds no JSON object at all.
var ErrNoJSON = errors.New("llm: no JSON object in reply")

// ExtractJSON pulls the JSON object out of a model reply. Markdown fences,
// line comments and trailing commas are tolerated. It returns "" when the
// reply holds no object.
func ExtractJSON(reply string) string {
	var raw string
	if m := fencedObject.FindStringSubmatch(reply); len(m) > 1 {
		raw = m[1]
	} else {
		start := strings.Index(reply, "{")
		end := strings.LastIndex(reply, "}")
		if start < 0 || end <= start {
			return ""
		}
		raw = reply[start : end+1]
	}

	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = stripComment(line)
	}
	return trailingComma.ReplaceAllString(strings.Join(lines, "\n"), "$1")
}

// DecodeJSON extracts the object from reply and unmarshals it into v.
func DecodeJSON(reply string, v any) error {
	raw := ExtractJSON(reply)
	if raw == "" {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("llm: decode reply: %w", err)
	}
	return nil
}

// stripComment drops a // comment that starts outside a string literal.
func stripComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}
	inString, escaped := false, false
	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == '/' && i+1 < len(line) && line[i+1] == '/':
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}
