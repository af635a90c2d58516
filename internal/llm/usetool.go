package llm

import (
	"encoding/json"
	"strings"
)

// The USE_TOOL micro-protocol is line-oriented: one call per line, in
// the exact form USE_TOOL:<name>:<json-object>, with nothing else on
// the line. A malformed line produces no call and is reported as a
// parse failure; the pipeline proceeds with whatever did parse.

// useToolMarker prefixes every call line.
const useToolMarker = "USE_TOOL:"

// ParsedCall is one well-formed call line.
type ParsedCall struct {
	ToolName  string
	Arguments map[string]any
	Line      string
}

// ParseFailure records a line that looked like a call but did not parse.
type ParseFailure struct {
	Line   string `json:"line"`
	Reason string `json:"reason"`
}

// ParseUseToolLines scans text for call lines, returning parsed calls
// in the order they appear plus any failures.
func ParseUseToolLines(text string) ([]ParsedCall, []ParseFailure) {
	var calls []ParsedCall
	var failures []ParseFailure

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)
		if !strings.Contains(line, useToolMarker) {
			continue
		}

		// The marker must start the line: surrounding prose or fencing
		// disqualifies the call.
		if !strings.HasPrefix(line, useToolMarker) {
			failures = append(failures, ParseFailure{
				Line:   line,
				Reason: "USE_TOOL marker not at start of line",
			})
			continue
		}

		rest := line[len(useToolMarker):]
		sep := strings.IndexByte(rest, ':')
		if sep <= 0 {
			failures = append(failures, ParseFailure{
				Line:   line,
				Reason: "missing tool name or arguments",
			})
			continue
		}

		toolName := strings.TrimSpace(rest[:sep])
		argsText := strings.TrimSpace(rest[sep+1:])

		if !isIdentifier(toolName) {
			failures = append(failures, ParseFailure{
				Line:   line,
				Reason: "invalid tool name",
			})
			continue
		}

		args, ok := decodeArgs(argsText)
		if !ok {
			failures = append(failures, ParseFailure{
				Line:   line,
				Reason: "arguments are not a JSON object",
			})
			continue
		}

		calls = append(calls, ParsedCall{
			ToolName:  toolName,
			Arguments: args,
			Line:      line,
		})
	}

	return calls, failures
}

// decodeArgs parses the argument text as a single JSON object literal.
// An empty argument slot counts as an empty object.
func decodeArgs(argsText string) (map[string]any, bool) {
	if argsText == "" {
		return map[string]any{}, true
	}
	if !strings.HasPrefix(argsText, "{") {
		return nil, false
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(argsText), &args); err != nil {
		return nil, false
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, true
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}
