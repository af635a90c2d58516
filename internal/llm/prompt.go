package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sutro/homeward/internal/toolcall"
)

// BuildToolPrompt composes the first-pass prompt: the user's request
// plus every tool's name, purpose, and parameter schema, and the
// USE_TOOL line format the model must emit to call one.
func BuildToolPrompt(message string, descriptors []toolcall.Descriptor) string {
	var b strings.Builder

	b.WriteString("You are an assistant with access to network and smart home tools. ")
	b.WriteString("Analyze the user's request and respond appropriately.\n\n")
	fmt.Fprintf(&b, "User request: %q\n\n", message)

	b.WriteString("Available tools:\n")
	for _, d := range descriptors {
		schema, err := json.Marshal(d.Parameters)
		if err != nil {
			schema = []byte("{}")
		}
		fmt.Fprintf(&b, "- %s: %s\n  parameters: %s\n", d.Name, d.Description, schema)
	}

	b.WriteString(`
To call a tool, emit exactly one line per call in this form, with no
backticks or other text on the line:

USE_TOOL:<tool_name>:<json_arguments>

Examples:
USE_TOOL:get_network_time:{}
USE_TOOL:ping_host:{"hostname": "example.com"}
USE_TOOL:ha_control_light:{"action": "turn_on", "name_filter": "kitchen"}

If no tool is needed, reply conversationally instead.

Your response:`)

	return b.String()
}

// BuildSynthesisPrompt composes the second-pass prompt: the original
// message plus a transcript of tool results, in call order. Failed
// calls appear with their error kind and message so the model can
// explain the failure in plain language.
func BuildSynthesisPrompt(message string, transcript string) string {
	return fmt.Sprintf(`Based on the tool results below, provide a helpful answer to the user's question.

Tool results:
%s

User question: %s

If a tool reported an error, explain what went wrong in plain language;
never show raw error structures. Provide a clear, helpful response using
the information from the tools.`, transcript, message)
}
