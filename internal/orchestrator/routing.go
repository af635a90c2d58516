// Package orchestrator decides, per user message, whether to shortcut
// a query straight to a tool or to go through the LLM, executes the
// chosen path, and records the interaction for feedback.
package orchestrator

import (
	"regexp"
	"strings"
)

// Routing types recorded on every interaction. Exactly one applies per
// message.
const (
	RouteDirectShortcut = "direct_shortcut"
	RouteLLMWithTools   = "llm_with_tools"
	RouteLLMOnly        = "llm_only"
)

// The shortcut patterns are a tuning parameter, not a contract: they
// trade LLM latency for precision on common phrasings. Matches are
// mutually exclusive; the first matching rule wins.
var (
	timePattern = regexp.MustCompile(`\b(what time|current time|time is it|what.?s the date|current date|today.?s date|ntp)\b`)

	pingPattern = regexp.MustCompile(`\b(ping|connectivity|latency)\b`)

	// hostnamePattern extracts a dotted hostname from the message.
	hostnamePattern = regexp.MustCompile(`\b([a-z0-9][a-z0-9-]{0,62}(?:\.[a-z0-9][a-z0-9-]{0,62})+)\b`)

	lightPattern  = regexp.MustCompile(`\b(lights?|lamps?|brightness)\b`)
	switchPattern = regexp.MustCompile(`\b(switch(?:es)?|outlets?|plugs?|fan|coffee maker)\b`)

	// Strip patterns remove the generic device words from the target
	// phrase. The device-specific trigger words (fan, coffee maker)
	// stay: they ARE the target.
	lightStripPattern  = regexp.MustCompile(`\b(lights?|lamps?)\b`)
	switchStripPattern = regexp.MustCompile(`\b(switch(?:es)?)\b`)
)

// actionPhrases maps spoken action verbs onto HA service names. The
// first phrase in this list that the message contains wins.
var actionPhrases = []struct {
	Phrase string
	Action string
}{
	{"turn on", "turn_on"},
	{"turn off", "turn_off"},
	{"switch on", "turn_on"},
	{"switch off", "turn_off"},
	{"toggle", "toggle"},
}

// Shortcut is a routing decision that bypasses the LLM.
type Shortcut struct {
	Pattern   string // which rule matched, for debug_info
	ToolName  string
	Arguments map[string]any
	Keywords  []string       // the keywords that triggered the rule
	Extracted map[string]any // parameters pulled out of the message
}

// DecideRoute inspects a message and returns the shortcut to take, or
// nil when the message should go to the LLM. It is a pure function of
// the message text so the policy is testable without I/O.
func DecideRoute(message string) *Shortcut {
	lower := strings.ToLower(message)

	if m := timePattern.FindString(lower); m != "" {
		return &Shortcut{
			Pattern:   "time_query",
			ToolName:  "get_network_time",
			Arguments: map[string]any{},
			Keywords:  []string{m},
			Extracted: map[string]any{"query_type": "current_time"},
		}
	}

	if m := pingPattern.FindString(lower); m != "" {
		// Only shortcut when a hostname is extractable; otherwise the
		// LLM decides what to ping.
		if host := hostnamePattern.FindString(lower); host != "" {
			return &Shortcut{
				Pattern:   "ping_query",
				ToolName:  "ping_host",
				Arguments: map[string]any{"hostname": host},
				Keywords:  []string{m},
				Extracted: map[string]any{"hostname": host},
			}
		}
	}

	if m := lightPattern.FindString(lower); m != "" {
		if action, phrase := detectAction(lower); action != "" {
			args := map[string]any{"action": action}
			extracted := map[string]any{"action_phrase": phrase, "action": action}
			if target := extractTarget(lower, phrase, lightStripPattern); target != "" {
				args["name_filter"] = target
				extracted["target_name"] = target
			}
			return &Shortcut{
				Pattern:   "light_control",
				ToolName:  "ha_control_light",
				Arguments: args,
				Keywords:  []string{m},
				Extracted: extracted,
			}
		}
	}

	if m := switchPattern.FindString(lower); m != "" {
		if action, phrase := detectAction(lower); action != "" {
			args := map[string]any{"action": action}
			extracted := map[string]any{"action_phrase": phrase, "action": action}
			if target := extractTarget(lower, phrase, switchStripPattern); target != "" {
				args["name_filter"] = target
				extracted["target_name"] = target
			}
			return &Shortcut{
				Pattern:   "switch_control",
				ToolName:  "ha_control_switch",
				Arguments: args,
				Keywords:  []string{m},
				Extracted: extracted,
			}
		}
	}

	return nil
}

// detectAction finds the first action phrase in the message.
func detectAction(lower string) (action, phrase string) {
	for _, ap := range actionPhrases {
		if strings.Contains(lower, ap.Phrase) {
			return ap.Action, ap.Phrase
		}
	}
	return "", ""
}

// extractTarget pulls the device/room phrase out of the message by
// removing the action phrase, the generic device words, and filler.
func extractTarget(lower, actionPhrase string, strip *regexp.Regexp) string {
	s := strings.ReplaceAll(lower, actionPhrase, " ")
	s = strip.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, " the ", " ")
	s = strings.TrimPrefix(strings.TrimSpace(s), "the ")
	s = strings.Trim(s, " .,!?")
	return strings.Join(strings.Fields(s), " ")
}
