package orchestrator

import (
	"fmt"
	"strings"

	"github.com/sutro/homeward/internal/toolcall"
)

// renderShortcutReply turns a tool result into the chat reply for the
// direct path. Failures render their message directly; no raw error
// structures reach the user.
func renderShortcutReply(toolName string, result toolcall.Result) string {
	if !result.IsSuccess() {
		return fmt.Sprintf("Sorry, that didn't work: %s", result.Message)
	}

	switch toolName {
	case "get_network_time":
		return renderTimeReply(result.Data)
	case "ping_host":
		return renderPingReply(result.Data)
	case "ha_control_light":
		return renderControlReply(result.Data, "lights", "light")
	case "ha_control_switch":
		return renderControlReply(result.Data, "switches", "switch")
	default:
		return result.String()
	}
}

func renderTimeReply(data map[string]any) string {
	source, _ := data["source"].(string)
	readable, _ := data["readable_time_local"].(string)
	if readable == "" {
		readable, _ = data["readable_time_utc"].(string)
	}
	reply := fmt.Sprintf("The current time (source: %s) is %s.", source, readable)
	if warning, ok := data["warning"].(string); ok && warning != "" {
		reply += " Note: " + warning
	}
	return reply
}

func renderPingReply(data map[string]any) string {
	host, _ := data["host"].(string)
	reachable, _ := data["reachable"].(bool)

	if !reachable {
		if loss, ok := data["packet_loss_pct"].(float64); ok {
			return fmt.Sprintf("Ping test to %s: host unreachable (%.0f%% packet loss).", host, loss)
		}
		return fmt.Sprintf("Ping test to %s: host unreachable.", host)
	}

	reply := fmt.Sprintf("Ping test to %s: host reachable", host)
	if latency, ok := data["avg_latency_ms"].(float64); ok {
		reply += fmt.Sprintf(" with %.1f ms average latency", latency)
	}
	if loss, ok := data["packet_loss_pct"].(float64); ok && loss > 0 {
		reply += fmt.Sprintf(" (%.0f%% packet loss)", loss)
	}
	return reply + "."
}

// renderControlReply summarizes a light/switch command. The result may
// carry either key depending on the domain actually actuated.
func renderControlReply(data map[string]any, pluralKey, singular string) string {
	devices, ok := data[pluralKey].([]any)
	if !ok {
		// light→switch fallback reports under the other key
		other := "switches"
		if pluralKey == "switches" {
			other = "lights"
		}
		if devices, ok = data[other].([]any); !ok {
			return "Done."
		}
	}

	if actuated, ok := data["domain_actuated"].(string); ok && actuated != "" {
		singular = actuated
	}

	if len(devices) == 1 {
		name, state := deviceNameState(devices[0])
		return fmt.Sprintf("✓ %s is now %s", name, state)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✓ Controlled %d %s(s):", len(devices), singular)
	for _, d := range devices {
		name, state := deviceNameState(d)
		fmt.Fprintf(&b, "\n  • %s: %s", name, state)
	}
	return b.String()
}

func deviceNameState(device any) (string, string) {
	m, ok := device.(map[string]any)
	if !ok {
		return "device", "unknown"
	}
	name, _ := m["friendly_name"].(string)
	if name == "" {
		name, _ = m["entity_id"].(string)
	}
	if name == "" {
		name = "device"
	}
	state, _ := m["new_state"].(string)
	if state == "" {
		if errMsg, ok := m["error"].(string); ok {
			return name, "failed (" + errMsg + ")"
		}
		state = "unknown"
	}
	return name, state
}
