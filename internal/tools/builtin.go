package tools

import (
	"time"
)

// RegisterBuiltins populates the registry with the standard tool set:
// network time, ping, and the Home Assistant query/control tools.
func RegisterBuiltins(r *Registry, ntp *NTPEffector, ping *PingEffector, ha *HATools) {
	r.Register(&Tool{
		Name:        "get_network_time",
		Description: "Retrieves the current accurate time and date from a network source (NTP). Useful for answering 'What time is it?' or 'What is the date?'.",
		Params:      ParamSpec{},
		Timeout:     5 * time.Second,
		Handler:     ntp.Handle,
	})

	r.Register(&Tool{
		Name:        "ping_host",
		Description: "Sends a network ping request to a specified hostname or IP address to check connectivity and latency.",
		Params: ParamSpec{
			{
				Name:        "hostname",
				Type:        TypeString,
				Description: "The hostname or IP address to ping (e.g., 'google.com').",
				Required:    true,
				Pattern:     HostnamePattern,
			},
		},
		Timeout: 10 * time.Second,
		Handler: ping.Handle,
	})

	r.Register(&Tool{
		Name:        "ha_get_device_state",
		Description: "Get the current state of a Home Assistant device or sensor. Use for temperature sensors, humidity, battery levels, or checking device status. Supports filtering by domain (sensor, binary_sensor, etc.).",
		Params: ParamSpec{
			{
				Name:        "entity_id",
				Type:        TypeString,
				Description: "The entity ID to query (e.g., 'sensor.living_room_temperature'). Optional if using domain filter.",
			},
			{
				Name:        "domain",
				Type:        TypeString,
				Description: "Filter devices by domain: 'sensor', 'binary_sensor', 'climate', etc. Returns all matching devices.",
			},
			{
				Name:        "name_filter",
				Type:        TypeString,
				Description: "Optional filter to match device names (case-insensitive, partial match).",
			},
		},
		Timeout: 5 * time.Second,
		Handler: ha.HandleGetDeviceState,
	})

	r.Register(&Tool{
		Name:        "ha_control_light",
		Description: "Control Home Assistant lights. Turn on/off, toggle, or set brightness (0-255). Use this when the user mentions lights, lamps, or illumination.",
		Params: ParamSpec{
			{
				Name:        "action",
				Type:        TypeString,
				Description: "The action to perform on the light.",
				Required:    true,
				Enum:        []string{"turn_on", "turn_off", "toggle"},
			},
			{
				Name:        "entity_id",
				Type:        TypeString,
				Description: "The light entity ID (e.g., 'light.living_room'). Use name_filter to find lights by name.",
			},
			{
				Name:        "name_filter",
				Type:        TypeString,
				Description: "Find lights by name (e.g., 'living room', 'bedroom').",
			},
			{
				Name:        "brightness",
				Type:        TypeInteger,
				Description: "Brightness level 0-255 (only when turning on).",
				Min:         IntPtr(0),
				Max:         IntPtr(255),
			},
		},
		Timeout: 5 * time.Second,
		Handler: ha.HandleControlLight,
	})

	r.Register(&Tool{
		Name:        "ha_control_switch",
		Description: "Control Home Assistant switches. Turn on/off or toggle switches. Use for outlets, relays, or any switchable devices.",
		Params: ParamSpec{
			{
				Name:        "action",
				Type:        TypeString,
				Description: "The action to perform on the switch.",
				Required:    true,
				Enum:        []string{"turn_on", "turn_off", "toggle"},
			},
			{
				Name:        "entity_id",
				Type:        TypeString,
				Description: "The switch entity ID (e.g., 'switch.coffee_maker'). Use name_filter to find by name.",
			},
			{
				Name:        "name_filter",
				Type:        TypeString,
				Description: "Find switches by name (e.g., 'coffee maker', 'fan').",
			},
		},
		Timeout: 5 * time.Second,
		Handler: ha.HandleControlSwitch,
	})
}
