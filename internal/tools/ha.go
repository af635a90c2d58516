package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sutro/homeward/internal/homeassistant"
	"github.com/sutro/homeward/internal/toolcall"
)

// HomeControl is the narrow synchronizer surface the HA tools need.
// Satisfied by [homeassistant.Synchronizer]; faked in tests.
type HomeControl interface {
	Configured() bool
	GetState(ctx context.Context, entityID string) (*homeassistant.CachedState, error)
	ListStates(ctx context.Context, domain, nameFilter string) ([]homeassistant.State, error)
	CallService(ctx context.Context, domain, service, entityID string, extra map[string]any) (*homeassistant.CachedState, error)
	ResolveTargets(ctx context.Context, domain, nameFilter string) ([]homeassistant.State, string, error)
}

// deviceListLimit caps how many devices a state query returns.
const deviceListLimit = 20

// HATools implements the Home Assistant tool handlers on top of the
// synchronizer.
type HATools struct {
	sync   HomeControl
	logger *slog.Logger
}

// NewHATools creates the handler set. sync may be a nil-configured
// synchronizer; every call then reports effector_unavailable.
func NewHATools(sync HomeControl, logger *slog.Logger) *HATools {
	if logger == nil {
		logger = slog.Default()
	}
	return &HATools{sync: sync, logger: logger}
}

// haError maps synchronizer errors onto the closed result kind set.
func haError(err error) toolcall.Result {
	if errors.Is(err, homeassistant.ErrNotConfigured) {
		return toolcall.Error(toolcall.ErrEffectorUnavailable, homeassistant.ErrNotConfigured.Error())
	}
	var statusErr *homeassistant.StatusError
	if errors.As(err, &statusErr) {
		return toolcall.ErrorDetail(toolcall.ErrUpstreamRejected,
			fmt.Sprintf("home assistant rejected the request (HTTP %d)", statusErr.StatusCode),
			map[string]any{"status_code": statusErr.StatusCode, "body": statusErr.Body})
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return toolcall.Error(toolcall.ErrEffectorTimeout, "home assistant request timed out")
	}
	return toolcall.Error(toolcall.ErrEffectorFailed, err.Error())
}

// HandleGetDeviceState implements ha_get_device_state.
func (h *HATools) HandleGetDeviceState(ctx context.Context, args map[string]any) toolcall.Result {
	if !h.sync.Configured() {
		return haError(homeassistant.ErrNotConfigured)
	}

	entityID := String(args, "entity_id")
	domain := String(args, "domain")
	nameFilter := String(args, "name_filter")

	if entityID != "" {
		entry, err := h.sync.GetState(ctx, entityID)
		if err != nil {
			return haError(err)
		}
		return toolcall.Success(map[string]any{
			"entity_id":    entry.State.EntityID,
			"state":        entry.State.State,
			"attributes":   entry.State.Attributes,
			"last_changed": entry.State.LastChanged,
			"fetched_at":   entry.FetchedAt,
		})
	}

	states, err := h.sync.ListStates(ctx, domain, nameFilter)
	if err != nil {
		return haError(err)
	}
	if len(states) == 0 {
		filterDesc := "all"
		if domain != "" {
			filterDesc = "domain=" + domain
		}
		if nameFilter != "" {
			filterDesc += ", name=" + nameFilter
		}
		return toolcall.Error(toolcall.ErrEffectorFailed,
			fmt.Sprintf("no devices found with filter: %s", filterDesc))
	}

	total := len(states)
	if len(states) > deviceListLimit {
		states = states[:deviceListLimit]
	}
	devices := make([]map[string]any, 0, len(states))
	for i := range states {
		s := &states[i]
		devices = append(devices, map[string]any{
			"entity_id":    s.EntityID,
			"name":         s.FriendlyName(),
			"state":        s.State,
			"unit":         s.Attributes["unit_of_measurement"],
			"device_class": s.Attributes["device_class"],
		})
	}

	data := map[string]any{
		"count":   len(devices),
		"devices": devices,
	}
	if total > len(devices) {
		data["note"] = fmt.Sprintf("Showing %d of %d matching devices", len(devices), total)
	}
	return toolcall.Success(data)
}

// HandleControlLight implements ha_control_light.
func (h *HATools) HandleControlLight(ctx context.Context, args map[string]any) toolcall.Result {
	return h.control(ctx, "light", args)
}

// HandleControlSwitch implements ha_control_switch.
func (h *HATools) HandleControlSwitch(ctx context.Context, args map[string]any) toolcall.Result {
	return h.control(ctx, "switch", args)
}

// control resolves targets and actuates them, returning the refetched
// state per entity and the domain actually actuated (lights fall back
// to switches when nothing matched).
func (h *HATools) control(ctx context.Context, domain string, args map[string]any) toolcall.Result {
	if !h.sync.Configured() {
		return haError(homeassistant.ErrNotConfigured)
	}

	action := String(args, "action")
	entityID := String(args, "entity_id")
	nameFilter := String(args, "name_filter")

	var targets []string
	actuated := domain

	switch {
	case entityID != "":
		targets = []string{entityID}
		if d := homeassistant.EntityDomain(entityID); d != "" {
			actuated = d
		}
	case nameFilter != "":
		matches, matchedDomain, err := h.sync.ResolveTargets(ctx, domain, nameFilter)
		if err != nil {
			return haError(err)
		}
		if len(matches) == 0 {
			return toolcall.Error(toolcall.ErrEffectorFailed,
				fmt.Sprintf("no %ss found matching %q", domain, nameFilter))
		}
		actuated = matchedDomain
		for i := range matches {
			targets = append(targets, matches[i].EntityID)
		}
	default:
		return toolcall.Error(toolcall.ErrInvalidArguments,
			"either entity_id or name_filter must be provided")
	}

	extra := map[string]any{}
	if brightness, ok := Int(args, "brightness"); ok && domain == "light" && action == "turn_on" {
		extra["brightness"] = brightness
	}

	results := make([]map[string]any, 0, len(targets))
	for _, target := range targets {
		entry, err := h.sync.CallService(ctx, actuated, action, target, extra)
		if err != nil {
			h.logger.Warn("service call failed", "entity_id", target, "action", action, "error", err)
			results = append(results, map[string]any{
				"entity_id": target,
				"error":     err.Error(),
			})
			continue
		}

		item := map[string]any{"entity_id": target}
		if entry != nil {
			item["friendly_name"] = entry.State.FriendlyName()
			item["new_state"] = entry.State.State
			if b, ok := entry.State.Attributes["brightness"]; ok {
				item["brightness"] = b
			}
		} else {
			// Command landed but the refetch failed; the next read will
			// fetch fresh.
			item["new_state"] = "unknown"
		}
		results = append(results, item)
	}

	key := "lights"
	if actuated == "switch" {
		key = "switches"
	}
	return toolcall.Success(map[string]any{
		"action":          action,
		"count":           len(results),
		"domain_actuated": actuated,
		key:               results,
	})
}
