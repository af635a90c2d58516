package tools

import (
	"fmt"
	"math"
	"regexp"
)

// ParamType is the set of primitive parameter types a tool can declare.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
)

// Param declares a single tool parameter: its type, whether it is
// required, and optional enum/range/pattern constraints.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Enum        []string
	Min, Max    *int
	Pattern     *regexp.Regexp
}

// ParamSpec is the full parameter declaration for one tool. It is both
// the validator and the source of the published JSON schema.
type ParamSpec []Param

// IntPtr is a convenience for Min/Max bounds.
func IntPtr(v int) *int { return &v }

// Schema renders the spec in the JSON-schema shape the LLM consumes.
func (ps ParamSpec) Schema() map[string]any {
	properties := map[string]any{}
	var required []string
	for _, p := range ps {
		prop := map[string]any{
			"type":        string(p.Type),
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Min != nil {
			prop["minimum"] = *p.Min
		}
		if p.Max != nil {
			prop["maximum"] = *p.Max
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if required != nil {
		schema["required"] = required
	}
	return schema
}

// Validate checks args against the spec. The returned error names the
// first offending key. Unknown keys are tolerated; the dispatcher only
// enforces what the tool declared.
func (ps ParamSpec) Validate(args map[string]any) error {
	for _, p := range ps {
		raw, present := args[p.Name]
		if !present || raw == nil {
			if p.Required {
				return fmt.Errorf("missing required parameter %q", p.Name)
			}
			continue
		}
		if err := p.check(raw); err != nil {
			return err
		}
	}
	return nil
}

func (p Param) check(raw any) error {
	switch p.Type {
	case TypeString:
		s, ok := raw.(string)
		if !ok {
			return fmt.Errorf("parameter %q must be a string", p.Name)
		}
		if len(p.Enum) > 0 && !containsString(p.Enum, s) {
			return fmt.Errorf("parameter %q must be one of %v", p.Name, p.Enum)
		}
		if p.Pattern != nil && !p.Pattern.MatchString(s) {
			return fmt.Errorf("parameter %q has invalid format", p.Name)
		}

	case TypeInteger:
		// JSON numbers decode as float64; an integer parameter must be
		// a whole value.
		f, ok := raw.(float64)
		if !ok {
			return fmt.Errorf("parameter %q must be an integer", p.Name)
		}
		if f != math.Trunc(f) {
			return fmt.Errorf("parameter %q must be an integer", p.Name)
		}
		n := int(f)
		if p.Min != nil && n < *p.Min {
			return fmt.Errorf("parameter %q must be >= %d", p.Name, *p.Min)
		}
		if p.Max != nil && n > *p.Max {
			return fmt.Errorf("parameter %q must be <= %d", p.Name, *p.Max)
		}

	case TypeNumber:
		if _, ok := raw.(float64); !ok {
			return fmt.Errorf("parameter %q must be a number", p.Name)
		}

	case TypeBoolean:
		if _, ok := raw.(bool); !ok {
			return fmt.Errorf("parameter %q must be a boolean", p.Name)
		}

	case TypeObject:
		if _, ok := raw.(map[string]any); !ok {
			return fmt.Errorf("parameter %q must be an object", p.Name)
		}
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// String extracts an optional string argument, returning "" when absent.
// Call only after Validate has checked types.
func String(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

// Int extracts an optional integer argument. The second return reports
// presence.
func Int(args map[string]any, name string) (int, bool) {
	f, ok := args[name].(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}
