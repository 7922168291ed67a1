package api

import "strings"

// ParameterSource selects how a ParameterReference is resolved.
type ParameterSource string

const (
	// SourceStatic resolves to Path itself.
	SourceStatic ParameterSource = "Static"
	// SourceTriggerInput looks Path up in the run's ExecutionContext.
	SourceTriggerInput ParameterSource = "TriggerInput"
	// SourceAppSettings looks Path up in the application settings.
	SourceAppSettings ParameterSource = "AppSettings"
	// SourceActionOutcome reads Path (a gjson path) from the output of ActionID.
	SourceActionOutcome ParameterSource = "ActionOutcome"
)

// ParameterReference is a typed pointer to a value that is resolved when an
// action runs. Resolved values are never written back into the flow.
type ParameterReference struct {
	Source       ParameterSource `json:"source" validate:"required,oneof=Static TriggerInput AppSettings ActionOutcome"`
	Path         string          `json:"path"`
	ActionID     string          `json:"actionId,omitempty" validate:"required_if=Source ActionOutcome"`
	DefaultValue string          `json:"defaultValue,omitempty"`
}

// Static is shorthand for a literal parameter.
func Static(value string) ParameterReference {
	return ParameterReference{Source: SourceStatic, Path: value}
}

// FromTrigger is shorthand for a trigger input lookup.
func FromTrigger(key string) ParameterReference {
	return ParameterReference{Source: SourceTriggerInput, Path: key}
}

// FromSetting is shorthand for an application setting lookup.
func FromSetting(key string) ParameterReference {
	return ParameterReference{Source: SourceAppSettings, Path: key}
}

// FromOutcome is shorthand for reading a value out of a previous action's output.
func FromOutcome(actionID, path string) ParameterReference {
	return ParameterReference{Source: SourceActionOutcome, ActionID: actionID, Path: path}
}

func lowerKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// NormalizeInput lower-cases the keys of m into a new map. If two keys differ
// only by case, which value survives is unspecified.
func NormalizeInput(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[lowerKey(k)] = v
	}
	return out
}
