// Package params resolves ParameterReferences against the state of a run.
package params

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/petrijr/credflow/pkg/api"
)

// Resolver resolves parameter references. It is safe for concurrent use;
// settings are copied at construction and never mutated.
type Resolver struct {
	settings map[string]string
}

// NewResolver returns a Resolver backed by the given application settings.
// Setting keys are matched case-insensitively.
func NewResolver(settings map[string]string) *Resolver {
	return &Resolver{settings: api.NormalizeInput(settings)}
}

// Resolve returns the concrete value of ref.
//
// When the source yields nothing, ref.DefaultValue is returned if set;
// otherwise the error is a KindData *api.Error naming the missing parameter.
// An empty string found at the source is a value, not a miss.
func (r *Resolver) Resolve(ref api.ParameterReference, ec *api.ExecutionContext, previous []api.ActionOutcome) (string, error) {
	v, found, err := r.lookup(ref, ec, previous)
	if err != nil {
		return "", err
	}
	if found {
		return v, nil
	}
	if ref.DefaultValue != "" {
		return ref.DefaultValue, nil
	}
	return "", api.Errorf(api.KindData, "parameter not found: %s", describe(ref))
}

func (r *Resolver) lookup(ref api.ParameterReference, ec *api.ExecutionContext, previous []api.ActionOutcome) (string, bool, error) {
	switch ref.Source {
	case api.SourceStatic:
		return ref.Path, ref.Path != "", nil

	case api.SourceTriggerInput:
		v, ok := ec.Lookup(ref.Path)
		return v, ok, nil

	case api.SourceAppSettings:
		v, ok := r.settings[strings.ToLower(strings.TrimSpace(ref.Path))]
		return v, ok, nil

	case api.SourceActionOutcome:
		if ref.ActionID == "" {
			return "", false, api.Errorf(api.KindConfiguration, "action outcome reference without action id")
		}
		out, ok := api.FindOutcome(previous, ref.ActionID)
		if !ok || out.State != api.ActionSuccess {
			return "", false, nil
		}
		if ref.Path == "" {
			return string(out.Output), len(out.Output) > 0, nil
		}
		res := gjson.GetBytes(out.Output, ref.Path)
		if !res.Exists() {
			return "", false, nil
		}
		return res.String(), true, nil

	default:
		return "", false, api.Errorf(api.KindConfiguration, "unsupported parameter source %q", ref.Source)
	}
}

// ResolveClaims resolves the claim map of an issuance action. Trigger input
// claims that are missing from the execution context are omitted.
func ResolveClaims(claims map[string]api.ClaimValue, ec *api.ExecutionContext) map[string]string {
	out := make(map[string]string, len(claims))
	for name, c := range claims {
		switch c.Type {
		case api.ClaimStatic:
			out[name] = c.Value
		case api.ClaimTriggerInput:
			if v, ok := ec.Lookup(c.Value); ok {
				out[name] = v
			}
		}
	}
	return out
}

func describe(ref api.ParameterReference) string {
	if ref.Source == api.SourceActionOutcome {
		return string(ref.Source) + "(" + ref.ActionID + ")." + ref.Path
	}
	return string(ref.Source) + "." + ref.Path
}
