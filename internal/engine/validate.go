package engine

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/petrijr/credflow/pkg/api"
)

var validate = validator.New()

// ValidateFlow checks a workflow definition before it is stored: struct
// constraints, that every action carries the input of its type, and that
// the actions form a valid chain.
func ValidateFlow(flow *api.ProcessFlow) error {
	if flow == nil {
		return api.Errorf(api.KindConfiguration, "workflow is nil")
	}
	if err := validate.Struct(flow); err != nil {
		return api.NewError(api.KindConfiguration, "invalid workflow definition", err)
	}
	if flow.Trigger.Type == api.TriggerRecurringTimer {
		if _, err := cron.ParseStandard(flow.Trigger.Input.Cron); err != nil {
			return api.NewError(api.KindConfiguration, "invalid trigger schedule", err)
		}
	}
	for id, a := range flow.Actions {
		if err := validateInput(a); err != nil {
			return api.NewError(api.KindConfiguration, fmt.Sprintf("invalid action %q", id), err)
		}
	}
	_, err := BuildChain(flow)
	return err
}

func validateInput(a api.Action) error {
	in := a.Input
	set := 0
	for _, p := range []bool{in.IssueCredential != nil, in.VerifyCredential != nil, in.SendEmail != nil} {
		if p {
			set++
		}
	}

	var ok bool
	switch a.Type {
	case api.ActionIssueCredential:
		ok = in.IssueCredential != nil
	case api.ActionVerifyCredential:
		ok = in.VerifyCredential != nil
	case api.ActionSendEmail:
		ok = in.SendEmail != nil
	default:
		// Custom action types carry no typed input.
		ok = set == 0
	}
	if !ok || set > 1 {
		return fmt.Errorf("input does not match action type %q", a.Type)
	}
	return nil
}
