package engine

import (
	"fmt"
	"sort"

	"github.com/petrijr/credflow/pkg/api"
)

// ChainStep is one action of a validated chain.
type ChainStep struct {
	ID     string
	Action api.Action
}

func chainError(format string, args ...any) error {
	return api.NewError(api.KindConfiguration, "invalid action chain", fmt.Errorf(format, args...))
}

// BuildChain orders the actions of flow by following RunAfter links from the
// trigger. Walking the result visits exactly the actions the engine would
// find one at a time by looking for the unique successor of the previous id.
//
// The flow is rejected when it has no trigger, when an action waits on an
// unknown predecessor or on a status other than Succeeded, when two actions
// share a predecessor, and when an action is unreachable from the trigger
// (which includes every cycle).
func BuildChain(flow *api.ProcessFlow) ([]ChainStep, error) {
	if flow == nil {
		return nil, chainError("workflow is nil")
	}
	if flow.Trigger == nil || flow.Trigger.ID == "" {
		return nil, chainError("workflow %q has no trigger", flow.ID)
	}
	triggerID := flow.Trigger.ID

	ids := make([]string, 0, len(flow.Actions))
	for id := range flow.Actions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	next := make(map[string]string, len(ids))
	for _, id := range ids {
		a := flow.Actions[id]
		if id == triggerID {
			return nil, chainError("action id %q collides with the trigger id", id)
		}
		pred := a.RunAfter.PredecessorID
		if pred == "" {
			return nil, chainError("action %q has no predecessor", id)
		}
		if a.RunAfter.Status != api.RunAfterSucceeded {
			return nil, chainError("action %q waits for unsupported status %q", id, a.RunAfter.Status)
		}
		if pred != triggerID {
			if _, ok := flow.Actions[pred]; !ok {
				return nil, chainError("action %q has unknown predecessor %q", id, pred)
			}
		}
		if other, taken := next[pred]; taken {
			return nil, chainError("actions %q and %q both run after %q", other, id, pred)
		}
		next[pred] = id
	}

	chain := make([]ChainStep, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for cur, ok := next[triggerID]; ok; cur, ok = next[cur] {
		if seen[cur] {
			return nil, chainError("cycle at action %q", cur)
		}
		seen[cur] = true
		chain = append(chain, ChainStep{ID: cur, Action: flow.Actions[cur]})
	}

	if len(chain) != len(ids) {
		for _, id := range ids {
			if seen[id] {
				continue
			}
			if inCycle(flow, id) {
				return nil, chainError("actions form a cycle through %q", id)
			}
			return nil, chainError("action %q is not reachable from trigger %q", id, triggerID)
		}
	}
	return chain, nil
}

// inCycle follows predecessors from id and reports whether it returns to id.
func inCycle(flow *api.ProcessFlow, id string) bool {
	cur := id
	for range flow.Actions {
		a, ok := flow.Actions[cur]
		if !ok {
			return false
		}
		cur = a.RunAfter.PredecessorID
		if cur == id {
			return true
		}
	}
	return false
}
