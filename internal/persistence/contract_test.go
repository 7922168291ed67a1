package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/petrijr/credflow/pkg/api"
)

func sampleFlow(id, tenant string) api.ProcessFlow {
	return api.ProcessFlow{
		ID:       id,
		TenantID: tenant,
		Name:     "issue-" + id,
		Trigger: &api.Trigger{
			ID:    "trigger",
			Type:  api.TriggerHTTPRequest,
			Input: api.TriggerInput{Method: "POST", Parameters: []string{"email"}},
		},
		Actions: map[string]api.Action{
			"issue": {
				Type: api.ActionIssueCredential,
				Input: api.ActionInput{IssueCredential: &api.IssueCredentialInput{
					SubjectDID: api.FromTrigger("subjectDid"),
					IssuerDID:  api.FromSetting("issuerDid"),
					Claims: map[string]api.ClaimValue{
						"email": {Type: api.ClaimTriggerInput, Value: "email"},
					},
				}},
				RunAfter: api.RunAfter{PredecessorID: "trigger", Status: api.RunAfterSucceeded},
			},
		},
	}
}

func sampleOutcome(id, workflowID, tenant string, created time.Time) *api.WorkflowOutcome {
	return &api.WorkflowOutcome{
		ID:         id,
		WorkflowID: workflowID,
		TenantID:   tenant,
		State:      api.WorkflowNotStarted,
		Trigger: api.TriggerPayload{
			Query:      map[string]string{"email": "a@example.com"},
			ReceivedAt: created,
		},
		CreatedUTC: created,
	}
}

// runStoreContract exercises the behavior every WorkflowStore and
// OutcomeStore implementation must share.
func runStoreContract(t *testing.T, wf WorkflowStore, outs OutcomeStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// Workflows: save, overwrite, get, list by tenant.
	if err := wf.SaveWorkflow(ctx, sampleFlow("wf-b", "tenant-1")); err != nil {
		t.Fatalf("SaveWorkflow failed: %v", err)
	}
	if err := wf.SaveWorkflow(ctx, sampleFlow("wf-a", "tenant-1")); err != nil {
		t.Fatalf("SaveWorkflow failed: %v", err)
	}
	if err := wf.SaveWorkflow(ctx, sampleFlow("wf-c", "tenant-2")); err != nil {
		t.Fatalf("SaveWorkflow failed: %v", err)
	}
	renamed := sampleFlow("wf-a", "tenant-1")
	renamed.Name = "renamed"
	if err := wf.SaveWorkflow(ctx, renamed); err != nil {
		t.Fatalf("SaveWorkflow overwrite failed: %v", err)
	}

	got, err := wf.GetWorkflow(ctx, "wf-a")
	if err != nil {
		t.Fatalf("GetWorkflow failed: %v", err)
	}
	if got.Name != "renamed" {
		t.Fatalf("expected overwritten name, got %q", got.Name)
	}
	if got.Trigger == nil || got.Trigger.Type != api.TriggerHTTPRequest {
		t.Fatalf("trigger not round-tripped: %+v", got.Trigger)
	}
	issue, ok := got.Actions["issue"]
	if !ok || issue.Input.IssueCredential == nil {
		t.Fatalf("issue action not round-tripped: %+v", got.Actions)
	}
	if issue.Input.IssueCredential.Claims["email"].Type != api.ClaimTriggerInput {
		t.Fatalf("claims not round-tripped: %+v", issue.Input.IssueCredential.Claims)
	}

	if _, err := wf.GetWorkflow(ctx, "missing"); !errors.Is(err, ErrWorkflowNotFound) {
		t.Fatalf("expected ErrWorkflowNotFound, got %v", err)
	}

	flows, err := wf.ListWorkflows(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("ListWorkflows failed: %v", err)
	}
	if len(flows) != 2 || flows[0].ID != "wf-a" || flows[1].ID != "wf-b" {
		t.Fatalf("unexpected tenant-1 workflows: %v", flowIDs(flows))
	}
	all, err := wf.ListWorkflows(ctx, "")
	if err != nil {
		t.Fatalf("ListWorkflows(all) failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 workflows, got %v", flowIDs(all))
	}

	// Outcomes: create, duplicate, update, finalize once.
	first := sampleOutcome("out-1", "wf-a", "tenant-1", base)
	second := sampleOutcome("out-2", "wf-a", "tenant-1", base.Add(time.Second))
	other := sampleOutcome("out-3", "wf-c", "tenant-2", base.Add(2*time.Second))
	for _, o := range []*api.WorkflowOutcome{second, first, other} {
		if err := outs.CreateOutcome(ctx, o); err != nil {
			t.Fatalf("CreateOutcome(%s) failed: %v", o.ID, err)
		}
	}
	if err := outs.CreateOutcome(ctx, first); !errors.Is(err, ErrOutcomeExists) {
		t.Fatalf("expected ErrOutcomeExists, got %v", err)
	}

	loaded, err := outs.GetOutcome(ctx, "out-1")
	if err != nil {
		t.Fatalf("GetOutcome failed: %v", err)
	}
	if loaded.State != api.WorkflowNotStarted {
		t.Fatalf("expected NotStarted, got %s", loaded.State)
	}
	if loaded.Trigger.Query["email"] != "a@example.com" {
		t.Fatalf("trigger payload not round-tripped: %+v", loaded.Trigger)
	}
	if !loaded.CreatedUTC.Equal(base) {
		t.Fatalf("expected created %v, got %v", base, loaded.CreatedUTC)
	}

	ended := base.Add(time.Minute)
	ao := api.NewActionOutcome("issue", base)
	ao.Succeed(json.RawMessage(`{"credential":"a.b.c"}`), ended)
	loaded.State = api.WorkflowSuccess
	loaded.ActionOutcomes = []api.ActionOutcome{*ao}
	loaded.StartedUTC = &base
	loaded.EndedUTC = &ended
	if err := outs.UpdateOutcome(ctx, loaded); err != nil {
		t.Fatalf("UpdateOutcome failed: %v", err)
	}

	final, err := outs.GetOutcome(ctx, "out-1")
	if err != nil {
		t.Fatalf("GetOutcome after update failed: %v", err)
	}
	if final.State != api.WorkflowSuccess {
		t.Fatalf("expected Success, got %s", final.State)
	}
	stored, ok := final.Find("issue")
	if !ok || stored.State != api.ActionSuccess {
		t.Fatalf("action outcome not stored: %+v", final.ActionOutcomes)
	}
	if string(stored.Output) != `{"credential":"a.b.c"}` {
		t.Fatalf("unexpected output %s", stored.Output)
	}

	final.State = api.WorkflowFailed
	if err := outs.UpdateOutcome(ctx, final); !errors.Is(err, api.ErrOutcomeFinalized) {
		t.Fatalf("expected ErrOutcomeFinalized, got %v", err)
	}
	if err := outs.UpdateOutcome(ctx, sampleOutcome("nope", "wf-a", "tenant-1", base)); !errors.Is(err, ErrOutcomeNotFound) {
		t.Fatalf("expected ErrOutcomeNotFound, got %v", err)
	}
	if _, err := outs.GetOutcome(ctx, "nope"); !errors.Is(err, ErrOutcomeNotFound) {
		t.Fatalf("expected ErrOutcomeNotFound, got %v", err)
	}

	// Listing and filters.
	byWorkflow, err := outs.ListOutcomes(ctx, api.OutcomeFilter{WorkflowID: "wf-a"})
	if err != nil {
		t.Fatalf("ListOutcomes failed: %v", err)
	}
	if len(byWorkflow) != 2 || byWorkflow[0].ID != "out-1" || byWorkflow[1].ID != "out-2" {
		t.Fatalf("unexpected wf-a outcomes: %v", outcomeIDs(byWorkflow))
	}
	succeeded, err := outs.ListOutcomes(ctx, api.OutcomeFilter{State: api.WorkflowSuccess})
	if err != nil {
		t.Fatalf("ListOutcomes(state) failed: %v", err)
	}
	if len(succeeded) != 1 || succeeded[0].ID != "out-1" {
		t.Fatalf("unexpected succeeded outcomes: %v", outcomeIDs(succeeded))
	}
	tenant2, err := outs.ListOutcomes(ctx, api.OutcomeFilter{TenantID: "tenant-2"})
	if err != nil {
		t.Fatalf("ListOutcomes(tenant) failed: %v", err)
	}
	if len(tenant2) != 1 || tenant2[0].ID != "out-3" {
		t.Fatalf("unexpected tenant-2 outcomes: %v", outcomeIDs(tenant2))
	}
	everything, err := outs.ListOutcomes(ctx, api.OutcomeFilter{})
	if err != nil {
		t.Fatalf("ListOutcomes(all) failed: %v", err)
	}
	if got := outcomeIDs(everything); len(got) != 3 || got[0] != "out-1" || got[2] != "out-3" {
		t.Fatalf("unexpected ordering: %v", got)
	}
}

// runEventContract checks append order and isolation per outcome.
func runEventContract(t *testing.T, es EventStore) {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	events := []api.WorkflowEvent{
		{OutcomeID: "o1", At: at, Type: api.EventRunStarted, WorkflowID: "wf"},
		{OutcomeID: "o1", At: at.Add(time.Millisecond), Type: api.EventActionStarted, WorkflowID: "wf", ActionID: "issue"},
		{OutcomeID: "o2", At: at, Type: api.EventRunStarted, WorkflowID: "wf"},
		{OutcomeID: "o1", At: at.Add(2 * time.Millisecond), Type: api.EventActionFailed, WorkflowID: "wf", ActionID: "issue", Detail: "boom"},
	}
	for _, ev := range events {
		if err := es.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}

	got, err := es.ListEvents(ctx, "o1")
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events for o1, got %d", len(got))
	}
	wantTypes := []api.EventType{api.EventRunStarted, api.EventActionStarted, api.EventActionFailed}
	for i, want := range wantTypes {
		if got[i].Type != want {
			t.Fatalf("event %d: expected %s, got %s", i, want, got[i].Type)
		}
	}
	if got[2].Detail != "boom" || got[2].ActionID != "issue" {
		t.Fatalf("unexpected last event: %+v", got[2])
	}
	if !got[1].At.Equal(at.Add(time.Millisecond)) {
		t.Fatalf("unexpected timestamp %v", got[1].At)
	}

	none, err := es.ListEvents(ctx, "missing")
	if err != nil {
		t.Fatalf("ListEvents(missing) failed: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no events, got %d", len(none))
	}
}

func flowIDs(flows []*api.ProcessFlow) []string {
	ids := make([]string, 0, len(flows))
	for _, f := range flows {
		ids = append(ids, f.ID)
	}
	return ids
}

func outcomeIDs(outs []*api.WorkflowOutcome) []string {
	ids := make([]string, 0, len(outs))
	for _, o := range outs {
		ids = append(ids, o.ID)
	}
	return ids
}
