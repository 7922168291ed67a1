package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/petrijr/credflow/internal/persistence"
	"github.com/petrijr/credflow/pkg/api"
)

func TestExecute_RunsChainInOrder(t *testing.T) {
	h := &recordingHandler{}
	eng, p := newTestEngine(t, h, nil)
	out := mustTrigger(t, eng, linearFlow("wf-1"), api.TriggerPayload{})

	if out.State != api.WorkflowNotStarted {
		t.Fatalf("expected NotStarted after trigger, got %s", out.State)
	}

	final, err := eng.Execute(context.Background(), out.ID)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if final.State != api.WorkflowSuccess {
		t.Fatalf("expected Success, got %s (%s)", final.State, final.ErrorMessage)
	}
	if got := strings.Join(h.Calls(), ","); got != "a,b,c" {
		t.Fatalf("expected a,b,c, got %s", got)
	}
	if len(final.ActionOutcomes) != 3 {
		t.Fatalf("expected 3 action outcomes, got %d", len(final.ActionOutcomes))
	}
	for i, id := range []string{"a", "b", "c"} {
		ao := final.ActionOutcomes[i]
		if ao.ActionID != id || ao.State != api.ActionSuccess {
			t.Fatalf("outcome %d: expected %s/Success, got %s/%s", i, id, ao.ActionID, ao.State)
		}
		if ao.EndedUTC == nil {
			t.Fatalf("outcome %s has no end time", id)
		}
	}

	// c saw a and b before it.
	prev := outputOf(t, final.ActionOutcomes[2])["previous"].([]any)
	if len(prev) != 2 || prev[0] != "a" || prev[1] != "b" {
		t.Fatalf("unexpected previous outcomes seen by c: %v", prev)
	}

	if final.StartedUTC == nil || final.EndedUTC == nil || !final.EndedUTC.After(*final.StartedUTC) {
		t.Fatalf("expected started < ended, got %v / %v", final.StartedUTC, final.EndedUTC)
	}

	stored, err := p.Outcomes.GetOutcome(context.Background(), out.ID)
	if err != nil {
		t.Fatalf("GetOutcome failed: %v", err)
	}
	if stored.State != api.WorkflowSuccess || len(stored.ActionOutcomes) != 3 {
		t.Fatalf("stored outcome not finalized: %s with %d actions", stored.State, len(stored.ActionOutcomes))
	}
}

func TestExecute_FailFast(t *testing.T) {
	h := &recordingHandler{fail: map[string]error{"b": errStep}}
	eng, _ := newTestEngine(t, h, nil)
	out := mustTrigger(t, eng, linearFlow("wf-1"), api.TriggerPayload{})

	final, err := eng.Execute(context.Background(), out.ID)
	if !errors.Is(err, errStep) {
		t.Fatalf("expected errStep, got %v", err)
	}
	if final.State != api.WorkflowFailed {
		t.Fatalf("expected Failed, got %s", final.State)
	}
	if final.ErrorMessage != errStep.Error() {
		t.Fatalf("expected error message %q, got %q", errStep.Error(), final.ErrorMessage)
	}
	if got := strings.Join(h.Calls(), ","); got != "a,b" {
		t.Fatalf("expected a,b to run, got %s", got)
	}
	if len(final.ActionOutcomes) != 2 {
		t.Fatalf("expected 2 action outcomes, got %d", len(final.ActionOutcomes))
	}
	b := final.ActionOutcomes[1]
	if b.State != api.ActionFailed || b.ErrorMessage != errStep.Error() || b.EndedUTC == nil {
		t.Fatalf("unexpected failed outcome: %+v", b)
	}
	// Output set before the failure is kept.
	if outputOf(t, b)["id"] != "b" {
		t.Fatalf("expected output of b to be kept")
	}
	if _, ok := final.Find("c"); ok {
		t.Fatalf("c must not have an outcome")
	}
}

func TestExecute_RefusesFinalizedOutcome(t *testing.T) {
	h := &recordingHandler{}
	eng, _ := newTestEngine(t, h, nil)
	out := mustTrigger(t, eng, linearFlow("wf-1"), api.TriggerPayload{})

	if _, err := eng.Execute(context.Background(), out.ID); err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}
	again, err := eng.Execute(context.Background(), out.ID)
	if !errors.Is(err, api.ErrOutcomeFinalized) {
		t.Fatalf("expected ErrOutcomeFinalized, got %v", err)
	}
	if again.State != api.WorkflowSuccess {
		t.Fatalf("expected stored Success, got %s", again.State)
	}
	if len(h.Calls()) != 3 {
		t.Fatalf("actions must not run again, got %v", h.Calls())
	}
}

func TestExecute_ConcurrentExecuteFinalizesOnce(t *testing.T) {
	release := make(chan struct{})
	h := &recordingHandler{hook: func(ctx context.Context, req *api.ActionRequest) {
		if req.ActionID == "a" {
			<-release
		}
	}}
	eng, _ := newTestEngine(t, h, nil)
	out := mustTrigger(t, eng, linearFlow("wf-1"), api.TriggerPayload{})

	const runners = 4
	errs := make(chan error, runners)
	var wg sync.WaitGroup
	for i := 0; i < runners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.Execute(context.Background(), out.ID)
			errs <- err
		}()
	}
	close(release)
	wg.Wait()
	close(errs)

	var ok, finalized int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, api.ErrOutcomeFinalized):
			finalized++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || finalized != runners-1 {
		t.Fatalf("expected 1 success and %d finalized, got %d / %d", runners-1, ok, finalized)
	}
}

func TestExecute_RecoversPanics(t *testing.T) {
	h := &recordingHandler{panic: map[string]bool{"a": true}}
	eng, _ := newTestEngine(t, h, nil)
	out := mustTrigger(t, eng, linearFlow("wf-1"), api.TriggerPayload{})

	final, err := eng.Execute(context.Background(), out.ID)
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("expected panic error, got %v", err)
	}
	if final.State != api.WorkflowFailed || !strings.Contains(final.ErrorMessage, "boom in a") {
		t.Fatalf("unexpected final outcome: %s %q", final.State, final.ErrorMessage)
	}
}

func TestExecute_CancelledBeforeDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &recordingHandler{hook: func(_ context.Context, req *api.ActionRequest) {
		if req.ActionID == "a" {
			cancel()
		}
	}}
	eng, p := newTestEngine(t, h, nil)
	out := mustTrigger(t, eng, linearFlow("wf-1"), api.TriggerPayload{})

	_, err := eng.Execute(ctx, out.ID)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := strings.Join(h.Calls(), ","); got != "a" {
		t.Fatalf("expected only a to run, got %s", got)
	}

	stored, err := p.Outcomes.GetOutcome(context.Background(), out.ID)
	if err != nil {
		t.Fatalf("GetOutcome failed: %v", err)
	}
	if stored.State != api.WorkflowNotStarted {
		t.Fatalf("cancelled run must leave the stored outcome untouched, got %s", stored.State)
	}
}

func TestExecute_MissingHandlerFailsRun(t *testing.T) {
	eng, _ := newTestEngine(t, &recordingHandler{}, nil)
	flow := testFlow("wf-1", map[string]api.Action{
		"a": {Type: "Unknown", RunAfter: api.RunAfter{PredecessorID: "trigger", Status: api.RunAfterSucceeded}},
	})
	out := mustTrigger(t, eng, flow, api.TriggerPayload{})

	final, err := eng.Execute(context.Background(), out.ID)
	if !api.IsKind(err, api.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if final.State != api.WorkflowFailed {
		t.Fatalf("expected Failed, got %s", final.State)
	}
}

func TestExecute_EmptyChainSucceeds(t *testing.T) {
	eng, _ := newTestEngine(t, &recordingHandler{}, nil)
	out := mustTrigger(t, eng, testFlow("wf-empty", nil), api.TriggerPayload{})

	final, err := eng.Execute(context.Background(), out.ID)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if final.State != api.WorkflowSuccess || len(final.ActionOutcomes) != 0 {
		t.Fatalf("unexpected outcome: %s with %d actions", final.State, len(final.ActionOutcomes))
	}
}

func TestExecute_BrokenStoredFlowFailsRun(t *testing.T) {
	eng, p := newTestEngine(t, &recordingHandler{}, nil)
	ctx := context.Background()

	good := linearFlow("wf-1")
	out := mustTrigger(t, eng, good, api.TriggerPayload{})

	// Bypass validation to simulate a definition corrupted after it was saved.
	broken := linearFlow("wf-1")
	broken.Actions["d"] = step("b")
	if err := p.Workflows.SaveWorkflow(ctx, broken); err != nil {
		t.Fatalf("SaveWorkflow failed: %v", err)
	}

	final, err := eng.Execute(ctx, out.ID)
	if !api.IsKind(err, api.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if final.State != api.WorkflowFailed || len(final.ActionOutcomes) != 0 {
		t.Fatalf("expected failed run without actions, got %s / %d", final.State, len(final.ActionOutcomes))
	}
}

func TestTrigger_UnknownWorkflow(t *testing.T) {
	eng, _ := newTestEngine(t, &recordingHandler{}, nil)
	_, err := eng.Trigger(context.Background(), "nope", api.TriggerPayload{})
	if !errors.Is(err, persistence.ErrWorkflowNotFound) {
		t.Fatalf("expected ErrWorkflowNotFound, got %v", err)
	}
}

func TestTrigger_StampsPayload(t *testing.T) {
	eng, _ := newTestEngine(t, &recordingHandler{}, nil)
	out := mustTrigger(t, eng, linearFlow("wf-1"), api.TriggerPayload{Query: map[string]string{"x": "1"}})

	if out.ID != "out-1" || out.TenantID != "tenant-1" || out.WorkflowID != "wf-1" {
		t.Fatalf("unexpected outcome identity: %+v", out)
	}
	if out.Trigger.ReceivedAt.IsZero() {
		t.Fatalf("expected ReceivedAt to be set")
	}
}

func TestExecute_UnknownOutcome(t *testing.T) {
	eng, _ := newTestEngine(t, &recordingHandler{}, nil)
	_, err := eng.Execute(context.Background(), "missing")
	if !errors.Is(err, persistence.ErrOutcomeNotFound) {
		t.Fatalf("expected ErrOutcomeNotFound, got %v", err)
	}
}

func TestSaveWorkflow_RejectsInvalid(t *testing.T) {
	eng, _ := newTestEngine(t, &recordingHandler{}, nil)
	ctx := context.Background()

	noTrigger := linearFlow("wf-1")
	noTrigger.Trigger = nil
	if err := eng.SaveWorkflow(ctx, noTrigger); !api.IsKind(err, api.KindConfiguration) {
		t.Fatalf("expected configuration error for missing trigger, got %v", err)
	}

	wrongInput := testFlow("wf-2", map[string]api.Action{
		"issue": {
			Type:     api.ActionIssueCredential,
			Input:    api.ActionInput{SendEmail: &api.SendEmailInput{To: api.Static("a@example.com"), Subject: "x"}},
			RunAfter: api.RunAfter{PredecessorID: "trigger", Status: api.RunAfterSucceeded},
		},
	})
	if err := eng.SaveWorkflow(ctx, wrongInput); err == nil || !strings.Contains(err.Error(), "does not match") {
		t.Fatalf("expected input mismatch error, got %v", err)
	}

	badSchedule := linearFlow("wf-3")
	badSchedule.Trigger = &api.Trigger{ID: "trigger", Type: api.TriggerRecurringTimer, Input: api.TriggerInput{Cron: "every tuesday"}}
	if err := eng.SaveWorkflow(ctx, badSchedule); !api.IsKind(err, api.KindConfiguration) {
		t.Fatalf("expected configuration error for bad schedule, got %v", err)
	}
	badSchedule.Trigger.Input.Cron = "*/5 * * * *"
	if err := eng.SaveWorkflow(ctx, badSchedule); err != nil {
		t.Fatalf("valid schedule rejected: %v", err)
	}

	if _, err := eng.GetWorkflow(ctx, "wf-1"); !errors.Is(err, persistence.ErrWorkflowNotFound) {
		t.Fatalf("rejected flow must not be stored, got %v", err)
	}
}

func TestListOutcomes(t *testing.T) {
	eng, _ := newTestEngine(t, &recordingHandler{fail: map[string]error{"a": errStep}}, nil)
	ctx := context.Background()

	first := mustTrigger(t, eng, linearFlow("wf-1"), api.TriggerPayload{})
	second, err := eng.Trigger(ctx, "wf-1", api.TriggerPayload{})
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	_, _ = eng.Execute(ctx, first.ID)

	failed, err := eng.ListOutcomes(ctx, api.OutcomeFilter{State: api.WorkflowFailed})
	if err != nil {
		t.Fatalf("ListOutcomes failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != first.ID {
		t.Fatalf("unexpected failed outcomes: %v", failed)
	}
	pending, err := eng.ListOutcomes(ctx, api.OutcomeFilter{WorkflowID: "wf-1", State: api.WorkflowNotStarted})
	if err != nil {
		t.Fatalf("ListOutcomes failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != second.ID {
		t.Fatalf("unexpected pending outcomes: %v", pending)
	}
}

func TestExecute_RecordsHistory(t *testing.T) {
	h := &recordingHandler{fail: map[string]error{"b": errStep}}
	eng, p := newTestEngine(t, h, nil)
	out := mustTrigger(t, eng, linearFlow("wf-1"), api.TriggerPayload{})
	_, _ = eng.Execute(context.Background(), out.ID)

	events, err := p.Events.ListEvents(context.Background(), out.ID)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	want := []api.EventType{
		api.EventRunTriggered,
		api.EventRunStarted,
		api.EventActionStarted, api.EventActionSucceeded,
		api.EventActionStarted, api.EventActionFailed,
		api.EventRunFailed,
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d: %+v", len(want), len(events), events)
	}
	for i, w := range want {
		if events[i].Type != w {
			t.Fatalf("event %d: expected %s, got %s", i, w, events[i].Type)
		}
	}
	if events[5].Detail != errStep.Error() || events[5].ActionID != "b" {
		t.Fatalf("unexpected failure event: %+v", events[5])
	}
	if !events[1].At.Before(events[6].At) {
		t.Fatalf("events out of time order")
	}
}
