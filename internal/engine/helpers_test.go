package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/petrijr/credflow/internal/persistence"
	"github.com/petrijr/credflow/pkg/api"
)

const actionEcho api.ActionType = "Echo"

// step is a shorthand for a custom-typed action in a test flow.
func step(pred string) api.Action {
	return api.Action{
		Type:     actionEcho,
		RunAfter: api.RunAfter{PredecessorID: pred, Status: api.RunAfterSucceeded},
	}
}

func testFlow(id string, actions map[string]api.Action) api.ProcessFlow {
	return api.ProcessFlow{
		ID:       id,
		TenantID: "tenant-1",
		Trigger:  &api.Trigger{ID: "trigger", Type: api.TriggerHTTPRequest},
		Actions:  actions,
	}
}

// linearFlow is trigger -> a -> b -> c.
func linearFlow(id string) api.ProcessFlow {
	return testFlow(id, map[string]api.Action{
		"a": step("trigger"),
		"b": step("a"),
		"c": step("b"),
	})
}

// recordingHandler echoes its action id and the ids it saw before it.
type recordingHandler struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	panic map[string]bool
	hook  func(ctx context.Context, req *api.ActionRequest)
}

func (h *recordingHandler) Handle(ctx context.Context, req *api.ActionRequest) error {
	h.mu.Lock()
	h.calls = append(h.calls, req.ActionID)
	h.mu.Unlock()

	if h.hook != nil {
		h.hook(ctx, req)
	}
	if h.panic[req.ActionID] {
		panic("boom in " + req.ActionID)
	}
	prev := make([]string, 0, len(req.Previous))
	for _, p := range req.Previous {
		prev = append(prev, p.ActionID)
	}
	if err := req.SetOutput(map[string]any{"id": req.ActionID, "previous": prev}); err != nil {
		return err
	}
	if err := h.fail[req.ActionID]; err != nil {
		return err
	}
	return nil
}

func (h *recordingHandler) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("out-%d", s.n)
}

func newTestEngine(t *testing.T, h api.ActionHandler, obs api.Observer) (api.Engine, persistence.Persistence) {
	t.Helper()

	p := persistence.NewInMemory()
	reg := NewHandlerRegistry()
	reg.MustRegister(actionEcho, h)

	clock := &fixedClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	ids := &seqIDs{}
	eng := NewEngineWithConfig(Config{
		Persistence: p,
		Handlers:    reg,
		Observer:    obs,
		Now:         clock.Now,
		NewID:       ids.Next,
	})
	return eng, p
}

func mustTrigger(t *testing.T, eng api.Engine, flow api.ProcessFlow, payload api.TriggerPayload) *api.WorkflowOutcome {
	t.Helper()
	ctx := context.Background()
	if err := eng.SaveWorkflow(ctx, flow); err != nil {
		t.Fatalf("SaveWorkflow failed: %v", err)
	}
	out, err := eng.Trigger(ctx, flow.ID, payload)
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	return out
}

func outputOf(t *testing.T, ao api.ActionOutcome) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(ao.Output, &m); err != nil {
		t.Fatalf("decode output of %s: %v", ao.ActionID, err)
	}
	return m
}

var errStep = errors.New("step exploded")
