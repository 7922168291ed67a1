package trigger

import (
	"context"
	"errors"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/petrijr/credflow/pkg/api"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// recordingSubmitter records submissions and creates outcomes through eng
// when set.
type recordingSubmitter struct {
	mu       sync.Mutex
	eng      api.Engine
	payloads map[string][]api.TriggerPayload
	err      error
}

func newRecordingSubmitter(eng api.Engine) *recordingSubmitter {
	return &recordingSubmitter{eng: eng, payloads: make(map[string][]api.TriggerPayload)}
}

func (r *recordingSubmitter) Submit(ctx context.Context, workflowID string, payload api.TriggerPayload) (*api.WorkflowOutcome, error) {
	r.mu.Lock()
	r.payloads[workflowID] = append(r.payloads[workflowID], payload)
	r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}
	if r.eng == nil {
		return &api.WorkflowOutcome{ID: "out-" + workflowID, WorkflowID: workflowID, State: api.WorkflowNotStarted}, nil
	}
	return r.eng.Trigger(ctx, workflowID, payload)
}

func (r *recordingSubmitter) Payloads(workflowID string) []api.TriggerPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]api.TriggerPayload(nil), r.payloads[workflowID]...)
}

var errSubmit = errors.New("queue down")

// runNow invokes the job registered for workflowID, if any.
func (s *Scheduler) runNow(workflowID string) bool {
	s.mu.Lock()
	cur, ok := s.entries[workflowID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	entry := s.cron.Entry(cur.id)
	if entry.Job == nil {
		return false
	}
	entry.Job.Run()
	return true
}

func httpFlow(id, method string) api.ProcessFlow {
	return api.ProcessFlow{
		ID:       id,
		TenantID: "tenant-1",
		Trigger: &api.Trigger{
			ID:    "trigger",
			Type:  api.TriggerHTTPRequest,
			Input: api.TriggerInput{Method: method},
		},
	}
}

func timerFlow(id, spec string) api.ProcessFlow {
	return api.ProcessFlow{
		ID:       id,
		TenantID: "tenant-1",
		Trigger: &api.Trigger{
			ID:    "tick",
			Type:  api.TriggerRecurringTimer,
			Input: api.TriggerInput{Cron: spec},
		},
	}
}
