package trigger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/petrijr/credflow/pkg/api"
)

// FlowLister lists stored workflow definitions. persistence.WorkflowStore
// implements it.
type FlowLister interface {
	ListWorkflows(ctx context.Context, tenantID string) ([]*api.ProcessFlow, error)
}

// Scheduler fires RecurringTimer workflows on their cron schedule.
type Scheduler struct {
	flows  FlowLister
	submit Submitter
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]scheduled // by workflow id
}

type scheduled struct {
	spec string
	id   cron.EntryID
}

// NewScheduler creates a stopped scheduler. Call Sync to load schedules and
// Start to begin firing.
func NewScheduler(flows FlowLister, submit Submitter, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		flows:   flows,
		submit:  submit,
		logger:  logger,
		now:     time.Now,
		cron:    cron.New(cron.WithLocation(time.UTC)),
		entries: make(map[string]scheduled),
	}
}

// Sync reconciles cron entries with the stored RecurringTimer workflows:
// new flows are added, changed schedules replaced, removed flows dropped.
// It returns the number of scheduled workflows.
func (s *Scheduler) Sync(ctx context.Context) (int, error) {
	flows, err := s.flows.ListWorkflows(ctx, "")
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	for _, flow := range flows {
		if flow.Trigger == nil || flow.Trigger.Type != api.TriggerRecurringTimer {
			continue
		}
		spec := flow.Trigger.Input.Cron
		seen[flow.ID] = true

		if cur, ok := s.entries[flow.ID]; ok {
			if cur.spec == spec {
				continue
			}
			s.cron.Remove(cur.id)
			delete(s.entries, flow.ID)
		}

		id, err := s.cron.AddFunc(spec, s.fire(flow.ID))
		if err != nil {
			s.logger.WarnContext(ctx, "schedule_rejected",
				slog.String("workflow_id", flow.ID),
				slog.String("cron", spec),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.entries[flow.ID] = scheduled{spec: spec, id: id}
		s.logger.InfoContext(ctx, "schedule_added",
			slog.String("workflow_id", flow.ID),
			slog.String("cron", spec),
		)
	}

	for wfID, cur := range s.entries {
		if !seen[wfID] {
			s.cron.Remove(cur.id)
			delete(s.entries, wfID)
			s.logger.InfoContext(ctx, "schedule_removed", slog.String("workflow_id", wfID))
		}
	}
	return len(s.entries), nil
}

// fire returns the cron job for workflowID. The payload carries the firing
// time as the "firedat" input.
func (s *Scheduler) fire(workflowID string) func() {
	return func() {
		at := s.now().UTC()
		payload := api.TriggerPayload{
			Query:      map[string]string{"firedat": at.Format(time.RFC3339)},
			ReceivedAt: at,
		}
		out, err := s.submit.Submit(context.Background(), workflowID, payload)
		if err != nil {
			s.logger.Error("schedule_fire_failed",
				slog.String("workflow_id", workflowID),
				slog.String("error", err.Error()),
			)
			return
		}
		s.logger.Info("schedule_fired",
			slog.String("workflow_id", workflowID),
			slog.String("outcome_id", out.ID),
		)
	}
}

// Start begins firing in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs or ctx, whichever
// comes first.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Scheduled returns the cron spec per scheduled workflow id.
func (s *Scheduler) Scheduled() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.entries))
	for id, e := range s.entries {
		out[id] = e.spec
	}
	return out
}
