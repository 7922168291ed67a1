package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/petrijr/credflow/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe implementation of
// WorkflowStore, OutcomeStore and EventStore backed by maps.
//
// Values are deep-copied through the JSON codec on the way in and out, so
// callers never share memory with the store.
type InMemoryStore struct {
	mu        sync.RWMutex
	workflows map[string][]byte
	outcomes  map[string][]byte
	events    map[string][]api.WorkflowEvent
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		workflows: make(map[string][]byte),
		outcomes:  make(map[string][]byte),
		events:    make(map[string][]api.WorkflowEvent),
	}
}

// Ensure InMemoryStore implements the interfaces.
var (
	_ WorkflowStore = (*InMemoryStore)(nil)
	_ OutcomeStore  = (*InMemoryStore)(nil)
	_ EventStore    = (*InMemoryStore)(nil)
)

func (s *InMemoryStore) SaveWorkflow(ctx context.Context, flow api.ProcessFlow) error {
	data, err := EncodeValue(flow)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.workflows[flow.ID] = data
	return nil
}

func (s *InMemoryStore) GetWorkflow(ctx context.Context, id string) (*api.ProcessFlow, error) {
	s.mu.RLock()
	data, ok := s.workflows[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrWorkflowNotFound
	}
	flow, err := DecodeValue[api.ProcessFlow](data)
	if err != nil {
		return nil, err
	}
	return &flow, nil
}

func (s *InMemoryStore) ListWorkflows(ctx context.Context, tenantID string) ([]*api.ProcessFlow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.ProcessFlow
	for _, data := range s.workflows {
		flow, err := DecodeValue[api.ProcessFlow](data)
		if err != nil {
			return nil, err
		}
		if tenantID != "" && flow.TenantID != tenantID {
			continue
		}
		result = append(result, &flow)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *InMemoryStore) CreateOutcome(ctx context.Context, out *api.WorkflowOutcome) error {
	data, err := EncodeValue(out)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.outcomes[out.ID]; ok {
		return ErrOutcomeExists
	}
	s.outcomes[out.ID] = data
	return nil
}

func (s *InMemoryStore) UpdateOutcome(ctx context.Context, out *api.WorkflowOutcome) error {
	data, err := EncodeValue(out)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.outcomes[out.ID]
	if !ok {
		return ErrOutcomeNotFound
	}
	stored, err := DecodeValue[api.WorkflowOutcome](prev)
	if err != nil {
		return err
	}
	if stored.State.Terminal() {
		return api.ErrOutcomeFinalized
	}

	s.outcomes[out.ID] = data
	return nil
}

func (s *InMemoryStore) GetOutcome(ctx context.Context, id string) (*api.WorkflowOutcome, error) {
	s.mu.RLock()
	data, ok := s.outcomes[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrOutcomeNotFound
	}
	out, err := DecodeValue[api.WorkflowOutcome](data)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *InMemoryStore) ListOutcomes(ctx context.Context, filter api.OutcomeFilter) ([]*api.WorkflowOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.WorkflowOutcome
	for _, data := range s.outcomes {
		out, err := DecodeValue[api.WorkflowOutcome](data)
		if err != nil {
			return nil, err
		}
		if !matchesFilter(&out, filter) {
			continue
		}
		result = append(result, &out)
	}
	sortOutcomes(result)
	return result, nil
}

func (s *InMemoryStore) AppendEvent(ctx context.Context, ev api.WorkflowEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[ev.OutcomeID] = append(s.events[ev.OutcomeID], ev)
	return nil
}

func (s *InMemoryStore) ListEvents(ctx context.Context, outcomeID string) ([]api.WorkflowEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evs := s.events[outcomeID]
	out := make([]api.WorkflowEvent, len(evs))
	copy(out, evs)
	return out, nil
}

// sortOutcomes orders outcomes by creation time, then id.
func sortOutcomes(outs []*api.WorkflowOutcome) {
	sort.SliceStable(outs, func(i, j int) bool {
		if !outs[i].CreatedUTC.Equal(outs[j].CreatedUTC) {
			return outs[i].CreatedUTC.Before(outs[j].CreatedUTC)
		}
		return outs[i].ID < outs[j].ID
	})
}
