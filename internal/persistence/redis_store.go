package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/credflow/pkg/api"
)

// RedisStore is a WorkflowStore and OutcomeStore backed by Redis.
// It uses a simple key structure:
//
//	<prefix>wf:<id>          => JSON ProcessFlow
//	<prefix>idx:wf           => SET of all workflow IDs
//	<prefix>out:<id>         => JSON WorkflowOutcome
//	<prefix>idx:out          => ZSET of outcome IDs scored by creation time
//	<prefix>ev:<outcomeID>   => LIST of JSON events in append order
//
// Filtering is done on the decoded documents.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var (
	_ WorkflowStore = (*RedisStore)(nil)
	_ OutcomeStore  = (*RedisStore)(nil)
	_ EventStore    = (*RedisStore)(nil)
)

// updateRetries bounds optimistic-lock retries in UpdateOutcome.
const updateRetries = 5

// NewRedisStore creates a RedisStore.
// prefix is optional but recommended (e.g. "credflow:").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "credflow:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) keyWorkflow(id string) string { return r.prefix + "wf:" + id }
func (r *RedisStore) keyWorkflows() string         { return r.prefix + "idx:wf" }
func (r *RedisStore) keyOutcome(id string) string  { return r.prefix + "out:" + id }
func (r *RedisStore) keyOutcomes() string          { return r.prefix + "idx:out" }
func (r *RedisStore) keyEvents(id string) string   { return r.prefix + "ev:" + id }

func (r *RedisStore) SaveWorkflow(ctx context.Context, flow api.ProcessFlow) error {
	data, err := EncodeValue(flow)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.keyWorkflow(flow.ID), data, 0)
	pipe.SAdd(ctx, r.keyWorkflows(), flow.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) GetWorkflow(ctx context.Context, id string) (*api.ProcessFlow, error) {
	data, err := r.client.Get(ctx, r.keyWorkflow(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrWorkflowNotFound
		}
		return nil, err
	}
	flow, err := DecodeValue[api.ProcessFlow](data)
	if err != nil {
		return nil, err
	}
	return &flow, nil
}

func (r *RedisStore) ListWorkflows(ctx context.Context, tenantID string) ([]*api.ProcessFlow, error) {
	ids, err := r.client.SMembers(ctx, r.keyWorkflows()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)

	var flows []*api.ProcessFlow
	for _, id := range ids {
		flow, err := r.GetWorkflow(ctx, id)
		if errors.Is(err, ErrWorkflowNotFound) {
			// stale index entry
			continue
		}
		if err != nil {
			return nil, err
		}
		if tenantID != "" && flow.TenantID != tenantID {
			continue
		}
		flows = append(flows, flow)
	}
	return flows, nil
}

func (r *RedisStore) CreateOutcome(ctx context.Context, out *api.WorkflowOutcome) error {
	data, err := EncodeValue(out)
	if err != nil {
		return err
	}

	ok, err := r.client.SetNX(ctx, r.keyOutcome(out.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrOutcomeExists
	}
	return r.client.ZAdd(ctx, r.keyOutcomes(), redis.Z{
		Score:  float64(out.CreatedUTC.UnixMilli()),
		Member: out.ID,
	}).Err()
}

func (r *RedisStore) UpdateOutcome(ctx context.Context, out *api.WorkflowOutcome) error {
	data, err := EncodeValue(out)
	if err != nil {
		return err
	}
	key := r.keyOutcome(out.ID)

	update := func(tx *redis.Tx) error {
		prev, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrOutcomeNotFound
		}
		if err != nil {
			return err
		}
		stored, err := DecodeValue[api.WorkflowOutcome](prev)
		if err != nil {
			return err
		}
		if stored.State.Terminal() {
			return api.ErrOutcomeFinalized
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}

	for i := 0; i < updateRetries; i++ {
		err := r.client.Watch(ctx, update, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update outcome %s: too much contention", out.ID)
}

func (r *RedisStore) GetOutcome(ctx context.Context, id string) (*api.WorkflowOutcome, error) {
	data, err := r.client.Get(ctx, r.keyOutcome(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrOutcomeNotFound
		}
		return nil, err
	}
	out, err := DecodeValue[api.WorkflowOutcome](data)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *RedisStore) ListOutcomes(ctx context.Context, filter api.OutcomeFilter) ([]*api.WorkflowOutcome, error) {
	ids, err := r.client.ZRange(ctx, r.keyOutcomes(), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	var result []*api.WorkflowOutcome
	for _, id := range ids {
		out, err := r.GetOutcome(ctx, id)
		if errors.Is(err, ErrOutcomeNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if matchesFilter(out, filter) {
			result = append(result, out)
		}
	}
	sortOutcomes(result)
	return result, nil
}

func (r *RedisStore) AppendEvent(ctx context.Context, ev api.WorkflowEvent) error {
	data, err := EncodeValue(newEventRecord(ev))
	if err != nil {
		return err
	}
	return r.client.RPush(ctx, r.keyEvents(ev.OutcomeID), data).Err()
}

func (r *RedisStore) ListEvents(ctx context.Context, outcomeID string) ([]api.WorkflowEvent, error) {
	items, err := r.client.LRange(ctx, r.keyEvents(outcomeID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	events := make([]api.WorkflowEvent, 0, len(items))
	for _, item := range items {
		rec, err := DecodeValue[eventRecord]([]byte(item))
		if err != nil {
			return nil, err
		}
		events = append(events, rec.event())
	}
	return events, nil
}
