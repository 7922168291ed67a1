package persistence

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/credflow/pkg/api"
)

// MongoStore is a WorkflowStore and OutcomeStore backed by MongoDB.
type MongoStore struct {
	workflows *mongo.Collection
	outcomes  *mongo.Collection
	events    *mongo.Collection
}

var (
	_ WorkflowStore = (*MongoStore)(nil)
	_ OutcomeStore  = (*MongoStore)(nil)
	_ EventStore    = (*MongoStore)(nil)
)

// NewMongoStore creates a Mongo-backed store.
// dbName defaults to "credflow" if empty.
func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	if dbName == "" {
		dbName = "credflow"
	}
	db := client.Database(dbName)
	return &MongoStore{
		workflows: db.Collection("workflows"),
		outcomes:  db.Collection("outcomes"),
		events:    db.Collection("workflow_events"),
	}
}

type mongoWorkflowDoc struct {
	ID         string `bson:"_id"`
	TenantID   string `bson:"tenant_id"`
	Name       string `bson:"name"`
	Definition []byte `bson:"definition"`
}

type mongoOutcomeDoc struct {
	ID         string    `bson:"_id"`
	WorkflowID string    `bson:"workflow_id"`
	TenantID   string    `bson:"tenant_id"`
	State      string    `bson:"state"`
	CreatedAt  time.Time `bson:"created_at"`
	Document   []byte    `bson:"document"`
}

func (s *MongoStore) SaveWorkflow(ctx context.Context, flow api.ProcessFlow) error {
	def, err := EncodeValue(flow)
	if err != nil {
		return err
	}
	doc := mongoWorkflowDoc{ID: flow.ID, TenantID: flow.TenantID, Name: flow.Name, Definition: def}
	_, err = s.workflows.ReplaceOne(ctx, bson.M{"_id": flow.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) GetWorkflow(ctx context.Context, id string) (*api.ProcessFlow, error) {
	var doc mongoWorkflowDoc
	if err := s.workflows.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrWorkflowNotFound
		}
		return nil, err
	}
	flow, err := DecodeValue[api.ProcessFlow](doc.Definition)
	if err != nil {
		return nil, err
	}
	return &flow, nil
}

func (s *MongoStore) ListWorkflows(ctx context.Context, tenantID string) ([]*api.ProcessFlow, error) {
	filter := bson.M{}
	if tenantID != "" {
		filter["tenant_id"] = tenantID
	}
	cur, err := s.workflows.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var flows []*api.ProcessFlow
	for cur.Next(ctx) {
		var doc mongoWorkflowDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		flow, err := DecodeValue[api.ProcessFlow](doc.Definition)
		if err != nil {
			return nil, err
		}
		flows = append(flows, &flow)
	}
	return flows, cur.Err()
}

func (s *MongoStore) CreateOutcome(ctx context.Context, out *api.WorkflowOutcome) error {
	data, err := EncodeValue(out)
	if err != nil {
		return err
	}
	_, err = s.outcomes.InsertOne(ctx, mongoOutcomeDoc{
		ID:         out.ID,
		WorkflowID: out.WorkflowID,
		TenantID:   out.TenantID,
		State:      string(out.State),
		CreatedAt:  out.CreatedUTC,
		Document:   data,
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrOutcomeExists
	}
	return err
}

func (s *MongoStore) UpdateOutcome(ctx context.Context, out *api.WorkflowOutcome) error {
	data, err := EncodeValue(out)
	if err != nil {
		return err
	}

	filter := bson.M{
		"_id":   out.ID,
		"state": bson.M{"$nin": bson.A{string(api.WorkflowSuccess), string(api.WorkflowFailed)}},
	}
	update := bson.M{"$set": bson.M{"state": string(out.State), "document": data}}

	res, err := s.outcomes.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := s.outcomes.CountDocuments(ctx, bson.M{"_id": out.ID})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrOutcomeNotFound
	}
	return api.ErrOutcomeFinalized
}

func (s *MongoStore) GetOutcome(ctx context.Context, id string) (*api.WorkflowOutcome, error) {
	var doc mongoOutcomeDoc
	if err := s.outcomes.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrOutcomeNotFound
		}
		return nil, err
	}
	out, err := DecodeValue[api.WorkflowOutcome](doc.Document)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *MongoStore) ListOutcomes(ctx context.Context, filter api.OutcomeFilter) ([]*api.WorkflowOutcome, error) {
	q := bson.M{}
	if filter.TenantID != "" {
		q["tenant_id"] = filter.TenantID
	}
	if filter.WorkflowID != "" {
		q["workflow_id"] = filter.WorkflowID
	}
	if filter.State != "" {
		q["state"] = string(filter.State)
	}

	cur, err := s.outcomes.Find(ctx, q, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var result []*api.WorkflowOutcome
	for cur.Next(ctx) {
		var doc mongoOutcomeDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out, err := DecodeValue[api.WorkflowOutcome](doc.Document)
		if err != nil {
			return nil, err
		}
		result = append(result, &out)
	}
	return result, cur.Err()
}

func (s *MongoStore) AppendEvent(ctx context.Context, ev api.WorkflowEvent) error {
	_, err := s.events.InsertOne(ctx, newEventRecord(ev))
	return err
}

// ListEvents orders by timestamp, then by the generated ObjectID, which
// grows with insertion order.
func (s *MongoStore) ListEvents(ctx context.Context, outcomeID string) ([]api.WorkflowEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.events.Find(ctx, bson.M{"outcome_id": outcomeID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var events []api.WorkflowEvent
	for cur.Next(ctx) {
		var rec eventRecord
		if err := cur.Decode(&rec); err != nil {
			return nil, err
		}
		events = append(events, rec.event())
	}
	return events, cur.Err()
}
