package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/credflow/pkg/api"
)

func TestPostgresStore_SaveWorkflow(t *testing.T) {
	t.Run("Should upsert workflow definition", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		store := NewPostgresStore(mockPool)
		flow := sampleFlow("wf-1", "tenant-1")
		mockPool.ExpectExec("INSERT INTO workflows (.+) ON CONFLICT \\(id\\) DO UPDATE").
			WithArgs("wf-1", "tenant-1", flow.Name, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		err = store.SaveWorkflow(context.Background(), flow)
		assert.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresStore_GetWorkflow(t *testing.T) {
	t.Run("Should decode stored definition", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		store := NewPostgresStore(mockPool)
		def, err := EncodeValue(sampleFlow("wf-1", "tenant-1"))
		require.NoError(t, err)
		rows := mockPool.NewRows([]string{"definition"}).AddRow(def)
		mockPool.ExpectQuery("SELECT definition FROM workflows WHERE id = \\$1").
			WithArgs("wf-1").
			WillReturnRows(rows)
		got, err := store.GetWorkflow(context.Background(), "wf-1")
		require.NoError(t, err)
		assert.Equal(t, "wf-1", got.ID)
		assert.Equal(t, api.TriggerHTTPRequest, got.Trigger.Type)
		assert.Contains(t, got.Actions, "issue")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
	t.Run("Should map no rows to ErrWorkflowNotFound", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		store := NewPostgresStore(mockPool)
		mockPool.ExpectQuery("SELECT definition FROM workflows WHERE id = \\$1").
			WithArgs("missing").
			WillReturnError(pgx.ErrNoRows)
		got, err := store.GetWorkflow(context.Background(), "missing")
		assert.Nil(t, got)
		assert.True(t, errors.Is(err, ErrWorkflowNotFound))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresStore_ListWorkflows(t *testing.T) {
	t.Run("Should filter by tenant", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		store := NewPostgresStore(mockPool)
		a, _ := EncodeValue(sampleFlow("wf-a", "tenant-1"))
		b, _ := EncodeValue(sampleFlow("wf-b", "tenant-1"))
		rows := mockPool.NewRows([]string{"definition"}).AddRow(a).AddRow(b)
		mockPool.ExpectQuery("SELECT definition FROM workflows WHERE tenant_id = \\$1 ORDER BY id").
			WithArgs("tenant-1").
			WillReturnRows(rows)
		flows, err := store.ListWorkflows(context.Background(), "tenant-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"wf-a", "wf-b"}, flowIDs(flows))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresStore_CreateOutcome(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Should insert outcome row", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		store := NewPostgresStore(mockPool)
		out := sampleOutcome("out-1", "wf-1", "tenant-1", created)
		mockPool.ExpectExec("INSERT INTO outcomes").
			WithArgs("out-1", "wf-1", "tenant-1", string(api.WorkflowNotStarted), created, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		assert.NoError(t, store.CreateOutcome(context.Background(), out))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
	t.Run("Should map unique violation to ErrOutcomeExists", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		store := NewPostgresStore(mockPool)
		out := sampleOutcome("out-1", "wf-1", "tenant-1", created)
		mockPool.ExpectExec("INSERT INTO outcomes").
			WithArgs("out-1", "wf-1", "tenant-1", string(api.WorkflowNotStarted), created, pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: "23505"})
		err = store.CreateOutcome(context.Background(), out)
		assert.True(t, errors.Is(err, ErrOutcomeExists))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresStore_UpdateOutcome(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	updateSQL := "UPDATE outcomes SET state = \\$1, document = \\$2 WHERE id = \\$3 AND state NOT IN \\(\\$4, \\$5\\)"
	terminal := []any{string(api.WorkflowSuccess), string(api.WorkflowFailed)}

	newOutcome := func() *api.WorkflowOutcome {
		out := sampleOutcome("out-1", "wf-1", "tenant-1", created)
		out.State = api.WorkflowSuccess
		return out
	}

	t.Run("Should finalize a pending outcome", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		store := NewPostgresStore(mockPool)
		mockPool.ExpectExec(updateSQL).
			WithArgs(string(api.WorkflowSuccess), pgxmock.AnyArg(), "out-1", terminal[0], terminal[1]).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		assert.NoError(t, store.UpdateOutcome(context.Background(), newOutcome()))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
	t.Run("Should refuse to overwrite a terminal outcome", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		store := NewPostgresStore(mockPool)
		mockPool.ExpectExec(updateSQL).
			WithArgs(string(api.WorkflowSuccess), pgxmock.AnyArg(), "out-1", terminal[0], terminal[1]).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mockPool.ExpectQuery("SELECT state FROM outcomes WHERE id = \\$1").
			WithArgs("out-1").
			WillReturnRows(mockPool.NewRows([]string{"state"}).AddRow(string(api.WorkflowFailed)))
		err = store.UpdateOutcome(context.Background(), newOutcome())
		assert.True(t, errors.Is(err, api.ErrOutcomeFinalized))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
	t.Run("Should report a missing outcome", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		store := NewPostgresStore(mockPool)
		mockPool.ExpectExec(updateSQL).
			WithArgs(string(api.WorkflowSuccess), pgxmock.AnyArg(), "out-1", terminal[0], terminal[1]).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mockPool.ExpectQuery("SELECT state FROM outcomes WHERE id = \\$1").
			WithArgs("out-1").
			WillReturnError(pgx.ErrNoRows)
		err = store.UpdateOutcome(context.Background(), newOutcome())
		assert.True(t, errors.Is(err, ErrOutcomeNotFound))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresStore_ListOutcomes(t *testing.T) {
	t.Run("Should build numbered filter clauses", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		store := NewPostgresStore(mockPool)
		doc, _ := EncodeValue(sampleOutcome("out-1", "wf-1", "tenant-1", time.Now().UTC()))
		mockPool.ExpectQuery("SELECT document FROM outcomes WHERE tenant_id = \\$1 AND workflow_id = \\$2 AND state = \\$3 ORDER BY created_at, id").
			WithArgs("tenant-1", "wf-1", string(api.WorkflowNotStarted)).
			WillReturnRows(mockPool.NewRows([]string{"document"}).AddRow(doc))
		outs, err := store.ListOutcomes(context.Background(), api.OutcomeFilter{
			TenantID:   "tenant-1",
			WorkflowID: "wf-1",
			State:      api.WorkflowNotStarted,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"out-1"}, outcomeIDs(outs))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresStore_InitSchema(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()
	mockPool.ExpectExec("CREATE TABLE IF NOT EXISTS workflows").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	assert.NoError(t, NewPostgresStore(mockPool).InitSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore_Events(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Should append with sequence order", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		store := NewPostgresStore(mockPool)
		mockPool.ExpectExec("INSERT INTO workflow_events").
			WithArgs("out-1", at, string(api.EventActionFailed), "wf-1", "issue", "boom").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		err = store.AppendEvent(context.Background(), api.WorkflowEvent{
			OutcomeID: "out-1", At: at, Type: api.EventActionFailed,
			WorkflowID: "wf-1", ActionID: "issue", Detail: "boom",
		})
		assert.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
	t.Run("Should list events of one outcome", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		store := NewPostgresStore(mockPool)
		rows := mockPool.NewRows([]string{"outcome_id", "at", "type", "workflow_id", "action_id", "detail"}).
			AddRow("out-1", at, string(api.EventRunStarted), "wf-1", "", "").
			AddRow("out-1", at.Add(time.Second), string(api.EventRunSucceeded), "wf-1", "", "")
		mockPool.ExpectQuery("SELECT outcome_id, at, type, workflow_id, action_id, detail\\s+FROM workflow_events WHERE outcome_id = \\$1 ORDER BY seq").
			WithArgs("out-1").
			WillReturnRows(rows)
		events, err := store.ListEvents(context.Background(), "out-1")
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, api.EventRunStarted, events[0].Type)
		assert.Equal(t, api.EventRunSucceeded, events[1].Type)
		assert.True(t, events[1].At.Equal(at.Add(time.Second)))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
