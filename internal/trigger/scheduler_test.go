package trigger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/credflow/internal/persistence"
	"github.com/petrijr/credflow/pkg/api"
)

func newTestScheduler(t *testing.T, flows ...api.ProcessFlow) (*Scheduler, *persistence.InMemoryStore, *recordingSubmitter, *bytes.Buffer) {
	t.Helper()
	store := persistence.NewInMemoryStore()
	for _, f := range flows {
		require.NoError(t, store.SaveWorkflow(context.Background(), f))
	}
	sub := newRecordingSubmitter(nil)
	var logs bytes.Buffer
	s := NewScheduler(store, sub, slog.New(slog.NewTextHandler(&logs, nil)))
	s.now = func() time.Time { return fixedNow }
	return s, store, sub, &logs
}

func TestScheduler_SyncSchedulesTimerFlowsOnly(t *testing.T) {
	s, _, _, _ := newTestScheduler(t,
		timerFlow("nightly", "0 2 * * *"),
		timerFlow("hourly", "@hourly"),
		httpFlow("signup", "POST"),
	)

	n, err := s.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, map[string]string{"nightly": "0 2 * * *", "hourly": "@hourly"}, s.Scheduled())
	require.Len(t, s.cron.Entries(), 2)
}

func TestScheduler_FireSubmitsWithTimestamp(t *testing.T) {
	s, _, sub, logs := newTestScheduler(t, timerFlow("nightly", "0 2 * * *"))
	_, err := s.Sync(context.Background())
	require.NoError(t, err)

	require.True(t, s.runNow("nightly"))

	payloads := sub.Payloads("nightly")
	require.Len(t, payloads, 1)
	require.Equal(t, "2025-06-01T12:00:00Z", payloads[0].Query["firedat"])
	require.True(t, payloads[0].ReceivedAt.Equal(fixedNow))
	require.Contains(t, logs.String(), "schedule_fired")
}

func TestScheduler_FireFailureIsLogged(t *testing.T) {
	s, _, sub, logs := newTestScheduler(t, timerFlow("nightly", "0 2 * * *"))
	sub.err = errSubmit
	_, err := s.Sync(context.Background())
	require.NoError(t, err)

	require.True(t, s.runNow("nightly"))
	require.Contains(t, logs.String(), "schedule_fire_failed")
	require.Contains(t, logs.String(), "queue down")
}

func TestScheduler_SyncReconciles(t *testing.T) {
	s, store, _, _ := newTestScheduler(t, timerFlow("nightly", "0 2 * * *"), timerFlow("weekly", "0 0 * * 0"))
	ctx := context.Background()

	_, err := s.Sync(ctx)
	require.NoError(t, err)
	before := s.entries["nightly"].id

	// Change one schedule, turn the other into an HTTP flow.
	require.NoError(t, store.SaveWorkflow(ctx, timerFlow("nightly", "30 3 * * *")))
	require.NoError(t, store.SaveWorkflow(ctx, httpFlow("weekly", "POST")))

	n, err := s.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, map[string]string{"nightly": "30 3 * * *"}, s.Scheduled())
	require.False(t, s.runNow("weekly"))
	require.Len(t, s.cron.Entries(), 1)
	require.NotEqual(t, before, s.entries["nightly"].id)
}

func TestScheduler_InvalidSpecIsSkipped(t *testing.T) {
	// Stored directly, bypassing engine validation.
	s, _, _, logs := newTestScheduler(t, timerFlow("broken", "not a cron"), timerFlow("ok", "@daily"))

	n, err := s.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Contains(t, logs.String(), "schedule_rejected")
}

func TestScheduler_StartStop(t *testing.T) {
	s, _, _, _ := newTestScheduler(t)
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	require.NoError(t, ctx.Err())
}
