package credflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalRunner_DrainsSubmissions(t *testing.T) {
	ctx := context.Background()
	deps := newTestDeps(t)
	runner := NewLocalRunner(deps.opts)
	onboardingFlow().MustSave(ctx, runner.Engine)

	require.NoError(t, runner.StartWorkers(ctx, 2))
	require.ErrorIs(t, runner.StartWorkers(ctx, 1), ErrRunnerStarted)
	defer runner.Stop()

	var ids []string
	for i := 0; i < 5; i++ {
		out, err := runner.Submit(ctx, "onboarding", onboardingPayload())
		require.NoError(t, err)
		require.Equal(t, StateNotStarted, out.State)
		ids = append(ids, out.ID)
	}

	require.Eventually(t, func() bool {
		for _, id := range ids {
			out, err := runner.Engine.GetOutcome(ctx, id)
			if err != nil || out.State != StateSuccess {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)
	require.Len(t, deps.mailer.Sent(), 5)
}

func TestLocalRunner_StopIsIdempotent(t *testing.T) {
	runner := NewLocalRunner(Options{})
	runner.Stop()

	require.NoError(t, runner.StartWorkers(context.Background(), 1))
	runner.Stop()
	runner.Stop()

	// Can be restarted after Stop.
	require.NoError(t, runner.StartWorkers(context.Background(), 1))
	runner.Stop()
}
