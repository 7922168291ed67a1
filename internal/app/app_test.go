package app

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/credflow/internal/config"
	"github.com/petrijr/credflow/pkg/api"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func memoryConfig(t *testing.T) *config.Config {
	cfg := testConfig(t)
	cfg.Storage.Driver = "memory"
	cfg.Queue.Driver = "memory"
	cfg.Keys.Driver = "memory"
	return cfg
}

// emailFlow sends one templated mail to the "email" trigger input.
func emailFlow(id string) api.ProcessFlow {
	return api.ProcessFlow{
		ID:       id,
		TenantID: "tenant-1",
		Trigger:  &api.Trigger{ID: "trigger", Type: api.TriggerHTTPRequest, Input: api.TriggerInput{Method: "POST"}},
		Actions: map[string]api.Action{
			"mail": {
				Type: api.ActionSendEmail,
				Input: api.ActionInput{SendEmail: &api.SendEmailInput{
					To:         api.FromTrigger("email"),
					Subject:    "Hello {{name}}",
					Body:       "Welcome, {{name}}.",
					Parameters: map[string]api.ParameterReference{"name": api.FromTrigger("name")},
				}},
				RunAfter: api.RunAfter{PredecessorID: "trigger", Status: api.RunAfterSucceeded},
			},
		},
	}
}

func runTriggeredFlow(t *testing.T, a *App) *api.WorkflowOutcome {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, a.Engine.SaveWorkflow(ctx, emailFlow("welcome")))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/workflows/welcome/trigger?email=ada@example.com", strings.NewReader(`{"name":"Ada"}`))
	a.Server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Equal(t, 1, a.Queue.Len())

	processed, err := a.Worker.ProcessOne(ctx)
	require.True(t, processed)
	require.NoError(t, err)

	outs, err := a.Engine.ListOutcomes(ctx, api.OutcomeFilter{WorkflowID: "welcome"})
	require.NoError(t, err)
	require.Len(t, outs, 1)
	return outs[0]
}

func TestApp_MemoryEndToEnd(t *testing.T) {
	var logs bytes.Buffer
	a, err := New(context.Background(), memoryConfig(t), slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, err)
	defer a.Close()

	out := runTriggeredFlow(t, a)
	require.Equal(t, api.WorkflowSuccess, out.State)
	mail, ok := out.Find("mail")
	require.True(t, ok)
	require.Contains(t, string(mail.Output), "ada@example.com")

	require.Contains(t, logs.String(), "email_sent")
	require.Contains(t, logs.String(), "run_succeeded")
}

func TestApp_SQLiteEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	cfg.Storage.DSN = filepath.Join(dir, "credflow.db")
	cfg.Keys.DSN = cfg.Storage.DSN

	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	require.NoError(t, err)
	defer a.Close()

	require.Len(t, a.sqlite, 1, "storage, queue and keys share one handle")
	out := runTriggeredFlow(t, a)
	require.Equal(t, api.WorkflowSuccess, out.State)
}

func TestApp_RejectsUnreachableBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Driver = "redis"
	cfg.Storage.DSN = "redis://127.0.0.1:1/0"
	cfg.Queue.Driver = "redis"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := New(ctx, cfg, nil)
	require.ErrorContains(t, err, "open storage")
}

func TestApp_RunServesUntilCancelled(t *testing.T) {
	cfg := memoryConfig(t)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	cfg.Server.Addr = l.Addr().String()
	require.NoError(t, l.Close())

	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.Server.Addr + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get("http://" + cfg.Server.Addr + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
