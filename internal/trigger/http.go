// Package trigger starts workflow runs from the outside world: an HTTP
// endpoint for HttpRequest, WalletInteraction and Manual triggers, and a
// cron scheduler for RecurringTimer triggers.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/petrijr/credflow/internal/persistence"
	"github.com/petrijr/credflow/pkg/api"
)

// DefaultMaxBodyBytes bounds trigger request bodies.
const DefaultMaxBodyBytes = 1 << 20

// Submitter records a run and schedules it. *worker.Worker implements it.
type Submitter interface {
	Submit(ctx context.Context, workflowID string, payload api.TriggerPayload) (*api.WorkflowOutcome, error)
}

// ServerConfig wires the HTTP trigger surface.
type ServerConfig struct {
	Engine    api.Engine
	Submitter Submitter
	Logger    *slog.Logger

	// Metrics, when set, is served on GET /metrics.
	Metrics http.Handler

	MaxBodyBytes int64
	Now          func() time.Time
}

// Server exposes workflow definitions, triggers and outcomes over HTTP.
type Server struct {
	engine  api.Engine
	submit  Submitter
	logger  *slog.Logger
	maxBody int64
	now     func() time.Time
	router  *gin.Engine
}

// NewServer builds the gin router. It does not listen; use Handler with an
// http.Server.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		engine:  cfg.Engine,
		submit:  cfg.Submitter,
		logger:  cfg.Logger,
		maxBody: cfg.MaxBodyBytes,
		now:     cfg.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.maxBody <= 0 {
		s.maxBody = DefaultMaxBodyBytes
	}
	if s.now == nil {
		s.now = time.Now
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	r.POST("/workflows", s.saveWorkflow)
	r.GET("/workflows/:id", s.getWorkflow)
	r.GET("/workflows/:id/trigger", s.triggerWorkflow)
	r.POST("/workflows/:id/trigger", s.triggerWorkflow)

	r.GET("/outcomes", s.listOutcomes)
	r.GET("/outcomes/:id", s.getOutcome)
	r.GET("/outcomes/:id/events", s.listEvents)

	s.router = r
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.InfoContext(c.Request.Context(), "http_request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

func (s *Server) saveWorkflow(c *gin.Context) {
	var flow api.ProcessFlow
	if err := c.ShouldBindJSON(&flow); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow json: " + err.Error()})
		return
	}
	if err := s.engine.SaveWorkflow(c.Request.Context(), flow); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": flow.ID})
}

func (s *Server) getWorkflow(c *gin.Context) {
	flow, err := s.engine.GetWorkflow(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, flow)
}

func (s *Server) triggerWorkflow(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	flow, err := s.engine.GetWorkflow(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if flow.Trigger == nil || flow.Trigger.Type == api.TriggerRecurringTimer {
		c.JSON(http.StatusConflict, gin.H{"error": "workflow " + id + " cannot be triggered over http"})
		return
	}
	if m := flow.Trigger.Input.Method; m != "" && !strings.EqualFold(m, c.Request.Method) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "workflow " + id + " expects " + strings.ToUpper(m)})
		return
	}

	payload, err := s.readPayload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := s.submit.Submit(ctx, id, payload)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"outcomeId": out.ID, "state": out.State})
}

// readPayload captures the query string (first value per key) and the body.
// A body that is not JSON is stored as a JSON string.
func (s *Server) readPayload(c *gin.Context) (api.TriggerPayload, error) {
	payload := api.TriggerPayload{ReceivedAt: s.now().UTC()}

	values := c.Request.URL.Query()
	if len(values) > 0 {
		payload.Query = make(map[string]string, len(values))
		for k, v := range values {
			if len(v) > 0 {
				payload.Query[k] = v[0]
			}
		}
	}

	if c.Request.Body == nil {
		return payload, nil
	}
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return payload, errors.New("request body too large")
		}
		return payload, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return payload, nil
	}
	if json.Valid(raw) {
		payload.Body = json.RawMessage(raw)
		return payload, nil
	}
	quoted, err := json.Marshal(string(raw))
	if err != nil {
		return payload, err
	}
	payload.Body = quoted
	return payload, nil
}

func (s *Server) getOutcome(c *gin.Context) {
	out, err := s.engine.GetOutcome(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) listEvents(c *gin.Context) {
	history, ok := s.engine.(api.HistoryReader)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "event history not available"})
		return
	}
	ctx := c.Request.Context()
	out, err := s.engine.GetOutcome(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	events, err := history.ListEvents(ctx, out.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	if events == nil {
		events = []api.WorkflowEvent{}
	}
	c.JSON(http.StatusOK, events)
}

func (s *Server) listOutcomes(c *gin.Context) {
	filter := api.OutcomeFilter{
		TenantID:   c.Query("tenantId"),
		WorkflowID: c.Query("workflowId"),
		State:      api.WorkflowState(c.Query("state")),
	}
	outs, err := s.engine.ListOutcomes(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	if outs == nil {
		outs = []*api.WorkflowOutcome{}
	}
	c.JSON(http.StatusOK, outs)
}

func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, persistence.ErrWorkflowNotFound), errors.Is(err, persistence.ErrOutcomeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case api.IsKind(err, api.KindConfiguration):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.logger.ErrorContext(c.Request.Context(), "http_request_failed",
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}
