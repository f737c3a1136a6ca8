package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/credence/internal/job"
	"github.com/mohammad-safakhou/credence/internal/pipeline"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var jobsTracer = otel.Tracer("credence/internal/server")

// JobsHandler serves job submission, status, progress streaming and cancel.
type JobsHandler struct {
	store     job.Store
	submitter Submitter
	analyzer  Analyzer
	keepAlive time.Duration
	logger    *log.Logger
}

type submitResponse struct {
	JobID    string     `json:"job_id"`
	Status   job.Status `json:"status"`
	Pipeline string     `json:"pipeline"`
	Message  string     `json:"message"`
}

type jobResponse struct {
	JobID    string              `json:"job_id"`
	Status   job.Status          `json:"status"`
	Result   any                 `json:"result,omitempty"`
	Error    string              `json:"error,omitempty"`
	Progress []job.ProgressEntry `json:"progress"`
}

type cancelResponse struct {
	JobID     string     `json:"job_id"`
	Status    job.Status `json:"status"`
	Requested bool       `json:"cancel_requested"`
	Message   string     `json:"message"`
}

func (h *JobsHandler) Register(g *echo.Group) {
	g.POST("", h.submit)
	g.GET("/:id", h.get)
	g.GET("/:id/stream", h.stream)
	g.POST("/:id/cancel", h.cancel)
}

func (h *JobsHandler) submit(c echo.Context) error {
	_, span := jobsTracer.Start(c.Request().Context(), "JobsHandler.submit")
	defer span.End()
	var req pipeline.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if h.submitter == nil || h.analyzer == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "analysis is not available")
	}
	id := h.store.Create(req.Content)
	span.SetAttributes(attribute.String("job_id", id), attribute.String("pipeline", req.Pipeline))
	if err := h.submitter.Submit(id, h.analyzer.Runner(req)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		_, _ = h.store.Fail(id, err.Error())
		if errors.Is(err, job.ErrQueueFull) || errors.Is(err, job.ErrStopped) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.logger.Printf("job %s submitted (%s, %d chars)", id, req.Pipeline, len(req.Content))
	return c.JSON(http.StatusAccepted, submitResponse{
		JobID:    id,
		Status:   job.StatusPending,
		Pipeline: req.Pipeline,
		Message:  "Analysis started",
	})
}

func (h *JobsHandler) get(c echo.Context) error {
	j, ok := h.store.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}
	return c.JSON(http.StatusOK, jobResponse{
		JobID:    j.ID,
		Status:   j.Status,
		Result:   j.Result,
		Error:    j.Error,
		Progress: j.Progress,
	})
}

// stream replays the progress log and follows it live over Server-Sent
// Events. Each entry is a "progress" event; status changes are "status"
// events and the terminal one carries the result.
func (h *JobsHandler) stream(c echo.Context) error {
	req := c.Request()
	id := c.Param("id")
	ctx, span := jobsTracer.Start(req.Context(), "JobsHandler.stream")
	defer span.End()
	span.SetAttributes(attribute.String("job_id", id))

	events, err := h.store.Subscribe(ctx, id)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "job not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.Header().Set("X-Accel-Buffering", "no")
	resp.WriteHeader(http.StatusOK)
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		span.SetStatus(codes.Error, "streaming unsupported")
		return nil
	}

	keepAlive := h.keepAlive
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := resp.Write([]byte(": keep-alive\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return nil
			}
			name, payload := "progress", any(ev.Entry)
			if ev.Entry == nil {
				name = "status"
				body := map[string]any{"job_id": id, "status": ev.Status}
				if ev.Status.Terminal() {
					if j, ok := h.store.Get(id); ok {
						body["result"] = j.Result
						if j.Error != "" {
							body["error"] = j.Error
						}
					}
				}
				payload = body
			}
			if err := writeEvent(resp, name, payload); err != nil {
				span.RecordError(err)
				return nil
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(name)
	b.WriteString("\ndata: ")
	b.Write(data)
	b.WriteString("\n\n")
	_, err = w.Write([]byte(b.String()))
	return err
}

func (h *JobsHandler) cancel(c echo.Context) error {
	id := c.Param("id")
	requested, err := h.store.Cancel(id)
	if errors.Is(err, job.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	j, _ := h.store.Get(id)
	msg := "Job cancellation requested"
	switch {
	case requested:
	case j.Status.Terminal():
		msg = "Job already finished"
	default:
		msg = "Cancellation already requested"
	}
	return c.JSON(http.StatusOK, cancelResponse{JobID: id, Status: j.Status, Requested: requested, Message: msg})
}
