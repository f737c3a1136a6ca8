package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/credence/internal/credibility"
	"github.com/mohammad-safakhou/credence/internal/job"
	"github.com/mohammad-safakhou/credence/internal/pipeline"
)

type analyzerFunc func(req pipeline.Request) job.Runner

func (f analyzerFunc) Runner(req pipeline.Request) job.Runner { return f(req) }

type failingSubmitter struct{ err error }

func (s failingSubmitter) Submit(string, job.Runner) error { return s.err }

type lookupFunc func(domain string, deep bool) credibility.Profile

func (f lookupFunc) Lookup(_ context.Context, domain string, deep bool) credibility.Profile {
	return f(domain, deep)
}

func echoAnalyzer() Analyzer {
	return analyzerFunc(func(req pipeline.Request) job.Runner {
		return func(ctx context.Context, id string) (any, error) {
			return map[string]any{"pipeline": req.Pipeline, "chars": len(req.Content)}, nil
		}
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func waitStatus(t *testing.T, st *job.MemoryStore, id string) job.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if j, ok := st.Get(id); ok && j.Status.Terminal() {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return job.Job{}
}

func TestSubmitAndGet(t *testing.T) {
	st := job.NewMemoryStore()
	sup := job.NewSupervisor(st, job.SupervisorOptions{Workers: 1, Backlog: 4})
	defer sup.Shutdown(context.Background())
	e := New(Options{Store: st, Submitter: sup, Analyzer: echoAnalyzer()})

	rec := do(t, e, http.MethodPost, "/api/jobs", `{"content":"  The tower is 330 metres tall.  ","pipeline":"FACT_CHECK"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit: %d %s", rec.Code, rec.Body.String())
	}
	var sub submitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &sub); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sub.JobID == "" || sub.Status != job.StatusPending || sub.Pipeline != pipeline.PipelineFactCheck {
		t.Fatalf("unexpected submit response: %+v", sub)
	}

	waitStatus(t, st, sub.JobID)
	rec = do(t, e, http.MethodGet, "/api/jobs/"+sub.JobID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}
	var got struct {
		Status job.Status     `json:"status"`
		Result map[string]any `json:"result"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Status != job.StatusCompleted || got.Result["pipeline"] != pipeline.PipelineFactCheck {
		t.Fatalf("unexpected job: %s", rec.Body.String())
	}
	if got.Result["chars"] != float64(len("The tower is 330 metres tall.")) {
		t.Fatalf("content was not trimmed: %v", got.Result["chars"])
	}
}

func TestSubmitValidation(t *testing.T) {
	st := job.NewMemoryStore()
	e := New(Options{Store: st, Submitter: failingSubmitter{}, Analyzer: echoAnalyzer()})
	cases := map[string]string{
		"empty content": `{"content":"   "}`,
		"bad pipeline":  `{"content":"x","pipeline":"astrology"}`,
		"bad mode":      `{"content":"x","preferences":{"force_include":["horoscope"]}}`,
		"bad json":      `{"content":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(t, e, http.MethodPost, "/api/jobs", body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d %s", rec.Code, rec.Body.String())
			}
		})
	}
	if st.Len() != 0 {
		t.Fatalf("rejected requests must not create jobs, have %d", st.Len())
	}
}

func TestSubmitQueueFullFailsJob(t *testing.T) {
	st := job.NewMemoryStore()
	e := New(Options{Store: st, Submitter: failingSubmitter{err: job.ErrQueueFull}, Analyzer: echoAnalyzer()})
	rec := do(t, e, http.MethodPost, "/api/jobs", `{"content":"hello"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if st.Len() != 1 {
		t.Fatalf("expected the job to be recorded, have %d", st.Len())
	}

	e = New(Options{Store: st, Submitter: failingSubmitter{err: errors.New("boom")}, Analyzer: echoAnalyzer()})
	if rec := do(t, e, http.MethodPost, "/api/jobs", `{"content":"hello"}`); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestSubmitWithoutAnalyzer(t *testing.T) {
	e := New(Options{Store: job.NewMemoryStore()})
	if rec := do(t, e, http.MethodPost, "/api/jobs", `{"content":"hello"}`); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestGetUnknownJob(t *testing.T) {
	e := New(Options{Store: job.NewMemoryStore()})
	for _, path := range []string{"/api/jobs/nope", "/api/jobs/nope/stream"} {
		if rec := do(t, e, http.MethodGet, path, ""); rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, rec.Code)
		}
	}
	if rec := do(t, e, http.MethodPost, "/api/jobs/nope/cancel", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("cancel: expected 404, got %d", rec.Code)
	}
}

func TestCancel(t *testing.T) {
	st := job.NewMemoryStore()
	e := New(Options{Store: st})

	pending := st.Create("queued content")
	rec := do(t, e, http.MethodPost, "/api/jobs/"+pending+"/cancel", "")
	var resp cancelResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if rec.Code != http.StatusOK || !resp.Requested || resp.Status != job.StatusCancelled {
		t.Fatalf("pending cancel: %d %+v", rec.Code, resp)
	}

	running := st.Create("running content")
	_, _ = st.Start(running)
	rec = do(t, e, http.MethodPost, "/api/jobs/"+running+"/cancel", "")
	resp = cancelResponse{}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Requested || resp.Status != job.StatusProcessing {
		t.Fatalf("running cancel: %+v", resp)
	}
	rec = do(t, e, http.MethodPost, "/api/jobs/"+running+"/cancel", "")
	resp = cancelResponse{}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Requested || resp.Message != "Cancellation already requested" {
		t.Fatalf("repeat cancel: %+v", resp)
	}

	done := st.Create("done content")
	_, _ = st.Start(done)
	_, _ = st.Complete(done, "report")
	rec = do(t, e, http.MethodPost, "/api/jobs/"+done+"/cancel", "")
	resp = cancelResponse{}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Requested || resp.Status != job.StatusCompleted || resp.Message != "Job already finished" {
		t.Fatalf("finished cancel: %+v", resp)
	}
}

func TestStreamReplaysAndCloses(t *testing.T) {
	st := job.NewMemoryStore()
	e := New(Options{Store: st, KeepAlive: time.Hour})

	id := st.Create("content")
	_, _ = st.Start(id)
	_ = st.AppendProgress(id, "Stage 1: classifying content", nil)
	_ = st.AppendProgress(id, "Stage 2: running 3 modes", map[string]any{"modes": 3})
	_, _ = st.Complete(id, map[string]any{"overall_score": 72})

	rec := do(t, e, http.MethodGet, "/api/jobs/"+id+"/stream", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stream: %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}
	body := rec.Body.String()
	if strings.Count(body, "event: progress\n") != 2 {
		t.Fatalf("expected two progress events:\n%s", body)
	}
	if !strings.Contains(body, "Stage 1: classifying content") {
		t.Fatalf("missing replayed entry:\n%s", body)
	}
	last := body[strings.LastIndex(body, "event: status"):]
	if !strings.Contains(last, `"status":"completed"`) || !strings.Contains(last, `"overall_score":72`) {
		t.Fatalf("terminal status event should carry the result:\n%s", last)
	}
}

func TestStreamFollowsLiveJob(t *testing.T) {
	st := job.NewMemoryStore()
	e := New(Options{Store: st, KeepAlive: time.Hour})
	id := st.Create("content")

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = st.Start(id)
		_ = st.AppendProgress(id, "working", nil)
		_, _ = st.Fail(id, "classifier unavailable")
	}()

	rec := do(t, e, http.MethodGet, "/api/jobs/"+id+"/stream", "")
	body := rec.Body.String()
	if !strings.Contains(body, `"status":"pending"`) || !strings.Contains(body, "working") {
		t.Fatalf("missing live events:\n%s", body)
	}
	if !strings.Contains(body, `"status":"failed"`) || !strings.Contains(body, "classifier unavailable") {
		t.Fatalf("missing failure:\n%s", body)
	}
}

func TestCredibilityEndpoint(t *testing.T) {
	var gotDomain string
	var gotDeep bool
	lookup := lookupFunc(func(domain string, deep bool) credibility.Profile {
		gotDomain, gotDeep = domain, deep
		return credibility.Profile{Domain: domain, Tier: 1, Provenance: credibility.ProvenanceUnverified}
	})
	e := New(Options{Store: job.NewMemoryStore(), Lookup: lookup})

	rec := do(t, e, http.MethodPost, "/api/credibility", `{"url":"https://www.Reuters.com/world/story","deep":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("credibility: %d %s", rec.Code, rec.Body.String())
	}
	var resp credibilityResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if gotDomain != "reuters.com" || !gotDeep || resp.Domain != "reuters.com" {
		t.Fatalf("lookup got %q deep=%v, response %+v", gotDomain, gotDeep, resp)
	}
	if resp.Credibility.TierDescription == "" {
		t.Fatalf("tier description should be filled: %+v", resp.Credibility)
	}

	for _, body := range []string{`{}`, `{"url":"   "}`, `{"url":"not a url"}`} {
		if rec := do(t, e, http.MethodPost, "/api/credibility", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("credence_up 1\n"))
	})
	e := New(Options{Store: job.NewMemoryStore(), Metrics: metrics})

	if rec := do(t, e, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}
	rec := do(t, e, http.MethodGet, "/api/health", "")
	var health map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &health)
	if health["status"] != "healthy" || health["credibility"] != false {
		t.Fatalf("health: %s", rec.Body.String())
	}
	if rec := do(t, e, http.MethodGet, "/metrics", ""); !strings.Contains(rec.Body.String(), "credence_up 1") {
		t.Fatalf("metrics: %q", rec.Body.String())
	}
	if rec := do(t, e, http.MethodPost, "/api/credibility", `{"url":"https://example.com"}`); rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("credibility without lookup should not be routed, got %d", rec.Code)
	}
}
