package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/itstheanurag/coderunner/internal/events"
	"github.com/itstheanurag/coderunner/internal/evaluator"
	"github.com/itstheanurag/coderunner/internal/executor"
	"github.com/itstheanurag/coderunner/internal/jobs"
	"github.com/itstheanurag/coderunner/internal/languages"
	"github.com/itstheanurag/coderunner/internal/queue"
	"github.com/itstheanurag/coderunner/internal/sandbox"
	"github.com/itstheanurag/coderunner/internal/value"
	"github.com/itstheanurag/coderunner/internal/worker"
)

type registryCatalog struct {
	registry *languages.Registry
}

func (c registryCatalog) Supports(lang string) bool {
	_, err := c.registry.Get(lang)
	return err == nil
}

func (c registryCatalog) Languages() []languages.Language { return c.registry.List() }

func (c registryCatalog) LimitsFor(l languages.Language, req sandbox.Limits) sandbox.Limits {
	return req.WithDefaults(l.Limits)
}

// echoExecutor passes every case whose expected output equals its input.
type echoExecutor struct {
	err   error
	delay time.Duration
}

func (e *echoExecutor) Execute(ctx context.Context, opts executor.ExecuteOptions) (*executor.Report, error) {
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.err != nil {
		return nil, e.err
	}
	report := &executor.Report{
		SubmissionID: opts.Submission.ID,
		ProblemID:    opts.Submission.ProblemID,
		Language:     opts.Submission.Language,
		Total:        len(opts.TestCases),
		Results:      []executor.CaseReport{},
	}
	for i, tc := range opts.TestCases {
		status := evaluator.StatusFailed
		if value.Equal(tc.Input, tc.Expected) {
			status = evaluator.StatusPassed
			report.Passed++
		}
		report.Results = append(report.Results, executor.CaseReport{
			Index: i, Status: status, ActualOutput: tc.Input, ExpectedOutput: tc.Expected,
		})
	}
	report.Status = executor.OverallFailed
	if report.Passed == report.Total {
		report.Status = executor.OverallPassed
	}
	return report, nil
}

func (e *echoExecutor) RunOnce(_ context.Context, opts executor.RunOptions) (*executor.RunReport, error) {
	if e.err != nil {
		return nil, e.err
	}
	return &executor.RunReport{SubmissionID: opts.Submission.ID, Status: "Completed", Output: opts.Input}, nil
}

type testServer struct {
	srv   *httptest.Server
	store *jobs.MemoryStore
}

func newTestServer(t *testing.T, exec worker.Executor, opts Options) *testServer {
	t.Helper()
	logger := zerolog.Nop()
	manager := queue.NewManager(8)
	store := jobs.NewMemoryStore(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	w := worker.NewWorker(0, exec, manager, store, events.NopPublisher{}, &logger)
	go func() {
		w.Start(ctx)
		close(done)
	}()

	h := NewHandler(manager, store, registryCatalog{registry: languages.NewRegistry()}, opts, &logger)
	r := chi.NewRouter()
	r.Route("/code", h.Routes)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return &testServer{srv: srv, store: store}
}

type envelope struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
}

func (ts *testServer) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, ts.srv.URL+path, bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if env.StatusCode != resp.StatusCode {
		t.Fatalf("envelope status %d does not match HTTP status %d", env.StatusCode, resp.StatusCode)
	}
	return resp.StatusCode, env
}

const executeBody = `{
  "code": "def solve(x):\n    return x\n",
  "language": "python",
  "problem_id": "echo",
  "test_cases": [
    {"input": [[1,3],[2,6]], "expected_output": [[1,3],[2,6]], "description": "same"},
    {"input": [], "expected_output": []}
  ]
}`

func TestExecuteReturnsReport(t *testing.T) {
	ts := newTestServer(t, &echoExecutor{}, Options{})
	status, env := ts.do(t, http.MethodPost, "/code/execute", executeBody)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, env.Body)
	}
	var report executor.Report
	if err := json.Unmarshal(env.Body, &report); err != nil {
		t.Fatal(err)
	}
	if report.Status != executor.OverallPassed || len(report.Results) != 2 || report.ProblemID != "echo" {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.SubmissionID == "" {
		t.Fatal("submission id not assigned")
	}
}

func TestExecuteValidation(t *testing.T) {
	ts := newTestServer(t, &echoExecutor{}, Options{})
	cases := map[string]struct {
		body string
		want int
	}{
		"malformed json":     {`{"code": `, http.StatusBadRequest},
		"missing language":   {`{"code": "x", "problem_id": "p"}`, http.StatusBadRequest},
		"missing problem id": {`{"code": "x", "language": "python"}`, http.StatusBadRequest},
		"negative limits":    {`{"code": "x", "language": "python", "problem_id": "p", "limits": {"cpu_time_ms": -1}}`, http.StatusBadRequest},
		"unsupported":        {`{"code": "x", "language": "cobol", "problem_id": "p"}`, http.StatusNotImplemented},
	}
	for name, tc := range cases {
		status, env := ts.do(t, http.MethodPost, "/code/execute", tc.body)
		if status != tc.want {
			t.Fatalf("%s: expected %d, got %d: %s", name, tc.want, status, env.Body)
		}
	}
}

func TestExecuteMapsErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{executor.ErrUnsupportedLanguage, http.StatusNotImplemented},
		{sandbox.ErrInternal, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		ts := newTestServer(t, &echoExecutor{err: tc.err}, Options{})
		status, _ := ts.do(t, http.MethodPost, "/code/execute", executeBody)
		if status != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, status)
		}
	}
}

func TestExecuteWaitTimeout(t *testing.T) {
	ts := newTestServer(t, &echoExecutor{delay: time.Second}, Options{WaitTimeout: 50 * time.Millisecond})
	status, _ := ts.do(t, http.MethodPost, "/code/execute", executeBody)
	if status != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", status)
	}
}

func TestRunTest(t *testing.T) {
	ts := newTestServer(t, &echoExecutor{}, Options{})
	status, env := ts.do(t, http.MethodPost, "/code/run-test", `{"code": "def solve(x): return x", "language": "py", "input": {"k": [1, 2]}}`)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, env.Body)
	}
	var report executor.RunReport
	if err := json.Unmarshal(env.Body, &report); err != nil {
		t.Fatal(err)
	}
	if !value.Equal(report.Output, value.MustParse(`{"k":[1,2]}`)) {
		t.Fatalf("unexpected output %s", report.Output)
	}
}

func TestAsyncSubmissionLifecycle(t *testing.T) {
	ts := newTestServer(t, &echoExecutor{}, Options{})
	status, env := ts.do(t, http.MethodPost, "/code/submissions", executeBody)
	if status != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", status, env.Body)
	}
	var accepted SubmissionAccepted
	if err := json.Unmarshal(env.Body, &accepted); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		status, env = ts.do(t, http.MethodGet, "/code/submissions/"+accepted.ID, "")
		if status != http.StatusOK {
			t.Fatalf("expected 200, got %d", status)
		}
		var rec jobs.Job
		if err := json.Unmarshal(env.Body, &rec); err != nil {
			t.Fatal(err)
		}
		if rec.State == jobs.StateCompleted {
			if rec.Report == nil || rec.Report.SubmissionID != accepted.ID {
				t.Fatalf("report missing or mismatched: %+v", rec.Report)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not complete, last state %s", rec.State)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGetUnknownSubmission(t *testing.T) {
	ts := newTestServer(t, &echoExecutor{}, Options{})
	status, _ := ts.do(t, http.MethodGet, "/code/submissions/nope", "")
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestLanguages(t *testing.T) {
	ts := newTestServer(t, &echoExecutor{}, Options{})
	status, env := ts.do(t, http.MethodGet, "/code/languages", "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	var langs []LanguageResponse
	if err := json.Unmarshal(env.Body, &langs); err != nil {
		t.Fatal(err)
	}
	if len(langs) != 5 || langs[0].ID != "cpp" || !langs[0].Compiled || langs[0].Limits.CPUTimeMs == 0 {
		t.Fatalf("unexpected languages %+v", langs)
	}
}
