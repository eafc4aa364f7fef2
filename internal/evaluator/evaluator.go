package evaluator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/itstheanurag/coderunner/internal/languages"
	"github.com/itstheanurag/coderunner/internal/metrics"
	"github.com/itstheanurag/coderunner/internal/sandbox"
	"github.com/itstheanurag/coderunner/internal/value"
)

type Status string

const (
	StatusPassed           Status = "Passed"
	StatusFailed           Status = "Failed"
	StatusRuntimeError     Status = "RuntimeError"
	StatusTimeout          Status = "Timeout"
	StatusResourceExceeded Status = "ResourceExceeded"
	StatusInternalError    Status = "InternalError"
	// StatusCompleted is used by single invocations that have nothing to
	// compare against.
	StatusCompleted Status = "Completed"
)

const MessageBudgetExceeded = "aggregate time budget exceeded"

type TestCase struct {
	Input       value.Value `json:"input"`
	Expected    value.Value `json:"expected_output"`
	Description string      `json:"description,omitempty"`
}

type CaseResult struct {
	Index           int
	Status          Status
	Actual          value.Value
	Expected        value.Value
	Description     string
	Stdout          string
	Stderr          string
	StdoutTruncated bool
	StderrTruncated bool
	Message         string
	Elapsed         time.Duration
	MemoryKB        int64
}

type Options struct {
	// Workers bounds how many cases of one submission run at once. Values
	// below 2 run cases sequentially in input order.
	Workers        int
	Limits         sandbox.Limits
	FloatTolerance float64
}

// Target is a built submission together with the adapter that built it.
type Target struct {
	Adapter languages.Adapter
	Unit    *sandbox.Unit
}

type Runner interface {
	Run(ctx context.Context, unit *sandbox.Unit, stdin []byte, limits sandbox.Limits) (*sandbox.Outcome, error)
}

type Evaluator struct {
	runner Runner
	logger *zerolog.Logger
}

func New(runner Runner, logger *zerolog.Logger) *Evaluator {
	return &Evaluator{runner: runner, logger: logger}
}

// Evaluate runs every case against target and returns one result per case,
// in input order. When ctx ends before all cases finish, the unfinished ones
// are reported as Timeout and interrupted is true.
func (e *Evaluator) Evaluate(ctx context.Context, target Target, cases []TestCase, opts Options) (results []CaseResult, interrupted bool) {
	results = make([]CaseResult, len(cases))
	done := make([]bool, len(cases))
	for i, tc := range cases {
		results[i] = CaseResult{
			Index:       i,
			Status:      StatusTimeout,
			Expected:    tc.Expected,
			Description: tc.Description,
			Message:     MessageBudgetExceeded,
		}
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for i := range cases {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			res, completed := e.invoke(ctx, target, cases[i].Input, opts.Limits)
			if !completed {
				return nil
			}
			res.Index = i
			res.Expected = cases[i].Expected
			res.Description = cases[i].Description
			compare(&res, opts.FloatTolerance)
			results[i] = res
			done[i] = true
			metrics.CaseResultsTotal.WithLabelValues(target.Adapter.Language().ID, string(res.Status)).Inc()
			return nil
		})
	}
	_ = g.Wait()

	for _, ok := range done {
		if !ok {
			interrupted = true
			break
		}
	}
	return results, interrupted
}

// Invoke runs target once with input and reports what it returned without
// judging it.
func (e *Evaluator) Invoke(ctx context.Context, target Target, input value.Value, limits sandbox.Limits) CaseResult {
	res, completed := e.invoke(ctx, target, input, limits)
	if !completed {
		res.Status = StatusTimeout
		res.Message = MessageBudgetExceeded
	}
	return res
}

func compare(res *CaseResult, tolerance float64) {
	if res.Status != StatusCompleted {
		return
	}
	if diff := value.Diff(res.Expected, res.Actual, tolerance); diff != "" {
		res.Status = StatusFailed
		res.Message = diff
		return
	}
	res.Status = StatusPassed
}

// invoke performs one run, retrying once on an infrastructure failure.
// completed is false when ctx ended before the run could finish.
func (e *Evaluator) invoke(ctx context.Context, target Target, input value.Value, limits sandbox.Limits) (CaseResult, bool) {
	lang := target.Adapter.Language().ID
	stdin, err := target.Adapter.EncodeInput(input)
	if err != nil {
		return CaseResult{Status: StatusInternalError, Message: err.Error()}, true
	}

	var out *sandbox.Outcome
	for attempt := 1; ; attempt++ {
		out, err = e.runner.Run(ctx, target.Unit, stdin, limits)
		if err == nil || attempt > 1 || !errors.Is(err, sandbox.ErrInternal) || ctx.Err() != nil {
			break
		}
		metrics.SandboxRetries.WithLabelValues("run").Inc()
		e.logger.Warn().Err(err).Str("language", lang).Msg("sandbox run failed, retrying once")
	}
	if err != nil {
		if ctx.Err() != nil {
			return CaseResult{}, false
		}
		return CaseResult{Status: StatusInternalError, Message: err.Error()}, true
	}

	metrics.ExecutionDuration.WithLabelValues(lang, "case").Observe(float64(out.Elapsed.Milliseconds()))
	if out.MemoryKB > 0 {
		metrics.MemoryUsage.WithLabelValues(lang).Observe(float64(out.MemoryKB))
	}

	res := CaseResult{
		Stdout:          out.Stdout,
		Stderr:          out.Stderr,
		StdoutTruncated: out.StdoutTruncated,
		StderrTruncated: out.StderrTruncated,
		Elapsed:         out.Elapsed,
		MemoryKB:        out.MemoryKB,
	}

	switch out.Status {
	case sandbox.StatusTimeLimit:
		res.Status = StatusTimeout
		res.Message = fmt.Sprintf("time limit exceeded (cpu %s, wall %s)", limits.CPUTime, limits.WallTime)
	case sandbox.StatusMemoryLimit:
		res.Status = StatusResourceExceeded
		res.Message = fmt.Sprintf("memory limit exceeded (%d MB)", limits.MemoryMB)
	case sandbox.StatusNonZeroExit:
		res.Status = StatusRuntimeError
		res.Message = fmt.Sprintf("process exited with code %d", out.ExitCode)
	default:
		actual, printed, derr := target.Adapter.DecodeOutput(out.Stdout)
		res.Stdout = printed
		switch {
		case derr == nil:
			res.Status = StatusCompleted
			res.Actual = actual
		case errors.Is(derr, languages.ErrNoResult) && out.StdoutTruncated:
			res.Status = StatusResourceExceeded
			res.Message = fmt.Sprintf("output limit exceeded (%d bytes)", limits.OutputBytes)
		default:
			res.Status = StatusRuntimeError
			res.Message = derr.Error()
		}
	}
	return res, true
}
