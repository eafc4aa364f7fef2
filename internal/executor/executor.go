package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/itstheanurag/coderunner/internal/evaluator"
	"github.com/itstheanurag/coderunner/internal/languages"
	"github.com/itstheanurag/coderunner/internal/metrics"
	"github.com/itstheanurag/coderunner/internal/sandbox"
	"github.com/itstheanurag/coderunner/internal/value"
)

var ErrUnsupportedLanguage = languages.ErrUnsupportedLanguage

type OverallStatus string

const (
	OverallPassed       OverallStatus = "Passed"
	OverallFailed       OverallStatus = "Failed"
	OverallCompileError OverallStatus = "CompileError"
	OverallPartial      OverallStatus = "Partial"
)

type Submission struct {
	ID         string
	Source     string
	Language   string
	ProblemID  string
	EntryPoint string
}

type ExecuteOptions struct {
	Submission     Submission
	TestCases      []evaluator.TestCase
	Limits         sandbox.Limits
	FloatTolerance float64
}

type RunOptions struct {
	Submission Submission
	Input      value.Value
	Limits     sandbox.Limits
}

type Options struct {
	// AggregateTimeout bounds the whole evaluation of one submission,
	// build included. Zero means no bound beyond the caller's context.
	AggregateTimeout time.Duration
	CaseWorkers      int
	DefaultLimits    sandbox.Limits
	MaxLimits        sandbox.Limits
}

type Executor struct {
	registry  *languages.Registry
	sandbox   sandbox.Sandbox
	evaluator *evaluator.Evaluator
	opts      Options
	logger    *zerolog.Logger
}

func NewExecutor(registry *languages.Registry, sb sandbox.Sandbox, opts Options, logger *zerolog.Logger) *Executor {
	return &Executor{
		registry:  registry,
		sandbox:   sb,
		evaluator: evaluator.New(sb, logger),
		opts:      opts,
		logger:    logger,
	}
}

func (e *Executor) Supports(language string) bool {
	_, err := e.registry.Get(language)
	return err == nil
}

func (e *Executor) Languages() []languages.Language {
	return e.registry.List()
}

// PrepareImages pulls every runtime image that is not present yet.
func (e *Executor) PrepareImages(ctx context.Context) {
	for _, img := range e.registry.Images() {
		if err := e.sandbox.EnsureImage(ctx, img); err != nil {
			e.logger.Warn().Err(err).Str("image", img).Msg("failed to prepare runtime image")
		}
	}
}

// LimitsFor resolves the limits a submission in language runs under:
// requested values, then language defaults, then service defaults, capped
// at the service maximum.
func (e *Executor) LimitsFor(lang languages.Language, requested sandbox.Limits) sandbox.Limits {
	return requested.
		WithDefaults(lang.Limits).
		WithDefaults(e.opts.DefaultLimits).
		Clamp(e.opts.MaxLimits)
}

func (e *Executor) Execute(ctx context.Context, opts ExecuteOptions) (*Report, error) {
	start := time.Now()
	sub := opts.Submission
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}

	adapter, err := e.registry.Get(sub.Language)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, sub.Language)
	}
	lang := adapter.Language()
	limits := e.LimitsFor(lang, opts.Limits)

	report := &Report{
		SubmissionID: sub.ID,
		ProblemID:    sub.ProblemID,
		Language:     lang.ID,
		Total:        len(opts.TestCases),
		Results:      []CaseReport{},
	}
	log := e.logger.With().Str("submission_id", sub.ID).Str("language", lang.ID).Logger()

	parent := ctx
	if e.opts.AggregateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.AggregateTimeout)
		defer cancel()
	}

	unit, diagnostic, err := e.compile(ctx, adapter, sub, limits)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
			// the budget ran out while building: nothing was run
			for i, tc := range opts.TestCases {
				report.Results = append(report.Results, CaseReport{
					Index:          i,
					Status:         evaluator.StatusTimeout,
					ExpectedOutput: tc.Expected,
					Description:    tc.Description,
					Message:        evaluator.MessageBudgetExceeded,
				})
			}
			report.Status = OverallPartial
			report.Message = fmt.Sprintf("%s: 0 of %d cases finished", evaluator.MessageBudgetExceeded, len(opts.TestCases))
			e.finish(report, start, &log)
			return report, nil
		}
		return nil, err
	}
	if unit == nil {
		report.Status = OverallCompileError
		report.Message = diagnostic
		e.finish(report, start, &log)
		return report, nil
	}
	defer e.destroy(unit, &log)

	results, interrupted := e.evaluator.Evaluate(ctx, evaluator.Target{Adapter: adapter, Unit: unit}, opts.TestCases, evaluator.Options{
		Workers:        e.opts.CaseWorkers,
		Limits:         limits,
		FloatTolerance: opts.FloatTolerance,
	})

	report.Results = make([]CaseReport, 0, len(results))
	for _, res := range results {
		report.Results = append(report.Results, newCaseReport(res))
		if res.Status == evaluator.StatusPassed {
			report.Passed++
		}
		if res.MemoryKB > report.MaxMemoryKB {
			report.MaxMemoryKB = res.MemoryKB
		}
	}

	switch {
	case interrupted:
		report.Status = OverallPartial
		report.Message = fmt.Sprintf("%s: %d of %d cases finished", evaluator.MessageBudgetExceeded, countFinished(results), len(results))
	case report.Passed == report.Total:
		report.Status = OverallPassed
	default:
		report.Status = OverallFailed
	}
	e.finish(report, start, &log)
	return report, nil
}

// RunOnce builds the submission and calls its entry point once with input,
// reporting whatever it returned.
func (e *Executor) RunOnce(ctx context.Context, opts RunOptions) (*RunReport, error) {
	start := time.Now()
	sub := opts.Submission
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}

	adapter, err := e.registry.Get(sub.Language)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, sub.Language)
	}
	lang := adapter.Language()
	limits := e.LimitsFor(lang, opts.Limits)
	log := e.logger.With().Str("submission_id", sub.ID).Str("language", lang.ID).Logger()

	if e.opts.AggregateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.AggregateTimeout)
		defer cancel()
	}

	report := &RunReport{SubmissionID: sub.ID, Language: lang.ID}
	unit, diagnostic, err := e.compile(ctx, adapter, sub, limits)
	if err != nil {
		return nil, err
	}
	if unit == nil {
		report.Status = string(OverallCompileError)
		report.Message = diagnostic
		report.ElapsedMs = time.Since(start).Milliseconds()
		return report, nil
	}
	defer e.destroy(unit, &log)

	res := e.evaluator.Invoke(ctx, evaluator.Target{Adapter: adapter, Unit: unit}, opts.Input, limits)
	report.Status = string(res.Status)
	report.Output = res.Actual
	report.Stdout = res.Stdout
	report.Stderr = res.Stderr
	report.Message = res.Message
	report.MemoryKB = res.MemoryKB
	report.ElapsedMs = time.Since(start).Milliseconds()
	log.Info().Str("status", report.Status).Int64("elapsed_ms", report.ElapsedMs).Msg("test run finished")
	return report, nil
}

// compile wraps and builds the submission. A nil unit with a nil error
// means the submission did not compile and diagnostic says why.
func (e *Executor) compile(ctx context.Context, adapter languages.Adapter, sub Submission, limits sandbox.Limits) (*sandbox.Unit, string, error) {
	prog, err := adapter.Wrap(languages.Source{Code: sub.Source, EntryPoint: sub.EntryPoint})
	var ce *languages.CompileError
	if errors.As(err, &ce) {
		return nil, ce.Message, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("wrap submission: %w", err)
	}

	started := time.Now()
	build, err := e.sandbox.Build(ctx, prog, limits)
	if err != nil && errors.Is(err, sandbox.ErrInternal) && ctx.Err() == nil {
		metrics.SandboxRetries.WithLabelValues("build").Inc()
		e.logger.Warn().Err(err).Str("submission_id", sub.ID).Msg("sandbox build failed, retrying once")
		build, err = e.sandbox.Build(ctx, prog, limits)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", fmt.Errorf("build submission: %w", ctx.Err())
		}
		return nil, "", fmt.Errorf("build submission: %w", err)
	}
	metrics.ExecutionDuration.WithLabelValues(prog.Language, "compile").Observe(float64(time.Since(started).Milliseconds()))

	if build.Failed() {
		return nil, compileDiagnostic(build.Log), nil
	}
	return build.Unit, "", nil
}

func (e *Executor) destroy(unit *sandbox.Unit, log *zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.sandbox.Destroy(ctx, unit); err != nil {
		log.Warn().Err(err).Msg("failed to destroy sandbox unit")
	}
}

func (e *Executor) finish(report *Report, start time.Time, log *zerolog.Logger) {
	report.ElapsedMs = time.Since(start).Milliseconds()
	metrics.ExecutionsTotal.WithLabelValues(report.Language, string(report.Status)).Inc()
	metrics.ExecutionDuration.WithLabelValues(report.Language, "total").Observe(float64(report.ElapsedMs))
	log.Info().
		Str("status", string(report.Status)).
		Int("passed", report.Passed).
		Int("total", report.Total).
		Int64("elapsed_ms", report.ElapsedMs).
		Msg("submission evaluated")
}

func compileDiagnostic(log *sandbox.Outcome) string {
	if log == nil {
		return "compilation failed"
	}
	if log.Status == sandbox.StatusTimeLimit {
		return "compilation timed out"
	}
	parts := make([]string, 0, 2)
	for _, s := range []string{log.Stderr, log.Stdout} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("compilation failed with exit code %d", log.ExitCode)
	}
	msg := strings.Join(parts, "\n")
	if log.StdoutTruncated || log.StderrTruncated {
		msg += "\n... (truncated)"
	}
	return msg
}

func countFinished(results []evaluator.CaseResult) int {
	n := 0
	for _, r := range results {
		if r.Message != evaluator.MessageBudgetExceeded {
			n++
		}
	}
	return n
}
