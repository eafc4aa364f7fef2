package api

import (
	"time"

	"github.com/itstheanurag/coderunner/internal/evaluator"
	"github.com/itstheanurag/coderunner/internal/sandbox"
	"github.com/itstheanurag/coderunner/internal/value"
)

// Envelope wraps every response body.
type Envelope struct {
	StatusCode int `json:"status_code"`
	Body       any `json:"body"`
}

type ErrorBody struct {
	Error string `json:"error"`
}

type TestCaseRequest struct {
	Input          value.Value `json:"input"`
	ExpectedOutput value.Value `json:"expected_output"`
	Description    string      `json:"description" validate:"max=512"`
}

type LimitsRequest struct {
	CPUTimeMs  int64 `json:"cpu_time_ms" validate:"gte=0"`
	MemoryMB   int64 `json:"memory_mb" validate:"gte=0"`
	WallTimeMs int64 `json:"wall_time_ms" validate:"gte=0"`
}

func (l *LimitsRequest) toLimits() sandbox.Limits {
	if l == nil {
		return sandbox.Limits{}
	}
	return sandbox.Limits{
		CPUTime:  time.Duration(l.CPUTimeMs) * time.Millisecond,
		WallTime: time.Duration(l.WallTimeMs) * time.Millisecond,
		MemoryMB: l.MemoryMB,
	}
}

type ExecuteRequest struct {
	Code           string            `json:"code" validate:"max=65536"`
	Language       string            `json:"language" validate:"required,max=32"`
	ProblemID      string            `json:"problem_id" validate:"required,max=128"`
	EntryPoint     string            `json:"entry_point" validate:"omitempty,max=64"`
	TestCases      []TestCaseRequest `json:"test_cases" validate:"max=500,dive"`
	Limits         *LimitsRequest    `json:"limits"`
	FloatTolerance float64           `json:"float_tolerance" validate:"gte=0"`
}

func (r ExecuteRequest) testCases() []evaluator.TestCase {
	cases := make([]evaluator.TestCase, 0, len(r.TestCases))
	for _, tc := range r.TestCases {
		cases = append(cases, evaluator.TestCase{
			Input:       tc.Input,
			Expected:    tc.ExpectedOutput,
			Description: tc.Description,
		})
	}
	return cases
}

type RunTestRequest struct {
	Code       string         `json:"code" validate:"max=65536"`
	Language   string         `json:"language" validate:"required,max=32"`
	EntryPoint string         `json:"entry_point" validate:"omitempty,max=64"`
	Input      value.Value    `json:"input"`
	Limits     *LimitsRequest `json:"limits"`
}

type SubmissionAccepted struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type LimitsResponse struct {
	CPUTimeMs  int64 `json:"cpu_time_ms"`
	WallTimeMs int64 `json:"wall_time_ms"`
	MemoryMB   int64 `json:"memory_mb"`
}

type LanguageResponse struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Aliases    []string       `json:"aliases,omitempty"`
	EntryPoint string         `json:"entry_point"`
	Image      string         `json:"image"`
	Compiled   bool           `json:"compiled"`
	Limits     LimitsResponse `json:"limits"`
}
