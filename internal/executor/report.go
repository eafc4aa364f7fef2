package executor

import (
	"github.com/itstheanurag/coderunner/internal/evaluator"
	"github.com/itstheanurag/coderunner/internal/value"
)

// Report is the outcome of evaluating one submission. It is never modified
// once Execute returns it.
type Report struct {
	SubmissionID string        `json:"submission_id"`
	ProblemID    string        `json:"problem_id"`
	Language     string        `json:"language"`
	Status       OverallStatus `json:"overall_status"`
	Message      string        `json:"message,omitempty"`
	Total        int           `json:"total_tests"`
	Passed       int           `json:"passed_tests"`
	ElapsedMs    int64         `json:"elapsed_ms"`
	MaxMemoryKB  int64         `json:"max_memory_kb"`
	Results      []CaseReport  `json:"results"`
}

type CaseReport struct {
	Index           int              `json:"index"`
	Status          evaluator.Status `json:"status"`
	ActualOutput    value.Value      `json:"actual_output"`
	ExpectedOutput  value.Value      `json:"expected_output"`
	Stdout          string           `json:"stdout"`
	Stderr          string           `json:"stderr"`
	StdoutTruncated bool             `json:"stdout_truncated"`
	StderrTruncated bool             `json:"stderr_truncated"`
	Message         string           `json:"message,omitempty"`
	Description     string           `json:"description,omitempty"`
	ElapsedMs       int64            `json:"elapsed_ms"`
	MemoryKB        int64            `json:"memory_kb"`
}

type RunReport struct {
	SubmissionID string      `json:"submission_id"`
	Language     string      `json:"language"`
	Status       string      `json:"status"`
	Output       value.Value `json:"output"`
	Stdout       string      `json:"stdout"`
	Stderr       string      `json:"stderr"`
	Message      string      `json:"message,omitempty"`
	ElapsedMs    int64       `json:"elapsed_ms"`
	MemoryKB     int64       `json:"memory_kb"`
}

func newCaseReport(res evaluator.CaseResult) CaseReport {
	return CaseReport{
		Index:           res.Index,
		Status:          res.Status,
		ActualOutput:    res.Actual,
		ExpectedOutput:  res.Expected,
		Stdout:          res.Stdout,
		Stderr:          res.Stderr,
		StdoutTruncated: res.StdoutTruncated,
		StderrTruncated: res.StderrTruncated,
		Message:         res.Message,
		Description:     res.Description,
		ElapsedMs:       res.Elapsed.Milliseconds(),
		MemoryKB:        res.MemoryKB,
	}
}
