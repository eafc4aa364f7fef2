package queue

import (
	"context"
	"errors"

	"github.com/itstheanurag/coderunner/internal/executor"
	"github.com/itstheanurag/coderunner/internal/metrics"
)

var ErrQueueFull = errors.New("execution queue is full")

// Job is either a full evaluation (Execute set) or a single test run (Run
// set). Synchronous callers wait on Result, RunResult or Err; asynchronous
// jobs are tracked through the job store instead.
type Job struct {
	ID        string
	Ctx       context.Context
	Async     bool
	Execute   *executor.ExecuteOptions
	Run       *executor.RunOptions
	Result    chan *executor.Report
	RunResult chan *executor.RunReport
	Err       chan error
}

func NewExecuteJob(ctx context.Context, id string, opts executor.ExecuteOptions, async bool) *Job {
	opts.Submission.ID = id
	return &Job{
		ID:      id,
		Ctx:     ctx,
		Async:   async,
		Execute: &opts,
		Result:  make(chan *executor.Report, 1),
		Err:     make(chan error, 1),
	}
}

func NewRunJob(ctx context.Context, id string, opts executor.RunOptions) *Job {
	opts.Submission.ID = id
	return &Job{
		ID:        id,
		Ctx:       ctx,
		Run:       &opts,
		RunResult: make(chan *executor.RunReport, 1),
		Err:       make(chan error, 1),
	}
}

func (j *Job) Language() string {
	if j.Execute != nil {
		return j.Execute.Submission.Language
	}
	if j.Run != nil {
		return j.Run.Submission.Language
	}
	return ""
}

type Manager struct {
	jobQueue chan *Job
}

func NewManager(capacity int) *Manager {
	return &Manager{
		jobQueue: make(chan *Job, capacity),
	}
}

// Submit enqueues job without blocking and fails with ErrQueueFull when the
// queue is at capacity.
func (m *Manager) Submit(job *Job) error {
	select {
	case m.jobQueue <- job:
		metrics.QueueDepth.Set(float64(len(m.jobQueue)))
		return nil
	default:
		return ErrQueueFull
	}
}

func (m *Manager) NextJob() <-chan *Job {
	return m.jobQueue
}

func (m *Manager) Len() int {
	return len(m.jobQueue)
}

func (m *Manager) UpdateQueueMetric() {
	metrics.QueueDepth.Set(float64(len(m.jobQueue)))
}
