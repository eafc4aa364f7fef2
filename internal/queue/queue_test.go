package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/itstheanurag/coderunner/internal/executor"
)

func TestSubmitRejectsWhenFull(t *testing.T) {
	m := NewManager(1)
	first := NewExecuteJob(context.Background(), "a", executor.ExecuteOptions{}, false)
	if err := m.Submit(first); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second := NewExecuteJob(context.Background(), "b", executor.ExecuteOptions{}, false)
	if err := m.Submit(second); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if got := <-m.NextJob(); got != first {
		t.Fatal("queue did not hand out the first job")
	}
	if m.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", m.Len())
	}
}

func TestJobsCarryTheirID(t *testing.T) {
	exec := NewExecuteJob(context.Background(), "sub-1", executor.ExecuteOptions{
		Submission: executor.Submission{Language: "python"},
	}, true)
	if exec.Execute.Submission.ID != "sub-1" || exec.Language() != "python" || !exec.Async {
		t.Fatalf("unexpected execute job %+v", exec)
	}
	run := NewRunJob(context.Background(), "run-1", executor.RunOptions{
		Submission: executor.Submission{Language: "go"},
	})
	if run.Run.Submission.ID != "run-1" || run.Language() != "go" {
		t.Fatalf("unexpected run job %+v", run)
	}
	if cap(run.RunResult) != 1 || cap(run.Err) != 1 {
		t.Fatal("result channels must be buffered so workers never block")
	}
}
