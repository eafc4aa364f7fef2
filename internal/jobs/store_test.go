package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/itstheanurag/coderunner/internal/evaluator"
	"github.com/itstheanurag/coderunner/internal/executor"
	"github.com/itstheanurag/coderunner/internal/value"
)

func sampleReport() *executor.Report {
	return &executor.Report{
		SubmissionID: "sub-1",
		ProblemID:    "merge-intervals",
		Language:     "python",
		Status:       executor.OverallPassed,
		Total:        1,
		Passed:       1,
		Results: []executor.CaseReport{{
			Index:          0,
			Status:         evaluator.StatusPassed,
			ActualOutput:   value.MustParse(`[[1,6],[8,10]]`),
			ExpectedOutput: value.MustParse(`[[1,6],[8,10]]`),
		}},
	}
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}

	job := Job{ID: "sub-1", State: StateQueued, Language: "python", CreatedAt: time.Now().UTC()}
	if err := store.Save(ctx, job); err != nil {
		t.Fatalf("save queued: %v", err)
	}
	got, err := store.Get(ctx, "sub-1")
	if err != nil || got.State != StateQueued {
		t.Fatalf("expected queued job, got %+v, %v", got, err)
	}

	job.State = StateCompleted
	job.Report = sampleReport()
	if err := store.Save(ctx, job); err != nil {
		t.Fatalf("save completed: %v", err)
	}
	got, err = store.Get(ctx, "sub-1")
	if err != nil {
		t.Fatalf("get completed: %v", err)
	}
	if got.State != StateCompleted || got.Report == nil || got.Report.Status != executor.OverallPassed {
		t.Fatalf("report not stored: %+v", got)
	}
	actual := got.Report.Results[0].ActualOutput
	if !value.Equal(actual, value.MustParse(`[[1,6],[8,10]]`)) {
		t.Fatalf("actual output not preserved: %s", actual)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(time.Minute))
}

func TestMemoryStoreExpiresFinishedJobs(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	ctx := context.Background()
	_ = store.Save(ctx, Job{ID: "queued", State: StateQueued})
	_ = store.Save(ctx, Job{ID: "done", State: StateCompleted})

	now = now.Add(2 * time.Minute)
	if _, err := store.Get(ctx, "done"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("finished job should expire, got %v", err)
	}
	if _, err := store.Get(ctx, "queued"); err != nil {
		t.Fatalf("unfinished job must not expire: %v", err)
	}
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client, time.Hour)
	exerciseStore(t, store)

	if ttl := mr.TTL("coderunner:job:sub-1"); ttl != time.Hour {
		t.Fatalf("expected finished job ttl of 1h, got %s", ttl)
	}
	mr.FastForward(2 * time.Hour)
	if _, err := store.Get(context.Background(), "sub-1"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected expired job, got %v", err)
	}
}
