package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/itstheanurag/coderunner/internal/executor"
)

var ErrJobNotFound = errors.New("job not found")

type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Job tracks an asynchronous submission until its report is collected.
type Job struct {
	ID          string           `json:"id"`
	State       State            `json:"status"`
	Language    string           `json:"language"`
	ProblemID   string           `json:"problem_id"`
	Report      *executor.Report `json:"report,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

type Store interface {
	Save(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (Job, error)
}

func (j Job) Finished() bool {
	return j.State == StateCompleted || j.State == StateFailed
}

// MemoryStore keeps jobs in process memory and forgets finished ones after
// ttl.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]memoryEntry
	ttl  time.Duration
	now  func() time.Time
}

type memoryEntry struct {
	job     Job
	expires time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]memoryEntry),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (s *MemoryStore) Save(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	entry := memoryEntry{job: job}
	if s.ttl > 0 && job.Finished() {
		entry.expires = s.now().Add(s.ttl)
	}
	s.jobs[job.ID] = entry
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.jobs[id]
	if !ok || s.expired(entry) {
		return Job{}, ErrJobNotFound
	}
	return entry.job, nil
}

func (s *MemoryStore) expired(e memoryEntry) bool {
	return !e.expires.IsZero() && s.now().After(e.expires)
}

func (s *MemoryStore) evictLocked() {
	for id, entry := range s.jobs {
		if s.expired(entry) {
			delete(s.jobs, id)
		}
	}
}
