package sandbox

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/itstheanurag/coderunner/internal/metrics"
)

// Pool caps the number of sandboxed builds and runs in flight across all
// submissions. A slot is acquired before each Build or Run and released as
// soon as it returns, so no caller holds one longer than that call's limits.
type Pool struct {
	backend Sandbox
	slots   *semaphore.Weighted
	size    int64
}

func NewPool(backend Sandbox, size int) *Pool {
	if size < 1 {
		size = 1
	}
	metrics.SandboxSlots.Set(float64(size))
	return &Pool{
		backend: backend,
		slots:   semaphore.NewWeighted(int64(size)),
		size:    int64(size),
	}
}

func (p *Pool) Size() int {
	return int(p.size)
}

func (p *Pool) acquire(ctx context.Context) (func(), error) {
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire sandbox slot: %w", err)
	}
	metrics.SandboxSlotsInUse.Inc()
	return func() {
		metrics.SandboxSlotsInUse.Dec()
		p.slots.Release(1)
	}, nil
}

func (p *Pool) Build(ctx context.Context, prog Program, limits Limits) (*Build, error) {
	release, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return p.backend.Build(ctx, prog, limits)
}

func (p *Pool) Run(ctx context.Context, unit *Unit, stdin []byte, limits Limits) (*Outcome, error) {
	release, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return p.backend.Run(ctx, unit, stdin, limits)
}

// Destroy does not need a slot: it only releases resources.
func (p *Pool) Destroy(ctx context.Context, unit *Unit) error {
	return p.backend.Destroy(ctx, unit)
}

func (p *Pool) EnsureImage(ctx context.Context, image string) error {
	return p.backend.EnsureImage(ctx, image)
}
