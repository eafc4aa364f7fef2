package sandbox

import (
	"context"
	"errors"
	"time"
)

// ErrInternal marks failures of the isolation infrastructure itself (spawning
// a container or process, talking to the daemon) as opposed to failures of
// the code being run.
var ErrInternal = errors.New("sandbox infrastructure failure")

type Status string

const (
	StatusOK          Status = "ok"
	StatusNonZeroExit Status = "non_zero_exit"
	StatusTimeLimit   Status = "time_limit"
	StatusMemoryLimit Status = "memory_limit"
)

type Limits struct {
	CPUTime     time.Duration
	WallTime    time.Duration
	MemoryMB    int64
	OutputBytes int
}

// WithDefaults fills every zero field of l from d.
func (l Limits) WithDefaults(d Limits) Limits {
	if l.CPUTime <= 0 {
		l.CPUTime = d.CPUTime
	}
	if l.WallTime <= 0 {
		l.WallTime = d.WallTime
	}
	if l.MemoryMB <= 0 {
		l.MemoryMB = d.MemoryMB
	}
	if l.OutputBytes <= 0 {
		l.OutputBytes = d.OutputBytes
	}
	return l
}

// Clamp caps every field of l at the corresponding non-zero field of max.
func (l Limits) Clamp(max Limits) Limits {
	if max.CPUTime > 0 && l.CPUTime > max.CPUTime {
		l.CPUTime = max.CPUTime
	}
	if max.WallTime > 0 && l.WallTime > max.WallTime {
		l.WallTime = max.WallTime
	}
	if max.MemoryMB > 0 && l.MemoryMB > max.MemoryMB {
		l.MemoryMB = max.MemoryMB
	}
	if max.OutputBytes > 0 && l.OutputBytes > max.OutputBytes {
		l.OutputBytes = max.OutputBytes
	}
	return l
}

type File struct {
	Name    string
	Content string
}

// Program is everything a backend needs to build and run one submission.
// Commands are relative to the program's working directory.
type Program struct {
	Language       string
	Image          string
	Files          []File
	Env            []string
	CompileCmd     []string
	CompileTimeout time.Duration
	RunCmd         []string
}

// Unit is a built program ready to be invoked. It stays valid until Destroy.
type Unit struct {
	ID       string
	Language string
	Image    string
	Env      []string
	RunCmd   []string

	// backend specific: container id or workspace directory
	handle string
}

type Outcome struct {
	Status          Status
	ExitCode        int
	Stdout          string
	Stderr          string
	StdoutTruncated bool
	StderrTruncated bool
	Elapsed         time.Duration
	MemoryKB        int64
}

// Build is the result of compiling a program. Unit is nil when compilation
// failed, in which case Log holds the compiler output.
type Build struct {
	Unit *Unit
	Log  *Outcome
}

func (b *Build) Failed() bool {
	return b.Unit == nil
}

type Sandbox interface {
	Build(ctx context.Context, prog Program, limits Limits) (*Build, error)
	Run(ctx context.Context, unit *Unit, stdin []byte, limits Limits) (*Outcome, error)
	Destroy(ctx context.Context, unit *Unit) error
	EnsureImage(ctx context.Context, image string) error
}
