package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type ProcessConfig struct {
	// BaseDir holds one workspace directory per built unit.
	BaseDir string
	// Path is the PATH handed to sandboxed processes.
	Path string
	// Cgroup confines each run to a memory cgroup when the host allows it.
	// Without one, memory is capped with RLIMIT_DATA.
	Cgroup bool
}

// memoryGroup confines one process tree to a memory limit.
type memoryGroup interface {
	Add(pid int) error
	PeakKB() int64
	Close()
}

type memoryController interface {
	NewGroup(limitMB int64) (memoryGroup, error)
}

// ProcessSandbox runs programs as plain OS processes in a private workspace
// directory, each in its own process group and under rlimits. It is meant
// for hosts where a container runtime is unavailable and gives weaker
// isolation than DockerSandbox.
type ProcessSandbox struct {
	cfg    ProcessConfig
	memory memoryController
	logger *zerolog.Logger
}

func NewProcessSandbox(cfg ProcessConfig, logger *zerolog.Logger) (*ProcessSandbox, error) {
	if cfg.BaseDir == "" {
		cfg.BaseDir = filepath.Join(os.TempDir(), "coderunner")
	}
	if cfg.Path == "" {
		cfg.Path = "/usr/local/go/bin:/usr/local/bin:/usr/bin:/bin"
	}
	if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sandbox base dir: %w", err)
	}
	s := &ProcessSandbox{cfg: cfg, logger: logger}
	if cfg.Cgroup {
		mc, err := newMemoryController()
		if err != nil {
			logger.Warn().Err(err).Msg("memory cgroup unavailable, falling back to rlimits")
		} else {
			s.memory = mc
		}
	}
	return s, nil
}

func (s *ProcessSandbox) Build(ctx context.Context, prog Program, limits Limits) (*Build, error) {
	dir, err := os.MkdirTemp(s.cfg.BaseDir, "unit-")
	if err != nil {
		return nil, pkgerrors.Wrapf(ErrInternal, "create workspace: %v", err)
	}

	for _, f := range prog.Files {
		if err := os.WriteFile(filepath.Join(dir, f.Name), []byte(f.Content), 0o644); err != nil {
			s.cleanup(dir)
			return nil, pkgerrors.Wrapf(ErrInternal, "write %s: %v", f.Name, err)
		}
	}

	unit := &Unit{
		ID:       uuid.NewString(),
		Language: prog.Language,
		Image:    prog.Image,
		Env:      s.env(dir, prog.Env),
		RunCmd:   prog.RunCmd,
		handle:   dir,
	}

	if len(prog.CompileCmd) == 0 {
		return &Build{Unit: unit}, nil
	}

	timeout := prog.CompileTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	log, err := s.run(ctx, dir, unit.Env, prog.CompileCmd, nil, Limits{
		WallTime:    timeout,
		OutputBytes: limits.OutputBytes,
	})
	if err != nil {
		s.cleanup(dir)
		return nil, err
	}
	if log.Status != StatusOK {
		s.cleanup(dir)
		return &Build{Log: log}, nil
	}
	return &Build{Unit: unit, Log: log}, nil
}

func (s *ProcessSandbox) Run(ctx context.Context, unit *Unit, stdin []byte, limits Limits) (*Outcome, error) {
	return s.run(ctx, unit.handle, unit.Env, unit.RunCmd, stdin, limits)
}

func (s *ProcessSandbox) Destroy(_ context.Context, unit *Unit) error {
	if unit == nil || unit.handle == "" {
		return nil
	}
	if err := os.RemoveAll(unit.handle); err != nil {
		return fmt.Errorf("failed to remove workspace %s: %w", unit.handle, err)
	}
	return nil
}

// EnsureImage is a no-op: the process backend uses the host toolchains.
func (s *ProcessSandbox) EnsureImage(context.Context, string) error {
	return nil
}

func (s *ProcessSandbox) env(dir string, extra []string) []string {
	env := []string{
		"PATH=" + s.cfg.Path,
		"HOME=" + dir,
		"TMPDIR=" + dir,
		"LANG=C.UTF-8",
	}
	return append(env, extra...)
}

// newGroup returns a fresh cgroup capped at the memory limit, or nil
// when runs are limited by rlimits only.
func (s *ProcessSandbox) newGroup(limits Limits) memoryGroup {
	if s.memory == nil || limits.MemoryMB <= 0 {
		return nil
	}
	g, err := s.memory.NewGroup(limits.MemoryMB)
	if err != nil {
		s.logger.Debug().Err(err).Msg("failed to create memory cgroup, using rlimits")
		return nil
	}
	return g
}

func (s *ProcessSandbox) cleanup(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		s.logger.Warn().Err(err).Str("dir", dir).Msg("failed to clean up workspace")
	}
}

func (s *ProcessSandbox) run(ctx context.Context, dir string, env, args []string, stdin []byte, limits Limits) (*Outcome, error) {
	if len(args) == 0 {
		return nil, pkgerrors.Wrap(ErrInternal, "empty command")
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdin = bytes.NewReader(stdin)
	stdout := newBoundedBuffer(limits.OutputBytes)
	stderr := newBoundedBuffer(limits.OutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second
	prepareCommand(cmd)

	group := s.newGroup(limits)
	defer func() {
		if group != nil {
			group.Close()
		}
	}()

	startTime := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, pkgerrors.Wrapf(ErrInternal, "start %s: %v", args[0], err)
	}
	if group != nil {
		if err := group.Add(cmd.Process.Pid); err != nil {
			s.logger.Debug().Err(err).Msg("failed to join memory cgroup, using rlimits")
			group.Close()
			group = nil
		}
	}
	if err := applyLimits(cmd.Process.Pid, limits, group == nil); err != nil {
		killProcessGroup(cmd)
		_ = cmd.Wait()
		return nil, pkgerrors.Wrapf(ErrInternal, "apply limits: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var timer <-chan time.Time
	if limits.WallTime > 0 {
		t := time.NewTimer(limits.WallTime)
		defer t.Stop()
		timer = t.C
	}

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-done:
	case <-timer:
		timedOut = true
		killProcessGroup(cmd)
		waitErr = <-done
	case <-ctx.Done():
		killProcessGroup(cmd)
		<-done
		return nil, ctx.Err()
	}
	elapsed := time.Since(startTime)

	outcome := &Outcome{
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		StdoutTruncated: stdout.Truncated(),
		StderrTruncated: stderr.Truncated(),
		Elapsed:         elapsed,
		ExitCode:        cmd.ProcessState.ExitCode(),
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) {
		return nil, pkgerrors.Wrapf(ErrInternal, "wait %s: %v", args[0], waitErr)
	}

	pe := describeExit(cmd.ProcessState)
	pe.stderr = outcome.Stderr
	if group != nil {
		pe.confined = true
		if kb := group.PeakKB(); kb > 0 {
			pe.memoryKB = kb
		}
	}
	status := classifyProcess(pe, limits)
	if timedOut {
		status = StatusTimeLimit
	}
	outcome.Status = status
	outcome.MemoryKB = pe.memoryKB

	s.logger.Debug().
		Str("cmd", args[0]).
		Str("status", string(status)).
		Int("exit_code", outcome.ExitCode).
		Dur("elapsed", elapsed).
		Int64("memory_kb", pe.memoryKB).
		Msg("process finished")

	return outcome, nil
}
