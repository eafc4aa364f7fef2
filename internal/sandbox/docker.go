package sandbox

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/itstheanurag/coderunner/internal/metrics"
)

const (
	dockerWorkDir   = "/home/sandbox"
	dockerPidsLimit = int64(64)
	// oom_kill counters for cgroup v2 and v1, as seen from inside the container
	oomEventsCmd = "cat /sys/fs/cgroup/memory.events /sys/fs/cgroup/memory/memory.oom_control 2>/dev/null"
)

type DockerConfig struct {
	User        string
	NanoCPUs    int64
	WorkDirSize string
}

// DockerSandbox runs each submission in its own hardened container. The
// program is built once; every invocation is a fresh exec process inside
// that container, so no process state survives between test cases.
type DockerSandbox struct {
	cli    *client.Client
	cfg    DockerConfig
	logger *zerolog.Logger

	mu sync.Mutex
	// last oom_kill count observed per container; each one starts at zero
	oomSeen map[string]int64
}

func NewDockerSandbox(cfg DockerConfig, logger *zerolog.Logger) (*DockerSandbox, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	if cfg.User == "" {
		cfg.User = "nobody"
	}
	if cfg.NanoCPUs <= 0 {
		cfg.NanoCPUs = 1_000_000_000
	}
	if cfg.WorkDirSize == "" {
		cfg.WorkDirSize = "256m"
	}
	return &DockerSandbox{cli: cli, cfg: cfg, logger: logger, oomSeen: make(map[string]int64)}, nil
}

func (s *DockerSandbox) Build(ctx context.Context, prog Program, limits Limits) (*Build, error) {
	pidsLimit := dockerPidsLimit
	memory := limits.MemoryMB * 1024 * 1024

	created := time.Now()
	resp, err := s.cli.ContainerCreate(ctx, &container.Config{
		Image:           prog.Image,
		Cmd:             []string{"sleep", "infinity"}, // kept alive between execs
		Env:             append([]string{"HOME=" + dockerWorkDir, "TMPDIR=" + dockerWorkDir}, prog.Env...),
		Tty:             false,
		OpenStdin:       true,
		NetworkDisabled: true,
		WorkingDir:      dockerWorkDir,
		User:            s.cfg.User,
	}, &container.HostConfig{
		Resources: container.Resources{
			Memory:     memory,
			MemorySwap: memory, // no swap
			NanoCPUs:   s.cfg.NanoCPUs,
			PidsLimit:  &pidsLimit,
			Ulimits: []*units.Ulimit{
				{Name: "nofile", Soft: 256, Hard: 256},
				{Name: "fsize", Soft: 64 << 20, Hard: 64 << 20},
			},
		},
		NetworkMode: "none",
		// ReadonlyRootfs stays off: the workdir lives on tmpfs and files are streamed in via exec
		SecurityOpt: []string{"no-new-privileges"},
		CapDrop:     []string{"ALL"},
		Tmpfs: map[string]string{
			dockerWorkDir: "rw,exec,nosuid,size=" + s.cfg.WorkDirSize + ",mode=1777",
			"/tmp":        "rw,noexec,nosuid,size=16m,mode=1777",
		},
	}, nil, nil, "")
	if err != nil {
		return nil, errors.Wrapf(ErrInternal, "create container: %v", err)
	}

	unit := &Unit{
		ID:       uuid.NewString(),
		Language: prog.Language,
		Image:    prog.Image,
		Env:      prog.Env,
		RunCmd:   prog.RunCmd,
		handle:   resp.ID,
	}

	if err := s.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		s.remove(resp.ID)
		return nil, errors.Wrapf(ErrInternal, "start container: %v", err)
	}
	metrics.ContainerCreationTime.Observe(float64(time.Since(created).Milliseconds()))

	for _, f := range prog.Files {
		if err := s.writeFile(ctx, resp.ID, f); err != nil {
			s.remove(resp.ID)
			return nil, err
		}
	}
	s.logger.Debug().Str("container", resp.ID).Int("files", len(prog.Files)).Msg("source files written via exec")

	if len(prog.CompileCmd) == 0 {
		return &Build{Unit: unit}, nil
	}

	timeout := prog.CompileTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	log, err := s.exec(ctx, resp.ID, prog.CompileCmd, nil, Limits{WallTime: timeout, OutputBytes: limits.OutputBytes}, "")
	if err != nil {
		s.remove(resp.ID)
		return nil, err
	}
	if log.Status == "" {
		log.Status = classifyExit(containerExit{code: log.ExitCode, elapsed: log.Elapsed, stderr: log.Stderr}, Limits{WallTime: timeout})
	}
	if log.Status != StatusOK {
		s.remove(resp.ID)
		return &Build{Log: log}, nil
	}
	return &Build{Unit: unit, Log: log}, nil
}

func (s *DockerSandbox) Run(ctx context.Context, unit *Unit, stdin []byte, limits Limits) (*Outcome, error) {
	pidFile := dockerWorkDir + "/.run-" + uuid.NewString() + ".pid"
	out, err := s.exec(ctx, unit.handle, limitedCommand(unit.RunCmd, limits, pidFile), stdin, limits, pidFile)
	if err != nil {
		return nil, err
	}
	if out.Status != "" {
		return out, nil
	}
	ce := containerExit{code: out.ExitCode, elapsed: out.Elapsed, stderr: out.Stderr}
	if out.ExitCode == exitKilled {
		ce.oomKilled = s.newOOMKill(ctx, unit.handle)
	}
	out.Status = classifyExit(ce, limits)
	return out, nil
}

func (s *DockerSandbox) Destroy(ctx context.Context, unit *Unit) error {
	if unit == nil || unit.handle == "" {
		return nil
	}
	s.mu.Lock()
	delete(s.oomSeen, unit.handle)
	s.mu.Unlock()
	if err := s.cli.ContainerRemove(ctx, unit.handle, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", unit.handle, err)
	}
	return nil
}

func (s *DockerSandbox) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		s.logger.Warn().Err(err).Str("container", id).Msg("failed to remove container")
	}
}

// writeFile streams a file into the container through `cat`, since
// CopyToContainer does not work with tmpfs mounts.
func (s *DockerSandbox) writeFile(ctx context.Context, id string, f File) error {
	execResp, err := s.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:         []string{"sh", "-c", "cat > " + dockerWorkDir + "/" + f.Name},
		AttachStdin: true,
	})
	if err != nil {
		return errors.Wrapf(ErrInternal, "create write exec: %v", err)
	}

	attachResp, err := s.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return errors.Wrapf(ErrInternal, "attach write exec: %v", err)
	}
	if _, err := io.WriteString(attachResp.Conn, f.Content); err != nil {
		attachResp.Close()
		return errors.Wrapf(ErrInternal, "write %s: %v", f.Name, err)
	}
	_ = attachResp.CloseWrite()
	attachResp.Close()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		inspect, err := s.cli.ContainerExecInspect(ctx, execResp.ID)
		if err != nil {
			return errors.Wrapf(ErrInternal, "inspect write exec: %v", err)
		}
		if !inspect.Running {
			if inspect.ExitCode != 0 {
				return errors.Wrapf(ErrInternal, "write %s exited with %d", f.Name, inspect.ExitCode)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// exec runs cmd in container id. Status is only set when the host timer
// fired; callers classify the exit code themselves. When pidFile is set the
// command records its pid there so it can be killed from a second exec.
func (s *DockerSandbox) exec(ctx context.Context, id string, cmd []string, stdin []byte, limits Limits, pidFile string) (*Outcome, error) {
	execResp, err := s.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          cmd,
		WorkingDir:   dockerWorkDir,
		AttachStdout: true,
		AttachStderr: true,
		AttachStdin:  true,
	})
	if err != nil {
		return nil, errors.Wrapf(ErrInternal, "create exec: %v", err)
	}

	startTime := time.Now()
	attachResp, err := s.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, errors.Wrapf(ErrInternal, "start exec: %v", err)
	}
	defer attachResp.Close()

	if len(stdin) > 0 {
		_, _ = attachResp.Conn.Write(stdin)
	}
	_ = attachResp.CloseWrite()

	stdout := newBoundedBuffer(limits.OutputBytes)
	stderr := newBoundedBuffer(limits.OutputBytes)
	done := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(stdout, stderr, attachResp.Reader)
		done <- err
	}()

	wall := limits.WallTime
	if wall <= 0 {
		wall = time.Hour
	}
	timer := time.NewTimer(wall)
	defer timer.Stop()

	timedOut := false
	select {
	case err := <-done:
		if err != nil {
			return nil, errors.Wrapf(ErrInternal, "read exec output: %v", err)
		}
	case <-timer.C:
		timedOut = true
		s.kill(id, pidFile)
	case <-ctx.Done():
		s.kill(id, pidFile)
		return nil, ctx.Err()
	}
	elapsed := time.Since(startTime)

	outcome := &Outcome{
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		StdoutTruncated: stdout.Truncated(),
		StderrTruncated: stderr.Truncated(),
		Elapsed:         elapsed,
	}
	if timedOut {
		outcome.Status = StatusTimeLimit
		outcome.ExitCode = -1
		return outcome, nil
	}

	inspect, err := s.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return nil, errors.Wrapf(ErrInternal, "inspect exec: %v", err)
	}
	outcome.ExitCode = inspect.ExitCode
	return outcome, nil
}

// kill stops the process group recorded in pidFile. It runs on its own
// context since the caller's may already be done.
func (s *DockerSandbox) kill(id, pidFile string) {
	if pidFile == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	script := `p=$(cat ` + pidFile + ` 2>/dev/null) && [ -n "$p" ] && { kill -KILL -- -"$p" 2>/dev/null || kill -KILL "$p"; }; rm -f ` + pidFile
	out, err := s.exec(ctx, id, []string{"sh", "-c", script}, nil, Limits{WallTime: 5 * time.Second, OutputBytes: 1024}, "")
	if err != nil {
		s.logger.Warn().Err(err).Str("container", id).Msg("failed to kill timed out process")
		return
	}
	if out.ExitCode != 0 {
		s.logger.Debug().Str("container", id).Int("exit_code", out.ExitCode).Str("stderr", out.Stderr).Msg("kill found no running process")
	}
}

// oomKills reads the container's cumulative oom_kill counter.
func (s *DockerSandbox) oomKills(ctx context.Context, id string) (int64, error) {
	out, err := s.exec(ctx, id, []string{"sh", "-c", oomEventsCmd}, nil, Limits{WallTime: 5 * time.Second, OutputBytes: 4096}, "")
	if err != nil {
		return 0, err
	}
	return parseOOMKills(out.Stdout)
}

// newOOMKill reports whether the OOM killer fired in the container since the
// last observation.
func (s *DockerSandbox) newOOMKill(ctx context.Context, id string) bool {
	n, err := s.oomKills(ctx, id)
	if err != nil {
		s.logger.Debug().Err(err).Str("container", id).Msg("oom counter unavailable")
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := s.oomSeen[id]
	if n > seen {
		s.oomSeen[id] = n
		return true
	}
	return false
}

func parseOOMKills(events string) (int64, error) {
	for _, line := range strings.Split(events, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == "oom_kill" {
			return strconv.ParseInt(fields[1], 10, 64)
		}
	}
	return 0, fmt.Errorf("no oom_kill counter in %q", events)
}

// limitedCommand wraps cmd so the kernel enforces the CPU limit and coreutils
// enforces the wall limit inside the container. The soft CPU limit raises
// SIGXCPU; the hard one a second later is a SIGKILL backstop. The outermost
// shell writes its pid, which is also the process group, to pidFile.
func limitedCommand(cmd []string, limits Limits, pidFile string) []string {
	wrapped := make([]string, 0, len(cmd)+12)
	if pidFile != "" {
		wrapped = append(wrapped, "sh", "-c", `echo $$ > `+pidFile+` && exec "$@"`, "sh")
	}
	if limits.WallTime > 0 {
		wrapped = append(wrapped, "timeout", "-s", "KILL", ceilSeconds(limits.WallTime))
	}
	if limits.CPUTime > 0 {
		soft := int(math.Ceil(limits.CPUTime.Seconds()))
		ulimit := fmt.Sprintf(`ulimit -S -t %d && ulimit -H -t %d && exec "$@"`, soft, soft+1)
		wrapped = append(wrapped, "sh", "-c", ulimit, "sh")
	}
	return append(wrapped, cmd...)
}

func ceilSeconds(d time.Duration) string {
	return strconv.Itoa(int(math.Ceil(d.Seconds())))
}

func (s *DockerSandbox) EnsureImage(ctx context.Context, img string) error {
	_, _, err := s.cli.ImageInspectWithRaw(ctx, img)
	if err == nil {
		return nil // Image already exists
	}

	s.logger.Info().Str("image", img).Msg("pulling docker image")
	reader, err := s.cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", img, err)
	}
	defer reader.Close()

	// must consume the reader to finish the pull
	_, _ = io.Copy(io.Discard, reader)

	s.logger.Info().Str("image", img).Msg("successfully pulled docker image")
	return nil
}
