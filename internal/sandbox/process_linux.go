//go:build linux

package sandbox

import (
	"math"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/criyle/go-sandbox/pkg/cgroup"
	"github.com/criyle/go-sandbox/pkg/rlimit"
	"golang.org/x/sys/unix"
)

const maxWrittenFileSize = 64 << 20

var (
	cgroupOnce sync.Once
	cgroupRoot cgroup.Cgroup
	cgroupErr  error
)

// rootCgroup creates the service's cgroup once per process. On cgroup v2
// the current process is moved into a nested group first so the root can
// delegate controllers.
func rootCgroup() (cgroup.Cgroup, error) {
	cgroupOnce.Do(func() {
		if cgroup.DetectType() == cgroup.TypeV2 {
			cgroup.EnableV2Nesting()
		}
		ct, err := cgroup.GetAvailableController()
		if err != nil {
			cgroupErr = err
			return
		}
		cgroupRoot, cgroupErr = cgroup.New("coderunner", ct)
	})
	return cgroupRoot, cgroupErr
}

type cgroupMemory struct {
	root cgroup.Cgroup
}

func newMemoryController() (memoryController, error) {
	root, err := rootCgroup()
	if err != nil {
		return nil, err
	}
	return &cgroupMemory{root: root}, nil
}

func (m *cgroupMemory) NewGroup(limitMB int64) (memoryGroup, error) {
	cg, err := m.root.Random("run")
	if err != nil {
		return nil, err
	}
	if err := cg.SetMemoryLimit(uint64(limitMB) << 20); err != nil {
		cg.Destroy()
		return nil, err
	}
	return &cgroupGroup{cg: cg}, nil
}

type cgroupGroup struct {
	cg cgroup.Cgroup
}

func (g *cgroupGroup) Add(pid int) error {
	return g.cg.AddProc(pid)
}

func (g *cgroupGroup) PeakKB() int64 {
	peak, err := g.cg.MemoryMaxUsage()
	if err != nil {
		return 0
	}
	return int64(peak >> 10)
}

func (g *cgroupGroup) Close() {
	g.cg.Destroy()
}

func prepareCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}

// applyLimits sets rlimits on an already started process. Children inherit
// them, so the whole process group is covered. limitData is false when a
// memory cgroup already enforces the memory limit.
func applyLimits(pid int, limits Limits, limitData bool) error {
	rl := rlimit.RLimits{
		FileSize:    maxWrittenFileSize,
		OpenFile:    256,
		DisableCore: true,
	}
	if limits.CPUTime > 0 {
		secs := uint64(math.Ceil(limits.CPUTime.Seconds()))
		rl.CPU = secs
		rl.CPUHard = secs + 1
	}
	if limitData && limits.MemoryMB > 0 {
		rl.Data = uint64(limits.MemoryMB) << 20
	}

	for _, r := range rl.PrepareRLimit() {
		lim := unix.Rlimit{Cur: uint64(r.Rlim.Cur), Max: uint64(r.Rlim.Max)}
		if err := unix.Prlimit(pid, r.Res, &lim, nil); err != nil {
			return err
		}
	}
	return nil
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil {
		_ = cmd.Process.Kill()
	}
}

func describeExit(state *os.ProcessState) processExit {
	pe := processExit{
		success: state.Success(),
		cpu:     state.UserTime() + state.SystemTime(),
	}
	if ru, ok := state.SysUsage().(*syscall.Rusage); ok {
		pe.memoryKB = int64(ru.Maxrss) // KiB on linux
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		pe.signal = int(ws.Signal())
	}
	return pe
}
