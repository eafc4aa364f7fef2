package sandbox

import (
	"strings"
	"time"
)

// linux signal numbers, also used to decode 128+n exit codes from docker
const (
	sigKill = 9
	sigXCPU = 24
)

const (
	// exit status of a process killed with SIGKILL
	exitKilled = 128 + sigKill
	// exit status of a process killed with SIGXCPU at the soft CPU limit
	exitCPULimit = 128 + sigXCPU
	// exit status of coreutils timeout when the command timed out
	exitTimeout = 124
)

// What runtimes print when the kernel refuses an allocation.
var oomSignatures = []string{
	"MemoryError",
	"out of memory",
	"OutOfMemoryError",
	"std::bad_alloc",
	"Cannot allocate memory",
	"memory allocation failed",
}

func outOfMemory(stderr string) bool {
	for _, sig := range oomSignatures {
		if strings.Contains(stderr, sig) {
			return true
		}
	}
	return false
}

// processExit is what the process backend learns about a finished process.
type processExit struct {
	success  bool
	signal   int
	cpu      time.Duration
	memoryKB int64
	// confined is set when memory was enforced by a cgroup rather than by
	// RLIMIT_DATA
	confined bool
	stderr   string
}

func classifyProcess(pe processExit, limits Limits) Status {
	limitKB := limits.MemoryMB * 1024
	switch {
	case pe.success:
		return StatusOK
	case pe.signal == sigXCPU:
		return StatusTimeLimit
	case pe.signal == sigKill && limits.CPUTime > 0 && pe.cpu >= limits.CPUTime:
		return StatusTimeLimit
	case pe.signal == sigKill && pe.confined && limitKB > 0 && pe.memoryKB*10 >= limitKB*9:
		// the cgroup OOM killer fires with usage at the cap
		return StatusMemoryLimit
	case limitKB > 0 && pe.memoryKB >= limitKB:
		return StatusMemoryLimit
	case limitKB > 0 && outOfMemory(pe.stderr):
		// RLIMIT_DATA refuses allocations up front, so rss stays low and only
		// the runtime's own report tells
		return StatusMemoryLimit
	default:
		return StatusNonZeroExit
	}
}

// containerExit is what the docker backend learns about a finished exec.
type containerExit struct {
	code      int
	elapsed   time.Duration
	oomKilled bool
	stderr    string
}

func classifyExit(ce containerExit, limits Limits) Status {
	switch {
	case ce.code == 0:
		return StatusOK
	case ce.oomKilled:
		return StatusMemoryLimit
	case ce.code == exitTimeout, ce.code == exitCPULimit:
		return StatusTimeLimit
	case ce.code == exitKilled && limits.WallTime > 0 && ce.elapsed >= limits.WallTime:
		return StatusTimeLimit
	case ce.code == exitKilled && limits.CPUTime > 0 && ce.elapsed >= limits.CPUTime:
		// hard CPU limit, one second past the soft one
		return StatusTimeLimit
	case limits.MemoryMB > 0 && outOfMemory(ce.stderr):
		return StatusMemoryLimit
	default:
		return StatusNonZeroExit
	}
}
