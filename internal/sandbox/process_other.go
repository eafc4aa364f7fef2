//go:build !linux

package sandbox

import (
	"errors"
	"os"
	"os/exec"
)

func newMemoryController() (memoryController, error) {
	return nil, errors.New("memory cgroups need linux")
}

func prepareCommand(*exec.Cmd) {}

// applyLimits is a no-op off linux; only the wall limit is enforced.
func applyLimits(int, Limits, bool) error {
	return nil
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func describeExit(state *os.ProcessState) processExit {
	return processExit{
		success: state.Success(),
		cpu:     state.UserTime() + state.SystemTime(),
	}
}
