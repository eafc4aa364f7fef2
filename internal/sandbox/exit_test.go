package sandbox

import (
	"strings"
	"testing"
	"time"
)

func TestLimitedCommand(t *testing.T) {
	cmd := limitedCommand([]string{"python3", "solution.py"}, Limits{CPUTime: 1500 * time.Millisecond, WallTime: 3 * time.Second}, "")
	joined := strings.Join(cmd, " ")
	if !strings.HasPrefix(joined, "timeout -s KILL 3 sh -c ulimit -S -t 2 && ulimit -H -t 3 && ") {
		t.Fatalf("unexpected wrapped command: %q", joined)
	}
	if !strings.HasSuffix(joined, "python3 solution.py") {
		t.Fatalf("original command not preserved: %q", joined)
	}
}

func TestLimitedCommandRecordsPid(t *testing.T) {
	cmd := limitedCommand([]string{"./solution"}, Limits{WallTime: time.Second}, "/home/sandbox/.run-1.pid")
	if cmd[0] != "sh" || cmd[1] != "-c" || !strings.HasPrefix(cmd[2], "echo $$ > /home/sandbox/.run-1.pid && exec") {
		t.Fatalf("pid wrapper missing: %q", cmd)
	}
	if cmd[4] != "timeout" {
		t.Fatalf("expected timeout right after the pid wrapper, got %q", cmd)
	}
}

func TestClassifyExit(t *testing.T) {
	limits := Limits{CPUTime: time.Second, WallTime: 5 * time.Second, MemoryMB: 128}
	cases := []struct {
		name string
		exit containerExit
		want Status
	}{
		{name: "clean exit", exit: containerExit{code: 0}, want: StatusOK},
		{name: "plain failure", exit: containerExit{code: 1, elapsed: 100 * time.Millisecond}, want: StatusNonZeroExit},
		{name: "coreutils timeout", exit: containerExit{code: exitTimeout}, want: StatusTimeLimit},
		{name: "soft cpu limit", exit: containerExit{code: exitCPULimit, elapsed: 1100 * time.Millisecond}, want: StatusTimeLimit},
		{name: "killed at wall limit", exit: containerExit{code: exitKilled, elapsed: 5 * time.Second}, want: StatusTimeLimit},
		{name: "killed at hard cpu limit", exit: containerExit{code: exitKilled, elapsed: 2100 * time.Millisecond}, want: StatusTimeLimit},
		{name: "oom killer", exit: containerExit{code: exitKilled, elapsed: 300 * time.Millisecond, oomKilled: true}, want: StatusMemoryLimit},
		{name: "sigkill without oom event", exit: containerExit{code: exitKilled, elapsed: 300 * time.Millisecond}, want: StatusNonZeroExit},
		{name: "allocation refused", exit: containerExit{code: 1, stderr: "Traceback (most recent call last):\nMemoryError\n"}, want: StatusMemoryLimit},
	}
	for _, tc := range cases {
		if got := classifyExit(tc.exit, limits); got != tc.want {
			t.Errorf("%s: classifyExit = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestClassifyProcess(t *testing.T) {
	limits := Limits{CPUTime: time.Second, WallTime: 5 * time.Second, MemoryMB: 128}
	cases := []struct {
		name string
		exit processExit
		want Status
	}{
		{name: "clean exit", exit: processExit{success: true, memoryKB: 9000}, want: StatusOK},
		{name: "plain failure", exit: processExit{memoryKB: 9000, stderr: "ZeroDivisionError"}, want: StatusNonZeroExit},
		{name: "sigxcpu", exit: processExit{signal: sigXCPU, cpu: time.Second}, want: StatusTimeLimit},
		{name: "hard cpu kill", exit: processExit{signal: sigKill, cpu: 2 * time.Second}, want: StatusTimeLimit},
		{name: "cgroup oom kill", exit: processExit{signal: sigKill, confined: true, memoryKB: 128 * 1024}, want: StatusMemoryLimit},
		{name: "python MemoryError under rlimit", exit: processExit{memoryKB: 9872, stderr: "  File \"solution.py\", line 2\nMemoryError\n"}, want: StatusMemoryLimit},
		{name: "node heap", exit: processExit{signal: 6, memoryKB: 40000, stderr: "FATAL ERROR: Reached heap limit Allocation failed - JavaScript heap out of memory"}, want: StatusMemoryLimit},
		{name: "go runtime", exit: processExit{memoryKB: 20000, stderr: "fatal error: runtime: out of memory"}, want: StatusMemoryLimit},
		{name: "rss at the cap", exit: processExit{memoryKB: 128 * 1024}, want: StatusMemoryLimit},
		{name: "sigkill from the user", exit: processExit{signal: sigKill, memoryKB: 9000}, want: StatusNonZeroExit},
	}
	for _, tc := range cases {
		if got := classifyProcess(tc.exit, limits); got != tc.want {
			t.Errorf("%s: classifyProcess = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestOutOfMemoryNeedsALimit(t *testing.T) {
	pe := processExit{stderr: "MemoryError"}
	if got := classifyProcess(pe, Limits{}); got != StatusNonZeroExit {
		t.Fatalf("without a memory limit a MemoryError is a runtime error, got %s", got)
	}
}

func TestParseOOMKills(t *testing.T) {
	v2 := "low 0\nhigh 0\nmax 12\noom 3\noom_kill 2\noom_group_kill 0\n"
	if n, err := parseOOMKills(v2); err != nil || n != 2 {
		t.Fatalf("cgroup v2: got %d, %v", n, err)
	}
	v1 := "oom_kill_disable 0\nunder_oom 0\noom_kill 5\n"
	if n, err := parseOOMKills(v1); err != nil || n != 5 {
		t.Fatalf("cgroup v1: got %d, %v", n, err)
	}
	if _, err := parseOOMKills(""); err == nil {
		t.Fatal("expected an error without a counter")
	}
}
