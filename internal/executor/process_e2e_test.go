//go:build linux

package executor

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/itstheanurag/coderunner/internal/evaluator"
	"github.com/itstheanurag/coderunner/internal/languages"
	"github.com/itstheanurag/coderunner/internal/sandbox"
	"github.com/itstheanurag/coderunner/internal/value"
)

// These tests run real toolchains from PATH through the process backend.

var mergeSources = []struct {
	lang   string
	binary string
	source string
}{
	{"python", "python3", mergeSource},
	{"javascript", "node", `function merge(intervals) {
  intervals.sort((a, b) => a[0] - b[0]);
  const out = [];
  for (const [s, e] of intervals) {
    if (out.length > 0 && s <= out[out.length - 1][1]) {
      out[out.length - 1][1] = Math.max(out[out.length - 1][1], e);
    } else {
      out.push([s, e]);
    }
  }
  return out;
}
`},
	{"go", "go", `package solution

import "sort"

func merge(intervals [][]int) [][]int {
	sort.Slice(intervals, func(i, j int) bool { return intervals[i][0] < intervals[j][0] })
	var out [][]int
	for _, iv := range intervals {
		if n := len(out); n > 0 && iv[0] <= out[n-1][1] {
			if iv[1] > out[n-1][1] {
				out[n-1][1] = iv[1]
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}
`},
	{"java", "javac", `import java.util.*;

class Solution {
    public int[][] merge(int[][] intervals) {
        Arrays.sort(intervals, (a, b) -> Integer.compare(a[0], b[0]));
        List<int[]> out = new ArrayList<>();
        for (int[] iv : intervals) {
            if (!out.isEmpty() && iv[0] <= out.get(out.size() - 1)[1]) {
                int[] last = out.get(out.size() - 1);
                last[1] = Math.max(last[1], iv[1]);
            } else {
                out.add(iv);
            }
        }
        return out.toArray(new int[0][]);
    }
}
`},
	{"cpp", "g++", `vector<vector<int>> merge(vector<vector<int>> intervals) {
    sort(intervals.begin(), intervals.end());
    vector<vector<int>> out;
    for (auto& iv : intervals) {
        if (!out.empty() && iv[0] <= out.back()[1]) {
            out.back()[1] = max(out.back()[1], iv[1]);
        } else {
            out.push_back(iv);
        }
    }
    return out;
}
`},
}

func newProcessExecutor(t *testing.T) *Executor {
	t.Helper()
	if testing.Short() {
		t.Skip("runs real toolchains")
	}
	logger := zerolog.Nop()
	sb, err := sandbox.NewProcessSandbox(sandbox.ProcessConfig{
		BaseDir: t.TempDir(),
		Path:    os.Getenv("PATH"),
		Cgroup:  true,
	}, &logger)
	if err != nil {
		t.Fatalf("process sandbox: %v", err)
	}
	return NewExecutor(languages.NewRegistry(), sb, Options{CaseWorkers: 2}, &logger)
}

func requireBinary(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not in PATH", name)
	}
}

func executeWithProcesses(t *testing.T, ex *Executor, opts ExecuteOptions) *Report {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()
	report, err := ex.Execute(ctx, opts)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	return report
}

func TestProcessMergeIntervalsEveryLanguage(t *testing.T) {
	ex := newProcessExecutor(t)
	for _, tc := range mergeSources {
		tc := tc
		t.Run(tc.lang, func(t *testing.T) {
			requireBinary(t, tc.binary)
			report := executeWithProcesses(t, ex, ExecuteOptions{
				Submission: Submission{Source: tc.source, Language: tc.lang, ProblemID: "merge-intervals", EntryPoint: "merge"},
				TestCases:  mergeCases(),
			})
			if report.Status != OverallPassed || report.Passed != 3 {
				t.Fatalf("expected 3 of 3 passed, got %s %d: %s %+v", report.Status, report.Passed, report.Message, report.Results)
			}
		})
	}
}

func TestProcessSyntaxErrorIsCompileError(t *testing.T) {
	ex := newProcessExecutor(t)
	requireBinary(t, "python3")
	sub := mergeSubmission()
	sub.Source = "def merge(intervals)\n    return intervals\n"

	report := executeWithProcesses(t, ex, ExecuteOptions{Submission: sub, TestCases: mergeCases()})
	if report.Status != OverallCompileError || len(report.Results) != 0 {
		t.Fatalf("expected CompileError, got %s with %d results", report.Status, len(report.Results))
	}
	if !strings.Contains(report.Message, "SyntaxError") {
		t.Fatalf("diagnostic missing: %q", report.Message)
	}
}

func TestProcessBusyLoopTimesOut(t *testing.T) {
	ex := newProcessExecutor(t)
	requireBinary(t, "python3")
	sub := mergeSubmission()
	sub.Source = "def merge(intervals):\n    while True:\n        pass\n"

	report := executeWithProcesses(t, ex, ExecuteOptions{
		Submission: sub,
		TestCases:  mergeCases()[:1],
		Limits:     sandbox.Limits{CPUTime: time.Second, WallTime: 5 * time.Second},
	})
	if len(report.Results) != 1 || report.Results[0].Status != evaluator.StatusTimeout {
		t.Fatalf("expected Timeout, got %+v", report.Results)
	}
}

func TestProcessMemoryHogExceedsResources(t *testing.T) {
	ex := newProcessExecutor(t)
	requireBinary(t, "python3")
	sub := mergeSubmission()
	sub.Source = "def merge(intervals):\n    data = 'x' * (1 << 30)\n    return len(data)\n"

	report := executeWithProcesses(t, ex, ExecuteOptions{
		Submission: sub,
		TestCases:  mergeCases()[:1],
		Limits:     sandbox.Limits{MemoryMB: 128},
	})
	if len(report.Results) != 1 || report.Results[0].Status != evaluator.StatusResourceExceeded {
		t.Fatalf("expected ResourceExceeded, got %+v", report.Results)
	}
}

func TestProcessObjectInputSpreadsOverParameters(t *testing.T) {
	ex := newProcessExecutor(t)
	requireBinary(t, "python3")
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	report, err := ex.RunOnce(ctx, RunOptions{
		Submission: Submission{Source: "def add(a, b):\n    return a - b\n", Language: "python", EntryPoint: "add"},
		Input:      value.MustParse(`{"b": 2, "a": 5}`),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Status != string(evaluator.StatusCompleted) || !value.Equal(report.Output, value.MustParse(`3`)) {
		t.Fatalf("expected 3, got %s %v: %s", report.Status, report.Output, report.Stderr)
	}
}
