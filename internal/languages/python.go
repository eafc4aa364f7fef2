package languages

import (
	"regexp"
	"time"

	"github.com/itstheanurag/coderunner/internal/sandbox"
)

// An object input is spread into keyword arguments when the entry point
// takes more than one positional parameter, so def add(a, b) accepts
// {"a": 1, "b": 2}. Anything else is passed as the single argument.
const pythonShim = `import inspect
import json
import sys

sys.setrecursionlimit(100000)

import solution as _solution


def _default(obj):
    if isinstance(obj, (set, frozenset)):
        return sorted(obj)
    raise TypeError("result of type %s is not serializable" % type(obj).__name__)


def _arity(fn):
    try:
        params = inspect.signature(fn).parameters.values()
    except (TypeError, ValueError):
        return 1
    kinds = (inspect.Parameter.POSITIONAL_ONLY, inspect.Parameter.POSITIONAL_OR_KEYWORD)
    return sum(1 for p in params if p.kind in kinds)


def _main():
    raw = sys.stdin.read()
    arg = json.loads(raw) if raw.strip() else None
    fn = getattr(_solution, "ENTRY", None)
    if fn is None and hasattr(_solution, "Solution"):
        fn = getattr(_solution.Solution(), "ENTRY", None)
    if fn is None:
        sys.stderr.write("entry point ENTRY not found\n")
        sys.exit(2)
    if isinstance(arg, dict) and _arity(fn) > 1:
        result = fn(**arg)
    else:
        result = fn(arg)
    encoded = json.dumps(result, default=_default, allow_nan=False)
    sys.stdout.write("\nMARKER\n" + encoded + "\n")
    sys.stdout.flush()


_main()
`

func newPythonAdapter() Adapter {
	return &scriptAdapter{
		lang: Language{
			ID:         "python",
			Name:       "Python 3",
			Aliases:    []string{"python3", "py"},
			EntryPoint: "solve",
			Config: RuntimeConfig{
				Image:          "python:3.12-slim",
				SourceFile:     "solution.py",
				CompileCommand: []string{"python3", "-m", "py_compile", "solution.py"},
				CompileTimeout: 10 * time.Second,
				RunCommand:     []string{"python3", "runner.py"},
				Env:            []string{"PYTHONDONTWRITEBYTECODE=1", "PYTHONIOENCODING=utf-8"},
			},
			Limits: sandbox.Limits{
				CPUTime:  2 * time.Second,
				WallTime: 5 * time.Second,
				MemoryMB: 256,
			},
		},
		entryExpr: func(entry string) *regexp.Regexp {
			return regexp.MustCompile(`(?m)^\s*def\s+` + regexp.QuoteMeta(entry) + `\s*\(`)
		},
		render: func(code, entry string) []sandbox.File {
			return []sandbox.File{
				{Name: "solution.py", Content: code},
				{Name: "runner.py", Content: fillShim(pythonShim, entry)},
			}
		},
	}
}
