package languages

import (
	"regexp"
	"time"

	"github.com/itstheanurag/coderunner/internal/sandbox"
)

// The shim is appended to the submission so top-level declarations are in
// scope without requiring the user to export anything.
const javascriptShim = `
;(function () {
  const raw = require("fs").readFileSync(0, "utf8");
  const arg = raw.trim() === "" ? null : JSON.parse(raw);
  let fn = null;
  if (typeof ENTRY === "function") {
    fn = ENTRY;
  } else if (typeof Solution === "function") {
    const instance = new Solution();
    if (typeof instance.ENTRY === "function") {
      fn = instance.ENTRY.bind(instance);
    }
  }
  if (fn === null) {
    process.stderr.write("entry point ENTRY not found\n");
    process.exitCode = 2;
    return;
  }
  Promise.resolve()
    .then(() => fn(arg))
    .then(
      (result) => {
        const encoded = JSON.stringify(result === undefined ? null : result);
        process.stdout.write("\nMARKER\n" + encoded + "\n");
      },
      (err) => {
        process.stderr.write((err && err.stack ? err.stack : String(err)) + "\n");
        process.exitCode = 1;
      }
    );
})();
`

func newJavaScriptAdapter() Adapter {
	return &scriptAdapter{
		lang: Language{
			ID:         "javascript",
			Name:       "JavaScript (Node.js)",
			Aliases:    []string{"js", "node"},
			EntryPoint: "solve",
			Config: RuntimeConfig{
				Image:          "node:20-slim",
				SourceFile:     "solution.js",
				CompileCommand: []string{"node", "--check", "solution.js"},
				CompileTimeout: 10 * time.Second,
				RunCommand:     []string{"node", "--stack-size=65500", "solution.js"},
			},
			Limits: sandbox.Limits{
				CPUTime:  2 * time.Second,
				WallTime: 5 * time.Second,
				MemoryMB: 512,
			},
		},
		entryExpr: func(entry string) *regexp.Regexp {
			name := regexp.QuoteMeta(entry)
			return regexp.MustCompile(`(?m)(function\s*\*?\s*` + name + `\s*\(|(const|let|var)\s+` + name + `\s*=|^\s*(async\s+)?` + name + `\s*\()`)
		},
		render: func(code, entry string) []sandbox.File {
			return []sandbox.File{
				{Name: "solution.js", Content: code + "\n" + fillShim(javascriptShim, entry)},
			}
		},
	}
}
