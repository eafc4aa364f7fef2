package languages

import (
	"regexp"
	"time"

	"github.com/itstheanurag/coderunner/internal/sandbox"
)

const goShim = `package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
)

func main() {
	fn := reflect.ValueOf(ENTRY)
	if fn.Type().NumIn() != 1 {
		fmt.Fprintln(os.Stderr, "entry point ENTRY must take exactly one parameter")
		os.Exit(2)
	}
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read input:", err)
		os.Exit(2)
	}
	arg := reflect.New(fn.Type().In(0))
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, arg.Interface()); err != nil {
			fmt.Fprintln(os.Stderr, "decode input:", err)
			os.Exit(2)
		}
	}
	out := fn.Call([]reflect.Value{arg.Elem()})
	var result any
	if len(out) > 0 {
		result = coderunnerNormalize(out[0])
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		fmt.Fprintln(os.Stderr, "encode result:", err)
		os.Exit(2)
	}
	os.Stdout.WriteString("\nMARKER\n")
	os.Stdout.Write(encoded)
	os.Stdout.WriteString("\n")
}

// nil slices and maps are reported as empty collections, not null
func coderunnerNormalize(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Invalid:
		return nil
	case reflect.Slice, reflect.Array:
		items := make([]any, v.Len())
		for i := range items {
			items[i] = coderunnerNormalize(v.Index(i))
		}
		return items
	case reflect.Map:
		fields := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			fields[fmt.Sprint(iter.Key().Interface())] = coderunnerNormalize(iter.Value())
		}
		return fields
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return coderunnerNormalize(v.Elem())
	default:
		return v.Interface()
	}
}
`

var goPackageClause = regexp.MustCompile(`(?m)^package\s+\w+`)

func newGoAdapter() Adapter {
	return &scriptAdapter{
		lang: Language{
			ID:         "go",
			Name:       "Go",
			Aliases:    []string{"golang"},
			EntryPoint: "solve",
			Config: RuntimeConfig{
				Image:          "golang:1.22-alpine",
				SourceFile:     "solution.go",
				CompileCommand: []string{"go", "build", "-o", "solution", "solution.go", "main_shim.go"},
				CompileTimeout: 60 * time.Second,
				RunCommand:     []string{"./solution"},
				Env:            []string{"CGO_ENABLED=0", "GOFLAGS=-buildvcs=false", "GOTOOLCHAIN=local"},
			},
			Limits: sandbox.Limits{
				CPUTime:  2 * time.Second,
				WallTime: 5 * time.Second,
				MemoryMB: 256,
			},
		},
		entryExpr: func(entry string) *regexp.Regexp {
			return regexp.MustCompile(`(?m)^func\s+` + regexp.QuoteMeta(entry) + `\s*\(`)
		},
		render: func(code, entry string) []sandbox.File {
			return []sandbox.File{
				{Name: "solution.go", Content: asMainPackage(code)},
				{Name: "main_shim.go", Content: fillShim(goShim, entry)},
			}
		},
	}
}

func asMainPackage(code string) string {
	if loc := goPackageClause.FindStringIndex(code); loc != nil {
		return code[:loc[0]] + "package main" + code[loc[1]:]
	}
	return "package main\n\n" + code
}
