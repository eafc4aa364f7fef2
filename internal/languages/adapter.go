package languages

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/itstheanurag/coderunner/internal/sandbox"
	"github.com/itstheanurag/coderunner/internal/value"
)

// ResultMarker separates whatever the submission printed from the encoded
// return value written by the invocation shim.
const ResultMarker = "@@CODERUNNER_RESULT@@"

var (
	ErrNoResult = errors.New("program exited without producing a result")

	identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// CompileError is returned for submissions rejected before or during
// compilation. Message is shown to the user as is.
type CompileError struct {
	Message string
}

func (e *CompileError) Error() string {
	return "compile error: " + e.Message
}

// Adapter knows how to turn a submission into a sandbox program whose entry
// point can be called with one structured argument, and how to move values
// across that call.
type Adapter interface {
	Language() Language
	Wrap(src Source) (sandbox.Program, error)
	EncodeInput(input value.Value) ([]byte, error)
	DecodeOutput(stdout string) (value.Value, string, error)
}

// scriptAdapter covers every registered language: they differ only in how
// the entry point is located and how the shim is attached to the source.
type scriptAdapter struct {
	lang      Language
	entryExpr func(entry string) *regexp.Regexp
	render    func(code, entry string) []sandbox.File
}

func (a *scriptAdapter) Language() Language {
	return a.lang
}

func (a *scriptAdapter) Wrap(src Source) (sandbox.Program, error) {
	if strings.TrimSpace(src.Code) == "" {
		return sandbox.Program{}, &CompileError{Message: "empty source"}
	}
	entry := src.EntryPoint
	if entry == "" {
		entry = a.lang.EntryPoint
	}
	if !identifier.MatchString(entry) {
		return sandbox.Program{}, &CompileError{Message: fmt.Sprintf("invalid entry point %q", entry)}
	}
	if !a.entryExpr(entry).MatchString(src.Code) {
		return sandbox.Program{}, &CompileError{Message: "entry point not found"}
	}

	cfg := a.lang.Config
	return sandbox.Program{
		Language:       a.lang.ID,
		Image:          cfg.Image,
		Files:          a.render(src.Code, entry),
		Env:            cfg.Env,
		CompileCmd:     cfg.CompileCommand,
		CompileTimeout: cfg.CompileTimeout,
		RunCmd:         cfg.RunCommand,
	}, nil
}

func (a *scriptAdapter) EncodeInput(input value.Value) ([]byte, error) {
	data, err := input.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode input: %w", err)
	}
	return append(data, '\n'), nil
}

func (a *scriptAdapter) DecodeOutput(stdout string) (value.Value, string, error) {
	return decodeOutput(stdout)
}

// decodeOutput splits stdout at the last result marker. The shim always
// writes a newline before the marker, which is not part of the user output.
func decodeOutput(stdout string) (value.Value, string, error) {
	i := strings.LastIndex(stdout, ResultMarker)
	if i < 0 {
		return value.Value{}, stdout, ErrNoResult
	}
	printed := strings.TrimSuffix(stdout[:i], "\n")
	encoded := strings.TrimSpace(stdout[i+len(ResultMarker):])
	result, err := value.Parse([]byte(encoded))
	if err != nil {
		return value.Value{}, printed, fmt.Errorf("invalid result: %w", err)
	}
	return result, printed, nil
}

func fillShim(shim, entry string) string {
	return strings.NewReplacer("ENTRY", entry, "MARKER", ResultMarker).Replace(shim)
}
