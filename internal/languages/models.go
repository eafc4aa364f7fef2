package languages

import (
	"time"

	"github.com/itstheanurag/coderunner/internal/sandbox"
)

type RuntimeConfig struct {
	Image          string
	SourceFile     string
	CompileCommand []string
	CompileTimeout time.Duration
	RunCommand     []string
	Env            []string
}

type Language struct {
	ID         string
	Name       string
	Aliases    []string
	EntryPoint string // used when a submission names none
	Config     RuntimeConfig
	Limits     sandbox.Limits
}

// Source is the user-facing part of a submission an adapter needs.
type Source struct {
	Code       string
	EntryPoint string
}
