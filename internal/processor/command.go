package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/linuxmatters/peaqer/internal/config"
)

// Placeholders recognised in command templates. Matching is case-sensitive.
const (
	PlaceholderInput     = "$INPUT"
	PlaceholderOutput    = "$OUTPUT"
	PlaceholderBPS       = "$BPS"
	PlaceholderKBPS      = "$KBPS"
	PlaceholderReference = "$REFERENCE"
	PlaceholderTestFile  = "$TESTFILE"
)

// Vars maps placeholders to the values substituted for them.
type Vars map[string]string

// EncodeVars returns the substitutions for an encoder invocation.
func EncodeVars(input, output string, kbps int) Vars {
	return Vars{
		PlaceholderInput:  input,
		PlaceholderOutput: output,
		PlaceholderBPS:    strconv.Itoa(kbps * 1000),
		PlaceholderKBPS:   strconv.Itoa(kbps),
	}
}

// DecodeVars returns the substitutions for a decoder invocation.
func DecodeVars(input, output string) Vars {
	return Vars{
		PlaceholderInput:  input,
		PlaceholderOutput: output,
	}
}

// MetricVars returns the substitutions for a metric invocation.
func MetricVars(reference, testFile string) Vars {
	return Vars{
		PlaceholderReference: reference,
		PlaceholderTestFile:  testFile,
	}
}

// Template is a command line split into argument slots.
//
// The template text is split on whitespace exactly once, when it is parsed.
// Placeholders are then substituted inside each slot, so a substituted path
// containing spaces stays a single argument. Literal arguments in the template
// itself cannot contain whitespace.
type Template struct {
	source string
	args   []string
}

// ParseTemplate splits a command template into argument slots.
func ParseTemplate(s string) (Template, error) {
	args := strings.Fields(s)
	if len(args) == 0 {
		return Template{}, errors.New("empty command template")
	}
	return Template{source: s, args: args}, nil
}

// MustParseTemplate is ParseTemplate for templates already checked by config validation.
func MustParseTemplate(s string) Template {
	t, err := ParseTemplate(s)
	if err != nil {
		panic(fmt.Sprintf("command template %q: %v", s, err))
	}
	return t
}

// String returns the template as written.
func (t Template) String() string { return t.source }

// Expand substitutes vars into every argument slot and returns the argument vector.
func (t Template) Expand(vars Vars) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	// Longest placeholder first so one name never shadows another that extends it
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, k, vars[k])
	}
	r := strings.NewReplacer(pairs...)

	argv := make([]string, len(t.args))
	for i, arg := range t.args {
		argv[i] = r.Replace(arg)
	}
	return argv
}

// Output holds what an external tool wrote.
type Output struct {
	Stdout string
	Stderr string
}

// Stream returns the named stream, stdout unless name is config.StreamStderr.
func (o Output) Stream(name string) string {
	if name == config.StreamStderr {
		return o.Stderr
	}
	return o.Stdout
}

// Runner executes an argument vector and waits for it to finish.
// Implementations must be safe for concurrent use by several workers.
type Runner interface {
	Run(ctx context.Context, argv []string) (Output, error)
}

// ExecRunner runs tools as child processes.
type ExecRunner struct{}

// Run starts argv[0] with the remaining arguments, captures both output streams
// and returns a *ToolExecutionError when the process fails or exits non-zero.
func (ExecRunner) Run(ctx context.Context, argv []string) (Output, error) {
	if len(argv) == 0 {
		return Output{}, &ToolExecutionError{ExitCode: -1, Err: errors.New("empty command")}
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = nil

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return out, &ToolExecutionError{
			Command:  argv,
			ExitCode: code,
			Stderr:   out.Stderr,
			Err:      err,
		}
	}
	return out, nil
}
