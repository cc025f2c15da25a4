// Package analyzer implements the pluggable output-analysis strategies a
// run can use to tell success from failure once exit status alone isn't
// enough (loop.c's utest/ANALYZE_* handling).
//
// Four strategies exist, mirroring the original's ANALYZE_NONE/RUN/LNRE/
// LNPCRE modes:
//
//   - None: exit status is definitive (component F handles this directly).
//   - External: an external command is spawned as an ordinary child against
//     the captured output directory (component E spawns it like any other
//     target command; this package only resolves its argv and timeout).
//   - LineRegexp: each output line is matched as it streams past
//     (component D calls AnalyzeLine inline, before the line is ever
//     buffered to disk).
//   - Plugin: the original's dlopen'd shared-object analyzer API. Loading
//     arbitrary native code at runtime has no safe, portable Go
//     equivalent, so this is reimplemented as a compile-time registry of
//     named Go functions instead of a dynamically loaded .so — the same
//     "host-supplied verdict function" contract, without cgo or dlopen.
package analyzer

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"time"
)

// Mode selects which analysis strategy a run uses.
type Mode int

const (
	ModeNone Mode = iota
	ModeExternal
	ModeLineRegexp
	ModePlugin
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeExternal:
		return "external"
	case ModeLineRegexp:
		return "lineregexp"
	case ModePlugin:
		return "plugin"
	default:
		return "unknown"
	}
}

// Stream identifies which child descriptor a line came from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

// LineAnalyzer inspects one line of output as it streams past and reports
// whether it indicates an error. Line analyzers cannot see truncated lines
// (analyzer_lnrun's contract in loop.c): component D must treat a
// truncated line as an analyzer failure rather than calling AnalyzeLine.
type LineAnalyzer interface {
	AnalyzeLine(stream Stream, line string) bool
}

// RegexpAnalyzer flags a line as an error when it matches any pattern in
// the stream's list. An empty pattern list never matches.
type RegexpAnalyzer struct {
	Stdout []*regexp.Regexp
	Stderr []*regexp.Regexp
}

// NewRegexpAnalyzer compiles the given stdout/stderr pattern strings.
func NewRegexpAnalyzer(stdoutPatterns, stderrPatterns []string) (*RegexpAnalyzer, error) {
	ra := &RegexpAnalyzer{}
	var err error
	if ra.Stdout, err = compileAll(stdoutPatterns); err != nil {
		return nil, fmt.Errorf("analyzer: stdout pattern: %w", err)
	}
	if ra.Stderr, err = compileAll(stderrPatterns); err != nil {
		return nil, fmt.Errorf("analyzer: stderr pattern: %w", err)
	}
	return ra, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

func (ra *RegexpAnalyzer) AnalyzeLine(stream Stream, line string) bool {
	list := ra.Stdout
	if stream == Stderr {
		list = ra.Stderr
	}
	for _, re := range list {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// PluginFunc is a host-registered verdict function taking the target name
// and the directory holding its captured <name>.stdout/<name>.stderr
// files, returning true on success.
type PluginFunc func(ctx context.Context, targetName, outputDir string) (bool, error)

var plugins = map[string]PluginFunc{}

// RegisterPlugin makes a named analyzer function available to the "plugin"
// mode, in place of the original's dlopen(3) shared-object loading.
func RegisterPlugin(name string, fn PluginFunc) {
	plugins[name] = fn
}

// RunPlugin invokes a registered plugin analyzer by name.
func RunPlugin(ctx context.Context, name, targetName, outputDir string) (bool, error) {
	fn, ok := plugins[name]
	if !ok {
		return false, fmt.Errorf("analyzer: no plugin registered as %q", name)
	}
	return fn(ctx, targetName, outputDir)
}

// ExternalArgv builds the argv for the external-command analyzer mode,
// mirroring loop.c: cargv = { analyzer_cmd(), target name, output dir }.
// The command is expected to read <name>.stdout/<name>.stderr from dir
// itself and communicate its verdict purely via exit status (0 success,
// nonzero error), exactly like an ordinary target command.
func ExternalArgv(cmd, targetName, outputDir string) []string {
	return []string{cmd, targetName, outputDir}
}

// ExternalTimeout bounds how long the external analyzer command may run,
// independent of the target command's own timeout (analyzer_timeout()).
func ExternalTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}

// CommandContext builds the *exec.Cmd for the external analyzer, for
// callers that don't want to go through the engine's full slot machinery.
func CommandContext(ctx context.Context, cmd, targetName, outputDir string) *exec.Cmd {
	argv := ExternalArgv(cmd, targetName, outputDir)
	return exec.CommandContext(ctx, argv[0], argv[1:]...)
}
