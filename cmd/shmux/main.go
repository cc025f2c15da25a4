// Command shmux runs a shell command in parallel across many remote
// targets, the way the original shmux(1) does: optional liveness ping,
// optional connectivity test, the real command, and an optional output
// analyzer, all bounded by a configurable concurrency limit and driven by
// an interactive single-keystroke console on the controlling terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kalt/shmux/internal/analyzer"
	"github.com/kalt/shmux/internal/byteset"
	"github.com/kalt/shmux/internal/config"
	"github.com/kalt/shmux/internal/console"
	"github.com/kalt/shmux/internal/engine"
	"github.com/kalt/shmux/internal/logger"
	"github.com/kalt/shmux/internal/target"
	shterm "github.com/kalt/shmux/internal/term"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type flags struct {
	method      string
	maxWorkers  int
	cmd         string
	pingFlag    string
	spawn       string
	failOnError bool
	test        bool
	verboseTest bool
	outputModes []string
	outputDir   string
	errorCodes  []int
	showCodes   []int
	analyzeMode string
	analyzerCmd string
	stdoutRe    []string
	stderrRe    []string
	quiet       bool
	internalOn  bool
	debugOn     bool
	logFile     string
	logLevel    string
	cmdTimeout  int
	testTimeout int
	analyzerTO  int
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:     "shmux [flags] target [target ...]",
		Short:   "Run a command across many targets in parallel",
		Version: version,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cc *cobra.Command, args []string) error {
			return run(f, args)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.method, "method", "M", "", "default target method: sh, rsh, ssh1, ssh2, ssh")
	fl.IntVarP(&f.maxWorkers, "max-workers", "m", 0, "maximum number of concurrent commands")
	fl.StringVarP(&f.cmd, "command", "c", "", "command to run on each target")
	fl.StringVarP(&f.pingFlag, "ping", "p", "", "fping binary path; enables a liveness check before testing/running")
	fl.StringVarP(&f.spawn, "spawn", "P", "all", `initial spawn strategy: "all", "check", or "one"`)
	fl.BoolVarP(&f.failOnError, "fail", "F", false, "on a failure, stop spawning and quit once running commands finish, instead of pausing")
	fl.BoolVarP(&f.test, "test", "t", false, "run a trivial connectivity test before the real command")
	fl.BoolVarP(&f.verboseTest, "verbose-test", "T", false, "like -t, but also show test output")
	fl.StringSliceVarP(&f.outputModes, "output", "o", nil, "output display modes: mixed, atend, iferr, copy")
	fl.StringVarP(&f.outputDir, "output-dir", "O", "", "directory to copy captured output into (copy mode without it uses a scratch directory)")
	fl.IntSliceVarP(&f.errorCodes, "error-codes", "e", nil, "exit codes treated as errors (default: any nonzero)")
	fl.IntSliceVarP(&f.showCodes, "show-codes", "s", nil, "exit codes worth a distinct status notice")
	fl.StringVar(&f.analyzeMode, "analyzer-mode", "none", "output analysis strategy: none, external, lineregexp, plugin")
	fl.StringVar(&f.analyzerCmd, "analyzer", "", "external analyzer command, or registered plugin name")
	fl.StringSliceVar(&f.stdoutRe, "stdout-error-pattern", nil, "regexp(s) flagging a stdout line as an error")
	fl.StringSliceVar(&f.stderrRe, "stderr-error-pattern", nil, "regexp(s) flagging a stderr line as an error")
	fl.BoolVarP(&f.quiet, "quiet", "q", false, "suppress the live status line")
	fl.BoolVarP(&f.internalOn, "internal-messages", "d", false, "show internal status messages by default")
	fl.BoolVarP(&f.debugOn, "debug-messages", "D", false, "show debug messages by default")
	fl.StringVar(&f.logFile, "log-file", "", "structured diagnostic log path (empty disables it)")
	fl.StringVar(&f.logLevel, "log-level", "info", "structured log level: debug, info, warn, error")
	fl.IntVar(&f.cmdTimeout, "timeout", 0, "seconds before a running command is sent SIGTERM (0: use the 30s default)")
	fl.IntVar(&f.testTimeout, "test-timeout", 0, "seconds before a connectivity test is sent SIGTERM (0: use -timeout)")
	fl.IntVar(&f.analyzerTO, "analyzer-timeout", 0, "seconds before an external analyzer is sent SIGTERM")

	return cmd
}

func run(f *flags, args []string) error {
	if err := logger.Init(f.logLevel, f.logFile); err != nil {
		return fmt.Errorf("shmux: %w", err)
	}

	cfgDefaults, err := config.Load()
	if err != nil {
		logger.Warn("failed to load config", "err", err)
		cfgDefaults = &config.Defaults{}
	}
	applyDefaults(f, cfgDefaults)

	if f.cmd == "" && !f.test && !f.verboseTest {
		return fmt.Errorf("shmux: -c is required unless -t/-T is given")
	}

	method, err := target.ParseMethod(orDefault(f.method, "ssh"))
	if err != nil {
		return fmt.Errorf("shmux: %w", err)
	}

	reg := target.NewRegistry(method)
	for _, a := range args {
		reg.Add(a)
	}

	spawnMode, ok := engine.ParseSpawnMode(f.spawn)
	if !ok {
		return fmt.Errorf("shmux: invalid spawn strategy %q", f.spawn)
	}

	failureMode := engine.FailurePause
	if f.failOnError {
		failureMode = engine.FailureQuit
	}

	outputMode := engine.ParseOutputMode(f.outputModes)
	if outputMode.Has(engine.OutCopy) && f.outputDir == "" {
		// Copy mode (-o copy, or implied by -o mixed,iferr for the error
		// replay) needs a directory even when -O was not given; rather
		// than fail the run, scratch one into place under a run-scoped
		// name so the copy has somewhere to land.
		f.outputDir = filepath.Join(os.TempDir(), "shmux-"+uuid.NewString())
		logger.Info("copy output mode requested without -O, using scratch directory", "dir", f.outputDir)
	}
	if f.outputDir != "" {
		if err := os.MkdirAll(f.outputDir, 0755); err != nil {
			return fmt.Errorf("shmux: %w", err)
		}
	}

	errorCodes := byteset.New(f.errorCodes...)
	if len(f.errorCodes) == 0 {
		for i := 1; i <= 255; i++ {
			errorCodes.Add(i)
		}
	}
	showCodes := byteset.New(f.showCodes...)

	analyzeMode, err := parseAnalyzeMode(f.analyzeMode)
	if err != nil {
		return fmt.Errorf("shmux: %w", err)
	}

	var lineAnalyzer analyzer.LineAnalyzer
	if analyzeMode == analyzer.ModeLineRegexp {
		ra, err := analyzer.NewRegexpAnalyzer(f.stdoutRe, f.stderrRe)
		if err != nil {
			return fmt.Errorf("shmux: %w", err)
		}
		lineAnalyzer = ra
	}

	width := longestName(reg)
	ttyFd := -1
	if term.IsTerminal(int(os.Stdin.Fd())) {
		ttyFd = int(os.Stdin.Fd())
	}

	printer := shterm.NewDefault(width, false, !f.quiet, f.internalOn, f.debugOn)

	cons := console.New(reg, f.failOnError)

	cfg := engine.Config{
		Cmd:          f.cmd,
		CmdTimeout:   secondsOrDefault(f.cmdTimeout, 30) * time.Second,
		MaxWorkers:   maxWorkersOrDefault(f.maxWorkers),
		SpawnMode:    spawnMode,
		Failure:      failureMode,
		Output:       outputMode,
		OutputDir:    f.outputDir,
		AnalyzeMode:  analyzeMode,
		AnalyzerCmd:  f.analyzerCmd,
		TestTimeout:  time.Duration(f.testTimeout) * time.Second,
		AnalyzerTO:   secondsOrDefault(f.analyzerTO, 30) * time.Second,
		PingCmd:      f.pingFlag,
		RunTests:     f.test || f.verboseTest,
		VerboseTests: f.verboseTest,
		ErrorCodes:   errorCodes,
		ShowCodes:    showCodes,
		TTYFd:        ttyFd,
	}

	e := engine.New(cfg, reg, printer, lineAnalyzer, cons)

	started := time.Now()
	if err := e.Run(context.Background()); err != nil {
		return fmt.Errorf("shmux: %w", err)
	}
	elapsed := int(time.Since(started).Round(time.Second) / time.Second)

	summary := reg.Summarize()
	printer.Notice("%s", summary.Processed(elapsed))
	if s := summary.String(); s != "" {
		printer.Notice("%s", s)
	}
	for _, line := range summary.NameLines() {
		printer.Notice("%s", line)
	}

	if summary.Failure > 0 || summary.Error > 0 || summary.Timeout > 0 {
		os.Exit(1)
	}
	return nil
}

func applyDefaults(f *flags, d *config.Defaults) {
	if f.method == "" {
		f.method = d.Method
	}
	if f.maxWorkers == 0 {
		f.maxWorkers = d.MaxWorkers
	}
	if len(f.errorCodes) == 0 {
		f.errorCodes = d.ErrorCodes
	}
	if len(f.showCodes) == 0 {
		f.showCodes = d.ShowCodes
	}
	if f.analyzerCmd == "" {
		f.analyzerCmd = d.AnalyzerCmd
	}
	if f.cmdTimeout == 0 {
		f.cmdTimeout = d.CmdTimeout
	}
	if f.testTimeout == 0 {
		f.testTimeout = d.TestTimeout
	}
	if f.analyzerTO == 0 {
		f.analyzerTO = d.AnalyzerTimeoutSeconds
	}
}

func secondsOrDefault(n, def int) time.Duration {
	if n > 0 {
		return time.Duration(n)
	}
	return time.Duration(def)
}

func maxWorkersOrDefault(n int) int {
	if n > 0 {
		return n
	}
	return 10
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func parseAnalyzeMode(s string) (analyzer.Mode, error) {
	switch s {
	case "", "none":
		return analyzer.ModeNone, nil
	case "external":
		return analyzer.ModeExternal, nil
	case "lineregexp":
		return analyzer.ModeLineRegexp, nil
	case "plugin":
		return analyzer.ModePlugin, nil
	default:
		return analyzer.ModeNone, fmt.Errorf("unrecognized analyzer mode: %s", s)
	}
}

func longestName(reg *target.Registry) int {
	max := 0
	for _, t := range reg.All() {
		if len(t.Name) > max {
			max = len(t.Name)
		}
	}
	return max
}

