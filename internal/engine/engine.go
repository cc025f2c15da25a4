// Package engine implements the parallel-execution loop: the readiness
// multiplexer, slot table, spawn controller, output demultiplexer and
// timeout/reaper that together run a command across every target in a
// target.Registry (loop.c's loop()).
//
// The engine is a single-threaded cooperative loop: one goroutine owns the
// slot table and the poll(2) call, exactly like the original. Console
// input and child I/O are both observed through the same multiplexer
// rather than through separate goroutines, so there is never a need for
// locking inside this package.
package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kalt/shmux/internal/analyzer"
	"github.com/kalt/shmux/internal/byteset"
	"github.com/kalt/shmux/internal/logger"
	"github.com/kalt/shmux/internal/target"
	"github.com/kalt/shmux/internal/term"
)

// pollPeriod bounds how long a single poll(2) call may block, so the
// status line keeps refreshing and timeouts keep getting checked even
// when every descriptor is silent.
const pollPeriod = 250 * time.Millisecond

// termGrace is how long a timed-out child gets after SIGTERM before the
// engine escalates to SIGKILL.
const termGrace = 5 * time.Second

// orphanWarnInterval rate-limits the "still waiting on an orphaned process
// group" diagnostic.
const orphanWarnInterval = 15 * time.Second

// Console is the narrow interface component G implements; the engine
// drives it on every TTY-readable wakeup rather than owning key handling
// itself.
type Console interface {
	// HandleInput is called with whatever bytes were read from the
	// controlling terminal. It returns true if the engine should
	// re-render its status line immediately.
	HandleInput(e *Engine, data []byte) bool
}

// Config bundles everything loop() used to take as positional arguments.
type Config struct {
	Cmd          string
	CmdTimeout   time.Duration
	TestTimeout  time.Duration // 0 means use CmdTimeout
	MaxWorkers   int
	SpawnMode    SpawnMode
	Failure      FailureMode
	Output       OutputMode
	OutputDir    string // required when Output has OutCopy
	AnalyzeMode  analyzer.Mode
	AnalyzerCmd  string
	AnalyzerTO   time.Duration
	PingCmd      string // fping path, empty disables the liveness phase
	RunTests     bool
	VerboseTests bool
	ErrorCodes   byteset.Set
	ShowCodes    byteset.Set
	TTYFd        int // -1 if there is no controlling terminal

	// TTYPollWorkaround mirrors the NetBSD fd-duplication hack in the
	// original: some poll(2) implementations never report readiness on
	// character devices. Linux's poll does not have this problem, so this
	// is normally false; when true, the console fd is read on every wakeup
	// in which poll reports some descriptor ready, whether or not the
	// console fd itself reported POLLIN. It is not read on a wakeup where
	// poll reports nothing ready.
	TTYPollWorkaround bool
}

// Engine owns the slot table, the target registry and every piece of
// mutable run state for one invocation.
type Engine struct {
	cfg  Config
	reg  *target.Registry
	out  *term.Printer
	ana  analyzer.LineAnalyzer
	con  Console
	slog interface {
		Debug(string, ...any)
		Info(string, ...any)
		Warn(string, ...any)
		Error(string, ...any)
	}

	slots []*Slot

	sigint int
	ttyBuf []byte
}

// New builds an Engine ready to Run. slots must be at least 1 (slot 0 is
// the fping slot, used only when cfg.PingCmd is set).
func New(cfg Config, reg *target.Registry, out *term.Printer, ana analyzer.LineAnalyzer, con Console) *Engine {
	n := cfg.MaxWorkers + 1
	slots := make([]*Slot, n)
	for i := range slots {
		slots[i] = &Slot{}
	}
	return &Engine{
		cfg:  cfg,
		reg:  reg,
		out:  out,
		ana:  ana,
		con:  con,
		slog: logger.Log,
		slots: slots,
	}
}

// SpawnMode returns the engine's current spawn strategy.
func (e *Engine) SpawnMode() SpawnMode { return e.cfg.SpawnMode }

// SetSpawnMode lets the console impose an operator-chosen spawn strategy.
func (e *Engine) SetSpawnMode(m SpawnMode) { e.cfg.SpawnMode = m }

// SetFailureMode lets the console's 'F' command flip the failure strategy.
func (e *Engine) SetFailureMode(quit bool) {
	if quit {
		e.cfg.Failure = FailureQuit
	} else {
		e.cfg.Failure = FailurePause
	}
}

// Printer exposes the engine's terminal output sink to the console.
func (e *Engine) Printer() *term.Printer { return e.out }

// KillTarget signals the process group of whichever slot is currently
// running t, if any (parse_user's 'k' command).
func (e *Engine) KillTarget(t *target.Target, sig syscall.Signal) error {
	for _, s := range e.slots {
		if s.Target == t && s.Busy() {
			return signalGroup(s.Pid(), sig)
		}
	}
	return fmt.Errorf("target %s has no active process", t.Name)
}

// Run executes the full ping/test/run/analyze pipeline to completion, until
// a graceful quit has drained the running children, or until an abort
// (console 'Q', repeated SIGINT) or a fatal condition stops it at once.
func (e *Engine) Run(ctx context.Context) error {
	adjusted, warnings, err := setupFDLimit(e.fdFactor(), e.cfg.MaxWorkers)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	for _, w := range warnings {
		e.out.Internal("%s", w)
	}
	if adjusted < e.cfg.MaxWorkers {
		e.cfg.MaxWorkers = adjusted
	}

	if e.cfg.SpawnMode == SpawnOne || e.cfg.SpawnMode == SpawnCheck {
		if e.cfg.TTYFd < 0 && e.cfg.Failure == FailurePause {
			e.cfg.SpawnMode = SpawnMore
		}
	}

	sigintCh := make(chan os.Signal, 1)
	notifySigint(sigintCh)
	defer stopSigint(sigintCh)

	if e.cfg.PingCmd != "" {
		if err := e.startPing(); err != nil {
			e.out.Internal("fping failed to start: %v", err)
			e.cfg.SpawnMode = SpawnFatal
		}
	} else {
		for {
			t, ok := e.reg.Next(target.Pinged)
			if !ok {
				break
			}
			e.reg.Start(t)
			e.reg.Result(t, true)
		}
	}

	for e.cfg.SpawnMode != SpawnFatal && e.cfg.SpawnMode != SpawnAbort {
		e.out.Status(e.statusLine())

		select {
		case <-sigintCh:
			e.onSigint()
		default:
		}

		fds := e.buildPollSet()
		n, perr := unix.Poll(fds, int(pollPeriod/time.Millisecond))
		if perr != nil && perr != unix.EINTR {
			return fmt.Errorf("engine: poll: %w", perr)
		}

		if n > 0 {
			e.handleReadiness(fds)
		}

		e.reapAndTimeout()
		e.spawnReady()

		if e.allDone() {
			break
		}
	}

	e.out.Status("")
	return nil
}

func (e *Engine) fdFactor() int {
	if e.cfg.Output.Has(OutCopy) {
		return 5
	}
	return 3
}

func (e *Engine) onSigint() {
	e.sigint++
	switch e.sigint {
	case 1:
		e.out.Internal("Sending SIGINT to all children..")
		for _, s := range e.slots {
			if pid := s.Pid(); pid > 0 {
				_ = signalGroup(pid, syscall.SIGINT)
			}
		}
		e.out.Internal("Waiting for existing children to abort..")
		e.cfg.SpawnMode = SpawnQuit
	case 2:
		e.cfg.SpawnMode = SpawnQuit
	default:
		e.cfg.SpawnMode = SpawnAbort
	}
}

// allDone reports whether no slot still holds a live or unreaped child and
// either every target has reached a terminal phase or a graceful quit is in
// effect (no new child will be spawned, so pending targets stay pending).
func (e *Engine) allDone() bool {
	for _, s := range e.slots {
		if s.Busy() {
			return false
		}
	}
	if e.cfg.SpawnMode == SpawnQuit {
		return true
	}
	for _, t := range e.reg.All() {
		if !t.Dead() && t.Phase < target.Analyzed {
			return false
		}
		if t.Phase == target.Analyzed && t.Status != target.Analyzed && !t.Dead() {
			return false
		}
	}
	return true
}

func (e *Engine) statusLine() string {
	active := 0
	for i, s := range e.slots {
		if i == 0 {
			continue
		}
		if s.Busy() {
			active++
		}
	}
	sum := e.reg.Summarize()
	return fmt.Sprintf("[%d/%d running] %d/%d done (%d errors, %d timeouts)",
		active, e.cfg.MaxWorkers, sum.Total-activeCount(e.reg), sum.Total, sum.Error, sum.Timeout)
}

func activeCount(reg *target.Registry) int {
	n := 0
	for _, t := range reg.All() {
		if !t.Dead() && t.Phase != target.Analyzed {
			n++
		}
	}
	return n
}

// --- ping phase -------------------------------------------------------

func (e *Engine) startPing() error {
	argv := []string{e.cfg.PingCmd, "-t", "200"}
	cmd, stdout, stderr, err := spawn(argv)
	if err != nil {
		return err
	}
	e.slots[0].Cmd = cmd
	e.slots[0].StdoutPipe = stdout
	e.slots[0].StderrPipe = stderr

	stdin, err := cmd.StdinPipe()
	if err == nil {
		count := 0
		for {
			t, ok := e.reg.Next(target.Pinged)
			if !ok {
				break
			}
			e.reg.Start(t)
			count++
			fmt.Fprintf(stdin, "%s\n", t.Hostname())
		}
		stdin.Close()
		e.out.Info("Pinging %d targets...", count)
	}
	return nil
}

// parseFpingLine mirrors parse_fping: "<host> is alive" / "<host> is
// unreachable", matched back to a pinged target by hostname.
func (e *Engine) parseFpingLine(line string) {
	space := strings.IndexByte(line, ' ')
	if space < 0 {
		if line != "" {
			e.out.Internal("fping garbage follows:")
			e.out.Error("%s", line)
		}
		return
	}
	host := line[:space]
	t, ok := e.reg.Pong(host)
	if !ok {
		e.out.Internal("fping garbage follows:")
		e.out.Error("%s", line)
		return
	}
	if strings.TrimSpace(line[space+1:]) == "is alive" {
		e.out.Info("%s", line)
		e.reg.Result(t, true)
	} else {
		e.out.Error("%s", line)
		e.reg.Result(t, false)
	}
}

// --- readiness handling -------------------------------------------------

func (e *Engine) buildPollSet() []unix.PollFd {
	var fds []unix.PollFd
	if e.cfg.TTYFd >= 0 {
		fds = append(fds, unix.PollFd{Fd: int32(e.cfg.TTYFd), Events: unix.POLLIN})
	} else {
		fds = append(fds, unix.PollFd{Fd: -1})
	}
	for _, s := range e.slots {
		fds = append(fds, pollFdFor(s.StdoutPipe))
		fds = append(fds, pollFdFor(s.StderrPipe))
	}
	return fds
}

func pollFdFor(f *os.File) unix.PollFd {
	if f == nil {
		return unix.PollFd{Fd: -1}
	}
	return unix.PollFd{Fd: int32(f.Fd()), Events: unix.POLLIN}
}

// handleReadiness walks the poll results in the order the original
// guarantees: TTY/console first, then each slot's stdout/stderr in slot
// order (slot 0, the ping helper, necessarily comes before any real
// target slot).
func (e *Engine) handleReadiness(fds []unix.PollFd) {
	ttyReady := fds[0].Fd >= 0 && fds[0].Revents&unix.POLLIN != 0
	if ttyReady || (e.cfg.TTYPollWorkaround && e.cfg.TTYFd >= 0) {
		e.readConsole()
	}

	// POLLHUP (peer closed, nothing left buffered) must trigger a drain
	// attempt too, not just POLLIN, or a pipe that goes straight to EOF
	// without ever reporting POLLIN never gets closed.
	const readyMask = unix.POLLIN | unix.POLLHUP
	for i, s := range e.slots {
		outIdx := 1 + i*2
		errIdx := outIdx + 1
		if fds[outIdx].Fd >= 0 && fds[outIdx].Revents&readyMask != 0 {
			e.drainStream(i, s, true)
		}
		if fds[errIdx].Fd >= 0 && fds[errIdx].Revents&readyMask != 0 {
			e.drainStream(i, s, false)
		}
	}
}

func (e *Engine) readConsole() {
	buf := make([]byte, 256)
	n, err := unix.Read(e.cfg.TTYFd, buf)
	if err != nil || n <= 0 {
		return
	}
	if e.con != nil {
		e.con.HandleInput(e, buf[:n])
	}
}

const maxLineLen = 1024

// drainStream reads whatever is available on one slot's stream and feeds
// complete lines to the output path, handling slot 0 (fping) specially.
// Once the peer end closes (EOF), it flushes any trailing partial line,
// closes the pipe and clears the slot's reference to it so reapAndTimeout
// can tell when both descriptors are gone and the child is ready to
// finalize (loop.c's "child's stdout and stderr have both been closed").
func (e *Engine) drainStream(idx int, s *Slot, isStdout bool) {
	f := s.StderrPipe
	residue := &s.StderrResidue
	if isStdout {
		f = s.StdoutPipe
		residue = &s.StdoutResidue
	}
	if f == nil {
		return
	}

	buf := make([]byte, 8192)
	n, err := f.Read(buf)
	if n > 0 {
		*residue += string(buf[:n])
		for {
			nl := strings.IndexByte(*residue, '\n')
			if nl < 0 {
				if len(*residue) > maxLineLen {
					e.emitLine(idx, s, isStdout, (*residue)[:maxLineLen], true)
					*residue = (*residue)[maxLineLen:]
				}
				break
			}
			line := (*residue)[:nl]
			*residue = (*residue)[nl+1:]
			e.emitLine(idx, s, isStdout, line, false)
		}
	}
	if err != nil {
		if err != io.EOF {
			e.slog.Debug("stream read error", "slot", idx, "err", err)
		}
		if *residue != "" {
			e.emitLine(idx, s, isStdout, *residue, false)
			*residue = ""
		}
		f.Close()
		if isStdout {
			s.StdoutPipe = nil
		} else {
			s.StderrPipe = nil
		}
	}
}

func (e *Engine) emitLine(idx int, s *Slot, isStdout bool, line string, truncated bool) {
	if idx == 0 {
		e.parseFpingLine(line)
		return
	}

	t := s.Target
	name := ""
	if t != nil {
		name = t.Name
	}

	// A test passes iff its very first complete stdout line is exactly
	// "SHMUX.", independent of exit code (loop.c's kid->passed).
	if s.IsTest && isStdout && !s.TestSentinelSeen {
		s.TestSentinelSeen = true
		s.TestPassed = !truncated && line == "SHMUX."
	}

	if truncated {
		if e.ana != nil && !s.IsAnalyzer {
			e.out.Internal("Truncated line caused analyzer failure for %s", name)
			if s.Output.Has(OutIfErr) && s.Output.Has(OutMixed) {
				e.replayFile(name, s.StdoutFile, s.StdoutPath, true)
				e.replayFile(name, s.StderrFile, s.StderrPath, false)
				s.Output &^= OutIfErr
			}
			s.Output |= OutErr
		}
		kind := term.StdoutTrunc
		if !isStdout {
			kind = term.StderrTrunc
		}
		if s.Output.Has(OutMixed) && !s.Output.Has(OutIfErr) {
			e.out.Target(name, kind, "%s", line)
		}
		e.copyLine(s, isStdout, line)
		return
	}

	if e.ana != nil && !s.IsAnalyzer {
		stream := analyzer.Stdout
		if !isStdout {
			stream = analyzer.Stderr
		}
		if e.ana.AnalyzeLine(stream, line) {
			e.out.Internal("Analysis of %s output indicates an error", name)
			if s.Output.Has(OutIfErr) && s.Output.Has(OutMixed) {
				e.replayFile(name, s.StdoutFile, s.StdoutPath, true)
				e.replayFile(name, s.StderrFile, s.StderrPath, false)
				s.Output &^= OutIfErr
			}
			s.Output |= OutErr
		}
	}

	kind := term.Stdout
	if !isStdout {
		kind = term.Stderr
	}
	if s.Output.Has(OutMixed) && !s.Output.Has(OutIfErr) {
		e.out.Target(name, kind, "%s", line)
	}
	e.copyLine(s, isStdout, line)
}

func (e *Engine) copyLine(s *Slot, isStdout bool, line string) {
	f := s.StderrFile
	if isStdout {
		f = s.StdoutFile
	}
	if f == nil {
		return
	}
	fmt.Fprintln(f, line)
}

// --- spawn controller ---------------------------------------------------

// spawnReady looks for the next runnable target, trying phases in
// priority order 4 (analyze) -> 3 (run) -> 2 (test), mirroring the
// original's idx>0 scan for target_next(4) first.
func (e *Engine) spawnReady() {
	if e.cfg.SpawnMode == SpawnQuit || e.cfg.SpawnMode == SpawnFatal || e.cfg.SpawnMode == SpawnAbort {
		return
	}
	for i := 1; i < len(e.slots); i++ {
		s := e.slots[i]
		if s.Busy() {
			continue
		}
		if e.cfg.SpawnMode == SpawnPause {
			return
		}
		if e.trySpawnAnalyzer(i, s) {
			continue
		}
		if e.trySpawnRun(i, s) {
			continue
		}
		e.trySpawnTest(i, s)
	}
}

func (e *Engine) trySpawnAnalyzer(i int, s *Slot) bool {
	t, ok := e.reg.Next(target.Analyzed)
	if !ok {
		return false
	}
	if e.cfg.AnalyzeMode != analyzer.ModeExternal {
		e.slog.Debug("skipped external analyzer", "target", t.Name)
		e.reg.Start(t)
		e.reg.Result(t, true)
		return true
	}

	e.reg.Start(t)
	argv := analyzer.ExternalArgv(e.cfg.AnalyzerCmd, t.Name, e.cfg.OutputDir)
	cmd, stdout, stderr, err := spawn(argv)
	if err != nil {
		e.out.Internal("Fatal error for %s", t.Name)
		e.reg.Result(t, false)
		return true
	}
	s.reset()
	s.Target = t
	s.IsAnalyzer = true
	s.Cmd = cmd
	s.StdoutPipe = stdout
	s.StderrPipe = stderr
	s.Output = OutMixed | OutAtEnd
	s.Deadline = time.Now().Add(analyzer.ExternalTimeout(e.cfg.AnalyzerTO))
	if e.cfg.OutputDir != "" {
		s.StdoutPath = filepath.Join(e.cfg.OutputDir, t.Name+".analyzer.stdout")
		s.StderrPath = filepath.Join(e.cfg.OutputDir, t.Name+".analyzer.stderr")
		s.StdoutFile, _ = os.Create(s.StdoutPath)
		s.StderrFile, _ = os.Create(s.StderrPath)
	}
	return true
}

func (e *Engine) trySpawnRun(i int, s *Slot) bool {
	// Phase 3 (run) spawning is gated on spawn_mode != SPAWN_NONE: once a
	// SPAWN_ONE run has been consumed (below), no further run-phase child
	// is spawned until the operator re-arms it (loop.c:1182).
	if e.cfg.SpawnMode == SpawnNone {
		return false
	}
	t, ok := e.reg.Next(target.Ran)
	if !ok {
		return false
	}
	wasOne := e.cfg.SpawnMode == SpawnOne
	if wasOne {
		// Consume the one-shot permission before spawning, so the child's
		// own completion (set_cmdstatus) never observes SPAWN_ONE
		// (loop.c:1198-1200).
		e.cfg.SpawnMode = SpawnNone
	}
	return e.doSpawn(i, s, t, false, wasOne)
}

func (e *Engine) trySpawnTest(i int, s *Slot) bool {
	t, ok := e.reg.Next(target.Tested)
	if !ok {
		return false
	}
	if !e.cfg.RunTests {
		e.slog.Debug("skipped test", "target", t.Name)
		e.reg.Start(t)
		e.reg.Result(t, true)
		return true
	}
	return e.doSpawn(i, s, t, true, false)
}

func (e *Engine) doSpawn(i int, s *Slot, t *target.Target, isTest, oneShot bool) bool {
	e.reg.Start(t)
	cmdStr := e.cfg.Cmd
	if isTest {
		cmdStr = "echo SHMUX."
	}
	argv := target.GetCmd(t, cmdStr)
	cmd, stdout, stderr, err := spawn(argv)
	if err != nil {
		e.out.Internal("Fatal error for %s", t.Name)
		e.reg.Result(t, false)
		return true
	}

	s.reset()
	s.Target = t
	s.IsTest = isTest
	s.Cmd = cmd
	s.StdoutPipe = stdout
	s.StderrPipe = stderr
	s.Output = e.cfg.Output
	if isTest && !e.cfg.VerboseTests {
		s.Output = 0
	}
	if oneShot && s.Output.Has(OutAtEnd) && !s.Output.Has(OutIfErr) {
		// A "spawn one" run is always shown immediately rather than
		// buffered for an end-of-run replay (loop.c:1201-1205).
		s.Output = (s.Output &^ OutAtEnd) | OutMixed
	}
	timeout := e.cfg.CmdTimeout
	if isTest && e.cfg.TestTimeout > 0 {
		timeout = e.cfg.TestTimeout
	}
	s.Deadline = time.Now().Add(timeout)

	if e.cfg.Output.Has(OutCopy) && e.cfg.OutputDir != "" {
		s.StdoutPath = filepath.Join(e.cfg.OutputDir, t.Name+".stdout")
		s.StderrPath = filepath.Join(e.cfg.OutputDir, t.Name+".stderr")
		s.StdoutFile, _ = os.Create(s.StdoutPath)
		s.StderrFile, _ = os.Create(s.StderrPath)
	}
	return true
}

// --- reap & timeout -----------------------------------------------------

// reapAndTimeout advances every busy slot's timeout escalation, reaps any
// child that has exited, and only finalizes a reaped child once both its
// stdout and stderr descriptors have been fully drained (loop.c's
// "child is either alive and well, or dead but with open fds"). A slot
// whose child is reaped but still draining saves its status and is
// revisited on the next tick without waiting on it again.
func (e *Engine) reapAndTimeout() {
	now := time.Now()
	for i, s := range e.slots {
		if !s.Busy() {
			continue
		}

		if !s.Reaped {
			pid := s.Pid()
			if !s.Deadline.IsZero() && now.After(s.Deadline) && s.TimedOut == TimedOutNo {
				e.out.Info("Time out for %s (Sending SIGTERM)..", slotName(s))
				_ = signalGroup(pid, syscall.SIGTERM)
				s.TimedOut = TimedOutTerm
				s.Deadline = now.Add(termGrace)
			} else if s.TimedOut == TimedOutTerm && now.After(s.Deadline) {
				e.out.Info("Time out for %s (Sending SIGKILL)..", slotName(s))
				_ = signalGroup(pid, syscall.SIGKILL)
				s.TimedOut = TimedOutKill
			}

			var ws unix.WaitStatus
			wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG|unix.WUNTRACED, nil)
			if err != nil || wpid == 0 {
				continue
			}
			if ws.Stopped() {
				// Not actually dead, just suspended; resume a SIGTSTP
				// stop and keep waiting rather than finalizing on a
				// bogus status.
				if ws.StopSignal() == syscall.SIGTSTP {
					_ = signalGroup(pid, syscall.SIGCONT)
				} else {
					e.out.Error("%s stopped: signal %d!?", slotName(s), int(ws.StopSignal()))
				}
				continue
			}
			s.Reaped = true
			s.SavedStatus = ws
		}

		if s.StdoutPipe != nil || s.StderrPipe != nil {
			// Still draining: keep reading until both pipes report EOF
			// (handled by drainStream on the next readiness pass).
			continue
		}

		// Both descriptors are closed. A process group can outlive the
		// reaped leader (stray grandchildren); keep waiting on it rather
		// than finalizing underneath it, exactly as for an unreaped kill.
		if groupAlive(s.Pid()) {
			if now.Sub(s.OrphanWarnedAt) > orphanWarnInterval {
				e.out.Internal("still waiting for %s's process group to exit", slotName(s))
				s.OrphanWarnedAt = now
			}
			continue
		}

		e.finishSlot(i, s, s.SavedStatus)
	}
}

func slotName(s *Slot) string {
	if s.Target != nil {
		return s.Target.Name
	}
	return "fping"
}

func (e *Engine) finishSlot(idx int, s *Slot, ws unix.WaitStatus) {
	defer func() {
		closeIfSet(s.StdoutFile)
		closeIfSet(s.StderrFile)
		closeIfSet(s.StdoutPipe)
		closeIfSet(s.StderrPipe)
		s.reset()
	}()

	if idx == 0 {
		return
	}

	t := s.Target
	name := t.Name

	if s.Output.Has(OutAtEnd) && !s.Output.Has(OutIfErr) {
		e.replayFile(name, s.StdoutFile, s.StdoutPath, true)
		e.replayFile(name, s.StderrFile, s.StderrPath, false)
	}

	switch {
	case ws.Exited():
		code := ws.ExitStatus()
		e.handleExit(idx, s, t, name, code)

	case ws.Signaled():
		e.handleSignalDeath(s, t, name, ws.Signal())

	default:
		e.reg.Result(t, false)
	}
}

// handleSignalDeath classifies a child that died on a signal. A test that
// is killed by the engine's own timeout escalation simply fails (the
// "SHMUX." sentinel was never going to arrive); a run or analyzer child
// killed the same way is a Timeout verdict and still advances to the
// summary instead of being marked dead, exactly like a normal exit would
// (loop.c:1627-1685).
func (e *Engine) handleSignalDeath(s *Slot, t *target.Target, name string, sig syscall.Signal) {
	timedOut := s.TimedOut > 0 && (sig == syscall.SIGTERM || sig == syscall.SIGKILL)

	if s.IsTest {
		if timedOut {
			e.out.Error("Test for %s timed out", name)
		} else {
			e.out.Error("Test for %s died on signal %d", name, int(sig))
		}
		e.reg.Result(t, false)
		return
	}

	if timedOut {
		e.out.Internal("Child for %s timed out and was killed", name)
		e.reg.CmdStatus(t, target.ResultTimeout)
	} else {
		e.out.Error("Child for %s died on signal %d", name, int(sig))
		e.reg.CmdStatus(t, target.ResultError)
	}
	e.reg.Result(t, true)
	e.afterCmdResult(true)
}

func (e *Engine) handleExit(idx int, s *Slot, t *target.Target, name string, code int) {
	if s.IsTest {
		passed := s.TestPassed
		e.slog.Debug("test exited", "target", name, "status", code, "passed", passed)
		if !passed {
			e.out.Error("Test failed for %s", name)
		}
		e.reg.Result(t, passed)
		return
	}

	if s.IsAnalyzer {
		e.slog.Debug("analyzer exited", "target", name, "status", code)
		failed := code != 0
		if failed {
			e.out.Error("Analysis of %s output indicates an error", name)
			e.reg.CmdStatus(t, target.ResultError)
		} else {
			e.out.Info("Analysis of %s output indicates a success", name)
			e.reg.CmdStatus(t, target.ResultSuccess)
		}
		e.reg.Result(t, true)
		e.afterCmdResult(failed)
		return
	}

	if e.cfg.Output.Has(OutCopy) {
		if f, err := os.Create(filepath.Join(e.cfg.OutputDir, name+".exit")); err == nil {
			fmt.Fprintf(f, "%d", code)
			f.Close()
		}
	}

	if e.cfg.ErrorCodes.Test(code) {
		if s.Output.Has(OutIfErr) {
			e.replayFile(name, s.StdoutFile, s.StdoutPath, true)
			e.replayFile(name, s.StderrFile, s.StderrPath, false)
		}
		e.reg.CmdStatus(t, target.ResultError)
		e.out.Error("Child for %s exited with status %d", name, code)
		e.reg.Result(t, true)
		e.afterCmdResult(true)
		return
	}

	if e.cfg.ShowCodes.Test(code) {
		e.out.Info("Child for %s exited (with status %d)", name, code)
	} else {
		e.out.Target(name, term.Stdout, "exited with status %d", code)
	}

	switch e.cfg.AnalyzeMode {
	case analyzer.ModeNone, analyzer.ModeExternal:
		e.reg.CmdStatus(t, target.ResultSuccess)
		e.reg.Result(t, true)
		e.afterCmdResult(false)

	case analyzer.ModeLineRegexp:
		if s.Output.Has(OutErr) {
			e.reg.CmdStatus(t, target.ResultError)
			e.reg.Result(t, true)
			e.afterCmdResult(true)
		} else {
			e.reg.CmdStatus(t, target.ResultSuccess)
			e.reg.Result(t, true)
			e.afterCmdResult(false)
		}

	case analyzer.ModePlugin:
		ok, err := analyzer.RunPlugin(context.Background(), e.cfg.AnalyzerCmd, name, e.cfg.OutputDir)
		if err != nil {
			e.out.Internal("plugin analyzer error for %s: %v", name, err)
			ok = false
		}
		if ok {
			e.out.Info("Analysis of %s output indicates a success", name)
			e.reg.CmdStatus(t, target.ResultSuccess)
		} else {
			e.out.Error("Analysis of %s output indicates an error", name)
			if s.Output.Has(OutIfErr) {
				e.replayFile(name, s.StdoutFile, s.StdoutPath, true)
				e.replayFile(name, s.StderrFile, s.StderrPath, false)
			}
			e.reg.CmdStatus(t, target.ResultError)
		}
		e.reg.Result(t, true)
		e.afterCmdResult(!ok)
	}
}

func (e *Engine) afterCmdResult(failed bool) {
	if e.cfg.SpawnMode == SpawnOne {
		return
	}
	result := CmdSuccess
	if failed {
		result = CmdError
	}
	e.cfg.SpawnMode = transitionSpawnMode(e.cfg.SpawnMode, result, e.cfg.Failure)
}

func (e *Engine) replayFile(name string, f *os.File, path string, isStdout bool) {
	if f == nil {
		return
	}
	r, err := os.Open(path)
	if err != nil {
		e.out.Internal("open(%s): %v", path, err)
		return
	}
	defer r.Close()

	kind := term.Stdout
	truncKind := term.StdoutTrunc
	if !isStdout {
		kind = term.Stderr
		truncKind = term.StderrTrunc
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	cont := false
	for sc.Scan() {
		line := sc.Text()
		if !cont {
			e.out.Target(name, kind, "%s", line)
		} else {
			e.out.Target(name, truncKind, "%s", line)
		}
		cont = false
	}
}

func closeIfSet(f *os.File) {
	if f != nil {
		f.Close()
	}
}
