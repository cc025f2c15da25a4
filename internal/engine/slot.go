package engine

import (
	"os"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kalt/shmux/internal/target"
)

// TimedOut tracks where a slot sits in the SIGTERM/SIGKILL escalation.
type TimedOut int

const (
	TimedOutNo TimedOut = iota
	TimedOutTerm
	TimedOutKill
)

// Slot is one entry in the engine's fixed-size execution table
// (loop.c's "struct child"). Slot 0 is reserved for the fping liveness
// helper and is never assigned a target.
type Slot struct {
	Target *target.Target

	Cmd *exec.Cmd

	IsTest     bool
	IsAnalyzer bool

	Output OutputMode

	Deadline time.Time
	TimedOut TimedOut

	// Reaped and SavedStatus hold a child's exit status once wait4 has
	// reaped it but its stdout/stderr descriptors are still open
	// (loop.c's kid->status >= 0: "died but has open fd(s), saved
	// status"). Finalization waits until both pipes are closed before
	// consulting SavedStatus.
	Reaped      bool
	SavedStatus unix.WaitStatus

	// TestSentinelSeen/TestPassed implement the test-phase pass rule: a
	// test passes iff its very first complete stdout line is exactly
	// "SHMUX." (loop.c's kid->passed), independent of exit code.
	TestSentinelSeen bool
	TestPassed       bool

	StdoutResidue string
	StderrResidue string

	StdoutFile *os.File
	StderrFile *os.File
	StdoutPath string
	StderrPath string

	StdoutPipe *os.File
	StderrPipe *os.File

	// OrphanWarnedAt rate-limits the "still waiting on an orphaned
	// process group" diagnostic to once per 15s (loop.c's kid->orphan).
	OrphanWarnedAt time.Time
}

// Busy reports whether the slot currently holds a running or
// not-yet-reaped child.
func (s *Slot) Busy() bool {
	return s.Cmd != nil
}

func (s *Slot) reset() {
	*s = Slot{}
}

// Pid returns the child's process ID, or 0 if the slot is idle.
func (s *Slot) Pid() int {
	if s.Cmd == nil || s.Cmd.Process == nil {
		return 0
	}
	return s.Cmd.Process.Pid
}
