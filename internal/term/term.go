// Package term implements the engine's terminal output primitives
// (component G's status/message plumbing, consumed by components D, E, F
// and the console). It owns message-kind coloring (grounded on the
// teacher's internal/ui/theme.go use of lipgloss) and the single
// overwritable status line.
//
// The engine is a single-threaded cooperative loop (spec.md section 5), so
// this printer does no locking of its own; it is only ever touched from
// that loop.
package term

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Kind identifies the origin of one line of child output, for coloring and
// routing decisions (OUT_MIXED printing, IFERR replay, etc. in component D).
type Kind int

const (
	Stdout Kind = iota
	Stderr
	StdoutTrunc
	StderrTrunc
)

var (
	styleName    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	styleStdout  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	styleStderr  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	styleTrunc   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	styleInfo    = lipgloss.NewStyle().Foreground(lipgloss.Color("76"))
	styleInternal = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	styleDebug   = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Italic(true)
	styleUser    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	styleError   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

// Printer is the sole writer to the controlling terminal.
type Printer struct {
	out            io.Writer
	nameWidth      int
	verboseNames   bool // stored only; Target always prefixes the name
	statusEnabled  bool // !-q
	internalOn     bool // -d default, toggled by 'v'
	debugOn        bool // -D default, toggled by 'D'
	lastStatusLen  int
}

// New builds a Printer writing to w (normally os.Stdout).
func New(w io.Writer, nameWidth int, verboseNames, statusEnabled, internalOn, debugOn bool) *Printer {
	return &Printer{
		out:           w,
		nameWidth:     nameWidth,
		verboseNames:  verboseNames,
		statusEnabled: statusEnabled,
		internalOn:    internalOn,
		debugOn:       debugOn,
	}
}

// NewDefault builds a Printer over os.Stdout.
func NewDefault(nameWidth int, verboseNames, statusEnabled, internalOn, debugOn bool) *Printer {
	return New(os.Stdout, nameWidth, verboseNames, statusEnabled, internalOn, debugOn)
}

func (p *Printer) clearStatus() {
	if p.lastStatusLen > 0 {
		fmt.Fprint(p.out, "\r"+strings.Repeat(" ", p.lastStatusLen)+"\r")
		p.lastStatusLen = 0
	}
}

func (p *Printer) line(s string) {
	p.clearStatus()
	fmt.Fprintln(p.out, s)
}

// Target prints one line of output attributed to a target (tprint).
func (p *Printer) Target(name string, kind Kind, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	prefix := styleName.Render(pad(name, p.nameWidth)) + ": "

	var styled string
	switch kind {
	case Stdout:
		styled = styleStdout.Render(msg)
	case Stderr:
		styled = styleStderr.Render(msg)
	case StdoutTrunc:
		styled = styleTrunc.Render("[truncated] " + msg)
	case StderrTrunc:
		styled = styleTrunc.Render("[truncated, stderr] " + msg)
	}
	p.line(prefix + styled)
}

// Info prints an always-visible informational line (iprint): ping summary,
// analyzer verdicts, and similar operator-facing notices.
func (p *Printer) Info(format string, args ...any) {
	p.line(styleInfo.Render(fmt.Sprintf(format, args...)))
}

// Internal prints an internal status message (eprint), shown only when
// internal messages are enabled (-d, toggled by 'v').
func (p *Printer) Internal(format string, args ...any) {
	if !p.internalOn {
		return
	}
	p.line(styleInternal.Render(fmt.Sprintf(format, args...)))
}

// Debug prints a debug message (dprint), shown only when debug messages
// are enabled (-D, toggled by 'D').
func (p *Printer) Debug(format string, args ...any) {
	if !p.debugOn {
		return
	}
	p.line(styleDebug.Render(fmt.Sprintf(format, args...)))
}

// User prints console feedback (uprint): help text, mode changes, kill
// confirmations. Always visible — it is a direct reply to operator input.
func (p *Printer) User(format string, args ...any) {
	p.line(styleUser.Render(fmt.Sprintf(format, args...)))
}

// Error prints a fatal/severe condition (distinct styling from Internal).
func (p *Printer) Error(format string, args ...any) {
	p.line(styleError.Render(fmt.Sprintf(format, args...)))
}

// Notice prints a plain, unstyled, unprefixed line (nprint): final summary
// text that should be pipeable/greppable without ANSI noise.
func (p *Printer) Notice(format string, args ...any) {
	p.clearStatus()
	fmt.Fprintln(p.out, fmt.Sprintf(format, args...))
}

// Status refreshes the single overwritable status line (sprint). A call
// with an empty string clears it permanently (end of run).
func (p *Printer) Status(line string) {
	if !p.statusEnabled {
		return
	}
	fmt.Fprint(p.out, "\r"+strings.Repeat(" ", p.lastStatusLen)+"\r")
	fmt.Fprint(p.out, line)
	p.lastStatusLen = len(line)
}

// ToggleInternal flips the internal-message visibility flag and returns the
// new state ('v' console command).
func (p *Printer) ToggleInternal() bool {
	p.internalOn = !p.internalOn
	return p.internalOn
}

// ToggleDebug flips the debug-message visibility flag and returns the new
// state ('D' console command).
func (p *Printer) ToggleDebug() bool {
	p.debugOn = !p.debugOn
	return p.debugOn
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
