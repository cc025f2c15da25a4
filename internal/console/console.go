// Package console implements the interactive single-keystroke command set
// (loop.c's parse_user), driven by the engine whenever it sees the
// controlling terminal become readable.
package console

import (
	"strconv"
	"strings"
	"syscall"

	"github.com/kalt/shmux/internal/engine"
	"github.com/kalt/shmux/internal/target"
)

// Console implements engine.Console.
type Console struct {
	reg *target.Registry

	// failureQuit tracks the operator's current failure mode so 'F' can
	// flip it and 'S'/'1'/'-' can report it; every flip is also pushed to
	// the engine through SetFailureMode.
	failureQuit bool

	// pendingKill holds a partially typed 'k' command across multiple
	// reads, since a target name can arrive in more than one terminal
	// read.
	pendingKill bool
	killLineBuf strings.Builder
}

// New builds a Console bound to the given registry.
func New(reg *target.Registry, failureQuit bool) *Console {
	return &Console{reg: reg, failureQuit: failureQuit}
}

// HandleInput implements engine.Console. It processes bytes one at a time,
// matching parse_user's one-character-at-a-time dispatch, except while a
// 'k' kill-target prompt is in progress, in which case input is buffered
// until a newline terminates it.
func (c *Console) HandleInput(e *engine.Engine, data []byte) bool {
	changed := false
	for _, b := range data {
		if c.pendingKill {
			if b == '\n' || b == '\r' {
				c.finishKill(e)
				changed = true
				continue
			}
			c.killLineBuf.WriteByte(b)
			continue
		}
		if c.dispatch(e, b) {
			changed = true
		}
	}
	return changed
}

func (c *Console) dispatch(e *engine.Engine, b byte) bool {
	switch b {
	case 'h', '?':
		c.printHelp(e)
	case 27, 'q':
		e.SetSpawnMode(engine.SpawnQuit)
	case 'Q':
		e.SetSpawnMode(engine.SpawnAbort)
	case ' ':
		if e.SpawnMode() != engine.SpawnPause {
			e.Printer().User("Pausing...")
		}
		e.SetSpawnMode(engine.SpawnPause)
	case '1':
		if e.SpawnMode() != engine.SpawnOne {
			if c.failureQuit {
				e.Printer().User("Will spawn one command... (And quit on error)")
			} else {
				e.Printer().User("Will spawn one command... (And pause on error)")
			}
		}
		if e.SpawnMode() != engine.SpawnNone {
			e.SetSpawnMode(engine.SpawnOne)
		}
	case '\n', '-':
		if e.SpawnMode() != engine.SpawnCheck {
			if c.failureQuit {
				e.Printer().User("Resuming... (Will quit on error)")
			} else {
				e.Printer().User("Resuming... (Will pause on error)")
			}
		}
		e.SetSpawnMode(engine.SpawnCheck)
	case '+':
		if e.SpawnMode() != engine.SpawnMore {
			e.Printer().User("Will keep spawning commands... (Even if some fail)")
		}
		e.SetSpawnMode(engine.SpawnMore)
	case 'F':
		c.failureQuit = !c.failureQuit
		if c.failureQuit {
			e.Printer().User(`Failure mode is now "quit"`)
		} else {
			e.Printer().User(`Failure mode is now "pause"`)
		}
		e.SetFailureMode(c.failureQuit)
	case 'S':
		c.printStrategy(e)
	case 'p':
		c.showStatus(e, target.StatusPending)
	case 'r':
		c.showStatus(e, target.StatusActive)
	case 'f':
		c.showStatus(e, target.StatusFailed)
	case 'e':
		c.showStatus(e, target.StatusError)
	case 's':
		c.showStatus(e, target.StatusSuccess)
	case 'a':
		c.showStatus(e, target.StatusAll)
	case 'k':
		c.pendingKill = true
		c.killLineBuf.Reset()
		e.Printer().User("kill: ")
	case 'v':
		on := e.Printer().ToggleInternal()
		e.Printer().User("Internal messages: %s", onOff(on))
	case 'D':
		on := e.Printer().ToggleDebug()
		e.Printer().User("Debug messages: %s", onOff(on))
	default:
		e.Printer().User("Invalid Command")
	}
	return true
}

func (c *Console) finishKill(e *engine.Engine) {
	cmd := strings.TrimSpace(c.killLineBuf.String())
	c.pendingKill = false
	c.killLineBuf.Reset()
	if cmd == "" {
		return
	}

	sig := syscall.SIGTERM
	spec := cmd
	if cmd[0] == '-' {
		sp := strings.IndexByte(cmd, ' ')
		if sp < 0 || sp+1 >= len(cmd) {
			e.Printer().User("No target specified.")
			return
		}
		sigPart := cmd[1:sp]
		spec = cmd[sp+1:]
		if n, ok := parseSignal(sigPart); ok {
			sig = syscall.Signal(n)
		} else {
			e.Printer().User("Invalid signal name: %s", sigPart)
			return
		}
	}

	t, ok := c.reg.ByNumOrName(spec)
	if !ok {
		e.Printer().User("Invalid target: %s", spec)
		return
	}

	if err := e.KillTarget(t, sig); err != nil {
		e.Printer().User("kill(%s, %d): %v", t.Name, int(sig), err)
	} else {
		e.Printer().User("Sent signal %d to %s...", int(sig), t.Name)
	}
}

func parseSignal(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	if s[0] >= '0' && s[0] <= '9' {
		n, err := strconv.Atoi(s)
		return n, err == nil
	}
	if n, ok := signalByName(s); ok {
		return n, true
	}
	return 0, false
}

var namedSignals = map[string]int{
	"HUP": 1, "INT": 2, "QUIT": 3, "KILL": 9, "USR1": 10, "USR2": 12,
	"TERM": 15, "CONT": 18, "STOP": 19, "TSTP": 20,
}

func signalByName(name string) (int, bool) {
	n, ok := namedSignals[strings.ToUpper(strings.TrimPrefix(name, "SIG"))]
	return n, ok
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (c *Console) printHelp(e *engine.Engine) {
	p := e.Printer()
	p.User("Available commands:")
	p.User("      q - Quit gracefully")
	p.User("      Q - Quit immediately")
	p.User("<space> - Pause (e.g. Do not spawn any more children)")
	p.User("      1 - Spawn one command, and pause if unsuccessful")
	p.User("<enter> - Keep spawning commands until one fails")
	p.User("      + - Always spawn more commands, even if some fail")
	failureWord := "quit"
	if c.failureQuit {
		failureWord = "pause"
	}
	p.User("      F - Toggle failure mode to %q", failureWord)
	p.User("      S - Show current spawn strategy")
	p.User("      p - Show pending targets")
	p.User("      r - Show running targets")
	p.User("      f - Show failed targets")
	p.User("      e - Show targets with errors")
	p.User("      s - Show successful targets")
	p.User("      a - Show status of all targets")
	p.User("      k - Kill a target")
}

func (c *Console) printStrategy(e *engine.Engine) {
	p := e.Printer()
	switch e.SpawnMode() {
	case engine.SpawnQuit:
		p.User("Will quit once current children complete...")
	case engine.SpawnPause:
		p.User("Paused")
	case engine.SpawnCheck:
		if c.failureQuit {
			p.User("Will gracefully quit if a target fails...")
		} else {
			p.User("Will pause if a target fails...")
		}
	case engine.SpawnNone, engine.SpawnOne:
		p.User("Will spawn only one target until it succeeds...")
	case engine.SpawnMore:
		p.User("Spawning as fast as possible...")
	default:
		p.User("Uh-oh, i don't seem to know what i'm doing! [%s]", e.SpawnMode())
	}
}

func (c *Console) showStatus(e *engine.Engine, filter target.StatusFilter) {
	for _, line := range c.reg.StatusLines(filter) {
		e.Printer().User("%s", line)
	}
}
