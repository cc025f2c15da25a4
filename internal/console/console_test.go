package console

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kalt/shmux/internal/analyzer"
	"github.com/kalt/shmux/internal/engine"
	"github.com/kalt/shmux/internal/target"
	"github.com/kalt/shmux/internal/term"
)

func newTestEngine(t *testing.T) (*engine.Engine, *bytes.Buffer, *Console) {
	t.Helper()
	reg := target.NewRegistry(target.MethodSH)
	reg.Add("host1")

	var buf bytes.Buffer
	printer := term.New(&buf, 8, false, false, true, true)

	cons := New(reg, false)
	cfg := engine.Config{
		Cmd:         "true",
		MaxWorkers:  1,
		SpawnMode:   engine.SpawnMore,
		Failure:     engine.FailurePause,
		Output:      engine.OutMixed,
		AnalyzeMode: analyzer.ModeNone,
		TTYFd:       -1,
	}
	e := engine.New(cfg, reg, printer, nil, cons)
	return e, &buf, cons
}

func TestSpaceKeyPauses(t *testing.T) {
	e, buf, c := newTestEngine(t)
	c.HandleInput(e, []byte(" "))
	if e.SpawnMode() != engine.SpawnPause {
		t.Fatalf("SpawnMode() = %v, want SpawnPause", e.SpawnMode())
	}
	if !strings.Contains(buf.String(), "Pausing") {
		t.Fatalf("expected pausing message, got %q", buf.String())
	}
}

func TestPlusKeyResumesMore(t *testing.T) {
	e, _, c := newTestEngine(t)
	e.SetSpawnMode(engine.SpawnPause)
	c.HandleInput(e, []byte("+"))
	if e.SpawnMode() != engine.SpawnMore {
		t.Fatalf("SpawnMode() = %v, want SpawnMore", e.SpawnMode())
	}
}

func TestQKeyQuitsGracefully(t *testing.T) {
	e, _, c := newTestEngine(t)
	c.HandleInput(e, []byte("q"))
	if e.SpawnMode() != engine.SpawnQuit {
		t.Fatalf("SpawnMode() = %v, want SpawnQuit", e.SpawnMode())
	}
}

func TestCapitalQAborts(t *testing.T) {
	e, _, c := newTestEngine(t)
	c.HandleInput(e, []byte("Q"))
	if e.SpawnMode() != engine.SpawnAbort {
		t.Fatalf("SpawnMode() = %v, want SpawnAbort", e.SpawnMode())
	}
}

func TestToggleInternalAndDebug(t *testing.T) {
	e, buf, c := newTestEngine(t)
	c.HandleInput(e, []byte("v"))
	if !strings.Contains(buf.String(), "Internal messages: off") {
		t.Fatalf("expected toggle message, got %q", buf.String())
	}
	buf.Reset()
	c.HandleInput(e, []byte("D"))
	if !strings.Contains(buf.String(), "Debug messages: off") {
		t.Fatalf("expected toggle message, got %q", buf.String())
	}
}

func TestUnknownKeyReportsInvalid(t *testing.T) {
	e, buf, c := newTestEngine(t)
	c.HandleInput(e, []byte("Z"))
	if !strings.Contains(buf.String(), "Invalid Command") {
		t.Fatalf("expected invalid command message, got %q", buf.String())
	}
}

func TestKillUnknownTargetReportsInvalid(t *testing.T) {
	e, buf, c := newTestEngine(t)
	c.HandleInput(e, []byte("k"))
	c.HandleInput(e, []byte("nosuchhost\n"))
	if !strings.Contains(buf.String(), "Invalid target") {
		t.Fatalf("expected invalid target message, got %q", buf.String())
	}
}

func TestParseSignalByName(t *testing.T) {
	n, ok := parseSignal("TERM")
	if !ok || n != 15 {
		t.Fatalf("parseSignal(TERM) = %d, %v", n, ok)
	}
	n, ok = parseSignal("9")
	if !ok || n != 9 {
		t.Fatalf("parseSignal(9) = %d, %v", n, ok)
	}
	if _, ok := parseSignal("BOGUS"); ok {
		t.Fatal("expected failure for an unknown signal name")
	}
}
