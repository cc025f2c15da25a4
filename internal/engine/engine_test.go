package engine

import (
	"bytes"
	"context"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kalt/shmux/internal/analyzer"
	"github.com/kalt/shmux/internal/byteset"
	"github.com/kalt/shmux/internal/target"
	"github.com/kalt/shmux/internal/term"
)

func TestSpawnAndReapEcho(t *testing.T) {
	cmd, stdout, stderr, err := spawn([]string{"/bin/echo", "hello"})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer stdout.Close()
	defer stderr.Close()

	buf := make([]byte, 64)
	n, _ := stdout.Read(buf)
	if string(buf[:n]) != "hello\n" {
		t.Fatalf("stdout = %q, want %q", buf[:n], "hello\n")
	}

	var ws unix.WaitStatus
	pid := cmd.Process.Pid
	for i := 0; i < 100; i++ {
		wpid, werr := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
		if werr == nil && wpid == pid {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !ws.Exited() || ws.ExitStatus() != 0 {
		t.Fatalf("wait status = %+v", ws)
	}
}

func TestSpawnFailsOnMissingProgram(t *testing.T) {
	if _, _, _, err := spawn([]string{"/no/such/program-xyz"}); err == nil {
		t.Fatal("expected an error spawning a nonexistent program")
	}
}

func TestFullRunRunsTrueOnEveryTarget(t *testing.T) {
	reg := target.NewRegistry(target.MethodSH)
	reg.Add("sh:ok-host")
	reg.Add("sh:bad-host")

	var buf bytes.Buffer
	printer := term.New(&buf, 10, false, false, false, false)

	errorCodes := byteset.New()
	for i := 1; i <= 255; i++ {
		errorCodes.Add(i)
	}

	cfg := Config{
		Cmd:         "/bin/true",
		CmdTimeout:  2 * time.Second,
		MaxWorkers:  2,
		SpawnMode:   SpawnMore,
		Failure:     FailurePause,
		Output:      OutMixed,
		AnalyzeMode: analyzer.ModeNone,
		ErrorCodes:  errorCodes,
		TTYFd:       -1,
	}
	e := New(cfg, reg, printer, nil, nil)
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	s := reg.Summarize()
	if s.Total != 2 {
		t.Fatalf("Summarize().Total = %d, want 2", s.Total)
	}
	if s.Success != 2 {
		t.Fatalf("Summarize().Success = %d, want 2 (running /bin/true on both)", s.Success)
	}
}
