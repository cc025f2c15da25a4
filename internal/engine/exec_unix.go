//go:build unix

package engine

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// spawn builds and starts a child for argv, placing it in its own process
// group so that component F can signal the whole group (ssh parents and
// their slave processes alike) rather than just the immediate child. No
// stdin is ever connected, matching exec()'s behavior in exec.c.
//
// Unlike the original's fork()+execve() pair, exec.Cmd.Start() reports an
// exec(3) failure synchronously and correctly even under concurrent
// forking, so no SHMUCK!/SIGTSTP handshake is needed to detect a failed
// exec — the original's workaround for a fork/exec race that does not
// exist in Go's runtime.
func spawn(argv []string) (cmd *exec.Cmd, stdout, stderr *os.File, err error) {
	cmd = exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	outPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	errPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, err
	}

	outFile, ok := outPipe.(*os.File)
	if !ok {
		return nil, nil, nil, fmt.Errorf("engine: stdout pipe is not pollable on this platform")
	}
	errFile, ok := errPipe.(*os.File)
	if !ok {
		return nil, nil, nil, fmt.Errorf("engine: stderr pipe is not pollable on this platform")
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, nil, err
	}

	return cmd, outFile, errFile, nil
}

// signalGroup sends sig to the child's entire process group.
func signalGroup(pid int, sig syscall.Signal) error {
	return syscall.Kill(-pid, sig)
}

// groupAlive checks whether any process remains in pid's process group,
// without reaping it (loop.c's kill(-pid, 0) orphan probe).
func groupAlive(pid int) bool {
	return syscall.Kill(-pid, 0) == nil
}
