//go:build unix

package engine

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// setupFDLimit mirrors setup_fdlimit in loop.c: 3 descriptors per child
// slot when output isn't copied to disk, 5 when it is (stdout+stderr
// pipes plus the two output files), plus a flat safety margin. If the
// soft limit can't be raised enough, the caller's concurrency is reduced
// to fit instead of letting poll() or open() fail later.
func setupFDLimit(fdFactor, max int) (adjustedMax int, warnings []string, err error) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlimit); err != nil {
		return 0, nil, fmt.Errorf("getrlimit(RLIMIT_NOFILE): %w", err)
	}

	need := uint64((max+3)*fdFactor + 10)
	if rlimit.Cur >= need {
		return max, nil, nil
	}

	want := rlimit
	want.Cur = need
	if want.Cur > want.Max {
		want.Cur = want.Max
	}

	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &want); err != nil {
		warnings = append(warnings, fmt.Sprintf("setrlimit(RLIMIT_NOFILE, %d): %v", want.Cur, err))
	}

	var got unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &got); err != nil {
		warnings = append(warnings, fmt.Sprintf("getrlimit(RLIMIT_NOFILE): %v", err))
		warnings = append(warnings, "unable to validate parallelism factor")
		return max, warnings, nil
	}

	if got.Cur < need {
		reduced := int(got.Cur-10) / fdFactor - 3
		if reduced < 1 {
			reduced = 1
		}
		warnings = append(warnings, fmt.Sprintf("reducing parallelism factor to %d (from %d) because of system limitation", reduced, max))
		return reduced, warnings, nil
	}

	return max, warnings, nil
}
