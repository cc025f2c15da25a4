package engine

// SpawnMode governs whether the engine is still allowed to start new
// children, mirroring loop.c's SPAWN_* constants.
type SpawnMode int

const (
	SpawnFatal SpawnMode = iota
	SpawnAbort
	SpawnQuit
	SpawnPause
	SpawnCheck
	SpawnNone
	SpawnOne
	SpawnMore
)

func (m SpawnMode) String() string {
	switch m {
	case SpawnFatal:
		return "fatal"
	case SpawnAbort:
		return "abort"
	case SpawnQuit:
		return "quit"
	case SpawnPause:
		return "pause"
	case SpawnCheck:
		return "check"
	case SpawnNone:
		return "none"
	case SpawnOne:
		return "one"
	case SpawnMore:
		return "more"
	default:
		return "unknown"
	}
}

// ParseSpawnMode parses the -P flag's initial strategy name.
func ParseSpawnMode(s string) (SpawnMode, bool) {
	switch s {
	case "all":
		return SpawnMore, true
	case "check":
		return SpawnCheck, true
	case "one":
		return SpawnOne, true
	default:
		return SpawnFatal, false
	}
}

// FailureMode is the spawn strategy adopted once a command fails, chosen
// up front by -F (loop.c's historical default is SPAWN_MORE, but shmux's
// documented CLI default failure behavior is to pause).
type FailureMode int

const (
	FailurePause FailureMode = iota
	FailureQuit
)

// CmdResult is the verdict of a completed command, fed into the spawn
// strategy transition (loop.c's set_cmdstatus).
type CmdResult int

const (
	CmdSuccess CmdResult = iota
	CmdError
)

// transitionSpawnMode applies set_cmdstatus's state machine: SPAWN_NONE and
// SPAWN_CHECK are the "waiting to decide" states entered after one
// foreground command; a success promotes SPAWN_NONE to SPAWN_CHECK (keep
// going cautiously), while a failure from either demotes to the
// operator-chosen failure mode. SpawnOne must never reach this call: the
// spawn controller turns it into SpawnNone before starting the run child,
// and afterCmdResult skips the call while SpawnOne is set.
func transitionSpawnMode(cur SpawnMode, result CmdResult, failure FailureMode) SpawnMode {
	if cur == SpawnOne {
		panic("engine: transitionSpawnMode called while in SpawnOne")
	}
	if result == CmdSuccess {
		if cur == SpawnNone {
			return SpawnCheck
		}
		return cur
	}
	if cur == SpawnNone || cur == SpawnCheck {
		if failure == FailureQuit {
			return SpawnQuit
		}
		return SpawnPause
	}
	return cur
}
