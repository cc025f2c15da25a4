package engine

import "testing"

func TestParseSpawnMode(t *testing.T) {
	cases := []struct {
		in   string
		want SpawnMode
		ok   bool
	}{
		{"all", SpawnMore, true},
		{"check", SpawnCheck, true},
		{"one", SpawnOne, true},
		{"bogus", SpawnFatal, false},
	}
	for _, c := range cases {
		got, ok := ParseSpawnMode(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("ParseSpawnMode(%q) = %v, %v; want %v, %v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestTransitionSpawnModeSuccessPromotesNoneToCheck(t *testing.T) {
	got := transitionSpawnMode(SpawnNone, CmdSuccess, FailurePause)
	if got != SpawnCheck {
		t.Fatalf("transitionSpawnMode = %v, want SpawnCheck", got)
	}
}

func TestTransitionSpawnModeFailureFromCheckPauses(t *testing.T) {
	got := transitionSpawnMode(SpawnCheck, CmdError, FailurePause)
	if got != SpawnPause {
		t.Fatalf("transitionSpawnMode = %v, want SpawnPause", got)
	}
}

func TestTransitionSpawnModeFailureFromCheckQuits(t *testing.T) {
	got := transitionSpawnMode(SpawnCheck, CmdError, FailureQuit)
	if got != SpawnQuit {
		t.Fatalf("transitionSpawnMode = %v, want SpawnQuit", got)
	}
}

func TestTransitionSpawnModeMoreIsUnaffectedBySuccess(t *testing.T) {
	got := transitionSpawnMode(SpawnMore, CmdSuccess, FailurePause)
	if got != SpawnMore {
		t.Fatalf("transitionSpawnMode = %v, want SpawnMore to be sticky", got)
	}
}

func TestTransitionSpawnModeMoreSurvivesFailure(t *testing.T) {
	got := transitionSpawnMode(SpawnMore, CmdError, FailureQuit)
	if got != SpawnMore {
		t.Fatalf("transitionSpawnMode = %v, want SpawnMore to ignore failures", got)
	}
}

func TestTransitionSpawnModePanicsOnSpawnOne(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic when called with SpawnOne")
		}
	}()
	transitionSpawnMode(SpawnOne, CmdSuccess, FailurePause)
}
