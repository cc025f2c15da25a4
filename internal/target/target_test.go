package target

import "testing"

func TestAddParsesMethodPrefix(t *testing.T) {
	r := NewRegistry(MethodSSH)
	cases := []struct {
		spec   string
		name   string
		method Method
	}{
		{"host1", "host1", MethodSSH},
		{"sh:host2", "host2", MethodSH},
		{"rsh:host3", "host3", MethodRSH},
		{"ssh1:host4", "host4", MethodSSH1},
		{"ssh2:host5", "host5", MethodSSH2},
		{"ssh:host6", "host6", MethodSSH},
	}
	for _, c := range cases {
		tg := r.Add(c.spec)
		if tg.Name != c.name || tg.Method != c.method {
			t.Errorf("Add(%q) = {%q %v}, want {%q %v}", c.spec, tg.Name, tg.Method, c.name, c.method)
		}
	}
}

func TestPhaseProgression(t *testing.T) {
	r := NewRegistry(MethodSH)
	tg := r.Add("host1")

	next, ok := r.Next(Pinged)
	if !ok || next != tg {
		t.Fatalf("Next(Pinged) should return the fresh target")
	}
	r.Start(tg)
	if tg.Phase != Pinged || tg.Status != None {
		t.Fatalf("after Start: phase=%d status=%d", tg.Phase, tg.Status)
	}
	r.Result(tg, true)
	if tg.Status != Pinged {
		t.Fatalf("after successful Result: status=%d, want %d", tg.Status, Pinged)
	}

	if _, ok := r.Next(Pinged); ok {
		t.Fatalf("target should no longer be eligible for the ping phase")
	}
	next, ok = r.Next(Tested)
	if !ok || next != tg {
		t.Fatalf("target should now be eligible for the test phase")
	}
}

func TestResultFailureIsTerminal(t *testing.T) {
	r := NewRegistry(MethodSH)
	tg := r.Add("host1")
	r.Start(tg)
	r.Result(tg, false)

	if !tg.Dead() {
		t.Fatal("target should be dead after a failed phase")
	}
	if tg.Result != ResultFailure {
		t.Fatalf("Result = %d, want ResultFailure", tg.Result)
	}
	if _, ok := r.Next(Pinged); ok {
		t.Fatal("dead target must not be returned by Next")
	}
}

func TestResultDoesNotUpgradeErrorOnAnalyzerSuccess(t *testing.T) {
	r := NewRegistry(MethodSH)
	tg := r.Add("host1")

	// Walk through ping/test/run phases, landing in the run phase with an
	// error verdict.
	for phase := Pinged; phase <= Ran; phase++ {
		r.Start(tg)
		r.Result(tg, true)
	}
	r.CmdStatus(tg, ResultError)

	// Now run the analyzer phase to a clean success.
	r.Start(tg)
	if tg.Phase != Analyzed {
		t.Fatalf("phase = %d, want Analyzed", tg.Phase)
	}
	r.Result(tg, true)

	if tg.Status != Analyzed {
		t.Fatalf("status = %d, want Analyzed", tg.Status)
	}
	if tg.Result != ResultError {
		t.Fatalf("Result = %d, want ResultError to survive a successful analyzer phase", tg.Result)
	}
}

func TestSummarize(t *testing.T) {
	r := NewRegistry(MethodSH)
	ok := r.Add("ok-host")
	bad := r.Add("bad-host")
	// Bring both targets into the run phase, where CmdStatus is allowed.
	for _, tg := range []*Target{ok, bad} {
		for phase := Pinged; phase < Ran; phase++ {
			r.Start(tg)
			r.Result(tg, true)
		}
		r.Start(tg)
	}
	r.CmdStatus(ok, ResultSuccess)
	r.CmdStatus(bad, ResultError)

	s := r.Summarize()
	if s.Total != 2 || s.Success != 1 || s.Error != 1 {
		t.Fatalf("Summarize() = %+v", s)
	}
	if len(s.ErrorNames) != 1 || s.ErrorNames[0] != "bad-host" {
		t.Fatalf("ErrorNames = %v", s.ErrorNames)
	}
}

func TestByNumOrName(t *testing.T) {
	r := NewRegistry(MethodSH)
	r.Add("alpha")
	r.Add("beta")

	if tg, ok := r.ByNumOrName("1"); !ok || tg.Name != "beta" {
		t.Fatalf("ByNumOrName(1) = %v, %v", tg, ok)
	}
	if tg, ok := r.ByNumOrName("alpha"); !ok || tg.Name != "alpha" {
		t.Fatalf("ByNumOrName(alpha) = %v, %v", tg, ok)
	}
	if _, ok := r.ByNumOrName("missing"); ok {
		t.Fatal("expected lookup miss")
	}
}

func TestHostnameStripsUser(t *testing.T) {
	tg := &Target{Name: "root@host1"}
	if got := tg.Hostname(); got != "host1" {
		t.Fatalf("Hostname() = %q, want host1", got)
	}
	tg2 := &Target{Name: "host2"}
	if got := tg2.Hostname(); got != "host2" {
		t.Fatalf("Hostname() = %q, want host2", got)
	}
}
