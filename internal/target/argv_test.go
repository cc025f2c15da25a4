package target

import (
	"reflect"
	"testing"
)

func TestGetCmdSH(t *testing.T) {
	t.Setenv("SHMUX_SH", "")
	tg := &Target{Name: "host1", Method: MethodSH}
	got := GetCmd(tg, "echo hi")
	want := []string{"/bin/sh", "-c", "echo hi"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("GetCmd() = %v, want %v", got, want)
	}
}

func TestGetCmdSHRespectsEnvOverride(t *testing.T) {
	t.Setenv("SHMUX_SH", "/bin/bash")
	tg := &Target{Name: "host1", Method: MethodSH}
	got := GetCmd(tg, "echo hi")
	if got[0] != "/bin/bash" {
		t.Fatalf("GetCmd()[0] = %q, want /bin/bash", got[0])
	}
}

func TestGetCmdRSHWithUser(t *testing.T) {
	t.Setenv("SHMUX_RSH", "")
	tg := &Target{Name: "alice@host1", Method: MethodRSH}
	got := GetCmd(tg, "uptime")
	want := []string{"rsh", "-n", "-l", "alice", "host1", "uptime"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("GetCmd() = %v, want %v", got, want)
	}
}

func TestGetCmdRSHWithoutUser(t *testing.T) {
	t.Setenv("SHMUX_RSH", "")
	tg := &Target{Name: "host1", Method: MethodRSH}
	got := GetCmd(tg, "uptime")
	want := []string{"rsh", "-n", "host1", "uptime"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("GetCmd() = %v, want %v", got, want)
	}
}

func TestGetCmdSSHDefaultOpts(t *testing.T) {
	t.Setenv("SHMUX_SSH", "")
	t.Setenv("SHMUX_SSH_OPTS", "")
	tg := &Target{Name: "host1", Method: MethodSSH}
	got := GetCmd(tg, "uptime")
	want := []string{"ssh", "-n", "-o", "BatchMode=yes", "-x", "-a", "-oLogLevel=ERROR", "host1", "uptime"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("GetCmd() = %v, want %v", got, want)
	}
}

func TestGetCmdSSHCustomOpts(t *testing.T) {
	t.Setenv("SHMUX_SSH", "")
	t.Setenv("SHMUX_SSH_OPTS", `-o "StrictHostKeyChecking=no" -p 2222`)
	tg := &Target{Name: "host1", Method: MethodSSH}
	got := GetCmd(tg, "uptime")
	want := []string{"ssh", "-n", "-o", "BatchMode=yes", "-o", "StrictHostKeyChecking=no", "-p", "2222", "host1", "uptime"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("GetCmd() = %v, want %v", got, want)
	}
}

func TestSplitArgvQuoting(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"-a -b", []string{"-a", "-b"}},
		{`-o "foo bar"`, []string{"-o", "foo bar"}},
		{`"say ""hi"" now"`, []string{`say "hi`, "now"}},
		{`"dangling`, []string{"dangling"}},
		{`\hello\`, []string{"hello"}},
		{`\say hi\`, []string{"say hi"}},
	}
	for _, c := range cases {
		got := splitArgv(c.in)
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("splitArgv(%q) = %#v, want %#v", c.in, got, c.want)
		}
	}
}
