package target

import (
	"os"
)

// GetCmd constructs the argv for running cmd on t, respecting the
// SHMUX_SH/SHMUX_RSH/SHMUX_SSH1/SHMUX_SSH2/SHMUX_SSH program overrides and
// the SHMUX_SSH1_OPTS/SHMUX_SSH2_OPTS/SHMUX_SSH_OPTS extra-options strings.
// Mirrors target_getcmd in target.c.
func GetCmd(t *Target, cmd string) []string {
	switch t.Method {
	case MethodSH:
		prog := envOr("SHMUX_SH", "/bin/sh")
		return []string{prog, "-c", cmd}

	case MethodRSH:
		prog := envOr("SHMUX_RSH", "rsh")
		user, host := splitUserHost(t.Name)
		if user == "" {
			return []string{prog, "-n", host, cmd}
		}
		return []string{prog, "-n", "-l", user, host, cmd}

	case MethodSSH1:
		opts := splitArgv(os.Getenv("SHMUX_SSH1_OPTS"))
		return sshArgv(envOr("SHMUX_SSH1", ""), "-1n", opts, t.Name, cmd)

	case MethodSSH2:
		opts := splitArgv(os.Getenv("SHMUX_SSH2_OPTS"))
		return sshArgv(envOr("SHMUX_SSH2", ""), "-2n", opts, t.Name, cmd)

	case MethodSSH:
		opts := splitArgv(os.Getenv("SHMUX_SSH_OPTS"))
		if len(opts) == 0 {
			opts = []string{"-x", "-a", "-oLogLevel=ERROR"}
		}
		return sshArgv(envOr("SHMUX_SSH", "ssh"), "-n", opts, t.Name, cmd)

	default:
		panic("target: unknown method")
	}
}

func sshArgv(prog, protoFlag string, opts []string, host, cmd string) []string {
	if prog == "" {
		prog = "ssh"
	}
	argv := []string{prog, protoFlag, "-o", "BatchMode=yes"}
	argv = append(argv, opts...)
	argv = append(argv, host, cmd)
	return argv
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitUserHost(name string) (user, host string) {
	for i := 0; i < len(name); i++ {
		if name[i] == '@' {
			return name[:i], name[i+1:]
		}
	}
	return "", name
}
