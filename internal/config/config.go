// Package config loads operator defaults for the engine from
// ~/.shmux/config.yaml, following the same load-merge-with-flags pattern
// the teacher's wing config uses (internal/config/wing.go): a struct with
// yaml tags, zero values meaning "unset", flags always taking precedence.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Defaults holds operator-level defaults that CLI flags can override.
// Any zero value here means "let the CLI default apply".
type Defaults struct {
	Method                 string `yaml:"method,omitempty"` // sh, rsh, ssh1, ssh2, ssh
	MaxWorkers             int    `yaml:"max_workers,omitempty"`
	PingTimeoutMS          int    `yaml:"ping_timeout_ms,omitempty"`
	TestTimeout            int    `yaml:"test_timeout_seconds,omitempty"`
	CmdTimeout             int    `yaml:"cmd_timeout_seconds,omitempty"`
	ErrorCodes             []int  `yaml:"error_exit_codes,omitempty"` // BSET_ERROR
	ShowCodes              []int  `yaml:"show_exit_codes,omitempty"`  // BSET_SHOW
	AnalyzerCmd            string `yaml:"analyzer_cmd,omitempty"`
	AnalyzerTimeoutSeconds int    `yaml:"analyzer_timeout_seconds,omitempty"`
	SSHOpts                string `yaml:"ssh_opts,omitempty"`
	SSH1Opts               string `yaml:"ssh1_opts,omitempty"`
	SSH2Opts               string `yaml:"ssh2_opts,omitempty"`
}

// UserDir returns ~/.shmux, creating nothing.
func UserDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".shmux"), nil
}

// Load reads ~/.shmux/config.yaml. A missing file is not an error; it
// yields zero-valued Defaults so every CLI default applies unmodified.
func Load() (*Defaults, error) {
	dir, err := UserDir()
	if err != nil {
		return &Defaults{}, err
	}
	return LoadFrom(filepath.Join(dir, "config.yaml"))
}

// LoadFrom reads a specific config file path.
func LoadFrom(path string) (*Defaults, error) {
	d := &Defaults{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		return d, err
	}
	if err := yaml.Unmarshal(data, d); err != nil {
		return d, err
	}
	return d, nil
}
