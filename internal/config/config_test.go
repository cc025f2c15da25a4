package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromMissingFile(t *testing.T) {
	d, err := LoadFrom(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if d.MaxWorkers != 0 || d.Method != "" {
		t.Fatalf("expected zero-valued defaults, got %+v", d)
	}
}

func TestLoadFromParsesFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
method: ssh
max_workers: 25
test_timeout_seconds: 10
error_exit_codes: [1, 2, 255]
show_exit_codes: []
ssh_opts: "-o StrictHostKeyChecking=no"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	d, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if d.Method != "ssh" {
		t.Errorf("Method = %q, want ssh", d.Method)
	}
	if d.MaxWorkers != 25 {
		t.Errorf("MaxWorkers = %d, want 25", d.MaxWorkers)
	}
	if len(d.ErrorCodes) != 3 || d.ErrorCodes[2] != 255 {
		t.Errorf("ErrorCodes = %v, want [1 2 255]", d.ErrorCodes)
	}
	if d.SSHOpts != "-o StrictHostKeyChecking=no" {
		t.Errorf("SSHOpts = %q", d.SSHOpts)
	}
}

func TestLoadFromRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("method: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected a YAML parse error")
	}
}
