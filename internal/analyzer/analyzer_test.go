package analyzer

import (
	"context"
	"testing"
)

func TestRegexpAnalyzerMatchesPerStream(t *testing.T) {
	ra, err := NewRegexpAnalyzer([]string{`(?i)error`}, []string{`fatal`})
	if err != nil {
		t.Fatalf("NewRegexpAnalyzer: %v", err)
	}
	if !ra.AnalyzeLine(Stdout, "an ERROR occurred") {
		t.Fatal("expected stdout match")
	}
	if ra.AnalyzeLine(Stdout, "fatal: nope") {
		t.Fatal("stderr pattern should not apply to stdout")
	}
	if !ra.AnalyzeLine(Stderr, "fatal: disk full") {
		t.Fatal("expected stderr match")
	}
}

func TestRegexpAnalyzerEmptyNeverMatches(t *testing.T) {
	ra, err := NewRegexpAnalyzer(nil, nil)
	if err != nil {
		t.Fatalf("NewRegexpAnalyzer: %v", err)
	}
	if ra.AnalyzeLine(Stdout, "anything at all") {
		t.Fatal("empty pattern set should never match")
	}
}

func TestRegexpAnalyzerRejectsBadPattern(t *testing.T) {
	if _, err := NewRegexpAnalyzer([]string{"(unterminated"}, nil); err == nil {
		t.Fatal("expected a compile error")
	}
}

func TestRegisterAndRunPlugin(t *testing.T) {
	RegisterPlugin("always-ok", func(ctx context.Context, targetName, outputDir string) (bool, error) {
		return true, nil
	})
	ok, err := RunPlugin(context.Background(), "always-ok", "host1", "/tmp")
	if err != nil || !ok {
		t.Fatalf("RunPlugin() = %v, %v", ok, err)
	}
}

func TestRunPluginMissing(t *testing.T) {
	if _, err := RunPlugin(context.Background(), "does-not-exist", "host1", "/tmp"); err == nil {
		t.Fatal("expected an error for an unregistered plugin")
	}
}

func TestExternalArgv(t *testing.T) {
	got := ExternalArgv("/usr/local/bin/analyze", "host1", "/tmp/out")
	want := []string{"/usr/local/bin/analyze", "host1", "/tmp/out"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ExternalArgv() = %v, want %v", got, want)
		}
	}
}
