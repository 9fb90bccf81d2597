package cli

import (
	"bytes"
	"strings"
	"testing"
)

func setBuildVars(t *testing.T, v, c, d string) {
	t.Helper()
	oldV, oldC, oldD := version, commit, date
	version, commit, date = v, c, d
	t.Cleanup(func() { version, commit, date = oldV, oldC, oldD })
}

func TestResolveVersionInfo(t *testing.T) {
	setBuildVars(t, "1.2.3", "abc1234", "2026-01-02")
	if v, c, d := resolveVersionInfo(); v != "1.2.3" || c != "abc1234" || d != "2026-01-02" {
		t.Errorf("resolveVersionInfo() = %q %q %q, want the ldflags values", v, c, d)
	}

	// A test binary has build info but no release version.
	setBuildVars(t, "dev", "unknown", "unknown")
	if v, _, _ := resolveVersionInfo(); v == "" {
		t.Error("resolveVersionInfo() returned an empty version")
	}
}

func TestPrintVersionInfo(t *testing.T) {
	setBuildVars(t, "9.9.9", "unknown", "unknown")

	var stdout, stderr bytes.Buffer
	printVersionInfo(&stdout, &stderr)

	out := stdout.String()
	if !strings.HasPrefix(out, "sqlpool 9.9.9 ") || strings.Count(out, "\n") != 1 {
		t.Errorf("stdout = %q, want one version line", out)
	}
	if !strings.Contains(stderr.String(), asciiLogo) {
		t.Error("logo missing from stderr")
	}
}
