package tui

import (
	"testing"
)

func withTerminal(t *testing.T, tty bool) {
	t.Helper()
	orig := isTerminal
	isTerminal = func(int) bool { return tty }
	t.Cleanup(func() { isTerminal = orig })
}

func TestDetectMode(t *testing.T) {
	tests := []struct {
		name           string
		nonInteractive string
		ci             string
		tty            bool
		want           Mode
	}{
		{name: "terminal", tty: true, want: ModeInteractive},
		{name: "no terminal", tty: false, want: ModeNonInteractive},
		{name: "SQLPOOL_NON_INTERACTIVE", nonInteractive: "1", tty: true, want: ModeNonInteractive},
		{name: "only 1 counts", nonInteractive: "true", tty: true, want: ModeInteractive},
		{name: "CI", ci: "true", tty: true, want: ModeNonInteractive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SQLPOOL_NON_INTERACTIVE", tt.nonInteractive)
			t.Setenv("CI", tt.ci)
			withTerminal(t, tt.tty)

			if got := DetectMode(); got != tt.want {
				t.Errorf("DetectMode() = %d, want %d", got, tt.want)
			}
			if got := IsInteractive(); got != (tt.want == ModeInteractive) {
				t.Errorf("IsInteractive() = %v", got)
			}
		})
	}
}

func TestColorEnabled(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	withTerminal(t, true)
	if !ColorEnabled() {
		t.Error("ColorEnabled() = false on a terminal")
	}

	t.Setenv("NO_COLOR", "1")
	if ColorEnabled() {
		t.Error("ColorEnabled() = true with NO_COLOR set")
	}
}
