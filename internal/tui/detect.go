package tui

import (
	"os"

	"golang.org/x/term"
)

// Mode says whether a person is assumed to be at the keyboard.
type Mode int

const (
	ModeNonInteractive Mode = iota
	ModeInteractive
)

var isTerminal = func(fd int) bool { return term.IsTerminal(fd) }

// DetectMode treats a session as interactive only when both stdin and stderr
// are terminals, CI is unset and SQLPOOL_NON_INTERACTIVE is not "1". Prompts
// go to stderr so stdout can still be piped.
func DetectMode() Mode {
	switch {
	case os.Getenv("SQLPOOL_NON_INTERACTIVE") == "1", os.Getenv("CI") != "":
		return ModeNonInteractive
	case !isTerminal(int(os.Stdin.Fd())), !isTerminal(int(os.Stderr.Fd())):
		return ModeNonInteractive
	}
	return ModeInteractive
}

func IsInteractive() bool { return DetectMode() == ModeInteractive }

// ColorEnabled reports whether stdout gets styled output. NO_COLOR wins over
// a terminal.
func ColorEnabled() bool {
	return os.Getenv("NO_COLOR") == "" && isTerminal(int(os.Stdout.Fd()))
}
