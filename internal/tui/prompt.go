package tui

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// ErrNotInteractive is returned when a prompt is needed but nobody can answer it.
var ErrNotInteractive = errors.New("cannot prompt: not running interactively")

// readPassword is replaced in tests.
var readPassword = func() ([]byte, error) { return term.ReadPassword(int(os.Stdin.Fd())) }

// PromptPassword asks for a secret on stderr without echoing the input.
func PromptPassword(w io.Writer, label string) (string, error) {
	if !IsInteractive() {
		return "", ErrNotInteractive
	}

	fmt.Fprintf(w, "%s: ", label)
	pw, err := readPassword()
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}
