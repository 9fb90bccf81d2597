// Package ui implements the confirmations sqlpool asks for before it runs a
// destructive database command.
package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/vvka-141/sqlpool/internal/retry"
	"github.com/vvka-141/sqlpool/internal/tui"
	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

// ForcedApprover approves after a visible countdown. It backs --force.
type ForcedApprover struct {
	countdown time.Duration
	out       io.Writer
	sleep     retry.Sleeper
}

// NewForcedApprover waits countdown, in whole seconds, before approving.
// Cancelling the context during the wait denies with the context error.
func NewForcedApprover(countdown time.Duration, out io.Writer) *ForcedApprover {
	return &ForcedApprover{countdown: countdown, out: out, sleep: retry.TimerSleeper}
}

// RequestApproval implements sqlpool.Approver.
func (a *ForcedApprover) RequestApproval(ctx context.Context, action, dbName string) (bool, error) {
	fmt.Fprintln(a.out, tui.Warning("%s of database %s was forced. All data in it will be lost.", action, dbName))

	for left := int(a.countdown / time.Second); left > 0; left-- {
		fmt.Fprintf(a.out, "\r%s in %ds (Ctrl+C to abort) ", action, left)
		if err := a.sleep(ctx, time.Second); err != nil {
			fmt.Fprintln(a.out)
			return false, err
		}
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	fmt.Fprintf(a.out, "\r%s\n", tui.Success("Proceeding with %s of %s", action, dbName))
	return true, nil
}

// TypedNameApprover approves when the user types the database name back.
type TypedNameApprover struct {
	in  io.Reader
	out io.Writer
}

// NewTypedNameApprover prompts on out and reads the answer from in.
func NewTypedNameApprover(in io.Reader, out io.Writer) *TypedNameApprover {
	return &TypedNameApprover{in: in, out: out}
}

type answer struct {
	text string
	err  error
}

// RequestApproval implements sqlpool.Approver. A mismatch denies without error.
func (a *TypedNameApprover) RequestApproval(ctx context.Context, action, dbName string) (bool, error) {
	fmt.Fprintln(a.out, tui.Warning("You are about to %s database %s. This cannot be undone.", strings.ToLower(action), dbName))
	fmt.Fprintf(a.out, "Type %s to confirm: ", tui.TitleStyle.Render(dbName))

	// A blocked read cannot be interrupted; on cancellation the goroutine
	// stays parked until the process exits.
	answers := make(chan answer, 1)
	go func() {
		sc := bufio.NewScanner(a.in)
		if sc.Scan() {
			answers <- answer{text: strings.TrimSpace(sc.Text())}
			return
		}
		err := sc.Err()
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		answers <- answer{err: err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(a.out)
		return false, ctx.Err()
	case ans := <-answers:
		if ans.err != nil {
			return false, fmt.Errorf("read confirmation: %w", ans.err)
		}
		if ans.text != dbName {
			fmt.Fprintln(a.out, tui.Failure("%q does not match %q, nothing was changed", ans.text, dbName))
			return false, nil
		}
		return true, nil
	}
}

var (
	_ sqlpool.Approver = (*ForcedApprover)(nil)
	_ sqlpool.Approver = (*TypedNameApprover)(nil)
)
