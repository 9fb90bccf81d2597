package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/vvka-141/sqlpool/internal/cli"
	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "sqlpool crashed: %v\n\n%s", r, debug.Stack())
			os.Exit(sqlpool.ExitPanic)
		}
	}()

	// Lets the panic exit code be checked end to end.
	if os.Getenv("SQLPOOL_TEST_PANIC") == "1" {
		panic("SQLPOOL_TEST_PANIC is set")
	}

	err := cli.Execute()
	os.Exit(sqlpool.ExitCodeForError(err))
}
