package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
)

const (
	exitOK          = 0
	exitError       = 1
	exitTasksFailed = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit code. The log
// file, if any, is closed on every path.
func run(args []string, stdout, stderr io.Writer) int {
	a := newApp()
	rootCmd := newRootCommand(a)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.Execute()
	code := exitOK
	if err != nil {
		code = exitError
		if errors.Is(err, errTasksFailed) {
			code = exitTasksFailed
		}
		log.Error().Err(err).Msg("carimages failed")
	}
	if cerr := a.closeLog(); cerr != nil {
		_, _ = fmt.Fprintf(stderr, "close log: %v\n", cerr)
		if code == exitOK {
			code = exitError
		}
	}
	return code
}
