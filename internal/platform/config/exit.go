package config

import (
	"fmt"
	"os"
)

// Exit codes shared by tally binaries.
const (
	ExitFailure = 1
	ExitUsage   = 2
)

// Exitf reports a failed run on stderr and exits with ExitFailure.
func Exitf(format string, args ...any) {
	exitf(ExitFailure, format, args...)
}

// Usagef reports invalid flags or environment on stderr and exits with
// ExitUsage.
func Usagef(format string, args ...any) {
	exitf(ExitUsage, format, args...)
}

func exitf(code int, format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(code)
}
