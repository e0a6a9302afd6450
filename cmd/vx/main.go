package main

import (
	"context"
	"fmt"
	"os"

	vxerrors "github.com/terassyi/vx/internal/errors"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// managementCommands are the vx-owned subcommands handled by cobra; every
// other first argument is a tool name dispatched straight through the
// Execution Pipeline, so `vx node --version` forwards --version to node
// instead of cobra trying to parse it as vx's own flag.
var managementCommands = map[string]bool{
	"version":    true,
	"install":    true,
	"list":       true,
	"which":      true,
	"help":       true,
	"completion": true,
}

func main() {
	if len(os.Args) > 1 && !managementCommands[os.Args[1]] && !looksLikeFlag(os.Args[1]) {
		os.Exit(dispatch(context.Background(), os.Args[1], os.Args[2:]))
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
		os.Exit(exitCodeFromErr(err))
	}
}

func looksLikeFlag(arg string) bool {
	return len(arg) > 0 && arg[0] == '-'
}

func formatError(err error) string {
	if e, ok := err.(*vxerrors.Error); ok && e.Stage != "" {
		return fmt.Sprintf("vx: %s: %s", e.Stage, e.Error())
	}
	return "vx: " + err.Error()
}

func exitCodeFromErr(err error) int {
	if e, ok := err.(*vxerrors.Error); ok {
		return e.ExitCode()
	}
	return 1
}
