package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/terassyi/vx/internal/pipeline"
)

// parseRuntimeRequest splits a CLI positional of the form name[@version]
// into its name and optional version, per spec.md's RuntimeRequest.
func parseRuntimeRequest(arg string) (name, version string) {
	name, version, found := strings.Cut(arg, "@")
	if !found {
		return arg, ""
	}
	return name, version
}

// dispatch runs the Resolve -> Ensure -> Prepare -> Execute pipeline for a
// bare `vx <name>[@version] [args...]` invocation and returns the process
// exit code.
func dispatch(ctx context.Context, runtimeArg string, args []string) int {
	name, version := parseRuntimeRequest(runtimeArg)

	p, _, err := buildPipeline()
	if err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
		return exitCodeFromErr(err)
	}

	result, err := p.Run(ctx, pipeline.RunRequest{
		Resolve:   pipeline.ResolveRequest{Runtime: name, Version: version},
		Args:      args,
		CallerEnv: os.Environ(),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
		return exitCodeFromErr(err)
	}
	return result.ExitCode
}
